// Package utils has the query-string and paging arithmetic shared by the
// handlers and the services.
package utils

import (
	"strconv"
	"strings"
)

// AtoiDefault parses s as a base-10 int, ignoring surrounding space. Empty,
// malformed and out-of-range input yields def.
func AtoiDefault(s string, def int) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

// Page normalizes a 1-based page request and returns the row offset with it.
// page<1 reads as 1, size<=0 as def, and size is capped at max when max>0.
func Page(page, size, def, max int) (p, s, offset int) {
	p, s = max1(page), size
	if s <= 0 {
		s = def
	}
	if max > 0 && s > max {
		s = max
	}
	return p, s, (p - 1) * s
}

// TotalPages is the number of pages of size needed for total rows.
func TotalPages(total int64, size int) int {
	if total <= 0 || size <= 0 {
		return 0
	}
	return int((total + int64(size) - 1) / int64(size))
}

func max1(n int) int {
	if n < 1 {
		return 1
	}
	return n
}

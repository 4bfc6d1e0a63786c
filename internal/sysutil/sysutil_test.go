package sysutil

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"debug":     zerolog.DebugLevel,
		"  DeBuG  ": zerolog.DebugLevel,
		"trace":     zerolog.TraceLevel,
		"info":      zerolog.InfoLevel,
		"":          zerolog.InfoLevel,
		"warn":      zerolog.WarnLevel,
		"Warning":   zerolog.WarnLevel,
		"error":     zerolog.ErrorLevel,
		"fatal":     zerolog.FatalLevel,
		"panic":     zerolog.PanicLevel,
		"disabled":  zerolog.InfoLevel,
		"verbose":   zerolog.InfoLevel,
	}
	for in, want := range cases {
		if got := Level(in); got != want {
			t.Errorf("Level(%q) = %v; want %v", in, got, want)
		}
	}
}

func TestSetLogLevel(t *testing.T) {
	orig := zerolog.GlobalLevel()
	t.Cleanup(func() { zerolog.SetGlobalLevel(orig) })

	SetLogLevel("error")
	if got := zerolog.GlobalLevel(); got != zerolog.ErrorLevel {
		t.Fatalf("global level = %v; want error", got)
	}
	SetLogLevel("nonsense")
	if got := zerolog.GlobalLevel(); got != zerolog.InfoLevel {
		t.Fatalf("global level = %v; want info", got)
	}
}

func TestIsTruthy(t *testing.T) {
	for _, v := range []string{"1", "t", "true", "TRUE", " yes ", "Y", "on", "On"} {
		if !IsTruthy(v) {
			t.Errorf("IsTruthy(%q) = false; want true", v)
		}
	}
	for _, v := range []string{"", "0", "false", "no", "off", "n", "  ", "random"} {
		if IsTruthy(v) {
			t.Errorf("IsTruthy(%q) = true; want false", v)
		}
	}
}

func TestFirstNonEmpty(t *testing.T) {
	cases := []struct {
		in   []string
		want string
	}{
		{nil, ""},
		{[]string{" ", "\t", "\n"}, ""},
		{[]string{"   ", "  v1.2.0  ", "dev"}, "  v1.2.0  "},
		{[]string{"v1.2.0", "dev"}, "v1.2.0"},
	}
	for _, tc := range cases {
		if got := FirstNonEmpty(tc.in...); got != tc.want {
			t.Errorf("FirstNonEmpty(%q) = %q; want %q", tc.in, got, tc.want)
		}
	}
}

func TestLog_PrefersContextLogger(t *testing.T) {
	var buf bytes.Buffer
	l := zerolog.New(&buf)
	ctx := l.WithContext(context.Background())

	Log(ctx).Info().Msg("from-ctx")
	if !strings.Contains(buf.String(), "from-ctx") {
		t.Fatalf("context logger did not receive the event: %q", buf.String())
	}

	if got := Log(context.Background()); got != &log.Logger {
		t.Fatal("expected global logger fallback")
	}
}

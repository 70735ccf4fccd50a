package log

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"":        LevelInfo,
		"debug":   LevelDebug,
		" WARN ":  LevelWarn,
		"error":   LevelError,
		"off":     LevelOff,
		"warning": LevelWarn,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		if err != nil {
			t.Fatalf("ParseLevel(%q) err=%v", in, err)
		}
		if got != want {
			t.Fatalf("ParseLevel(%q)=%s want %s", in, got, want)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestLevelFiltersAndFields(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	SetLevel(LevelWarn)
	defer SetLevel(LevelInfo)

	Info("hidden line", "k", 1)
	Warn("shown line", "chunk", 3)
	Error("failed line", errors.New("boom"), "kind", "calendar")

	out := buf.String()
	if strings.Contains(out, "hidden line") {
		t.Fatalf("info line should be filtered: %q", out)
	}
	for _, want := range []string{"shown line", "chunk=3", "failed line", "boom", "kind=calendar"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in %q", want, out)
		}
	}
}

func TestFieldsIgnoresOddAndNonStringKeys(t *testing.T) {
	f := fields([]any{"a", 1, 2, "x", "tail"})
	if len(f) != 1 || f["a"] != 1 {
		t.Fatalf("unexpected fields: %#v", f)
	}
}

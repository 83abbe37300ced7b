package script

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestParse(t *testing.T) {
	src := `
# eviction scenario
set a 1 1000
set b 2 1s
set c 3
get a
del b
advance 5001
keys
keys ord
expect c 3
expect a <absent>
cleanup
clear
stats
`
	ops, err := Parse(strings.NewReader(src))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	wantKinds := []Kind{OpSet, OpSet, OpSet, OpGet, OpDelete, OpAdvance, OpKeys, OpKeys, OpExpect, OpExpect, OpCleanup, OpClear, OpStats}
	if len(ops) != len(wantKinds) {
		t.Fatalf("Expected %d ops, got %d", len(wantKinds), len(ops))
	}
	for i, kind := range wantKinds {
		if ops[i].Kind != kind {
			t.Errorf("op %d: got %s, want %s", i, ops[i].Kind, kind)
		}
	}

	if ops[0].TTL != time.Second || !ops[0].HasTTL {
		t.Errorf("Integer TTL should be milliseconds, got %s", ops[0].TTL)
	}
	if ops[1].TTL != time.Second {
		t.Errorf("Duration TTL mismatch, got %s", ops[1].TTL)
	}
	if ops[2].HasTTL {
		t.Error("set without TTL should use the default")
	}
	if ops[5].Duration != 5001*time.Millisecond {
		t.Errorf("advance duration mismatch, got %s", ops[5].Duration)
	}
	if ops[7].Pattern != "ord" {
		t.Errorf("keys pattern mismatch, got %q", ops[7].Pattern)
	}
	if ops[9].Value != AbsentValue {
		t.Errorf("expect value mismatch, got %q", ops[9].Value)
	}
	if ops[0].Line != 3 {
		t.Errorf("Line numbers should count skipped lines, got %d", ops[0].Line)
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		line int
		err  error
	}{
		{"unknown op", "set a 1\nfrobnicate", 2, errUnknownOp},
		{"set missing value", "set a", 1, errArgCount},
		{"get extra arg", "get a b", 1, errArgCount},
		{"clear with arg", "clear now", 1, errArgCount},
		{"bad ttl", "set a 1 soon", 1, errDuration},
		{"negative advance", "advance -1s", 1, errDuration},
		{"overflowing ttl", "set a 1 9300000000000", 1, errDuration},
		{"overflowing advance", "advance 9223372036854775807", 1, errDuration},
		{"expect missing value", "expect a", 1, errArgCount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.src))
			var perr *ParseError
			if !errors.As(err, &perr) {
				t.Fatalf("Expected *ParseError, got %v", err)
			}
			if perr.Line != tt.line {
				t.Errorf("Line mismatch: got %d, want %d", perr.Line, tt.line)
			}
			if !errors.Is(err, tt.err) {
				t.Errorf("Expected %v, got %v", tt.err, err)
			}
		})
	}
}

func TestParse_NegativeTTLIsLeftToTheStore(t *testing.T) {
	ops, err := Parse(strings.NewReader("set a 1 -5"))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if ops[0].TTL != -5*time.Millisecond {
		t.Errorf("Expected -5ms, got %s", ops[0].TTL)
	}
}

func TestParseDuration(t *testing.T) {
	tests := map[string]time.Duration{
		"0":      0,
		"5000":   5 * time.Second,
		"1.5s":   1500 * time.Millisecond,
		"5m":     5 * time.Minute,
		"250ms":  250 * time.Millisecond,
		"-100ms": -100 * time.Millisecond,
	}
	for in, want := range tests {
		got, err := ParseDuration(in)
		if err != nil {
			t.Errorf("ParseDuration(%q) failed: %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("ParseDuration(%q) = %s, want %s", in, got, want)
		}
	}

	if got, err := ParseDuration("9223372036854"); err != nil || got != 9223372036854*time.Millisecond {
		t.Errorf("Largest millisecond count: got %s, %v", got, err)
	}

	for _, in := range []string{"later", "9223372036855", "9300000000000", "9223372036854775807", "-9300000000000"} {
		if got, err := ParseDuration(in); !errors.Is(err, errDuration) {
			t.Errorf("ParseDuration(%q) = %s, %v, want errDuration", in, got, err)
		}
	}
}

package script

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"
)

// AbsentValue is the expect value that asserts a cache miss.
const AbsentValue = "<absent>"

// Kind identifies a script operation.
type Kind int

const (
	OpSet Kind = iota
	OpGet
	OpDelete
	OpClear
	OpCleanup
	OpAdvance
	OpStats
	OpKeys
	OpExpect
)

var kindNames = map[string]Kind{
	"set":     OpSet,
	"get":     OpGet,
	"del":     OpDelete,
	"clear":   OpClear,
	"cleanup": OpCleanup,
	"advance": OpAdvance,
	"stats":   OpStats,
	"keys":    OpKeys,
	"expect":  OpExpect,
}

// String returns the script keyword for the kind.
func (k Kind) String() string {
	switch k {
	case OpSet:
		return "set"
	case OpGet:
		return "get"
	case OpDelete:
		return "del"
	case OpClear:
		return "clear"
	case OpCleanup:
		return "cleanup"
	case OpAdvance:
		return "advance"
	case OpStats:
		return "stats"
	case OpKeys:
		return "keys"
	case OpExpect:
		return "expect"
	default:
		return "unknown"
	}
}

// Op is a single parsed script line.
type Op struct {
	Kind Kind
	Line int

	Key   string
	Value string

	// TTL is only meaningful for set, and only when HasTTL is true.
	TTL    time.Duration
	HasTTL bool

	// Duration is the amount an advance moves the clock.
	Duration time.Duration

	// Pattern filters keys; empty lists everything.
	Pattern string
}

// ParseError reports a malformed script line.
type ParseError struct {
	Line int
	Text string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: %v: %q", e.Line, e.Err, e.Text)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

var (
	errUnknownOp = errors.New("unknown operation")
	errArgCount  = errors.New("wrong number of arguments")
	errDuration  = errors.New("invalid duration")
)

// Parse reads a line-oriented script. Blank lines and lines starting with #
// are skipped.
func Parse(r io.Reader) ([]Op, error) {
	var ops []Op

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		op, ok, err := ParseLine(scanner.Text(), lineNo)
		if err != nil {
			return nil, err
		}
		if ok {
			ops = append(ops, op)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("unable to read script: %w", err)
	}
	return ops, nil
}

// ParseLine parses one script line. ok is false for blank and comment lines.
func ParseLine(text string, lineNo int) (op Op, ok bool, err error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return Op{}, false, nil
	}

	fields := strings.Fields(trimmed)
	fail := func(err error) (Op, bool, error) {
		return Op{}, false, &ParseError{Line: lineNo, Text: trimmed, Err: err}
	}

	kind, known := kindNames[strings.ToLower(fields[0])]
	if !known {
		return fail(fmt.Errorf("%w %q", errUnknownOp, fields[0]))
	}
	args := fields[1:]
	op = Op{Kind: kind, Line: lineNo}

	switch kind {
	case OpSet:
		if len(args) != 2 && len(args) != 3 {
			return fail(fmt.Errorf("%w: set KEY VALUE [TTL]", errArgCount))
		}
		op.Key, op.Value = args[0], args[1]
		if len(args) == 3 {
			ttl, err := ParseDuration(args[2])
			if err != nil {
				return fail(err)
			}
			op.TTL, op.HasTTL = ttl, true
		}

	case OpGet, OpDelete:
		if len(args) != 1 {
			return fail(fmt.Errorf("%w: %s KEY", errArgCount, kind))
		}
		op.Key = args[0]

	case OpExpect:
		if len(args) != 2 {
			return fail(fmt.Errorf("%w: expect KEY VALUE", errArgCount))
		}
		op.Key, op.Value = args[0], args[1]

	case OpAdvance:
		if len(args) != 1 {
			return fail(fmt.Errorf("%w: advance DURATION", errArgCount))
		}
		d, err := ParseDuration(args[0])
		if err != nil {
			return fail(err)
		}
		if d < 0 {
			return fail(fmt.Errorf("%w: clock cannot move backwards", errDuration))
		}
		op.Duration = d

	case OpKeys:
		if len(args) > 1 {
			return fail(fmt.Errorf("%w: keys [PATTERN]", errArgCount))
		}
		if len(args) == 1 {
			op.Pattern = args[0]
		}

	case OpClear, OpCleanup, OpStats:
		if len(args) != 0 {
			return fail(fmt.Errorf("%w: %s takes no arguments", errArgCount, kind))
		}
	}

	return op, true, nil
}

// maxDurationMillis is the largest millisecond count a time.Duration holds.
const maxDurationMillis = math.MaxInt64 / int64(time.Millisecond)

// ParseDuration accepts a Go duration ("1.5s") or a bare integer number of
// milliseconds ("5000").
func ParseDuration(s string) (time.Duration, error) {
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		if ms > maxDurationMillis || ms < -maxDurationMillis {
			return 0, fmt.Errorf("%w %q: out of range", errDuration, s)
		}
		return time.Duration(ms) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%w %q", errDuration, s)
	}
	return d, nil
}

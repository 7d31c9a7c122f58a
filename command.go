package liveseq

import (
	"errors"
	"fmt"
	"strings"
)

type (
	// Sentinel marks the special sequence tokens.
	Sentinel int

	// ArgMode tells how an argument value is applied.
	ArgMode int

	// Arg is one "key=value[/duration]" argument of a command, still in text
	// form; the matching ParamDef parses the value.
	Arg struct {
		Key      string
		Mode     ArgMode
		Value    string
		Duration string // empty when no "/duration" was given
		Text     string // the argument as typed
	}

	// Command is a parsed track command.
	Command struct {
		Sequence string
		Sentinel Sentinel
		Args     []Arg
	}

	// ArgumentError reports a single malformed argument. The rest of the
	// command is still usable.
	ArgumentError struct {
		Track TrackID
		Key   string
		Text  string
		Err   error
	}
)

const (
	NoSentinel Sentinel = iota
	EndSequencing
	DeleteTrack
)

const (
	AbsoluteSweep ArgMode = iota
	RelativeSweep
	ResetToDefault
)

const (
	endToken    = "-"
	deleteToken = "/"
)

var ErrMalformedArgument = errors.New("malformed argument")

func (e *ArgumentError) Error() string {
	if e.Track != "" {
		return fmt.Sprintf("track %v: argument %q: %v", e.Track, e.Text, e.Err)
	}
	return fmt.Sprintf("argument %q: %v", e.Text, e.Err)
}

func (e *ArgumentError) Unwrap() error { return e.Err }

func (m ArgMode) String() string {
	switch m {
	case RelativeSweep:
		return "relative"
	case ResetToDefault:
		return "reset"
	default:
		return "absolute"
	}
}

// ParseCommand splits "sequence:key=value[/duration],..." into its parts. A
// command whose sequence part starts with one of the sentinels "-" or "/"
// carries no arguments; whatever follows the sentinel is ignored.
//
// Malformed arguments are left out of the returned Command and reported as
// *ArgumentError values joined into the returned error, so the caller can
// apply the well-formed remainder.
func ParseCommand(text string) (Command, error) {
	seq, args, _ := strings.Cut(text, ":")
	seq = strings.TrimSpace(seq)
	switch {
	case strings.HasPrefix(seq, endToken):
		return Command{Sentinel: EndSequencing}, nil
	case strings.HasPrefix(seq, deleteToken):
		return Command{Sentinel: DeleteTrack}, nil
	}
	cmd := Command{Sequence: seq}
	var errs []error
	for _, field := range strings.Split(args, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		arg, err := parseArg(field)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		cmd.Args = append(cmd.Args, arg)
	}
	return cmd, errors.Join(errs...)
}

func parseArg(field string) (Arg, error) {
	arg := Arg{Text: field}
	rest := field
	switch rest[0] {
	case '+':
		arg.Mode = RelativeSweep
		rest = rest[1:]
	case '/':
		arg.Mode = ResetToDefault
		rest = rest[1:]
	}
	key, value, hasValue := strings.Cut(rest, "=")
	arg.Key = strings.TrimSpace(key)
	if arg.Key == "" {
		return Arg{}, &ArgumentError{Text: field, Err: fmt.Errorf("%w: missing key", ErrMalformedArgument)}
	}
	if !hasValue {
		if arg.Mode == ResetToDefault {
			return arg, nil
		}
		return Arg{}, &ArgumentError{Key: arg.Key, Text: field, Err: fmt.Errorf("%w: missing value", ErrMalformedArgument)}
	}
	value, duration, hasDuration := strings.Cut(value, "/")
	arg.Value = strings.TrimSpace(value)
	if hasDuration {
		arg.Duration = strings.TrimSpace(duration)
	}
	if arg.Value == "" && arg.Mode != ResetToDefault {
		return Arg{}, &ArgumentError{Key: arg.Key, Text: field, Err: fmt.Errorf("%w: missing value", ErrMalformedArgument)}
	}
	return arg, nil
}

package command

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
)

// TimestampLayout is the user-facing date format: dd.mm.yyyy HH:MM (24h).
const TimestampLayout = "02.01.2006 15:04"

// StartCommand is the literal greeting command.
const StartCommand = "/start"

// timestampWidth is the fixed width of the leading timestamp token.
const timestampWidth = len(TimestampLayout)

// ErrBadTimestamp reports a timestamp token that has the right shape but is not a valid date.
var ErrBadTimestamp = errors.New("invalid timestamp")

// TimestampError carries the offending token.
type TimestampError struct {
	Token string
	Err   error
}

func (e *TimestampError) Error() string {
	return fmt.Sprintf("%s %q: %v", ErrBadTimestamp, e.Token, e.Err)
}

func (e *TimestampError) Unwrap() []error { return []error{ErrBadTimestamp, e.Err} }

// Command is the parsed form of one inbound text.
// It is one of ScheduleRequest, StartGreeting or Unrecognized.
type Command interface {
	command()
}

// ScheduleRequest asks for Message to be sent back at ExecAt.
type ScheduleRequest struct {
	ExecAt  time.Time
	Message string
}

type StartGreeting struct{}

type Unrecognized struct{}

func (ScheduleRequest) command() {}
func (StartGreeting) command()   {}
func (Unrecognized) command()    {}

// Parse classifies raw chat text.
//
// Grammar, matched against the whole text:
//
//	<16-char timestamp token><one whitespace><message>
//
// The token must consist of digits, '.', ':' and whitespace only and parse
// with TimestampLayout in loc. The message is the rest of the text with
// surrounding whitespace trimmed and must not be empty.
//
// A token with the right shape but an impossible date (e.g. "32.13.2024 25:61")
// yields Unrecognized together with a *TimestampError. Any other text is
// Unrecognized with a nil error. loc defaults to time.Local.
func Parse(text string, loc *time.Location) (Command, error) {
	if text == StartCommand {
		return StartGreeting{}, nil
	}

	token, rest, ok := splitTimestamp(text)
	if !ok {
		return Unrecognized{}, nil
	}
	msg := strings.TrimSpace(rest)
	if msg == "" {
		return Unrecognized{}, nil
	}

	if loc == nil {
		loc = time.Local
	}
	at, err := time.ParseInLocation(TimestampLayout, token, loc)
	if err != nil {
		return Unrecognized{}, &TimestampError{Token: token, Err: err}
	}
	return ScheduleRequest{ExecAt: at, Message: msg}, nil
}

// splitTimestamp cuts text into the fixed-width timestamp token and the
// remainder after the single separator.
func splitTimestamp(text string) (token, rest string, ok bool) {
	// token + separator + at least one message byte
	if len(text) < timestampWidth+2 {
		return "", "", false
	}
	token = text[:timestampWidth]
	for _, r := range token {
		if !isTimestampRune(r) {
			return "", "", false
		}
	}
	sep := rune(text[timestampWidth])
	if sep >= unicode.MaxASCII || !unicode.IsSpace(sep) {
		return "", "", false
	}
	return token, text[timestampWidth+1:], true
}

func isTimestampRune(r rune) bool {
	switch {
	case r >= '0' && r <= '9':
		return true
	case r == '.', r == ':':
		return true
	case r < unicode.MaxASCII && unicode.IsSpace(r):
		return true
	}
	return false
}

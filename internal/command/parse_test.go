package command

import (
	"errors"
	"testing"
	"time"
)

func TestParseScheduleRequest(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		raw  string
		at   time.Time
		msg  string
	}{
		{
			name: "basic",
			raw:  "01.01.2099 12:00 Buy milk",
			at:   time.Date(2099, 1, 1, 12, 0, 0, 0, time.UTC),
			msg:  "Buy milk",
		},
		{
			name: "word characters and punctuation",
			raw:  "31.12.2030 23:59 Call mom, then: pay rent!",
			at:   time.Date(2030, 12, 31, 23, 59, 0, 0, time.UTC),
			msg:  "Call mom, then: pay rent!",
		},
		{
			name: "non latin",
			raw:  "15.06.2031 08:05 Купить хлеб",
			at:   time.Date(2031, 6, 15, 8, 5, 0, 0, time.UTC),
			msg:  "Купить хлеб",
		},
		{
			name: "tab separator and padded body",
			raw:  "02.02.2040 07:30\t  stretch  ",
			at:   time.Date(2040, 2, 2, 7, 30, 0, 0, time.UTC),
			msg:  "stretch",
		},
		{
			name: "multi line body",
			raw:  "02.02.2040 07:30 line one\nline two",
			at:   time.Date(2040, 2, 2, 7, 30, 0, 0, time.UTC),
			msg:  "line one\nline two",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Parse(tt.raw, time.UTC)
			if err != nil {
				t.Fatalf("Parse(%q) error: %v", tt.raw, err)
			}
			req, ok := got.(ScheduleRequest)
			if !ok {
				t.Fatalf("Parse(%q) = %T, want ScheduleRequest", tt.raw, got)
			}
			if !req.ExecAt.Equal(tt.at) {
				t.Fatalf("ExecAt = %v, want %v", req.ExecAt, tt.at)
			}
			if req.Message != tt.msg {
				t.Fatalf("Message = %q, want %q", req.Message, tt.msg)
			}
		})
	}
}

func TestParseStart(t *testing.T) {
	t.Parallel()
	got, err := Parse("/start", time.UTC)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if _, ok := got.(StartGreeting); !ok {
		t.Fatalf("Parse(/start) = %T, want StartGreeting", got)
	}
}

func TestParseUnrecognized(t *testing.T) {
	t.Parallel()
	inputs := []string{
		"",
		"hello",
		"/start ",
		" /start",
		"/help",
		"01.01.2099 12:00",
		"01.01.2099 12:00 ",
		"01.01.2099 12:00    ",
		"01.01.2099 12:00Buy milk",
		"01-01-2099 12:00 Buy milk",
		"1.1.2099 12:00 Buy milk",
		"Buy milk 01.01.2099 12:00",
		"ab.01.2099 12:00 Buy milk",
	}
	for _, raw := range inputs {
		got, err := Parse(raw, time.UTC)
		if err != nil {
			t.Fatalf("Parse(%q) unexpected error: %v", raw, err)
		}
		if _, ok := got.(Unrecognized); !ok {
			t.Fatalf("Parse(%q) = %T, want Unrecognized", raw, got)
		}
	}
}

func TestParseMalformedTimestamp(t *testing.T) {
	t.Parallel()
	inputs := []string{
		"32.01.2099 12:00 Buy milk",
		"01.13.2099 12:00 Buy milk",
		"01.01.2099 25:00 Buy milk",
		"01.01.2099 12:60 Buy milk",
		"01:01:2099 12.00 Buy milk",
		"1111111111111111 Buy milk",
		"01.01. 2099 1200 Buy milk",
	}
	for _, raw := range inputs {
		got, err := Parse(raw, time.UTC)
		if _, ok := got.(Unrecognized); !ok {
			t.Fatalf("Parse(%q) = %T, want Unrecognized", raw, got)
		}
		if !errors.Is(err, ErrBadTimestamp) {
			t.Fatalf("Parse(%q) error = %v, want ErrBadTimestamp", raw, err)
		}
		var te *TimestampError
		if !errors.As(err, &te) || te.Token != raw[:16] {
			t.Fatalf("Parse(%q) error token mismatch: %v", raw, err)
		}
	}
}

func TestParseUsesLocation(t *testing.T) {
	t.Parallel()
	loc := time.FixedZone("UTC+3", 3*60*60)
	got, err := Parse("01.01.2099 12:00 Buy milk", loc)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	req := got.(ScheduleRequest)
	want := time.Date(2099, 1, 1, 9, 0, 0, 0, time.UTC)
	if !req.ExecAt.Equal(want) {
		t.Fatalf("ExecAt = %v, want %v", req.ExecAt.UTC(), want)
	}
}

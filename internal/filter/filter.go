package filter

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrInvalidToken = errors.New("invalid id in filter")

// ParseIDs splits a comma-separated filter string into trimmed, non-empty tokens.
// The result is never nil so it always encodes as a JSON array.
func ParseIDs(raw string) []string {
	out := []string{}
	for _, tok := range strings.Split(strings.TrimSpace(raw), ",") {
		tok = strings.TrimSpace(tok)
		if tok != "" {
			out = append(out, tok)
		}
	}
	return out
}

func Join(tokens []string) string {
	return strings.Join(tokens, ", ")
}

// Span is an inclusive id range. A single id is a span with Lo == Hi.
type Span struct{ Lo, Hi int }

// Set matches ids against parsed filter spans without expanding ranges.
type Set []Span

// ParseToken parses "7" or "a-b" (a <= b).
func ParseToken(tok string) (Span, error) {
	tok = strings.TrimSpace(tok)
	if from, to, ok := strings.Cut(tok, "-"); ok {
		lo, err := strconv.Atoi(strings.TrimSpace(from))
		if err != nil {
			return Span{}, fmt.Errorf("%w: %q", ErrInvalidToken, tok)
		}
		hi, err := strconv.Atoi(strings.TrimSpace(to))
		if err != nil || hi < lo {
			return Span{}, fmt.Errorf("%w: %q", ErrInvalidToken, tok)
		}
		return Span{Lo: lo, Hi: hi}, nil
	}
	id, err := strconv.Atoi(tok)
	if err != nil {
		return Span{}, fmt.Errorf("%w: %q", ErrInvalidToken, tok)
	}
	return Span{Lo: id, Hi: id}, nil
}

// Spans parses every token, failing on the first invalid one.
func Spans(tokens []string) (Set, error) {
	out := make(Set, 0, len(tokens))
	for _, tok := range tokens {
		sp, err := ParseToken(tok)
		if err != nil {
			return nil, err
		}
		out = append(out, sp)
	}
	return out, nil
}

func (s Set) Contains(id int) bool {
	for _, sp := range s {
		if id >= sp.Lo && id <= sp.Hi {
			return true
		}
	}
	return false
}

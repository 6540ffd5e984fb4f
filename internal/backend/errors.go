package backend

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ErrNotFound marks a well-formed "no rows" answer from the backend.
var ErrNotFound = errors.New("backend: not found")

// StatusError is a non-2xx answer from the backend.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s %s: status=%d", e.Method, e.Path, e.Code)
	if e.Body != "" {
		msg += " body=" + e.Body
	}
	return msg
}

func (e *StatusError) Is(target error) bool {
	return target == ErrNotFound && e.Code == 404
}

// Reporter surfaces a failure to the user. A web page shows it in the error banner,
// the CLI prints it.
type Reporter interface {
	Report(message string)
}

type ReporterFunc func(message string)

func (f ReporterFunc) Report(message string) { f(message) }

type reporterKey struct{}

// WithReporter attaches r to ctx; failures of calls made with ctx are reported to it.
func WithReporter(ctx context.Context, r Reporter) context.Context {
	return context.WithValue(ctx, reporterKey{}, r)
}

func reporterFrom(ctx context.Context) Reporter {
	r, _ := ctx.Value(reporterKey{}).(Reporter)
	return r
}

// Banner keeps the messages reported during one page render.
type Banner struct {
	mu       sync.Mutex
	messages []string
}

func (b *Banner) Report(message string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, m := range b.messages {
		if m == message {
			return
		}
	}
	b.messages = append(b.messages, message)
}

// Message returns the reported messages joined for display, empty when nothing failed.
func (b *Banner) Message() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.Join(b.messages, " ")
}

func (b *Banner) Clear() {
	b.mu.Lock()
	b.messages = nil
	b.mu.Unlock()
}

// Report sends message to the reporter attached to ctx, if any.
func Report(ctx context.Context, message string) {
	if r := reporterFrom(ctx); r != nil {
		r.Report(message)
	}
}

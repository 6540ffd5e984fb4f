package clipboard

import (
	"sync"
	"time"

	sysclip "github.com/atotto/clipboard"
)

const (
	DefaultLabel  = "Copy"
	DefaultCopied = "Copied!"
	// AckDuration is how long the copied label stays before it reverts.
	AckDuration = 1500 * time.Millisecond
)

// Writer puts text on a clipboard.
type Writer interface {
	WriteAll(text string) error
}

type systemWriter struct{}

func (systemWriter) WriteAll(text string) error { return sysclip.WriteAll(text) }

// System writes to the OS clipboard.
var System Writer = systemWriter{}

// Button copies Text when clicked and acknowledges with CopiedLabel for AckDuration.
type Button struct {
	Text        string
	Label       string
	CopiedLabel string

	mu          sync.Mutex
	copiedUntil time.Time
}

func NewButton(text, label, copiedLabel string) *Button {
	if label == "" {
		label = DefaultLabel
	}
	if copiedLabel == "" {
		copiedLabel = DefaultCopied
	}
	return &Button{Text: text, Label: label, CopiedLabel: copiedLabel}
}

// Click writes the text and starts the acknowledgement window. A failed write
// leaves the label unchanged.
func (b *Button) Click(w Writer, now time.Time) error {
	if err := w.WriteAll(b.Text); err != nil {
		return err
	}
	b.mu.Lock()
	b.copiedUntil = now.Add(AckDuration)
	b.mu.Unlock()
	return nil
}

// Current returns the label to show at now.
func (b *Button) Current(now time.Time) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if now.Before(b.copiedUntil) {
		return b.CopiedLabel
	}
	return b.Label
}

package run

import (
	"fmt"
	"sync"

	"ForceView/internal/upload"
)

// Snapshot is the progress label state polled by the page.
type Snapshot struct {
	Label   string `json:"label"`
	Step    int    `json:"step"`
	Steps   int    `json:"steps"`
	Sent    int64  `json:"sent"`
	Total   int64  `json:"total"`
	Running bool   `json:"running"`
	Failed  bool   `json:"failed"`
	Message string `json:"message"`
}

// Tracker holds the progress of the one run or upload in flight.
type Tracker struct {
	mu sync.Mutex
	s  Snapshot
}

// Begin claims the tracker for label. It returns false while another run
// is still animating.
func (t *Tracker) Begin(label string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.s.Running {
		return false
	}
	t.s = Snapshot{Label: label, Running: true, Message: label + "..."}
	return true
}

func (t *Tracker) Step(i, n int) {
	t.mu.Lock()
	t.s.Step, t.s.Steps = i, n
	t.s.Message = fmt.Sprintf("%s: step %d of %d", t.s.Label, i, n)
	t.mu.Unlock()
}

func (t *Tracker) Fail(message string) {
	t.mu.Lock()
	t.s.Running = false
	t.s.Failed = true
	t.s.Message = message
	t.mu.Unlock()
}

func (t *Tracker) Done(message string) {
	t.mu.Lock()
	t.s.Running = false
	t.s.Failed = false
	t.s.Step = t.s.Steps
	t.s.Message = "Success: " + message
	t.mu.Unlock()
}

// Uploaded is an upload.ProgressFunc that reports chunk progress.
func (t *Tracker) Uploaded(sent, total int64) {
	t.mu.Lock()
	t.s.Sent, t.s.Total = sent, total
	t.s.Message = upload.ProgressText(sent, total)
	t.mu.Unlock()
}

// Release clears the running flag without changing the message.
func (t *Tracker) Release() {
	t.mu.Lock()
	t.s.Running = false
	t.mu.Unlock()
}

func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.s
}

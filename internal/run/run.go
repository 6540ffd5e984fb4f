package run

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"ForceView/internal/backend"
	"ForceView/internal/repo"
)

var (
	ErrMissingMesh     = errors.New("run: no .fem file selected")
	ErrNoForceFiles    = errors.New("run: neither .mpcf nor .spcf file selected")
	ErrMissingDatabase = errors.New("import: no database file selected")
)

// Alert returns the blocking message shown for a validation error, empty for
// any other error.
func Alert(err error) string {
	switch {
	case errors.Is(err, ErrMissingMesh):
		return "Please select a .fem file."
	case errors.Is(err, ErrNoForceFiles):
		return "Please select an .mpcf or .spcf file, or confirm a mesh-only run."
	case errors.Is(err, ErrMissingDatabase):
		return "Please select a database file."
	}
	return ""
}

const (
	DefaultSteps    = 10
	DefaultMinDelay = 200 * time.Millisecond
	DefaultMaxDelay = 800 * time.Millisecond
)

type Backend interface {
	Disconnect(ctx context.Context) error
	RunExtractor(ctx context.Context, req backend.RunRequest) (string, error)
	ImportDB(ctx context.Context, databaseFilename string) (string, error)
}

// Progress receives the visible state of a run.
type Progress interface {
	Step(i, n int)
	Fail(message string)
	Done(message string)
}

type Request struct {
	Fem  string
	Mpcf string
	Spcf string
}

type Outcome struct {
	ID       string
	Message  string
	Warnings []string
}

// Controller validates and submits extractor runs and database imports.
type Controller struct {
	Backend  Backend
	Recorder repo.RunRepository
	Logger   zerolog.Logger

	Steps    int
	MinDelay time.Duration
	MaxDelay time.Duration
	Sleep    func(ctx context.Context, d time.Duration) error
	// Rand returns a value in [0, 1).
	Rand func() float64
	// Confirm is asked whether a mesh-only run should proceed.
	Confirm func(req Request) bool
	// OnSuccess runs after the backend accepted a run or import.
	OnSuccess func()
}

func New(b Backend, recorder repo.RunRepository, logger zerolog.Logger) *Controller {
	return &Controller{
		Backend:  b,
		Recorder: recorder,
		Logger:   logger,
		Steps:    DefaultSteps,
		MinDelay: DefaultMinDelay,
		MaxDelay: DefaultMaxDelay,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Validate checks the selected files before anything is sent.
func (c *Controller) Validate(req Request) ([]string, error) {
	if strings.TrimSpace(req.Fem) == "" {
		return nil, ErrMissingMesh
	}
	mpcf, spcf := strings.TrimSpace(req.Mpcf) != "", strings.TrimSpace(req.Spcf) != ""
	switch {
	case !mpcf && !spcf:
		if c.Confirm == nil || !c.Confirm(req) {
			return nil, ErrNoForceFiles
		}
		return []string{"Running with the mesh only; no forces will be extracted."}, nil
	case !mpcf:
		return []string{"No .mpcf file selected; MPC forces will be empty."}, nil
	case !spcf:
		return []string{"No .spcf file selected; SPC forces will be empty."}, nil
	}
	return nil, nil
}

// Disconnect releases the backend database handle and waits for the answer,
// bounded by the client's disconnect timeout. A failure is logged and never
// stops the caller.
func (c *Controller) Disconnect(ctx context.Context) {
	if err := c.Backend.Disconnect(ctx); err != nil {
		c.Logger.Warn().Err(err).Msg("Failed to disconnect from database")
	}
}

// disconnect runs Disconnect in the background.
func (c *Controller) disconnect(ctx context.Context) {
	go c.Disconnect(context.WithoutCancel(ctx))
}

func (c *Controller) record(ctx context.Context, rec repo.RunRecord) {
	if c.Recorder == nil {
		return
	}
	rec.FinishedAt = time.Now()
	if err := c.Recorder.RecordRun(ctx, rec); err != nil {
		c.Logger.Error().Err(err).Str("run_id", rec.ID).Msg("record run")
	}
}

// Start validates req and submits it to the extractor. It returns once the
// backend answered; the progress animation is left to Animate.
func (c *Controller) Start(ctx context.Context, req Request, p Progress) (Outcome, error) {
	warnings, err := c.Validate(req)
	if err != nil {
		return Outcome{}, err
	}
	out := Outcome{ID: uuid.NewString(), Warnings: warnings}
	for _, w := range warnings {
		c.Logger.Warn().Str("run_id", out.ID).Msg(w)
	}

	c.disconnect(ctx)

	rec := repo.RunRecord{ID: out.ID, Kind: repo.KindExtract, Fem: req.Fem, Mpcf: req.Mpcf, Spcf: req.Spcf, StartedAt: time.Now()}
	msg, err := c.Backend.RunExtractor(ctx, backend.RunRequest{FemFilename: req.Fem, MpcfFilename: req.Mpcf, SpcfFilename: req.Spcf})
	if err != nil {
		c.Logger.Error().Err(err).Str("run_id", out.ID).Msg("run extractor")
		if p != nil {
			p.Fail(failText(err))
		}
		rec.Message = err.Error()
		c.record(ctx, rec)
		return out, fmt.Errorf("run extractor: %w", err)
	}
	c.Logger.Info().Str("run_id", out.ID).Str("fem", req.Fem).Msg("extractor started")
	out.Message = msg
	rec.Success = true
	rec.Message = msg
	c.record(ctx, rec)
	if c.OnSuccess != nil {
		c.OnSuccess()
	}
	return out, nil
}

// Animate shows the simulated progress steps and finishes with message.
// The steps are cosmetic and not tied to backend progress.
func (c *Controller) Animate(ctx context.Context, message string, p Progress) error {
	steps := c.Steps
	if steps <= 0 {
		steps = DefaultSteps
	}
	sleep := c.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}
	random := c.Rand
	if random == nil {
		random = rand.Float64
	}
	for i := 1; i <= steps; i++ {
		if err := sleep(ctx, c.delay(random())); err != nil {
			p.Fail("Cancelled.")
			return err
		}
		p.Step(i, steps)
	}
	p.Done(message)
	return nil
}

func (c *Controller) delay(r float64) time.Duration {
	lo, hi := c.MinDelay, c.MaxDelay
	if hi < lo {
		hi = lo
	}
	return lo + time.Duration(r*float64(hi-lo))
}

// Run is Start followed by Animate.
func (c *Controller) Run(ctx context.Context, req Request, p Progress) (Outcome, error) {
	out, err := c.Start(ctx, req, p)
	if err != nil {
		return out, err
	}
	return out, c.Animate(ctx, out.Message, p)
}

// ImportDB loads a previously uploaded database file into the backend.
func (c *Controller) ImportDB(ctx context.Context, filename string) (Outcome, error) {
	if strings.TrimSpace(filename) == "" {
		return Outcome{}, ErrMissingDatabase
	}
	out := Outcome{ID: uuid.NewString()}
	c.disconnect(ctx)

	rec := repo.RunRecord{ID: out.ID, Kind: repo.KindImport, Database: filename, StartedAt: time.Now()}
	msg, err := c.Backend.ImportDB(ctx, filename)
	if err != nil {
		c.Logger.Error().Err(err).Str("database", filename).Msg("import database")
		rec.Message = err.Error()
		c.record(ctx, rec)
		return out, fmt.Errorf("import database: %w", err)
	}
	out.Message = msg
	rec.Success = true
	rec.Message = msg
	c.record(ctx, rec)
	if c.OnSuccess != nil {
		c.OnSuccess()
	}
	return out, nil
}

// failText is what the progress label shows for a failed request.
func failText(err error) string {
	var se *backend.StatusError
	if errors.As(err, &se) && se.Body != "" {
		return "Error: " + se.Body
	}
	return "Error: " + err.Error()
}

package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/nao1215/capsule/internal/model"
)

// Step is one phase of a sync.
type Step interface {
	// Do executes the step. Failures of individual resources are
	// recorded in the report; a returned error means the step itself
	// could not run.
	Do(ctx context.Context, report *model.SyncReport) error

	// Name returns the step's name for logging and reports.
	Name() string
}

// Pipeline runs sync phases one after another against a shared report.
type Pipeline struct {
	steps           []Step
	logger          *slog.Logger
	continueOnError bool
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger routes phase progress to logger instead of slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = logger }
}

// WithContinueOnError keeps later phases running after one fails. The
// report keeps the error of the last failing phase.
func WithContinueOnError(enabled bool) Option {
	return func(p *Pipeline) { p.continueOnError = enabled }
}

// New returns a Pipeline with no phases.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// AddStep queues step after the existing phases.
func (p *Pipeline) AddStep(step Step) {
	p.AddSteps(step)
}

// AddSteps queues steps after the existing phases, keeping their order.
func (p *Pipeline) AddSteps(steps ...Step) {
	p.steps = append(p.steps, steps...)
}

// Execute runs every phase in order. ctx is checked before each phase;
// a phase already running sees cancellation through ctx itself.
//
// The first phase error is returned unless continueOnError is set.
// Cancellation always stops the run and marks the report cancelled.
func (p *Pipeline) Execute(ctx context.Context, report *model.SyncReport) error {
	for _, step := range p.steps {
		if err := ctx.Err(); err != nil {
			p.logger.Warn("sync interrupted", "phase", step.Name(), "reason", err)
			report.Cancelled = true
			return err
		}

		err := p.run(ctx, step, report)
		switch {
		case err == nil:
		case ctx.Err() != nil:
			report.Cancelled = true
			return err
		case p.continueOnError:
			p.logger.Warn("continuing after failed phase", "phase", step.Name())
		default:
			return err
		}
	}
	return nil
}

// run executes a single phase and records its failure in report.
func (p *Pipeline) run(ctx context.Context, step Step, report *model.SyncReport) error {
	name := step.Name()
	report.BeginPhase(name)
	p.logger.Info("sync phase", "phase", name)

	started := time.Now()
	if err := step.Do(ctx, report); err != nil {
		p.logger.Error("sync phase failed", "phase", name, "error", err)
		report.Fail(err)
		return err
	}
	p.logger.Debug("sync phase done", "phase", name, "elapsed", time.Since(started))
	return nil
}

// StepCount returns how many phases are queued.
func (p *Pipeline) StepCount() int {
	return len(p.steps)
}

// StepNames lists the queued phases in execution order.
func (p *Pipeline) StepNames() []string {
	names := make([]string, len(p.steps))
	for i, step := range p.steps {
		names[i] = step.Name()
	}
	return names
}

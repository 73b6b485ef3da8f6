package brainstorm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/nidhogg/brainstorm/internal/collect"
	"github.com/nidhogg/brainstorm/internal/index"
	"github.com/nidhogg/brainstorm/internal/session"
	"go.uber.org/zap"
)

// View renders the run to the operator. It never reads input.
type View interface {
	// Ask shows the prompt of an input state.
	Ask(state State, cfg Config)
	Warmup(questions []string)
	Progress(s collect.Status)
	Keywords(keywords []index.Keyword)
	Ideas(ideas []session.Idea)
	Analysis(ideas []session.Idea)
	// Failed reports a step-local failure; the run continues.
	Failed(state State, err error)
	Interrupted(state State)
	Finished(state State)
}

// Result is the outcome of a run.
type Result struct {
	SessionID string
	Final     State
	// Session is the last snapshot taken before deletion confirm.
	Session *session.Session
}

// Runner drives one session through every state in order.
type Runner struct {
	engine    *Engine
	lines     *collect.Lines
	collector *collect.Collector
	view      View
	logger    *zap.Logger

	state     State
	sessionID string
	keywords  []index.Keyword
	snapshot  *session.Session
}

// NewRunner creates a runner reading operator input from lines.
func NewRunner(engine *Engine, lines *collect.Lines, view View, logger *zap.Logger) *Runner {
	c := collect.NewCollector(lines, logger)
	c.OnProgress(view.Progress)
	return &Runner{
		engine:    engine,
		lines:     lines,
		collector: c,
		view:      view,
		logger:    logger,
		state:     StateSessionStart,
	}
}

// State returns the current state.
func (r *Runner) State() State { return r.state }

// Run executes the state machine until a terminal state. Only a failure to
// start the session is returned as an error. Cancelling ctx after the session
// started moves the run to deletion confirm, which still reads its answer.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	for !r.state.Terminal() {
		next, err := r.step(ctx)
		if err != nil {
			return &Result{SessionID: r.sessionID, Final: r.state}, err
		}
		if ctx.Err() != nil && r.state != StateSessionStart && r.beforeDeletion(next) {
			r.logger.Info("run interrupted", zap.String("session", r.sessionID), zap.String("state", string(r.state)))
			r.view.Interrupted(r.state)
			next = StateDeletionConfirm
		}
		if err := Transition(r.state, next); err != nil {
			return &Result{SessionID: r.sessionID, Final: r.state}, err
		}
		r.logger.Debug("state changed", zap.String("from", string(r.state)), zap.String("to", string(next)))
		r.state = next
	}
	r.view.Finished(r.state)
	return &Result{SessionID: r.sessionID, Final: r.state, Session: r.snapshot}, nil
}

func (r *Runner) beforeDeletion(s State) bool {
	return s != StateDeletionConfirm && s != StateDeletionComplete && s != StateRetained
}

func (r *Runner) step(ctx context.Context) (State, error) {
	switch r.state {
	case StateSessionStart:
		sess, err := r.engine.StartSession(ctx)
		if err != nil {
			return r.state, fmt.Errorf("session start: %w", err)
		}
		r.sessionID = sess.ID
		return StatePurposeCapture, nil

	case StatePurposeCapture:
		for {
			r.view.Ask(r.state, r.engine.Config())
			line, err := r.lines.Next(ctx)
			if err != nil {
				return r.abort(err), nil
			}
			if _, err := r.engine.SetPurpose(ctx, r.sessionID, line); err != nil {
				if errors.Is(err, ErrEmptyPurpose) {
					continue
				}
				r.fail(ctx, err)
				return StateDeletionConfirm, nil
			}
			return StateWarmupGeneration, nil
		}

	case StateWarmupGeneration:
		questions, err := r.engine.GenerateWarmup(ctx, r.sessionID)
		if err != nil {
			r.fail(ctx, err)
		}
		r.view.Warmup(questions)
		return StateConfirmationGate, nil

	case StateConfirmationGate:
		affirmative := r.engine.Config().Affirmative
		for {
			r.view.Ask(r.state, r.engine.Config())
			line, err := r.lines.Next(ctx)
			if err != nil {
				return r.abort(err), nil
			}
			if strings.TrimSpace(line) == affirmative {
				return StateAssociationCapture, nil
			}
		}

	case StateAssociationCapture:
		cfg := r.engine.Config()
		r.view.Ask(r.state, cfg)
		items, err := r.collector.Collect(ctx, cfg.AssociationDeadline, cfg.MinAssociations, cfg.MaxAssociations)
		if err != nil {
			return r.abort(err), nil
		}
		if _, err := r.engine.AddAssociations(ctx, r.sessionID, items); err != nil {
			r.fail(ctx, err)
			if errors.Is(err, ErrInsufficientInput) {
				return StateDeletionConfirm, nil
			}
		}
		return StateKeywordExtraction, nil

	case StateKeywordExtraction:
		keywords, err := r.engine.ExtractKeywords(ctx, r.sessionID)
		if err != nil {
			r.fail(ctx, err)
		}
		r.keywords = keywords
		r.view.Keywords(keywords)
		return StateIdeaGeneration, nil

	case StateIdeaGeneration:
		ideas, err := r.engine.GenerateIdeas(ctx, r.sessionID, r.keywords)
		if err != nil {
			r.fail(ctx, err)
			return StateDeletionConfirm, nil
		}
		r.view.Ideas(ideas)
		if len(ideas) == 0 {
			return StateDeletionConfirm, nil
		}
		return StateAnalysis, nil

	case StateAnalysis:
		ideas, err := r.engine.AnalyzeIdeas(ctx, r.sessionID)
		if err != nil {
			r.fail(ctx, err)
		} else {
			r.view.Analysis(ideas)
		}
		return StateDeletionConfirm, nil

	case StateDeletionConfirm:
		return r.confirmDeletion(ctx), nil
	}
	return r.state, fmt.Errorf("no step for state %q", r.state)
}

// fail reports a step failure unless it was caused by an interrupt.
func (r *Runner) fail(ctx context.Context, err error) {
	if ctx.Err() != nil {
		return
	}
	r.view.Failed(r.state, err)
}

// abort maps an input error onto the next state. Both cancellation and end of
// input go straight to deletion confirm.
func (r *Runner) abort(err error) State {
	switch {
	case errors.Is(err, context.Canceled):
		r.logger.Info("run interrupted", zap.String("session", r.sessionID), zap.String("state", string(r.state)))
		r.view.Interrupted(r.state)
	case errors.Is(err, io.EOF), errors.Is(err, context.DeadlineExceeded):
	default:
		r.view.Failed(r.state, err)
	}
	return StateDeletionConfirm
}

func (r *Runner) confirmDeletion(ctx context.Context) State {
	// The answer is read even when the run was interrupted.
	ctx = context.WithoutCancel(ctx)

	if sess, err := r.engine.Session(r.sessionID); err == nil {
		r.snapshot = sess
	}
	r.lines.Drain()
	r.view.Ask(StateDeletionConfirm, r.engine.Config())
	line, err := r.lines.Next(ctx)
	if err != nil || strings.TrimSpace(line) != r.engine.Config().Affirmative {
		r.logger.Info("session retained", zap.String("session", r.sessionID))
		return StateRetained
	}
	r.engine.EndSession(ctx, r.sessionID)
	return StateDeletionComplete
}

package core

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Loop serializes every command and read onto the single engine goroutine.
// The engine never locks; this is the only way in.
type Loop struct {
	engine *Engine
	cmds   chan loopCommand
	logger zerolog.Logger
}

type loopCommand struct {
	fn    func(e *Engine, now time.Time) (any, error)
	reply chan loopResult
}

type loopResult struct {
	value any
	err   error
}

func NewLoop(engine *Engine, queueDepth int, logger zerolog.Logger) *Loop {
	return &Loop{
		engine: engine,
		cmds:   make(chan loopCommand, queueDepth),
		logger: logger.With().Str("component", "core_loop").Logger(),
	}
}

// Run processes commands until the context is cancelled. Each command is
// stamped with the loop's wall clock at execution, so every timestamp in the
// system is assigned at one place in one total order.
func (l *Loop) Run(ctx context.Context) {
	l.logger.Info().Int64("start_sequence", l.engine.Sequence()).Msg("Core loop started")

	for {
		select {
		case <-ctx.Done():
			l.logger.Info().Int64("sequence", l.engine.Sequence()).Msg("Core loop stopped")
			return
		case cmd := <-l.cmds:
			value, err := cmd.fn(l.engine, time.Now())
			cmd.reply <- loopResult{value: value, err: err}
		}
	}
}

// Do submits a function to run on the engine goroutine and waits for it.
func (l *Loop) Do(ctx context.Context, fn func(e *Engine, now time.Time) (any, error)) (any, error) {
	cmd := loopCommand{fn: fn, reply: make(chan loopResult, 1)}

	select {
	case l.cmds <- cmd:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case res := <-cmd.reply:
		return res.value, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// AutomationTick runs one scheduler pass through the loop. Implements the
// automation worker's submitter interface.
func (l *Loop) AutomationTick(ctx context.Context) error {
	_, err := l.Do(ctx, func(e *Engine, now time.Time) (any, error) {
		return nil, e.RunAutomation(now)
	})
	return err
}

// Snapshot captures engine state through the loop.
func (l *Loop) Snapshot(ctx context.Context) (*SnapshotState, error) {
	value, err := l.Do(ctx, func(e *Engine, now time.Time) (any, error) {
		return e.CreateSnapshotState(), nil
	})
	if err != nil {
		return nil, err
	}
	return value.(*SnapshotState), nil
}

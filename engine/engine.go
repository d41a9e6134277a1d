// Package engine provides the ProcessTurn() orchestrator that wires together
// parsing, matching, conditions, tags and redirects into a single turn.
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/nathoo/rivecore/config"
	"github.com/nathoo/rivecore/engine/errs"
	"github.com/nathoo/rivecore/engine/macro"
	"github.com/nathoo/rivecore/engine/state"
	"github.com/nathoo/rivecore/store"
	"github.com/nathoo/rivecore/types"
)

// EnvSource supplies host environment values for <env> and <bot ENV_*>.
type EnvSource interface {
	Env(name string) (string, bool)
}

// BotVarSource supplies bot variables the rule set does not define.
type BotVarSource interface {
	BotVar(name string) (string, bool)
}

// OSEnv reads the process environment.
type OSEnv struct{}

func (OSEnv) Env(name string) (string, bool) { return os.LookupEnv(name) }

// Options configures an Engine. Every field is optional.
type Options struct {
	Config  *config.Config
	Store   store.Store
	Macros  *macro.Registry
	Logger  *zap.Logger
	Env     EnvSource
	BotVars BotVarSource
	Random  Random
}

// Engine answers turns against a compiled brain. The brain is shared and
// never mutated; sessions live in the store between turns.
type Engine struct {
	Brain  *state.Brain
	Config config.Config
	Store  store.Store
	Macros *macro.Registry
	RNG    Random

	log     *zap.Logger
	env     EnvSource
	botVars BotVarSource
}

// New creates an engine for a brain. Object macros defined by the rule
// set are compiled into the registry; failures are logged and skipped.
func New(brain *state.Brain, opts Options) *Engine {
	cfg := config.Default()
	if opts.Config != nil {
		cfg = *opts.Config
	}
	cfg = cfg.WithGlobals(brain.Globals)

	e := &Engine{
		Brain:   brain,
		Config:  cfg,
		Store:   opts.Store,
		Macros:  opts.Macros,
		RNG:     opts.Random,
		log:     opts.Logger,
		env:     opts.Env,
		botVars: opts.BotVars,
	}
	if e.log == nil {
		e.log = zap.NewNop()
	}
	if e.Store == nil {
		e.Store = store.NewMemory()
	}
	if e.Macros == nil {
		e.Macros = macro.NewRegistry(cfg.MacroTimeout)
	}
	if e.RNG == nil {
		seed := cfg.Seed
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		e.RNG = NewRNG(seed)
	}

	for _, err := range macro.Load(e.Macros, brain.Objects) {
		e.log.Warn("object macro skipped", zap.Error(err))
	}
	return e
}

// Logger returns the engine's logger.
func (e *Engine) Logger() *zap.Logger {
	return e.log
}

// Session loads a user's session, or starts a new one.
func (e *Engine) Session(ctx context.Context, userID string) (*types.Session, error) {
	s, err := e.Store.Load(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return state.NewSession(userID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading session %s: %w", userID, err)
	}
	return s, nil
}

// SaveSession writes a session to the store.
func (e *Engine) SaveSession(ctx context.Context, s *types.Session) error {
	if err := e.Store.Save(ctx, s); err != nil {
		return fmt.Errorf("saving session %s: %w", s.UserID, err)
	}
	return nil
}

// ResetSession forgets everything about a user.
func (e *Engine) ResetSession(ctx context.Context, userID string) error {
	if err := e.Store.Delete(ctx, userID); err != nil {
		return fmt.Errorf("deleting session %s: %w", userID, err)
	}
	return nil
}

// ProcessTurn answers one raw input for a user, loading the session from
// the store and saving it afterwards. The returned error is only non-nil
// for store failures and a cancelled context; everything that went wrong
// inside the turn is reported in TurnResult.Errors.
func (e *Engine) ProcessTurn(ctx context.Context, userID, raw string) (types.TurnResult, error) {
	if userID == "" {
		return types.TurnResult{}, errors.New("empty user id")
	}
	s, err := e.Session(ctx, userID)
	if err != nil {
		return types.TurnResult{}, err
	}

	res, turnErr := e.Reply(ctx, s, raw)

	// Mutations made before a cancellation stay applied.
	if err := e.SaveSession(context.WithoutCancel(ctx), s); err != nil {
		return res, err
	}
	return res, turnErr
}

// Reply answers one raw input against a session the caller owns. The
// session is mutated in place; nothing is persisted.
func (e *Engine) Reply(ctx context.Context, s *types.Session, raw string) (types.TurnResult, error) {
	state.Ensure(s)
	if !e.Brain.Topics.Has(s.Topic) {
		e.log.Debug("unknown topic, resetting",
			zap.String("user", s.UserID), zap.String("topic", s.Topic))
		state.SetTopic(s, state.DefaultTopic)
	}

	t := newTurn(ctx, e, s)
	reply, err := t.run(raw)
	if err != nil {
		e.log.Debug("turn aborted", zap.String("user", s.UserID), zap.Error(err))
		return t.result(nil), err
	}

	if e.Config.PostSubstitution {
		reply = e.Brain.Post.Apply(reply)
	}
	chunks := splitChunks(reply)

	state.Remember(s, t.input, joinChunks(chunks), e.Config.HistorySize)
	s.LastMatch = t.trigger
	s.TurnCount++

	res := t.result(chunks)
	e.log.Debug("turn",
		zap.String("user", s.UserID),
		zap.String("topic", res.Topic),
		zap.String("trigger", res.Trigger),
		zap.Bool("matched", res.Matched),
		zap.Int("errors", len(res.Errors)))
	return res, nil
}

// report logs a recoverable error raised during a turn.
func (e *Engine) report(userID string, err error) {
	e.log.Debug("turn error",
		zap.String("user", userID),
		zap.String("kind", errs.Kind(err)),
		zap.Error(err))
}

// Package engine wires the behavior analyzer, classifier gateway, policies,
// profile store, appeals ledger, and audit log into the single evaluation
// surface consumed by the chat transport.
package engine

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/quietroom/warden/internal/appeal"
	"github.com/quietroom/warden/internal/audit"
	"github.com/quietroom/warden/internal/classify"
	"github.com/quietroom/warden/internal/denylist"
	"github.com/quietroom/warden/internal/model"
	"github.com/quietroom/warden/internal/policy"
	"github.com/quietroom/warden/internal/profile"
)

// Config holds the engine's injected dependencies. Store is required; the
// rest default sensibly.
type Config struct {
	Policy     *policy.Config
	Denylist   *denylist.Denylist
	Classifier classify.Classifier // nil means local-rules-only
	Store      profile.Store
	AppealDir  string
	AuditLog   *audit.Log // nil disables decision logging
}

// Engine is an explicitly constructed service instance: no process-wide
// singletons, so tests run isolated engines side by side.
type Engine struct {
	mu         sync.RWMutex
	cfg        *policy.Config
	permissive *policy.Permissive
	strict     *policy.Strict

	store    profile.Store
	appeals  *appeal.Ledger
	auditLog *audit.Log
	now      func() time.Time

	evaluated atomic.Uint64
	blocked   atomic.Uint64
	shadowed  atomic.Uint64
}

// New creates an engine. Policy config is validated here; a bad config is a
// startup failure, never a per-message one.
func New(cfg Config) (*Engine, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("engine requires a profile store")
	}
	if cfg.Policy == nil {
		cfg.Policy = policy.DefaultConfig()
	}
	if err := cfg.Policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid engine config: %w", err)
	}
	if cfg.Denylist == nil {
		cfg.Denylist = denylist.NewDefault()
	}
	if cfg.AppealDir == "" {
		cfg.AppealDir = filepathDefaultAppeals()
	}

	ledger, err := appeal.NewLedger(cfg.AppealDir, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("create appeals ledger: %w", err)
	}

	return &Engine{
		cfg:        cfg.Policy,
		permissive: policy.NewPermissive(cfg.Policy, cfg.Denylist),
		strict:     policy.NewStrict(cfg.Policy, cfg.Denylist, cfg.Classifier),
		store:      cfg.Store,
		appeals:    ledger,
		auditLog:   cfg.AuditLog,
		now:        time.Now,
	}, nil
}

// SetClock overrides the engine's clock. Test hook.
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

// Appeals exposes the ledger for support tooling.
func (e *Engine) Appeals() *appeal.Ledger { return e.appeals }

// SweepConfig returns the sweeper section of the active config.
func (e *Engine) SweepConfig() policy.SweepConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cfg.Sweep
}

// Store exposes the profile store (the sweeper shares it).
func (e *Engine) Store() profile.Store { return e.store }

// Evaluate judges one inbound message. Once evaluation starts against the
// profile it runs to completion even if the caller abandons the request;
// only the classifier call observes the caller's cancellation.
func (e *Engine) Evaluate(ctx context.Context, userID, content string, track model.Track, evalCtx model.EvalContext) (model.ModerationResult, error) {
	if userID == "" {
		return model.ModerationResult{}, fmt.Errorf("evaluate requires a user id")
	}

	e.mu.RLock()
	var pol policy.Policy
	switch track {
	case model.TrackStrict:
		pol = e.strict
	case model.TrackPermissive:
		pol = e.permissive
	default:
		e.mu.RUnlock()
		return model.ModerationResult{}, fmt.Errorf("unknown policy track %q", track)
	}
	e.mu.RUnlock()

	now := e.now().UTC()
	var res model.ModerationResult

	// The profile mutation is one logical unit: detach it from the caller's
	// cancellation. The classifier inside pol.Evaluate still sees ctx.
	detached := context.WithoutCancel(ctx)
	err := e.store.Update(detached, userID, func(p *profile.Profile) error {
		p.Track = track
		res = pol.Evaluate(ctx, p, content, evalCtx, now)
		return nil
	})
	if err != nil {
		return model.ModerationResult{}, fmt.Errorf("evaluate %s: %w", userID, err)
	}

	e.evaluated.Add(1)
	if !res.Allowed {
		e.blocked.Add(1)
	}
	if res.ShadowBan {
		e.shadowed.Add(1)
	}

	if e.auditLog != nil {
		if err := e.auditLog.Record(audit.FromResult(userID, track, res)); err != nil {
			fmt.Fprintf(os.Stderr, "warden: audit record failed: %v\n", err)
		}
	}
	return res, nil
}

// SubmitAppeal records an appeal against a violation. Strict track only.
func (e *Engine) SubmitAppeal(userID, violationID, text string) (string, error) {
	return e.appeals.Submit(userID, violationID, text)
}

// ReviewAppeal adjudicates an appeal. Returns false for unknown or
// already-decided appeals. The reversal, if any, runs detached from the
// caller's cancellation through the per-profile update path.
func (e *Engine) ReviewAppeal(ctx context.Context, appealID, reviewerID string, decision model.AppealResult, reason string) bool {
	return e.appeals.Review(context.WithoutCancel(ctx), appealID, reviewerID, decision, reason)
}

// Reload swaps the policy configuration and denylist under the engine lock.
// In-flight evaluations finish against the old rules.
func (e *Engine) Reload(cfg *policy.Config, dl *denylist.Denylist, cls classify.Classifier) error {
	if cfg == nil {
		cfg = policy.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid engine config: %w", err)
	}
	if dl == nil {
		dl = denylist.NewDefault()
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg = cfg
	e.permissive = policy.NewPermissive(cfg, dl)
	e.strict = policy.NewStrict(cfg, dl, cls)
	return nil
}

// Close releases the store.
func (e *Engine) Close() error {
	return e.store.Close()
}

func filepathDefaultAppeals() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return os.TempDir() + "/warden-appeals"
	}
	return home + "/.warden/appeals"
}

// Package policy implements the two enforcement policies: Permissive for
// anonymous identities and Strict for registered ones. Both implement the
// Policy interface; callers pick a track by user type.
package policy

import (
	"context"
	"time"

	"github.com/quietroom/warden/internal/model"
	"github.com/quietroom/warden/internal/profile"
)

// Policy judges one message and mutates the profile accordingly.
type Policy interface {
	Track() model.Track

	// Evaluate runs inside the store's per-key Update: the profile may be
	// mutated freely and the write is atomic per user. Once entered, the
	// evaluation runs to completion; only classifier calls observe ctx.
	Evaluate(ctx context.Context, p *profile.Profile, content string, evalCtx model.EvalContext, now time.Time) model.ModerationResult
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

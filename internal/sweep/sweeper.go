// Package sweep runs the periodic maintenance pass: expiring time-bound
// restrictions, decaying stale violation history, and evicting long-inactive
// profiles. Sweeps are idempotent — a second pass at the same instant
// observes nothing left to do.
package sweep

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/quietroom/warden/internal/model"
	"github.com/quietroom/warden/internal/policy"
	"github.com/quietroom/warden/internal/profile"
)

// Summary reports what one sweep changed.
type Summary struct {
	ProfilesSeen       int
	RestrictionsPruned int
	ShadowBansCleared  int
	ViolationsPruned   int
	ProfilesEvicted    int
}

func (s Summary) changed() bool {
	return s.RestrictionsPruned+s.ShadowBansCleared+s.ViolationsPruned+s.ProfilesEvicted > 0
}

// Sweeper prunes profiles on a fixed interval using the same per-profile
// locking discipline as live evaluation: it reads via ScanAll and mutates
// via the store's atomic Update, never tearing a profile mid-mutation.
type Sweeper struct {
	store profile.Store
	cfg   policy.SweepConfig
	now   func() time.Time
}

// New creates a sweeper over the given store.
func New(store profile.Store, cfg policy.SweepConfig) *Sweeper {
	return &Sweeper{store: store, cfg: cfg, now: time.Now}
}

// SetClock overrides the sweeper's clock. Test hook.
func (s *Sweeper) SetClock(now func() time.Time) { s.now = now }

// Run sweeps on the configured interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval.Std())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			sum, err := s.SweepOnce(ctx, s.now().UTC())
			if err != nil {
				fmt.Fprintf(os.Stderr, "warden: sweep failed: %v\n", err)
				continue
			}
			if sum.changed() {
				fmt.Fprintf(os.Stderr,
					"warden: sweep: %d profiles, pruned %d restrictions, cleared %d shadow bans, dropped %d violations, evicted %d profiles\n",
					sum.ProfilesSeen, sum.RestrictionsPruned, sum.ShadowBansCleared, sum.ViolationsPruned, sum.ProfilesEvicted)
			}
		}
	}
}

// SweepOnce runs one full maintenance pass at the given instant.
func (s *Sweeper) SweepOnce(ctx context.Context, now time.Time) (Summary, error) {
	var sum Summary

	type job struct {
		userID string
		evict  bool
	}
	var jobs []job

	err := s.store.ScanAll(ctx, func(p *profile.Profile) error {
		sum.ProfilesSeen++
		if s.shouldEvict(p, now) {
			jobs = append(jobs, job{userID: p.UserID, evict: true})
			return nil
		}
		if s.needsPrune(p, now) {
			jobs = append(jobs, job{userID: p.UserID})
		}
		return nil
	})
	if err != nil {
		return sum, fmt.Errorf("sweep scan: %w", err)
	}

	for _, j := range jobs {
		if j.evict {
			if err := s.store.Delete(ctx, j.userID); err != nil {
				return sum, fmt.Errorf("sweep evict %s: %w", j.userID, err)
			}
			sum.ProfilesEvicted++
			continue
		}
		if err := s.store.Update(ctx, j.userID, func(p *profile.Profile) error {
			s.prune(p, now, &sum)
			return nil
		}); err != nil {
			return sum, fmt.Errorf("sweep prune %s: %w", j.userID, err)
		}
	}
	return sum, nil
}

// needsPrune reports whether the profile has anything the sweep would touch.
// Checked on the scan copy so clean profiles never take a write lock.
func (s *Sweeper) needsPrune(p *profile.Profile, now time.Time) bool {
	for _, r := range p.CurrentRestrictions {
		if !r.Permanent && !r.Active(now) {
			return true
		}
	}
	if p.ShadowBanned && !now.Before(p.ShadowBanExpires) {
		return true
	}
	cutoff := now.Add(-s.cfg.Retention.Std())
	for _, v := range p.ViolationHistory {
		if !v.Timestamp.After(cutoff) {
			return true
		}
	}
	return false
}

func (s *Sweeper) prune(p *profile.Profile, now time.Time, sum *Summary) {
	// Expired restrictions. Permanent entries are never pruned.
	kept := p.CurrentRestrictions[:0]
	for _, r := range p.CurrentRestrictions {
		if !r.Permanent && !r.Active(now) {
			sum.RestrictionsPruned++
			continue
		}
		kept = append(kept, r)
	}
	p.CurrentRestrictions = kept

	// Lapsed shadow bans: clear and partially restore the behavioral score.
	if p.ShadowBanned && !now.Before(p.ShadowBanExpires) {
		p.ShadowBanned = false
		p.ShadowBanExpires = time.Time{}
		if p.BehavioralScore < -0.5 {
			p.BehavioralScore = -0.5
		}
		sum.ShadowBansCleared++
	}

	// Violation history beyond the retention window.
	cutoff := now.Add(-s.cfg.Retention.Std())
	violations := p.ViolationHistory[:0]
	for _, v := range p.ViolationHistory {
		if v.Timestamp.After(cutoff) {
			violations = append(violations, v)
			continue
		}
		sum.ViolationsPruned++
	}
	p.ViolationHistory = violations
}

// shouldEvict decides cache eviction. Eviction is not a ban: a returning
// user gets a fresh profile at neutral trust. Strict profiles with violation
// history hold long-term value and are retained unless configured otherwise.
func (s *Sweeper) shouldEvict(p *profile.Profile, now time.Time) bool {
	last := p.LastActivity
	if last.IsZero() {
		last = p.CreatedAt
	}
	if now.Sub(last) < s.cfg.InactivityTTL.Std() {
		return false
	}
	if p.ActiveRestriction(now) != nil {
		return false
	}
	if p.ShadowBanned && now.Before(p.ShadowBanExpires) {
		return false
	}
	if p.Track == model.TrackStrict {
		return s.cfg.EvictStrict && len(p.ViolationHistory) == 0
	}
	return true
}

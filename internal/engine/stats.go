package engine

import (
	"context"

	"github.com/quietroom/warden/internal/model"
	"github.com/quietroom/warden/internal/profile"
)

// Stats is a point-in-time operational snapshot. Counter fields are
// process-lifetime; profile fields come from a full store scan and are
// eventually consistent with concurrent writes.
type Stats struct {
	Evaluated uint64 `json:"evaluated"`
	Blocked   uint64 `json:"blocked"`
	Shadowed  uint64 `json:"shadow_banned"`

	Profiles           int     `json:"profiles"`
	StrictProfiles     int     `json:"strict_profiles"`
	PermissiveProfiles int     `json:"permissive_profiles"`
	ActiveRestrictions int     `json:"active_restrictions"`
	ActiveShadowBans   int     `json:"active_shadow_bans"`
	PendingAppeals     int     `json:"pending_appeals"`
	AvgTrustScore      float64 `json:"avg_trust_score"`
	AvgBehavioralScore float64 `json:"avg_behavioral_score"`
}

// Stats scans the store once and folds in process counters.
func (e *Engine) Stats(ctx context.Context) (Stats, error) {
	now := e.now().UTC()
	s := Stats{
		Evaluated: e.evaluated.Load(),
		Blocked:   e.blocked.Load(),
		Shadowed:  e.shadowed.Load(),
	}

	var trustSum, behaviorSum float64
	err := e.store.ScanAll(ctx, func(p *profile.Profile) error {
		s.Profiles++
		switch p.Track {
		case model.TrackStrict:
			s.StrictProfiles++
			trustSum += p.TrustScore
		default:
			s.PermissiveProfiles++
			behaviorSum += p.BehavioralScore
		}
		if p.ActiveRestriction(now) != nil {
			s.ActiveRestrictions++
		}
		if p.ShadowBanned && now.Before(p.ShadowBanExpires) {
			s.ActiveShadowBans++
		}
		return nil
	})
	if err != nil {
		return Stats{}, err
	}

	if s.StrictProfiles > 0 {
		s.AvgTrustScore = trustSum / float64(s.StrictProfiles)
	}
	if s.PermissiveProfiles > 0 {
		s.AvgBehavioralScore = behaviorSum / float64(s.PermissiveProfiles)
	}
	pending, err := e.appeals.PendingCount()
	if err != nil {
		return Stats{}, err
	}
	s.PendingAppeals = pending
	return s, nil
}

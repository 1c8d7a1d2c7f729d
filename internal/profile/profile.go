package profile

import (
	"time"

	"github.com/quietroom/warden/internal/model"
)

// Score bounds per track. The strict track tracks trust in [0,1]; the
// permissive track tracks behavioral good-faith in [-1,1].
const (
	TrustMin = 0.0
	TrustMax = 1.0

	BehavioralMin = -1.0
	BehavioralMax = 1.0

	// NeutralTrust is the starting trust score for a fresh profile.
	NeutralTrust = 0.5
)

// Profile is the per-identity behavioral record. It is owned by the store
// and mutated only through the store's Update path.
type Profile struct {
	UserID string `json:"user_id"`

	// Track records which policy last evaluated this identity; the sweeper
	// uses it to pick eviction rules.
	Track model.Track `json:"track,omitempty"`

	// TrustScore drives the strict policy's threshold ladder.
	TrustScore float64 `json:"trust_score"`

	// BehavioralScore drives permissive-track shadow-ban candidacy.
	BehavioralScore float64 `json:"behavioral_score"`

	// ConversationQuality is a rolling [0,1] estimate blended on each
	// evaluation that carries history, never overwritten outright.
	ConversationQuality float64 `json:"conversation_quality"`

	SessionCount int   `json:"session_count"`
	TotalChars   int64 `json:"total_chars"`

	ViolationHistory    []model.Violation   `json:"violation_history,omitempty"`
	CurrentRestrictions []model.Restriction `json:"current_restrictions,omitempty"`

	ShadowBanned     bool      `json:"shadow_banned,omitempty"`
	ShadowBanExpires time.Time `json:"shadow_ban_expires,omitempty"`

	ReportCount int `json:"report_count,omitempty"`

	LastActivity time.Time `json:"last_activity"`
	LastMessage  string    `json:"last_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// New creates a fresh profile at neutral trust. LastActivity stays zero
// until the first message so the analyzer never sees a phantom gap.
func New(userID string, now time.Time) *Profile {
	return &Profile{
		UserID:              userID,
		TrustScore:          NeutralTrust,
		BehavioralScore:     0,
		ConversationQuality: 0.5,
		CreatedAt:           now,
	}
}

// ClampScores forces both scores back into their declared ranges.
// Called after every mutation; the invariant must hold at rest.
func (p *Profile) ClampScores() {
	p.TrustScore = clamp(p.TrustScore, TrustMin, TrustMax)
	p.BehavioralScore = clamp(p.BehavioralScore, BehavioralMin, BehavioralMax)
	p.ConversationQuality = clamp(p.ConversationQuality, 0, 1)
}

// ActiveRestriction returns the first restriction in force at now, or nil.
func (p *Profile) ActiveRestriction(now time.Time) *model.Restriction {
	for i := range p.CurrentRestrictions {
		if p.CurrentRestrictions[i].Active(now) {
			return &p.CurrentRestrictions[i]
		}
	}
	return nil
}

// RecentViolations counts violations within the window ending at now.
func (p *Profile) RecentViolations(now time.Time, window time.Duration) int {
	cutoff := now.Add(-window)
	n := 0
	for _, v := range p.ViolationHistory {
		if v.Timestamp.After(cutoff) {
			n++
		}
	}
	return n
}

// AvgMessageLength returns the rolling average message length in characters.
func (p *Profile) AvgMessageLength() float64 {
	if p.SessionCount == 0 {
		return 0
	}
	return float64(p.TotalChars) / float64(p.SessionCount)
}

// RecordActivity updates the rolling counters for one observed message.
func (p *Profile) RecordActivity(content string, now time.Time) {
	p.SessionCount++
	p.TotalChars += int64(len(content))
	p.LastActivity = now
	p.LastMessage = content
}

// BlendQuality folds a fresh quality sample into the rolling estimate.
func (p *Profile) BlendQuality(sample float64) {
	p.ConversationQuality = 0.8*p.ConversationQuality + 0.2*sample
	p.ConversationQuality = clamp(p.ConversationQuality, 0, 1)
}

// Clone returns a deep copy safe to read outside the store's locks.
func (p *Profile) Clone() *Profile {
	cp := *p
	cp.ViolationHistory = append([]model.Violation(nil), p.ViolationHistory...)
	cp.CurrentRestrictions = append([]model.Restriction(nil), p.CurrentRestrictions...)
	return &cp
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

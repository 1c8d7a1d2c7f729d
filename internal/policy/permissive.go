package policy

import (
	"context"
	"fmt"
	"time"

	"github.com/quietroom/warden/internal/behavior"
	"github.com/quietroom/warden/internal/denylist"
	"github.com/quietroom/warden/internal/model"
	"github.com/quietroom/warden/internal/profile"
)

// Permissive is the anonymous-track policy: maximum expressive freedom,
// a local extreme-content hard floor, and quiet shadow-ban candidacy
// tracking. It never consults the external classifier.
type Permissive struct {
	cfg *Config
	dl  *denylist.Denylist
}

// NewPermissive creates the anonymous-track policy.
func NewPermissive(cfg *Config, dl *denylist.Denylist) *Permissive {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if dl == nil {
		dl = denylist.NewDefault()
	}
	return &Permissive{cfg: cfg, dl: dl}
}

// Track implements Policy.
func (pp *Permissive) Track() model.Track { return model.TrackPermissive }

// Evaluate implements Policy.
//
// Order (must not change): behavior analysis and score nudge, extreme-content
// hard floor, borderline annotation, shadow-ban candidacy, freedom score.
func (pp *Permissive) Evaluate(_ context.Context, p *profile.Profile, content string, evalCtx model.EvalContext, now time.Time) model.ModerationResult {
	// Step 1: behavior analysis; apply the quality delta to the behavioral
	// score on every message regardless of outcome.
	an := behavior.Analyze(p, content, evalCtx.History, now, pp.cfg.AnalyzerFor(pp.cfg.Permissive.MaxLength))
	p.BehavioralScore += an.QualityDelta
	p.ClampScores()
	if an.HasQuality {
		p.BlendQuality(an.Quality)
	}

	res := model.ModerationResult{
		Allowed:    true,
		Confidence: 0.9,
		Category:   model.CategorySafe,
		Flags:      an.Flags,
		Enforcement: model.Enforcement{
			Action:     model.ActionAllow,
			Appealable: false,
		},
	}

	// Step 2: extreme-content hard floor, independent of classifier health.
	if hit, phrase := pp.dl.MatchExtreme(content); hit {
		p.RecordActivity(content, now)
		p.BehavioralScore -= 0.3
		p.ClampScores()

		res.Allowed = false
		res.Category = model.CategoryDangerous
		res.Confidence = 0.95
		res.Reasons = []string{fmt.Sprintf("content matches blocked pattern %q", phrase)}
		res.Enforcement.Action = model.ActionWarn
		res.Score = pp.freedomScore(p, content, res.Flags)
		return res
	}

	// Step 3: borderline annotation. The message stays allowed; the profile
	// is marked. Repeated borderline hits do not compound.
	if hit, _ := pp.dl.MatchBorderline(content); hit {
		res.Category = model.CategoryBorderline
		res.Confidence = 0.7
		res.Flags = append(res.Flags, model.FlagBorderlineContent)
		res.Reasons = append(res.Reasons, "borderline language detected")
	}

	// Step 4: shadow-ban candidacy from behavioral flags.
	shadowRecommended := model.HasFlag(an.Flags, model.FlagSpamPattern) ||
		(model.HasFlag(an.Flags, model.FlagRapidMessaging) && p.SessionCount > pp.cfg.Permissive.ShadowBanVolume)
	if shadowRecommended {
		res.Category = model.CategoryConcerning
		res.Confidence = 0.75
	}

	p.RecordActivity(content, now)

	// Step 6 (pre-score): apply the shadow ban. The sender still sees
	// Allowed=true; only the caller learns to suppress fan-out.
	if shadowRecommended {
		p.ShadowBanned = true
		p.ShadowBanExpires = now.Add(pp.cfg.Permissive.ShadowBanDuration.Std())
		if p.BehavioralScore < pp.cfg.Permissive.ShadowBanScore {
			p.CurrentRestrictions = append(p.CurrentRestrictions, model.Restriction{
				Type:    model.RestrictMute,
				Expires: now.Add(pp.cfg.Permissive.ShadowBanDuration.Std()),
				Reason:  "sustained disruptive behavior",
			})
		}
	}
	if p.ShadowBanned && now.Before(p.ShadowBanExpires) {
		res.ShadowBan = true
		res.Enforcement.Action = model.ActionShadowBan
	}

	// Step 5: freedom score — a descriptive quality metric, not a gate.
	res.Score = pp.freedomScore(p, content, res.Flags)
	return res
}

// freedomScore blends content substance, absence of flags, behavioral score,
// and conversation quality into [0,1].
func (pp *Permissive) freedomScore(p *profile.Profile, content string, flags []model.Flag) float64 {
	substance := 0.0
	if len(content) > 20 && !model.HasFlag(flags, model.FlagGibberish) {
		substance = 1.0
	}
	cleanliness := 1.0 - float64(len(flags))/3.0
	if cleanliness < 0 {
		cleanliness = 0
	}
	behavioral := (p.BehavioralScore + 1) / 2 // map [-1,1] to [0,1]

	return clamp01(0.25*substance + 0.25*cleanliness + 0.25*behavioral + 0.25*p.ConversationQuality)
}

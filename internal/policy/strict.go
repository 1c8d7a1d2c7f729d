package policy

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/quietroom/warden/internal/behavior"
	"github.com/quietroom/warden/internal/classify"
	"github.com/quietroom/warden/internal/denylist"
	"github.com/quietroom/warden/internal/model"
	"github.com/quietroom/warden/internal/profile"
)

// Strict is the registered-track policy: comprehensive, appealable
// enforcement with penalties graduated by trust score and recent violation
// density.
type Strict struct {
	cfg *Config
	dl  *denylist.Denylist
	cls classify.Classifier
}

// NewStrict creates the registered-track policy. cls may be nil, in which
// case evaluation is local-rules-only.
func NewStrict(cfg *Config, dl *denylist.Denylist, cls classify.Classifier) *Strict {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if dl == nil {
		dl = denylist.NewDefault()
	}
	return &Strict{cfg: cfg, dl: dl, cls: cls}
}

// Track implements Policy.
func (sp *Strict) Track() model.Track { return model.TrackStrict }

// Evaluate implements Policy.
//
// Order (must not change): restriction gate, content analysis (prohibited,
// restricted, room rules, classifier fold-in), behavioral analysis,
// community impact, threshold ladder (ban, then restrict, then warn),
// profile update.
func (sp *Strict) Evaluate(ctx context.Context, p *profile.Profile, content string, evalCtx model.EvalContext, now time.Time) model.ModerationResult {
	// Step 1: restriction gate. Active restriction short-circuits before
	// any analysis runs; the classifier is never consulted.
	if r := p.ActiveRestriction(now); r != nil {
		return restrictionGateResult(r, p.TrustScore)
	}

	// Step 2: content analysis. Local rules first; the remote classifier
	// can only strengthen the local judgment, never weaken it.
	category := model.CategorySafe
	confidence := 0.0
	var reasons []string

	if cat, _, ok := sp.dl.MatchProhibited(content); ok {
		category = model.CategorySevere
		confidence = 0.95
		reasons = append(reasons, fmt.Sprintf("prohibited content: %s", cat))
	} else if cat, _, ok := sp.dl.MatchRestricted(content); ok {
		category = model.CategoryViolation
		confidence = 0.85
		reasons = append(reasons, fmt.Sprintf("restricted content: %s", cat))
	}

	category, confidence, reasons = sp.applyRoomRules(evalCtx.Room, content, category, confidence, reasons)

	if sp.cls != nil {
		remote, err := sp.cls.Classify(ctx, content, map[string]string{"track": string(model.TrackStrict)})
		if err != nil {
			// Fail open: degraded-mode event, local judgment stands.
			fmt.Fprintf(os.Stderr, "warden: classifier degraded for user %s: %v\n", p.UserID, err)
			remote = classify.Degraded()
		}
		if !remote.Allowed {
			if category == model.CategorySafe {
				category = model.CategoryViolation
				if remote.Category != "" && model.CategoryWeight(remote.Category) >= model.CategoryWeight(model.CategoryViolation) {
					category = remote.Category
				}
			}
			if remote.Confidence > confidence {
				confidence = remote.Confidence
			}
			reasons = append(reasons, remote.Reasons...)
		}
	}

	// Step 3: behavioral analysis over the supplied window; recent
	// violations and low trust raise confidence in a non-safe judgment.
	an := behavior.Analyze(p, content, evalCtx.History, now, sp.cfg.AnalyzerFor(sp.cfg.Strict.MaxLength))
	patterns := countPatterns(an.Flags)
	recent := p.RecentViolations(now, sp.cfg.Strict.RecentWindow.Std())
	if category != model.CategorySafe {
		confidence = clamp01(confidence + 0.05*float64(recent) + 0.1*(1-p.TrustScore))
	}

	// Step 4: community impact. Shared rooms weigh more than 1:1 chats,
	// and prior reports on the sender raise the stakes.
	impact := 0.0
	if evalCtx.SharedRoom {
		impact += 0.3
	}
	impact += 0.1 * float64(evalCtx.ReportCount+p.ReportCount)
	impact = clamp01(impact)

	// Step 5: trust-adjusted threshold ladder. Tie-break order is part of
	// the contract: ban first, then restrict, then warn.
	severity := model.CategoryWeight(category) + 0.5*float64(patterns) + impact

	warnThreshold := 1 + (1 - p.TrustScore)
	restrictThreshold := 2 + (1 - p.TrustScore)
	// Recidivism lowers the ban threshold, which can drop it below the
	// restrict threshold — hence the ban-first tie-break below.
	recidivism := p.RecentViolations(now, sp.cfg.Strict.BanWindow.Std())
	banThreshold := 3 + (1 - p.TrustScore) - 0.5*float64(recidivism)

	action := model.ActionAllow
	switch {
	case severity >= banThreshold:
		action = model.ActionBan
	case severity >= restrictThreshold:
		action = model.ActionRestrict
	case severity >= warnThreshold:
		action = model.ActionWarn
	}

	// Step 6: profile update.
	p.RecordActivity(content, now)
	if an.HasQuality {
		p.BlendQuality(an.Quality)
	}

	res := model.ModerationResult{
		Allowed:    action == model.ActionAllow,
		Category:   category,
		Confidence: confidence,
		Reasons:    reasons,
		Flags:      an.Flags,
	}

	if action == model.ActionAllow {
		p.TrustScore += 0.01 + an.QualityDelta
		p.ClampScores()
		res.Confidence = 0.9
		if category != model.CategorySafe {
			res.Confidence = confidence
		}
		res.Enforcement = model.Enforcement{Action: model.ActionAllow}
		res.Score = p.TrustScore
		return res
	}

	p.TrustScore -= 0.1
	p.ClampScores()

	enf := model.Enforcement{Action: action, Appealable: action != model.ActionWarn}
	switch action {
	case model.ActionRestrict:
		enf.Duration = sp.cfg.Strict.RestrictDuration.Std()
		p.CurrentRestrictions = append(p.CurrentRestrictions, model.Restriction{
			Type:    model.RestrictMute,
			Expires: now.Add(enf.Duration),
			Reason:  firstReason(reasons, "repeated policy violations"),
		})
	case model.ActionBan:
		if recidivism <= sp.cfg.Strict.PermanentBanAfter {
			enf.Duration = sp.cfg.Strict.BanDuration.Std()
			p.CurrentRestrictions = append(p.CurrentRestrictions, model.Restriction{
				Type:    model.RestrictBan,
				Expires: now.Add(enf.Duration),
				Reason:  firstReason(reasons, "severe policy violation"),
			})
		} else {
			enf.Permanent = true
			p.CurrentRestrictions = append(p.CurrentRestrictions, model.Restriction{
				Type:      model.RestrictBan,
				Permanent: true,
				Reason:    firstReason(reasons, "repeated severe violations"),
			})
		}
	}

	p.ViolationHistory = append(p.ViolationHistory, model.Violation{
		ID:        uuid.NewString(),
		Timestamp: now,
		Category:  category,
		Severity:  severity,
		Action:    action,
	})

	if len(res.Reasons) == 0 {
		res.Reasons = []string{"message violates community guidelines"}
	}
	res.Enforcement = enf
	res.Score = p.TrustScore
	return res
}

// applyRoomRules folds caller-supplied room constraints into the judgment.
// Rules can escalate all the way to severe (family-friendly rooms).
func (sp *Strict) applyRoomRules(room *model.RoomRules, content string, category model.Category, confidence float64, reasons []string) (model.Category, float64, []string) {
	if room == nil {
		return category, confidence, reasons
	}

	if room.MaxMessageLength > 0 && len(content) > room.MaxMessageLength {
		if model.CategoryWeight(category) < model.CategoryWeight(model.CategoryViolation) {
			category = model.CategoryViolation
		}
		if confidence < 0.7 {
			confidence = 0.7
		}
		reasons = append(reasons, fmt.Sprintf("message exceeds room limit of %d characters", room.MaxMessageLength))
	}

	if room.NoLinks && containsLink(content) {
		if model.CategoryWeight(category) < model.CategoryWeight(model.CategoryViolation) {
			category = model.CategoryViolation
		}
		if confidence < 0.7 {
			confidence = 0.7
		}
		reasons = append(reasons, "links are not allowed in this room")
	}

	if room.FamilyFriendly && category != model.CategorySafe {
		// Anything flagged in a family-friendly room is treated as severe.
		category = model.CategorySevere
		if confidence < 0.9 {
			confidence = 0.9
		}
		reasons = append(reasons, "flagged content in a family-friendly room")
	}

	return category, confidence, reasons
}

func containsLink(s string) bool {
	lower := strings.ToLower(s)
	return strings.Contains(lower, "http://") ||
		strings.Contains(lower, "https://") ||
		strings.Contains(lower, "www.")
}

// countPatterns counts behavioral flags that participate in severity scoring.
func countPatterns(flags []model.Flag) int {
	n := 0
	for _, f := range flags {
		switch f {
		case model.FlagRapidMessaging, model.FlagSpamPattern, model.FlagRepetitiveContent:
			n++
		}
	}
	return n
}

func restrictionGateResult(r *model.Restriction, trust float64) model.ModerationResult {
	action := model.ActionMute
	switch r.Type {
	case model.RestrictWarn:
		action = model.ActionWarn
	case model.RestrictBan:
		action = model.ActionBan
	}

	reason := fmt.Sprintf("active %s restriction: %s", r.Type, r.Reason)
	return model.ModerationResult{
		Allowed:    false,
		Category:   model.CategoryViolation,
		Confidence: 1,
		Reasons:    []string{reason},
		Enforcement: model.Enforcement{
			Action:     action,
			Permanent:  r.Permanent,
			Appealable: true,
		},
		Score: trust,
	}
}

func firstReason(reasons []string, fallback string) string {
	if len(reasons) > 0 {
		return reasons[0]
	}
	return fallback
}

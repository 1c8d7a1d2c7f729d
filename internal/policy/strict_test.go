package policy

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/quietroom/warden/internal/classify"
	"github.com/quietroom/warden/internal/model"
	"github.com/quietroom/warden/internal/profile"
)

func strictProfile() *profile.Profile {
	p := profile.New("user-1", t0.Add(-time.Hour))
	p.Track = model.TrackStrict
	return p
}

// failingClassifier fails the test if it is ever consulted.
func failingClassifier(t *testing.T) classify.Classifier {
	t.Helper()
	return classify.Func(func(ctx context.Context, text string, meta map[string]string) (classify.Assessment, error) {
		t.Error("classifier must not be consulted on this path")
		return classify.Assessment{Allowed: true}, nil
	})
}

func TestStrictAllowsCleanMessage(t *testing.T) {
	sp := NewStrict(nil, nil, nil)
	p := strictProfile()

	res := sp.Evaluate(context.Background(), p, "thanks for the help with my homework yesterday!", model.EvalContext{}, t0)
	if !res.Allowed {
		t.Fatalf("expected a clean message to be allowed: %+v", res)
	}
	if p.TrustScore <= profile.NeutralTrust {
		t.Errorf("trust = %v, want a small raise above %v", p.TrustScore, profile.NeutralTrust)
	}
	if res.Confidence != 0.9 {
		t.Errorf("confidence = %v, want 0.9 for a safe allow", res.Confidence)
	}
}

func TestStrictRestrictionGateShortCircuits(t *testing.T) {
	sp := NewStrict(nil, nil, failingClassifier(t))
	p := strictProfile()
	p.CurrentRestrictions = []model.Restriction{{
		Type:    model.RestrictMute,
		Expires: t0.Add(time.Hour),
		Reason:  "prior violation",
	}}

	res := sp.Evaluate(context.Background(), p, "a perfectly harmless message", model.EvalContext{}, t0)
	if res.Allowed {
		t.Fatal("expected an active restriction to block the message")
	}
	if res.Confidence != 1 {
		t.Errorf("confidence = %v, want 1 at the gate", res.Confidence)
	}
	if !res.Enforcement.Appealable {
		t.Error("gate blocks must be appealable")
	}
	if res.Enforcement.Action != model.ActionMute {
		t.Errorf("action = %s, want mute", res.Enforcement.Action)
	}
}

func TestStrictLapsedRestrictionDoesNotGate(t *testing.T) {
	sp := NewStrict(nil, nil, nil)
	p := strictProfile()
	p.CurrentRestrictions = []model.Restriction{{
		Type:    model.RestrictMute,
		Expires: t0.Add(-time.Minute),
	}}

	res := sp.Evaluate(context.Background(), p, "am I allowed to talk again now?", model.EvalContext{}, t0)
	if !res.Allowed {
		t.Errorf("expected a lapsed restriction to be ignored: %+v", res)
	}
}

func TestStrictProhibitedContentRestricted(t *testing.T) {
	sp := NewStrict(nil, nil, nil)
	p := strictProfile()

	res := sp.Evaluate(context.Background(), p, "just kill yourself already", model.EvalContext{}, t0)
	if res.Allowed {
		t.Fatal("expected prohibited content to be blocked")
	}
	if res.Category != model.CategorySevere {
		t.Errorf("category = %s, want severe", res.Category)
	}
	if res.Enforcement.Action != model.ActionRestrict {
		t.Errorf("action = %s, want restrict at neutral trust", res.Enforcement.Action)
	}
	if res.Enforcement.Duration != 60*time.Minute {
		t.Errorf("duration = %v, want 60m", res.Enforcement.Duration)
	}
	if !res.Enforcement.Appealable {
		t.Error("restrict must be appealable")
	}
	if len(p.ViolationHistory) != 1 {
		t.Fatalf("violations = %d, want 1", len(p.ViolationHistory))
	}
	if p.ViolationHistory[0].ID == "" {
		t.Error("expected the violation to carry an id")
	}
	if p.TrustScore != profile.NeutralTrust-0.1 {
		t.Errorf("trust = %v, want %v", p.TrustScore, profile.NeutralTrust-0.1)
	}
	if p.ActiveRestriction(t0.Add(time.Minute)) == nil {
		t.Error("expected an active mute restriction after the block")
	}
}

func TestStrictRepeatOffenderPermanentBan(t *testing.T) {
	sp := NewStrict(nil, nil, nil)
	p := strictProfile()
	p.TrustScore = 0.3
	for i := 0; i < 3; i++ {
		p.ViolationHistory = append(p.ViolationHistory, model.Violation{
			ID:        fmt.Sprintf("v%d", i),
			Timestamp: t0.Add(-time.Duration(i+1) * 24 * time.Hour),
			Category:  model.CategoryViolation,
			Action:    model.ActionRestrict,
		})
	}

	res := sp.Evaluate(context.Background(), p, "gas the lot of them", model.EvalContext{}, t0)
	if res.Allowed {
		t.Fatal("expected hate content from a repeat offender to be blocked")
	}
	if res.Enforcement.Action != model.ActionBan {
		t.Errorf("action = %s, want ban", res.Enforcement.Action)
	}
	if !res.Enforcement.Permanent {
		t.Error("expected the ban to be permanent past the recidivism limit")
	}
	if res.Enforcement.Duration != 0 {
		t.Errorf("permanent ban must carry no duration, got %v", res.Enforcement.Duration)
	}

	r := p.ActiveRestriction(t0.Add(365 * 24 * time.Hour))
	if r == nil || !r.Permanent {
		t.Error("expected a permanent ban restriction on the profile")
	}
}

func TestStrictFirstBanIsTemporary(t *testing.T) {
	sp := NewStrict(nil, nil, nil)
	p := strictProfile()
	p.TrustScore = 0.1
	for i := 0; i < 2; i++ {
		p.ViolationHistory = append(p.ViolationHistory, model.Violation{
			ID:        fmt.Sprintf("v%d", i),
			Timestamp: t0.Add(-time.Duration(i+2) * 24 * time.Hour),
			Category:  model.CategoryViolation,
		})
	}

	// severity 3 vs ban threshold 3 + 0.9 - 0.5*2 = 2.9.
	res := sp.Evaluate(context.Background(), p, "gas the lot of them", model.EvalContext{}, t0)
	if res.Enforcement.Action != model.ActionBan {
		t.Fatalf("action = %s, want ban", res.Enforcement.Action)
	}
	if res.Enforcement.Permanent {
		t.Error("a first ban within the recidivism limit must be temporary")
	}
	if res.Enforcement.Duration != 24*time.Hour {
		t.Errorf("duration = %v, want 24h", res.Enforcement.Duration)
	}
}

func TestStrictBanBeatsRestrictOnTie(t *testing.T) {
	// Heavy recidivism drags the ban threshold below the restrict threshold;
	// the same severity must then resolve to a ban, never a restrict.
	sp := NewStrict(nil, nil, nil)
	p := strictProfile()
	p.TrustScore = 0.5
	for i := 0; i < 4; i++ {
		p.ViolationHistory = append(p.ViolationHistory, model.Violation{
			ID:        fmt.Sprintf("v%d", i),
			Timestamp: t0.Add(-time.Duration(i+1) * time.Hour),
		})
	}

	// severity = 2 (violation); restrict threshold 2.5; ban threshold
	// 3 + 0.5 - 0.5*4 = 1.5.
	res := sp.Evaluate(context.Background(), p, "send nudes", model.EvalContext{}, t0)
	if res.Enforcement.Action != model.ActionBan {
		t.Errorf("action = %s, want ban to win the tie-break", res.Enforcement.Action)
	}
}

func TestStrictLowTrustRaisesConfidence(t *testing.T) {
	sp := NewStrict(nil, nil, nil)

	// The same restricted-content message: the system is more certain about
	// a distrusted sender's violation.
	trusted := strictProfile()
	trusted.TrustScore = 0.9
	resTrusted := sp.Evaluate(context.Background(), trusted, "send nudes", model.EvalContext{}, t0)

	distrusted := strictProfile()
	distrusted.TrustScore = 0.1
	resDistrusted := sp.Evaluate(context.Background(), distrusted, "send nudes", model.EvalContext{}, t0)

	if resDistrusted.Confidence <= resTrusted.Confidence {
		t.Errorf("distrusted confidence %v should exceed trusted %v",
			resDistrusted.Confidence, resTrusted.Confidence)
	}
}

func TestStrictSharedRoomRaisesImpact(t *testing.T) {
	sp := NewStrict(nil, nil, nil)

	// Trust 0.75: restrict threshold 2.25. Severity 2 direct stays a warn;
	// the shared-room impact of 0.3 pushes it over into a restrict.
	direct := strictProfile()
	direct.TrustScore = 0.75
	resDirect := sp.Evaluate(context.Background(), direct, "send nudes", model.EvalContext{}, t0)

	shared := strictProfile()
	shared.TrustScore = 0.75
	resShared := sp.Evaluate(context.Background(), shared, "send nudes", model.EvalContext{SharedRoom: true}, t0)

	if model.ActionRank[resShared.Enforcement.Action] <= model.ActionRank[resDirect.Enforcement.Action] {
		t.Errorf("shared room action %s should outrank direct action %s",
			resShared.Enforcement.Action, resDirect.Enforcement.Action)
	}
}

func TestStrictRoomLengthLimit(t *testing.T) {
	sp := NewStrict(nil, nil, nil)
	p := strictProfile()

	room := &model.RoomRules{MaxMessageLength: 10}
	res := sp.Evaluate(context.Background(), p, "this message is longer than ten characters", model.EvalContext{Room: room}, t0)
	if res.Category != model.CategoryViolation {
		t.Errorf("category = %s, want violation for a room length breach", res.Category)
	}
}

func TestStrictFamilyFriendlyEscalates(t *testing.T) {
	sp := NewStrict(nil, nil, nil)
	p := strictProfile()

	room := &model.RoomRules{FamilyFriendly: true}
	res := sp.Evaluate(context.Background(), p, "send nudes", model.EvalContext{Room: room}, t0)
	if res.Category != model.CategorySevere {
		t.Errorf("category = %s, want severe in a family-friendly room", res.Category)
	}
}

func TestStrictNoLinksRoom(t *testing.T) {
	sp := NewStrict(nil, nil, nil)
	p := strictProfile()

	room := &model.RoomRules{NoLinks: true}
	res := sp.Evaluate(context.Background(), p, "check out https://example.com for details", model.EvalContext{Room: room}, t0)
	if res.Category != model.CategoryViolation {
		t.Errorf("category = %s, want violation for a link in a no-links room", res.Category)
	}
}

func TestStrictClassifierEscalatesSafeContent(t *testing.T) {
	cls := classify.Func(func(ctx context.Context, text string, meta map[string]string) (classify.Assessment, error) {
		return classify.Assessment{
			Allowed:    false,
			Confidence: 0.92,
			Reasons:    []string{"contextual harassment"},
			Category:   model.CategorySevere,
		}, nil
	})
	sp := NewStrict(nil, nil, cls)
	p := strictProfile()

	res := sp.Evaluate(context.Background(), p, "locally this looks completely fine", model.EvalContext{}, t0)
	if res.Allowed {
		t.Fatal("expected the classifier verdict to block locally-clean content")
	}
	if res.Category != model.CategorySevere {
		t.Errorf("category = %s, want the classifier's severe", res.Category)
	}
}

func TestStrictClassifierCannotWeakenLocalVerdict(t *testing.T) {
	cls := classify.Func(func(ctx context.Context, text string, meta map[string]string) (classify.Assessment, error) {
		return classify.Assessment{Allowed: true, Confidence: 0.99, Category: model.CategorySafe}, nil
	})
	sp := NewStrict(nil, nil, cls)
	p := strictProfile()

	res := sp.Evaluate(context.Background(), p, "just kill yourself already", model.EvalContext{}, t0)
	if res.Allowed {
		t.Error("a permissive classifier must never override a local prohibited match")
	}
	if res.Category != model.CategorySevere {
		t.Errorf("category = %s, want the local severe verdict", res.Category)
	}
}

func TestStrictClassifierFailureFailsOpen(t *testing.T) {
	cls := classify.Func(func(ctx context.Context, text string, meta map[string]string) (classify.Assessment, error) {
		return classify.Assessment{}, fmt.Errorf("connection refused")
	})
	sp := NewStrict(nil, nil, cls)
	p := strictProfile()

	res := sp.Evaluate(context.Background(), p, "an ordinary message about dinner plans", model.EvalContext{}, t0)
	if !res.Allowed {
		t.Error("classifier failure must not block clean content")
	}
}

func TestStrictClassifierFailureKeepsLocalBlock(t *testing.T) {
	cls := classify.Func(func(ctx context.Context, text string, meta map[string]string) (classify.Assessment, error) {
		return classify.Assessment{}, fmt.Errorf("connection refused")
	})
	sp := NewStrict(nil, nil, cls)
	p := strictProfile()

	res := sp.Evaluate(context.Background(), p, "just kill yourself already", model.EvalContext{}, t0)
	if res.Allowed {
		t.Error("local rules must still block when the classifier is down")
	}
}

func TestStrictWarnIsNotAppealable(t *testing.T) {
	sp := NewStrict(nil, nil, nil)
	p := strictProfile()
	p.TrustScore = 0.95

	res := sp.Evaluate(context.Background(), p, "send nudes", model.EvalContext{}, t0)
	if res.Enforcement.Action != model.ActionWarn {
		t.Fatalf("action = %s, want warn", res.Enforcement.Action)
	}
	if res.Enforcement.Appealable {
		t.Error("warns carry no standing restriction and are not appealable")
	}
}

func TestStrictTrustCapsAtOne(t *testing.T) {
	sp := NewStrict(nil, nil, nil)
	p := strictProfile()
	p.TrustScore = 0.999

	for i := 0; i < 5; i++ {
		sp.Evaluate(context.Background(), p, "another perfectly good message about books!", model.EvalContext{}, t0.Add(time.Duration(i)*time.Minute))
	}
	if p.TrustScore > profile.TrustMax {
		t.Errorf("trust = %v, exceeded %v", p.TrustScore, profile.TrustMax)
	}
}

func TestStrictBehavioralBlockCarriesFallbackReason(t *testing.T) {
	sp := NewStrict(nil, nil, nil)
	p := strictProfile()
	p.TrustScore = 0.9
	p.LastActivity = t0.Add(-100 * time.Millisecond)
	p.LastMessage = "same spam message again and again"

	// Rapid + duplicate + repetitive: three patterns, severity 1.5, over the
	// warn threshold of 1.1 with no content reason of its own.
	history := []model.Message{
		{Content: "same spam message again and again", Timestamp: t0.Add(-2 * time.Second)},
		{Content: "same spam message again and again", Timestamp: t0.Add(-time.Second)},
	}
	res := sp.Evaluate(context.Background(), p, "same spam message again and again", model.EvalContext{History: history}, t0)
	if res.Allowed {
		t.Fatalf("expected behavioral severity to cross the warn threshold: %+v", res)
	}
	if res.Enforcement.Action != model.ActionWarn {
		t.Errorf("action = %s, want warn", res.Enforcement.Action)
	}
	if len(res.Reasons) == 0 {
		t.Error("every block must carry at least one reason")
	}
}

func BenchmarkStrictEvaluate(b *testing.B) {
	sp := NewStrict(nil, nil, nil)
	p := strictProfile()
	evalCtx := model.EvalContext{
		History: []model.Message{
			{Content: "how was the game last night"},
			{Content: "the game was close until the final minutes"},
		},
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		sp.Evaluate(context.Background(), p, "the final minutes were incredible to watch", evalCtx, t0.Add(time.Duration(i)*time.Minute))
	}
}

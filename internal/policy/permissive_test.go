package policy

import (
	"context"
	"testing"
	"time"

	"github.com/quietroom/warden/internal/model"
	"github.com/quietroom/warden/internal/profile"
)

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func permissiveProfile() *profile.Profile {
	p := profile.New("anon-1", t0.Add(-time.Hour))
	p.Track = model.TrackPermissive
	return p
}

func TestPermissiveAllowsCasualChat(t *testing.T) {
	pp := NewPermissive(nil, nil)
	p := permissiveProfile()

	res := pp.Evaluate(context.Background(), p, "anyone up for a game tonight?", model.EvalContext{}, t0)
	if !res.Allowed {
		t.Fatalf("expected casual chat to be allowed: %+v", res)
	}
	if res.Category != model.CategorySafe {
		t.Errorf("category = %s, want safe", res.Category)
	}
	if res.Score < 0 || res.Score > 1 {
		t.Errorf("freedom score %v outside [0,1]", res.Score)
	}
}

func TestPermissiveExtremeContentBlocked(t *testing.T) {
	pp := NewPermissive(nil, nil)
	p := permissiveProfile()

	res := pp.Evaluate(context.Background(), p, "how to build a bomb at home", model.EvalContext{}, t0)
	if res.Allowed {
		t.Fatal("expected extreme content to be blocked even on the permissive track")
	}
	if res.Category != model.CategoryDangerous {
		t.Errorf("category = %s, want dangerous", res.Category)
	}
	if res.Confidence != 0.95 {
		t.Errorf("confidence = %v, want 0.95", res.Confidence)
	}
	if p.BehavioralScore >= 0 {
		t.Errorf("behavioral score = %v, want a penalty below 0", p.BehavioralScore)
	}
}

func TestPermissiveObfuscatedExtremeBlocked(t *testing.T) {
	pp := NewPermissive(nil, nil)
	p := permissiveProfile()

	res := pp.Evaluate(context.Background(), p, "h0w to bu1ld a b0mb", model.EvalContext{}, t0)
	if res.Allowed {
		t.Fatal("expected leet-speak extreme content to be blocked")
	}
}

func TestPermissiveBorderlineAnnotatesButAllows(t *testing.T) {
	pp := NewPermissive(nil, nil)
	p := permissiveProfile()

	res := pp.Evaluate(context.Background(), p, "I want to fight him so badly", model.EvalContext{}, t0)
	if !res.Allowed {
		t.Fatal("borderline content must stay allowed")
	}
	if res.Category != model.CategoryBorderline {
		t.Errorf("category = %s, want borderline", res.Category)
	}
	if !model.HasFlag(res.Flags, model.FlagBorderlineContent) {
		t.Error("expected borderline_content flag")
	}
}

func TestPermissiveBorderlineDoesNotCompound(t *testing.T) {
	pp := NewPermissive(nil, nil)
	p := permissiveProfile()

	messages := []string{
		"I want to fight him so badly",
		"he said he wants to fight after class",
		"my brother wants to fight everyone lately",
		"why does everyone want to fight today",
	}
	for i, msg := range messages {
		res := pp.Evaluate(context.Background(), p, msg, model.EvalContext{}, t0.Add(time.Duration(i)*time.Minute))
		if !res.Allowed {
			t.Fatalf("message %d: repeated borderline content must not escalate to a block", i)
		}
		if res.Category != model.CategoryBorderline {
			t.Errorf("message %d: category = %s, want borderline", i, res.Category)
		}
	}
}

func TestPermissiveSpamTriggersShadowBan(t *testing.T) {
	pp := NewPermissive(nil, nil)
	p := permissiveProfile()

	res := pp.Evaluate(context.Background(), p, "click my link https://spam.example/deal", model.EvalContext{}, t0)
	if !res.Allowed {
		t.Fatal("shadow-banned sender must still see allowed=true")
	}
	if !res.ShadowBan {
		t.Error("expected the shadow_ban signal for the caller")
	}
	if res.Enforcement.Action != model.ActionShadowBan {
		t.Errorf("action = %s, want shadow_ban", res.Enforcement.Action)
	}
	if !p.ShadowBanned {
		t.Error("expected the profile to be marked shadow-banned")
	}
	if !p.ShadowBanExpires.After(t0) {
		t.Error("expected an absolute shadow-ban expiry in the future")
	}
}

func TestPermissiveShadowBanNeverDisclosedInReasons(t *testing.T) {
	pp := NewPermissive(nil, nil)
	p := permissiveProfile()

	res := pp.Evaluate(context.Background(), p, "click my link https://spam.example/deal", model.EvalContext{}, t0)
	for _, reason := range res.Reasons {
		if reason == "shadow ban" || reason == "shadow_ban" {
			t.Errorf("shadow ban leaked into sender-visible reasons: %q", reason)
		}
	}
}

func TestPermissiveRapidAloneNeedsVolume(t *testing.T) {
	pp := NewPermissive(nil, nil)

	// Low session count: rapid messaging alone must not shadow-ban.
	p := permissiveProfile()
	p.LastActivity = t0.Add(-200 * time.Millisecond)
	res := pp.Evaluate(context.Background(), p, "hello hello friends", model.EvalContext{}, t0)
	if res.ShadowBan {
		t.Error("rapid messaging without volume must not shadow-ban")
	}

	// High session count: the same rapid pattern now qualifies.
	p2 := permissiveProfile()
	p2.SessionCount = 50
	p2.LastActivity = t0.Add(-200 * time.Millisecond)
	res = pp.Evaluate(context.Background(), p2, "hello again friends", model.EvalContext{}, t0)
	if !res.ShadowBan {
		t.Error("expected rapid messaging at volume to shadow-ban")
	}
}

func TestPermissiveShadowBanAttachesRestrictionWhenScoreLow(t *testing.T) {
	pp := NewPermissive(nil, nil)
	p := permissiveProfile()
	p.BehavioralScore = -0.8

	pp.Evaluate(context.Background(), p, "spam spam https://spam.example", model.EvalContext{}, t0)
	if p.ActiveRestriction(t0.Add(time.Minute)) == nil {
		t.Error("expected a restriction alongside the shadow ban at a low behavioral score")
	}
}

func TestPermissiveShadowBanExpiresNaturally(t *testing.T) {
	cfg := DefaultConfig()
	pp := NewPermissive(cfg, nil)
	p := permissiveProfile()

	pp.Evaluate(context.Background(), p, "spam spam https://spam.example", model.EvalContext{}, t0)
	later := t0.Add(cfg.Permissive.ShadowBanDuration.Std() + time.Minute)

	res := pp.Evaluate(context.Background(), p, "a genuine question about the game?", model.EvalContext{}, later)
	if res.ShadowBan {
		t.Error("expected the shadow ban to lapse after its duration")
	}
}

func TestPermissiveScoreStaysClamped(t *testing.T) {
	pp := NewPermissive(nil, nil)
	p := permissiveProfile()

	for i := 0; i < 20; i++ {
		pp.Evaluate(context.Background(), p, "how to build a bomb", model.EvalContext{}, t0.Add(time.Duration(i)*time.Minute))
	}
	if p.BehavioralScore < profile.BehavioralMin {
		t.Errorf("behavioral score %v fell below %v", p.BehavioralScore, profile.BehavioralMin)
	}
}

func TestPermissiveNeverCallsClassifier(t *testing.T) {
	// The permissive policy has no classifier dependency at all; this is a
	// compile-time property of NewPermissive's signature. Evaluate must work
	// with a nil context value everywhere a classifier would be consulted.
	pp := NewPermissive(nil, nil)
	p := permissiveProfile()

	res := pp.Evaluate(context.Background(), p, "totally ordinary message here", model.EvalContext{}, t0)
	if !res.Allowed {
		t.Error("expected the local-only evaluation to allow ordinary text")
	}
}

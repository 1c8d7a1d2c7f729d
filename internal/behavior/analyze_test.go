package behavior

import (
	"testing"
	"time"

	"github.com/quietroom/warden/internal/model"
	"github.com/quietroom/warden/internal/profile"
)

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func freshProfile() *profile.Profile {
	return profile.New("u1", t0.Add(-time.Hour))
}

func TestRapidMessagingFlag(t *testing.T) {
	p := freshProfile()
	p.LastActivity = t0.Add(-500 * time.Millisecond)

	res := Analyze(p, "hello there friend", nil, t0, DefaultConfig())
	if !model.HasFlag(res.Flags, model.FlagRapidMessaging) {
		t.Error("expected rapid_messaging for a 500ms gap")
	}
}

func TestNoRapidFlagAfterGap(t *testing.T) {
	p := freshProfile()
	p.LastActivity = t0.Add(-10 * time.Second)

	res := Analyze(p, "hello there friend", nil, t0, DefaultConfig())
	if model.HasFlag(res.Flags, model.FlagRapidMessaging) {
		t.Error("did not expect rapid_messaging after a 10s gap")
	}
}

func TestFirstMessageNeverRapid(t *testing.T) {
	p := freshProfile()

	res := Analyze(p, "hello there friend", nil, t0, DefaultConfig())
	if model.HasFlag(res.Flags, model.FlagRapidMessaging) {
		t.Error("a profile with no prior activity must not flag rapid_messaging")
	}
}

func TestLengthFlags(t *testing.T) {
	p := freshProfile()
	cfg := DefaultConfig()

	res := Analyze(p, "hi", nil, t0, cfg)
	if !model.HasFlag(res.Flags, model.FlagTooShort) {
		t.Error("expected too_short for a 2-char message")
	}

	long := make([]byte, cfg.MaxLength+1)
	for i := range long {
		long[i] = 'a' + byte(i%26)
	}
	res = Analyze(p, string(long), nil, t0, cfg)
	if !model.HasFlag(res.Flags, model.FlagTooLong) {
		t.Error("expected too_long above the cap")
	}
}

func TestCharRunFlagsSpam(t *testing.T) {
	p := freshProfile()

	res := Analyze(p, "yessssss way to go", nil, t0, DefaultConfig())
	if !model.HasFlag(res.Flags, model.FlagSpamPattern) {
		t.Error("expected spam_pattern for a 6-char run")
	}
}

func TestLinkFlagsSpam(t *testing.T) {
	p := freshProfile()

	res := Analyze(p, "look at https://example.com/deal now", nil, t0, DefaultConfig())
	if !model.HasFlag(res.Flags, model.FlagSpamPattern) {
		t.Error("expected spam_pattern for a raw link")
	}
}

func TestDuplicateOfLastMessageFlagsSpam(t *testing.T) {
	p := freshProfile()
	p.LastMessage = "buy my great product today"

	res := Analyze(p, "BUY my great product TODAY", nil, t0, DefaultConfig())
	if !model.HasFlag(res.Flags, model.FlagSpamPattern) {
		t.Error("expected spam_pattern for a case-folded duplicate")
	}
}

func TestRepetitiveContentAcrossHistory(t *testing.T) {
	p := freshProfile()
	history := []model.Message{
		{Content: "join my server now", Timestamp: t0.Add(-3 * time.Minute)},
		{Content: "something unrelated entirely", Timestamp: t0.Add(-2 * time.Minute)},
		{Content: "join my server now", Timestamp: t0.Add(-time.Minute)},
	}

	res := Analyze(p, "join my server now", history, t0, DefaultConfig())
	if !model.HasFlag(res.Flags, model.FlagRepetitiveContent) {
		t.Error("expected repetitive_content for two near-duplicates in the window")
	}
}

func TestGibberishFlag(t *testing.T) {
	p := freshProfile()

	res := Analyze(p, "xkcdqrtplmnb", nil, t0, DefaultConfig())
	if !model.HasFlag(res.Flags, model.FlagGibberish) {
		t.Error("expected gibberish for consonant soup")
	}
}

func TestShortTextNeverGibberish(t *testing.T) {
	if isGibberish("brb") {
		t.Error("texts under 4 letters must not be judged gibberish")
	}
}

func TestNormalSentenceNotGibberish(t *testing.T) {
	if isGibberish("the weather is nice today") {
		t.Error("did not expect a normal sentence to be gibberish")
	}
}

func TestQualityDeltaRewardsSubstance(t *testing.T) {
	p := freshProfile()

	res := Analyze(p, "What did you think of the ending of that film?", nil, t0, DefaultConfig())
	if res.QualityDelta <= 0 {
		t.Errorf("expected a positive delta for a substantive question, got %v", res.QualityDelta)
	}
}

func TestQualityDeltaPenalizesShort(t *testing.T) {
	p := freshProfile()

	res := Analyze(p, "k", nil, t0, DefaultConfig())
	if res.QualityDelta != -0.01 {
		t.Errorf("short message delta = %v, want -0.01", res.QualityDelta)
	}
}

func TestQualityDeltaPenalizesGibberish(t *testing.T) {
	p := freshProfile()

	res := Analyze(p, "zxcvbnmqwrtp", nil, t0, DefaultConfig())
	if res.QualityDelta != -0.02 {
		t.Errorf("gibberish delta = %v, want -0.02", res.QualityDelta)
	}
}

func TestConversationQualityNeedsHistory(t *testing.T) {
	p := freshProfile()

	res := Analyze(p, "hello there friend", nil, t0, DefaultConfig())
	if res.HasQuality {
		t.Error("quality must only be sampled when history is supplied")
	}
}

func TestConversationQualityEngagedExchange(t *testing.T) {
	p := freshProfile()
	history := []model.Message{
		{Content: "did you finish reading that mystery novel last night"},
		{Content: "yes the mystery novel ending completely surprised me"},
		{Content: "the ending surprised me too, what a twist"},
	}

	res := Analyze(p, "let's discuss the twist", history, t0, DefaultConfig())
	if !res.HasQuality {
		t.Fatal("expected a quality sample with history")
	}
	if res.Quality < 0.5 {
		t.Errorf("engaged exchange quality = %v, want >= 0.5", res.Quality)
	}
}

func TestConversationQualityLowForNoise(t *testing.T) {
	p := freshProfile()
	history := []model.Message{
		{Content: "k"},
		{Content: "hmm"},
		{Content: "zxcvbnmqwrtp"},
	}

	res := Analyze(p, "ok", history, t0, DefaultConfig())
	if !res.HasQuality {
		t.Fatal("expected a quality sample with history")
	}
	if res.Quality >= 0.3 {
		t.Errorf("noise quality = %v, want < 0.3", res.Quality)
	}
	if !model.HasFlag(res.Flags, model.FlagLowQuality) {
		t.Error("expected low_quality below the 0.3 floor")
	}
}

func TestWordOverlap(t *testing.T) {
	if got := wordOverlap("the red fox", "the red fox"); got != 1.0 {
		t.Errorf("identical overlap = %v, want 1.0", got)
	}
	if got := wordOverlap("alpha beta", "gamma delta"); got != 0 {
		t.Errorf("disjoint overlap = %v, want 0", got)
	}
	if got := wordOverlap("", "words here"); got != 0 {
		t.Errorf("empty overlap = %v, want 0", got)
	}
}

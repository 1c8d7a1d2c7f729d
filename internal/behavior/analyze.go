// Package behavior detects rate, repetition, and quality anomalies over a
// sliding window of a user's recent messages. Pure functions: no clocks, no
// stores, no network — deterministic given their inputs.
package behavior

import (
	"strings"
	"time"
	"unicode"

	"github.com/quietroom/warden/internal/model"
	"github.com/quietroom/warden/internal/profile"
)

// Config holds analyzer thresholds.
type Config struct {
	RapidThreshold time.Duration // min gap between messages before flagging
	MinLength      int           // shorter content flags too_short
	MaxLength      int           // longer content flags too_long
	RepeatRun      int           // run-length of one character flagging spam
}

// DefaultConfig returns the built-in analyzer thresholds.
func DefaultConfig() Config {
	return Config{
		RapidThreshold: time.Second,
		MinLength:      5,
		MaxLength:      1000,
		RepeatRun:      5,
	}
}

// Result is the outcome of one analysis pass. QualityDelta nudges the
// sender's score on every message regardless of classifier outcome.
type Result struct {
	Flags        []model.Flag
	QualityDelta float64

	// Quality is the conversational quality sample in [0,1]; valid only
	// when HasQuality is set (history was supplied).
	Quality    float64
	HasQuality bool
}

// Analyze inspects one message against the profile's recent state. The
// profile is read-only here; the caller applies QualityDelta.
func Analyze(p *profile.Profile, content string, history []model.Message, now time.Time, cfg Config) Result {
	var res Result

	// Rate: messages arriving faster than the threshold.
	if !p.LastActivity.IsZero() && now.Sub(p.LastActivity) < cfg.RapidThreshold {
		res.Flags = append(res.Flags, model.FlagRapidMessaging)
	}

	// Length bounds.
	trimmed := strings.TrimSpace(content)
	if len(trimmed) < cfg.MinLength {
		res.Flags = append(res.Flags, model.FlagTooShort)
	} else if len(trimmed) > cfg.MaxLength {
		res.Flags = append(res.Flags, model.FlagTooLong)
	}

	// Repetition and spam heuristics.
	if hasCharRun(content, cfg.RepeatRun) || hasRawLink(content) || nearDuplicate(content, p.LastMessage) {
		res.Flags = append(res.Flags, model.FlagSpamPattern)
	}
	if repeatsWithin(content, history) {
		res.Flags = append(res.Flags, model.FlagRepetitiveContent)
	}

	gib := isGibberish(content)
	if gib {
		res.Flags = append(res.Flags, model.FlagGibberish)
	}

	// Conversational quality only when prior history is supplied.
	if len(history) > 0 {
		res.Quality = conversationQuality(history)
		res.HasQuality = true
		if res.Quality < 0.3 {
			res.Flags = append(res.Flags, model.FlagLowQuality)
		}
	}

	res.QualityDelta = qualityDelta(trimmed, gib, cfg.MinLength)
	return res
}

// qualityDelta rewards substantive, well-formed messages and penalizes
// noise. Small magnitudes: trust moves slowly upward, sharply on violations.
func qualityDelta(content string, gibberish bool, minLen int) float64 {
	if len(content) < minLen {
		return -0.01
	}
	if gibberish {
		return -0.02
	}
	d := 0.0
	if len(content) > 20 {
		d += 0.01
	}
	if strings.ContainsAny(content, "?") {
		d += 0.005
	}
	if strings.HasSuffix(content, ".") || strings.HasSuffix(content, "!") || strings.HasSuffix(content, "?") {
		d += 0.005
	}
	return d
}

// conversationQuality blends turn-taking evidence with the fraction of
// substantive messages across the supplied window.
func conversationQuality(history []model.Message) float64 {
	substantive := 0
	for _, m := range history {
		if len(strings.TrimSpace(m.Content)) > 20 && !isGibberish(m.Content) {
			substantive++
		}
	}
	substFrac := float64(substantive) / float64(len(history))

	// Turn-taking: lexical overlap between consecutive turns above a
	// threshold signals an actual exchange rather than parallel monologue.
	engaged := 0
	pairs := 0
	for i := 1; i < len(history); i++ {
		pairs++
		if wordOverlap(history[i-1].Content, history[i].Content) > 0.1 {
			engaged++
		}
	}
	turnTaking := 0.5
	if pairs > 0 {
		turnTaking = float64(engaged) / float64(pairs)
	}

	q := 0.6*substFrac + 0.4*turnTaking
	if q < 0 {
		q = 0
	}
	if q > 1 {
		q = 1
	}
	return q
}

// hasCharRun reports a run of n or more identical characters.
func hasCharRun(s string, n int) bool {
	run := 0
	var last rune = -1
	for _, r := range s {
		if r == last {
			run++
			if run >= n {
				return true
			}
		} else {
			last = r
			run = 1
		}
	}
	return false
}

func hasRawLink(s string) bool {
	lower := strings.ToLower(s)
	return strings.Contains(lower, "http://") ||
		strings.Contains(lower, "https://") ||
		strings.Contains(lower, "www.")
}

// nearDuplicate compares against the previous message by word overlap.
func nearDuplicate(content, previous string) bool {
	if previous == "" {
		return false
	}
	if strings.EqualFold(strings.TrimSpace(content), strings.TrimSpace(previous)) {
		return true
	}
	return wordOverlap(content, previous) > 0.8
}

// repeatsWithin reports near-duplicates of content in the recent window.
func repeatsWithin(content string, history []model.Message) bool {
	hits := 0
	for _, m := range history {
		if nearDuplicate(content, m.Content) {
			hits++
			if hits >= 2 {
				return true
			}
		}
	}
	return false
}

// wordOverlap returns the Jaccard overlap of the two messages' word sets.
func wordOverlap(a, b string) float64 {
	wa := wordSet(a)
	wb := wordSet(b)
	if len(wa) == 0 || len(wb) == 0 {
		return 0
	}
	inter := 0
	for w := range wa {
		if wb[w] {
			inter++
		}
	}
	union := len(wa) + len(wb) - inter
	return float64(inter) / float64(union)
}

func wordSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(s)) {
		w = strings.TrimFunc(w, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsNumber(r) })
		if w != "" {
			set[w] = true
		}
	}
	return set
}

// isGibberish flags text whose vowel/consonant ratio falls outside [0.1, 3.0].
// Too few letters to judge is never gibberish.
func isGibberish(s string) bool {
	vowels, consonants := 0, 0
	for _, r := range strings.ToLower(s) {
		if !unicode.IsLetter(r) {
			continue
		}
		switch r {
		case 'a', 'e', 'i', 'o', 'u':
			vowels++
		default:
			consonants++
		}
	}
	letters := vowels + consonants
	if letters < 4 {
		return false
	}
	if consonants == 0 {
		return true // all vowels: ratio unbounded
	}
	ratio := float64(vowels) / float64(consonants)
	return ratio < 0.1 || ratio > 3.0
}

package model

// Flag is a typed behavioral tag attached to a single evaluation.
// Flags are transient: recomputed per message, never persisted.
type Flag string

const (
	FlagRapidMessaging    Flag = "rapid_messaging"
	FlagTooShort          Flag = "too_short"
	FlagTooLong           Flag = "too_long"
	FlagSpamPattern       Flag = "spam_pattern"
	FlagGibberish         Flag = "gibberish"
	FlagRepetitiveContent Flag = "repetitive_content"
	FlagBorderlineContent Flag = "borderline_content"
	FlagLowQuality        Flag = "low_quality"
)

// FlagClass groups flags for dominant-pattern aggregation.
type FlagClass string

const (
	ClassRate    FlagClass = "rate"
	ClassLength  FlagClass = "length"
	ClassSpam    FlagClass = "spam"
	ClassQuality FlagClass = "quality"
	ClassContent FlagClass = "content"
)

// Class returns the aggregation class of a flag.
func (f Flag) Class() FlagClass {
	switch f {
	case FlagRapidMessaging:
		return ClassRate
	case FlagTooShort, FlagTooLong:
		return ClassLength
	case FlagSpamPattern, FlagRepetitiveContent:
		return ClassSpam
	case FlagGibberish, FlagLowQuality:
		return ClassQuality
	case FlagBorderlineContent:
		return ClassContent
	default:
		return ClassQuality
	}
}

// HasFlag reports whether the slice contains the given flag.
func HasFlag(flags []Flag, f Flag) bool {
	for _, x := range flags {
		if x == f {
			return true
		}
	}
	return false
}

// DominantClass returns the most frequent flag class in the slice.
// Ties resolve to the class seen first; empty input returns "".
func DominantClass(flags []Flag) FlagClass {
	if len(flags) == 0 {
		return ""
	}
	counts := make(map[FlagClass]int, len(flags))
	order := make([]FlagClass, 0, len(flags))
	for _, f := range flags {
		c := f.Class()
		if counts[c] == 0 {
			order = append(order, c)
		}
		counts[c]++
	}
	best := order[0]
	for _, c := range order[1:] {
		if counts[c] > counts[best] {
			best = c
		}
	}
	return best
}

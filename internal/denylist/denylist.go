// Package denylist holds the local content pattern rules: the extreme-content
// hard floor, borderline annotation patterns, and the strict policy's
// prohibited/restricted category sets. All matching is local and independent
// of classifier health.
package denylist

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"
)

// Patterns holds the raw pattern strings organized by rule class.
type Patterns struct {
	// Extreme phrases are matched as normalized substrings; any hit is a
	// hard block regardless of classifier availability.
	Extreme []string `yaml:"extreme"`

	// Borderline regexes annotate but never block.
	Borderline []string `yaml:"borderline"`

	// Prohibited maps category name to regexes; a hit is a severe violation.
	Prohibited map[string][]string `yaml:"prohibited"`

	// Restricted maps category name to regexes; a hit is a standard violation.
	Restricted map[string][]string `yaml:"restricted"`
}

// Denylist holds compiled patterns for fast matching.
type Denylist struct {
	extreme    []string
	borderline []*regexp.Regexp
	prohibited map[string][]*regexp.Regexp
	restricted map[string][]*regexp.Regexp
	raw        Patterns
}

// New creates a Denylist from raw patterns, compiling regexes.
// Patterns that fail to compile are skipped.
func New(p Patterns) *Denylist {
	d := &Denylist{raw: p, prohibited: map[string][]*regexp.Regexp{}, restricted: map[string][]*regexp.Regexp{}}

	for _, phrase := range p.Extreme {
		d.extreme = append(d.extreme, Normalize(phrase))
	}
	for _, pat := range p.Borderline {
		if re, err := regexp.Compile("(?i)" + pat); err == nil {
			d.borderline = append(d.borderline, re)
		}
	}
	for cat, pats := range p.Prohibited {
		for _, pat := range pats {
			if re, err := regexp.Compile("(?i)" + pat); err == nil {
				d.prohibited[cat] = append(d.prohibited[cat], re)
			}
		}
	}
	for cat, pats := range p.Restricted {
		for _, pat := range pats {
			if re, err := regexp.Compile("(?i)" + pat); err == nil {
				d.restricted[cat] = append(d.restricted[cat], re)
			}
		}
	}
	return d
}

// NewDefault creates a Denylist with the hardcoded default patterns.
func NewDefault() *Denylist {
	return New(DefaultPatterns)
}

// Load reads a denylist from a YAML file. Empty path or missing file falls
// back to defaults; invalid YAML returns an error.
func Load(path string) (*Denylist, error) {
	if path == "" {
		return NewDefault(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewDefault(), nil
		}
		return nil, fmt.Errorf("read denylist: %w", err)
	}

	var p Patterns
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse denylist: %w", err)
	}

	return New(p), nil
}

// MatchExtreme checks the hard floor. Input is normalized before matching so
// obfuscated spellings still hit. Returns (blocked, matched phrase).
func (d *Denylist) MatchExtreme(text string) (bool, string) {
	cleaned := Normalize(text)
	words := strings.Fields(cleaned)

	for _, phrase := range d.extreme {
		if phrase == "" {
			continue
		}
		if strings.Contains(phrase, " ") {
			// Multi-word phrases match as substrings of the cleaned text.
			if strings.Contains(cleaned, phrase) {
				return true, phrase
			}
			continue
		}
		// Single words match on word boundaries: "skill" must not hit "kill".
		for _, w := range words {
			if w == phrase {
				return true, phrase
			}
		}
	}
	return false, ""
}

// MatchBorderline checks the annotation patterns. Returns (hit, pattern).
func (d *Denylist) MatchBorderline(text string) (bool, string) {
	for _, re := range d.borderline {
		if re.MatchString(text) {
			return true, re.String()
		}
	}
	return false, ""
}

// MatchProhibited checks the severe category sets in stable category order.
// Returns (category, pattern, true) on the first hit.
func (d *Denylist) MatchProhibited(text string) (string, string, bool) {
	return matchCategories(d.prohibited, prohibitedOrder, text)
}

// MatchRestricted checks the standard violation category sets.
func (d *Denylist) MatchRestricted(text string) (string, string, bool) {
	return matchCategories(d.restricted, restrictedOrder, text)
}

func matchCategories(sets map[string][]*regexp.Regexp, order []string, text string) (string, string, bool) {
	seen := make(map[string]bool, len(order))
	for _, cat := range order {
		seen[cat] = true
		for _, re := range sets[cat] {
			if re.MatchString(text) {
				return cat, re.String(), true
			}
		}
	}
	// Custom categories from config files, checked after the built-ins.
	for cat, res := range sets {
		if seen[cat] {
			continue
		}
		for _, re := range res {
			if re.MatchString(text) {
				return cat, re.String(), true
			}
		}
	}
	return "", "", false
}

// ToMap returns the raw patterns as a map for serialization.
func (d *Denylist) ToMap() map[string]any {
	return map[string]any{
		"extreme":    d.raw.Extreme,
		"borderline": d.raw.Borderline,
		"prohibited": d.raw.Prohibited,
		"restricted": d.raw.Restricted,
	}
}

// leet maps common obfuscation characters to their letter equivalents.
var leet = map[rune]rune{
	'@': 'a', '4': 'a',
	'3': 'e',
	'!': 'i', '1': 'i',
	'0': 'o',
	'$': 's', '5': 's',
	'7': 't', '+': 't',
	'а': 'a', 'е': 'e', 'і': 'i', 'о': 'o', 'р': 'p', // Cyrillic homoglyphs
}

var spaceRun = regexp.MustCompile(`\s+`)

// Normalize reduces text to a canonical lowercase form: obfuscation
// characters mapped to letters, non-letters collapsed to spaces, repeated
// letters collapsed ("rrraaapeee" → "rape").
func Normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range strings.ToLower(text) {
		if sub, ok := leet[r]; ok {
			r = sub
		}
		if unicode.IsLetter(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	collapsed := collapseRepeats(b.String())
	return strings.TrimSpace(spaceRun.ReplaceAllString(collapsed, " "))
}

// collapseRepeats reduces repeated letters to a single occurrence, leaving
// spaces intact for word separation.
func collapseRepeats(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	var last rune = -1
	for _, r := range text {
		if r == last && unicode.IsLetter(r) {
			continue
		}
		b.WriteRune(r)
		last = r
	}
	return b.String()
}

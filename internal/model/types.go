package model

import "time"

// Track selects which enforcement policy evaluates a message.
type Track string

const (
	TrackPermissive Track = "permissive"
	TrackStrict     Track = "strict"
)

// Category classifies the content risk of a single message.
type Category string

const (
	CategorySafe       Category = "safe"
	CategoryBorderline Category = "borderline"
	CategoryConcerning Category = "concerning"
	CategoryDangerous  Category = "dangerous"
	CategoryWarning    Category = "warning"
	CategoryViolation  Category = "violation"
	CategorySevere     Category = "severe"
)

// CategoryWeight maps a category to its severity score contribution.
func CategoryWeight(c Category) float64 {
	switch c {
	case CategorySevere, CategoryDangerous:
		return 3
	case CategoryViolation:
		return 2
	case CategoryWarning, CategoryConcerning, CategoryBorderline:
		return 1
	default:
		return 0
	}
}

// Action is the enforcement outcome applied to a message or sender.
type Action string

const (
	ActionAllow     Action = "allow"
	ActionWarn      Action = "warn"
	ActionMute      Action = "mute"
	ActionRestrict  Action = "restrict"
	ActionBan       Action = "ban"
	ActionShadowBan Action = "shadow_ban"
)

// ActionRank maps actions to a comparable integer for monotonic severity checks.
var ActionRank = map[Action]int{
	ActionAllow:     0,
	ActionShadowBan: 1,
	ActionWarn:      2,
	ActionMute:      3,
	ActionRestrict:  3,
	ActionBan:       4,
}

// RestrictionType is the kind of standing restriction on a profile.
type RestrictionType string

const (
	RestrictWarn RestrictionType = "warn"
	RestrictMute RestrictionType = "mute"
	RestrictBan  RestrictionType = "ban"
)

// Restriction is a time-bound limitation on a user identity.
// Expires is absolute so that sweeping is idempotent; a zero Expires with
// Permanent set means the restriction never lapses.
type Restriction struct {
	Type      RestrictionType `json:"type"`
	Expires   time.Time       `json:"expires"`
	Permanent bool            `json:"permanent,omitempty"`
	Reason    string          `json:"reason"`
}

// Active reports whether the restriction is in force at the given instant.
func (r Restriction) Active(now time.Time) bool {
	if r.Permanent {
		return true
	}
	return now.Before(r.Expires)
}

// AppealResult is the terminal outcome of a reviewed appeal.
type AppealResult string

const (
	AppealApproved AppealResult = "approved"
	AppealDenied   AppealResult = "denied"
)

// Violation is one recorded enforcement event. Entries are immutable once
// written except for the appeal fields, which flip exactly once.
type Violation struct {
	ID           string       `json:"id"`
	Timestamp    time.Time    `json:"timestamp"`
	Category     Category     `json:"category"`
	Severity     float64      `json:"severity"`
	Action       Action       `json:"action"`
	Appealed     bool         `json:"appealed,omitempty"`
	AppealResult AppealResult `json:"appeal_result,omitempty"`
}

// Message is one entry of recent conversation history supplied by the caller.
type Message struct {
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// RoomRules are caller-supplied per-room constraints folded into evaluation.
type RoomRules struct {
	MaxMessageLength int  `json:"max_message_length,omitempty"`
	FamilyFriendly   bool `json:"family_friendly,omitempty"`
	NoLinks          bool `json:"no_links,omitempty"`
}

// EvalContext carries optional context for a single evaluation.
type EvalContext struct {
	History     []Message  `json:"history,omitempty"`
	Room        *RoomRules `json:"room,omitempty"`
	SharedRoom  bool       `json:"shared_room,omitempty"`
	ReportCount int        `json:"report_count,omitempty"`
}

// Enforcement describes the consequence attached to a moderation result.
// Permanent is explicit; a zero Duration never means "forever" on its own.
type Enforcement struct {
	Action     Action        `json:"action"`
	Duration   time.Duration `json:"duration,omitempty"`
	Permanent  bool          `json:"permanent,omitempty"`
	Appealable bool          `json:"appealable"`
}

// ModerationResult is the per-message evaluation outcome. It is produced
// fresh for every message and never persisted verbatim.
type ModerationResult struct {
	Allowed     bool        `json:"allowed"`
	Confidence  float64     `json:"confidence"`
	Reasons     []string    `json:"reasons"`
	Category    Category    `json:"category"`
	Enforcement Enforcement `json:"enforcement"`

	// Score is the trust score (strict track) or freedom score (permissive
	// track) after this evaluation.
	Score float64 `json:"score"`

	Flags []Flag `json:"flags,omitempty"`

	// ShadowBan tells the caller to suppress fan-out to other participants
	// while the sender still sees Allowed=true. Never disclosed to the sender.
	ShadowBan bool `json:"shadow_ban,omitempty"`
}

// Blocked reports whether the message must not be delivered at all.
func (r ModerationResult) Blocked() bool {
	return !r.Allowed
}

package denylist

// DefaultPatterns is the built-in rule set. The extreme list is the
// classifier-independent hard floor: exploitation of minors, weapons and
// explosives instructions, and credible violent threats. Deployments extend
// these via the YAML denylist file; they cannot be disabled.
var DefaultPatterns = Patterns{
	Extreme: []string{
		"child porn",
		"child sexual",
		"csam",
		"sell minors",
		"exploit minors",
		"how to build a bomb",
		"how to make a bomb",
		"make a pipe bomb",
		"build an explosive",
		"make explosives at home",
		"buy illegal firearms",
		"untraceable gun",
		"i will kill you",
		"i will murder you",
		"going to kill your family",
		"school shooting plan",
	},
	Borderline: []string{
		`\b(kill|hurt|beat)\s+(him|her|them|you)\b`,
		`\bwant(s)?\s+to\s+fight\b`,
		`\b(buy|sell|score)\s+(drugs|weed|coke|meth)\b`,
		`\bhow\s+to\s+(steal|shoplift|pirate)\b`,
		`\b(stab|shoot|punch)\b`,
	},
	Prohibited: map[string][]string{
		"hate": {
			`\ball\s+\w+\s+(should|must)\s+die\b`,
			`\bgo\s+back\s+to\s+your\s+country\b`,
			`\b(subhuman|vermin)\b.*\b(people|race|group)\b`,
			`\bgas\s+the\b`,
		},
		"harassment": {
			`\bkill\s+yourself\b`,
			`\bkys\b`,
			`\bnobody\s+(likes|wants)\s+you\b`,
			`\byou\s+deserve\s+to\s+(die|suffer)\b`,
		},
		"violence": {
			`\bi\s+will\s+(find|hunt|come\s+for)\s+you\b`,
			`\bwatch\s+your\s+back\b`,
			`\bi\s+know\s+where\s+you\s+live\b`,
		},
		"illegal": {
			`\b(sell|selling|buy|buying)\s+(stolen|counterfeit)\b`,
			`\bcredit\s+card\s+(dump|fullz)\b`,
			`\bhire\s+a\s+hitman\b`,
		},
	},
	Restricted: map[string][]string{
		"spam": {
			`\b(click|tap)\s+(here|this\s+link)\b`,
			`\bfree\s+(money|crypto|gift\s*cards?)\b`,
			`\bearn\s+\$?\d+\s*(per|a)\s+(day|week)\b`,
			`\bdm\s+me\s+for\s+(promo|deal)s?\b`,
		},
		"inappropriate": {
			`\bsend\s+(nudes|pics)\b`,
			`\b(explicit|nsfw)\s+content\b`,
		},
	},
}

// Category check order: first match wins, so the order is part of the
// policy contract.
var (
	prohibitedOrder = []string{"hate", "harassment", "violence", "illegal"}
	restrictedOrder = []string{"spam", "inappropriate"}
)

// Package scenario runs YAML-defined moderation test cases through the
// policy pipeline. Cases within one scenario share a profile store and run
// in order, so escalation ladders can be asserted case by case.
package scenario

// Case is one message within a scenario.
type Case struct {
	// User defaults to a per-case synthetic id when empty. Reusing an id
	// across cases carries trust and violation history forward.
	User    string `yaml:"user,omitempty"`
	Track   string `yaml:"track,omitempty"`
	Content string `yaml:"content"`

	// Expect is the asserted outcome: allow, block, or shadow_ban.
	Expect string `yaml:"expect"`
}

// Scenario is a named collection of moderation test cases.
type Scenario struct {
	Name  string `yaml:"name"`
	Track string `yaml:"track,omitempty"`
	Cases []Case `yaml:"cases"`
}

// CaseResult is the outcome of evaluating one test case.
type CaseResult struct {
	Index    int    `json:"index"`
	Passed   bool   `json:"passed"`
	User     string `json:"user"`
	Content  string `json:"content"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
	Reason   string `json:"reason,omitempty"`
}

// RunResult is the outcome of running all cases in one scenario file.
type RunResult struct {
	File   string       `json:"file,omitempty"`
	Name   string       `json:"name"`
	Total  int          `json:"total"`
	Passed int          `json:"passed"`
	Failed int          `json:"failed"`
	Cases  []CaseResult `json:"cases"`
}

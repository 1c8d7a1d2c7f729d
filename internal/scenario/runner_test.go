package scenario

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/quietroom/warden/internal/denylist"
	"github.com/quietroom/warden/internal/policy"
)

func writeScenario(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestAllCasesPass(t *testing.T) {
	s := &Scenario{
		Name:  "basic allow",
		Track: "permissive",
		Cases: []Case{
			{Content: "hello everyone, how is your day going?", Expect: "allow"},
		},
	}

	result := Run(s, policy.DefaultConfig(), denylist.NewDefault())
	if result.Failed != 0 {
		t.Errorf("expected 0 failures, got %d: %+v", result.Failed, result.Cases)
	}
	if result.Passed != 1 {
		t.Errorf("expected 1 passed, got %d", result.Passed)
	}
}

func TestFailedAssertionDetected(t *testing.T) {
	s := &Scenario{
		Name:  "wrong expectation",
		Track: "strict",
		Cases: []Case{
			{Content: "hello everyone, how is your day going?", Expect: "block"},
		},
	}

	result := Run(s, policy.DefaultConfig(), denylist.NewDefault())
	if result.Failed != 1 {
		t.Errorf("expected 1 failure, got %d", result.Failed)
	}
	if result.Cases[0].Actual != "allow" {
		t.Errorf("actual = %q, want allow", result.Cases[0].Actual)
	}
}

func TestBlockOutcome(t *testing.T) {
	s := &Scenario{
		Name:  "strict threat",
		Track: "strict",
		Cases: []Case{
			{Content: "i will hunt you down", Expect: "block"},
		},
	}

	result := Run(s, policy.DefaultConfig(), denylist.NewDefault())
	if result.Failed != 0 {
		t.Errorf("expected 0 failures, got %+v", result.Cases)
	}
	if result.Cases[0].Reason == "" {
		t.Error("blocked case carries no reason")
	}
}

func TestShadowBanOutcome(t *testing.T) {
	s := &Scenario{
		Name:  "spam on the anonymous track",
		Track: "permissive",
		Cases: []Case{
			{Content: "click here for free money!!! http://spam.example.com", Expect: "shadow_ban"},
		},
	}

	result := Run(s, policy.DefaultConfig(), denylist.NewDefault())
	if result.Failed != 0 {
		t.Errorf("expected 0 failures, got %+v", result.Cases)
	}
}

func TestSharedUserCarriesHistory(t *testing.T) {
	// The same user id across cases keeps its profile, so a second
	// violation evaluates against recorded history.
	s := &Scenario{
		Name:  "escalation",
		Track: "strict",
		Cases: []Case{
			{User: "repeat", Content: "just kill yourself already", Expect: "block"},
			{User: "repeat", Content: "hello everyone, how is your day going?", Expect: "block"},
		},
	}

	result := Run(s, policy.DefaultConfig(), denylist.NewDefault())
	// Case 1 blocks and attaches a restriction; case 2 is clean content but
	// arrives while the restriction is active, so the gate blocks it too.
	if result.Failed != 0 {
		t.Errorf("expected 0 failures, got %+v", result.Cases)
	}
}

func TestCaseTrackOverride(t *testing.T) {
	s := &Scenario{
		Name:  "per-case track",
		Track: "permissive",
		Cases: []Case{
			{Content: "send nudes", Track: "strict", Expect: "block"},
			{Content: "send nudes", Expect: "allow"},
		},
	}

	result := Run(s, policy.DefaultConfig(), denylist.NewDefault())
	if result.Failed != 0 {
		t.Errorf("expected 0 failures, got %+v", result.Cases)
	}
}

func TestLoadAndRun(t *testing.T) {
	dir := t.TempDir()
	path := writeScenario(t, dir, "basic.yaml", `
name: file scenario
track: permissive
cases:
  - content: "hello everyone, how is your day going?"
    expect: allow
  - content: "i will kill you"
    expect: block
`)

	result, err := LoadAndRun(path, "", "")
	if err != nil {
		t.Fatalf("LoadAndRun: %v", err)
	}
	if result.File != path {
		t.Errorf("File = %q", result.File)
	}
	if result.Failed != 0 {
		t.Errorf("expected 0 failures, got %+v", result.Cases)
	}
}

func TestLoadAndRunBadYAML(t *testing.T) {
	dir := t.TempDir()
	path := writeScenario(t, dir, "broken.yaml", "cases: [\n")
	if _, err := LoadAndRun(path, "", ""); err == nil {
		t.Error("parse error not reported")
	}
}

func TestFormatText(t *testing.T) {
	results := []*RunResult{
		{Name: "good", Total: 2, Passed: 2},
		{Name: "bad", Total: 1, Failed: 1, Cases: []CaseResult{
			{Index: 1, User: "case-1", Content: "spam", Expected: "allow", Actual: "block"},
		}},
	}

	out := FormatText(results)
	if !strings.Contains(out, "PASS  good (2/2)") {
		t.Errorf("missing pass line:\n%s", out)
	}
	if !strings.Contains(out, "FAIL  bad (0/1)") {
		t.Errorf("missing fail line:\n%s", out)
	}
	if !strings.Contains(out, "2 of 3 cases passed. 1 of 2 scenarios failed.") {
		t.Errorf("missing summary:\n%s", out)
	}
}

func TestFormatJSON(t *testing.T) {
	results := []*RunResult{{Name: "s", Total: 1, Passed: 1}}
	out, err := FormatJSON(results)
	if err != nil {
		t.Fatalf("FormatJSON: %v", err)
	}
	if !strings.Contains(out, `"name": "s"`) {
		t.Errorf("unexpected JSON:\n%s", out)
	}
}

package scenario

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/quietroom/warden/internal/denylist"
	"github.com/quietroom/warden/internal/model"
	"github.com/quietroom/warden/internal/policy"
	"github.com/quietroom/warden/internal/profile"
)

// Run evaluates all cases in order against a fresh in-memory profile store.
// No classifier is consulted; scenarios assert local-rules behavior only.
func Run(s *Scenario, cfg *policy.Config, dl *denylist.Denylist) *RunResult {
	if cfg == nil {
		cfg = policy.DefaultConfig()
	}
	if dl == nil {
		dl = denylist.NewDefault()
	}

	permissive := policy.NewPermissive(cfg, dl)
	strict := policy.NewStrict(cfg, dl, nil)
	store := profile.NewMemoryStore()
	defer store.Close()

	result := &RunResult{
		Name:  s.Name,
		Total: len(s.Cases),
	}

	ctx := context.Background()
	// Cases are spaced out so back-to-back messages in one scenario do not
	// trip the rapid-messaging detector unless the scenario wants them to.
	now := time.Now().UTC()

	for i, c := range s.Cases {
		userID := c.User
		if userID == "" {
			userID = fmt.Sprintf("case-%d", i+1)
		}

		track := model.Track(c.Track)
		if track == "" {
			track = model.Track(s.Track)
		}
		if track == "" {
			track = model.TrackPermissive
		}

		var pol policy.Policy
		switch track {
		case model.TrackStrict:
			pol = strict
		default:
			pol = permissive
		}

		at := now.Add(time.Duration(i) * time.Minute)
		var res model.ModerationResult
		err := store.Update(ctx, userID, func(p *profile.Profile) error {
			p.Track = track
			res = pol.Evaluate(ctx, p, c.Content, model.EvalContext{}, at)
			return nil
		})

		cr := CaseResult{
			Index:    i + 1,
			User:     userID,
			Content:  truncate(c.Content, 60),
			Expected: strings.ToLower(c.Expect),
		}
		if err != nil {
			cr.Actual = "error"
			cr.Reason = err.Error()
		} else {
			cr.Actual = outcome(res)
			if len(res.Reasons) > 0 {
				cr.Reason = res.Reasons[0]
			}
		}

		if cr.Actual == cr.Expected {
			cr.Passed = true
			result.Passed++
		} else {
			result.Failed++
		}
		result.Cases = append(result.Cases, cr)
	}

	return result
}

func outcome(res model.ModerationResult) string {
	switch {
	case !res.Allowed:
		return "block"
	case res.ShadowBan:
		return "shadow_ban"
	default:
		return "allow"
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

// LoadAndRun loads a scenario YAML file, loads policy and denylist, and runs.
func LoadAndRun(path, policyPath, denylistPath string) (*RunResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario %s: %w", path, err)
	}

	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}

	cfg, err := policy.LoadConfig(policyPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	dl, err := denylist.Load(denylistPath)
	if err != nil {
		return nil, fmt.Errorf("load denylist: %w", err)
	}

	result := Run(&s, cfg, dl)
	result.File = path

	return result, nil
}

// Package appeal records appeal submissions against enforcement actions and
// their one-shot adjudication. Approval reverses the lingering effects of a
// decision by calling into the same per-profile-locked update path used by
// live evaluation — no cross-record transaction.
package appeal

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quietroom/warden/internal/model"
	"github.com/quietroom/warden/internal/profile"
)

// Status is the lifecycle state of an appeal.
type Status string

const (
	StatusPending     Status = "pending"
	StatusUnderReview Status = "under_review"
	StatusApproved    Status = "approved"
	StatusDenied      Status = "denied"
)

// Appeal is one appeal record. The pending→approved|denied transition
// happens exactly once; decided appeals never change again.
type Appeal struct {
	AppealID       string    `json:"appeal_id"`
	UserID         string    `json:"user_id"`
	ViolationID    string    `json:"violation_id"`
	Text           string    `json:"text"`
	SubmittedAt    time.Time `json:"submitted_at"`
	Status         Status    `json:"status"`
	ReviewedBy     string    `json:"reviewed_by,omitempty"`
	ReviewedAt     time.Time `json:"reviewed_at,omitempty"`
	DecisionReason string    `json:"decision_reason,omitempty"`
}

// Ledger manages appeal files on disk and applies approved reversals to the
// profile store.
type Ledger struct {
	dir      string
	profiles profile.Store
	mu       sync.Mutex
	now      func() time.Time
}

// NewLedger creates a Ledger backed by the given directory.
func NewLedger(dir string, profiles profile.Store) (*Ledger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create appeal directory: %w", err)
	}
	return &Ledger{dir: dir, profiles: profiles, now: time.Now}, nil
}

// SetClock overrides the ledger's clock. Test hook.
func (l *Ledger) SetClock(now func() time.Time) { l.now = now }

// Submit creates a pending appeal and returns its id. No profile side
// effects happen until review.
func (l *Ledger) Submit(userID, violationID, text string) (string, error) {
	if userID == "" || violationID == "" {
		return "", fmt.Errorf("appeal requires user and violation ids")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	a := Appeal{
		AppealID:    uuid.NewString(),
		UserID:      userID,
		ViolationID: violationID,
		Text:        text,
		SubmittedAt: l.now().UTC(),
		Status:      StatusPending,
	}
	if err := l.writeAtomic(a); err != nil {
		return "", err
	}
	return a.AppealID, nil
}

// StartReview moves a pending appeal to under_review. Advisory state for
// support tooling; Review accepts either state.
func (l *Ledger) StartReview(appealID, reviewerID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	a, err := l.read(appealID)
	if err != nil || a.Status != StatusPending {
		return false
	}
	a.Status = StatusUnderReview
	a.ReviewedBy = reviewerID
	return l.writeAtomic(*a) == nil
}

// Review adjudicates an appeal exactly once. Returns false when the appeal
// is unknown or already decided; the second call on any appeal is a no-op.
//
// On approval the matching active restrictions are removed, the violation is
// marked, and trust is partially restored (+0.1, capped). Denial records the
// outcome and leaves the profile untouched.
func (l *Ledger) Review(ctx context.Context, appealID, reviewerID string, decision model.AppealResult, reason string) bool {
	if decision != model.AppealApproved && decision != model.AppealDenied {
		return false
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	a, err := l.read(appealID)
	if err != nil {
		return false
	}
	if a.Status != StatusPending && a.Status != StatusUnderReview {
		return false
	}

	if decision == model.AppealApproved {
		if err := l.applyApproval(ctx, a); err != nil {
			return false
		}
		a.Status = StatusApproved
	} else {
		if err := l.markViolation(ctx, a, model.AppealDenied); err != nil {
			return false
		}
		a.Status = StatusDenied
	}

	a.ReviewedBy = reviewerID
	a.ReviewedAt = l.now().UTC()
	a.DecisionReason = reason
	return l.writeAtomic(*a) == nil
}

// applyApproval reverses the enforcement through the profile store's atomic
// update path.
func (l *Ledger) applyApproval(ctx context.Context, a *Appeal) error {
	now := l.now().UTC()
	return l.profiles.Update(ctx, a.UserID, func(p *profile.Profile) error {
		restrictType := model.RestrictMute
		for i := range p.ViolationHistory {
			v := &p.ViolationHistory[i]
			if v.ID == a.ViolationID {
				v.Appealed = true
				v.AppealResult = model.AppealApproved
				if v.Action == model.ActionBan {
					restrictType = model.RestrictBan
				}
				break
			}
		}

		kept := p.CurrentRestrictions[:0]
		for _, r := range p.CurrentRestrictions {
			if r.Type == restrictType && r.Active(now) {
				continue // reversed by the appeal
			}
			kept = append(kept, r)
		}
		p.CurrentRestrictions = kept

		p.TrustScore += 0.1
		return nil
	})
}

func (l *Ledger) markViolation(ctx context.Context, a *Appeal, result model.AppealResult) error {
	return l.profiles.Update(ctx, a.UserID, func(p *profile.Profile) error {
		for i := range p.ViolationHistory {
			if p.ViolationHistory[i].ID == a.ViolationID {
				p.ViolationHistory[i].Appealed = true
				p.ViolationHistory[i].AppealResult = result
				break
			}
		}
		return nil
	})
}

// Get returns one appeal by id.
func (l *Ledger) Get(appealID string) (*Appeal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.read(appealID)
}

// List returns all appeals ordered by submission time.
func (l *Ledger) List() ([]Appeal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries, err := os.ReadDir(l.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var appeals []Appeal
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		a, err := l.read(strings.TrimSuffix(e.Name(), ".json"))
		if err != nil {
			continue
		}
		appeals = append(appeals, *a)
	}
	sort.Slice(appeals, func(i, j int) bool {
		return appeals[i].SubmittedAt.Before(appeals[j].SubmittedAt)
	})
	return appeals, nil
}

// PendingCount returns the number of undecided appeals.
func (l *Ledger) PendingCount() (int, error) {
	appeals, err := l.List()
	if err != nil {
		return 0, err
	}
	n := 0
	for _, a := range appeals {
		if a.Status == StatusPending || a.Status == StatusUnderReview {
			n++
		}
	}
	return n, nil
}

func (l *Ledger) path(appealID string) string {
	return filepath.Join(l.dir, appealID+".json")
}

func (l *Ledger) read(appealID string) (*Appeal, error) {
	if strings.ContainsAny(appealID, "/\\") || strings.Contains(appealID, "..") {
		return nil, fmt.Errorf("invalid appeal id")
	}
	data, err := os.ReadFile(l.path(appealID))
	if err != nil {
		return nil, err
	}
	var a Appeal
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func (l *Ledger) writeAtomic(a Appeal) error {
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return err
	}
	path := l.path(a.AppealID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

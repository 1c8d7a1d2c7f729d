// Package audit is an append-only JSONL log of moderation decisions with
// SHA-256 hash chaining. Each entry's prev_hash is the hash of the previous
// entry's JSON line, forming a tamper-evident chain.
package audit

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/quietroom/warden/internal/model"
)

// GenesisHash is the prev_hash for the first entry in a new log.
const GenesisHash = "sha256:0000000000000000000000000000000000000000000000000000000000000000"

// Entry is one line in the decision log. All fields are flat (no
// map[string]any) to keep json.Marshal field order deterministic for
// reproducible hashing.
type Entry struct {
	Timestamp  string   `json:"ts"`
	UserID     string   `json:"user_id"`
	Track      string   `json:"track"`
	Category   string   `json:"category"`
	Action     string   `json:"action"`
	Allowed    bool     `json:"allowed"`
	ShadowBan  bool     `json:"shadow_ban,omitempty"`
	Confidence float64  `json:"confidence"`
	Flags      []string `json:"flags,omitempty"`
	Reason     string   `json:"reason,omitempty"`
	PrevHash   string   `json:"prev_hash"`
}

// FromResult flattens a moderation result into a log entry.
func FromResult(userID string, track model.Track, res model.ModerationResult) Entry {
	e := Entry{
		UserID:     userID,
		Track:      string(track),
		Category:   string(res.Category),
		Action:     string(res.Enforcement.Action),
		Allowed:    res.Allowed,
		ShadowBan:  res.ShadowBan,
		Confidence: res.Confidence,
	}
	for _, f := range res.Flags {
		e.Flags = append(e.Flags, string(f))
	}
	if len(res.Reasons) > 0 {
		e.Reason = res.Reasons[0]
	}
	return e
}

// Log appends hash-chained entries to a single file.
type Log struct {
	path     string
	file     *os.File
	prevHash string
	mu       sync.Mutex
}

// Open opens (or creates) a decision log for appending. An existing file's
// last line is read back to recover the chain tail.
func Open(path string) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("audit: create directory: %w", err)
	}

	prevHash := GenesisHash
	if info, err := os.Stat(path); err == nil && info.Size() > 0 {
		last, err := lastLine(path)
		if err != nil {
			return nil, err
		}
		if len(last) > 0 {
			prevHash = HashLine(last)
		}
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("audit: open file: %w", err)
	}

	return &Log{path: path, file: file, prevHash: prevHash}, nil
}

func lastLine(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("audit: read existing log: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	var last []byte
	for scanner.Scan() {
		last = append(last[:0], scanner.Bytes()...)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("audit: scan existing log: %w", err)
	}
	return last, nil
}

// Record appends an entry with hash chaining. It fills Timestamp when empty,
// sets PrevHash, writes the line, and syncs to disk.
func (l *Log) Record(entry Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if entry.Timestamp == "" {
		entry.Timestamp = time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
	}
	entry.PrevHash = l.prevHash

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("audit: marshal entry: %w", err)
	}
	if _, err := l.file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("audit: write entry: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("audit: sync: %w", err)
	}

	l.prevHash = HashLine(line)
	return nil
}

// Close flushes and closes the underlying file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

// HashLine returns "sha256:<hex>" of the given bytes.
func HashLine(line []byte) string {
	h := sha256.Sum256(line)
	return "sha256:" + hex.EncodeToString(h[:])
}

// VerifyResult holds the outcome of a hash chain verification.
type VerifyResult struct {
	Valid     bool   `json:"valid"`
	Lines     int    `json:"lines"`
	Error     string `json:"error,omitempty"`
	ErrorLine int    `json:"error_line,omitempty"`
}

// Verify reads a JSONL decision log and validates the hash chain. Returns
// Valid=true if the chain is intact, or details about the first broken link.
func Verify(path string) VerifyResult {
	f, err := os.Open(path)
	if err != nil {
		return VerifyResult{Error: fmt.Sprintf("open: %v", err)}
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	lineNum := 0
	var prev []byte

	for scanner.Scan() {
		lineNum++
		line := append([]byte(nil), scanner.Bytes()...)

		var entry Entry
		if err := json.Unmarshal(line, &entry); err != nil {
			return VerifyResult{Error: fmt.Sprintf("parse error: %v", err), ErrorLine: lineNum}
		}

		expected := GenesisHash
		if lineNum > 1 {
			expected = HashLine(prev)
		}
		if entry.PrevHash != expected {
			return VerifyResult{
				Error:     fmt.Sprintf("prev_hash mismatch: got %q, want %q", entry.PrevHash, expected),
				ErrorLine: lineNum,
			}
		}
		prev = line
	}
	if err := scanner.Err(); err != nil {
		return VerifyResult{Error: fmt.Sprintf("scan: %v", err), Lines: lineNum}
	}

	return VerifyResult{Valid: true, Lines: lineNum}
}

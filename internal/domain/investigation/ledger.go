package investigation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	// LedgerSchemaLegacy tags documents written before timestamps existed or
	// imported from a file; they may hold bare issue-number arrays.
	LedgerSchemaLegacy = 0
	// LedgerSchemaVersion is the timestamped map format.
	LedgerSchemaVersion = 1
)

// LedgerRecord is the persisted value for one investigated issue.
type LedgerRecord struct {
	InvestigatedAt time.Time `json:"investigatedAt"`
}

// LedgerEntry is the flattened view of one ledger record.
type LedgerEntry struct {
	Repository     string    `json:"repository"`
	IssueNumber    int       `json:"issueNumber"`
	InvestigatedAt time.Time `json:"investigatedAt"`
}

// Ledger maps repository -> issue number -> latest investigation time.
type Ledger map[string]map[int]LedgerRecord

// Lookup returns the latest investigation time for (repo, issue).
func (l Ledger) Lookup(repo string, issue int) (time.Time, bool) {
	issues, ok := l[repo]
	if !ok {
		return time.Time{}, false
	}
	rec, ok := issues[issue]
	if !ok {
		return time.Time{}, false
	}
	return rec.InvestigatedAt, true
}

// Has reports whether (repo, issue) was ever investigated.
func (l Ledger) Has(repo string, issue int) bool {
	_, ok := l.Lookup(repo, issue)
	return ok
}

// Record overwrites the investigation time for (repo, issue).
func (l Ledger) Record(repo string, issue int, at time.Time) {
	issues, ok := l[repo]
	if !ok {
		issues = make(map[int]LedgerRecord)
		l[repo] = issues
	}
	issues[issue] = LedgerRecord{InvestigatedAt: at.UTC()}
}

// Entries flattens the ledger sorted by repository then issue number.
func (l Ledger) Entries() []LedgerEntry {
	out := make([]LedgerEntry, 0, l.Len())
	for repo, issues := range l {
		for issue, rec := range issues {
			out = append(out, LedgerEntry{
				Repository:     repo,
				IssueNumber:    issue,
				InvestigatedAt: rec.InvestigatedAt,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Repository != out[j].Repository {
			return out[i].Repository < out[j].Repository
		}
		return out[i].IssueNumber < out[j].IssueNumber
	})
	return out
}

func (l Ledger) Len() int {
	n := 0
	for _, issues := range l {
		n += len(issues)
	}
	return n
}

// LegacyLedger is a decoded document that may still hold bare arrays.
type LegacyLedger struct {
	Current Ledger
	Legacy  map[string][]int
}

// NeedsMigration reports whether any repository still uses the array form.
func (l LegacyLedger) NeedsMigration() bool {
	return len(l.Legacy) > 0
}

// Migrate converts every legacy issue number to a record stamped with at.
// Records already in the timestamped form are kept as they are. It returns
// the merged ledger and the number of converted issues.
func (l LegacyLedger) Migrate(at time.Time) (Ledger, int) {
	out := make(Ledger, len(l.Current)+len(l.Legacy))
	for repo, issues := range l.Current {
		copied := make(map[int]LedgerRecord, len(issues))
		for issue, rec := range issues {
			copied[issue] = rec
		}
		out[repo] = copied
	}

	converted := 0
	for repo, issues := range l.Legacy {
		for _, issue := range issues {
			if out.Has(repo, issue) {
				continue
			}
			out.Record(repo, issue, at)
			converted++
		}
		if _, ok := out[repo]; !ok {
			out[repo] = make(map[int]LedgerRecord)
		}
	}
	return out, converted
}

// DecodeLedger decodes a document written at the current schema version.
func DecodeLedger(raw string) (Ledger, error) {
	if strings.TrimSpace(raw) == "" {
		return Ledger{}, nil
	}

	var stored map[string]map[string]LedgerRecord
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return Ledger{}, fmt.Errorf("%w: ledger: %v", ErrCorruptDocument, err)
	}

	out := make(Ledger, len(stored))
	for repo, issues := range stored {
		converted, err := convertIssueMap(repo, issues)
		if err != nil {
			return Ledger{}, err
		}
		out[repo] = converted
	}
	return out, nil
}

// DecodeLegacyLedger decodes a document of unknown age, accepting either
// representation per repository.
func DecodeLegacyLedger(raw string) (LegacyLedger, error) {
	out := LegacyLedger{Current: Ledger{}, Legacy: map[string][]int{}}
	if strings.TrimSpace(raw) == "" {
		return out, nil
	}

	var stored map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return LegacyLedger{}, fmt.Errorf("%w: ledger: %v", ErrCorruptDocument, err)
	}

	for repo, value := range stored {
		trimmed := bytes.TrimSpace(value)
		switch {
		case len(trimmed) > 0 && trimmed[0] == '[':
			issues, err := decodeLegacyIssues(repo, trimmed)
			if err != nil {
				return LegacyLedger{}, err
			}
			out.Legacy[repo] = issues
		case bytes.Equal(trimmed, []byte("null")):
			out.Current[repo] = make(map[int]LedgerRecord)
		default:
			var issues map[string]LedgerRecord
			if err := json.Unmarshal(trimmed, &issues); err != nil {
				return LegacyLedger{}, fmt.Errorf("%w: ledger repository %q: %v", ErrCorruptDocument, repo, err)
			}
			converted, err := convertIssueMap(repo, issues)
			if err != nil {
				return LegacyLedger{}, err
			}
			out.Current[repo] = converted
		}
	}
	return out, nil
}

func EncodeLedger(l Ledger) (string, error) {
	stored := make(map[string]map[string]LedgerRecord, len(l))
	for repo, issues := range l {
		converted := make(map[string]LedgerRecord, len(issues))
		for issue, rec := range issues {
			converted[strconv.Itoa(issue)] = rec
		}
		stored[repo] = converted
	}

	raw, err := json.Marshal(stored)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func convertIssueMap(repo string, issues map[string]LedgerRecord) (map[int]LedgerRecord, error) {
	out := make(map[int]LedgerRecord, len(issues))
	for key, rec := range issues {
		issue, err := strconv.Atoi(strings.TrimSpace(key))
		if err != nil || issue <= 0 {
			return nil, fmt.Errorf("%w: ledger repository %q has issue key %q", ErrCorruptDocument, repo, key)
		}
		out[issue] = rec
	}
	return out, nil
}

// decodeLegacyIssues accepts numbers and numeric strings.
func decodeLegacyIssues(repo string, raw []byte) ([]int, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("%w: ledger repository %q: %v", ErrCorruptDocument, repo, err)
	}

	out := make([]int, 0, len(items))
	for _, item := range items {
		var number int
		if err := json.Unmarshal(item, &number); err != nil {
			var text string
			if err := json.Unmarshal(item, &text); err != nil {
				return nil, fmt.Errorf("%w: %s in %q", ErrInvalidLegacyItem, string(item), repo)
			}
			parsed, err := strconv.Atoi(strings.TrimSpace(text))
			if err != nil {
				return nil, fmt.Errorf("%w: %q in %q", ErrInvalidLegacyItem, text, repo)
			}
			number = parsed
		}
		if number <= 0 {
			return nil, fmt.Errorf("%w: %d in %q", ErrInvalidLegacyItem, number, repo)
		}
		out = append(out, number)
	}
	return out, nil
}

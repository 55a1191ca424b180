// Package usage implements the usage ledger: it records single
// cost-bearing external calls and aggregates them across nested
// operations.
//
// A Summary is owned by the operation that created it until it is merged
// upward into a parent. Merging consumes the child: a summary can be
// merged into exactly one parent, which is what keeps the root's totals
// equal to the sum over all leaf records regardless of tree depth.
package usage

import (
	"encoding/json"
	"errors"
	"sort"
	"time"
)

// ErrAlreadyMerged is returned when a summary that was already merged into
// a parent is offered to a second parent.
var ErrAlreadyMerged = errors.New("usage summary already merged into a parent")

// AggregateModel labels a summary whose records span more than one
// distinct model or purpose, instead of inheriting a single model name.
const AggregateModel = "aggregate"

// Record captures one external inference call. Records are immutable once
// created.
type Record struct {
	Model     string        `json:"model"`
	Purpose   string        `json:"purpose"`
	Tokens    int           `json:"tokens"`
	Duration  time.Duration `json:"duration"`
	Timestamp time.Time     `json:"timestamp"`
}

// Summary aggregates usage records for one operation, including records
// merged up from nested sub-operations. The zero value is not usable;
// construct with NewSummary.
type Summary struct {
	records  []Record
	consumed bool
}

// NewSummary returns an empty summary. Cache hits finalize jobs with an
// empty summary since no inference cost was incurred.
func NewSummary() *Summary {
	return &Summary{}
}

// Record appends a new usage record for a single external call and
// returns it.
func (s *Summary) Record(model, purpose string, tokens int, duration time.Duration) Record {
	rec := Record{
		Model:     model,
		Purpose:   purpose,
		Tokens:    tokens,
		Duration:  duration,
		Timestamp: time.Now().UTC(),
	}
	s.records = append(s.records, rec)
	return rec
}

// Records returns the summary's records ordered by timestamp. The returned
// slice is a copy.
func (s *Summary) Records() []Record {
	out := make([]Record, len(s.records))
	copy(out, s.records)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

// Count returns the number of recorded external calls.
func (s *Summary) Count() int {
	return len(s.records)
}

// Empty reports whether no external calls were recorded.
func (s *Summary) Empty() bool {
	return len(s.records) == 0
}

// TotalTokens returns the sum of tokens across all records.
func (s *Summary) TotalTokens() int {
	total := 0
	for _, rec := range s.records {
		total += rec.Tokens
	}
	return total
}

// TotalDuration returns the sum of call durations across all records.
func (s *Summary) TotalDuration() time.Duration {
	var total time.Duration
	for _, rec := range s.records {
		total += rec.Duration
	}
	return total
}

// Model returns the single model name shared by every record, or
// AggregateModel when records span more than one distinct model or
// purpose. An empty summary has no model label.
func (s *Summary) Model() string {
	if len(s.records) == 0 {
		return ""
	}
	model := s.records[0].Model
	purpose := s.records[0].Purpose
	for _, rec := range s.records[1:] {
		if rec.Model != model || rec.Purpose != purpose {
			return AggregateModel
		}
	}
	return model
}

// Merge returns a new summary whose records are the union of parent and
// child, each record contributing exactly once. The child is consumed:
// offering it to a second parent returns ErrAlreadyMerged and leaves both
// inputs untouched. A nil child merges as empty.
func Merge(parent, child *Summary) (*Summary, error) {
	if child != nil && child.consumed {
		return nil, ErrAlreadyMerged
	}

	merged := &Summary{}
	if parent != nil {
		merged.records = append(merged.records, parent.records...)
	}
	if child != nil {
		merged.records = append(merged.records, child.records...)
		child.consumed = true
	}
	return merged, nil
}

// summaryJSON is the persisted shape: records plus derived totals, which
// makes stored documents self-describing without being load-bearing (the
// totals are recomputed from records on read).
type summaryJSON struct {
	Records       []Record `json:"records"`
	Count         int      `json:"count"`
	TotalTokens   int      `json:"total_tokens"`
	TotalDuration int64    `json:"total_duration_ms"`
	Model         string   `json:"model,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (s *Summary) MarshalJSON() ([]byte, error) {
	return json.Marshal(summaryJSON{
		Records:       s.Records(),
		Count:         s.Count(),
		TotalTokens:   s.TotalTokens(),
		TotalDuration: s.TotalDuration().Milliseconds(),
		Model:         s.Model(),
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Summary) UnmarshalJSON(data []byte) error {
	var doc summaryJSON
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	s.records = doc.Records
	s.consumed = false
	return nil
}

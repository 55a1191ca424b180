package usage_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexfold/alchemy-api/internal/usage"
)

func TestSummaryRecord(t *testing.T) {
	s := usage.NewSummary()
	assert.True(t, s.Empty())

	rec := s.Record("gemini-2.0-flash", "transcription", 120, 300*time.Millisecond)
	assert.Equal(t, "gemini-2.0-flash", rec.Model)
	assert.Equal(t, 120, rec.Tokens)
	assert.False(t, rec.Timestamp.IsZero())

	s.Record("gemini-2.0-flash", "transcription", 80, 200*time.Millisecond)

	assert.False(t, s.Empty())
	assert.Equal(t, 2, s.Count())
	assert.Equal(t, 200, s.TotalTokens())
	assert.Equal(t, 500*time.Millisecond, s.TotalDuration())
	assert.Equal(t, "gemini-2.0-flash", s.Model())
}

func TestSummaryModelLabel(t *testing.T) {
	t.Run("empty summary has no label", func(t *testing.T) {
		assert.Equal(t, "", usage.NewSummary().Model())
	})

	t.Run("mixed models become aggregate", func(t *testing.T) {
		s := usage.NewSummary()
		s.Record("gemini-2.0-flash", "translation", 10, time.Millisecond)
		s.Record("gemini-2.0-pro", "translation", 10, time.Millisecond)
		assert.Equal(t, usage.AggregateModel, s.Model())
	})

	t.Run("mixed purposes become aggregate", func(t *testing.T) {
		s := usage.NewSummary()
		s.Record("gemini-2.0-flash", "translation", 10, time.Millisecond)
		s.Record("gemini-2.0-flash", "extraction", 10, time.Millisecond)
		assert.Equal(t, usage.AggregateModel, s.Model())
	})
}

func TestMerge(t *testing.T) {
	t.Run("union with exact-once contribution", func(t *testing.T) {
		parent := usage.NewSummary()
		parent.Record("gemini-2.0-flash", "rendering", 50, time.Second)

		child := usage.NewSummary()
		child.Record("gemini-2.0-flash", "rendering", 30, time.Second)

		merged, err := usage.Merge(parent, child)
		require.NoError(t, err)
		assert.Equal(t, 2, merged.Count())
		assert.Equal(t, 80, merged.TotalTokens())
	})

	t.Run("child cannot be merged twice", func(t *testing.T) {
		child := usage.NewSummary()
		child.Record("gemini-2.0-flash", "extraction", 30, time.Second)

		first, err := usage.Merge(usage.NewSummary(), child)
		require.NoError(t, err)
		assert.Equal(t, 30, first.TotalTokens())

		other := usage.NewSummary()
		_, err = usage.Merge(other, child)
		assert.ErrorIs(t, err, usage.ErrAlreadyMerged)
		// The second parent is untouched.
		assert.True(t, other.Empty())
	})

	t.Run("nil child merges as empty", func(t *testing.T) {
		parent := usage.NewSummary()
		parent.Record("gemini-2.0-flash", "extraction", 5, time.Second)

		merged, err := usage.Merge(parent, nil)
		require.NoError(t, err)
		assert.Equal(t, 5, merged.TotalTokens())
	})

	t.Run("nil parent merges as empty", func(t *testing.T) {
		child := usage.NewSummary()
		child.Record("gemini-2.0-flash", "extraction", 7, time.Second)

		merged, err := usage.Merge(nil, child)
		require.NoError(t, err)
		assert.Equal(t, 7, merged.TotalTokens())
	})
}

// TestUsageConservation builds call trees of increasing depth and checks
// that the root's total token count equals the sum over all leaf records,
// regardless of merge order.
func TestUsageConservation(t *testing.T) {
	const tokensPerLeaf = 13
	const leavesPerNode = 2

	// build constructs a subtree of the given depth and returns its summary
	// and the number of leaf records underneath it.
	var build func(t *testing.T, depth int) (*usage.Summary, int)
	build = func(t *testing.T, depth int) (*usage.Summary, int) {
		s := usage.NewSummary()
		if depth == 0 {
			s.Record("gemini-2.0-flash", "extraction", tokensPerLeaf, time.Millisecond)
			return s, 1
		}

		leaves := 0
		for i := 0; i < leavesPerNode; i++ {
			child, n := build(t, depth-1)
			merged, err := usage.Merge(s, child)
			require.NoError(t, err)
			s = merged
			leaves += n
		}
		return s, leaves
	}

	for depth := 1; depth <= 5; depth++ {
		root, leaves := build(t, depth)
		assert.Equal(t, leaves*tokensPerLeaf, root.TotalTokens(),
			"depth %d: root total must equal sum over %d leaves", depth, leaves)
		assert.Equal(t, leaves, root.Count())
	}
}

func TestSummaryJSONRoundTrip(t *testing.T) {
	s := usage.NewSummary()
	s.Record("gemini-2.0-flash", "transcription", 100, 250*time.Millisecond)
	s.Record("gemini-2.0-pro", "translation", 40, 100*time.Millisecond)

	data, err := json.Marshal(s)
	require.NoError(t, err)

	// Derived totals are present in the stored document.
	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.EqualValues(t, 140, doc["total_tokens"])
	assert.EqualValues(t, 2, doc["count"])
	assert.Equal(t, usage.AggregateModel, doc["model"])

	var back usage.Summary
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, 140, back.TotalTokens())
	assert.Equal(t, 2, back.Count())
	assert.Equal(t, 350*time.Millisecond, back.TotalDuration())
}

func TestRecordsOrderedByTimestamp(t *testing.T) {
	s := usage.NewSummary()
	s.Record("m", "p", 1, 0)
	s.Record("m", "p", 2, 0)
	s.Record("m", "p", 3, 0)

	records := s.Records()
	require.Len(t, records, 3)
	for i := 1; i < len(records); i++ {
		assert.False(t, records[i].Timestamp.Before(records[i-1].Timestamp))
	}
}

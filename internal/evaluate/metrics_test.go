package evaluate

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func rankedList(ids ...int64) []RankedItem {
	items := make([]RankedItem, len(ids))
	for i, id := range ids {
		items[i] = RankedItem{ProductID: id, Position: i + 1}
	}
	return items
}

func TestPerfectRanking(t *testing.T) {
	// Ten results whose judgments already descend: [3,3,3,3,2,2,1,1,0,0].
	grades := []int{3, 3, 3, 3, 2, 2, 1, 1, 0, 0}
	results := rankedList(1, 2, 3, 4, 5, 6, 7, 8, 9, 10)
	judgments := make([]Judgment, len(grades))
	for i, g := range grades {
		judgments[i] = Judgment{ProductID: int64(i + 1), Relevance: g}
	}

	report := Evaluate(results, judgments, 10)
	assert.InDelta(t, 1.0, report.NDCG, 1e-9)
	assert.InDelta(t, 1.0, report.Recall, 1e-9)
	assert.InDelta(t, 0.8, report.Precision, 1e-9)
	assert.InDelta(t, 1.0, report.MRR, 1e-9)
	assert.InDelta(t, 1.0, report.AP, 1e-9)
}

func TestNDCG(t *testing.T) {
	t.Run("reversed ranking scores below one", func(t *testing.T) {
		judgments := []Judgment{
			{ProductID: 1, Relevance: 3},
			{ProductID: 2, Relevance: 0},
		}
		worst := rankedList(2, 1)
		got := NDCG(worst, judgments, 10)
		assert.Greater(t, got, 0.0)
		assert.Less(t, got, 1.0)

		// DCG puts the grade-3 item at position 2: 7/log2(3).
		want := (7 / math.Log2(3)) / 7
		assert.InDelta(t, want, got, 1e-9)
	})

	t.Run("no relevant judgments yields zero", func(t *testing.T) {
		judgments := []Judgment{{ProductID: 1, Relevance: 0}}
		assert.Zero(t, NDCG(rankedList(1), judgments, 10))
	})

	t.Run("unjudged results contribute no gain", func(t *testing.T) {
		judgments := []Judgment{{ProductID: 5, Relevance: 2}}
		assert.Zero(t, DCG(rankedList(1, 2, 3), judgments, 10))
	})

	t.Run("cutoff truncates", func(t *testing.T) {
		judgments := []Judgment{
			{ProductID: 1, Relevance: 0},
			{ProductID: 2, Relevance: 3},
		}
		// k=1 only sees the irrelevant first result.
		assert.Zero(t, DCG(rankedList(1, 2), judgments, 1))
	})
}

func TestRecall(t *testing.T) {
	judgments := []Judgment{
		{ProductID: 1, Relevance: 2},
		{ProductID: 2, Relevance: 1},
		{ProductID: 3, Relevance: 3},
		{ProductID: 4, Relevance: 0},
	}

	t.Run("partial retrieval", func(t *testing.T) {
		assert.InDelta(t, 2.0/3, Recall(rankedList(1, 2, 99), judgments, 10), 1e-9)
	})

	t.Run("k smaller than results", func(t *testing.T) {
		assert.InDelta(t, 1.0/3, Recall(rankedList(1, 2, 3), judgments, 1), 1e-9)
	})

	t.Run("no relevant items yields zero", func(t *testing.T) {
		none := []Judgment{{ProductID: 1, Relevance: 0}}
		assert.Zero(t, Recall(rankedList(1), none, 10))
	})
}

func TestPrecision(t *testing.T) {
	judgments := []Judgment{
		{ProductID: 1, Relevance: 2},
		{ProductID: 2, Relevance: 0},
	}

	t.Run("divisor is result length when short of k", func(t *testing.T) {
		// One relevant of two results; k=10 must not dilute to 1/10.
		assert.InDelta(t, 0.5, Precision(rankedList(1, 2), judgments, 10), 1e-9)
	})

	t.Run("divisor is k when results exceed it", func(t *testing.T) {
		assert.InDelta(t, 1.0, Precision(rankedList(1, 2), judgments, 1), 1e-9)
	})

	t.Run("empty results", func(t *testing.T) {
		assert.Zero(t, Precision(nil, judgments, 10))
	})
}

func TestMRR(t *testing.T) {
	judgments := []Judgment{{ProductID: 7, Relevance: 2}}

	assert.InDelta(t, 1.0, MRR(rankedList(7, 8), judgments), 1e-9)
	assert.InDelta(t, 1.0/3, MRR(rankedList(8, 9, 7), judgments), 1e-9)
	assert.Zero(t, MRR(rankedList(8, 9), judgments))
	assert.Zero(t, MRR(nil, judgments))
}

func TestAveragePrecision(t *testing.T) {
	judgments := []Judgment{
		{ProductID: 1, Relevance: 1},
		{ProductID: 3, Relevance: 1},
	}

	// Relevant at positions 1 and 3: AP = (1/1 + 2/3)/2.
	got := AveragePrecision(rankedList(1, 2, 3), judgments)
	assert.InDelta(t, (1.0+2.0/3)/2, got, 1e-9)

	t.Run("missing relevant items lower the score", func(t *testing.T) {
		got := AveragePrecision(rankedList(1, 2), judgments)
		assert.InDelta(t, 0.5, got, 1e-9)
	})

	t.Run("no relevant items", func(t *testing.T) {
		none := []Judgment{{ProductID: 1, Relevance: 0}}
		assert.Zero(t, AveragePrecision(rankedList(1), none))
	})
}

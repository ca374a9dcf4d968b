// Package evaluate computes standard offline IR metrics (nDCG, recall,
// precision, MRR, AP) over ranked results and graded relevance judgments,
// plus an automatic judgment synthesizer for catalogs without human labels.
package evaluate

import (
	"math"
	"sort"
)

// RankedItem is one result entering the evaluator: a product at a 1-based
// position with its final score.
type RankedItem struct {
	ProductID  int64
	Position   int
	FinalScore float64
}

// Judgment grades one product's relevance to a query on the standard 0-3
// scale.
type Judgment struct {
	ProductID int64
	Relevance int
}

// RelevanceThreshold is the minimum grade counted as relevant for recall,
// precision, MRR, and AP.
const RelevanceThreshold = 1

// Report bundles every metric computed for one (results, judgments, k)
// triple.
type Report struct {
	NDCG      float64
	Recall    float64
	Precision float64
	MRR       float64
	AP        float64
	K         int
}

// Evaluate computes the full metric report at cutoff k.
func Evaluate(results []RankedItem, judgments []Judgment, k int) Report {
	return Report{
		NDCG:      NDCG(results, judgments, k),
		Recall:    Recall(results, judgments, k),
		Precision: Precision(results, judgments, k),
		MRR:       MRR(results, judgments),
		AP:        AveragePrecision(results, judgments),
		K:         k,
	}
}

func judgmentMap(judgments []Judgment) map[int64]int {
	m := make(map[int64]int, len(judgments))
	for _, j := range judgments {
		m[j.ProductID] = j.Relevance
	}
	return m
}

func gain(relevance int) float64 {
	return math.Exp2(float64(relevance)) - 1
}

// DCG returns the discounted cumulative gain of the ranked list at cutoff k.
// Unjudged products contribute zero gain.
func DCG(results []RankedItem, judgments []Judgment, k int) float64 {
	rel := judgmentMap(judgments)

	n := len(results)
	if k < n {
		n = k
	}

	var dcg float64
	for i := 0; i < n; i++ {
		dcg += gain(rel[results[i].ProductID]) / math.Log2(float64(i+2))
	}
	return dcg
}

// IDCG returns the ideal DCG at cutoff k: the judgments sorted by relevance
// descending are treated as a perfect ranking.
func IDCG(judgments []Judgment, k int) float64 {
	grades := make([]int, len(judgments))
	for i, j := range judgments {
		grades[i] = j.Relevance
	}
	sort.Sort(sort.Reverse(sort.IntSlice(grades)))

	n := len(grades)
	if k < n {
		n = k
	}

	var idcg float64
	for i := 0; i < n; i++ {
		idcg += gain(grades[i]) / math.Log2(float64(i+2))
	}
	return idcg
}

// NDCG returns DCG normalized by the ideal ranking; 0 when no gain is
// achievable.
func NDCG(results []RankedItem, judgments []Judgment, k int) float64 {
	idcg := IDCG(judgments, k)
	if idcg == 0 {
		return 0
	}
	return DCG(results, judgments, k) / idcg
}

func relevantCount(judgments []Judgment) int {
	var n int
	for _, j := range judgments {
		if j.Relevance >= RelevanceThreshold {
			n++
		}
	}
	return n
}

func relevantInTopK(results []RankedItem, rel map[int64]int, k int) int {
	n := len(results)
	if k < n {
		n = k
	}
	var hits int
	for i := 0; i < n; i++ {
		if rel[results[i].ProductID] >= RelevanceThreshold {
			hits++
		}
	}
	return hits
}

// Recall returns the fraction of all relevant products retrieved in the top
// k, over the full judgment set. 0 when no relevant items exist.
func Recall(results []RankedItem, judgments []Judgment, k int) float64 {
	total := relevantCount(judgments)
	if total == 0 {
		return 0
	}
	return float64(relevantInTopK(results, judgmentMap(judgments), k)) / float64(total)
}

// Precision returns the fraction of the top k that is relevant. The divisor
// is the actual result length when fewer than k results exist.
func Precision(results []RankedItem, judgments []Judgment, k int) float64 {
	denom := len(results)
	if k < denom {
		denom = k
	}
	if denom == 0 {
		return 0
	}
	return float64(relevantInTopK(results, judgmentMap(judgments), k)) / float64(denom)
}

// MRR returns the reciprocal rank of the first relevant result, or 0 when
// none is relevant.
func MRR(results []RankedItem, judgments []Judgment) float64 {
	rel := judgmentMap(judgments)
	for i, r := range results {
		if rel[r.ProductID] >= RelevanceThreshold {
			return 1 / float64(i+1)
		}
	}
	return 0
}

// AveragePrecision returns the mean of precision-at-i over every relevant
// position, divided by the total number of relevant items.
func AveragePrecision(results []RankedItem, judgments []Judgment) float64 {
	total := relevantCount(judgments)
	if total == 0 {
		return 0
	}

	rel := judgmentMap(judgments)
	var sum float64
	var hits int
	for i, r := range results {
		if rel[r.ProductID] >= RelevanceThreshold {
			hits++
			sum += float64(hits) / float64(i+1)
		}
	}
	return sum / float64(total)
}

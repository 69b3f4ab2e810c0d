package service

import (
	"edutest_backend/internal/model"
	"edutest_backend/internal/util"
	"math"
	"sort"
)

type TierStat struct {
	Tier    model.Difficulty `json:"tier"`
	Correct int              `json:"correct"`
	Total   int              `json:"total"`
	Percent int              `json:"percent"`
}

// Breakdown holds one entry per tier, in tier order.
type Breakdown []TierStat

func newBreakdown() Breakdown {
	b := make(Breakdown, len(model.Tiers))
	for i, t := range model.Tiers {
		b[i].Tier = t
	}
	return b
}

func (b Breakdown) add(test model.Test, answers model.AnswerSet) {
	for _, q := range test.Questions {
		i := q.Difficulty.Rank()
		if i < 0 {
			continue
		}
		b[i].Total++
		if a, ok := answers[q.ID]; ok && a == q.CorrectAnswer {
			b[i].Correct++
		}
	}
}

func (b Breakdown) finish() Breakdown {
	for i := range b {
		b[i].Percent = percent(b[i].Correct, b[i].Total)
	}
	return b
}

// Total returns the question count across every tier.
func (b Breakdown) Total() int {
	n := 0
	for _, s := range b {
		n += s.Total
	}
	return n
}

func percent(part, total int) int {
	if total == 0 {
		return 0
	}
	return (200*part + total) / (2 * total)
}

// Catalog resolves tests by id.
type Catalog interface {
	FindByID(id string) (model.Test, bool)
}

func ForSubmission(sub model.Submission, test model.Test) Breakdown {
	b := newBreakdown()
	b.add(test, sub.Answers)
	return b.finish()
}

// Aggregate sums tier accuracy over every submission whose test is still in
// the catalog. Orphaned submissions are skipped.
func Aggregate(subs []model.Submission, catalog Catalog) Breakdown {
	b := newBreakdown()
	for _, sub := range subs {
		test, ok := catalog.FindByID(sub.TestID)
		if !ok {
			continue
		}
		b.add(test, sub.Answers)
	}
	return b.finish()
}

// Blueprint is the tier matrix of one test.
func Blueprint(test model.Test) Breakdown {
	b := newBreakdown()
	for _, q := range test.Questions {
		if i := q.Difficulty.Rank(); i >= 0 {
			b[i].Total++
		}
	}
	n := len(test.Questions)
	for i := range b {
		b[i].Percent = percent(b[i].Total, n)
	}
	return b
}

type Bucket struct {
	Label string  `json:"label"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Count int     `json:"count"`
}

// histogramBounds are lower bounds. The last bucket includes 10.
var histogramBounds = []struct {
	label string
	min   float64
	max   float64
}{
	{"0-3", 0, 3.5},
	{"4-5", 3.5, 5},
	{"5-7", 5, 7},
	{"7-8", 7, 9},
	{"9-10", 9, 10},
}

func BucketIndex(score float64) int {
	for i := len(histogramBounds) - 1; i > 0; i-- {
		if score >= histogramBounds[i].min {
			return i
		}
	}
	return 0
}

type Summary struct {
	Count     int      `json:"count"`
	MeanScore float64  `json:"meanScore"`
	PassRate  float64  `json:"passRate"`
	Histogram []Bucket `json:"histogram"`
}

const PassingScore = 5.0

func Summarize(subs []model.Submission) Summary {
	s := Summary{Count: len(subs), Histogram: make([]Bucket, len(histogramBounds))}
	for i, h := range histogramBounds {
		s.Histogram[i] = Bucket{Label: h.label, Min: h.min, Max: h.max}
	}
	if len(subs) == 0 {
		return s
	}

	var sum float64
	passed := 0
	for _, sub := range subs {
		sum += sub.Score
		if sub.Score >= PassingScore {
			passed++
		}
		s.Histogram[BucketIndex(sub.Score)].Count++
	}
	s.MeanScore = math.Round(sum/float64(len(subs))*10) / 10
	s.PassRate = float64(passed) / float64(len(subs))
	return s
}

type RecentSubmission struct {
	model.Submission
	TestTitle string `json:"testTitle"`
	Orphaned  bool   `json:"orphaned"`
}

// RecentSubmissions lists the history newest first with resolved titles.
func RecentSubmissions(subs []model.Submission, catalog Catalog) []RecentSubmission {
	out := make([]RecentSubmission, 0, len(subs))
	for _, sub := range subs {
		r := RecentSubmission{Submission: sub, TestTitle: util.DeletedTestTitle, Orphaned: true}
		if test, ok := catalog.FindByID(sub.TestID); ok {
			r.TestTitle = test.Title
			r.Orphaned = false
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CompletedAt.After(out[j].CompletedAt)
	})
	return out
}

package service

import (
	"edutest_backend/internal/model"
	"edutest_backend/internal/util"
)

// CountCorrect counts questions whose answer matches the correct label. An
// absent answer never matches.
func CountCorrect(test model.Test, answers model.AnswerSet) int {
	correct := 0
	for _, q := range test.Questions {
		if a, ok := answers[q.ID]; ok && a == q.CorrectAnswer {
			correct++
		}
	}
	return correct
}

// ScoreOf returns correct/total*10 rounded half up to one decimal. Integer
// tenths keep the result exact for every (correct, total) pair.
func ScoreOf(correct, total int) float64 {
	if total <= 0 {
		return 0
	}
	tenths := (200*correct + total) / (2 * total)
	return float64(tenths) / 10
}

// Score grades answers against test. A test with no questions scores 0 and
// the returned error says why.
func Score(test model.Test, answers model.AnswerSet) (float64, error) {
	if len(test.Questions) == 0 {
		return 0, util.NewValidationError("questions", "test %s has no questions", test.ID)
	}
	return ScoreOf(CountCorrect(test, answers), len(test.Questions)), nil
}

// Verify recomputes a stored submission's score.
func Verify(sub model.Submission, test model.Test) bool {
	score, _ := Score(test, sub.Answers)
	return score == sub.Score
}

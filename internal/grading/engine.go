// Package grading computes exam scores from recorded answers.
//
// Grading is a pure computation: the same questions, answer key, and
// recorded answers always produce the same result. Only MCQ questions are
// scored; every other question type is excluded from both counters.
package grading

import (
	"encoding/json"
	"math"

	"github.com/google/uuid"

	"github.com/olababsmichael/cbt-exam-system/internal/model"
)

// Grade scores an attempt. key maps a question to its correct choice;
// answers holds the raw recorded answer per question (for MCQ, a
// JSON-encoded choice id). Questions without a key entry, unanswered
// questions, and answers that do not decode to the correct choice id all
// count as incorrect.
func Grade(questions []model.Question, key map[uuid.UUID]uuid.UUID, answers map[uuid.UUID]json.RawMessage) model.Score {
	var correct, total int

	for _, q := range questions {
		if q.Type != model.QuestionTypeMCQ {
			continue
		}
		total++

		correctID, hasKey := key[q.ID]
		raw, answered := answers[q.ID]
		if !hasKey || !answered {
			continue
		}
		if chosen, ok := decodeChoiceID(raw); ok && chosen == correctID {
			correct++
		}
	}

	return model.Score{
		Correct: correct,
		Total:   total,
		Percent: percent(correct, total),
	}
}

// BuildAnswerKey maps each question to its first choice flagged correct.
// Questions without a correct choice are absent from the key and can never
// be answered correctly.
func BuildAnswerKey(choices map[uuid.UUID][]model.Choice) map[uuid.UUID]uuid.UUID {
	key := make(map[uuid.UUID]uuid.UUID, len(choices))
	for questionID, cs := range choices {
		for _, c := range cs {
			if c.IsCorrect {
				key[questionID] = c.ID
				break
			}
		}
	}
	return key
}

// decodeChoiceID parses a recorded answer as a JSON string holding a choice
// id. Malformed answers simply fail to decode.
func decodeChoiceID(raw json.RawMessage) (uuid.UUID, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

func percent(correct, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(correct) / float64(total) * 100))
}

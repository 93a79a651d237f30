package grading

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/google/uuid"

	"github.com/olababsmichael/cbt-exam-system/internal/model"
)

func mcq(id uuid.UUID) model.Question {
	return model.Question{ID: id, Type: model.QuestionTypeMCQ}
}

func freeText(id uuid.UUID) model.Question {
	return model.Question{ID: id, Type: model.QuestionTypeFreeText}
}

func encoded(id uuid.UUID) json.RawMessage {
	raw, _ := json.Marshal(id.String())
	return raw
}

func TestGrade(t *testing.T) {
	q1 := uuid.New()
	q2 := uuid.New()
	q3 := uuid.New()
	c1 := uuid.New()
	c2 := uuid.New()

	tests := []struct {
		name      string
		questions []model.Question
		key       map[uuid.UUID]uuid.UUID
		answers   map[uuid.UUID]json.RawMessage
		want      model.Score
	}{
		{
			name:      "single question answered correctly",
			questions: []model.Question{mcq(q1)},
			key:       map[uuid.UUID]uuid.UUID{q1: c1},
			answers:   map[uuid.UUID]json.RawMessage{q1: encoded(c1)},
			want:      model.Score{Correct: 1, Total: 1, Percent: 100},
		},
		{
			name:      "single question never answered",
			questions: []model.Question{mcq(q1)},
			key:       map[uuid.UUID]uuid.UUID{q1: c1},
			answers:   map[uuid.UUID]json.RawMessage{},
			want:      model.Score{Correct: 0, Total: 1, Percent: 0},
		},
		{
			name:      "wrong choice selected",
			questions: []model.Question{mcq(q1)},
			key:       map[uuid.UUID]uuid.UUID{q1: c1},
			answers:   map[uuid.UUID]json.RawMessage{q1: encoded(c2)},
			want:      model.Score{Correct: 0, Total: 1, Percent: 0},
		},
		{
			name:      "exam with zero questions",
			questions: nil,
			key:       map[uuid.UUID]uuid.UUID{},
			answers:   map[uuid.UUID]json.RawMessage{},
			want:      model.Score{Correct: 0, Total: 0, Percent: 0},
		},
		{
			name:      "free text excluded from total",
			questions: []model.Question{mcq(q1), mcq(q2), freeText(q3)},
			key:       map[uuid.UUID]uuid.UUID{q1: c1, q2: c2},
			answers: map[uuid.UUID]json.RawMessage{
				q1: encoded(c1),
				q3: json.RawMessage(`"an essay that is never scored"`),
			},
			want: model.Score{Correct: 1, Total: 2, Percent: 50},
		},
		{
			name:      "question without a correct choice is never correct",
			questions: []model.Question{mcq(q1)},
			key:       map[uuid.UUID]uuid.UUID{},
			answers:   map[uuid.UUID]json.RawMessage{q1: encoded(c1)},
			want:      model.Score{Correct: 0, Total: 1, Percent: 0},
		},
		{
			name:      "malformed answer counts as incorrect",
			questions: []model.Question{mcq(q1)},
			key:       map[uuid.UUID]uuid.UUID{q1: c1},
			answers:   map[uuid.UUID]json.RawMessage{q1: json.RawMessage(`{"selected":`)},
			want:      model.Score{Correct: 0, Total: 1, Percent: 0},
		},
		{
			name:      "answer that is not a choice id counts as incorrect",
			questions: []model.Question{mcq(q1)},
			key:       map[uuid.UUID]uuid.UUID{q1: c1},
			answers:   map[uuid.UUID]json.RawMessage{q1: json.RawMessage(`"not-a-uuid"`)},
			want:      model.Score{Correct: 0, Total: 1, Percent: 0},
		},
		{
			name:      "percent is rounded",
			questions: []model.Question{mcq(q1), mcq(q2), mcq(q3)},
			key:       map[uuid.UUID]uuid.UUID{q1: c1, q2: c2, q3: c2},
			answers: map[uuid.UUID]json.RawMessage{
				q1: encoded(c1),
				q2: encoded(c2),
			},
			want: model.Score{Correct: 2, Total: 3, Percent: 67},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Grade(tc.questions, tc.key, tc.answers)
			if got != tc.want {
				t.Fatalf("expected %+v, got %+v", tc.want, got)
			}
		})
	}
}

func TestGradeDeterministic(t *testing.T) {
	questions := make([]model.Question, 0, 10)
	key := make(map[uuid.UUID]uuid.UUID, 10)
	answers := make(map[uuid.UUID]json.RawMessage, 10)

	for i := 0; i < 10; i++ {
		q := uuid.New()
		c := uuid.New()
		questions = append(questions, mcq(q))
		key[q] = c
		if i%2 == 0 {
			answers[q] = encoded(c)
		} else {
			answers[q] = json.RawMessage(fmt.Sprintf("%q", uuid.New()))
		}
	}

	first := Grade(questions, key, answers)
	for i := 0; i < 100; i++ {
		if got := Grade(questions, key, answers); got != first {
			t.Fatalf("run %d diverged: expected %+v, got %+v", i, first, got)
		}
	}
}

func TestBuildAnswerKey(t *testing.T) {
	q1 := uuid.New()
	q2 := uuid.New()

	first := model.Choice{ID: uuid.New(), QuestionID: q1, IsCorrect: true}
	second := model.Choice{ID: uuid.New(), QuestionID: q1, IsCorrect: true}

	key := BuildAnswerKey(map[uuid.UUID][]model.Choice{
		q1: {
			{ID: uuid.New(), QuestionID: q1},
			first,
			second,
		},
		q2: {
			{ID: uuid.New(), QuestionID: q2},
			{ID: uuid.New(), QuestionID: q2},
		},
	})

	if got := key[q1]; got != first.ID {
		t.Fatalf("expected first correct choice %s, got %s", first.ID, got)
	}
	if _, ok := key[q2]; ok {
		t.Fatal("question without a correct choice must not appear in the key")
	}
}

package service

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/olababsmichael/cbt-exam-system/internal/model"
)

// fakeBank is an in-memory QuestionBank.
type fakeBank struct {
	exams     map[uuid.UUID]*model.Exam
	questions map[uuid.UUID][]model.Question
	choices   map[uuid.UUID][]model.Choice
}

func newFakeBank() *fakeBank {
	return &fakeBank{
		exams:     make(map[uuid.UUID]*model.Exam),
		questions: make(map[uuid.UUID][]model.Question),
		choices:   make(map[uuid.UUID][]model.Choice),
	}
}

func (b *fakeBank) GetExam(_ context.Context, id uuid.UUID) (*model.Exam, error) {
	e, ok := b.exams[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return e, nil
}

func (b *fakeBank) ListQuestions(_ context.Context, examID uuid.UUID) ([]model.Question, error) {
	return b.questions[examID], nil
}

func (b *fakeBank) ListChoices(_ context.Context, questionID uuid.UUID) ([]model.Choice, error) {
	return b.choices[questionID], nil
}

// addMCQ adds an MCQ question with the given choice texts, marking one correct.
// Returns the question id and the correct choice id.
func (b *fakeBank) addMCQ(examID uuid.UUID, text string, correctIdx int, options ...string) (uuid.UUID, uuid.UUID) {
	q := model.Question{ID: uuid.New(), ExamID: examID, Type: model.QuestionTypeMCQ, Text: text}
	b.questions[examID] = append(b.questions[examID], q)

	var correctID uuid.UUID
	for i, opt := range options {
		c := model.Choice{ID: uuid.New(), QuestionID: q.ID, Text: opt, IsCorrect: i == correctIdx}
		if c.IsCorrect {
			correctID = c.ID
		}
		b.choices[q.ID] = append(b.choices[q.ID], c)
	}
	return q.ID, correctID
}

func (b *fakeBank) addFreeText(examID uuid.UUID, text string) uuid.UUID {
	q := model.Question{ID: uuid.New(), ExamID: examID, Type: model.QuestionTypeFreeText, Text: text}
	b.questions[examID] = append(b.questions[examID], q)
	return q.ID
}

// fakeAttemptStore is an in-memory AttemptStore mirroring the transactional
// semantics of the real one: submit serializes on a lock and the loser of a
// race observes the flipped status.
type fakeAttemptStore struct {
	mu       sync.Mutex
	attempts map[uuid.UUID]*model.Attempt
	answers  map[uuid.UUID]map[uuid.UUID]json.RawMessage
}

func newFakeAttemptStore() *fakeAttemptStore {
	return &fakeAttemptStore{
		attempts: make(map[uuid.UUID]*model.Attempt),
		answers:  make(map[uuid.UUID]map[uuid.UUID]json.RawMessage),
	}
}

func (s *fakeAttemptStore) Create(_ context.Context, a *model.Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a.ID = uuid.New()
	cp := *a
	s.attempts[a.ID] = &cp
	s.answers[a.ID] = make(map[uuid.UUID]json.RawMessage)
	return nil
}

func (s *fakeAttemptStore) GetByID(_ context.Context, id uuid.UUID) (*model.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *a
	return &cp, nil
}

func (s *fakeAttemptStore) UpsertAnswer(_ context.Context, attemptID, questionID uuid.UUID, answer json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[attemptID]
	if !ok {
		return pgx.ErrNoRows
	}
	if a.Status != model.AttemptStatusInProgress {
		return ErrAttemptNotActive
	}
	s.answers[attemptID][questionID] = answer
	return nil
}

func (s *fakeAttemptStore) GetAnswers(_ context.Context, attemptID uuid.UUID) (map[uuid.UUID]json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[uuid.UUID]json.RawMessage, len(s.answers[attemptID]))
	for k, v := range s.answers[attemptID] {
		out[k] = v
	}
	return out, nil
}

func (s *fakeAttemptStore) Submit(ctx context.Context, attemptID uuid.UUID, endedAt time.Time, grade GradeFunc) (*model.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[attemptID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	if a.Status != model.AttemptStatusInProgress {
		return nil, ErrAlreadySubmitted
	}

	answers := make(map[uuid.UUID]json.RawMessage, len(s.answers[attemptID]))
	for k, v := range s.answers[attemptID] {
		answers[k] = v
	}

	score, err := grade(ctx, a.ExamID, answers)
	if err != nil {
		return nil, err
	}

	a.Status = model.AttemptStatusSubmitted
	a.EndedAt = &endedAt
	a.Score = &score
	cp := *a
	return &cp, nil
}

func (s *fakeAttemptStore) ListByStudent(_ context.Context, studentID uuid.UUID) ([]model.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.Attempt{}
	for _, a := range s.attempts {
		if a.StudentID == studentID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func newAttemptFixture(t *testing.T) (*AttemptService, *fakeBank, *fakeAttemptStore) {
	t.Helper()
	bank := newFakeBank()
	store := newFakeAttemptStore()
	return NewAttemptService(bank, store, zerolog.Nop()), bank, store
}

func seedExam(bank *fakeBank, durationMinutes int) uuid.UUID {
	exam := &model.Exam{ID: uuid.New(), Title: "Algebra I", DurationMinutes: durationMinutes, CreatedBy: uuid.New()}
	bank.exams[exam.ID] = exam
	return exam.ID
}

func mustJSON(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func TestStartUnknownExam(t *testing.T) {
	svc, _, store := newAttemptFixture(t)

	_, err := svc.Start(context.Background(), uuid.New(), uuid.New())
	if err != ErrExamNotFound {
		t.Fatalf("expected ErrExamNotFound, got %v", err)
	}
	if len(store.attempts) != 0 {
		t.Fatalf("no attempt row should exist, got %d", len(store.attempts))
	}
}

func TestStartSetsDeadline(t *testing.T) {
	svc, bank, _ := newAttemptFixture(t)
	examID := seedExam(bank, 45)

	before := time.Now()
	paper, err := svc.Start(context.Background(), examID, uuid.New())
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	want := paper.StartedAt.Add(45 * time.Minute)
	if !paper.EndsAt.Equal(want) {
		t.Errorf("ends_at = %v, want started_at + 45m = %v", paper.EndsAt, want)
	}
	if paper.StartedAt.Before(before.Add(-time.Second)) {
		t.Errorf("started_at %v is before test start %v", paper.StartedAt, before)
	}
}

func TestStartPaperHidesAnswerKey(t *testing.T) {
	svc, bank, _ := newAttemptFixture(t)
	examID := seedExam(bank, 30)
	bank.addMCQ(examID, "2+2?", 1, "3", "4", "5")
	bank.addFreeText(examID, "Explain your reasoning.")

	paper, err := svc.Start(context.Background(), examID, uuid.New())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if len(paper.Questions) != 2 {
		t.Fatalf("expected 2 questions, got %d", len(paper.Questions))
	}

	raw, err := json.Marshal(paper)
	if err != nil {
		t.Fatalf("marshal paper: %v", err)
	}
	if strings.Contains(string(raw), "is_correct") {
		t.Errorf("paper JSON leaks the answer key: %s", raw)
	}
}

func TestRecordAnswerUpsert(t *testing.T) {
	svc, bank, store := newAttemptFixture(t)
	examID := seedExam(bank, 30)
	qID, correctID := bank.addMCQ(examID, "2+2?", 0, "4", "5")

	studentID := uuid.New()
	paper, err := svc.Start(context.Background(), examID, studentID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	wrong := mustJSON(t, uuid.New().String())
	if err := svc.RecordAnswer(context.Background(), paper.AttemptID, studentID, qID, wrong); err != nil {
		t.Fatalf("first answer: %v", err)
	}
	right := mustJSON(t, correctID.String())
	if err := svc.RecordAnswer(context.Background(), paper.AttemptID, studentID, qID, right); err != nil {
		t.Fatalf("second answer: %v", err)
	}

	answers, _ := store.GetAnswers(context.Background(), paper.AttemptID)
	if len(answers) != 1 {
		t.Fatalf("expected 1 answer row, got %d", len(answers))
	}
	if string(answers[qID]) != string(right) {
		t.Errorf("stored answer = %s, want latest %s", answers[qID], right)
	}
}

func TestRecordAnswerForeignAttempt(t *testing.T) {
	svc, bank, _ := newAttemptFixture(t)
	examID := seedExam(bank, 30)
	qID, _ := bank.addMCQ(examID, "2+2?", 0, "4", "5")

	owner := uuid.New()
	paper, err := svc.Start(context.Background(), examID, owner)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	err = svc.RecordAnswer(context.Background(), paper.AttemptID, uuid.New(), qID, mustJSON(t, "x"))
	if err != ErrAttemptNotFound {
		t.Fatalf("expected ErrAttemptNotFound for foreign attempt, got %v", err)
	}
}

func TestRecordAnswerAfterSubmit(t *testing.T) {
	svc, bank, _ := newAttemptFixture(t)
	examID := seedExam(bank, 30)
	qID, _ := bank.addMCQ(examID, "2+2?", 0, "4", "5")

	studentID := uuid.New()
	paper, err := svc.Start(context.Background(), examID, studentID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := svc.Submit(context.Background(), paper.AttemptID, studentID); err != nil {
		t.Fatalf("submit: %v", err)
	}

	err = svc.RecordAnswer(context.Background(), paper.AttemptID, studentID, qID, mustJSON(t, "x"))
	if err != ErrAttemptNotActive {
		t.Fatalf("expected ErrAttemptNotActive after submit, got %v", err)
	}
}

func TestRecordAnswerExpired(t *testing.T) {
	svc, bank, store := newAttemptFixture(t)
	examID := seedExam(bank, 30)
	qID, _ := bank.addMCQ(examID, "2+2?", 0, "4", "5")

	studentID := uuid.New()
	paper, err := svc.Start(context.Background(), examID, studentID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	// Push the deadline into the past.
	store.mu.Lock()
	store.attempts[paper.AttemptID].EndsAt = time.Now().Add(-time.Minute)
	store.mu.Unlock()

	err = svc.RecordAnswer(context.Background(), paper.AttemptID, studentID, qID, mustJSON(t, "x"))
	if err != ErrAttemptExpired {
		t.Fatalf("expected ErrAttemptExpired, got %v", err)
	}
}

func TestSubmitGrades(t *testing.T) {
	svc, bank, _ := newAttemptFixture(t)
	examID := seedExam(bank, 30)
	q1, correct1 := bank.addMCQ(examID, "2+2?", 1, "3", "4")
	q2, _ := bank.addMCQ(examID, "3+3?", 0, "6", "7")
	q3 := bank.addFreeText(examID, "Explain.")

	studentID := uuid.New()
	paper, err := svc.Start(context.Background(), examID, studentID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	// q1 right, q2 wrong, q3 free text (never graded).
	ctx := context.Background()
	if err := svc.RecordAnswer(ctx, paper.AttemptID, studentID, q1, mustJSON(t, correct1.String())); err != nil {
		t.Fatalf("answer q1: %v", err)
	}
	if err := svc.RecordAnswer(ctx, paper.AttemptID, studentID, q2, mustJSON(t, uuid.New().String())); err != nil {
		t.Fatalf("answer q2: %v", err)
	}
	if err := svc.RecordAnswer(ctx, paper.AttemptID, studentID, q3, mustJSON(t, "because")); err != nil {
		t.Fatalf("answer q3: %v", err)
	}

	score, err := svc.Submit(ctx, paper.AttemptID, studentID)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	want := model.Score{Correct: 1, Total: 2, Percent: 50}
	if *score != want {
		t.Errorf("score = %+v, want %+v", *score, want)
	}
}

func TestSubmitTwice(t *testing.T) {
	svc, bank, store := newAttemptFixture(t)
	examID := seedExam(bank, 30)
	q1, correct1 := bank.addMCQ(examID, "2+2?", 0, "4", "5")

	studentID := uuid.New()
	paper, err := svc.Start(context.Background(), examID, studentID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	ctx := context.Background()
	if err := svc.RecordAnswer(ctx, paper.AttemptID, studentID, q1, mustJSON(t, correct1.String())); err != nil {
		t.Fatalf("answer: %v", err)
	}

	first, err := svc.Submit(ctx, paper.AttemptID, studentID)
	if err != nil {
		t.Fatalf("first submit: %v", err)
	}

	_, err = svc.Submit(ctx, paper.AttemptID, studentID)
	if err != ErrAlreadySubmitted {
		t.Fatalf("expected ErrAlreadySubmitted, got %v", err)
	}

	stored, _ := store.GetByID(ctx, paper.AttemptID)
	if *stored.Score != *first {
		t.Errorf("stored score changed after rejected resubmit: %+v vs %+v", *stored.Score, *first)
	}
}

func TestSubmitConcurrent(t *testing.T) {
	svc, bank, _ := newAttemptFixture(t)
	examID := seedExam(bank, 30)
	bank.addMCQ(examID, "2+2?", 0, "4", "5")

	studentID := uuid.New()
	paper, err := svc.Start(context.Background(), examID, studentID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	const workers = 16
	var wg sync.WaitGroup
	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Submit(context.Background(), paper.AttemptID, studentID)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	successes, alreadySubmitted := 0, 0
	for err := range results {
		switch err {
		case nil:
			successes++
		case ErrAlreadySubmitted:
			alreadySubmitted++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if successes != 1 {
		t.Errorf("exactly one submit should win, got %d", successes)
	}
	if alreadySubmitted != workers-1 {
		t.Errorf("expected %d ErrAlreadySubmitted, got %d", workers-1, alreadySubmitted)
	}
}

func TestSubmitZeroQuestions(t *testing.T) {
	svc, bank, _ := newAttemptFixture(t)
	examID := seedExam(bank, 30)

	studentID := uuid.New()
	paper, err := svc.Start(context.Background(), examID, studentID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	score, err := svc.Submit(context.Background(), paper.AttemptID, studentID)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	want := model.Score{Correct: 0, Total: 0, Percent: 0}
	if *score != want {
		t.Errorf("score = %+v, want %+v", *score, want)
	}
}

func TestSubmitUnknownAttempt(t *testing.T) {
	svc, _, _ := newAttemptFixture(t)

	_, err := svc.Submit(context.Background(), uuid.New(), uuid.New())
	if err != ErrAttemptNotFound {
		t.Fatalf("expected ErrAttemptNotFound, got %v", err)
	}
}

package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nmsdosti/newquiz.onlin2/go/internal/models"
)

type answerKey struct {
	session  uuid.UUID
	player   uuid.UUID
	question int
}

// Memory is an in-process Store used by tests and single-node development.
type Memory struct {
	mu        sync.RWMutex
	quizzes   map[uuid.UUID]models.Quiz
	sessions  map[uuid.UUID]models.GameSession
	players   map[uuid.UUID]models.Player
	answers   []models.AnswerEvent
	answered  map[answerKey]struct{}
	summaries map[uuid.UUID][]byte
}

func NewMemory() *Memory {
	return &Memory{
		quizzes:   make(map[uuid.UUID]models.Quiz),
		sessions:  make(map[uuid.UUID]models.GameSession),
		players:   make(map[uuid.UUID]models.Player),
		answered:  make(map[answerKey]struct{}),
		summaries: make(map[uuid.UUID][]byte),
	}
}

// AddQuiz stores q after validating it.
func (m *Memory) AddQuiz(q models.Quiz) error {
	if err := models.ValidateQuiz(&q); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quizzes[q.ID] = q
	return nil
}

// AddPlayer admits p to its session.
func (m *Memory) AddPlayer(p models.Player) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.JoinedAt.IsZero() {
		p.JoinedAt = time.Now()
	}
	m.players[p.ID] = p
}

func (m *Memory) GetQuiz(_ context.Context, id uuid.UUID) (*models.Quiz, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q, ok := m.quizzes[id]
	if !ok {
		return nil, fmt.Errorf("quiz %s: %w", id, ErrNotFound)
	}
	q.Questions = append([]models.Question(nil), q.Questions...)
	return &q, nil
}

func (m *Memory) CreateSession(_ context.Context, s *models.GameSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.ID]; ok {
		return fmt.Errorf("session %s already exists", s.ID)
	}
	for _, existing := range m.sessions {
		if existing.PIN == s.PIN && existing.Status != models.SessionStatusCompleted {
			return fmt.Errorf("pin %s already in use", s.PIN)
		}
	}
	now := time.Now()
	c := s.Clone()
	c.CreatedAt, c.UpdatedAt = now, now
	m.sessions[s.ID] = c
	return nil
}

func (m *Memory) GetSession(_ context.Context, id uuid.UUID) (*models.GameSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	c := s.Clone()
	return &c, nil
}

func (m *Memory) GetSessionByPIN(_ context.Context, pin string) (*models.GameSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var found *models.GameSession
	for _, s := range m.sessions {
		if s.PIN != pin {
			continue
		}
		if found == nil || s.CreatedAt.After(found.CreatedAt) {
			c := s.Clone()
			found = &c
		}
	}
	if found == nil {
		return nil, fmt.Errorf("session with pin %s: %w", pin, ErrNotFound)
	}
	return found, nil
}

func (m *Memory) ListActiveSessions(_ context.Context) ([]models.GameSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.GameSession
	for _, s := range m.sessions {
		if s.Status == models.SessionStatusActive {
			out = append(out, s.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) UpdateSession(_ context.Context, s *models.GameSession, expect Expectation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.sessions[s.ID]
	if !ok {
		return fmt.Errorf("session %s: %w", s.ID, ErrNotFound)
	}
	if !expect.Matches(cur) {
		return fmt.Errorf("session %s: %w", s.ID, ErrConflict)
	}
	c := s.Clone()
	c.CreatedAt = cur.CreatedAt
	c.UpdatedAt = time.Now()
	m.sessions[s.ID] = c
	return nil
}

func (m *Memory) SaveSummary(_ context.Context, sessionID uuid.UUID, summary []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[sessionID]; !ok {
		return fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	m.summaries[sessionID] = append([]byte(nil), summary...)
	return nil
}

func (m *Memory) GetSummary(_ context.Context, sessionID uuid.UUID) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.summaries[sessionID]
	if !ok {
		return nil, fmt.Errorf("summary for session %s: %w", sessionID, ErrNotFound)
	}
	return append([]byte(nil), b...), nil
}

func (m *Memory) ListPlayers(_ context.Context, sessionID uuid.UUID) ([]models.Player, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Player
	for _, p := range m.players {
		if p.SessionID == sessionID {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].JoinedAt.Before(out[j].JoinedAt)
	})
	return out, nil
}

func (m *Memory) GetPlayer(_ context.Context, id uuid.UUID) (*models.Player, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.players[id]
	if !ok {
		return nil, fmt.Errorf("player %s: %w", id, ErrNotFound)
	}
	return &p, nil
}

func (m *Memory) InsertAnswer(_ context.Context, a *models.AnswerEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := answerKey{session: a.SessionID, player: a.PlayerID, question: a.QuestionIndex}
	if _, dup := m.answered[key]; dup {
		return fmt.Errorf("player %s question %d: %w", a.PlayerID, a.QuestionIndex, ErrDuplicateAnswer)
	}
	m.answered[key] = struct{}{}
	m.answers = append(m.answers, *a)
	return nil
}

func (m *Memory) ListAnswers(_ context.Context, sessionID uuid.UUID, questionIndex *int) ([]models.AnswerEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.AnswerEvent
	for _, a := range m.answers {
		if a.SessionID != sessionID {
			continue
		}
		if questionIndex != nil && a.QuestionIndex != *questionIndex {
			continue
		}
		out = append(out, a)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].SubmittedAt.Before(out[j].SubmittedAt) })
	return out, nil
}

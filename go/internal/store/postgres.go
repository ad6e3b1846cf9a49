package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/nmsdosti/newquiz.onlin2/go/internal/apperrors"
	"github.com/nmsdosti/newquiz.onlin2/go/internal/models"
	"github.com/nmsdosti/newquiz.onlin2/go/internal/sqlutil"
	"github.com/nmsdosti/newquiz.onlin2/go/internal/store/db"
)

const uniqueViolation = pq.ErrorCode("23505")

// Postgres is the Store backed by the schema in schema.sql.
type Postgres struct {
	conn    *sql.DB
	queries *db.Queries
}

func NewPostgres(conn *sql.DB) *Postgres {
	return &Postgres{
		conn:    conn,
		queries: db.New(conn),
	}
}

// classify maps driver errors onto the store's sentinels, treating anything
// unrecognised as a transport failure.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return apperrors.NewTransportError(op, err)
}

func (p *Postgres) GetQuiz(ctx context.Context, id uuid.UUID) (*models.Quiz, error) {
	var quiz *models.Quiz
	err := sqlutil.Run(ctx, p.conn, sqlutil.ReadOnly, p.queries.WithTx, func(q *db.Queries) error {
		row, err := q.GetQuiz(ctx, id)
		if err != nil {
			return err
		}
		questions, err := q.ListQuestionsByQuiz(ctx, id)
		if err != nil {
			return err
		}
		options, err := q.ListOptionsByQuiz(ctx, id)
		if err != nil {
			return err
		}
		quiz = assembleQuiz(row, questions, options)
		return nil
	})
	if err != nil {
		return nil, classify("get quiz", err)
	}
	return quiz, nil
}

func assembleQuiz(row db.Quiz, questions []db.Question, options []db.Option) *models.Quiz {
	quiz := &models.Quiz{
		ID:          row.ID,
		Title:       row.Title,
		Description: row.Description,
		CreatedAt:   row.CreatedAt,
		Questions:   make([]models.Question, 0, len(questions)),
	}
	byQuestion := make(map[uuid.UUID][]models.Option, len(questions))
	for _, o := range options {
		byQuestion[o.QuestionID] = append(byQuestion[o.QuestionID], models.Option{
			ID:        o.ID,
			Text:      o.Text,
			IsCorrect: o.IsCorrect,
		})
	}
	for _, q := range questions {
		quiz.Questions = append(quiz.Questions, models.Question{
			ID:               q.ID,
			Text:             q.Text,
			TimeLimitSeconds: int(q.TimeLimitSeconds),
			Options:          byQuestion[q.ID],
		})
	}
	return quiz
}

func (p *Postgres) CreateSession(ctx context.Context, s *models.GameSession) error {
	err := p.queries.CreateGameSession(ctx, db.CreateGameSessionParams{
		ID:     s.ID,
		QuizID: s.QuizID,
		HostID: s.HostID,
		Pin:    s.PIN,
		Status: db.SessionStatus(s.Status),
	})
	return classify("create session", err)
}

func (p *Postgres) GetSession(ctx context.Context, id uuid.UUID) (*models.GameSession, error) {
	row, err := p.queries.GetGameSession(ctx, id)
	if err != nil {
		return nil, classify("get session", err)
	}
	s := sessionFromRow(db.GetGameSessionRow(row))
	return &s, nil
}

func (p *Postgres) GetSessionByPIN(ctx context.Context, pin string) (*models.GameSession, error) {
	row, err := p.queries.GetGameSessionByPIN(ctx, pin)
	if err != nil {
		return nil, classify("get session by pin", err)
	}
	s := sessionFromRow(db.GetGameSessionRow(row))
	return &s, nil
}

func (p *Postgres) ListActiveSessions(ctx context.Context) ([]models.GameSession, error) {
	rows, err := p.queries.ListActiveGameSessions(ctx)
	if err != nil {
		return nil, classify("list active sessions", err)
	}
	out := make([]models.GameSession, 0, len(rows))
	for _, row := range rows {
		out = append(out, sessionFromRow(db.GetGameSessionRow(row)))
	}
	return out, nil
}

func sessionFromRow(row db.GetGameSessionRow) models.GameSession {
	return models.GameSession{
		ID:                   row.ID,
		QuizID:               row.QuizID,
		HostID:               row.HostID,
		PIN:                  row.Pin,
		Status:               models.SessionStatus(row.Status),
		CurrentQuestionIndex: sqlutil.FromSqlInt32(row.CurrentQuestionIndex),
		QuestionStartedAt:    sqlutil.FromSqlTime(row.QuestionStartedAt),
		QuestionClosed:       row.QuestionClosed,
		CompletedAt:          sqlutil.FromSqlTime(row.CompletedAt),
		CreatedAt:            row.CreatedAt,
		UpdatedAt:            row.UpdatedAt,
	}
}

func (p *Postgres) UpdateSession(ctx context.Context, s *models.GameSession, expect Expectation) error {
	n, err := p.queries.UpdateGameSessionState(ctx, db.UpdateGameSessionStateParams{
		ID:                     s.ID,
		Status:                 db.SessionStatus(s.Status),
		CurrentQuestionIndex:   sqlutil.ToSqlInt32(s.CurrentQuestionIndex),
		QuestionStartedAt:      sqlutil.ToSqlTime(s.QuestionStartedAt),
		QuestionClosed:         s.QuestionClosed,
		CompletedAt:            sqlutil.ToSqlTime(s.CompletedAt),
		ExpectedStatus:         db.SessionStatus(expect.Status),
		ExpectedQuestionIndex:  sqlutil.ToSqlInt32(expect.QuestionIndex),
		ExpectedQuestionClosed: expect.QuestionClosed,
	})
	if err != nil {
		return classify("update session", err)
	}
	if n == 0 {
		return fmt.Errorf("session %s: %w", s.ID, ErrConflict)
	}
	return nil
}

func (p *Postgres) SaveSummary(ctx context.Context, sessionID uuid.UUID, summary []byte) error {
	n, err := p.queries.SaveGameSessionSummary(ctx, db.SaveGameSessionSummaryParams{
		ID:      sessionID,
		Summary: sqlutil.ToNullJSON(summary),
	})
	if err != nil {
		return classify("save summary", err)
	}
	if n == 0 {
		return fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	return nil
}

func (p *Postgres) GetSummary(ctx context.Context, sessionID uuid.UUID) ([]byte, error) {
	summary, err := p.queries.GetGameSessionSummary(ctx, sessionID)
	if err != nil {
		return nil, classify("get summary", err)
	}
	data := sqlutil.FromNullJSON(summary)
	if data == nil {
		return nil, fmt.Errorf("summary for session %s: %w", sessionID, ErrNotFound)
	}
	return data, nil
}

func (p *Postgres) ListPlayers(ctx context.Context, sessionID uuid.UUID) ([]models.Player, error) {
	rows, err := p.queries.ListPlayersBySession(ctx, sessionID)
	if err != nil {
		return nil, classify("list players", err)
	}
	out := make([]models.Player, 0, len(rows))
	for _, row := range rows {
		out = append(out, playerFromRow(row))
	}
	return out, nil
}

func (p *Postgres) GetPlayer(ctx context.Context, id uuid.UUID) (*models.Player, error) {
	row, err := p.queries.GetPlayer(ctx, id)
	if err != nil {
		return nil, classify("get player", err)
	}
	player := playerFromRow(row)
	return &player, nil
}

func playerFromRow(row db.Player) models.Player {
	return models.Player{
		ID:          row.ID,
		SessionID:   row.SessionID,
		DisplayName: row.DisplayName,
		JoinedAt:    row.JoinedAt,
	}
}

func (p *Postgres) InsertAnswer(ctx context.Context, a *models.AnswerEvent) error {
	n, err := p.queries.InsertAnswerEvent(ctx, db.InsertAnswerEventParams{
		ID:               a.ID,
		SessionID:        a.SessionID,
		PlayerID:         a.PlayerID,
		QuestionIndex:    int32(a.QuestionIndex),
		OptionID:         a.OptionID,
		TimeTakenSeconds: a.TimeTakenSeconds,
		IsCorrect:        a.IsCorrect,
		SubmittedAt:      a.SubmittedAt,
	})
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return fmt.Errorf("player %s question %d: %w", a.PlayerID, a.QuestionIndex, ErrDuplicateAnswer)
		}
		return classify("insert answer", err)
	}
	// ON CONFLICT DO NOTHING reports the duplicate as zero affected rows.
	if n == 0 {
		return fmt.Errorf("player %s question %d: %w", a.PlayerID, a.QuestionIndex, ErrDuplicateAnswer)
	}
	return nil
}

func (p *Postgres) ListAnswers(ctx context.Context, sessionID uuid.UUID, questionIndex *int) ([]models.AnswerEvent, error) {
	rows, err := p.queries.ListAnswerEvents(ctx, db.ListAnswerEventsParams{
		SessionID:     sessionID,
		QuestionIndex: sqlutil.ToSqlInt32(questionIndex),
	})
	if err != nil {
		return nil, classify("list answers", err)
	}
	out := make([]models.AnswerEvent, 0, len(rows))
	for _, row := range rows {
		out = append(out, models.AnswerEvent{
			ID:               row.ID,
			SessionID:        row.SessionID,
			PlayerID:         row.PlayerID,
			QuestionIndex:    int(row.QuestionIndex),
			OptionID:         row.OptionID,
			TimeTakenSeconds: row.TimeTakenSeconds,
			IsCorrect:        row.IsCorrect,
			SubmittedAt:      row.SubmittedAt,
		})
	}
	return out, nil
}

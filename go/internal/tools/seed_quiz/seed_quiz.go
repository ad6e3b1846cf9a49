package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"gopkg.in/yaml.v3"

	"github.com/nmsdosti/newquiz.onlin2/go/internal/dbconfig"
	"github.com/nmsdosti/newquiz.onlin2/go/internal/models"
)

// Fixture mirrors the YAML file: one quiz plus optional lobby sessions with
// their players.
type Fixture struct {
	Quiz     models.Quiz      `yaml:"quiz"`
	Sessions []SessionFixture `yaml:"sessions"`
}

type SessionFixture struct {
	ID      uuid.UUID       `yaml:"id"`
	HostID  uuid.UUID       `yaml:"host_id"`
	PIN     string          `yaml:"pin"`
	Players []PlayerFixture `yaml:"players"`
}

type PlayerFixture struct {
	ID          uuid.UUID `yaml:"id"`
	DisplayName string    `yaml:"display_name"`
}

type counts struct {
	inserted int
	skipped  int
}

func (c *counts) add(rows int64) {
	if rows == 1 {
		c.inserted++
	} else {
		c.skipped++
	}
}

func main() {
	path := flag.String("file", "go/internal/assets/sample_quiz.yaml", "quiz fixture to load")
	flag.Parse()

	// 1) Load and validate the fixture
	data, err := os.ReadFile(*path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read YAML: %v\n", err)
		os.Exit(1)
	}
	var fx Fixture
	if err := yaml.Unmarshal(data, &fx); err != nil {
		fmt.Fprintf(os.Stderr, "unmarshal YAML: %v\n", err)
		os.Exit(1)
	}
	if err := models.ValidateQuiz(&fx.Quiz); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	// 2) Connect using shared dbconfig
	ctx := context.Background()
	cfg := dbconfig.NewConfigFromEnv()
	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	// 3) Insert everything in one transaction; rows that exist are skipped
	var rows counts
	err = pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		return seed(ctx, tx, &fx, &rows)
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
		os.Exit(1)
	}

	// 4) Print summary
	fmt.Printf(
		"Quiz seed complete: %q, %d questions, %d sessions, %d rows inserted, %d skipped\n",
		fx.Quiz.Title, len(fx.Quiz.Questions), len(fx.Sessions), rows.inserted, rows.skipped,
	)
}

func seed(ctx context.Context, tx pgx.Tx, fx *Fixture, rows *counts) error {
	q := fx.Quiz
	tag, err := tx.Exec(ctx, `
        INSERT INTO quizzes (id, title, description)
        VALUES ($1, $2, $3)
        ON CONFLICT (id) DO NOTHING
    `, q.ID, q.Title, q.Description)
	if err != nil {
		return fmt.Errorf("insert quiz %s: %w", q.ID, err)
	}
	rows.add(tag.RowsAffected())

	for i, question := range q.Questions {
		tag, err := tx.Exec(ctx, `
            INSERT INTO questions (id, quiz_id, position, text, time_limit_seconds)
            VALUES ($1, $2, $3, $4, $5)
            ON CONFLICT (id) DO NOTHING
        `, question.ID, q.ID, i, question.Text, question.TimeLimitSeconds)
		if err != nil {
			return fmt.Errorf("insert question %d: %w", i, err)
		}
		rows.add(tag.RowsAffected())

		for j, o := range question.Options {
			tag, err := tx.Exec(ctx, `
                INSERT INTO options (id, question_id, position, text, is_correct)
                VALUES ($1, $2, $3, $4, $5)
                ON CONFLICT (id) DO NOTHING
            `, o.ID, question.ID, j, o.Text, o.IsCorrect)
			if err != nil {
				return fmt.Errorf("insert option %d of question %d: %w", j, i, err)
			}
			rows.add(tag.RowsAffected())
		}
	}

	for _, s := range fx.Sessions {
		tag, err := tx.Exec(ctx, `
            INSERT INTO game_sessions (id, quiz_id, host_id, pin, status)
            VALUES ($1, $2, $3, $4, 'LOBBY')
            ON CONFLICT (id) DO NOTHING
        `, s.ID, q.ID, s.HostID, s.PIN)
		if err != nil {
			return fmt.Errorf("insert session %s: %w", s.ID, err)
		}
		rows.add(tag.RowsAffected())

		for _, p := range s.Players {
			tag, err := tx.Exec(ctx, `
                INSERT INTO players (id, session_id, display_name)
                VALUES ($1, $2, $3)
                ON CONFLICT (id) DO NOTHING
            `, p.ID, s.ID, p.DisplayName)
			if err != nil {
				return fmt.Errorf("insert player %s: %w", p.DisplayName, err)
			}
			rows.add(tag.RowsAffected())
		}
	}
	return nil
}

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/conorfennell/brainquiz/internal/domain"
	_ "modernc.org/sqlite" // Registers the sqlite driver
)

// SQLiteStore represents a wrapper around the SQL database connection.
type SQLiteStore struct {
	conn *sql.DB
}

// OpenSQLite creates a new database connection and ensures the schema is up to date.
func OpenSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Execute the schema to create tables if they don't exist.
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLiteStore{conn: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.conn.Close()
}

// Cards retrieves all cards ordered by position.
func (s *SQLiteStore) Cards(ctx context.Context) ([]domain.Card, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, question, answer, topic, image, level, next_review
		FROM cards ORDER BY position
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get cards: %w", err)
	}
	defer rows.Close()

	var cards []domain.Card
	for rows.Next() {
		var (
			c    domain.Card
			id   string
			next sql.NullString
		)
		if err := rows.Scan(&id, &c.Question, &c.Answer, &c.Topic, &c.Image, &c.Level, &next); err != nil {
			return nil, fmt.Errorf("failed to scan card row: %w", err)
		}
		c.ID = domain.CardID(id)
		c.Level = max(c.Level, 0)
		c.NextReview = parseTime(next.String)
		cards = append(cards, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read cards: %w", err)
	}
	return cards, nil
}

// AppendCards inserts cards after the last stored position in one transaction.
func (s *SQLiteStore) AppendCards(ctx context.Context, cards []domain.Card) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var last sql.NullInt64
	if err := tx.QueryRowContext(ctx, `SELECT MAX(position) FROM cards`).Scan(&last); err != nil {
		return fmt.Errorf("failed to read last position: %w", err)
	}
	pos := last.Int64

	for _, c := range cards {
		pos++
		_, err := tx.ExecContext(ctx, `
			INSERT INTO cards (id, position, question, answer, topic, image, level, next_review)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`,
			string(c.ID),
			pos,
			c.Question,
			c.Answer,
			c.Topic,
			c.Image,
			c.Level,
			nullTime(c),
		)
		if err != nil {
			return fmt.Errorf("failed to insert card %s: %w", c.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit cards: %w", err)
	}
	return nil
}

// SaveCard updates an existing card's mastery state and content.
func (s *SQLiteStore) SaveCard(ctx context.Context, c domain.Card) error {
	res, err := s.conn.ExecContext(ctx, `
		UPDATE cards
		SET answer = ?, topic = ?, image = ?, level = ?, next_review = ?
		WHERE id = ?
	`,
		c.Answer,
		c.Topic,
		c.Image,
		c.Level,
		nullTime(c),
		string(c.ID),
	)
	if err != nil {
		return fmt.Errorf("failed to update card %s: %w", c.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update card %s: %w", c.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("failed to save card %s: %w", c.ID, ErrCardNotFound)
	}
	return nil
}

// Stats retrieves the stats row, or a zero streak when none is stored.
func (s *SQLiteStore) Stats(ctx context.Context) (domain.Stats, error) {
	var (
		stats domain.Stats
		last  sql.NullString
	)
	err := s.conn.QueryRowContext(ctx, `SELECT streak, last_study_date FROM stats WHERE id = 1`).
		Scan(&stats.Streak, &last)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Stats{}, nil
	}
	if err != nil {
		return domain.Stats{}, fmt.Errorf("failed to get stats: %w", err)
	}

	date, err := parseDate(last.String)
	if err != nil {
		return domain.Stats{}, fmt.Errorf("%w: stats last_study_date %q", ErrCorrupt, last.String)
	}
	stats.LastStudyDate = date
	stats.Streak = max(stats.Streak, 0)
	return stats, nil
}

// SaveStats upserts the stats row.
func (s *SQLiteStore) SaveStats(ctx context.Context, stats domain.Stats) error {
	var last sql.NullString
	if d := formatDate(stats.LastStudyDate); d != "" {
		last = sql.NullString{String: d, Valid: true}
	}
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO stats (id, streak, last_study_date) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET streak = excluded.streak, last_study_date = excluded.last_study_date
	`, stats.Streak, last)
	if err != nil {
		return fmt.Errorf("failed to save stats: %w", err)
	}
	return nil
}

// LogReview records an answer.
func (s *SQLiteStore) LogReview(ctx context.Context, log domain.ReviewLog) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO review_logs (card_id, reviewed_at, correct, level)
		VALUES (?, ?, ?, ?)
	`,
		string(log.CardID),
		log.ReviewedAt.Format(TimeLayout),
		log.Correct,
		log.Level,
	)
	if err != nil {
		return fmt.Errorf("failed to log review for card %s: %w", log.CardID, err)
	}
	return nil
}

func nullTime(c domain.Card) sql.NullString {
	if c.NextReview == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(c.NextReview), Valid: true}
}

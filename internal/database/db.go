package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Alias1177/Guardian/models"
	"github.com/lib/pq"
)

// DB represents a database connection
type DB struct {
	*sql.DB
}

// ConnectionParams holds PostgreSQL connection parameters
type ConnectionParams struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// DSN builds the lib/pq connection string
func (p ConnectionParams) DSN() string {
	sslMode := p.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.DBName, sslMode,
	)
}

// New creates a new database connection and makes sure the schema exists
func New(ctx context.Context, params ConnectionParams) (*DB, error) {
	db, err := sql.Open("postgres", params.DSN())
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if err := createTables(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &DB{db}, nil
}

// createTables creates the necessary tables if they don't exist
func createTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS alert_events (
			id UUID PRIMARY KEY,
			created_at TIMESTAMPTZ NOT NULL,
			severity TEXT NOT NULL,
			score DOUBLE PRECISION NOT NULL,
			violations TEXT[] NOT NULL,
			details JSONB NOT NULL,
			volume BIGINT NOT NULL,
			status TEXT NOT NULL,
			auth_code TEXT NOT NULL,
			observed_at TIMESTAMPTZ NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("creating alert_events: %w", err)
	}

	_, err = db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS alert_subscribers (
			chat_id BIGINT PRIMARY KEY,
			created_at TIMESTAMPTZ NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("creating alert_subscribers: %w", err)
	}

	return nil
}

// InsertAlert stores a routed alert; inserting the same alert twice is a no-op
func (db *DB) InsertAlert(ctx context.Context, alert models.AlertEvent) error {
	details, err := json.Marshal(alert.Violations)
	if err != nil {
		return fmt.Errorf("encoding violations: %w", err)
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO alert_events (
			id, created_at, severity, score, violations, details, volume, status, auth_code, observed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING
	`,
		alert.ID, alert.Timestamp, alert.Severity.String(), alert.Score,
		pq.Array(models.Messages(alert.Violations)), details,
		alert.Context.Volume, string(alert.Context.Status), alert.Context.AuthCode, alert.Context.Timestamp)

	return err
}

// RecentAlerts returns the newest alerts first
func (db *DB) RecentAlerts(ctx context.Context, limit int) ([]models.AlertEvent, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, created_at, severity, score, details, volume, status, auth_code, observed_at
		FROM alert_events
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []models.AlertEvent
	for rows.Next() {
		var (
			a        models.AlertEvent
			severity string
			status   string
			details  []byte
		)
		if err := rows.Scan(&a.ID, &a.Timestamp, &severity, &a.Score, &details,
			&a.Context.Volume, &status, &a.Context.AuthCode, &a.Context.Timestamp); err != nil {
			return nil, err
		}

		if a.Severity, err = models.ParseSeverity(severity); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(details, &a.Violations); err != nil {
			return nil, fmt.Errorf("decoding violations: %w", err)
		}
		a.Context.Status = models.Status(status)
		alerts = append(alerts, a)
	}

	return alerts, rows.Err()
}

// AddSubscriber records a chat that wants alert messages
func (db *DB) AddSubscriber(ctx context.Context, chatID int64) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO alert_subscribers (chat_id, created_at)
		VALUES ($1, $2)
		ON CONFLICT (chat_id) DO NOTHING
	`, chatID, time.Now())

	return err
}

// RemoveSubscriber deletes a chat from the alert list
func (db *DB) RemoveSubscriber(ctx context.Context, chatID int64) error {
	_, err := db.ExecContext(ctx, `DELETE FROM alert_subscribers WHERE chat_id = $1`, chatID)
	return err
}

// Subscribers returns every subscribed chat ID
func (db *DB) Subscribers(ctx context.Context) ([]int64, error) {
	rows, err := db.QueryContext(ctx, `SELECT chat_id FROM alert_subscribers ORDER BY chat_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

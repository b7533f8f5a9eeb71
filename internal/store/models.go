package store

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// Task status values.
const (
	TaskQueued    = "queued"
	TaskAssigned  = "assigned"
	TaskFinalized = "finalized"
	TaskFailed    = "failed"
)

// Worker status values.
const (
	WorkerActive  = "active"
	WorkerStale   = "stale"
	WorkerOffline = "offline"
)

type Task struct {
	ID                   string
	Text                 string
	Type                 string
	Status               string
	FinalLabel           sql.NullString
	RequiredSubmissions  int
	CreatedAt            time.Time
	ReservedBy           sql.NullString
	LeaseExpiresAt       sql.NullTime
	Attempts             int
	MaxAttempts          int
	ErrorMessage         string
}

type Submission struct {
	ID         int64
	TaskID     string
	WorkerID   string
	Label      string
	Confidence float64
	CreatedAt  time.Time
}

type Worker struct {
	WorkerID     string
	Status       string
	LastSeen     sql.NullTime
	CreatedAt    time.Time
	Capabilities []string
}

type WorkerScore struct {
	WorkerID string
	Points   int
}

func NewID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// formatTimestamp writes a fixed-width UTC timestamp (nine fractional
// digits, trailing zeros kept), so SQL text comparison and ORDER BY on the
// stored value agree with chronological order.
func formatTimestamp(ts time.Time) string {
	return ts.UTC().Format("2006-01-02T15:04:05.000000000Z07:00")
}

func parseTimestamp(v string) (time.Time, error) {
	ts, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse timestamp %q: %w", v, err)
	}
	return ts, nil
}

func sqlToNullTime(raw sql.NullString) (sql.NullTime, error) {
	if !raw.Valid || raw.String == "" {
		return sql.NullTime{}, nil
	}
	ts, err := parseTimestamp(raw.String)
	if err != nil {
		return sql.NullTime{}, err
	}
	return sql.NullTime{Time: ts, Valid: true}, nil
}

func encodeStringSlice(values []string) (string, error) {
	if values == nil {
		values = []string{}
	}
	buf, err := json.Marshal(values)
	if err != nil {
		return "", fmt.Errorf("failed to encode string slice: %w", err)
	}
	return string(buf), nil
}

func decodeStringSlice(raw string) ([]string, error) {
	if raw == "" {
		return []string{}, nil
	}
	var values []string
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil, fmt.Errorf("failed to decode string slice: %w", err)
	}
	return values, nil
}

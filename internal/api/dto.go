package api

import (
	"time"

	"github.com/user/taskmarket/internal/store"
)

// taskView flattens store.Task's sql.Null* fields into plain JSON values.
type taskView struct {
	ID                  string     `json:"id"`
	Text                string     `json:"text"`
	Type                string     `json:"type,omitempty"`
	Status              string     `json:"status"`
	FinalLabel          *string    `json:"final_label,omitempty"`
	RequiredSubmissions int        `json:"required_submissions"`
	CreatedAt           time.Time  `json:"created_at"`
	ReservedBy          *string    `json:"reserved_by,omitempty"`
	LeaseExpiresAt      *time.Time `json:"lease_expires_at,omitempty"`
	Attempts            int        `json:"attempts"`
	MaxAttempts         int        `json:"max_attempts"`
	ErrorMessage        string     `json:"error_message,omitempty"`
}

func newTaskView(t *store.Task) taskView {
	v := taskView{
		ID:                  t.ID,
		Text:                t.Text,
		Type:                t.Type,
		Status:              t.Status,
		RequiredSubmissions: t.RequiredSubmissions,
		CreatedAt:           t.CreatedAt,
		Attempts:            t.Attempts,
		MaxAttempts:         t.MaxAttempts,
		ErrorMessage:        t.ErrorMessage,
	}
	if t.FinalLabel.Valid {
		v.FinalLabel = &t.FinalLabel.String
	}
	if t.ReservedBy.Valid {
		v.ReservedBy = &t.ReservedBy.String
	}
	if t.LeaseExpiresAt.Valid {
		v.LeaseExpiresAt = &t.LeaseExpiresAt.Time
	}
	return v
}

func newTaskViews(tasks []*store.Task) []taskView {
	views := make([]taskView, 0, len(tasks))
	for _, t := range tasks {
		views = append(views, newTaskView(t))
	}
	return views
}

type submissionView struct {
	ID         int64     `json:"id"`
	WorkerID   string    `json:"worker_id"`
	Label      string    `json:"label"`
	Confidence float64   `json:"confidence"`
	CreatedAt  time.Time `json:"created_at"`
}

func newSubmissionView(s *store.Submission) submissionView {
	return submissionView{
		ID:         s.ID,
		WorkerID:   s.WorkerID,
		Label:      s.Label,
		Confidence: s.Confidence,
		CreatedAt:  s.CreatedAt,
	}
}

func newSubmissionViews(subs []*store.Submission) []submissionView {
	views := make([]submissionView, 0, len(subs))
	for _, s := range subs {
		views = append(views, newSubmissionView(s))
	}
	return views
}

type workerView struct {
	WorkerID     string    `json:"worker_id"`
	Status       string    `json:"status"`
	LastSeen     *time.Time `json:"last_seen,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	Capabilities []string  `json:"capabilities,omitempty"`
}

func newWorkerView(w *store.Worker) workerView {
	v := workerView{
		WorkerID:     w.WorkerID,
		Status:       w.Status,
		CreatedAt:    w.CreatedAt,
		Capabilities: w.Capabilities,
	}
	if w.LastSeen.Valid {
		v.LastSeen = &w.LastSeen.Time
	}
	return v
}

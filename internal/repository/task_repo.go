package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"mailsync/internal/model"
	"mailsync/pkg/metrics"
)

type TaskRepository struct {
	db *pgxpool.Pool
}

func NewTaskRepository(db *pgxpool.Pool) *TaskRepository {
	return &TaskRepository{db: db}
}

// ListByLead returns all tasks for a lead, newest first.
func (r *TaskRepository) ListByLead(ctx context.Context, leadID uuid.UUID) ([]model.Task, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQueryDuration("list_by_lead", "tasks", time.Since(start)) }()

	query := `
        SELECT id, lead_id, site_id, kind, stage, status, title, due_at, created_at, completed_at
        FROM tasks
        WHERE lead_id = $1
        ORDER BY created_at DESC
    `
	rows, err := r.db.Query(ctx, query, leadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []model.Task
	for rows.Next() {
		var t model.Task
		if err := rows.Scan(&t.ID, &t.LeadID, &t.SiteID, &t.Kind, &t.Stage, &t.Status, &t.Title, &t.DueAt, &t.CreatedAt, &t.CompletedAt); err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}

	return tasks, rows.Err()
}

// Create inserts a task.
func (r *TaskRepository) Create(ctx context.Context, t *model.Task) error {
	start := time.Now()
	defer func() { metrics.RecordDBQueryDuration("create", "tasks", time.Since(start)) }()

	query := `
        INSERT INTO tasks (id, lead_id, site_id, kind, stage, status, title, due_at, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
    `
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	_, err := r.db.Exec(ctx, query, t.ID, t.LeadID, t.SiteID, t.Kind, t.Stage, t.Status, t.Title, t.DueAt)
	return err
}

// Complete marks a task completed.
func (r *TaskRepository) Complete(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE tasks SET status = 'completed', completed_at = NOW() WHERE id = $1`
	_, err := r.db.Exec(ctx, query, id)
	return err
}

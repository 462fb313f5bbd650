package store

import (
	"context"

	"github.com/Condor83/vehicle-inventory-system-v2/internal/domain"
	"github.com/google/uuid"
)

// CreateJob inserts a new ScrapeJob in the `pending` state.
func (s *Store) CreateJob(ctx context.Context, model, region string, targetCount int) (*domain.ScrapeJob, error) {
	job := &domain.ScrapeJob{
		ID:          uuid.New(),
		Model:       model,
		Region:      region,
		Status:      domain.JobStatusPending,
		TargetCount: targetCount,
	}
	err := s.db.QueryRow(ctx, `
		INSERT INTO scrape_jobs (id, model, region, status, target_count, success_count, fail_count)
		VALUES ($1, $2, $3, $4, $5, 0, 0)
		RETURNING created_at
	`, job.ID, job.Model, job.Region, job.Status, job.TargetCount).Scan(&job.CreatedAt)
	if err != nil {
		return nil, err
	}
	return job, nil
}

// StartJob transitions a job to `running` and stamps started_at.
func (s *Store) StartJob(ctx context.Context, jobID uuid.UUID) error {
	_, err := s.db.Exec(ctx, `
		UPDATE scrape_jobs SET status = $2, started_at = now() WHERE id = $1
	`, jobID, domain.JobStatusRunning)
	return err
}

// CloseJob persists the final job status and counters.
func (s *Store) CloseJob(ctx context.Context, jobID uuid.UUID, status string, successCount, failCount int) error {
	_, err := s.db.Exec(ctx, `
		UPDATE scrape_jobs
		SET status = $2, success_count = $3, fail_count = $4, completed_at = now()
		WHERE id = $1
	`, jobID, status, successCount, failCount)
	return err
}

// GetJob loads a job and its tasks for the status-query control surface.
func (s *Store) GetJob(ctx context.Context, jobID uuid.UUID) (*domain.ScrapeJob, error) {
	var job domain.ScrapeJob
	err := s.db.QueryRow(ctx, `
		SELECT id, created_at, started_at, completed_at, model, region, status,
		       target_count, success_count, fail_count, notes
		FROM scrape_jobs WHERE id = $1
	`, jobID).Scan(
		&job.ID, &job.CreatedAt, &job.StartedAt, &job.CompletedAt, &job.Model, &job.Region,
		&job.Status, &job.TargetCount, &job.SuccessCount, &job.FailCount, &job.Notes,
	)
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// CreateTask inserts a pending task row for one dealer within a job.
func (s *Store) CreateTask(ctx context.Context, jobID uuid.UUID, dealerID int64, url string) (int64, error) {
	var id int64
	err := s.db.QueryRow(ctx, `
		INSERT INTO scrape_tasks (job_id, dealer_id, url, attempt, status)
		VALUES ($1, $2, $3, 1, $4)
		RETURNING id
	`, jobID, dealerID, url, domain.TaskStatusPending).Scan(&id)
	return id, err
}

// UpdateTask persists the task's terminal or in-progress state.
func (s *Store) UpdateTask(ctx context.Context, t domain.ScrapeTask) error {
	_, err := s.db.Exec(ctx, `
		UPDATE scrape_tasks
		SET url = $2, attempt = $3, status = $4, http_status = $5, error = $6,
		    started_at = $7, completed_at = $8
		WHERE id = $1
	`, t.ID, t.URL, t.Attempt, t.Status, t.HTTPStatus, t.Error, t.StartedAt, t.CompletedAt)
	return err
}

// ListTasksForJob returns every task belonging to a job, for JobSummary assembly.
func (s *Store) ListTasksForJob(ctx context.Context, jobID uuid.UUID) ([]domain.ScrapeTask, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, job_id, dealer_id, url, attempt, status, http_status, error, started_at, completed_at
		FROM scrape_tasks WHERE job_id = $1 ORDER BY id
	`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []domain.ScrapeTask
	for rows.Next() {
		var t domain.ScrapeTask
		if err := rows.Scan(&t.ID, &t.JobID, &t.DealerID, &t.URL, &t.Attempt, &t.Status,
			&t.HTTPStatus, &t.Error, &t.StartedAt, &t.CompletedAt); err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

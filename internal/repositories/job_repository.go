package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"thumbnailer/internal/models"
)

var ErrJobNotFound = errors.New("job not found")
var ErrJobExists = errors.New("job already exists")
var ErrJobNotQueued = errors.New("job is not queued")

// DB is the subset of *pgxpool.Pool the repository uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const jobSchema = `
CREATE TABLE IF NOT EXISTS thumbnail_jobs (
	id                   text PRIMARY KEY,
	status               text NOT NULL,
	source_location      text NOT NULL,
	destination_location text NOT NULL,
	tool_arguments       text NOT NULL DEFAULT '',
	return_tool_output   boolean NOT NULL DEFAULT false,
	is_successful        boolean,
	error_text           text,
	tool_output          text,
	exit_code            integer,
	uploaded             text[],
	created_at           timestamptz NOT NULL DEFAULT now(),
	started_at           timestamptz,
	finished_at          timestamptz
)`

type JobRepository struct {
	db DB
}

func NewJobRepository(db DB) *JobRepository {
	return &JobRepository{db: db}
}

// EnsureSchema creates the jobs table when it does not exist yet.
func (r *JobRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, jobSchema); err != nil {
		return fmt.Errorf("ensure job schema: %w", err)
	}
	return nil
}

func (r *JobRepository) Create(ctx context.Context, j *models.Job) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO thumbnail_jobs (id, status, source_location, destination_location, tool_arguments, return_tool_output)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING created_at
	`, j.ID, string(models.JobQueued), j.SourceLocation, j.DestinationLocation, j.ToolArguments, j.ReturnToolOutput).Scan(&j.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrJobExists
		}
		return fmt.Errorf("insert job: %w", err)
	}
	j.Status = models.JobQueued
	return nil
}

func (r *JobRepository) Get(ctx context.Context, id string) (*models.Job, error) {
	var (
		j          models.Job
		status     string
		successful *bool
		errorText  *string
		toolOutput *string
		exitCode   *int32
		uploaded   []string
	)

	err := r.db.QueryRow(ctx, `
		SELECT id, status, source_location, destination_location, tool_arguments, return_tool_output,
		       is_successful, error_text, tool_output, exit_code, uploaded,
		       created_at, started_at, finished_at
		FROM thumbnail_jobs
		WHERE id=$1
	`, id).Scan(
		&j.ID,
		&status,
		&j.SourceLocation,
		&j.DestinationLocation,
		&j.ToolArguments,
		&j.ReturnToolOutput,
		&successful,
		&errorText,
		&toolOutput,
		&exitCode,
		&uploaded,
		&j.CreatedAt,
		&j.StartedAt,
		&j.FinishedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isUndefinedTable(err) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("select job: %w", err)
	}

	j.Status = models.JobStatus(status)
	if successful != nil {
		j.Result = &models.JobOutcome{
			IsSuccessful: *successful,
			ErrorText:    deref(errorText),
			ToolOutput:   deref(toolOutput),
			Uploaded:     uploaded,
		}
		if exitCode != nil {
			j.Result.ExitCode = int(*exitCode)
		}
	}
	return &j, nil
}

// MarkRunning moves a queued job to RUNNING. It returns ErrJobNotQueued
// when another consumer already claimed the job or it has finished.
func (r *JobRepository) MarkRunning(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE thumbnail_jobs
		SET status=$2, started_at=$3
		WHERE id=$1 AND status=$4
	`, id, string(models.JobRunning), time.Now().UTC(), string(models.JobQueued))
	if err != nil {
		return fmt.Errorf("mark job running: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotQueued
	}
	return nil
}

// Finish records the outcome. The status is DONE for a successful outcome
// and FAILED otherwise.
func (r *JobRepository) Finish(ctx context.Context, id string, out *models.JobOutcome) error {
	status := models.JobFailed
	if out.IsSuccessful {
		status = models.JobDone
	}

	tag, err := r.db.Exec(ctx, `
		UPDATE thumbnail_jobs
		SET status=$2, is_successful=$3, error_text=$4, tool_output=$5, exit_code=$6, uploaded=$7, finished_at=$8
		WHERE id=$1
	`, id, string(status), out.IsSuccessful, out.ErrorText, nullIfEmpty(out.ToolOutput), int32(out.ExitCode), out.Uploaded, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("finish job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

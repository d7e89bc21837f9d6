package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jengzang/farm-advisory-backend-go/internal/models"
)

// ErrNotFound is returned when a row does not exist
var ErrNotFound = errors.New("not found")

// SubmissionRepository handles database operations for submitted forms
type SubmissionRepository struct {
	db *sql.DB
}

// NewSubmissionRepository creates a new submission repository
func NewSubmissionRepository(db *sql.DB) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

const submissionColumns = `
	id, form_id, nitrogen, phosphorus, potassium, ph,
	temperature, humidity, rainfall, latitude, longitude, address,
	budget_per_hectare, farm_size_hectares, published, created_at
`

// Create stores a submission
func (r *SubmissionRepository) Create(ctx context.Context, s *models.Submission) error {
	query := `INSERT INTO submissions (` + submissionColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?)`

	_, err := r.db.ExecContext(ctx, query,
		s.ID,
		s.FormID,
		s.SoilParameters.N,
		s.SoilParameters.P,
		s.SoilParameters.K,
		s.SoilParameters.PH,
		s.SoilParameters.Temperature,
		s.SoilParameters.Humidity,
		s.SoilParameters.Rainfall,
		s.Location.Latitude,
		s.Location.Longitude,
		s.Location.Address,
		s.BudgetPerHectare,
		s.FarmSizeHectares,
		s.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to create submission: %w", err)
	}
	return nil
}

// GetByID retrieves a submission by ID
func (r *SubmissionRepository) GetByID(ctx context.Context, id string) (*models.Submission, error) {
	query := `SELECT ` + submissionColumns + ` FROM submissions WHERE id = ?`

	s, err := scanSubmission(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("submission %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get submission: %w", err)
	}
	return s, nil
}

// ListByForm retrieves the submissions of a form, newest first
func (r *SubmissionRepository) ListByForm(ctx context.Context, formID string, limit int) ([]models.Submission, error) {
	query := `SELECT ` + submissionColumns + ` FROM submissions WHERE form_id = ? ORDER BY created_at DESC LIMIT ?`
	return r.list(ctx, query, formID, limit)
}

// ListUnpublished retrieves submissions not yet handed to the broker, oldest first
func (r *SubmissionRepository) ListUnpublished(ctx context.Context, limit int) ([]models.Submission, error) {
	query := `SELECT ` + submissionColumns + ` FROM submissions WHERE published = 0 ORDER BY created_at ASC LIMIT ?`
	return r.list(ctx, query, limit)
}

// MarkPublished flags a submission as delivered
func (r *SubmissionRepository) MarkPublished(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "UPDATE submissions SET published = 1 WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to mark submission published: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("submission %s: %w", id, ErrNotFound)
	}
	return nil
}

func (r *SubmissionRepository) list(ctx context.Context, query string, args ...interface{}) ([]models.Submission, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query submissions: %w", err)
	}
	defer rows.Close()

	var out []models.Submission
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan submission: %w", err)
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSubmission(row rowScanner) (*models.Submission, error) {
	var (
		s         models.Submission
		published int
		createdAt int64
	)
	err := row.Scan(
		&s.ID,
		&s.FormID,
		&s.SoilParameters.N,
		&s.SoilParameters.P,
		&s.SoilParameters.K,
		&s.SoilParameters.PH,
		&s.SoilParameters.Temperature,
		&s.SoilParameters.Humidity,
		&s.SoilParameters.Rainfall,
		&s.Location.Latitude,
		&s.Location.Longitude,
		&s.Location.Address,
		&s.BudgetPerHectare,
		&s.FarmSizeHectares,
		&published,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}
	s.Published = published != 0
	s.CreatedAt = time.UnixMilli(createdAt).UTC()
	return &s, nil
}

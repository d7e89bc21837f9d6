package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jengzang/farm-advisory-backend-go/internal/events"
	"github.com/jengzang/farm-advisory-backend-go/internal/models"
	"github.com/jengzang/farm-advisory-backend-go/internal/repository"
)

// SubmissionService validates, stores and publishes submitted forms
type SubmissionService struct {
	forms     *FormService
	repo      *repository.SubmissionRepository
	publisher events.Publisher
	logger    *zap.Logger
}

// NewSubmissionService creates a new submission service
func NewSubmissionService(forms *FormService, repo *repository.SubmissionRepository, publisher events.Publisher, logger *zap.Logger) *SubmissionService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubmissionService{forms: forms, repo: repo, publisher: publisher, logger: logger}
}

// Submit validates a form and records it. A *reconciler.ValidationError is
// returned when the form is incomplete. Publishing failures are logged and
// retried later by RetryUnpublished.
func (s *SubmissionService) Submit(ctx context.Context, formID string) (*models.Submission, error) {
	rec, err := s.forms.Reconciler(formID)
	if err != nil {
		return nil, err
	}

	sub, err := rec.Submission(formID)
	if err != nil {
		return nil, err
	}
	sub.ID = uuid.NewString()

	if err := s.repo.Create(ctx, &sub); err != nil {
		return nil, fmt.Errorf("failed to store submission: %w", err)
	}
	s.logger.Info("form submitted", zap.String("form_id", formID), zap.String("submission_id", sub.ID))

	if err := s.publish(ctx, &sub); err != nil {
		s.logger.Warn("submission not published yet", zap.String("submission_id", sub.ID), zap.Error(err))
	}
	return &sub, nil
}

// Get retrieves a stored submission
func (s *SubmissionService) Get(ctx context.Context, id string) (*models.Submission, error) {
	return s.repo.GetByID(ctx, id)
}

// ListByForm retrieves the stored submissions of a form
func (s *SubmissionService) ListByForm(ctx context.Context, formID string, limit int) ([]models.Submission, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.repo.ListByForm(ctx, formID, limit)
}

// RetryUnpublished republishes stored submissions the broker has not accepted yet
func (s *SubmissionService) RetryUnpublished(ctx context.Context) (int, error) {
	pending, err := s.repo.ListUnpublished(ctx, 100)
	if err != nil {
		return 0, err
	}

	published := 0
	for i := range pending {
		if err := s.publish(ctx, &pending[i]); err != nil {
			return published, err
		}
		published++
	}
	return published, nil
}

func (s *SubmissionService) publish(ctx context.Context, sub *models.Submission) error {
	if err := s.publisher.Publish(ctx, *sub); err != nil {
		return err
	}
	if err := s.repo.MarkPublished(ctx, sub.ID); err != nil {
		return err
	}
	sub.Published = true
	return nil
}

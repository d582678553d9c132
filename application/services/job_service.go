package services

import (
	"context"

	"go.uber.org/zap"

	"github.com/gpazevedo/alex/application/ports"
	"github.com/gpazevedo/alex/domain/core/entities"
	"github.com/gpazevedo/alex/domain/core/valueobjects"
	"github.com/gpazevedo/alex/domain/events"
	pkgerrors "github.com/gpazevedo/alex/pkg/errors"
	"github.com/gpazevedo/alex/pkg/observability"
)

// JobService fronts the job ledger for API callers and pipeline stages
type JobService struct {
	jobs   ports.JobLedger
	events eventEmitter
	logger *zap.Logger
}

// NewJobService creates a new job service
func NewJobService(jobs ports.JobLedger, publisher ports.EventPublisher, metrics *observability.Collector, logger *zap.Logger) *JobService {
	return &JobService{
		jobs:   jobs,
		events: eventEmitter{publisher: publisher, metrics: metrics, logger: logger},
		logger: logger,
	}
}

// Create registers a pending job for the caller
func (s *JobService) Create(ctx context.Context, userID, jobType string, request entities.Payload) (*entities.Job, error) {
	job := &entities.Job{
		ClerkUserID:    userID,
		JobType:        jobType,
		Status:         valueobjects.JobStatusPending,
		RequestPayload: request,
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// Get returns the caller's job
func (s *JobService) Get(ctx context.Context, userID, jobID string) (*entities.Job, error) {
	job, err := s.jobs.FindByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, pkgerrors.NewNotFoundError("job " + jobID)
	}
	if !job.OwnedBy(userID) {
		return nil, pkgerrors.NewForbiddenError("job belongs to another user")
	}
	return job, nil
}

// List returns the caller's jobs newest first
func (s *JobService) List(ctx context.Context, userID string, filter ports.JobFilter) ([]*entities.Job, error) {
	return s.jobs.FindByUser(ctx, userID, filter)
}

// UpdateStatus moves the caller's job forward. Regressions such as
// completed -> running are rejected with a conflict.
func (s *JobService) UpdateStatus(ctx context.Context, userID, jobID string, status valueobjects.JobStatus, errorMessage string) (*entities.Job, error) {
	job, err := s.Get(ctx, userID, jobID)
	if err != nil {
		return nil, err
	}
	if !status.IsValid() {
		return nil, pkgerrors.NewValidationErrorf("invalid job status %q", status)
	}
	if !job.Status.CanTransitionTo(status) {
		return nil, pkgerrors.NewConflictError("job cannot move from " + string(job.Status) + " to " + string(status))
	}

	n, err := s.jobs.UpdateStatus(ctx, jobID, status, errorMessage)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, pkgerrors.NewNotFoundError("job " + jobID)
	}

	updated, err := s.jobs.FindByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		updated = job
		updated.Status = status
	}
	s.events.emit(ctx, events.NewJobStatusChanged(jobID, job.ClerkUserID, status, errorMessage, timeOrNow(updated.UpdatedAt)))
	return updated, nil
}

// UpdatePayload stores one pipeline stage's output on the caller's job
// without touching the other payload fields
func (s *JobService) UpdatePayload(ctx context.Context, userID, jobID string, field entities.JobField, payload entities.Payload) error {
	if _, err := s.Get(ctx, userID, jobID); err != nil {
		return err
	}
	return s.RecordStage(ctx, jobID, field, payload)
}

// RecordStage stores a pipeline stage's output by job id alone. Stages run
// outside any user session, so ownership is not checked.
func (s *JobService) RecordStage(ctx context.Context, jobID string, field entities.JobField, payload entities.Payload) error {
	var update func(context.Context, string, entities.Payload) (int, error)
	switch field {
	case entities.JobFieldReport:
		update = s.jobs.UpdateReport
	case entities.JobFieldCharts:
		update = s.jobs.UpdateCharts
	case entities.JobFieldRetirement:
		update = s.jobs.UpdateRetirement
	case entities.JobFieldSummary:
		update = s.jobs.UpdateSummary
	default:
		return pkgerrors.NewValidationErrorf("unknown job field %q", field)
	}

	n, err := update(ctx, jobID, payload)
	if err != nil {
		return err
	}
	if n == 0 {
		return pkgerrors.NewNotFoundError("job " + jobID)
	}
	s.logger.Info("Job stage recorded", zap.String("jobID", jobID), zap.String("field", string(field)))
	return nil
}

// ListAll returns jobs of every user for operators
func (s *JobService) ListAll(ctx context.Context, limit int) ([]*entities.Job, error) {
	return s.jobs.FindAll(ctx, limit)
}

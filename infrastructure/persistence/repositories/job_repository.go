package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gpazevedo/alex/application/ports"
	"github.com/gpazevedo/alex/domain/core/entities"
	"github.com/gpazevedo/alex/domain/core/valueobjects"
	"github.com/gpazevedo/alex/infrastructure/persistence/abstractions"
	"github.com/gpazevedo/alex/infrastructure/persistence/keys"
	"github.com/gpazevedo/alex/infrastructure/persistence/schema"
	pkgerrors "github.com/gpazevedo/alex/pkg/errors"
)

// DefaultJobLimit caps FindByUser when no limit is given
const DefaultJobLimit = 20

// JobRepository stores jobs under their owner's partition. A JOBID#<id> /
// METADATA record points back to that key so ids resolve with consistent
// reads; GSI2 groups jobs by status.
type JobRepository struct {
	table   abstractions.Table
	indexes schema.IndexNames
	logger  *zap.Logger
	opts    options
}

var _ ports.JobLedger = (*JobRepository)(nil)

// NewJobRepository creates a new JobRepository
func NewJobRepository(table abstractions.Table, indexes schema.IndexNames, logger *zap.Logger, opts ...Option) *JobRepository {
	return &JobRepository{table: table, indexes: indexes, logger: loggerOrNop(logger), opts: applyOptions(opts)}
}

type jobItem struct {
	PK                string                 `dynamodbav:"PK"`
	SK                string                 `dynamodbav:"SK"`
	GSI2PK            string                 `dynamodbav:"GSI2PK"` // jobs by status
	GSI2SK            string                 `dynamodbav:"GSI2SK"`
	ID                string                 `dynamodbav:"id"`
	ClerkUserID       string                 `dynamodbav:"clerk_user_id"`
	JobType           string                 `dynamodbav:"job_type"`
	Status            string                 `dynamodbav:"status"`
	RequestPayload    map[string]interface{} `dynamodbav:"request_payload,omitempty"`
	ReportPayload     map[string]interface{} `dynamodbav:"report_payload,omitempty"`
	ChartsPayload     map[string]interface{} `dynamodbav:"charts_payload,omitempty"`
	RetirementPayload map[string]interface{} `dynamodbav:"retirement_payload,omitempty"`
	SummaryPayload    map[string]interface{} `dynamodbav:"summary_payload,omitempty"`
	ErrorMessage      string                 `dynamodbav:"error_message,omitempty"`
	CreatedAt         string                 `dynamodbav:"created_at"`
	UpdatedAt         string                 `dynamodbav:"updated_at,omitempty"`
	StartedAt         string                 `dynamodbav:"started_at,omitempty"`
	CompletedAt       string                 `dynamodbav:"completed_at,omitempty"`
}

// jobRef is the by-id record of a job
type jobRef struct {
	PK          string `dynamodbav:"PK"`
	SK          string `dynamodbav:"SK"`
	ID          string `dynamodbav:"id"`
	ClerkUserID string `dynamodbav:"clerk_user_id"`
	JobPK       string `dynamodbav:"job_pk"`
	JobSK       string `dynamodbav:"job_sk"`
}

func (r jobRef) key() abstractions.Key {
	return abstractions.Key{PartitionKey: r.JobPK, SortKey: r.JobSK}
}

func (i jobItem) toEntity() *entities.Job {
	return &entities.Job{
		ID:                i.ID,
		ClerkUserID:       i.ClerkUserID,
		JobType:           i.JobType,
		Status:            valueobjects.JobStatus(i.Status),
		RequestPayload:    i.RequestPayload,
		ReportPayload:     i.ReportPayload,
		ChartsPayload:     i.ChartsPayload,
		RetirementPayload: i.RetirementPayload,
		SummaryPayload:    i.SummaryPayload,
		ErrorMessage:      i.ErrorMessage,
		CreatedAt:         parseTime(i.CreatedAt),
		UpdatedAt:         parseTimePtr(i.UpdatedAt),
		StartedAt:         parseTimePtr(i.StartedAt),
		CompletedAt:       parseTimePtr(i.CompletedAt),
	}
}

// Create assigns an id and pending status when missing and writes the job.
// The by-id record is written first; a failure after it leaves a reference
// that resolves to nothing.
func (r *JobRepository) Create(ctx context.Context, job *entities.Job) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if err := keys.ValidateIdentifier("job_id", job.ID); err != nil {
		return pkgerrors.NewValidationError(err.Error())
	}
	if job.Status == "" {
		job.Status = valueobjects.JobStatusPending
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = r.opts.now()
	}
	job.CreatedAt = job.CreatedAt.UTC()
	if err := job.Validate(); err != nil {
		return err
	}

	item, err := attributevalue.MarshalMap(jobItem{
		PK:                keys.UserPK(job.ClerkUserID),
		SK:                keys.JobSK(job.CreatedAt, job.ID),
		GSI2PK:            keys.JobStatusKey(string(job.Status)),
		GSI2SK:            keys.JobStatusSortKey(job.ClerkUserID, job.CreatedAt),
		ID:                job.ID,
		ClerkUserID:       job.ClerkUserID,
		JobType:           job.JobType,
		Status:            string(job.Status),
		RequestPayload:    job.RequestPayload,
		ReportPayload:     job.ReportPayload,
		ChartsPayload:     job.ChartsPayload,
		RetirementPayload: job.RetirementPayload,
		SummaryPayload:    job.SummaryPayload,
		ErrorMessage:      job.ErrorMessage,
		CreatedAt:         formatTime(job.CreatedAt),
		UpdatedAt:         formatTimePtr(job.UpdatedAt),
		StartedAt:         formatTimePtr(job.StartedAt),
		CompletedAt:       formatTimePtr(job.CompletedAt),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	ref, err := attributevalue.MarshalMap(jobRef{
		PK:          keys.JobIDKey(job.ID),
		SK:          keys.Metadata,
		ID:          job.ID,
		ClerkUserID: job.ClerkUserID,
		JobPK:       keys.UserPK(job.ClerkUserID),
		JobSK:       keys.JobSK(job.CreatedAt, job.ID),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal job reference: %w", err)
	}

	if err := r.table.Put(ctx, ref); err != nil {
		return fmt.Errorf("failed to save job reference: %w", err)
	}
	if err := r.table.Put(ctx, item); err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}

	r.logger.Info("Job created",
		zap.String("jobID", job.ID),
		zap.String("clerkUserID", job.ClerkUserID),
		zap.String("jobType", job.JobType),
	)
	return nil
}

// FindByID resolves a job through its by-id record; nil, nil when absent
func (r *JobRepository) FindByID(ctx context.Context, jobID string) (*entities.Job, error) {
	ref, err := r.resolve(ctx, jobID)
	if err != nil || ref == nil {
		return nil, err
	}

	item, err := r.table.Get(ctx, ref.key(), true)
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	if item == nil {
		return nil, nil
	}

	var record jobItem
	if err := attributevalue.UnmarshalMap(item, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	return record.toEntity(), nil
}

func (r *JobRepository) resolve(ctx context.Context, jobID string) (*jobRef, error) {
	if err := keys.ValidateIdentifier("job_id", jobID); err != nil {
		return nil, pkgerrors.NewValidationError(err.Error())
	}

	item, err := r.table.Get(ctx, abstractions.Key{PartitionKey: keys.JobIDKey(jobID), SortKey: keys.Metadata}, true)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve job id: %w", err)
	}
	if item == nil {
		return nil, nil
	}

	var ref jobRef
	if err := attributevalue.UnmarshalMap(item, &ref); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job reference: %w", err)
	}
	return &ref, nil
}

// FindByUser lists a user's jobs newest first. With a status filter the
// query goes through GSI2.
func (r *JobRepository) FindByUser(ctx context.Context, clerkUserID string, filter ports.JobFilter) ([]*entities.Job, error) {
	if err := keys.ValidateIdentifier("clerk_user_id", clerkUserID); err != nil {
		return nil, pkgerrors.NewValidationError(err.Error())
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultJobLimit
	}

	input := abstractions.QueryInput{
		PartitionValue: keys.UserPK(clerkUserID),
		Sort:           abstractions.BeginsWith(keys.JobPrefix),
		Descending:     true,
		Limit:          limit,
	}
	if filter.Status != nil {
		if !filter.Status.IsValid() {
			return nil, pkgerrors.NewValidationErrorf("invalid job status %q", *filter.Status)
		}
		input.Index = r.indexes.GSI2
		input.PartitionValue = keys.JobStatusKey(string(*filter.Status))
		input.Sort = abstractions.BeginsWith(keys.JobStatusUserPrefix(clerkUserID))
	}

	items, err := r.table.Query(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}

	jobs := make([]*entities.Job, 0, len(items))
	for _, item := range items {
		var record jobItem
		if err := attributevalue.UnmarshalMap(item, &record); err != nil {
			return nil, fmt.Errorf("failed to unmarshal job: %w", err)
		}
		jobs = append(jobs, record.toEntity())
	}
	return jobs, nil
}

// FindAll scans the table for job records of every user. It is meant for
// operators; API callers go through FindByUser.
func (r *JobRepository) FindAll(ctx context.Context, limit int) ([]*entities.Job, error) {
	items, err := r.table.Scan(ctx, abstractions.ScanInput{
		Sort:  abstractions.BeginsWith(keys.JobPrefix),
		Limit: limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan jobs: %w", err)
	}

	jobs := make([]*entities.Job, 0, len(items))
	for _, item := range items {
		var record jobItem
		if err := attributevalue.UnmarshalMap(item, &record); err != nil {
			return nil, fmt.Errorf("failed to unmarshal job: %w", err)
		}
		jobs = append(jobs, record.toEntity())
	}

	r.logger.Debug("All jobs loaded", zap.Int("count", len(jobs)))
	return jobs, nil
}

// UpdateStatus moves the job to status and re-keys it on GSI2. Transitions
// are not checked here.
func (r *JobRepository) UpdateStatus(ctx context.Context, jobID string, status valueobjects.JobStatus, errorMessage string) (int, error) {
	if !status.IsValid() {
		return 0, pkgerrors.NewValidationErrorf("invalid job status %q", status)
	}

	now := formatTime(r.opts.now())
	set := map[string]interface{}{
		"status":          string(status),
		"updated_at":      now,
		schema.AttrGSI2PK: keys.JobStatusKey(string(status)),
	}
	switch status {
	case valueobjects.JobStatusRunning:
		set["started_at"] = now
	case valueobjects.JobStatusCompleted, valueobjects.JobStatusFailed:
		set["completed_at"] = now
	}
	if errorMessage != "" {
		set["error_message"] = errorMessage
	}

	n, err := r.update(ctx, jobID, set)
	if err == nil && n > 0 {
		r.logger.Info("Job status updated",
			zap.String("jobID", jobID),
			zap.String("status", string(status)),
		)
	}
	return n, err
}

// UpdateReport sets report_payload only
func (r *JobRepository) UpdateReport(ctx context.Context, jobID string, payload entities.Payload) (int, error) {
	return r.updatePayload(ctx, jobID, entities.JobFieldReport, payload)
}

// UpdateCharts sets charts_payload only
func (r *JobRepository) UpdateCharts(ctx context.Context, jobID string, payload entities.Payload) (int, error) {
	return r.updatePayload(ctx, jobID, entities.JobFieldCharts, payload)
}

// UpdateRetirement sets retirement_payload only
func (r *JobRepository) UpdateRetirement(ctx context.Context, jobID string, payload entities.Payload) (int, error) {
	return r.updatePayload(ctx, jobID, entities.JobFieldRetirement, payload)
}

// UpdateSummary sets summary_payload only
func (r *JobRepository) UpdateSummary(ctx context.Context, jobID string, payload entities.Payload) (int, error) {
	return r.updatePayload(ctx, jobID, entities.JobFieldSummary, payload)
}

func (r *JobRepository) updatePayload(ctx context.Context, jobID string, field entities.JobField, payload entities.Payload) (int, error) {
	if payload == nil {
		payload = entities.Payload{}
	}
	n, err := r.update(ctx, jobID, map[string]interface{}{
		string(field): map[string]interface{}(payload),
	})
	if err == nil && n > 0 {
		r.logger.Info("Job payload stored", zap.String("jobID", jobID), zap.String("field", string(field)))
	}
	return n, err
}

// update resolves the job's primary key through its by-id record and applies
// a conditional update, so a dangling reference also reports 0.
func (r *JobRepository) update(ctx context.Context, jobID string, set map[string]interface{}) (int, error) {
	ref, err := r.resolve(ctx, jobID)
	if err != nil {
		return 0, err
	}
	if ref == nil {
		r.logger.Debug("Job not found for update", zap.String("jobID", jobID))
		return 0, nil
	}

	err = r.table.Update(ctx, abstractions.UpdateInput{
		Key:           ref.key(),
		Set:           set,
		RequireExists: true,
	})
	if errors.Is(err, abstractions.ErrConditionFailed) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to update job: %w", err)
	}
	return 1, nil
}

package entities

import (
	"time"

	"github.com/gpazevedo/alex/domain/core/valueobjects"
	pkgerrors "github.com/gpazevedo/alex/pkg/errors"
	"github.com/gpazevedo/alex/pkg/utils"
)

// Payload is an opaque JSON document written by a pipeline stage
type Payload map[string]interface{}

// JobField names the payload fields owned by independent writers
type JobField string

const (
	JobFieldReport     JobField = "report_payload"
	JobFieldCharts     JobField = "charts_payload"
	JobFieldRetirement JobField = "retirement_payload"
	JobFieldSummary    JobField = "summary_payload"
)

var jobStages = map[string]JobField{
	"report":     JobFieldReport,
	"charts":     JobFieldCharts,
	"retirement": JobFieldRetirement,
	"summary":    JobFieldSummary,
}

// JobFieldForStage maps a pipeline stage name (report, charts, retirement,
// summary) to the field it owns
func JobFieldForStage(stage string) (JobField, bool) {
	field, ok := jobStages[stage]
	return field, ok
}

// Job tracks an asynchronous analysis request
type Job struct {
	ID                string                 `json:"id"`
	ClerkUserID       string                 `json:"clerk_user_id" validate:"required,keysafe"`
	JobType           string                 `json:"job_type" validate:"required,max=100"`
	Status            valueobjects.JobStatus `json:"status"`
	RequestPayload    Payload                `json:"request_payload,omitempty"`
	ReportPayload     Payload                `json:"report_payload,omitempty"`
	ChartsPayload     Payload                `json:"charts_payload,omitempty"`
	RetirementPayload Payload                `json:"retirement_payload,omitempty"`
	SummaryPayload    Payload                `json:"summary_payload,omitempty"`
	ErrorMessage      string                 `json:"error_message,omitempty"`
	CreatedAt         time.Time              `json:"created_at"`
	UpdatedAt         *time.Time             `json:"updated_at,omitempty"`
	StartedAt         *time.Time             `json:"started_at,omitempty"`
	CompletedAt       *time.Time             `json:"completed_at,omitempty"`
}

// Validate checks a new job
func (j *Job) Validate() error {
	if err := utils.ValidateStruct(j); err != nil {
		return pkgerrors.NewValidationError(err.Error())
	}
	if !j.Status.IsValid() {
		return pkgerrors.NewValidationErrorf("invalid job status %q", j.Status)
	}
	return nil
}

// OwnedBy reports whether the job belongs to the user
func (j *Job) OwnedBy(userID string) bool {
	return j.ClerkUserID == userID
}

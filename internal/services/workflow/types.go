package workflow

import (
	"context"
	"errors"

	"claygrounds-desktop/internal/api"
	"claygrounds-desktop/internal/models"
	"claygrounds-desktop/internal/services/session"
)

// Step is one node of the report generation workflow
type Step string

const (
	StepSelection   Step = "selection"
	StepEmailAuth   Step = "email-auth"
	StepBucketFiles Step = "bucket-files"
	StepFileUpload  Step = "file-upload"
	StepProcessing  Step = "processing"
)

// steps in display order
var steps = []Step{StepSelection, StepEmailAuth, StepBucketFiles, StepFileUpload, StepProcessing}

// IsSource reports whether the step can be picked from selection
func (s Step) IsSource() bool {
	return s == StepEmailAuth || s == StepBucketFiles || s == StepFileUpload
}

// ClosePolicy decides what closing does while an operation is running
type ClosePolicy string

const (
	// ClosePreserve closes and keeps tracking; the next Open resumes processing
	ClosePreserve ClosePolicy = "preserve"
	// CloseRefuse keeps the workflow open and warns the user
	CloseRefuse ClosePolicy = "refuse"
)

// AllFiles selects every valid bucket file for processing
const AllFiles = "all"

const (
	msgStartFailed   = "Failed to start report processing"
	msgNetwork       = "Network error. Please try again."
	msgPollExhausted = "Lost contact with the server while tracking progress"
)

var (
	// ErrInvalidTransition is returned for an action the current step does not allow
	ErrInvalidTransition = errors.New("invalid workflow transition")
	// ErrOperationRunning is returned when an action would abandon a running operation
	ErrOperationRunning = errors.New("an operation is still running")
)

// Session signs in and starts the email report
type Session interface {
	SignIn(ctx context.Context, creds session.Credentials) session.Result
	SetError(msg string)
	ClearError()
	ClearOperationID()
}

// Processor starts bookings processing on the partner API
type Processor interface {
	StartProcessing(ctx context.Context, req api.ProcessRequest) (api.StartResult, error)
}

// Tracker polls the progress of one operation
type Tracker interface {
	Track(operationID string, expectedTotal int)
	Stop()
}

// Operations is the shared current operation slot
type Operations interface {
	SetCurrent(op *models.Operation)
	ApplySnapshot(snap *models.Snapshot) (*models.Operation, error)
	Current() *models.Operation
	IsRunning() bool
	SummaryLine() string
	Clear()
}

// Summaries persists finished operations
type Summaries interface {
	Save(ctx context.Context, summary models.ProgressSummary) (models.ProgressSummary, error)
}

// State is what the UI renders for the workflow
type State struct {
	Open             bool                       `json:"open"`
	Step             Step                       `json:"step"`
	Completed        []Step                     `json:"completedSteps"`
	Logs             map[Step][]models.LogEntry `json:"stepLogs"`
	SelectedFile     string                     `json:"selectedFile,omitempty"`
	UploadedFiles    []string                   `json:"uploadedFiles,omitempty"`
	UploadError      string                     `json:"uploadError,omitempty"`
	ProcessingError  string                     `json:"processingError,omitempty"`
	Starting         bool                       `json:"isProcessing"`
	Origin           Step                       `json:"processingStep,omitempty"`
	OperationID      string                     `json:"operationId,omitempty"`
	OperationRunning bool                       `json:"operationRunning"`
	// ProgressLost is set once polling gave up; retry resumes tracking and
	// back or close abandons the operation
	ProgressLost bool   `json:"progressLost"`
	Summary      string `json:"summary,omitempty"`
}

// IsCompleted reports whether step is marked done
func (s State) IsCompleted(step Step) bool {
	for _, c := range s.Completed {
		if c == step {
			return true
		}
	}
	return false
}

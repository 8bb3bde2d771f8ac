package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"claygrounds-desktop/internal/api"
	"claygrounds-desktop/internal/config"
	"claygrounds-desktop/internal/events"
	"claygrounds-desktop/internal/models"
	"claygrounds-desktop/internal/services/history"
	"claygrounds-desktop/internal/services/poller"
	"claygrounds-desktop/internal/services/session"
)

const summaryTimeout = 5 * time.Second

// Deps are the collaborators the machine drives
type Deps struct {
	Session    Session
	Processor  Processor
	Tracker    Tracker
	Operations Operations
	Summaries  Summaries
	Emitter    events.Emitter
}

// Machine is the report generation workflow. It owns the step, the per step
// logs and the completion guard; the operation itself lives in Operations.
//
// The machine never holds its lock while calling the Tracker, because the
// tracker delivers updates through HandleUpdate and waits for them on Stop.
type Machine struct {
	deps Deps
	cfg  config.WorkflowConfig
	log  *logrus.Entry
	now  func() time.Time

	mu          sync.Mutex
	open        bool
	step        Step
	completed   map[Step]bool
	logs        map[Step][]models.LogEntry
	selected    string
	uploaded    []string
	uploadErr   string
	procErr     string
	starting    bool
	origin      Step
	trackedID   string
	firedFor    string
	stalled     string // operation whose polling was exhausted
	returnTimer *time.Timer
}

// New creates a workflow machine at the selection step
func New(deps Deps, cfg config.WorkflowConfig, log *logrus.Entry) *Machine {
	if deps.Emitter == nil {
		deps.Emitter = events.Noop{}
	}
	return &Machine{
		deps:      deps,
		cfg:       cfg,
		log:       log.WithField("svc", "workflow"),
		now:       time.Now,
		step:      StepSelection,
		completed: make(map[Step]bool),
		logs:      make(map[Step][]models.LogEntry),
	}
}

// Open shows the workflow. A running operation resumes at the processing step.
func (m *Machine) Open() State {
	current := m.deps.Operations.Current()
	running := current != nil && current.Status.IsActive()

	m.mu.Lock()
	m.open = true
	resume := ""
	if running {
		m.step = StepProcessing
		m.completed[StepEmailAuth] = true
		m.completed[StepBucketFiles] = true
		m.completed[StepFileUpload] = true
		if m.trackedID != current.ID {
			m.trackedID = current.ID
			m.firedFor = ""
		}
		if m.stalled == current.ID {
			m.stalled = ""
			m.procErr = ""
		}
		resume = current.ID
	}
	m.mu.Unlock()

	if resume != "" {
		m.log.WithField("operation", resume).Info("Resuming running operation")
		m.deps.Tracker.Track(resume, current.VenueCount)
	}
	return m.emitState()
}

// Close hides the workflow. With an operation running the ClosePolicy
// decides: preserve keeps tracking and the processing step, refuse returns
// ErrOperationRunning. With nothing running the machine is reset.
func (m *Machine) Close() error {
	running := m.deps.Operations.IsRunning()
	if running && m.abandonStalled() {
		running = false
	}

	if running && ClosePolicy(m.cfg.ClosePolicy) == CloseRefuse {
		events.Notify(m.deps.Emitter, events.ToastWarning, "Operation in progress",
			"Please wait for the current operation to finish before closing.")
		return ErrOperationRunning
	}

	m.mu.Lock()
	m.open = false
	m.selected = ""
	m.uploaded = nil
	m.uploadErr = ""
	m.procErr = ""
	if !running {
		m.resetLocked()
	}
	m.mu.Unlock()

	m.deps.Session.ClearError()
	m.deps.Session.ClearOperationID()
	m.emitState()
	return nil
}

// Select moves from selection to one of the source steps
func (m *Machine) Select(step Step) error {
	if !step.IsSource() {
		return fmt.Errorf("%w: %q is not a source step", ErrInvalidTransition, step)
	}

	m.mu.Lock()
	if m.step != StepSelection {
		m.mu.Unlock()
		return fmt.Errorf("%w: select from %s", ErrInvalidTransition, m.step)
	}
	m.step = step
	if len(m.logs[step]) == 0 {
		m.addLogLocked(step, models.LogInfo, selectionLog(step))
	}
	m.mu.Unlock()

	m.emitState()
	return nil
}

// Back returns to selection. Leaving the processing step of a running
// operation is refused.
func (m *Machine) Back() error {
	running := m.deps.Operations.IsRunning()
	if running && m.abandonStalled() {
		running = false
	}

	m.mu.Lock()
	if m.step == StepProcessing && running {
		m.mu.Unlock()
		return ErrOperationRunning
	}
	m.step = StepSelection
	m.stopReturnTimerLocked()
	m.mu.Unlock()

	m.emitState()
	return nil
}

// UploadNewFile leaves the bucket file list for the upload step
func (m *Machine) UploadNewFile() error {
	m.mu.Lock()
	if m.step != StepBucketFiles {
		m.mu.Unlock()
		return fmt.Errorf("%w: upload new file from %s", ErrInvalidTransition, m.step)
	}
	m.addLogLocked(StepBucketFiles, models.LogInfo, "User chose to upload new file")
	m.step = StepFileUpload
	m.mu.Unlock()

	m.emitState()
	return nil
}

// SubmitEmailAuth signs in and starts the email report. A returned operation
// is adopted and tracked; success without one closes the workflow.
func (m *Machine) SubmitEmailAuth(ctx context.Context, creds session.Credentials) (session.Result, error) {
	m.mu.Lock()
	if m.step != StepEmailAuth {
		m.mu.Unlock()
		return session.Result{}, fmt.Errorf("%w: sign in from %s", ErrInvalidTransition, m.step)
	}
	m.addLogLocked(StepEmailAuth, models.LogInfo, "Starting authentication...")
	m.mu.Unlock()
	m.emitState()

	res := m.deps.Session.SignIn(ctx, creds)

	if !res.Success {
		m.mu.Lock()
		m.addLogLocked(StepEmailAuth, models.LogError, "Authentication failed")
		m.mu.Unlock()
		m.emitState()
		return res, nil
	}

	m.mu.Lock()
	m.addLogLocked(StepEmailAuth, models.LogInfo, "Authentication successful")
	m.completed[StepEmailAuth] = true
	if res.OperationID != "" {
		m.addLogLocked(StepEmailAuth, models.LogInfo, fmt.Sprintf("Operation started with ID: %s", res.OperationID))
	}
	m.mu.Unlock()

	if res.OperationID == "" {
		if err := m.Close(); err != nil {
			m.log.WithError(err).Debug("Workflow stayed open after sign in")
		}
		return res, nil
	}

	m.adopt(&models.Operation{
		ID:                res.OperationID,
		Kind:              models.KindEmailReport,
		Total:             res.VenueCount,
		VenueCount:        res.VenueCount,
		EstimatedDuration: res.EstimatedDuration,
		StartDate:         creds.StartDate,
		EndDate:           creds.EndDate,
	}, StepEmailAuth)
	return res, nil
}

// ConfirmBucketFile processes an existing bucket file, or every valid file
// when name is AllFiles
func (m *Machine) ConfirmBucketFile(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return &models.ValidationError{Field: "file", Message: "Select a file to process"}
	}

	if m.deps.Operations.IsRunning() {
		return ErrOperationRunning
	}

	m.mu.Lock()
	if m.step != StepBucketFiles {
		m.mu.Unlock()
		return fmt.Errorf("%w: confirm bucket file from %s", ErrInvalidTransition, m.step)
	}
	m.selected = name
	m.addLogLocked(StepBucketFiles, models.LogInfo, fmt.Sprintf("Selected existing file: %s", name))
	m.completed[StepBucketFiles] = true
	m.step = StepProcessing
	m.origin = StepBucketFiles
	m.mu.Unlock()

	return m.startProcessing(ctx)
}

// UploadSucceeded records files stored by the upload collaborator
func (m *Machine) UploadSucceeded(names ...string) error {
	if len(names) == 0 {
		return &models.ValidationError{Field: "file", Message: "No file was uploaded"}
	}

	m.mu.Lock()
	if m.step != StepFileUpload {
		m.mu.Unlock()
		return fmt.Errorf("%w: upload from %s", ErrInvalidTransition, m.step)
	}
	m.uploaded = append([]string(nil), names...)
	m.uploadErr = ""
	m.addLogLocked(StepFileUpload, models.LogInfo, fmt.Sprintf("File(s) uploaded successfully: %s", strings.Join(names, ", ")))
	m.completed[StepFileUpload] = true
	m.mu.Unlock()

	m.emitState()
	return nil
}

// UploadFailed records an upload error; the step stays on file-upload
func (m *Machine) UploadFailed(msg string) {
	m.mu.Lock()
	m.uploadErr = msg
	m.uploaded = nil
	delete(m.completed, StepFileUpload)
	m.addLogLocked(StepFileUpload, models.LogError, fmt.Sprintf("Upload failed: %s", msg))
	m.mu.Unlock()

	m.emitState()
}

// ConfirmUpload processes the uploaded files
func (m *Machine) ConfirmUpload(ctx context.Context) error {
	if m.deps.Operations.IsRunning() {
		return ErrOperationRunning
	}

	m.mu.Lock()
	if m.step != StepFileUpload || len(m.uploaded) == 0 {
		m.mu.Unlock()
		return fmt.Errorf("%w: nothing uploaded to process", ErrInvalidTransition)
	}
	m.step = StepProcessing
	m.origin = StepFileUpload
	m.mu.Unlock()

	return m.startProcessing(ctx)
}

// RetryProcessing re-issues the start request after a failure. When progress
// polling gave up it resumes tracking the same operation instead.
func (m *Machine) RetryProcessing(ctx context.Context) error {
	m.mu.Lock()
	if id := m.stalled; id != "" {
		m.stalled = ""
		m.procErr = ""
		m.addLogLocked(StepProcessing, models.LogInfo, "Retrying progress tracking...")
		m.mu.Unlock()

		expected := 0
		if op := m.deps.Operations.Current(); op != nil && op.ID == id {
			expected = op.VenueCount
		}
		m.log.WithField("operation", id).Info("Resuming progress tracking")
		m.deps.Tracker.Track(id, expected)
		m.emitState()
		return nil
	}
	ok := m.step == StepProcessing && m.origin != StepEmailAuth && m.procErr != ""
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: nothing to retry", ErrInvalidTransition)
	}
	return m.startProcessing(ctx)
}

// abandonStalled drops an operation whose progress can no longer be
// fetched, so the workflow can move on. It reports whether it did.
func (m *Machine) abandonStalled() bool {
	m.mu.Lock()
	id := m.stalled
	if id == "" {
		m.mu.Unlock()
		return false
	}
	m.stalled = ""
	m.trackedID = ""
	m.procErr = ""
	m.addLogLocked(StepProcessing, models.LogWarn, "Stopped tracking operation after progress became unavailable")
	m.mu.Unlock()

	if op := m.deps.Operations.Current(); op != nil && op.ID == id {
		m.deps.Operations.Clear()
	}
	m.log.WithField("operation", id).Warn("Abandoned operation with unavailable progress")
	return true
}

// startProcessing posts the start request for the bucket and upload paths
func (m *Machine) startProcessing(ctx context.Context) error {
	if m.deps.Operations.IsRunning() {
		return ErrOperationRunning
	}

	m.mu.Lock()
	if m.starting {
		m.mu.Unlock()
		return fmt.Errorf("%w: processing is already starting", ErrInvalidTransition)
	}
	m.starting = true
	m.procErr = ""
	m.addLogLocked(StepProcessing, models.LogInfo, "Starting report processing...")
	origin := m.origin
	fileName := m.selected
	if origin == StepFileUpload {
		fileName = strings.Join(m.uploaded, ", ")
	}
	m.mu.Unlock()
	m.emitState()

	req := api.ProcessRequest{}
	if origin == StepBucketFiles && fileName != AllFiles {
		req.FileName = fileName
	}
	res, err := m.deps.Processor.StartProcessing(ctx, req)

	if err != nil {
		title, msg := "Processing Failed", api.Message(err, msgStartFailed)
		if api.IsNetwork(err) || errors.Is(err, context.DeadlineExceeded) {
			title, msg = "Network Error", msgNetwork
		}
		m.log.WithError(err).Warn("Failed to start processing")

		m.mu.Lock()
		m.starting = false
		m.procErr = msg
		m.addLogLocked(StepProcessing, models.LogError, fmt.Sprintf("Processing failed: %s", msg))
		m.mu.Unlock()

		events.Notify(m.deps.Emitter, events.ToastError, title, msg)
		m.emitState()
		return err
	}

	m.mu.Lock()
	m.starting = false
	if !res.HasOperation() {
		m.addLogLocked(StepProcessing, models.LogInfo, "Processing completed immediately")
		m.completed[StepProcessing] = true
		m.mu.Unlock()

		events.Notify(m.deps.Emitter, events.ToastSuccess, "Processing Complete", "Report processing completed successfully.")
		return m.Close()
	}
	m.addLogLocked(StepProcessing, models.LogInfo, fmt.Sprintf("Processing started for %d venues", res.VenueCount))
	m.mu.Unlock()

	events.Notify(m.deps.Emitter, events.ToastInfo, "Processing Started",
		fmt.Sprintf("Report processing has begun. Processing %d venues.", res.VenueCount))

	m.adopt(&models.Operation{
		ID:                res.OperationID,
		Kind:              models.KindBookingsProcess,
		Total:             res.VenueCount,
		VenueCount:        res.VenueCount,
		EstimatedDuration: res.EstimatedDuration,
		FileName:          fileName,
	}, origin)
	return nil
}

// adopt makes op the current operation and starts tracking it
func (m *Machine) adopt(op *models.Operation, origin Step) {
	op.Status = models.StatusPending
	op.StartTime = m.now()
	m.deps.Operations.SetCurrent(op)

	m.mu.Lock()
	m.trackedID = op.ID
	m.firedFor = ""
	m.stalled = ""
	m.origin = origin
	m.procErr = ""
	m.step = StepProcessing
	m.stopReturnTimerLocked()
	m.mu.Unlock()

	m.log.WithFields(logrus.Fields{
		"operation": op.ID,
		"kind":      op.Kind,
		"total":     op.Total,
	}).Info("Tracking new operation")
	m.deps.Tracker.Track(op.ID, op.VenueCount)
	m.emitState()
}

// HandleUpdate applies a poll result. Completion handling runs exactly once
// per operation id no matter how many terminal snapshots arrive. It must not
// call the Tracker.
func (m *Machine) HandleUpdate(u poller.Update) {
	m.mu.Lock()
	tracked := u.OperationID != "" && u.OperationID == m.trackedID
	m.mu.Unlock()
	if !tracked {
		return
	}

	if u.Err != nil {
		m.handlePollError(u)
		return
	}
	if u.Snapshot == nil {
		return
	}

	op, err := m.deps.Operations.ApplySnapshot(u.Snapshot)
	if err != nil {
		m.log.WithError(err).WithField("operation", u.OperationID).Debug("Snapshot not applied")
		return
	}
	m.deps.Emitter.Emit(events.OperationUpdate, op)

	if !op.Status.IsTerminal() {
		m.emitState()
		return
	}

	m.mu.Lock()
	if m.firedFor == op.ID || m.trackedID != op.ID {
		m.mu.Unlock()
		return
	}
	m.firedFor = op.ID
	c := m.completeLocked(op)
	m.mu.Unlock()

	m.saveSummary(op)
	events.Notify(m.deps.Emitter, c.variant, c.title, c.description)
	if c.authError != "" {
		m.deps.Session.SetError(c.authError)
	}
	m.emitState()
}

type completion struct {
	variant     events.ToastVariant
	title       string
	description string
	authError   string
}

func (m *Machine) completeLocked(op *models.Operation) completion {
	noun := op.Kind.ItemNoun()

	if op.Status == models.StatusCompleted {
		processed := op.ProcessedCount()
		m.addLogLocked(StepProcessing, models.LogInfo,
			fmt.Sprintf("Processing completed successfully. Processed %d %s.", processed, noun))
		m.completed[StepProcessing] = true

		if m.origin == StepEmailAuth {
			m.completed[StepEmailAuth] = true
			if m.cfg.AutoReturnAfterEmail {
				id := op.ID
				m.stopReturnTimerLocked()
				m.returnTimer = time.AfterFunc(m.cfg.AutoReturnDelay, func() { m.autoReturn(id) })
			}
		}
		return completion{
			variant:     events.ToastSuccess,
			title:       "Processing Complete",
			description: fmt.Sprintf("Successfully processed %d %s.", processed, noun),
		}
	}

	msg := op.Error
	switch {
	case msg != "":
	case op.Status == models.StatusTimeout:
		msg = "Operation timed out"
	default:
		msg = "Unknown error"
	}
	m.procErr = msg
	m.addLogLocked(StepProcessing, models.LogError, fmt.Sprintf("Processing error: %s", msg))

	c := completion{variant: events.ToastError, title: "Processing Failed", description: msg}
	if session.IsAuthError(msg) {
		c.authError = msg
		if m.origin == StepEmailAuth {
			m.step = StepEmailAuth
		}
	}
	return c
}

func (m *Machine) handlePollError(u poller.Update) {
	m.deps.Emitter.Emit(events.OperationError, map[string]any{
		"operationId": u.OperationID,
		"error":       u.Err.Error(),
		"exhausted":   u.Exhausted,
	})
	if !u.Exhausted {
		return
	}

	m.mu.Lock()
	m.stalled = u.OperationID
	m.procErr = msgPollExhausted
	m.addLogLocked(StepProcessing, models.LogError, msgPollExhausted)
	m.mu.Unlock()

	events.Notify(m.deps.Emitter, events.ToastError, "Progress Unavailable", msgPollExhausted)
	m.emitState()
}

func (m *Machine) saveSummary(op *models.Operation) {
	if m.deps.Summaries == nil {
		return
	}
	summary, err := history.NewSummary(op)
	if err != nil {
		m.log.WithError(err).WithField("operation", op.ID).Warn("Cannot summarise operation")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), summaryTimeout)
	defer cancel()
	if _, err := m.deps.Summaries.Save(ctx, summary); err != nil {
		m.log.WithError(err).WithField("operation", op.ID).Error("Failed to save progress summary")
	}
}

// autoReturn brings the email path back to selection once the user has had
// time to see the result
func (m *Machine) autoReturn(id string) {
	m.mu.Lock()
	if m.step != StepProcessing || m.trackedID != id {
		m.mu.Unlock()
		return
	}
	m.step = StepSelection
	m.origin = ""
	m.returnTimer = nil
	m.mu.Unlock()

	m.deps.Session.ClearOperationID()
	events.Notify(m.deps.Emitter, events.ToastSuccess, "Email Reports Complete!",
		"You can now process existing files or upload new ones.")
	m.emitState()
}

// State returns a copy of the workflow state
func (m *Machine) State() State {
	current := m.deps.Operations.Current()
	summary := m.deps.Operations.SummaryLine()

	m.mu.Lock()
	defer m.mu.Unlock()

	st := State{
		Open:            m.open,
		Step:            m.step,
		Logs:            make(map[Step][]models.LogEntry, len(m.logs)),
		SelectedFile:    m.selected,
		UploadedFiles:   append([]string(nil), m.uploaded...),
		UploadError:     m.uploadErr,
		ProcessingError: m.procErr,
		Starting:        m.starting,
		Origin:          m.origin,
		ProgressLost:    m.stalled != "",
		Summary:         summary,
	}
	for _, s := range steps {
		if m.completed[s] {
			st.Completed = append(st.Completed, s)
		}
	}
	for s, entries := range m.logs {
		st.Logs[s] = append([]models.LogEntry(nil), entries...)
	}
	if current != nil {
		st.OperationID = current.ID
		st.OperationRunning = current.Status.IsActive()
	}
	return st
}

func (m *Machine) emitState() State {
	st := m.State()
	m.deps.Emitter.Emit(events.WorkflowState, st)
	return st
}

func (m *Machine) addLogLocked(step Step, level models.LogLevel, msg string) {
	m.logs[step] = append(m.logs[step], models.LogEntry{
		Message:   msg,
		Timestamp: m.now(),
		Level:     level,
	})
}

func (m *Machine) resetLocked() {
	m.step = StepSelection
	m.completed = make(map[Step]bool)
	m.logs = make(map[Step][]models.LogEntry)
	m.origin = ""
	m.starting = false
	m.stalled = ""
	m.stopReturnTimerLocked()
}

func (m *Machine) stopReturnTimerLocked() {
	if m.returnTimer != nil {
		m.returnTimer.Stop()
		m.returnTimer = nil
	}
}

func selectionLog(step Step) string {
	switch step {
	case StepEmailAuth:
		return "User selected email reports generation"
	case StepBucketFiles:
		return "User selected bucket files processing"
	default:
		return "User selected file upload"
	}
}

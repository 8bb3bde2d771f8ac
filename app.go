package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/wailsapp/wails/v2/pkg/runtime"

	"claygrounds-desktop/internal/api"
	"claygrounds-desktop/internal/bootstrap"
	"claygrounds-desktop/internal/config"
	"claygrounds-desktop/internal/events"
	"claygrounds-desktop/internal/models"
	"claygrounds-desktop/internal/services/dashboard"
	"claygrounds-desktop/internal/services/session"
	"claygrounds-desktop/internal/services/upload"
	"claygrounds-desktop/internal/services/workflow"
)

// App struct - main application state
type App struct {
	ctx      context.Context
	cfg      *config.Config
	log      *logrus.Entry
	emitter  *events.WailsEmitter
	services *bootstrap.Services
}

// NewApp creates a new App application struct
func NewApp(cfg *config.Config, log *logrus.Entry) *App {
	return &App{
		cfg:     cfg,
		log:     log,
		emitter: events.NewWailsEmitter(),
	}
}

// startup is called when the app starts. The context is saved
// so we can call the runtime methods
func (a *App) startup(ctx context.Context) {
	a.ctx = ctx
	a.emitter.Bind(ctx)
	a.log.Info("Application starting up...")

	services, err := bootstrap.New(a.cfg, a.log, bootstrap.Options{
		Emitter: a.emitter,
		Debug:   a.cfg.Log.Level == "debug",
	})
	if err != nil {
		a.log.WithError(err).Fatal("Failed to initialize services")
	}
	a.services = services

	if err := a.services.Dashboard.Start(ctx); err != nil {
		a.log.WithError(err).Warn("Failed to start dashboard refresh")
	}

	a.log.WithField("api", a.services.Client.BaseURL()).Info("Startup complete")
}

// shutdown is called when the app is closing
func (a *App) shutdown(ctx context.Context) {
	a.log.Info("Application shutting down...")
	if a.services == nil {
		return
	}

	a.services.Dashboard.Stop()
	if err := a.services.Close(); err != nil {
		a.log.WithError(err).Error("Error during shutdown")
	}
	a.log.Info("Shutdown complete")
}

// ====================================================================================
// WAILS-BOUND METHODS - Exposed to Frontend
// ====================================================================================

// Workflow

// OpenWorkflow opens the report generation workflow, resuming a running operation
func (a *App) OpenWorkflow() workflow.State {
	return a.services.Workflow.Open()
}

// CloseWorkflow closes the workflow
func (a *App) CloseWorkflow() error {
	return a.services.Workflow.Close()
}

// WorkflowState returns the current workflow state
func (a *App) WorkflowState() workflow.State {
	return a.services.Workflow.State()
}

// SelectStep picks email-auth, bucket-files or file-upload from the selection step
func (a *App) SelectStep(step string) error {
	return a.services.Workflow.Select(workflow.Step(step))
}

// BackToSelection returns to the selection step
func (a *App) BackToSelection() error {
	return a.services.Workflow.Back()
}

// SubmitEmailAuth signs in and starts the email report
func (a *App) SubmitEmailAuth(creds session.Credentials) (session.Result, error) {
	return a.services.Workflow.SubmitEmailAuth(a.ctx, creds)
}

// ListBucketFiles lists valid booking files already in the bucket
func (a *App) ListBucketFiles() ([]api.BucketFile, error) {
	return a.services.Client.ListValidFiles(a.ctx)
}

// ConfirmBucketFile processes a bucket file, or every file for "all"
func (a *App) ConfirmBucketFile(name string) error {
	return a.services.Workflow.ConfirmBucketFile(a.ctx, name)
}

// UploadNewFile switches from the bucket list to the upload step
func (a *App) UploadNewFile() error {
	return a.services.Workflow.UploadNewFile()
}

// UploadFiles uploads local files and records the outcome in the workflow
func (a *App) UploadFiles(paths []string) ([]string, error) {
	names, err := a.services.Upload.UploadFiles(a.ctx, paths)
	if err != nil {
		a.services.Workflow.UploadFailed(upload.ErrorMessage(err))
		return names, err
	}
	return names, a.services.Workflow.UploadSucceeded(names...)
}

// ChooseAndUploadFiles opens a native file picker and uploads the selection
func (a *App) ChooseAndUploadFiles() ([]string, error) {
	patterns := make([]string, 0, len(a.cfg.Upload.Extensions))
	for _, ext := range a.cfg.Upload.Extensions {
		patterns = append(patterns, "*"+ext)
	}

	paths, err := runtime.OpenMultipleFilesDialog(a.ctx, runtime.OpenDialogOptions{
		Title: "Select booking files",
		Filters: []runtime.FileFilter{{
			DisplayName: fmt.Sprintf("Booking files (%s)", strings.Join(patterns, ", ")),
			Pattern:     strings.Join(patterns, ";"),
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open file dialog: %w", err)
	}
	if len(paths) == 0 {
		return nil, nil
	}
	return a.UploadFiles(paths)
}

// ConfirmUpload processes the uploaded files
func (a *App) ConfirmUpload() error {
	return a.services.Workflow.ConfirmUpload(a.ctx)
}

// RetryProcessing re-issues a failed start request
func (a *App) RetryProcessing() error {
	return a.services.Workflow.RetryProcessing(a.ctx)
}

// Operation

// CurrentOperation returns the operation being tracked, or nil
func (a *App) CurrentOperation() *models.Operation {
	return a.services.Operations.Current()
}

// OperationSummary returns a one line description of the current operation
func (a *App) OperationSummary() string {
	return a.services.Operations.SummaryLine()
}

// ProgressHistory returns the recently finished operations
func (a *App) ProgressHistory() ([]models.ProgressSummary, error) {
	return a.services.History.Load(a.ctx)
}

// ClearProgressHistory forgets every stored summary
func (a *App) ClearProgressHistory() error {
	return a.services.History.Clear(a.ctx)
}

// Session

// SessionState returns the sign in state
func (a *App) SessionState() session.State {
	return a.services.Session.State()
}

// ClearAuthError dismisses the sign in error
func (a *App) ClearAuthError() {
	a.services.Session.ClearError()
}

// SignOut drops the authenticated state
func (a *App) SignOut() {
	a.services.Session.SignOut()
}

// LastUsedCredentials prefills the sign in form
func (a *App) LastUsedCredentials() (*session.Credentials, error) {
	return a.services.Session.LastUsed(a.ctx)
}

// DefaultDateRange returns the previous calendar month as YYYY-MM-DD strings
func (a *App) DefaultDateRange() DateRange {
	start, end := session.DefaultDateRange(time.Now())
	return DateRange{StartDate: start, EndDate: end}
}

// Dashboard

// DashboardSnapshot returns the latest stats and health
func (a *App) DashboardSnapshot() dashboard.Snapshot {
	return a.services.Dashboard.Snapshot()
}

// RefreshDashboard refreshes every dashboard panel now
func (a *App) RefreshDashboard() error {
	return a.services.Dashboard.RefreshAll(a.ctx)
}

// DashboardJobs lists the refresh schedules
func (a *App) DashboardJobs() []dashboard.JobInfo {
	return a.services.Dashboard.Jobs()
}

// ====================================================================================
// REQUEST/RESPONSE TYPES
// ====================================================================================

// DateRange is a report period
type DateRange struct {
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
}

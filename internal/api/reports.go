package api

import (
	"context"
	"fmt"
	"time"

	"claygrounds-desktop/internal/models"
)

// ReportTypeDefault is the only report type the client requests
const ReportTypeDefault = 1

// SignInRequest authenticates against the partner API and starts an email
// report for the date range in one call
type SignInRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	StartDate  string `json:"startDate"`
	EndDate    string `json:"endDate"`
	ReportType int    `json:"reportType"`
}

// ProcessRequest starts bulk processing of booking files. An empty FileName
// processes every valid file.
type ProcessRequest struct {
	FileName string `json:"fileName,omitempty"`
}

// StartResult is the canonical form of every response that may start a
// server-side operation
type StartResult struct {
	OperationID       string `json:"operationId,omitempty"`
	VenueCount        int    `json:"venueCount,omitempty"`
	EstimatedDuration int    `json:"estimatedDuration,omitempty"`
	Message           string `json:"message,omitempty"`
}

// HasOperation reports whether the server handed back something to track
func (r StartResult) HasOperation() bool {
	return r.OperationID != ""
}

// SignIn posts the credentials to the email report endpoint
func (c *Client) SignIn(ctx context.Context, req SignInRequest) (StartResult, error) {
	if req.ReportType == 0 {
		req.ReportType = ReportTypeDefault
	}
	body, err := c.postJSON(ctx, c.endpoints.SignIn, req, "")
	if err != nil {
		return StartResult{}, err
	}
	return c.decodeStart(body)
}

// StartProcessing asks the server to process booking reports
func (c *Client) StartProcessing(ctx context.Context, req ProcessRequest) (StartResult, error) {
	body, err := c.postJSON(ctx, c.endpoints.Process, req, "")
	if err != nil {
		return StartResult{}, err
	}
	return c.decodeStart(body)
}

func (c *Client) decodeStart(body []byte) (StartResult, error) {
	var wire startWire
	if err := c.decode(schemaStart, body, &wire); err != nil {
		return StartResult{}, err
	}
	if wire.Success != nil && !*wire.Success {
		return StartResult{}, &RejectedError{Message: wire.Message}
	}
	return wire.normalize(), nil
}

// GetProgress fetches the progress resource of an operation
func (c *Client) GetProgress(ctx context.Context, operationID string) (*models.Snapshot, error) {
	if operationID == "" {
		return nil, fmt.Errorf("operation id is required")
	}

	body, err := c.get(ctx, c.progressPath(operationID), "Failed to fetch progress data")
	if err != nil {
		return nil, err
	}

	var wire progressWire
	if err := c.decode(schemaProgress, body, &wire); err != nil {
		return nil, err
	}
	if !wire.Success {
		msg := wire.Message
		if msg == "" {
			msg = "Failed to fetch progress data"
		}
		return nil, &RejectedError{Message: msg}
	}
	if wire.Progress == nil {
		return nil, fmt.Errorf("%w: progress: missing progress object", ErrInvalidResponse)
	}

	snapshot := wire.Progress.snapshot(time.Now())
	c.rememberVenues(snapshot)
	return snapshot, nil
}

// rememberVenues feeds the venue name cache and fills names the server left
// out of this particular snapshot
func (c *Client) rememberVenues(s *models.Snapshot) {
	for id, name := range s.VenueNames {
		c.venues.Put(id, name)
	}
	for i, loc := range s.ProcessedLocations {
		if loc.Name != "" {
			c.venues.Put(loc.ID, loc.Name)
			continue
		}
		if name, ok := c.venues.Get(loc.ID); ok {
			s.ProcessedLocations[i].Name = name
		}
	}
}

// VenueName returns a cached venue name, or the id itself when unknown
func (c *Client) VenueName(id string) string {
	if name, ok := c.venues.Get(id); ok {
		return name
	}
	return id
}

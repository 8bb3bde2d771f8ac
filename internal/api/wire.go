package api

import (
	"math"
	"strings"
	"time"

	"claygrounds-desktop/internal/models"
)

// startWire is every accepted shape of a sign-in or process response: the
// operation id and sizing hints may sit at the top level or under data
type startWire struct {
	Success           *bool    `json:"success"`
	Message           string   `json:"message"`
	OperationID       string   `json:"operationId"`
	VenueCount        *float64 `json:"venueCount"`
	EstimatedDuration *float64 `json:"estimatedDuration"`
	Data              *struct {
		OperationID       string   `json:"operationId"`
		VenueCount        *float64 `json:"venueCount"`
		EstimatedDuration *float64 `json:"estimatedDuration"`
	} `json:"data"`
}

func (w startWire) normalize() StartResult {
	res := StartResult{
		OperationID:       w.OperationID,
		VenueCount:        intOf(w.VenueCount),
		EstimatedDuration: intOf(w.EstimatedDuration),
		Message:           w.Message,
	}
	if w.Data != nil {
		if res.OperationID == "" {
			res.OperationID = w.Data.OperationID
		}
		if w.VenueCount == nil {
			res.VenueCount = intOf(w.Data.VenueCount)
		}
		if w.EstimatedDuration == nil {
			res.EstimatedDuration = intOf(w.Data.EstimatedDuration)
		}
	}
	res.OperationID = strings.TrimSpace(res.OperationID)
	return res
}

type progressWire struct {
	Success  bool                `json:"success"`
	Message  string              `json:"message"`
	Progress *progressDetailWire `json:"progress"`
}

type progressDetailWire struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	Progress  *float64  `json:"progress"`
	Total     *float64  `json:"total"`
	Current   *float64  `json:"current"`
	Duration  *float64  `json:"duration"`
	StartTime string    `json:"startTime"`
	EndTime   string    `json:"endTime"`
	Error     string    `json:"error"`
	Logs      []logWire `json:"logs"`
	Data      *struct {
		Operation          string            `json:"operation"`
		StartDate          string            `json:"startDate"`
		EndDate            string            `json:"endDate"`
		VenueNames         map[string]string `json:"venueNames"`
		ProcessedLocations []locationWire    `json:"processedLocations"`
	} `json:"data"`
}

type logWire struct {
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
}

type locationWire struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

func (w progressDetailWire) snapshot(received time.Time) *models.Snapshot {
	s := &models.Snapshot{
		OperationID:     w.ID,
		Status:          models.OperationStatus(w.Status),
		Percent:         intOf(w.Progress),
		Current:         intOf(w.Current),
		Total:           intOf(w.Total),
		DurationSeconds: intOf(w.Duration),
		StartTime:       parseTime(w.StartTime),
		Error:           w.Error,
		ReceivedAt:      received,
	}
	if end := parseTime(w.EndTime); !end.IsZero() {
		s.EndTime = &end
	}

	s.Logs = make([]models.LogEntry, 0, len(w.Logs))
	for _, l := range w.Logs {
		level := models.LogLevel(strings.ToLower(l.Level))
		switch level {
		case models.LogInfo, models.LogWarn, models.LogError:
		case "warning":
			level = models.LogWarn
		default:
			level = models.LogInfo
		}
		s.Logs = append(s.Logs, models.LogEntry{
			Message:   l.Message,
			Timestamp: parseTime(l.Timestamp),
			Level:     level,
		})
	}

	if w.Data != nil {
		s.Operation = w.Data.Operation
		s.StartDate = w.Data.StartDate
		s.EndDate = w.Data.EndDate
		if len(w.Data.VenueNames) > 0 {
			s.VenueNames = w.Data.VenueNames
		}
		for _, loc := range w.Data.ProcessedLocations {
			s.ProcessedLocations = append(s.ProcessedLocations, models.ProcessedLocation{
				ID:        loc.ID,
				Name:      loc.Name,
				Status:    loc.Status,
				Timestamp: parseTime(loc.Timestamp),
			})
		}
	}

	// A percentage only ever reaches the UI clamped
	s.Percent = models.DerivePercent(s.Current, s.Total, clamp(s.Percent, 0, 100))
	if s.Current < 0 {
		s.Current = 0
	}
	return s
}

type filesWire struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Files   []struct {
		FileName     string   `json:"fileName"`
		UploadDate   string   `json:"uploadDate"`
		Size         *float64 `json:"size"`
		LastModified string   `json:"lastModified"`
	} `json:"files"`
}

type uploadWire struct {
	Success  bool   `json:"success"`
	FileName string `json:"fileName"`
	Error    string `json:"error"`
	Message  string `json:"message"`
}

func intOf(f *float64) int {
	if f == nil || math.IsNaN(*f) {
		return 0
	}
	return int(math.Round(*f))
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

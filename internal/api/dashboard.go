package api

import (
	"context"
	"encoding/json"
)

// Stats is the admin overview shown on the dashboard
type Stats struct {
	Success bool `json:"success"`
	Counts  struct {
		Admins                 int `json:"admins"`
		Venues                 int `json:"venues"`
		Facilities             int `json:"facilities"`
		Regions                int `json:"regions"`
		Cities                 int `json:"cities"`
		TotalVenuesFromRegions int `json:"total_venues_from_regions"`
	} `json:"counts"`
	DataFreshness struct {
		SyncStatus     string `json:"sync_status"`
		Recommendation string `json:"recommendation"`
	} `json:"data_freshness"`
	Timestamp string `json:"timestamp"`
	// Raw keeps the full payload for the frontend
	Raw json.RawMessage `json:"raw,omitempty"`
}

// HealthModule is the state of one database module
type HealthModule struct {
	Status      string `json:"status"`
	RecordCount int    `json:"recordCount,omitempty"`
}

// Health is the database health report
type Health struct {
	Status       string `json:"status"` // healthy, warning or error
	Timestamp    string `json:"timestamp"`
	ResponseTime string `json:"responseTime"`
	Service      string `json:"service"`
	Version      string `json:"version"`
	Database     struct {
		Status  string                  `json:"status"`
		Modules map[string]HealthModule `json:"modules"`
	} `json:"database"`
}

// VenueHealth summarises how fresh the venue data is
type VenueHealth struct {
	Success bool `json:"success"`
	Summary struct {
		TotalRegions       int    `json:"totalRegions"`
		RealTimeVenues     int    `json:"realTimeVenues"`
		ScheduledVenues    int    `json:"scheduledVenues"`
		VenueDifference    int    `json:"venueDifference"`
		AccuracyPercentage string `json:"accuracyPercentage"`
		DataStaleness      string `json:"dataStaleness"`
		HealthStatus       string `json:"healthStatus"`
	} `json:"summary"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// GetStats fetches the admin stats
func (c *Client) GetStats(ctx context.Context) (*Stats, error) {
	body, err := c.get(ctx, c.endpoints.Stats, "Failed to fetch stats data")
	if err != nil {
		return nil, err
	}
	var stats Stats
	if err := c.decode(schemaStats, body, &stats); err != nil {
		return nil, err
	}
	stats.Raw = append(json.RawMessage(nil), body...)
	return &stats, nil
}

// GetHealth fetches the database health report
func (c *Client) GetHealth(ctx context.Context) (*Health, error) {
	body, err := c.get(ctx, c.endpoints.Health, "Failed to fetch health data")
	if err != nil {
		return nil, err
	}
	var health Health
	if err := c.decode(schemaHealth, body, &health); err != nil {
		return nil, err
	}
	return &health, nil
}

// GetVenueHealth fetches the venue data freshness report
func (c *Client) GetVenueHealth(ctx context.Context) (*VenueHealth, error) {
	body, err := c.get(ctx, c.endpoints.Venues, "Failed to fetch venue data")
	if err != nil {
		return nil, err
	}
	var venues VenueHealth
	if err := c.decode(schemaVenues, body, &venues); err != nil {
		return nil, err
	}
	return &venues, nil
}

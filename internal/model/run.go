package model

import (
	"strings"
	"time"
)

// RunConfig is the configuration a run was started with.
type RunConfig struct {
	Country          string   `json:"country"`
	CountryCode      string   `json:"country_code,omitempty"`
	Scope            string   `json:"scope,omitempty"` // "national" or "department"
	DepartmentName   string   `json:"department_name,omitempty"`
	Horizon          int      `json:"horizon,omitempty"`
	SignalCount      int      `json:"signal_count,omitempty"`
	Domains          []string `json:"domains,omitempty"`
	CustomIndicators []string `json:"custom_indicators,omitempty"`
}

// Subject returns a display name for what the run analyzes.
func (c RunConfig) Subject() string {
	if c.DepartmentName != "" {
		return c.Country + " / " + c.DepartmentName
	}
	return c.Country
}

// RunStatus is the producer's coarse status for a listed run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// RunSummary is one row of the run listing.
type RunSummary struct {
	ID          string          `json:"id"`
	Country     string          `json:"country"`
	Scope       string          `json:"scope,omitempty"`
	Horizon     int             `json:"horizon,omitempty"`
	Domains     []string        `json:"domains,omitempty"`
	SignalCount int             `json:"signal_count,omitempty"`
	Status      RunStatus       `json:"status"`
	CreatedAt   float64         `json:"created_at"` // unix seconds
	Assessment  *SummaryVerdict `json:"assessment"`
}

// SummaryVerdict is the slice of the assessment shown in listings.
type SummaryVerdict struct {
	Headline   string `json:"headline,omitempty"`
	RiskLevel  string `json:"risk_level,omitempty"`
	Confidence string `json:"confidence,omitempty"`
}

// Created returns CreatedAt as a time.
func (r RunSummary) Created() time.Time {
	sec := int64(r.CreatedAt)
	nsec := int64((r.CreatedAt - float64(sec)) * float64(time.Second))
	return time.Unix(sec, nsec)
}

// RiskBand returns the listed risk level as a Band ("" when not assessed).
func (r RunSummary) RiskBand() Band {
	if r.Assessment == nil {
		return ""
	}
	return Band(strings.ToLower(strings.TrimSpace(r.Assessment.RiskLevel)))
}

package scans

import (
	"time"
)

// ID tipe untuk Scan
type ScanID string

// Status enum
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Source enum: how the scan was created
type Source string

const (
	SourceUpload  Source = "upload"
	SourceAzure   Source = "azure"
	SourceJenkins Source = "jenkins"
	SourceAWS     Source = "aws"
)

// SeverityCounts value object
type SeverityCounts struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
	Total    int `json:"total"`
}

// Aggregate Root: Scan
type Scan struct {
	ID               ScanID         `json:"id"`
	UserID           int64          `json:"user_id"`
	Filename         string         `json:"filename"`
	OriginalFilename string         `json:"original_filename"`
	Status           Status         `json:"status"`
	ErrorMessage     string         `json:"error_message,omitempty"`
	Counts           SeverityCounts `json:"counts"`
	ReportURL        string         `json:"report_url,omitempty"`
	Source           Source         `json:"source"`
	CreatedAt        time.Time      `json:"created_at"`
	CompletedAt      *time.Time     `json:"completed_at,omitempty"`
}

// CanTransition reports whether a status change is allowed. Transitions are
// monotonic: pending -> running -> {completed, failed}, never backward.
func (s Status) CanTransition(to Status) bool {
	switch s {
	case StatusPending:
		return to == StatusRunning || to == StatusFailed
	case StatusRunning:
		return to == StatusCompleted || to == StatusFailed
	default:
		return false
	}
}

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ValidSource reports whether a webhook source value is known.
func ValidSource(s string) bool {
	switch Source(s) {
	case SourceUpload, SourceAzure, SourceJenkins, SourceAWS:
		return true
	}
	return false
}

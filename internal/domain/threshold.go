package domain

import "time"

// ThresholdRule maps a (procurement type, currency) pair to the cutoff above
// which executive approval is mandatory.
type ThresholdRule struct {
	ID              string    `json:"id"`
	ProcurementType string    `json:"procurement_type"`
	Currency        string    `json:"currency"`
	Cutoff          int64     `json:"cutoff"`
	IsActive        bool      `json:"is_active"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

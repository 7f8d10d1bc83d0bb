package dto

import "time"

// SweepPass names the half of a sweep a record was processed in
type SweepPass string

const (
	SweepPassApply       SweepPass = "apply"
	SweepPassAutoApprove SweepPass = "auto_approve"
)

// RecordError is one record that could not be processed. The record stays
// pending and is picked up again by the next sweep.
type RecordError struct {
	PriceChangeID  string    `json:"price_change_id,omitempty"`
	SubscriptionID string    `json:"subscription_id,omitempty"`
	Pass           SweepPass `json:"pass"`
	Error          string    `json:"error"`
}

// SweepSummary reports one scheduler run. It has no influence on later sweeps.
type SweepSummary struct {
	SweepID    string    `json:"sweep_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Applied      int `json:"applied"`
	AutoApproved int `json:"auto_approved"`
	Failed       int `json:"failed"`

	// Exhausted counts bulk children given up on after the last allowed attempt
	Exhausted int `json:"exhausted"`

	Errors []RecordError `json:"errors"`
}

package reporting

import "time"

// Common filtering inputs.

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// SummaryRequest requests aggregated call outcome metrics.

type SummaryRequest struct {
	Range TimeRange `json:"range"`
}

// Summary aggregates completed calls by end reason plus order conversion.
// Counts are derived from immutable completion events, not from live sessions.

type Summary struct {
	TotalCalls int `json:"total_calls"`

	AgentClosedCalls   int `json:"agent_closed_calls"`
	CallerEndedCalls   int `json:"caller_ended_calls"`
	FailedCalls        int `json:"failed_calls"`
	TimedOutCalls      int `json:"timed_out_calls"`
	OperatorEndedCalls int `json:"operator_ended_calls"`

	TotalTurns   int     `json:"total_turns"`
	AverageTurns float64 `json:"average_turns"`

	OrdersPlaced    int     `json:"orders_placed"`
	OrderLines      int     `json:"order_lines"`
	OrderTotalMinor int64   `json:"order_total_minor"`
	ConversionRate  float64 `json:"conversion_rate"`
}

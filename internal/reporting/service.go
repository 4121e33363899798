package reporting

import (
	"context"
	"errors"

	"voiceagent-platform/internal/notify"
	"voiceagent-platform/internal/session"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// Repository abstracts data access for reporting.
//
// IMPORTANT:
// - Implementations should query immutable sources (completion events, call records).

type Repository interface {
	Record(ctx context.Context, e notify.SessionCompleted) error
	ListCompletions(ctx context.Context, r TimeRange) ([]notify.SessionCompleted, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service { return &Service{repo: repo} }

// Recorder exposes the service as a completion event consumer. Chain it into
// the registry's publisher so every finished call lands in the repository.
func (s *Service) Recorder() notify.Publisher {
	return notify.Func(func(ctx context.Context, e notify.SessionCompleted) error {
		if s.repo == nil {
			return errors.New("reporting: repository not configured")
		}
		return s.repo.Record(ctx, e)
	})
}

func (s *Service) Summary(ctx context.Context, req SummaryRequest) (Summary, error) {
	if req.Range.From.IsZero() || req.Range.To.IsZero() || !req.Range.To.After(req.Range.From) {
		return Summary{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return Summary{}, errors.New("reporting: repository not configured")
	}

	rows, err := s.repo.ListCompletions(ctx, req.Range)
	if err != nil {
		return Summary{}, err
	}

	var out Summary
	for _, e := range rows {
		out.TotalCalls++
		out.TotalTurns += e.Turns
		switch session.EndReason(e.EndReason) {
		case session.EndReasonEndingPhrase:
			out.AgentClosedCalls++
		case session.EndReasonProviderComplete:
			out.CallerEndedCalls++
		case session.EndReasonProviderFailed:
			out.FailedCalls++
		case session.EndReasonTimeoutExhausted:
			out.TimedOutCalls++
		case session.EndReasonOperator:
			out.OperatorEndedCalls++
		}

		if e.OrderLines > 0 {
			out.OrdersPlaced++
			out.OrderLines += e.OrderLines
			out.OrderTotalMinor += e.OrderTotalMinor
		}
	}
	if out.TotalCalls > 0 {
		out.AverageTurns = float64(out.TotalTurns) / float64(out.TotalCalls)
		out.ConversionRate = float64(out.OrdersPlaced) / float64(out.TotalCalls)
	}
	return out, nil
}

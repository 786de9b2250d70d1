package campaign

import (
	"github.com/shopspring/decimal"
)

// Summary is the campaign performance of a run.
type Summary struct {
	Total      int
	Completed  int
	Failed     int
	InProgress int
	// CompletionRate is completed over resolved (completed + failed)
	// campaigns, in percent.
	CompletionRate decimal.Decimal
	CompletedPnL   decimal.Decimal
	FailedPnL      decimal.Decimal
	InProgressPnL  decimal.Decimal
	AvgRMultiple   decimal.Decimal
}

// Summarize aggregates campaigns by status.
func Summarize(campaigns []Campaign) Summary {
	s := Summary{
		Total:          len(campaigns),
		CompletionRate: decimal.Zero,
		CompletedPnL:   decimal.Zero,
		FailedPnL:      decimal.Zero,
		InProgressPnL:  decimal.Zero,
		AvgRMultiple:   decimal.Zero,
	}
	var rSum decimal.Decimal
	for _, c := range campaigns {
		rSum = rSum.Add(c.AvgRMultiple)
		switch c.Status {
		case StatusCompleted:
			s.Completed++
			s.CompletedPnL = s.CompletedPnL.Add(c.TotalPnL)
		case StatusFailed:
			s.Failed++
			s.FailedPnL = s.FailedPnL.Add(c.TotalPnL)
		case StatusInProgress:
			s.InProgress++
			s.InProgressPnL = s.InProgressPnL.Add(c.TotalPnL)
		}
	}
	if resolved := s.Completed + s.Failed; resolved > 0 {
		s.CompletionRate = decimal.NewFromInt(int64(s.Completed)).
			Div(decimal.NewFromInt(int64(resolved))).
			Mul(decimal.NewFromInt(100)).
			Round(4)
	}
	if s.Total > 0 {
		s.AvgRMultiple = rSum.Div(decimal.NewFromInt(int64(s.Total))).Round(4)
	}
	return s
}

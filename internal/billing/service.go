package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mateovillega/bytevault-backend/internal/pricing"
	"github.com/mateovillega/bytevault-backend/pkg/db/models"
	apperrors "github.com/mateovillega/bytevault-backend/pkg/errors"
)

// UsageSource is the slice of the usage store the calculator reads from.
type UsageSource interface {
	ListClosedIntervals(ctx context.Context, userID string, start, end time.Time) ([]models.UsageInterval, error)
	FindActiveInterval(ctx context.Context, userID string) (*models.UsageInterval, error)
	LatestChange(ctx context.Context, userID string) (*models.StorageChangeRecord, error)
}

// Service aggregates closed usage intervals into billable totals and
// reporting statistics. Only completed intervals count; the open interval
// accrues nothing until the next storage mutation closes it.
type Service interface {
	TotalCostForPeriod(ctx context.Context, userID string, start, end time.Time) (decimal.Decimal, error)
	MonthlyCost(ctx context.Context, userID string, month, year int) (decimal.Decimal, error)
	DailyCost(ctx context.Context, userID string) (decimal.Decimal, error)
	CurrentStorageBytes(ctx context.Context, userID string) (int64, error)
	Statistics(ctx context.Context, userID string, start, end time.Time) (*PeriodStatistics, error)
	MonthlyBill(ctx context.Context, userID string, month, year int) (*MonthlyBill, error)
}

// PeriodStatistics summarizes closed intervals inside a reporting window.
// AverageBytes is time weighted: sum(bytes*duration) / sum(duration).
type PeriodStatistics struct {
	UserID               string          `json:"user_id"`
	PeriodStart          time.Time       `json:"period_start"`
	PeriodEnd            time.Time       `json:"period_end"`
	TotalCost            decimal.Decimal `json:"total_cost"`
	MaxBytes             int64           `json:"max_bytes"`
	MinBytes             int64           `json:"min_bytes"`
	AverageBytes         decimal.Decimal `json:"average_bytes"`
	IntervalCount        int             `json:"interval_count"`
	TotalDurationSeconds int64           `json:"total_duration_seconds"`
}

// MonthlyBill is the invoice view for one calendar month.
type MonthlyBill struct {
	UserID              string          `json:"user_id"`
	Month               int             `json:"month"`
	Year                int             `json:"year"`
	PeriodStart         time.Time       `json:"period_start"`
	PeriodEnd           time.Time       `json:"period_end"`
	TotalCost           decimal.Decimal `json:"total_cost"`
	DailyAverage        decimal.Decimal `json:"daily_average"`
	DaysInMonth         int             `json:"days_in_month"`
	CurrentStorageBytes int64           `json:"current_storage_bytes"`
	CostPerMBPerDay     decimal.Decimal `json:"cost_per_mb_per_day"`
	Currency            string          `json:"currency"`
}

type service struct {
	source   UsageSource
	costs    *pricing.Model
	currency string
	clock    func() time.Time
}

// NewService wires the billing calculator over the usage store.
func NewService(source UsageSource, costs *pricing.Model, currency string) (Service, error) {
	if source == nil {
		return nil, fmt.Errorf("usage source required")
	}
	if costs == nil {
		return nil, fmt.Errorf("cost model required")
	}
	if currency == "" {
		currency = "usd"
	}
	return &service{
		source:   source,
		costs:    costs,
		currency: currency,
		clock:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// TotalCostForPeriod sums the accrued cost of every closed interval that
// overlaps [start, end). Overlapping intervals count in full; costs are not
// prorated at the window edges.
func (s *service) TotalCostForPeriod(ctx context.Context, userID string, start, end time.Time) (decimal.Decimal, error) {
	if userID == "" {
		return decimal.Zero, apperrors.New(apperrors.CodeValidation, "user id is required")
	}
	if !end.After(start) {
		return decimal.Zero, apperrors.New(apperrors.CodeValidation, "period end must be after period start")
	}

	intervals, err := s.source.ListClosedIntervals(ctx, userID, start, end)
	if err != nil {
		return decimal.Zero, err
	}

	total := decimal.Zero
	for _, interval := range intervals {
		total = total.Add(interval.AccruedCost)
	}
	return total, nil
}

func (s *service) MonthlyCost(ctx context.Context, userID string, month, year int) (decimal.Decimal, error) {
	start, end, err := monthBounds(month, year)
	if err != nil {
		return decimal.Zero, err
	}
	return s.TotalCostForPeriod(ctx, userID, start, end)
}

// DailyCost sums the trailing 24 hours.
func (s *service) DailyCost(ctx context.Context, userID string) (decimal.Decimal, error) {
	now := s.clock()
	return s.TotalCostForPeriod(ctx, userID, now.Add(-24*time.Hour), now)
}

func (s *service) CurrentStorageBytes(ctx context.Context, userID string) (int64, error) {
	if userID == "" {
		return 0, apperrors.New(apperrors.CodeValidation, "user id is required")
	}
	active, err := s.source.FindActiveInterval(ctx, userID)
	if err != nil {
		return 0, err
	}
	if active != nil {
		return active.BytesHeld, nil
	}
	latest, err := s.source.LatestChange(ctx, userID)
	if err != nil {
		return 0, err
	}
	if latest == nil {
		return 0, nil
	}
	return latest.TotalBytesAfter, nil
}

func (s *service) Statistics(ctx context.Context, userID string, start, end time.Time) (*PeriodStatistics, error) {
	if userID == "" {
		return nil, apperrors.New(apperrors.CodeValidation, "user id is required")
	}
	if !end.After(start) {
		return nil, apperrors.New(apperrors.CodeValidation, "period end must be after period start")
	}

	intervals, err := s.source.ListClosedIntervals(ctx, userID, start, end)
	if err != nil {
		return nil, err
	}

	stats := &PeriodStatistics{
		UserID:       userID,
		PeriodStart:  start,
		PeriodEnd:    end,
		TotalCost:    decimal.Zero,
		AverageBytes: decimal.Zero,
	}
	if len(intervals) == 0 {
		return stats, nil
	}

	weighted := decimal.Zero
	stats.MinBytes = intervals[0].BytesHeld
	for _, interval := range intervals {
		stats.TotalCost = stats.TotalCost.Add(interval.AccruedCost)
		stats.TotalDurationSeconds += interval.DurationSeconds
		if interval.BytesHeld > stats.MaxBytes {
			stats.MaxBytes = interval.BytesHeld
		}
		if interval.BytesHeld < stats.MinBytes {
			stats.MinBytes = interval.BytesHeld
		}
		weighted = weighted.Add(
			decimal.NewFromInt(interval.BytesHeld).Mul(decimal.NewFromInt(interval.DurationSeconds)))
	}
	stats.IntervalCount = len(intervals)
	if stats.TotalDurationSeconds > 0 {
		stats.AverageBytes = weighted.Div(decimal.NewFromInt(stats.TotalDurationSeconds))
	}
	return stats, nil
}

func (s *service) MonthlyBill(ctx context.Context, userID string, month, year int) (*MonthlyBill, error) {
	start, end, err := monthBounds(month, year)
	if err != nil {
		return nil, err
	}

	total, err := s.TotalCostForPeriod(ctx, userID, start, end)
	if err != nil {
		return nil, err
	}
	currentBytes, err := s.CurrentStorageBytes(ctx, userID)
	if err != nil {
		return nil, err
	}

	days := int(end.Sub(start).Hours() / 24)
	return &MonthlyBill{
		UserID:              userID,
		Month:               month,
		Year:                year,
		PeriodStart:         start,
		PeriodEnd:           end,
		TotalCost:           total,
		DailyAverage:        total.Div(decimal.NewFromInt(int64(days))),
		DaysInMonth:         days,
		CurrentStorageBytes: currentBytes,
		CostPerMBPerDay:     s.costs.CostPerMBPerDay(),
		Currency:            s.currency,
	}, nil
}

// monthBounds returns the UTC window [first of month, first of next month).
func monthBounds(month, year int) (time.Time, time.Time, error) {
	if month < 1 || month > 12 {
		return time.Time{}, time.Time{}, apperrors.New(apperrors.CodeValidation, fmt.Sprintf("invalid month %d", month))
	}
	if year < 2000 || year > 9999 {
		return time.Time{}, time.Time{}, apperrors.New(apperrors.CodeValidation, fmt.Sprintf("invalid year %d", year))
	}
	start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0), nil
}

package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	bytesPerMB    = decimal.NewFromInt(1024 * 1024)
	secondsPerDay = decimal.NewFromInt(24 * 60 * 60)
)

// Model is the pure cost function for held storage: bytes held over a
// duration priced at a configured rate per byte per second. All arithmetic is
// decimal; callers round only at display.
type Model struct {
	rate decimal.Decimal
}

// NewModel builds a cost model with the provided rate.
func NewModel(ratePerBytePerSecond decimal.Decimal) (*Model, error) {
	if ratePerBytePerSecond.IsNegative() {
		return nil, fmt.Errorf("rate must be non-negative, got %s", ratePerBytePerSecond)
	}
	return &Model{rate: ratePerBytePerSecond}, nil
}

// Rate returns the configured cost per byte per second.
func (m *Model) Rate() decimal.Decimal {
	return m.rate
}

// Cost prices holding bytesHeld for durationSeconds. Non-positive inputs
// yield zero; the result is linear in both factors.
func (m *Model) Cost(bytesHeld, durationSeconds int64) decimal.Decimal {
	if bytesHeld <= 0 || durationSeconds <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(bytesHeld).
		Mul(decimal.NewFromInt(durationSeconds)).
		Mul(m.rate)
}

// CostPerMBPerDay converts the rate into a display figure for reporting.
func (m *Model) CostPerMBPerDay() decimal.Decimal {
	return m.rate.Mul(bytesPerMB).Mul(secondsPerDay)
}

package types

import (
	"fmt"
	"math"
)

// NoPTS marks a missing timestamp. Every timestamp handled by the pool and
// the sync engine is in milliseconds.
const NoPTS int64 = math.MinInt64

// TimeBaseConverter converts timestamps between time bases
type TimeBaseConverter struct {
	from   Rational
	to     Rational
	factor float64
}

// NewTimeBaseConverter creates a new time base converter
func NewTimeBaseConverter(from, to Rational) (*TimeBaseConverter, error) {
	if !from.Valid() {
		return nil, fmt.Errorf("invalid source time base: %v", from)
	}
	if !to.Valid() {
		return nil, fmt.Errorf("invalid target time base: %v", to)
	}

	// (to.Den * from.Num) / (to.Num * from.Den)
	factor := (float64(to.Den) * float64(from.Num)) / (float64(to.Num) * float64(from.Den))

	return &TimeBaseConverter{from: from, to: to, factor: factor}, nil
}

// NewMillisecondConverter converts from timeBase into milliseconds.
func NewMillisecondConverter(timeBase Rational) (*TimeBaseConverter, error) {
	return NewTimeBaseConverter(timeBase, TimeBase1kHz)
}

// Convert converts a timestamp, rounding to nearest. NoPTS passes through.
func (c *TimeBaseConverter) Convert(ts int64) int64 {
	if ts == NoPTS {
		return NoPTS
	}
	return int64(math.Round(float64(ts) * c.factor))
}

// Ratio returns the conversion factor.
func (c *TimeBaseConverter) Ratio() float64 {
	return c.factor
}

func (c *TimeBaseConverter) Source() Rational { return c.from }
func (c *TimeBaseConverter) Target() Rational { return c.to }

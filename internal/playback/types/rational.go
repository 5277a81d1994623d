package types

import "fmt"

// Rational represents a rational number (numerator/denominator).
// Used for time bases and frame rates.
type Rational struct {
	Num int
	Den int
}

// NewRational creates a new rational number. A zero denominator becomes 1.
func NewRational(num, den int) Rational {
	if den == 0 {
		den = 1
	}
	return Rational{Num: num, Den: den}
}

// Float64 returns the floating point representation
func (r Rational) Float64() float64 {
	if r.Den == 0 {
		return 0
	}
	return float64(r.Num) / float64(r.Den)
}

// Invert returns the inverted rational (den/num)
func (r Rational) Invert() Rational {
	return Rational{Num: r.Den, Den: r.Num}
}

// Valid reports whether both terms are non-zero.
func (r Rational) Valid() bool {
	return r.Num != 0 && r.Den != 0
}

func (r Rational) String() string {
	return fmt.Sprintf("%d/%d", r.Num, r.Den)
}

// FrameRateFromFloat approximates common broadcast rates exactly and falls
// back to millihertz precision otherwise.
func FrameRateFromFloat(fps float64) Rational {
	for _, r := range []Rational{FrameRate23_976, FrameRate29_97, FrameRate59_94} {
		if d := r.Float64() - fps; d > -0.005 && d < 0.005 {
			return r
		}
	}
	return NewRational(int(fps*1000+0.5), 1000)
}

var (
	TimeBase90kHz = Rational{Num: 1, Den: 90000}
	TimeBase1kHz  = Rational{Num: 1, Den: 1000}
	TimeBase48kHz = Rational{Num: 1, Den: 48000}

	FrameRate24 = Rational{Num: 24, Den: 1}
	FrameRate25 = Rational{Num: 25, Den: 1}
	FrameRate30 = Rational{Num: 30, Den: 1}
	FrameRate50 = Rational{Num: 50, Den: 1}
	FrameRate60 = Rational{Num: 60, Den: 1}

	FrameRate23_976 = Rational{Num: 24000, Den: 1001}
	FrameRate29_97  = Rational{Num: 30000, Den: 1001}
	FrameRate59_94  = Rational{Num: 60000, Den: 1001}
)

package frame

import (
	"math"

	"github.com/zsiec/framesync/internal/playback/types"
)

// TimestampTracker picks the trustworthy timestamp of each decoded picture.
// Streams with broken PTS (reordered or repeated) are detected by counting
// non-monotonic values; DTS is used once PTS has been faulty more often.
// Not safe for concurrent use; one tracker per decoder.
type TimestampTracker struct {
	lastPTS   int64
	lastDTS   int64
	faultyPTS int
	faultyDTS int
}

func NewTimestampTracker() *TimestampTracker {
	t := &TimestampTracker{}
	t.Reset()
	return t
}

// Reset forgets all history. Call on seek or flush.
func (t *TimestampTracker) Reset() {
	t.lastPTS = math.MinInt64
	t.lastDTS = math.MinInt64
	t.faultyPTS = 0
	t.faultyDTS = 0
}

// Select returns the timestamp to present, in the stream's time base, or
// types.NoPTS when neither is known.
func (t *TimestampTracker) Select(pts, dts int64) int64 {
	if dts != types.NoPTS {
		if dts <= t.lastDTS {
			t.faultyDTS++
		}
		t.lastDTS = dts
	}

	if pts != types.NoPTS {
		if pts <= t.lastPTS {
			t.faultyPTS++
		}
		t.lastPTS = pts
	}

	if pts != types.NoPTS && (t.faultyPTS <= t.faultyDTS || dts == types.NoPTS) {
		return pts
	}
	return dts
}

// Faults returns the non-monotonic PTS and DTS counts seen since Reset.
func (t *TimestampTracker) Faults() (pts, dts int) {
	return t.faultyPTS, t.faultyDTS
}

// Package progression implements the capital-management sequence: stakes
// rotate through a configured list, advancing on loss and resetting on win.
package progression

import "log"

// DefaultStake is used whenever the configured sequence is unusable.
const DefaultStake = 1.0

// Outcome of a settled trade.
type Outcome string

const (
	Win  Outcome = "WIN"
	Loss Outcome = "LOSS"
)

// NextStake returns sequence[index mod len(sequence)]. The index itself may
// grow past the sequence length; wrapping happens at read time so the raw
// index still reflects the loss streak. An empty or invalid sequence yields
// DefaultStake and is logged, never propagated as a failure.
func NextStake(sequence []float64, index int) float64 {
	if len(sequence) == 0 {
		log.Printf("progression: empty capital sequence, using default stake %.2f", DefaultStake)
		return DefaultStake
	}
	for _, v := range sequence {
		if v <= 0 {
			log.Printf("progression: non-positive entry %.4f in capital sequence, using default stake", v)
			return DefaultStake
		}
	}
	if index < 0 {
		index = 0
	}
	return sequence[index%len(sequence)]
}

// Advance moves the capital cursor after a trade settles: a loss steps the
// index forward and extends the streak, a win resets both.
func Advance(index, consecutiveLosses int, outcome Outcome) (int, int) {
	if outcome == Loss {
		return index + 1, consecutiveLosses + 1
	}
	return 0, 0
}

// Validate reports whether the sequence can produce stakes without falling
// back to the default.
func Validate(sequence []float64) bool {
	if len(sequence) == 0 {
		return false
	}
	for _, v := range sequence {
		if v <= 0 {
			return false
		}
	}
	return true
}

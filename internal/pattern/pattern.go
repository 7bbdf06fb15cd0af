// Package pattern matches a configured candle-color sequence against the
// most recent closed candles and derives the trade direction.
package pattern

import (
	"errors"
	"fmt"
	"strings"
)

// Color of a closed candle.
type Color string

const (
	Up   Color = "U"
	Down Color = "D"
)

// Direction of a prospective trade.
type Direction string

const (
	Long  Direction = "long"
	Short Direction = "short"
)

// ErrInvalidPattern is returned when a pattern string is malformed.
var ErrInvalidPattern = errors.New("invalid pattern")

// Parse validates a "-"-separated sequence of single-character Up/Down
// tokens. The empty string is a valid pattern: it matches every candle.
func Parse(s string) ([]Color, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	tokens := strings.Split(s, "-")
	out := make([]Color, 0, len(tokens))
	for _, tok := range tokens {
		switch strings.ToUpper(tok) {
		case "U":
			out = append(out, Up)
		case "D":
			out = append(out, Down)
		default:
			return nil, fmt.Errorf("%w: token %q", ErrInvalidPattern, tok)
		}
	}
	return out, nil
}

// Result of a match attempt.
type Result struct {
	Matched   bool
	Direction Direction
}

// Match compares the target pattern against the trailing window of recent
// candle colors (oldest first). An empty target matches any non-empty
// window. Direction comes from the last candle of the matched window:
// an up close suggests a reversal short, a down close a reversal long.
func Match(target []Color, recent []Color) Result {
	if len(recent) == 0 || len(recent) < len(target) {
		return Result{}
	}

	window := recent[len(recent)-max(len(target), 1):]
	for i, want := range target {
		if window[i] != want {
			return Result{}
		}
	}

	last := recent[len(recent)-1]
	dir := Long
	if last == Up {
		dir = Short
	}
	return Result{Matched: true, Direction: dir}
}

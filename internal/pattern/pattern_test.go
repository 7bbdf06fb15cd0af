package pattern

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	got, err := Parse("U-D-U")
	require.NoError(t, err)
	assert.Equal(t, []Color{Up, Down, Up}, got)

	got, err = Parse("u-d")
	require.NoError(t, err)
	assert.Equal(t, []Color{Up, Down}, got)

	got, err = Parse("")
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = Parse("U-X")
	assert.ErrorIs(t, err, ErrInvalidPattern)

	_, err = Parse("UD")
	assert.ErrorIs(t, err, ErrInvalidPattern)
}

func TestMatchRequiresEnoughHistory(t *testing.T) {
	target := []Color{Up, Up, Down}

	// Fewer closed candles than the pattern needs can never match.
	assert.False(t, Match(target, nil).Matched)
	assert.False(t, Match(target, []Color{Up, Down}).Matched)

	// Exactly enough history matches on the trailing window.
	assert.True(t, Match(target, []Color{Up, Up, Down}).Matched)
}

func TestMatchTrailingWindow(t *testing.T) {
	target := []Color{Down, Down}

	// Only the trailing candles count; older history is ignored.
	res := Match(target, []Color{Up, Up, Down, Down})
	assert.True(t, res.Matched)

	res = Match(target, []Color{Down, Down, Up, Down})
	assert.False(t, res.Matched)
}

func TestMatchDirectionFromLastCandle(t *testing.T) {
	// A down close suggests a reversal long.
	res := Match([]Color{Down}, []Color{Up, Down})
	assert.True(t, res.Matched)
	assert.Equal(t, Long, res.Direction)

	// An up close suggests a reversal short.
	res = Match([]Color{Up}, []Color{Down, Up})
	assert.True(t, res.Matched)
	assert.Equal(t, Short, res.Direction)
}

func TestEmptyTargetMatchesEveryCandle(t *testing.T) {
	res := Match(nil, []Color{Down})
	assert.True(t, res.Matched)
	assert.Equal(t, Long, res.Direction)

	res = Match(nil, []Color{Up})
	assert.True(t, res.Matched)
	assert.Equal(t, Short, res.Direction)

	// But never with no history at all.
	assert.False(t, Match(nil, nil).Matched)
}

package progression

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAdvanceOnLoss(t *testing.T) {
	idx, losses := Advance(0, 0, Loss)
	assert.Equal(t, 1, idx)
	assert.Equal(t, 1, losses)

	idx, losses = Advance(idx, losses, Loss)
	assert.Equal(t, 2, idx)
	assert.Equal(t, 2, losses)
}

func TestResetOnWin(t *testing.T) {
	idx, losses := Advance(5, 5, Win)
	assert.Equal(t, 0, idx)
	assert.Equal(t, 0, losses)
}

func TestNextStakeWalksSequence(t *testing.T) {
	seq := []float64{1, 2, 4, 8}

	idx, losses := 0, 0
	var stakes []float64
	for i := 0; i < 4; i++ {
		stakes = append(stakes, NextStake(seq, idx))
		idx, losses = Advance(idx, losses, Loss)
	}
	assert.Equal(t, []float64{1, 2, 4, 8}, stakes)
	assert.Equal(t, 4, losses)

	// A win snaps back to the base stake.
	idx, _ = Advance(idx, losses, Win)
	assert.Equal(t, 1.0, NextStake(seq, idx))
}

func TestNextStakeWrapsPastSequenceEnd(t *testing.T) {
	seq := []float64{1, 2, 4}

	// Losses can run past the end of the sequence; the stake wraps around
	// instead of running off the slice.
	assert.Equal(t, 1.0, NextStake(seq, 3))
	assert.Equal(t, 2.0, NextStake(seq, 4))
	assert.Equal(t, 4.0, NextStake(seq, 5))
	assert.Equal(t, 1.0, NextStake(seq, 6))
}

func TestNextStakeFallsBackOnBadSequence(t *testing.T) {
	assert.Equal(t, DefaultStake, NextStake(nil, 0))
	assert.Equal(t, DefaultStake, NextStake([]float64{}, 2))
	assert.Equal(t, DefaultStake, NextStake([]float64{0, -1}, 0))
}

func TestValidate(t *testing.T) {
	assert.True(t, Validate([]float64{1, 2, 4}))
	assert.False(t, Validate(nil))
	assert.False(t, Validate([]float64{1, 0}))
	assert.False(t, Validate([]float64{-5}))
}

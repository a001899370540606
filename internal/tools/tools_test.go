package tools

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPercent(t *testing.T) {
	assert.Equal(t, 70.0, Percent(7, 10))
	assert.Equal(t, 66.67, Percent(2, 3))
	assert.Equal(t, 33.33, Percent(1, 3))
	assert.Equal(t, 0.0, Percent(0, 0))
	assert.Equal(t, 100.0, Percent(4, 4))
}

func TestRound(t *testing.T) {
	assert.Equal(t, 1.01, Round(1.005, 2))
	assert.Equal(t, -2.5, Round(-2.49999, 1))
	assert.Equal(t, 3.0, Round(3, 2))
}

func TestSum(t *testing.T) {
	assert.Equal(t, "0.3", Sum(0.1, 0.2).String())
	assert.True(t, Sum().IsZero())
}

func TestUnitsNanoToFloat(t *testing.T) {
	assert.Equal(t, 114.25, UnitsNanoToFloat(114, 250000000))
	assert.Equal(t, -0.5, UnitsNanoToFloat(0, -500000000))
}

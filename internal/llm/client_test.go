package llm

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveTemperature(t *testing.T) {
	c := &Client{temperature: 0.7}

	// Unset falls back to the client default.
	assert.InDelta(t, 0.7, c.resolveTemperature(nil), 1e-6)

	// An explicit value wins over the default.
	assert.InDelta(t, 0.2, c.resolveTemperature(Temp(0.2)), 1e-6)

	// An explicit zero must survive as a near-zero value, not fall back.
	got := c.resolveTemperature(Temp(0))
	assert.Equal(t, float32(math.SmallestNonzeroFloat32), got)
	assert.Greater(t, got, float32(0))
}

func TestResolveTemperatureZeroDefault(t *testing.T) {
	c := &Client{}

	got := c.resolveTemperature(nil)
	assert.Equal(t, float32(math.SmallestNonzeroFloat32), got)
}

package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestThresholdPolicy(t *testing.T) {
	p := ThresholdPolicy{MaxDropped: 3}
	assert.Equal(t, DropFrame, p.OnBackpressure(ref(1, 0), 1))
	assert.Equal(t, DropFrame, p.OnBackpressure(ref(1, 0), 2))
	assert.Equal(t, CloseContext, p.OnBackpressure(ref(1, 0), 3))

	assert.Equal(t, DropFrame, ThresholdPolicy{}.OnBackpressure(ref(1, 0), 100), "zero threshold never closes")
}

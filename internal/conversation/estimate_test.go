package conversation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCharEstimator(t *testing.T) {
	e := CharEstimator{CharsPerToken: 4}
	assert.Equal(t, 0.0, e.Estimate(""))
	assert.Equal(t, 1.0, e.Estimate("abcd"))
	assert.Equal(t, 2.5, e.Estimate("abcdefghij"))
	// characters, not bytes
	assert.Equal(t, 1.0, e.Estimate("прив"))
}

func TestCharEstimatorFallsBackToDefault(t *testing.T) {
	assert.Equal(t, 2.0, CharEstimator{}.Estimate("12345678"))
}

package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProgressionLevelUp(t *testing.T) {
	p := &Progression{Username: "alice"}

	// level 1 threshold is 100 points, 5 per message: 20th message levels up
	for i := 0; i < 19; i++ {
		assert.False(t, p.RecordActivity())
	}
	assert.True(t, p.RecordActivity())
	assert.Equal(t, 2, p.Level)
	assert.Equal(t, 100, p.Points)
}

func TestProgressionThresholdGrowsWithLevel(t *testing.T) {
	p := &Progression{Username: "bob", Points: 100, Level: 2}

	// level 2 threshold is 200 points: 20 more messages needed
	for i := 0; i < 19; i++ {
		assert.False(t, p.RecordActivity())
	}
	assert.True(t, p.RecordActivity())
	assert.Equal(t, 3, p.Level)
}

func TestProgressionPointsNeverReset(t *testing.T) {
	p := &Progression{Username: "carol"}
	for i := 0; i < 25; i++ {
		p.RecordActivity()
	}
	assert.Equal(t, 125, p.Points)
	assert.Equal(t, 2, p.Level)
}

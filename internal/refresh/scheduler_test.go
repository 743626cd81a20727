package refresh

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNextMondayAt(t *testing.T) {
	next := nextMondayAt(time.UTC, 3)
	assert.Equal(t, time.Monday, next.Weekday())
	assert.Equal(t, 3, next.Hour())
	assert.True(t, next.After(time.Now()))
	// 不超过一周
	assert.True(t, next.Before(time.Now().Add(7*24*time.Hour+time.Minute)))
}

package jobqueue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryDelay(t *testing.T) {
	tests := []struct {
		attempts int
		want     time.Duration
	}{
		{0, 30 * time.Second},
		{1, 30 * time.Second},
		{2, time.Minute},
		{3, 2 * time.Minute},
		{4, 4 * time.Minute},
		{5, 8 * time.Minute},
		{6, 15 * time.Minute},
		{7, 15 * time.Minute},
		{100, 15 * time.Minute},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, RetryDelay(tt.attempts), "attempts=%d", tt.attempts)
	}
}

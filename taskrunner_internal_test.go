package statusflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBackOff(t *testing.T) {
	r := NewTaskRunner(nil, WithTaskRetries(10, 10*time.Second, time.Minute))

	testCases := []struct {
		attempt  int
		expected time.Duration
	}{
		{attempt: 1, expected: 10 * time.Second},
		{attempt: 2, expected: 20 * time.Second},
		{attempt: 3, expected: 40 * time.Second},
		{attempt: 4, expected: time.Minute},
		{attempt: 9, expected: time.Minute},
	}

	for _, tc := range testCases {
		require.Equal(t, tc.expected, r.backOff(tc.attempt), "attempt %d", tc.attempt)
	}
}

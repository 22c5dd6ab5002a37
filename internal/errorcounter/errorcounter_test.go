package errorcounter_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/julo/statusflow/internal/errorcounter"
)

func TestErrorCounter(t *testing.T) {
	testCases := []struct {
		name           string
		labels         []string
		iterationCount int
		expectedCount  int
	}{
		{
			name:           "Add 3 and get 3",
			labels:         []string{"expire-forms", "app-1"},
			iterationCount: 3,
			expectedCount:  3,
		},
		{
			name:           "Add 3 and get 3 - no labels",
			labels:         []string{},
			iterationCount: 3,
			expectedCount:  3,
		},
		{
			name:           "Add 0 and get 0",
			labels:         []string{"expire-forms"},
			iterationCount: 0,
			expectedCount:  0,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c := errorcounter.New()

			var currentCount int
			for i := 0; i < tc.iterationCount; i++ {
				currentCount = c.Add(tc.labels...)
			}
			require.Equal(t, tc.expectedCount, currentCount)

			count := c.Count(tc.labels...)
			require.Equal(t, tc.expectedCount, count)

			c.Clear(tc.labels...)
			count = c.Count(tc.labels...)
			require.Equal(t, 0, count)
			require.Equal(t, 0, c.Len())
		})
	}
}

func TestErrorCounterKeysAreIndependent(t *testing.T) {
	c := errorcounter.New()
	c.Add("job", "app-1")
	c.Add("job", "app-1")
	c.Add("job", "app-2")

	require.Equal(t, 2, c.Count("job", "app-1"))
	require.Equal(t, 1, c.Count("job", "app-2"))
	require.Equal(t, 2, c.Len())
}

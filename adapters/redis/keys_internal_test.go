package redis

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// hashTag returns the part of key that redis cluster hashes to pick a slot.
func hashTag(key string) string {
	start := strings.IndexByte(key, '{')
	if start < 0 {
		return key
	}

	end := strings.IndexByte(key[start+1:], '}')
	if end <= 0 {
		return key
	}

	return key[start+1 : start+1+end]
}

func TestTaskKeysShareSlot(t *testing.T) {
	require.Equal(t, "statusflow:tasks", hashTag(dueKey))
	require.Equal(t, hashTag(dueKey), hashTag(dataKey))
}

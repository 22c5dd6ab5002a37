package memqueue_test

import (
	"testing"

	"github.com/julo/statusflow"
	"github.com/julo/statusflow/adapters/adaptertest"
	"github.com/julo/statusflow/adapters/memqueue"
)

func TestQueue(t *testing.T) {
	adaptertest.RunTaskQueueTest(t, func() statusflow.TaskQueue {
		return memqueue.New()
	})
}

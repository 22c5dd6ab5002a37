package memqueue

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/julo/statusflow"
)

func New() *Queue {
	return &Queue{
		tasks: make(map[string]*entry),
	}
}

var _ statusflow.TaskQueue = (*Queue)(nil)

type entry struct {
	task      statusflow.Task
	visibleAt time.Time
}

type Queue struct {
	mu    sync.Mutex
	tasks map[string]*entry
}

func (q *Queue) Enqueue(ctx context.Context, t statusflow.Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	t.Args = maps.Clone(t.Args)
	q.tasks[t.ID] = &entry{task: t, visibleAt: t.RunAt}
	return nil
}

func (q *Queue) Claim(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]statusflow.Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var due []*entry
	for _, e := range q.tasks {
		if e.visibleAt.After(now) {
			continue
		}

		due = append(due, e)
	}

	sort.Slice(due, func(i, j int) bool {
		if due[i].visibleAt.Equal(due[j].visibleAt) {
			return due[i].task.ID < due[j].task.ID
		}

		return due[i].visibleAt.Before(due[j].visibleAt)
	})

	if len(due) > limit {
		due = due[:limit]
	}

	tasks := make([]statusflow.Task, 0, len(due))
	for _, e := range due {
		e.visibleAt = now.Add(lease)

		t := e.task
		t.Args = maps.Clone(t.Args)
		tasks = append(tasks, t)
	}

	return tasks, nil
}

func (q *Queue) Ack(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	delete(q.tasks, id)
	return nil
}

// Tasks returns a snapshot of every queued task, claimed or not, ordered by id.
func (q *Queue) Tasks() []statusflow.Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	var tasks []statusflow.Task
	for _, e := range q.tasks {
		tasks = append(tasks, e.task)
	}

	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].ID < tasks[j].ID
	})

	return tasks
}

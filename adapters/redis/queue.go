package redis

import (
	"context"
	"strconv"
	"time"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
	"github.com/redis/go-redis/v9"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/julo/statusflow"
)

// Both keys share the {statusflow:tasks} hash tag so that the claim script and the pipelines touching both keys
// land on one slot of a redis cluster.
const (
	// dueKey is a sorted set of task ids scored by the unix millisecond they become visible.
	dueKey = "{statusflow:tasks}:due"
	// dataKey is a hash of task id to its encoded payload.
	dataKey = "{statusflow:tasks}:data"
)

var claimScript = redis.NewScript(`
	local due_key = KEYS[1]
	local data_key = KEYS[2]

	local now = ARGV[1]
	local visible_at = ARGV[2]
	local limit = ARGV[3]

	local ids = redis.call('ZRANGEBYSCORE', due_key, '-inf', now, 'LIMIT', 0, limit)

	local res = {}
	for _, id in ipairs(ids) do
		local payload = redis.call('HGET', data_key, id)
		if payload then
			-- Hide the task until the lease expires.
			redis.call('ZADD', due_key, visible_at, id)
			table.insert(res, id)
			table.insert(res, payload)
		else
			redis.call('ZREM', due_key, id)
		end
	end

	return res
`)

// TaskQueue is a statusflow.TaskQueue on a redis sorted set. Payloads are protobuf encoded structs.
type TaskQueue struct {
	client redis.UniversalClient
}

func NewTaskQueue(client redis.UniversalClient) *TaskQueue {
	return &TaskQueue{client: client}
}

var _ statusflow.TaskQueue = (*TaskQueue)(nil)

func (q *TaskQueue) Enqueue(ctx context.Context, t statusflow.Task) error {
	payload, err := encodeTask(t)
	if err != nil {
		return err
	}

	_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, dataKey, t.ID, payload)
		pipe.ZAdd(ctx, dueKey, redis.Z{
			Score:  float64(t.RunAt.UnixMilli()),
			Member: t.ID,
		})
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "enqueue task", j.MKV{"task_id": t.ID})
	}

	return nil
}

func (q *TaskQueue) Claim(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]statusflow.Task, error) {
	res, err := claimScript.Run(ctx, q.client, []string{dueKey, dataKey},
		strconv.FormatInt(now.UnixMilli(), 10),
		strconv.FormatInt(now.Add(lease).UnixMilli(), 10),
		limit,
	).Slice()
	if err != nil {
		return nil, errors.Wrap(err, "claim tasks")
	}

	var tasks []statusflow.Task
	for i := 0; i+1 < len(res); i += 2 {
		id, _ := res[i].(string)
		payload, _ := res[i+1].(string)

		t, err := decodeTask(id, []byte(payload))
		if err != nil {
			return nil, err
		}

		tasks = append(tasks, t)
	}

	return tasks, nil
}

func (q *TaskQueue) Ack(ctx context.Context, id string) error {
	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, dueKey, id)
		pipe.HDel(ctx, dataKey, id)
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "ack task", j.MKV{"task_id": id})
	}

	return nil
}

func encodeTask(t statusflow.Task) ([]byte, error) {
	args := make(map[string]any, len(t.Args))
	for k, v := range t.Args {
		args[k] = v
	}

	s, err := structpb.NewStruct(map[string]any{
		"name":       t.Name,
		"args":       args,
		"attempt":    t.Attempt,
		"last_error": t.LastError,
		"run_at_ms":  t.RunAt.UnixMilli(),
	})
	if err != nil {
		return nil, errors.Wrap(err, "encode task", j.MKV{"task_id": t.ID})
	}

	return proto.Marshal(s)
}

func decodeTask(id string, payload []byte) (statusflow.Task, error) {
	var s structpb.Struct
	err := proto.Unmarshal(payload, &s)
	if err != nil {
		return statusflow.Task{}, errors.Wrap(err, "decode task", j.MKV{"task_id": id})
	}

	t := statusflow.Task{
		ID:        id,
		Name:      s.Fields["name"].GetStringValue(),
		Attempt:   int(s.Fields["attempt"].GetNumberValue()),
		LastError: s.Fields["last_error"].GetStringValue(),
		RunAt:     time.UnixMilli(int64(s.Fields["run_at_ms"].GetNumberValue())),
	}

	if fields := s.Fields["args"].GetStructValue().GetFields(); len(fields) > 0 {
		t.Args = make(map[string]string, len(fields))
		for k, v := range fields {
			t.Args[k] = v.GetStringValue()
		}
	}

	return t, nil
}

// Package eventpb encodes transition events as protobuf for consumers that do not read JSON. Events are carried in a
// google.protobuf.Struct so no generated code is needed on either side.
package eventpb

import (
	"time"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/julo/statusflow"
)

const ContentType = "application/x-protobuf"

var ErrMalformedEvent = errors.New("malformed transition event", j.C("ERR_3b9e04d7c61a25f8"))

func ToProto(e statusflow.TransitionEvent) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"history_id":  structpb.NewStringValue(e.HistoryID),
		"workflow":    structpb.NewStringValue(e.Workflow),
		"entity_id":   structpb.NewStringValue(e.EntityID),
		"status_old":  structpb.NewNumberValue(float64(e.StatusOld)),
		"status_new":  structpb.NewNumberValue(float64(e.StatusNew)),
		"reason":      structpb.NewStringValue(e.Reason),
		"actor_id":    structpb.NewStringValue(e.ActorID),
		"actor_role":  structpb.NewStringValue(e.ActorRole),
		"path_type":   structpb.NewStringValue(e.PathType),
		"version":     structpb.NewNumberValue(float64(e.Version)),
		"occurred_at": structpb.NewStringValue(e.OccurredAt.UTC().Format(time.RFC3339Nano)),
	}}
}

// Marshal encodes e deterministically so that equal events produce equal bytes.
func Marshal(e statusflow.TransitionEvent) ([]byte, error) {
	return proto.MarshalOptions{Deterministic: true}.Marshal(ToProto(e))
}

func Unmarshal(b []byte) (statusflow.TransitionEvent, error) {
	var s structpb.Struct
	err := proto.Unmarshal(b, &s)
	if err != nil {
		return statusflow.TransitionEvent{}, errors.Wrap(ErrMalformedEvent, err.Error())
	}

	return FromProto(&s)
}

func FromProto(s *structpb.Struct) (statusflow.TransitionEvent, error) {
	f := s.GetFields()

	occurredAt, err := time.Parse(time.RFC3339Nano, f["occurred_at"].GetStringValue())
	if err != nil {
		return statusflow.TransitionEvent{}, errors.Wrap(ErrMalformedEvent, "occurred_at", j.MKV{
			"occurred_at": f["occurred_at"].GetStringValue(),
		})
	}

	e := statusflow.TransitionEvent{
		HistoryID:  f["history_id"].GetStringValue(),
		Workflow:   f["workflow"].GetStringValue(),
		EntityID:   f["entity_id"].GetStringValue(),
		StatusOld:  int(f["status_old"].GetNumberValue()),
		StatusNew:  int(f["status_new"].GetNumberValue()),
		Reason:     f["reason"].GetStringValue(),
		ActorID:    f["actor_id"].GetStringValue(),
		ActorRole:  f["actor_role"].GetStringValue(),
		PathType:   f["path_type"].GetStringValue(),
		Version:    int64(f["version"].GetNumberValue()),
		OccurredAt: occurredAt,
	}

	if e.HistoryID == "" || e.Workflow == "" || e.EntityID == "" {
		return statusflow.TransitionEvent{}, errors.Wrap(ErrMalformedEvent, "missing identifiers")
	}

	return e, nil
}

package persistence

import (
	"bytes"
	"encoding/gob"
	"errors"
	"time"

	"github.com/petrijr/skein/pkg/api"
)

var errEmptyPayload = errors.New("empty event payload")

// eventPayload is the gob wire form of an api.FiberEvent. Time is kept as
// UnixNano so the monotonic reading never reaches the wire.
type eventPayload struct {
	ID       string
	EngineID string
	FiberID  int64
	ParentID int64
	AtNanos  int64
	Type     string
	Step     string
	Detail   string
}

func encodeEvent(ev api.FiberEvent) ([]byte, error) {
	payload := eventPayload{
		ID:       ev.ID,
		EngineID: ev.EngineID,
		FiberID:  ev.FiberID,
		ParentID: ev.ParentID,
		AtNanos:  ev.At.UnixNano(),
		Type:     string(ev.Type),
		Step:     ev.Step,
		Detail:   ev.Detail,
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&payload); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeEvent(data []byte) (api.FiberEvent, error) {
	if len(data) == 0 {
		return api.FiberEvent{}, errEmptyPayload
	}
	var payload eventPayload
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&payload); err != nil {
		return api.FiberEvent{}, err
	}
	return api.FiberEvent{
		ID:       payload.ID,
		EngineID: payload.EngineID,
		FiberID:  payload.FiberID,
		ParentID: payload.ParentID,
		At:       time.Unix(0, payload.AtNanos),
		Type:     api.EventType(payload.Type),
		Step:     payload.Step,
		Detail:   payload.Detail,
	}, nil
}

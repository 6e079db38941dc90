package feed

import (
	"errors"
	"fmt"

	"github.com/segmentio/encoding/json"
)

var ErrUnknownType = errors.New("feed: unknown message type")

// JSONCodec encodes feed messages as self-describing JSON; the "type" field
// tells a consumer which shape follows.
type JSONCodec struct{}

func (JSONCodec) EncodeIncremental(m IncrementalMessage) ([]byte, error) {
	if m.Type == "" {
		m.Type = TypeIncremental
	}
	return json.Marshal(m)
}

func (JSONCodec) EncodeSnapshot(s RecoverySnapshot) ([]byte, error) {
	if s.Type == "" {
		s.Type = TypeRecovery
	}
	if s.Levels == nil {
		s.Levels = [][]OrderRecord{}
	}
	return json.Marshal(s)
}

type envelope struct {
	Type string `json:"type"`
}

// Decode returns either an IncrementalMessage or a RecoverySnapshot.
func (JSONCodec) Decode(b []byte) (any, error) {
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, err
	}
	switch env.Type {
	case TypeIncremental:
		var m IncrementalMessage
		if err := json.Unmarshal(b, &m); err != nil {
			return nil, err
		}
		if m.Orders == nil {
			m.Orders = []OrderRecord{}
		}
		return m, nil
	case TypeRecovery:
		var s RecoverySnapshot
		if err := json.Unmarshal(b, &s); err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
}

package store

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/OFFIS-RIT/trailgraph/pkg/common"
)

// EncodeState serializes a session state for storage.
func EncodeState(state *common.SessionState) ([]byte, error) {
	if state == nil || state.ID == "" {
		return nil, errors.New("session state has no id")
	}
	data, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("failed to encode session %s: %w", state.ID, err)
	}
	return data, nil
}

// DecodeState parses a stored session state.
func DecodeState(data []byte) (*common.SessionState, error) {
	var state common.SessionState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	if state.Graph == nil {
		state.Graph = &common.Graph{}
	}
	return &state, nil
}

// CheckVersion returns ErrVersionConflict when next would replace a newer
// stored version.
func CheckVersion(id string, stored, next int) error {
	if next < stored {
		return fmt.Errorf("session %s: stored version %d is newer than %d: %w", id, stored, next, ErrVersionConflict)
	}
	return nil
}

// Package examplekv is a minimal StateMachine implementation used by
// cmd/raftnoded to demonstrate wiring a real user state machine into
// the core, grounded on replica/server_apply.go's Op-dispatch shape
// (applyKVCmd) generalized down to a bare Get/Put map.
package examplekv

import (
	"encoding/gob"
	"fmt"

	"github.com/raftgroup/core/internal/core"
)

func init() {
	gob.Register(PutOp{})
	gob.Register(GetOp{})
}

// PutOp sets Key to Value; applied through the log.
type PutOp struct {
	Key   string
	Value string
}

// GetOp reads Key; used both as a replicated operation (rare) and as
// the payload for StateMachine.Query (the common path).
type GetOp struct {
	Key string
}

// Machine is a trivial in-memory key/value store.
type Machine struct {
	data map[string]string
}

func New() *Machine {
	return &Machine{data: make(map[string]string)}
}

func (m *Machine) Apply(index core.LogIndex, operation interface{}) (interface{}, error) {
	switch op := operation.(type) {
	case PutOp:
		m.data[op.Key] = op.Value
		return nil, nil
	case GetOp:
		return m.data[op.Key], nil
	default:
		return nil, fmt.Errorf("examplekv: unrecognized operation %T", operation)
	}
}

func (m *Machine) Query(index core.LogIndex, operation interface{}) (interface{}, error) {
	op, ok := operation.(GetOp)
	if !ok {
		return nil, fmt.Errorf("examplekv: query expects GetOp, got %T", operation)
	}
	return m.data[op.Key], nil
}

func (m *Machine) TakeSnapshot(index core.LogIndex, sink core.ChunkSink) error {
	i, count := 0, len(m.data)
	for k, v := range m.data {
		payload := []byte(k + "\x00" + v)
		if err := sink.Send(i, count, payload); err != nil {
			return err
		}
		i++
	}
	return nil
}

func (m *Machine) InstallSnapshot(index core.LogIndex, chunkOperations [][]byte) error {
	data := make(map[string]string, len(chunkOperations))
	for _, chunk := range chunkOperations {
		k, v := splitChunk(chunk)
		data[k] = v
	}
	m.data = data
	return nil
}

func splitChunk(chunk []byte) (string, string) {
	for i, b := range chunk {
		if b == 0 {
			return string(chunk[:i]), string(chunk[i+1:])
		}
	}
	return string(chunk), ""
}

// GetNewTermOperation returns nothing to append: examplekv has no
// use for observing new-term boundaries.
func (m *Machine) GetNewTermOperation() (interface{}, bool) {
	return nil, false
}

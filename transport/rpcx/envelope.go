package rpcx

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/Allen1211/msgp/msgp"

	"github.com/raftgroup/core/internal/core"
)

// envelope is the one wire-level shape every RPC call carries: a
// message-kind tag plus a gob-encoded payload. The outer framing
// (kind byte + byte string) is msgp-encoded so codec.RPCCodec, which
// runtime.go registers in rpcx's share.Codecs, frames it the same way the teacher's
// codec.MsgpCodec does; the inner payload is gob because
// AppendEntriesRequest.Entries carries opaque user Operation values
// msgp code generation cannot see (see DESIGN.md's stdlib
// justification for this file).
type envelope struct {
	Kind    uint8
	Payload []byte
}

const (
	kindAppendEntriesRequest uint8 = iota
	kindAppendEntriesSuccess
	kindAppendEntriesFailure
	kindInstallSnapshotRequest
	kindInstallSnapshotResponse
	kindVoteRequest
	kindVoteResponse
	kindPreVoteRequest
	kindPreVoteResponse
	kindTriggerLeaderElection
)

func init() {
	gob.Register(core.UpdateMembersOp{})
	gob.Register(core.TerminateGroupOp{})
}

func encodeMessage(msg core.Message) (envelope, error) {
	var kind uint8
	switch msg.(type) {
	case core.AppendEntriesRequest:
		kind = kindAppendEntriesRequest
	case core.AppendEntriesSuccess:
		kind = kindAppendEntriesSuccess
	case core.AppendEntriesFailure:
		kind = kindAppendEntriesFailure
	case core.InstallSnapshotRequest:
		kind = kindInstallSnapshotRequest
	case core.InstallSnapshotResponse:
		kind = kindInstallSnapshotResponse
	case core.VoteRequest:
		kind = kindVoteRequest
	case core.VoteResponse:
		kind = kindVoteResponse
	case core.PreVoteRequest:
		kind = kindPreVoteRequest
	case core.PreVoteResponse:
		kind = kindPreVoteResponse
	case core.TriggerLeaderElection:
		kind = kindTriggerLeaderElection
	default:
		return envelope{}, fmt.Errorf("rpcx: unrecognized message type %T", msg)
	}
	buf := new(bytes.Buffer)
	if err := gob.NewEncoder(buf).Encode(msg); err != nil {
		return envelope{}, err
	}
	return envelope{Kind: kind, Payload: buf.Bytes()}, nil
}

func decodeMessage(e envelope) (core.Message, error) {
	var target core.Message
	switch e.Kind {
	case kindAppendEntriesRequest:
		var m core.AppendEntriesRequest
		target = &m
	case kindAppendEntriesSuccess:
		var m core.AppendEntriesSuccess
		target = &m
	case kindAppendEntriesFailure:
		var m core.AppendEntriesFailure
		target = &m
	case kindInstallSnapshotRequest:
		var m core.InstallSnapshotRequest
		target = &m
	case kindInstallSnapshotResponse:
		var m core.InstallSnapshotResponse
		target = &m
	case kindVoteRequest:
		var m core.VoteRequest
		target = &m
	case kindVoteResponse:
		var m core.VoteResponse
		target = &m
	case kindPreVoteRequest:
		var m core.PreVoteRequest
		target = &m
	case kindPreVoteResponse:
		var m core.PreVoteResponse
		target = &m
	case kindTriggerLeaderElection:
		var m core.TriggerLeaderElection
		target = &m
	default:
		return nil, fmt.Errorf("rpcx: unrecognized wire kind %d", e.Kind)
	}
	if err := gob.NewDecoder(bytes.NewReader(e.Payload)).Decode(target); err != nil {
		return nil, err
	}
	return derefMessage(target), nil
}

func derefMessage(m core.Message) core.Message {
	switch v := m.(type) {
	case *core.AppendEntriesRequest:
		return *v
	case *core.AppendEntriesSuccess:
		return *v
	case *core.AppendEntriesFailure:
		return *v
	case *core.InstallSnapshotRequest:
		return *v
	case *core.InstallSnapshotResponse:
		return *v
	case *core.VoteRequest:
		return *v
	case *core.VoteResponse:
		return *v
	case *core.PreVoteRequest:
		return *v
	case *core.PreVoteResponse:
		return *v
	case *core.TriggerLeaderElection:
		return *v
	default:
		return m
	}
}

func (z *envelope) EncodeMsg(en *msgp.Writer) error {
	if err := en.WriteMapHeader(2); err != nil {
		return err
	}
	if err := en.WriteString("Kind"); err != nil {
		return err
	}
	if err := en.WriteUint8(z.Kind); err != nil {
		return err
	}
	if err := en.WriteString("Payload"); err != nil {
		return err
	}
	return en.WriteBytes(z.Payload)
}

func (z *envelope) DecodeMsg(dc *msgp.Reader) error {
	fields, err := dc.ReadMapHeader()
	if err != nil {
		return err
	}
	for i := uint32(0); i < fields; i++ {
		name, err := dc.ReadString()
		if err != nil {
			return err
		}
		switch name {
		case "Kind":
			if z.Kind, err = dc.ReadUint8(); err != nil {
				return err
			}
		case "Payload":
			if z.Payload, err = dc.ReadBytes(z.Payload); err != nil {
				return err
			}
		default:
			if err := dc.Skip(); err != nil {
				return err
			}
		}
	}
	return nil
}

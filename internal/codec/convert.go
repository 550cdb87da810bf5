package codec

import "github.com/raftgroup/core/internal/core"

// ToWireEntry flattens a core.LogEntry into its wire shape, using opc
// to serialize an opaque user operation.
func ToWireEntry(e core.LogEntry, opc OperationCodec) (WireEntry, error) {
	w := WireEntry{Index: uint64(e.Index), Term: uint64(e.Term)}
	switch op := e.Operation.(type) {
	case core.UpdateMembersOp:
		w.OpKind = OpKindUpdateMembers
		w.MemberEndpoint = string(op.Endpoint)
		w.MemberMode = uint8(op.Mode)
		w.Members = make([]string, len(op.Members))
		for i, ep := range op.Members {
			w.Members[i] = string(ep)
		}
	case core.TerminateGroupOp:
		w.OpKind = OpKindTerminateGroup
	default:
		data, err := opc.Encode(op)
		if err != nil {
			return WireEntry{}, err
		}
		w.OpKind = OpKindUser
		w.Operation = data
	}
	return w, nil
}

// FromWireEntry reverses ToWireEntry.
func FromWireEntry(w WireEntry, opc OperationCodec) (core.LogEntry, error) {
	e := core.LogEntry{Index: core.LogIndex(w.Index), Term: core.Term(w.Term)}
	switch w.OpKind {
	case OpKindUpdateMembers:
		members := make([]core.Endpoint, len(w.Members))
		for i, m := range w.Members {
			members[i] = core.Endpoint(m)
		}
		e.Operation = core.UpdateMembersOp{
			Endpoint: core.Endpoint(w.MemberEndpoint),
			Mode:     core.MembershipMode(w.MemberMode),
			Members:  members,
		}
	case OpKindTerminateGroup:
		e.Operation = core.TerminateGroupOp{}
	default:
		op, err := opc.Decode(w.Operation)
		if err != nil {
			return core.LogEntry{}, err
		}
		e.Operation = op
	}
	return e, nil
}

// ToWireChunk/FromWireChunk carry a SnapshotChunk's already-opaque
// Operation bytes verbatim — the StateMachine's TakeSnapshot/
// InstallSnapshot contract deals in []byte directly (spec.md §6), so
// no OperationCodec is needed here.
func ToWireChunk(c core.SnapshotChunk) WireChunk {
	members := make([]string, len(c.GroupMembers))
	for i, ep := range c.GroupMembers {
		members[i] = string(ep)
	}
	return WireChunk{
		Index:        uint64(c.Index),
		Term:         uint64(c.Term),
		ChunkIndex:   int32(c.ChunkIndex),
		ChunkCount:   int32(c.ChunkCount),
		Operation:    c.Operation,
		GroupMembers: members,
	}
}

func FromWireChunk(w WireChunk) core.SnapshotChunk {
	members := make([]core.Endpoint, len(w.GroupMembers))
	for i, m := range w.GroupMembers {
		members[i] = core.Endpoint(m)
	}
	return core.SnapshotChunk{
		Index:        core.LogIndex(w.Index),
		Term:         core.Term(w.Term),
		ChunkIndex:   int(w.ChunkIndex),
		ChunkCount:   int(w.ChunkCount),
		Operation:    w.Operation,
		GroupMembers: members,
	}
}

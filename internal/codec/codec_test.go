package codec

import (
	"encoding/gob"
	"testing"

	"github.com/raftgroup/core/internal/core"
)

type testOp struct {
	Key, Value string
}

func init() {
	gob.Register(testOp{})
}

func TestGobOperationCodecRoundTrip(t *testing.T) {
	c := GobOperationCodec{}
	data, err := c.Encode(testOp{Key: "a", Value: "1"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := c.Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	op, ok := got.(testOp)
	if !ok {
		t.Fatalf("want testOp, got %T", got)
	}
	if op.Key != "a" || op.Value != "1" {
		t.Fatalf("unexpected op: %+v", op)
	}
}

func TestToFromWireEntryUserOperation(t *testing.T) {
	opc := GobOperationCodec{}
	entry := core.LogEntry{Index: 3, Term: 2, Operation: testOp{Key: "x", Value: "y"}}

	w, err := ToWireEntry(entry, opc)
	if err != nil {
		t.Fatalf("ToWireEntry: %v", err)
	}
	if w.OpKind != OpKindUser {
		t.Fatalf("want OpKindUser, got %d", w.OpKind)
	}

	back, err := FromWireEntry(w, opc)
	if err != nil {
		t.Fatalf("FromWireEntry: %v", err)
	}
	if back.Index != entry.Index || back.Term != entry.Term {
		t.Fatalf("want index/term preserved, got %+v", back)
	}
	op, ok := back.Operation.(testOp)
	want := testOp{Key: "x", Value: "y"}
	if !ok || op != want {
		t.Fatalf("want round-tripped testOp, got %+v", back.Operation)
	}
}

func TestToFromWireEntryUpdateMembers(t *testing.T) {
	opc := GobOperationCodec{}
	entry := core.LogEntry{Index: 7, Term: 1, Operation: core.UpdateMembersOp{
		Endpoint: "n4",
		Mode:     core.MembershipAdd,
		Members:  []core.Endpoint{"n1", "n2", "n3", "n4"},
	}}

	w, err := ToWireEntry(entry, opc)
	if err != nil {
		t.Fatalf("ToWireEntry: %v", err)
	}
	if w.OpKind != OpKindUpdateMembers {
		t.Fatalf("want OpKindUpdateMembers, got %d", w.OpKind)
	}
	if w.MemberEndpoint != "n4" || len(w.Members) != 4 {
		t.Fatalf("unexpected wire shape: %+v", w)
	}

	back, err := FromWireEntry(w, opc)
	if err != nil {
		t.Fatalf("FromWireEntry: %v", err)
	}
	op, ok := back.Operation.(core.UpdateMembersOp)
	if !ok {
		t.Fatalf("want UpdateMembersOp, got %T", back.Operation)
	}
	if op.Endpoint != "n4" || op.Mode != core.MembershipAdd || len(op.Members) != 4 {
		t.Fatalf("unexpected round-tripped op: %+v", op)
	}
}

func TestToFromWireEntryTerminateGroup(t *testing.T) {
	opc := GobOperationCodec{}
	entry := core.LogEntry{Index: 9, Term: 3, Operation: core.TerminateGroupOp{}}

	w, err := ToWireEntry(entry, opc)
	if err != nil {
		t.Fatalf("ToWireEntry: %v", err)
	}
	if w.OpKind != OpKindTerminateGroup {
		t.Fatalf("want OpKindTerminateGroup, got %d", w.OpKind)
	}

	back, err := FromWireEntry(w, opc)
	if err != nil {
		t.Fatalf("FromWireEntry: %v", err)
	}
	if _, ok := back.Operation.(core.TerminateGroupOp); !ok {
		t.Fatalf("want TerminateGroupOp, got %T", back.Operation)
	}
}

func TestRPCCodecRoundTripsWireEntry(t *testing.T) {
	c := &RPCCodec{}
	in := &WireEntry{
		Index: 4, Term: 2, OpKind: OpKindUser,
		Operation: []byte("payload"),
	}

	data, err := c.Encode(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	out := &WireEntry{}
	if err := c.Decode(data, out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Index != in.Index || out.Term != in.Term || out.OpKind != in.OpKind {
		t.Fatalf("unexpected round-tripped entry: %+v", out)
	}
	if string(out.Operation) != "payload" {
		t.Fatalf("want operation bytes preserved, got %q", out.Operation)
	}
}

func TestRPCCodecRejectsNonMsgpValue(t *testing.T) {
	c := &RPCCodec{}
	if _, err := c.Encode("not msgp.Encodable"); err == nil {
		t.Fatalf("want an error encoding a non-Encodable value")
	}
}

func TestToFromWireChunkRoundTrip(t *testing.T) {
	chunk := core.SnapshotChunk{
		Index: 10, Term: 2, ChunkIndex: 1, ChunkCount: 3,
		Operation:    []byte("payload"),
		GroupMembers: []core.Endpoint{"n1", "n2"},
	}

	w := ToWireChunk(chunk)
	if w.ChunkIndex != 1 || w.ChunkCount != 3 || len(w.GroupMembers) != 2 {
		t.Fatalf("unexpected wire chunk: %+v", w)
	}

	back := FromWireChunk(w)
	if back.Index != chunk.Index || back.Term != chunk.Term {
		t.Fatalf("want index/term preserved, got %+v", back)
	}
	if string(back.Operation) != "payload" {
		t.Fatalf("want operation bytes preserved, got %q", back.Operation)
	}
	if len(back.GroupMembers) != 2 || back.GroupMembers[0] != "n1" {
		t.Fatalf("unexpected round-tripped members: %+v", back.GroupMembers)
	}
}

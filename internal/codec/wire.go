package codec

import "github.com/Allen1211/msgp/msgp"

// OperationCodec serializes the opaque user Operation payload carried
// by LogEntry/SnapshotChunk. The core package treats Operation as
// interface{} (spec.md §1 "opaque user values"); msgp code generation
// only covers types known at generation time, so the host supplies
// this codec for its own operation type. GobOperationCodec (operation.go) is
// the permitted stdlib fallback when the operation type has no msgp
// mapping of its own (see DESIGN.md).
type OperationCodec interface {
	Encode(operation interface{}) ([]byte, error)
	Decode(data []byte) (interface{}, error)
}

// WireEntry is the on-wire shape of a LogEntry: Operation has already
// been reduced to bytes by an OperationCodec, or is one of the two
// privileged tags.
type WireEntry struct {
	Index       uint64
	Term        uint64
	OpKind      uint8 // 0 = user operation, 1 = UpdateMembers, 2 = TerminateGroup
	Operation   []byte
	MemberEndpoint string
	MemberMode  uint8
	Members     []string
}

const (
	OpKindUser          uint8 = 0
	OpKindUpdateMembers uint8 = 1
	OpKindTerminateGroup uint8 = 2
)

// EncodeMsg writes the entry in the same field-by-field style msgp
// generates for a struct: a map header followed by name/value pairs.
func (z *WireEntry) EncodeMsg(en *msgp.Writer) error {
	if err := en.WriteMapHeader(7); err != nil {
		return err
	}
	if err := en.WriteString("Index"); err != nil {
		return err
	}
	if err := en.WriteUint64(z.Index); err != nil {
		return err
	}
	if err := en.WriteString("Term"); err != nil {
		return err
	}
	if err := en.WriteUint64(z.Term); err != nil {
		return err
	}
	if err := en.WriteString("OpKind"); err != nil {
		return err
	}
	if err := en.WriteUint8(z.OpKind); err != nil {
		return err
	}
	if err := en.WriteString("Operation"); err != nil {
		return err
	}
	if err := en.WriteBytes(z.Operation); err != nil {
		return err
	}
	if err := en.WriteString("MemberEndpoint"); err != nil {
		return err
	}
	if err := en.WriteString(z.MemberEndpoint); err != nil {
		return err
	}
	if err := en.WriteString("MemberMode"); err != nil {
		return err
	}
	if err := en.WriteUint8(z.MemberMode); err != nil {
		return err
	}
	if err := en.WriteString("Members"); err != nil {
		return err
	}
	if err := en.WriteArrayHeader(uint32(len(z.Members))); err != nil {
		return err
	}
	for _, m := range z.Members {
		if err := en.WriteString(m); err != nil {
			return err
		}
	}
	return nil
}

func (z *WireEntry) DecodeMsg(dc *msgp.Reader) error {
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
		case "Index":
			if z.Index, err = dc.ReadUint64(); err != nil {
				return err
			}
		case "Term":
			if z.Term, err = dc.ReadUint64(); err != nil {
				return err
			}
		case "OpKind":
			if z.OpKind, err = dc.ReadUint8(); err != nil {
				return err
			}
		case "Operation":
			if z.Operation, err = dc.ReadBytes(z.Operation); err != nil {
				return err
			}
		case "MemberEndpoint":
			if z.MemberEndpoint, err = dc.ReadString(); err != nil {
				return err
			}
		case "MemberMode":
			if z.MemberMode, err = dc.ReadUint8(); err != nil {
				return err
			}
		case "Members":
			count, err := dc.ReadArrayHeader()
			if err != nil {
				return err
			}
			z.Members = make([]string, count)
			for j := range z.Members {
				if z.Members[j], err = dc.ReadString(); err != nil {
					return err
				}
			}
		default:
			if err := dc.Skip(); err != nil {
				return err
			}
		}
	}
	return nil
}

// WireChunk is the on-wire shape of a SnapshotChunk.
type WireChunk struct {
	Index        uint64
	Term         uint64
	ChunkIndex   int32
	ChunkCount   int32
	Operation    []byte
	GroupMembers []string
}

func (z *WireChunk) EncodeMsg(en *msgp.Writer) error {
	if err := en.WriteMapHeader(6); err != nil {
		return err
	}
	fields := []struct {
		name string
		fn   func() error
	}{
		{"Index", func() error { return en.WriteUint64(z.Index) }},
		{"Term", func() error { return en.WriteUint64(z.Term) }},
		{"ChunkIndex", func() error { return en.WriteInt32(z.ChunkIndex) }},
		{"ChunkCount", func() error { return en.WriteInt32(z.ChunkCount) }},
		{"Operation", func() error { return en.WriteBytes(z.Operation) }},
	}
	for _, f := range fields {
		if err := en.WriteString(f.name); err != nil {
			return err
		}
		if err := f.fn(); err != nil {
			return err
		}
	}
	if err := en.WriteString("GroupMembers"); err != nil {
		return err
	}
	if err := en.WriteArrayHeader(uint32(len(z.GroupMembers))); err != nil {
		return err
	}
	for _, m := range z.GroupMembers {
		if err := en.WriteString(m); err != nil {
			return err
		}
	}
	return nil
}

func (z *WireChunk) DecodeMsg(dc *msgp.Reader) error {
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
		case "Index":
			if z.Index, err = dc.ReadUint64(); err != nil {
				return err
			}
		case "Term":
			if z.Term, err = dc.ReadUint64(); err != nil {
				return err
			}
		case "ChunkIndex":
			if z.ChunkIndex, err = dc.ReadInt32(); err != nil {
				return err
			}
		case "ChunkCount":
			if z.ChunkCount, err = dc.ReadInt32(); err != nil {
				return err
			}
		case "Operation":
			if z.Operation, err = dc.ReadBytes(z.Operation); err != nil {
				return err
			}
		case "GroupMembers":
			count, err := dc.ReadArrayHeader()
			if err != nil {
				return err
			}
			z.GroupMembers = make([]string, count)
			for j := range z.GroupMembers {
				if z.GroupMembers[j], err = dc.ReadString(); err != nil {
					return err
				}
			}
		default:
			if err := dc.Skip(); err != nil {
				return err
			}
		}
	}
	return nil
}

// Package leveldb implements core.Store on top of goleveldb, grounded
// on replica/level_db.go's LevelStore (key-prefix layout, Get/Put over
// a single on-disk database).
package leveldb

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/raftgroup/core/internal/codec"
	"github.com/raftgroup/core/internal/core"
)

const (
	keyTerm         = "meta/term"
	keyVotedFor     = "meta/votedFor"
	entryPrefix     = "log/"
	snapshotChunkPrefix = "snapshot/chunk/"
)

// Store persists Raft durable state in a single leveldb database,
// grounded on the teacher's LevelStore, generalized from a KV state
// machine snapshot store into the core.Store contract (term/vote/log
// entries/snapshot chunks).
type Store struct {
	mu  sync.Mutex
	db  *leveldb.DB
	opc codec.OperationCodec
}

// Open creates or reuses the leveldb database rooted at path.
func Open(path string, opc codec.OperationCodec) (*Store, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("leveldb store: mkdir %s: %w", path, err)
	}
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("leveldb store: open %s: %w", path, err)
	}
	if opc == nil {
		opc = codec.GobOperationCodec{}
	}
	return &Store{db: db, opc: opc}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func entryKey(idx core.LogIndex) []byte {
	key := make([]byte, len(entryPrefix)+8)
	copy(key, entryPrefix)
	binary.BigEndian.PutUint64(key[len(entryPrefix):], uint64(idx))
	return key
}

func chunkKey(chunkIndex int) []byte {
	key := make([]byte, len(snapshotChunkPrefix)+4)
	copy(key, snapshotChunkPrefix)
	binary.BigEndian.PutUint32(key[len(snapshotChunkPrefix):], uint32(chunkIndex))
	return key
}

var wireCodec = &codec.RPCCodec{}

func codecEncode(i interface{}) ([]byte, error) { return wireCodec.Encode(i) }
func codecDecode(data []byte, i interface{}) error { return wireCodec.Decode(data, i) }

func (s *Store) PersistTerm(term core.Term, votedFor core.Endpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch := new(leveldb.Batch)
	termBuf := make([]byte, 8)
	binary.BigEndian.PutUint64(termBuf, uint64(term))
	batch.Put([]byte(keyTerm), termBuf)
	batch.Put([]byte(keyVotedFor), []byte(votedFor))
	return s.db.Write(batch, nil)
}

func (s *Store) PersistEntries(entries []core.LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch := new(leveldb.Batch)
	for _, e := range entries {
		w, err := codec.ToWireEntry(e, s.opc)
		if err != nil {
			return fmt.Errorf("leveldb store: encode entry %d: %w", e.Index, err)
		}
		data, err := codecEncode(&w)
		if err != nil {
			return fmt.Errorf("leveldb store: marshal entry %d: %w", e.Index, err)
		}
		batch.Put(entryKey(e.Index), data)
	}
	return s.db.Write(batch, nil)
}

func (s *Store) PersistSnapshotChunk(chunk core.SnapshotChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if chunk.ChunkIndex == 0 {
		// A new snapshot generation starts at chunk 0; drop whatever
		// the previous generation left behind first.
		iter := s.db.NewIterator(util.BytesPrefix([]byte(snapshotChunkPrefix)), nil)
		batch := new(leveldb.Batch)
		for iter.Next() {
			key := make([]byte, len(iter.Key()))
			copy(key, iter.Key())
			batch.Delete(key)
		}
		iter.Release()
		if err := s.db.Write(batch, nil); err != nil {
			return err
		}
	}
	w := codec.ToWireChunk(chunk)
	data, err := codecEncode(&w)
	if err != nil {
		return fmt.Errorf("leveldb store: marshal chunk %d: %w", chunk.ChunkIndex, err)
	}
	return s.db.Put(chunkKey(chunk.ChunkIndex), data, nil)
}

func (s *Store) Truncate(fromIndex core.LogIndex) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	iter := s.db.NewIterator(util.BytesPrefix([]byte(entryPrefix)), nil)
	defer iter.Release()
	batch := new(leveldb.Batch)
	for iter.Seek(entryKey(fromIndex)); iter.Valid(); iter.Next() {
		key := make([]byte, len(iter.Key()))
		copy(key, iter.Key())
		batch.Delete(key)
	}
	if err := iter.Error(); err != nil {
		return err
	}
	return s.db.Write(batch, nil)
}

func (s *Store) Flush() error {
	// goleveldb has no explicit fsync knob exposed by this driver's
	// default WriteOptions; every Write above already durably commits
	// to the log file, so Flush is a barrier in name only.
	return nil
}

func (s *Store) Restore() (core.RestoredState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out core.RestoredState

	if data, err := s.db.Get([]byte(keyTerm), nil); err == nil {
		out.Term = core.Term(binary.BigEndian.Uint64(data))
	} else if err != leveldb.ErrNotFound {
		return out, err
	}
	if data, err := s.db.Get([]byte(keyVotedFor), nil); err == nil {
		out.VotedFor = core.Endpoint(data)
	} else if err != leveldb.ErrNotFound {
		return out, err
	}

	iter := s.db.NewIterator(util.BytesPrefix([]byte(entryPrefix)), nil)
	for iter.Next() {
		var w codec.WireEntry
		if err := codecDecode(iter.Value(), &w); err != nil {
			iter.Release()
			return out, err
		}
		e, err := codec.FromWireEntry(w, s.opc)
		if err != nil {
			iter.Release()
			return out, err
		}
		out.Entries = append(out.Entries, e)
	}
	if err := iter.Error(); err != nil {
		iter.Release()
		return out, err
	}
	iter.Release()

	chunkIter := s.db.NewIterator(util.BytesPrefix([]byte(snapshotChunkPrefix)), nil)
	var chunks []core.SnapshotChunk
	for chunkIter.Next() {
		var wc codec.WireChunk
		if err := codecDecode(chunkIter.Value(), &wc); err != nil {
			chunkIter.Release()
			return out, err
		}
		chunks = append(chunks, codec.FromWireChunk(wc))
	}
	if err := chunkIter.Error(); err != nil {
		chunkIter.Release()
		return out, err
	}
	chunkIter.Release()
	if len(chunks) > 0 {
		out.Snapshot = &core.SnapshotEntry{
			Index:                chunks[0].Index,
			Term:                 chunks[0].Term,
			Chunks:               chunks,
			GroupMembersLogIndex: chunks[0].Index,
			GroupMembers:         chunks[0].GroupMembers,
		}
	}

	return out, nil
}

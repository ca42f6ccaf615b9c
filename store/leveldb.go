// Package store persists a node's section.SharedState to disk with
// LevelDB, so a restarted node resumes with its membership, proof chain
// and neighbour map intact instead of rejoining from scratch.
package store

import (
	"encoding/json"
	"errors"

	"github.com/nkoteskey/routing/bls"
	"github.com/nkoteskey/routing/section"
	"github.com/nkoteskey/routing/xorspace"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"
)

// ErrNoState means no snapshot has been saved yet.
var ErrNoState = errors.New("store: no saved state")

// stateKey is the single key the current SharedState snapshot lives under.
// A node persists only its own view, never a keyed collection of states.
var stateKey = []byte("shared-state/v1")

// Store persists section.SharedState snapshots to a LevelDB database.
type Store struct {
	db *leveldb.DB
}

// Open opens (creating if necessary) a LevelDB database rooted at path.
func Open(path string) (*Store, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// OpenMemory opens an ephemeral in-memory database, for tests and for
// running a node with persistence disabled.
func OpenMemory() (*Store, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// neighbourRecord captures one neighbour section's EldersInfo alongside
// whatever key and knowledge estimate this node had recorded for it.
type neighbourRecord struct {
	Info      section.EldersInfo
	Key       [48]byte
	KeyIndex  uint64
	HasKey    bool
	Knowledge uint64
}

// snapshot is the on-disk representation of a SharedState.
// HandledGenesisEvent is deliberately excluded: the flag must reset to
// false on every restart rather than persist across them.
type snapshot struct {
	ProofChainKeys []bls.PublicKey
	ProofChainSigs []bls.Signature

	Our        section.EldersInfo
	Neighbours []neighbourRecord

	Members           []section.MemberInfo
	ChurnEventBacklog []section.AccumulatingEvent
	RelocateQueue     []section.RelocateDetails
}

func toSnapshot(s *section.SharedState) snapshot {
	snap := snapshot{
		ProofChainKeys:    s.OurHistory.Keys(),
		ProofChainSigs:    s.OurHistory.Signatures(),
		Our:               s.Sections.Our(),
		Members:           s.OurMembers.All(),
		ChurnEventBacklog: s.ChurnEventBacklog,
		RelocateQueue:     s.RelocateQueue,
	}
	for _, info := range s.Sections.Neighbours() {
		rec := neighbourRecord{Info: info}
		if keyRec, ok := s.Sections.KeyRecordFor(info.Prefix); ok {
			rec.Key = keyRec.Key
			rec.KeyIndex = keyRec.Index
			rec.HasKey = true
		}
		rec.Knowledge = s.Sections.KnowledgeBySection(info.Prefix)
		snap.Neighbours = append(snap.Neighbours, rec)
	}
	return snap
}

func fromSnapshot(snap snapshot) (*section.SharedState, error) {
	if len(snap.ProofChainKeys) == 0 {
		return nil, errors.New("store: snapshot has no proof chain head")
	}

	history := section.NewProofChain(snap.ProofChainKeys[0])
	for i, sig := range snap.ProofChainSigs {
		if !history.Push(snap.ProofChainKeys[i+1], sig) {
			return nil, errors.New("store: snapshot proof chain failed to verify")
		}
	}

	state := section.NewSharedState(snap.Our, history.LastKey())
	state.OurHistory = history

	for _, info := range snap.Members {
		state.OurMembers.Add(info)
	}

	for _, rec := range snap.Neighbours {
		state.Sections.AddNeighbour(rec.Info)
		if rec.HasKey {
			state.Sections.UpdateKeys(rec.Info.Prefix, rec.Key, rec.KeyIndex)
		}
		if rec.Knowledge != 0 {
			state.Sections.SetKnowledge(rec.Info.Prefix, rec.Knowledge)
		}
	}

	state.ChurnEventBacklog = snap.ChurnEventBacklog
	state.RelocateQueue = snap.RelocateQueue
	return state, nil
}

// SaveState serializes s and writes it under the single state key,
// overwriting whatever snapshot was there before.
func (s *Store) SaveState(state *section.SharedState) error {
	data, err := json.Marshal(toSnapshot(state))
	if err != nil {
		return err
	}
	return s.db.Put(stateKey, data, nil)
}

// LoadState reads and reconstructs the most recently saved SharedState.
// Returns ErrNoState if nothing has been saved yet. The returned state's
// HandledGenesisEvent is always false, regardless of what it was when
// saved.
func (s *Store) LoadState() (*section.SharedState, error) {
	data, err := s.db.Get(stateKey, nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil, ErrNoState
		}
		return nil, err
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, err
	}
	return fromSnapshot(snap)
}

// HasState reports whether a snapshot has been saved.
func (s *Store) HasState() (bool, error) {
	return s.db.Has(stateKey, nil)
}

// DeleteState removes any saved snapshot, used when abandoning a node's
// identity (e.g. after being relocated to a brand new section).
func (s *Store) DeleteState() error {
	return s.db.Delete(stateKey, nil)
}

// contactKeyPrefix namespaces persisted bootstrap contacts separately from
// the shared-state snapshot, so the two can be extended independently.
var contactKeyPrefix = []byte("contact/")

// contactKey derives the LevelDB key for a single bootstrap contact, keyed
// by its XOR name so re-saving a known contact overwrites its prior entry.
func contactKey(name xorspace.Name) []byte {
	return append(append([]byte{}, contactKeyPrefix...), name[:]...)
}

// SaveContact persists a single known-good bootstrap contact.
func (s *Store) SaveContact(name xorspace.Name, addr section.Addr) error {
	return s.db.Put(contactKey(name), []byte(addr), nil)
}

// LoadContacts returns every persisted bootstrap contact.
func (s *Store) LoadContacts() (map[xorspace.Name]section.Addr, error) {
	out := make(map[xorspace.Name]section.Addr)
	iter := s.db.NewIterator(nil, nil)
	defer iter.Release()

	for iter.Next() {
		key := iter.Key()
		if len(key) != len(contactKeyPrefix)+xorspace.NameBytes {
			continue
		}
		if string(key[:len(contactKeyPrefix)]) != string(contactKeyPrefix) {
			continue
		}
		var name xorspace.Name
		copy(name[:], key[len(contactKeyPrefix):])

		value := make([]byte, len(iter.Value()))
		copy(value, iter.Value())
		out[name] = section.Addr(value)
	}
	return out, iter.Error()
}

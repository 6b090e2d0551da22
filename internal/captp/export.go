package captp

import (
	"sync"
	"sync/atomic"
)

// bootstrapPosition is the reserved export-table position of every
// session's bootstrap object (spec §3 Session state, §9 Glossary).
const bootstrapPosition uint64 = 0

// exportTable is the keyed map u64 -> Object described in spec §3. Key
// allocation is a monotone counter; every key is unique for the session's
// lifetime and is never reused, even after the object is unexported.
type exportTable struct {
	mu      sync.RWMutex
	objects map[uint64]Object
	next    atomic.Uint64
}

func newExportTable() *exportTable {
	t := &exportTable{objects: make(map[uint64]Object)}
	t.next.Store(1) // position 0 is reserved for bootstrap.
	return t
}

// reserve allocates a fresh, strictly increasing position without
// installing an object yet. Exporting is a two-phase operation (spec
// §4.5) so that an object's Exported hook observes its final position
// before the table is able to dispatch to it.
func (t *exportTable) reserve() uint64 {
	return t.next.Add(1) - 1
}

// finalize installs obj at position, completing a reserve/finalize pair.
func (t *exportTable) finalize(position uint64, obj Object) {
	t.mu.Lock()
	t.objects[position] = obj
	t.mu.Unlock()
}

// export reserves a position, invokes obj's Exported hook with the final
// position, installs obj, and returns the position.
func (t *exportTable) export(remoteVkey []byte, obj Object) uint64 {
	position := t.reserve()
	obj.Exported(remoteVkey, position)
	t.finalize(position, obj)
	return position
}

// lookup returns the object installed at position, if any.
func (t *exportTable) lookup(position uint64) (Object, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	obj, ok := t.objects[position]
	return obj, ok
}

// unexport removes the object at position. The position is never reused.
func (t *exportTable) unexport(position uint64) {
	t.mu.Lock()
	delete(t.objects, position)
	t.mu.Unlock()
}

// snapshot returns the currently installed positions, for diagnostics.
func (t *exportTable) snapshot() []uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	positions := make([]uint64, 0, len(t.objects))
	for pos := range t.objects {
		positions = append(positions, pos)
	}
	return positions
}

// importSet tracks the positions in the peer's export table that the peer
// has handed us (populated when a fetch reply carries a DescExport).
type importSet struct {
	mu        sync.RWMutex
	positions map[uint64]struct{}
}

func newImportSet() *importSet {
	return &importSet{positions: make(map[uint64]struct{})}
}

func (s *importSet) add(position uint64) {
	s.mu.Lock()
	s.positions[position] = struct{}{}
	s.mu.Unlock()
}

func (s *importSet) has(position uint64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.positions[position]
	return ok
}

func (s *importSet) snapshot() []uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	positions := make([]uint64, 0, len(s.positions))
	for pos := range s.positions {
		positions = append(positions, pos)
	}
	return positions
}

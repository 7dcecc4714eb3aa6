// Package symbol interns strings (type names, member names, variable
// names) as small integers, the way grailbio/gql/symbol interns GQL
// identifiers: a singleton table, mutex-guarded on write, lock-free on
// read via an atomically-swapped slice pointer.
package symbol

import (
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/allewwaly/insight-vmi-sub006/internal/hash"
)

// ID is an interned name.
type ID int32

// Invalid is the zero value, never returned by Intern.
const Invalid ID = 0

type table struct {
	mu      sync.Mutex // guards index and writes to namesPtr.
	index   map[string]ID
	namesPtr unsafe.Pointer // *[]string, read with an atomic load.
}

var global = newTable()

func newTable() *table {
	names := []string{"(invalid)"}
	return &table{
		index:    map[string]ID{"": Invalid},
		namesPtr: unsafe.Pointer(&names),
	}
}

func (t *table) names() []string {
	return *(*[]string)(atomic.LoadPointer(&t.namesPtr))
}

// Intern returns the ID for name, assigning a new one if name has not
// been seen before.
func Intern(name string) ID {
	global.mu.Lock()
	defer global.mu.Unlock()
	if id, ok := global.index[name]; ok {
		return id
	}
	names := global.names()
	id := ID(len(names))
	next := make([]string, len(names), len(names)+1)
	copy(next, names)
	next = append(next, name)
	atomic.StorePointer(&global.namesPtr, unsafe.Pointer(&next))
	global.index[name] = id
	return id
}

// Str returns the human-readable name for id. Panics on an id that was
// never interned, matching symbol.ID.Str's "not found" panic in the
// teacher (a programmer error, not a runtime one).
func (id ID) Str() string {
	names := global.names()
	if int(id) < 0 || int(id) >= len(names) {
		panic("symbol: id not found")
	}
	return names[id]
}

// Hash hashes the interned name, used when folding a Member or Variable
// name into a structural hash (ctype.StructuralHash).
func (id ID) Hash() hash.Hash {
	return hash.String(id.Str())
}

func (id ID) String() string { return id.Str() }

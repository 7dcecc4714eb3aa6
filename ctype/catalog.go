package ctype

import (
	"sync"
	"sync/atomic"

	"github.com/allewwaly/insight-vmi-sub006/internal/hash"
	"github.com/allewwaly/insight-vmi-sub006/internal/symbol"
)

// ReferencingRef identifies the site an alternate type is attached to
// (spec.md §3: "any referencing type (pointer, typedef, const, volatile,
// member, variable, function parameter)"). Exactly one field is set.
type ReferencingRef struct {
	Type     ID          // referencing Type (pointer/typedef/const/volatile).
	Member   *Member      // struct/union member.
	Variable *Variable    // global variable.
	Param    *ParamRef    // function parameter.
}

// ParamRef identifies one parameter of a Function/FuncPointer Type.
type ParamRef struct {
	Func  ID
	Index int
}

// Catalog owns the universe of types, variables, and members
// (spec.md §4.A). Readers take a shared lock on typesByID/typesByName;
// mutators (alternate-type insertion from the AST evaluator) take
// exclusive locks, mirroring the single table/RWMutex split the teacher
// uses for its symbol intern table (internal/symbol, generalized here
// from names to full Type/Variable records) — spec.md §5 specifies the
// same discipline explicitly for the Catalog.
type Catalog struct {
	mu sync.RWMutex

	typesByID   map[ID]*Type
	typesByName map[symbol.ID][]*Type
	typesByHash map[uint32][]*Type

	vars     []*Variable
	varsByName map[symbol.ID][]*Variable

	nextID ID

	// changeClock is bumped on every mutation (spec.md §4.A: "a monotonic
	// change_clock that is bumped on every catalog mutation"); cached
	// referencing-resolution results elsewhere record the clock value
	// they were computed at and recompute when it is stale.
	changeClock uint64

	cacheMu    sync.RWMutex
	canonCache map[ID]canonicalEntry

	// idRemap backs RemapID (idremap.go): the (fileIndex, origID,
	// arrayDim) → ID table spec.md §3 requires so symsource's two-phase
	// ingestion can resolve forward and cross-record type references
	// before any Type is actually Insert-ed.
	idRemap map[remapKey]ID
}

// NewCatalog returns an empty Catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		typesByID:   map[ID]*Type{},
		typesByName: map[symbol.ID][]*Type{},
		typesByHash: map[uint32][]*Type{},
		varsByName:  map[symbol.ID][]*Variable{},
		nextID:      1, // 0 is InvalidID.
	}
}

// ChangeClock returns the current generation counter.
func (c *Catalog) ChangeClock() uint64 {
	return atomic.LoadUint64(&c.changeClock)
}

func (c *Catalog) bumpClock() {
	atomic.AddUint64(&c.changeClock, 1)
}

// AllocID reserves the next Type ID. Catalog construction is two-phase
// (Design Notes §9): callers first AllocID for every type, wire up
// Target/Params/Members using the allocated IDs, then call Insert.
func (c *Catalog) AllocID() ID {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	return id
}

// Insert adds t to the catalog under its (already allocated) ID,
// indexing it by name and structural hash. Inserting two types with
// identical hash32 is allowed (spec.md §4.A: true collisions are
// impossible by construction, but a 32-bit truncation can still alias,
// so by_hash returns a slice); Insert itself never errors.
func (c *Catalog) Insert(t *Type) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.typesByID[t.ID] = t
	if t.Name != symbol.Invalid {
		c.typesByName[t.Name] = append(c.typesByName[t.Name], t)
	}
	h32 := t.structuralHash(c.targetHashLocked).Hash32()
	c.typesByHash[h32] = append(c.typesByHash[h32], t)
	c.bumpClock()
}

func (c *Catalog) targetHashLocked(id ID) hash.Hash {
	t, ok := c.typesByID[id]
	if !ok {
		return hash.Hash{}
	}
	return hash.String(t.Kind.String()).Merge(t.Name.Hash())
}

// ByID returns the Type for id, or (nil, false) if unknown.
func (c *Catalog) ByID(id ID) (*Type, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.typesByID[id]
	return t, ok
}

// ByName returns every Type registered under name. Ambiguous names
// return all matches (spec.md §4.A: "ambiguous name ⇒ returns all
// matches").
func (c *Catalog) ByName(name string) []*Type {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := lookupInterned(name)
	if !ok {
		return nil
	}
	return append([]*Type(nil), c.typesByName[id]...)
}

func lookupInterned(name string) (symbol.ID, bool) {
	// Interning never fails; the question is only whether the name was
	// ever used. We intern lazily here because by_name is a lookup, not
	// a declaration — if the catalog never saw this name, the freshly
	// interned ID simply maps to no types below.
	id := symbol.Intern(name)
	return id, true
}

// ByHash32 returns every Type whose truncated structural hash matches h.
func (c *Catalog) ByHash32(h uint32) []*Type {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]*Type(nil), c.typesByHash[h]...)
}

// EquivalentTypes returns every Type id considered structurally
// equivalent to id (spec.md §4.A).
func (c *Catalog) EquivalentTypes(id ID) []ID {
	t, ok := c.ByID(id)
	if !ok {
		return nil
	}
	h32 := t.structuralHash(c.targetHashLocked).Hash32()
	var out []ID
	for _, candidate := range c.ByHash32(h32) {
		out = append(out, candidate.ID)
	}
	return out
}

// Vars returns every registered Variable.
func (c *Catalog) Vars() []*Variable {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]*Variable(nil), c.vars...)
}

// AddVariable registers v.
func (c *Catalog) AddVariable(v *Variable) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vars = append(c.vars, v)
	c.varsByName[v.Name] = append(c.varsByName[v.Name], v)
	c.bumpClock()
}

// VarsByName returns every Variable registered under name.
func (c *Catalog) VarsByName(name string) []*Variable {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id := symbol.Intern(name)
	return append([]*Variable(nil), c.varsByName[id]...)
}

// AddAlternateType attaches an alternate-type fact to ref (spec.md §4.A:
// "add_alternate_type(ReferencingRef, TypeId, &AstExpression)"). It
// acquires the catalog's exclusive lock, matching spec.md §5's
// "mutators (alternate-type insertion from the AST evaluator) take
// exclusive locks."
func (c *Catalog) AddAlternateType(ref ReferencingRef, alt ID, expr AddressExpression) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.altOfLocked(ref).Add(alt, expr)
	c.bumpClock()
}

func (c *Catalog) altOfLocked(ref ReferencingRef) *AltRefType {
	switch {
	case ref.Member != nil:
		if ref.Member.Alt == nil {
			ref.Member.Alt = &AltRefType{}
		}
		return ref.Member.Alt
	case ref.Variable != nil:
		if ref.Variable.Alt == nil {
			ref.Variable.Alt = &AltRefType{}
		}
		return ref.Variable.Alt
	case ref.Param != nil:
		t, ok := c.typesByID[ref.Param.Func]
		if !ok {
			panic("ctype: AddAlternateType: unknown function type")
		}
		if t.ParamAlts == nil {
			t.ParamAlts = map[int]*AltRefType{}
		}
		if t.ParamAlts[ref.Param.Index] == nil {
			t.ParamAlts[ref.Param.Index] = &AltRefType{}
		}
		return t.ParamAlts[ref.Param.Index]
	case ref.Type != InvalidID:
		t, ok := c.typesByID[ref.Type]
		if !ok {
			panic("ctype: AddAlternateType: unknown type")
		}
		if t.Alt == nil {
			t.Alt = &AltRefType{}
		}
		return t.Alt
	default:
		panic("ctype: ReferencingRef has no target set")
	}
}

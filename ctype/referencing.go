package ctype

// Canonical resolves t by following Typedef/Const/Volatile links until a
// concrete (non-referencing-alias) type is reached (spec.md §4.A:
// "Referencing resolution (follow typedef/const/volatile until a
// concrete type) is lazy, cached, and invalidated by a monotonic
// change_clock"). A void pointer is *not* dereferenced during
// canonicalization (spec.md §4.A), i.e. Pointer-to-Void stops here, not
// at Void.
type canonicalEntry struct {
	clock uint64
	id    ID
}

// Canonical resolves id through the cache, recomputing whenever the
// catalog's change_clock has advanced since the cached entry was built
// (spec.md §4.A).
func (c *Catalog) Canonical(id ID) ID {
	clock := c.ChangeClock()
	c.cacheMu.RLock()
	entry, ok := c.canonCache[id]
	c.cacheMu.RUnlock()
	if ok && entry.clock == clock {
		return entry.id
	}
	c.mu.RLock()
	resolved := c.canonicalLocked(id)
	c.mu.RUnlock()
	c.cacheMu.Lock()
	if c.canonCache == nil {
		c.canonCache = map[ID]canonicalEntry{}
	}
	c.canonCache[id] = canonicalEntry{clock: clock, id: resolved}
	c.cacheMu.Unlock()
	return resolved
}

func (c *Catalog) canonicalLocked(id ID) ID {
	for {
		t, ok := c.typesByID[id]
		if !ok {
			return id
		}
		switch t.Kind {
		case KindTypedef, KindConst, KindVolatile:
			id = t.Target
		default:
			return id
		}
	}
}

// FoundTypes is the result of FindBaseTypeByAST: both the
// pointer-included and pointer-stripped candidate lists (spec.md §4.A).
type FoundTypes struct {
	// WithPointers are the catalog types named by the AST chain's leaf
	// identifier. The chain's pointer levels are not applied: no pointer
	// type to a candidate is looked up.
	WithPointers []ID
	// Stripped are candidates after stripping leading pointer levels from
	// both the AST type and the candidate, for callers that don't care
	// about pointer-ness (e.g. member-path resolution through `.`/`->`
	// which already strips one level itself).
	Stripped []ID
}

// AstTypeNode is the minimal contract FindBaseTypeByAST needs from a
// package cast AstType chain, kept here (rather than importing package
// cast) so ctype has no dependency on cast (cast depends on ctype, not
// the reverse).
type AstTypeNode interface {
	// Identifier is the leaf name to look up ("struct module", "int",
	// "list_head", ...), or "" for a bare pointer/array link.
	Identifier() string
	// PointerLevels counts leading '*' this node contributes (0 or 1 per
	// link in the chain; FindBaseTypeByAST sums them while walking Next).
	PointerLevels() int
	// Next returns the next link toward the leaf identifier, or nil.
	Next() AstTypeNode
}

// FindBaseTypeByAST resolves an AstType chain to catalog candidates
// (spec.md §4.A: "find_base_type_by_ast(&AstType, evaluator) →
// FoundTypes"). On ambiguity (len>1) the caller disambiguates using an
// attached filter, per spec.md §4.A.
func (c *Catalog) FindBaseTypeByAST(n AstTypeNode) FoundTypes {
	ptrLevels := 0
	cur := n
	var leaf string
	for cur != nil {
		ptrLevels += cur.PointerLevels()
		if id := cur.Identifier(); id != "" {
			leaf = id
		}
		cur = cur.Next()
	}
	candidates := c.ByName(leaf)
	var found FoundTypes
	for _, t := range candidates {
		found.WithPointers = append(found.WithPointers, t.ID)
		stripped := t.ID
		c.mu.RLock()
		for i := 0; i < ptrLevels; i++ {
			if tt, ok := c.typesByID[stripped]; ok && tt.Kind == KindPointer {
				stripped = tt.Target
			}
		}
		c.mu.RUnlock()
		found.Stripped = append(found.Stripped, stripped)
	}
	return found
}

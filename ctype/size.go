package ctype

// pointerSize and intSize are the only architecture assumptions the
// catalog's size computation needs; the target kernel is x86-64 (spec.md
// §1's virtual-memory range assumption), and enums fold to their
// underlying int's width the way the original kernel headers declare
// them.
const (
	pointerSize = 8
	intSize     = 4
)

// SizeBytes returns id's size in bytes where statically known: structs
// and unions return the extent implied by their widest/last member
// (offset+size), following the declared Members rather than recording a
// separately-cached field, since the Catalog already holds everything
// SizeBytes needs to recompute on demand. ok is false for an incomplete
// array, an unknown id, or a type whose size genuinely depends on
// something SizeBytes cannot see (void).
func (c *Catalog) SizeBytes(id ID) (uint64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sizeBytesLocked(id, map[ID]bool{})
}

// sizeBytesLocked tracks the ids currently on the recursion stack (not
// every id ever seen), so two sibling members sharing a type don't
// falsely trip the cycle guard — only an actual ancestor-to-descendant
// cycle does.
func (c *Catalog) sizeBytesLocked(id ID, onStack map[ID]bool) (uint64, bool) {
	if onStack[id] {
		return 0, false
	}
	t, ok := c.typesByID[id]
	if !ok {
		return 0, false
	}
	switch t.Kind {
	case KindVoid:
		return 0, false
	case KindInteger, KindFloat:
		return uint64(t.Width / 8), true
	case KindEnum:
		return intSize, true
	case KindPointer, KindFuncPointer:
		return pointerSize, true
	case KindTypedef, KindConst, KindVolatile:
		onStack[id] = true
		defer delete(onStack, id)
		return c.sizeBytesLocked(t.Target, onStack)
	case KindArray:
		if t.ArrayLength == nil {
			return 0, false
		}
		onStack[id] = true
		defer delete(onStack, id)
		elem, ok := c.sizeBytesLocked(t.Target, onStack)
		if !ok {
			return 0, false
		}
		return elem * uint64(*t.ArrayLength), true
	case KindStruct, KindUnion:
		onStack[id] = true
		defer delete(onStack, id)
		var extent uint64
		for _, m := range t.Members {
			memberSize, ok := c.sizeBytesLocked(m.Type, onStack)
			if !ok {
				continue
			}
			if t.Kind == KindUnion {
				if memberSize > extent {
					extent = memberSize
				}
				continue
			}
			if end := m.Offset + memberSize; end > extent {
				extent = end
			}
		}
		return extent, true
	default:
		return 0, false
	}
}

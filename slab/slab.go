// Package slab indexes slab-allocator object metadata (the kernel's own
// record of which address ranges belong to which kmem_cache) so the
// Memory Map Builder can check a candidate instance's address against
// it (spec.md §4.E.4: "agreement with slab-allocator metadata (the
// candidate's address coincides with a slab object start of compatible
// type)"). Grounded on
// original_source/libinsight/memorymapverifier.cpp's SlubObjects.objectValid
// / objectAt pair: the ObjectValidity outcomes below are a direct port
// of that file's switch(SlubObjects::ObjectValidity) cases, collapsed
// to the subset Validate can actually distinguish without also porting
// the upstream global/cast-type object bookkeeping.
package slab

import (
	"github.com/grailbio/base/intervalmap"
	"github.com/grailbio/base/log"

	"github.com/allewwaly/insight-vmi-sub006/ctype"
)

// Object is one allocation the kernel's slab allocator has handed out:
// an address range and the type the allocator believes lives there.
type Object struct {
	Address  uint64
	Size     uint64
	BaseType ctype.ID
}

// ObjectValidity classifies a candidate address against the slab index,
// named after memorymapverifier.cpp's SlubObjects::ObjectValidity.
type ObjectValidity int

const (
	// OvNotFound: the address falls inside no known slab object.
	OvNotFound ObjectValidity = iota
	// OvNoSlabType: the containing object's type is unknown (the
	// allocator gave out raw bytes, e.g. kmalloc with no cache type).
	OvNoSlabType
	// OvValid: the address is exactly the object's start, and the
	// object's declared type is exactly the candidate's type.
	OvValid
	// OvValidCastType: the address is exactly the object's start, and
	// the object's declared type is the candidate's type's canonical
	// form (typedef/const/volatile-equivalent).
	OvValidCastType
	// OvEmbedded: the address falls strictly inside the object, and the
	// candidate fits within its remaining bytes — a plausible embedded
	// field, not the allocation root.
	OvEmbedded
	// OvConflict: the address coincides with (or falls within) an
	// object whose declared type is incompatible with the candidate.
	OvConflict
)

func (v ObjectValidity) String() string {
	switch v {
	case OvNotFound:
		return "not found"
	case OvNoSlabType:
		return "no slab type"
	case OvValid:
		return "valid"
	case OvValidCastType:
		return "valid (cast type)"
	case OvEmbedded:
		return "embedded"
	case OvConflict:
		return "conflict"
	default:
		return "unknown"
	}
}

// Agrees reports whether v counts as slab-allocator agreement for
// spec.md §4.E.4's probability term (OvValid/OvValidCastType/OvEmbedded
// all corroborate the candidate; OvConflict actively contradicts it).
func (v ObjectValidity) Agrees() bool {
	return v == OvValid || v == OvValidCastType || v == OvEmbedded
}

// Index is a static, batch-built containment index over slab Objects
// (spec.md §4.E.4). It is rebuilt per dump snapshot, matching
// intervalmap.T's batch-New shape (unlike rangetree's incremental
// splitting, which memmap.MemoryMapNode materialisation needs instead).
type Index struct {
	tree *intervalmap.T
}

// BuildIndex constructs an Index over every known slab object.
func BuildIndex(objects []Object) *Index {
	entries := make([]intervalmap.Entry, len(objects))
	for i, o := range objects {
		entries[i] = intervalmap.Entry{
			Interval: intervalmap.Interval{Start: int64(o.Address), Limit: int64(o.Address + o.Size)},
			Data:     o,
		}
	}
	return &Index{tree: intervalmap.New(entries)}
}

// ObjectAt returns the first slab object containing addr, if any.
func (x *Index) ObjectAt(addr uint64) (Object, bool) {
	var matches []*intervalmap.Entry
	x.tree.Get(intervalmap.Interval{Start: int64(addr), Limit: int64(addr) + 1}, &matches)
	if len(matches) == 0 {
		return Object{}, false
	}
	return matches[0].Data.(Object), true
}

// Validate implements the objectValid side of spec.md §4.E.4's
// slab-agreement term: does a candidate instance of typeID and size
// bytes at addr agree with what the slab allocator actually handed out
// at that address?
func (x *Index) Validate(cat *ctype.Catalog, addr uint64, size uint64, typeID ctype.ID) ObjectValidity {
	obj, ok := x.ObjectAt(addr)
	if !ok {
		return OvNotFound
	}
	if obj.BaseType == ctype.InvalidID {
		return OvNoSlabType
	}
	if addr == obj.Address {
		switch {
		case obj.BaseType == typeID:
			return OvValid
		case cat.Canonical(obj.BaseType) == cat.Canonical(typeID):
			return OvValidCastType
		default:
			return OvConflict
		}
	}
	if addr+size <= obj.Address+obj.Size {
		return OvEmbedded
	}
	return OvConflict
}

// LogOutcome reports v the way memorymapverifier.cpp's
// statisticsCountNodeSV switch does (debug for the common cases, error
// for the ones that indicate something is actually wrong).
func LogOutcome(fullName string, addr uint64, v ObjectValidity) {
	switch v {
	case OvNotFound, OvConflict:
		log.Error.Printf("slab: %s at 0x%x is %s", fullName, addr, v)
	default:
		log.Debug.Printf("slab: %s at 0x%x is %s", fullName, addr, v)
	}
}

package memmap

import (
	"context"
	"encoding/binary"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/grailbio/base/log"

	"github.com/allewwaly/insight-vmi-sub006/ctype"
	"github.com/allewwaly/insight-vmi-sub006/internal/kerr"
	"github.com/allewwaly/insight-vmi-sub006/memdevice"
	"github.com/allewwaly/insight-vmi-sub006/rangetree"
	"github.com/allewwaly/insight-vmi-sub006/rules"
	"github.com/allewwaly/insight-vmi-sub006/slab"
)

// pointerWidth and the alignment heuristic below assume the x86-64
// target memdevice itself assumes (see ctype/size.go's pointerSize).
const pointerWidth = 8

// Builder implements Component E (spec.md §4.E): it walks a
// memdevice.Device guided by a ctype.Catalog and a rules.Engine,
// materialising a Graph of Nodes. Grounded on
// original_source/trunk/memtoold/memorymapbuilder.cpp's thread-pool
// shape (a shared worklist, a fixed-size builder-thread array, a
// per-address coordination table), rebuilt here on
// golang.org/x/sync/errgroup for cancellation-propagating fan-out
// (spec.md §5: "one main thread plus N builder threads").
type Builder struct {
	Device  memdevice.Device
	Catalog *ctype.Catalog
	Engine  *rules.Engine
	Graph   *Graph
	Tree    *rangetree.Tree
	Slab    *slab.Index // nil disables slab-agreement scoring.

	KernelRange AddressRange
	Threads     int // builder-thread count; spec.md §5's N = min(hardware concurrency, 32).

	// PerCPUOffsets is the CPU offset table spec.md §4.E.1 replicates
	// per-cpu roots against: one entry per CPU, added to a per-cpu
	// variable's declared address to reach that CPU's instance.
	PerCPUOffsets []uint64

	worklist    *Worklist
	coordinator *Coordinator
	pending     int64 // atomic: nodes pushed but not yet fully expanded.
	interrupted int32 // atomic bool, spec.md §4.E.9's cooperative cancellation flag.
}

// NewBuilder wires the pieces Run needs. Catalog, Engine, Graph, Tree,
// and Device must be non-nil; Slab may be nil.
func NewBuilder(device memdevice.Device, cat *ctype.Catalog, engine *rules.Engine, graph *Graph, tree *rangetree.Tree, slabIdx *slab.Index, kernelRange AddressRange, threads int) *Builder {
	if threads < 1 {
		threads = 1
	}
	return &Builder{
		Device:      device,
		Catalog:     cat,
		Engine:      engine,
		Graph:       graph,
		Tree:        tree,
		Slab:        slabIdx,
		KernelRange: kernelRange,
		Threads:     threads,
		worklist:    NewWorklist(),
		coordinator: NewCoordinator(threads),
	}
}

// Interrupt sets the cooperative cancellation flag spec.md §4.E.9
// describes; builder threads observe it between node dequeues and
// between child materialisations.
func (b *Builder) Interrupt() { atomic.StoreInt32(&b.interrupted, 1) }

func (b *Builder) interruptedFlag() bool { return atomic.LoadInt32(&b.interrupted) != 0 }

// Run enumerates roots (spec.md §4.E.1) and then drains the worklist
// with b.Threads builder threads (spec.md §4.E.2, §5), returning once
// every reachable node has been expanded or ctx is cancelled.
func (b *Builder) Run(ctx context.Context) error {
	b.addRoots(ctx)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(b.Threads)
	for thread := 0; thread < b.Threads; thread++ {
		thread := thread
		g.Go(func() error { return b.workerLoop(ctx, thread) })
	}
	return g.Wait()
}

// workerLoop repeatedly pops the highest-probability node and expands
// it, until the worklist is empty and no other thread still has work
// in flight (b.pending reaches zero), or the context is cancelled.
func (b *Builder) workerLoop(ctx context.Context, thread int) error {
	const idleBackoff = 200 * time.Microsecond
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if b.interruptedFlag() {
			return kerr.E(kerr.Cancelled, "builder interrupted")
		}
		id, _, ok := b.worklist.Pop()
		if !ok {
			if atomic.LoadInt64(&b.pending) == 0 {
				return nil
			}
			time.Sleep(idleBackoff)
			continue
		}
		b.expand(ctx, thread, id)
		atomic.AddInt64(&b.pending, -1)
	}
}

// pushNode increments the in-flight counter before handing id to the
// worklist, so workerLoop never observes b.pending hit zero while a
// sibling thread is still about to push this node's own children.
func (b *Builder) pushNode(id NodeID, probability float64) {
	atomic.AddInt64(&b.pending, 1)
	b.worklist.Push(id, probability)
}

// addRoots implements spec.md §4.E.1: every global variable becomes a
// root (per-cpu variables replicated once per PerCPUOffsets entry),
// and every function becomes a root at its address, sized by its
// declared type (its low_pc/high_pc range is not consulted).
func (b *Builder) addRoots(ctx context.Context) {
	for _, v := range b.Catalog.Vars() {
		if v.IsFunction {
			b.addRoot(ctx, v.Address, v.Type, v.Name.Str())
			continue
		}
		if v.PerCPU {
			for _, off := range b.PerCPUOffsets {
				b.addRoot(ctx, v.Address+off, v.Type, v.Name.Str())
			}
			continue
		}
		b.addRoot(ctx, v.Address, v.Type, v.Name.Str())
	}
}

// addRoot materialises one root node. A root's own AltRefType (if any)
// is not consulted here: §4.E.3's rule-engine/AltRefType dispatch
// applies to referencing *positions* the walk discovers, not to the
// declared root instance itself.
func (b *Builder) addRoot(ctx context.Context, addr uint64, typ ctype.ID, name string) {
	size, sizeOK := b.Catalog.SizeBytes(typ)
	if !sizeOK {
		size = 1
	}
	_, prob, readOK := b.scoreCandidate(ctx, typ, addr, 0)
	if !readOK {
		log.Error.Printf("memmap: root %s at 0x%x: read failed, dropping", name, addr)
		return
	}
	id := b.Graph.Add(Node{
		Address:     addr,
		Type:        typ,
		NamePath:    name,
		Probability: prob,
		Origin:      ctype.OriginVariable,
		SeemsValid:  prob > 0,
		Depth:       0,
	})
	b.Tree.Insert(id, addr, addr+size)
	b.pushNode(id, prob)
}

// expand implements spec.md §4.E.3: enumerate the referencing positions
// inside the dequeued node, resolve each through the Rule Engine and
// (on no match) the AltRefType list, score every resulting candidate,
// select per spec.md §4.E.5, and materialise via spec.md §4.E.6's
// duplicate-suppression check.
func (b *Builder) expand(ctx context.Context, thread int, parentID NodeID) {
	if b.interruptedFlag() || ctx.Err() != nil {
		b.Graph.At(parentID).Incomplete = true
		return
	}
	parent := b.Graph.At(parentID)
	positions := b.positions(parent)
	for _, pos := range positions {
		if b.interruptedFlag() || ctx.Err() != nil {
			// Stopped before every referencing position was resolved
			// (spec.md §6's persisted tree dump marks this with "[!]").
			parent.Incomplete = true
			return
		}
		b.resolvePosition(ctx, thread, parent, pos)
	}
}

// position is one referencing slot inside a node's type: a pointer to
// dereference, a struct/union member, or an array element.
type position struct {
	addr     uint64 // c0's address
	typ      ctype.ID
	namePath string
	origin   ctype.Origin
	alt      *ctype.AltRefType
}

// positions implements spec.md §4.E.3's enumeration: pointers are
// dereferenced at the stored address; struct/union members of
// aggregate type are constructed at parent.Address+offset; array
// elements of aggregate (or pointer) type are enumerated up to the
// declared length.
func (b *Builder) positions(parent *Node) []position {
	t, ok := b.effectiveType(parent.Type)
	if !ok {
		return nil
	}
	switch t.Kind {
	case ctype.KindPointer:
		return b.pointerPosition(parent, t)
	case ctype.KindStruct, ctype.KindUnion:
		return b.memberPositions(parent, t)
	case ctype.KindArray:
		return b.arrayPositions(parent, t)
	default:
		return nil
	}
}

func (b *Builder) pointerPosition(parent *Node, t *ctype.Type) []position {
	if t.Target == ctype.InvalidID {
		return nil
	}
	var buf [pointerWidth]byte
	n, err := memdevice.ReadVirtual(context.Background(), b.Device, buf[:], parent.Address)
	if err != nil || n != len(buf) {
		return nil
	}
	target := binary.LittleEndian.Uint64(buf[:])
	if target == 0 {
		return nil
	}
	return []position{{
		addr:     target,
		typ:      t.Target,
		namePath: parent.NamePath,
		origin:   ctype.OriginDereference,
		alt:      t.Alt,
	}}
}

func (b *Builder) memberPositions(parent *Node, t *ctype.Type) []position {
	var out []position
	for _, m := range t.Members {
		eff, ok := b.effectiveType(m.Type)
		if !ok || eff.Kind.IsNumeric() || eff.Kind == ctype.KindVoid {
			continue
		}
		out = append(out, position{
			addr:     parent.Address + m.Offset,
			typ:      m.Type,
			namePath: parent.NamePath + "." + m.Name.Str(),
			origin:   ctype.OriginMember,
			alt:      m.Alt,
		})
	}
	return out
}

func (b *Builder) arrayPositions(parent *Node, t *ctype.Type) []position {
	if t.ArrayLength == nil {
		return nil
	}
	eff, ok := b.effectiveType(t.Target)
	if !ok || eff.Kind.IsNumeric() || eff.Kind == ctype.KindVoid {
		return nil
	}
	elemSize, ok := b.Catalog.SizeBytes(t.Target)
	if !ok || elemSize == 0 {
		return nil
	}
	out := make([]position, 0, *t.ArrayLength)
	for i := uint32(0); i < *t.ArrayLength; i++ {
		out = append(out, position{
			addr:     parent.Address + uint64(i)*elemSize,
			typ:      t.Target,
			namePath: parent.NamePath + "[]",
			origin:   ctype.OriginMember,
			alt:      nil,
		})
	}
	return out
}

// effectiveType follows Typedef/Const/Volatile wrappers to the
// underlying Kind the builder's positions switch dispatches on.
func (b *Builder) effectiveType(id ctype.ID) (*ctype.Type, bool) {
	for depth := 0; depth < 32; depth++ {
		t, ok := b.Catalog.ByID(id)
		if !ok {
			return nil, false
		}
		switch t.Kind {
		case ctype.KindTypedef, ctype.KindConst, ctype.KindVolatile:
			id = t.Target
		default:
			return t, true
		}
	}
	return nil, false
}

// resolvePosition implements the rule-engine-then-AltRefType dispatch
// of spec.md §4.E.3 for a single position, then materialises the
// selected candidate(s) via duplicate suppression.
func (b *Builder) resolvePosition(ctx context.Context, thread int, parent *Node, pos position) {
	mc := rules.MatchContext{
		Instance: ctype.Instance{
			Address:  pos.addr,
			Type:     pos.typ,
			NamePath: pos.namePath,
			Origin:   pos.origin,
		},
		MemberPath: pos.namePath,
	}
	res := b.Engine.Apply(ctx, mc)
	for _, w := range res.Warnings {
		log.Error.Printf("memmap: rule %q at %s: %v", w.Rule, w.Location, w.Err)
	}

	if res.Kind == rules.Match {
		b.materialise(ctx, thread, parent, Candidate{
			Type:    res.Instance.Type,
			Address: res.Instance.Address,
		}, ctype.OriginRuleEngine)
		return
	}

	// NoMatch, Ambiguous, or Defer all fall back to the builder's own
	// default reinterpretation: score c0 against every AltRefType
	// alternate and pick per spec.md §4.E.5.
	declared := Candidate{Type: pos.typ, Address: pos.addr}
	var alternates []Candidate
	for _, e := range entriesOf(pos.alt) {
		off, err := e.Expr.ApplyOffset(pos.addr)
		if err != nil {
			log.Error.Printf("memmap: alternate-type expression %q: %v", e.Expr.String(), err)
			continue
		}
		alternates = append(alternates, Candidate{Type: e.Type, Address: uint64(int64(pos.addr) + off)})
	}

	scored := make([]Candidate, 0, 1+len(alternates))
	for _, c := range append([]Candidate{declared}, alternates...) {
		_, prob, readOK := b.scoreCandidate(ctx, c.Type, c.Address, parent.Depth+1)
		if !readOK {
			continue
		}
		c.Probability = prob
		scored = append(scored, c)
	}
	if len(scored) == 0 {
		return
	}

	outcome, chosen := Select(scored[0], scored[1:])
	origin := pos.origin
	if outcome == ReplaceWithAlternate {
		origin = ctype.OriginRuleEngine
	}
	for _, c := range chosen {
		b.materialise(ctx, thread, parent, c, origin)
	}
}

// materialise implements spec.md §4.E.6: consult the range tree for
// overlapping existing nodes before deciding whether to add a fresh
// Node, reuse one, replace one, or record a conflict.
func (b *Builder) materialise(ctx context.Context, thread int, parent *Node, cand Candidate, origin ctype.Origin) {
	size, ok := b.Catalog.SizeBytes(cand.Type)
	if !ok {
		size = 1
	}

	release, err := b.coordinator.Acquire(ctx, thread, cand.Address)
	if err != nil {
		return
	}
	defer release()

	action, existing := ResolveDuplicate(b.Tree, b.Catalog, b.Graph, cand, size)
	switch action {
	case Reuse:
		b.Graph.At(existing).FoundInChains++
		b.Graph.Link(parent.ID, existing)
		return
	case Conflict:
		log.Printf("memmap: conflicting overlap at 0x%x (existing node %d, candidate type %d)", cand.Address, existing, cand.Type)
		return
	case Replace:
		old := b.Graph.At(existing)
		old.Type = cand.Type
		old.Probability = cand.Probability
		old.Origin = origin
		b.Graph.Link(parent.ID, existing)
		b.pushNode(existing, cand.Probability)
		return
	default: // Materialise
		id := b.Graph.Add(Node{
			Address:     cand.Address,
			Type:        cand.Type,
			NamePath:    parent.NamePath,
			Probability: cand.Probability,
			Origin:      origin,
			SeemsValid:  cand.Probability > 0,
			Depth:       parent.Depth + 1,
		})
		b.Tree.Insert(id, cand.Address, cand.Address+size)
		b.Graph.Link(parent.ID, id)
		b.pushNode(id, cand.Probability)
	}
}

// scoreCandidate reads a candidate instance's bytes and computes its
// probability (spec.md §4.E.4). readOK is false on a memory-read
// failure, which spec.md §4.E.9 treats as non-fatal: the caller drops
// the candidate rather than aborting the build.
func (b *Builder) scoreCandidate(ctx context.Context, typ ctype.ID, addr uint64, depth int) ([]byte, float64, bool) {
	size, sizeOK := b.Catalog.SizeBytes(typ)
	if !sizeOK || size == 0 {
		size = pointerWidth
	}
	buf := make([]byte, size)
	n, err := memdevice.ReadVirtual(ctx, b.Device, buf, addr)
	readOK := err == nil && n == len(buf)

	align := naturalAlignment(size)
	var (
		slabKnown bool
		sv        slab.ObjectValidity
	)
	if readOK && b.Slab != nil {
		sv = b.Slab.Validate(b.Catalog, addr, size, typ)
		slabKnown = true
	}
	magicKnown, magicMatch := b.checkMagic(typ, buf, readOK)

	p := Probability(Criteria{
		KernelRange:  b.KernelRange,
		Address:      addr,
		Alignment:    align,
		ReadOK:       readOK,
		SlabKnown:    slabKnown,
		SlabValidity: sv,
		MagicKnown:   magicKnown,
		MagicMatch:   magicMatch,
		Depth:        depth,
	})
	return buf, p, readOK
}

// checkMagic implements the "presence of magic numbers matching
// learned values" criterion (spec.md §4.E.4) against a struct/union
// candidate's scalar members with learned constant values.
func (b *Builder) checkMagic(typ ctype.ID, buf []byte, readOK bool) (known, match bool) {
	if !readOK {
		return false, false
	}
	t, ok := b.Catalog.ByID(typ)
	if !ok || !t.Kind.IsStructured() {
		return false, false
	}
	match = true
	for _, m := range t.Members {
		if m.HasBitField || !m.IsConstant() {
			continue
		}
		v, ok := readUintMember(b.Catalog, buf, m)
		if !ok {
			continue
		}
		known = true
		if !m.MatchesConstInt(v) {
			match = false
		}
	}
	return known, match
}

// readUintMember decodes m's little-endian value out of buf (a
// candidate instance's raw bytes), bounded to an 8-byte integer.
func readUintMember(cat *ctype.Catalog, buf []byte, m *ctype.Member) (int64, bool) {
	size, ok := cat.SizeBytes(m.Type)
	if !ok || size == 0 || size > 8 || m.Offset+size > uint64(len(buf)) {
		return 0, false
	}
	var v uint64
	for i := uint64(0); i < size; i++ {
		v |= uint64(buf[m.Offset+i]) << (8 * i)
	}
	return int64(v), true
}

// naturalAlignment is the natural-alignment heuristic the probability
// model's address-sanity gate applies: a type's required alignment is
// its size rounded down to the nearest power of two, capped at
// pointer width (the x86-64 maximum natural alignment memdevice
// targets).
func naturalAlignment(size uint64) uint64 {
	switch {
	case size >= 8:
		return 8
	case size >= 4:
		return 4
	case size >= 2:
		return 2
	default:
		return 1
	}
}

// entriesOf returns a's alternate-type candidates, or nil for a nil
// *ctype.AltRefType (a position with no AltRefType attached).
func entriesOf(a *ctype.AltRefType) []ctype.AltRefEntry {
	if a == nil {
		return nil
	}
	return a.Entries
}

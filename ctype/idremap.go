package ctype

// remapKey is the (fileIndex, origID, arrayDim) tuple spec.md §3
// describes: "the pair (origId, fileIndex, arrayDimensionIndex)
// deterministically maps to the internal id for array dimensions, so
// each dimension of a multi-dimensional array owns a distinct id." The
// same tuple shape (with arrayDim 0) also covers ordinary, non-array
// types.
type remapKey struct {
	fileIndex int
	origID    uint32
	arrayDim  int
}

// RemapID returns the Catalog-wide ID for (fileIndex, origID, arrayDim),
// allocating one on first sight. Symbol ingestion (package symsource)
// calls this for every local type reference it decodes, before any
// Target/Members/Params field is wired up, so a forward reference
// within a file or a reference to a type from a file not yet fully
// decoded always resolves to the same stable ID (Design Notes §9's
// two-phase allocate-then-resolve discipline, applied across files
// rather than within a single one).
func (c *Catalog) RemapID(fileIndex int, origID uint32, arrayDim int) ID {
	key := remapKey{fileIndex: fileIndex, origID: origID, arrayDim: arrayDim}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.idRemap == nil {
		c.idRemap = map[remapKey]ID{}
	}
	if id, ok := c.idRemap[key]; ok {
		return id
	}
	id := c.nextID
	c.nextID++
	c.idRemap[key] = id
	return id
}

// NewType allocates a Type stub carrying id's remap origin, for
// symsource to fill in the rest of the exported fields before calling
// Insert.
func NewType(id ID, kind Kind, fileIndex int, origID uint32) *Type {
	return &Type{ID: id, Kind: kind, fileIndex: fileIndex, origID: origID}
}

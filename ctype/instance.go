package ctype

// Origin tags how an Instance came to exist (spec.md §3).
type Origin int

const (
	OriginVariable Origin = iota
	OriginMember
	OriginDereference
	OriginRuleEngine
)

func (o Origin) String() string {
	switch o {
	case OriginVariable:
		return "variable"
	case OriginMember:
		return "member"
	case OriginDereference:
		return "dereference"
	case OriginRuleEngine:
		return "rule-engine"
	default:
		return "unknown"
	}
}

// Instance is a materialised (address, TypeId, name-path) triple
// (spec.md §3), a copy-on-read wrapper over a memory device. package
// ctype only needs to carry instance identity for the catalog's own
// APIs (e.g. rule-engine candidate construction); the actual memory
// reads happen in package memmap against a memdevice.Device.
type Instance struct {
	Address   uint64
	Type      ID
	NamePath  string
	Origin    Origin
	HasBits   bool
	BitOffset uint8
	BitSize   uint8
}

package ctype

import "github.com/allewwaly/insight-vmi-sub006/internal/symbol"

// Variable is a global symbol (spec.md §3): name, type, absolute
// address, origin symbol-file index, optional section.
type Variable struct {
	Name       symbol.ID
	Type       ID
	Address    uint64
	FileIndex  int
	Section    string // "" if unknown/not applicable.
	PerCPU     bool
	IsFunction bool // true for Function-typed roots (spec.md §4.E.1).

	// Alt is this variable's AltRefType (spec.md §3: "any referencing
	// type (pointer, typedef, const, volatile, member, variable,
	// function parameter)").
	Alt *AltRefType
}

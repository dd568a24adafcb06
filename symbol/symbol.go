// Package symbol defines the symbol records that feed completion: commands,
// environments and file paths, each tagged with the unit that contributed it.
package symbol

import (
	"strings"

	"github.com/teranos/texcomp/errors"
)

// Kind classifies a symbol. The zero value is not a valid kind.
type Kind int

const (
	Command Kind = iota + 1
	Environment
	FilePath
)

// Kinds lists every valid kind in display order
var Kinds = []Kind{Command, Environment, FilePath}

// Valid reports whether k is one of the known kinds
func (k Kind) Valid() bool {
	return k >= Command && k <= FilePath
}

func (k Kind) String() string {
	switch k {
	case Command:
		return "command"
	case Environment:
		return "environment"
	case FilePath:
		return "file"
	default:
		return "unknown"
	}
}

// ParseKind converts CLI/config input into a Kind
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "command", "cmd":
		return Command, nil
	case "environment", "env":
		return Environment, nil
	case "file", "filepath", "path":
		return FilePath, nil
	default:
		return 0, errors.WithHint(
			errors.NewInvalidArgumentError("unknown symbol kind %q", s),
			"use command, environment or file")
	}
}

// UnitID identifies a source unit: a document URI, a package file name
// or a workspace root.
type UnitID string

// BuiltinUnit owns kernel symbols that are not tied to any unit.
const BuiltinUnit UnitID = ""

// Record is an immutable symbol. Records are comparable; (Name, Kind, Origin)
// is the identity.
type Record struct {
	Name   string `json:"name"`
	Kind   Kind   `json:"kind"`
	Origin UnitID `json:"origin,omitempty"`
}

// IsBuiltin reports whether the record belongs to no unit
func (r Record) IsBuiltin() bool {
	return r.Origin == BuiltinUnit
}

// key is the uniqueness key of a record inside one unit
type key struct {
	name string
	kind Kind
}

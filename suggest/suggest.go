// Package suggest converts resolved candidates into the items handed to the
// editor transport.
package suggest

import (
	"github.com/teranos/texcomp/resolver"
	"github.com/teranos/texcomp/symbol"
)

// Kernel is the detail shown for symbols that belong to no unit
const Kernel = "built-in"

// Category is the display category of an item
type Category int

const (
	Function Category = iota + 1
	EnumMember
	File
)

func (c Category) String() string {
	switch c {
	case Function:
		return "function"
	case EnumMember:
		return "enum-member"
	case File:
		return "file"
	default:
		return "text"
	}
}

// Item is a boundary-facing suggestion
type Item struct {
	Label    string   `json:"label"`
	Category Category `json:"category"`
	Detail   string   `json:"detail"`
	Rank     int      `json:"rank"`
}

// Adapt converts a candidate into an item
func Adapt(c resolver.Candidate) Item {
	detail := string(c.Record.Origin)
	if c.Record.IsBuiltin() {
		detail = Kernel
	}
	return Item{
		Label:    c.Record.Name,
		Category: categoryOf(c.Record.Kind),
		Detail:   detail,
		Rank:     c.Rank,
	}
}

// AdaptAll converts candidates in order
func AdaptAll(cs []resolver.Candidate) []Item {
	items := make([]Item, len(cs))
	for i, c := range cs {
		items[i] = Adapt(c)
	}
	return items
}

func categoryOf(k symbol.Kind) Category {
	switch k {
	case symbol.Command:
		return Function
	case symbol.Environment:
		return EnumMember
	case symbol.FilePath:
		return File
	default:
		return 0
	}
}

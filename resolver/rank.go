package resolver

import "sort"

const (
	tierExact  = 0 // name equals the typed prefix
	tierPrefix = 1 // name extends the typed prefix
)

func tier(name, prefix string) int {
	if name == prefix {
		return tierExact
	}
	return tierPrefix
}

// rank orders candidates in place and assigns Rank by final position.
// Order: tier, name, user-defined before built-in, origin.
func rank(cs []Candidate, prefix string) {
	sort.SliceStable(cs, func(i, j int) bool {
		a, b := cs[i].Record, cs[j].Record
		if ta, tb := tier(a.Name, prefix), tier(b.Name, prefix); ta != tb {
			return ta < tb
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		if a.IsBuiltin() != b.IsBuiltin() {
			return !a.IsBuiltin()
		}
		return a.Origin < b.Origin
	})
	for i := range cs {
		cs[i].Rank = i
	}
}

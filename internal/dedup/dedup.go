// Package dedup consolidates reference entities that the ERP stores under
// several ids with the same display name.
//
// Names are grouped after trimming only. Matching is case and accent
// sensitive: "ana" and "Ana" stay separate entities.
package dedup

import (
	"sort"
	"strings"

	"github.com/odyssey-erp/odyssey-rollup/internal/erp"
)

// Group is a set of ids sharing one trimmed display name.
type Group struct {
	Name           string  `json:"name"`
	Representative int64   `json:"representative"`
	Members        []int64 `json:"members"`
}

// Analysis is the outcome of Analyze.
type Analysis struct {
	// Groups lists only names with more than one id, ordered by representative.
	Groups []Group            `json:"groups"`
	Map    ConsolidationMap   `json:"-"`
	Stats  ConsolidationStats `json:"stats"`
}

// ConsolidationStats summarises the vendor dimension before and after.
type ConsolidationStats struct {
	Entities        int `json:"entities"`
	Representatives int `json:"representatives"`
	Demoted         int `json:"demoted"`
}

// ConsolidationMap maps every known id to its representative id. It is
// immutable once built; the zero value is the identity map.
type ConsolidationMap struct {
	rep   map[int64]int64
	names map[int64]string
}

// Resolve returns the representative id. Unknown ids map to themselves.
func (m ConsolidationMap) Resolve(id int64) int64 {
	if rep, ok := m.rep[id]; ok {
		return rep
	}
	return id
}

// Name returns the display name of id's representative.
func (m ConsolidationMap) Name(id int64) (string, bool) {
	name, ok := m.names[m.Resolve(id)]
	return name, ok
}

// Known reports whether id was part of the analysed list.
func (m ConsolidationMap) Known(id int64) bool {
	_, ok := m.rep[id]
	return ok
}

// Len is the number of ids covered by the map.
func (m ConsolidationMap) Len() int {
	return len(m.rep)
}

// Snapshot returns a copy of the raw id -> representative table.
func (m ConsolidationMap) Snapshot() map[int64]int64 {
	out := make(map[int64]int64, len(m.rep))
	for k, v := range m.rep {
		out[k] = v
	}
	return out
}

// Analyze groups entities by trimmed name and elects the smallest id of each
// group as representative. Entities with a blank name are never merged and
// non-positive ids are ignored. When the same id appears twice the first
// row's name is kept.
func Analyze(entities []erp.Entity) Analysis {
	byName := make(map[string][]int64)
	nameOf := make(map[int64]string, len(entities))
	var order []string
	var blanks []int64

	for _, e := range entities {
		if e.ID <= 0 {
			continue
		}
		if _, seen := nameOf[e.ID]; seen {
			continue
		}
		name := strings.TrimSpace(e.Name)
		nameOf[e.ID] = name
		if name == "" {
			blanks = append(blanks, e.ID)
			continue
		}
		if _, ok := byName[name]; !ok {
			order = append(order, name)
		}
		byName[name] = append(byName[name], e.ID)
	}

	rep := make(map[int64]int64, len(nameOf))
	names := make(map[int64]string, len(order)+len(blanks))
	var groups []Group
	for _, name := range order {
		ids := byName[name]
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		representative := ids[0]
		for _, id := range ids {
			rep[id] = representative
		}
		names[representative] = name
		if len(ids) > 1 {
			groups = append(groups, Group{Name: name, Representative: representative, Members: ids})
		}
	}
	for _, id := range blanks {
		rep[id] = id
		names[id] = ""
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Representative < groups[j].Representative })

	if groups == nil {
		groups = []Group{}
	}
	return Analysis{
		Groups: groups,
		Map:    ConsolidationMap{rep: rep, names: names},
		Stats: ConsolidationStats{
			Entities:        len(rep),
			Representatives: len(names),
			Demoted:         len(rep) - len(names),
		},
	}
}

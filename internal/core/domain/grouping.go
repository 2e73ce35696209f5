package domain

import (
	"sort"

	"github.com/shopspring/decimal"
)

// AttributeGroup collects open records sharing one attribute key.
type AttributeGroup struct {
	Key     AttributeKey     `json:"key"`
	Total   decimal.Decimal  `json:"total"` // Sum of member Remaining
	Members []MovementRecord `json:"members"`
}

// AttributeGroups is ordered by each group's oldest member.
type AttributeGroups []AttributeGroup

// Find returns the group for key, if present.
func (g AttributeGroups) Find(key AttributeKey) (*AttributeGroup, bool) {
	id := key.ID()
	for i := range g {
		if g[i].Key.ID() == id {
			return &g[i], true
		}
	}
	return nil, false
}

// GroupByAttribute partitions records by exact key. Members are ordered by
// Seq and groups by their oldest member, so the result is deterministic.
// The input slice is not modified.
func GroupByAttribute(records []MovementRecord) AttributeGroups {
	sorted := make([]MovementRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Seq < sorted[j].Seq })

	groups := AttributeGroups{}
	index := make(map[KeyID]int)
	for _, r := range sorted {
		id := r.Key.ID()
		i, ok := index[id]
		if !ok {
			i = len(groups)
			index[id] = i
			groups = append(groups, AttributeGroup{Key: r.Key, Total: decimal.Zero})
		}
		groups[i].Total = groups[i].Total.Add(r.Remaining)
		groups[i].Members = append(groups[i].Members, r)
	}
	return groups
}

package catalog

import (
	"fmt"
	"sort"

	"github.com/erp/catalog-engine/internal/domain/shared"
)

// Placement tells where a pinned product lands relative to its target
type Placement string

const (
	PlacementStart Placement = "start"
	PlacementEnd   Placement = "end"
)

// Offset returns the position delta applied to the target's order
func (p Placement) Offset() int {
	if p == PlacementEnd {
		return 1
	}
	return 0
}

// ParsePlacement parses a placement, defaulting to Start
func ParsePlacement(s string) (Placement, error) {
	switch Placement(s) {
	case "", PlacementStart:
		return PlacementStart, nil
	case PlacementEnd:
		return PlacementEnd, nil
	}
	return "", shared.NewValidationError("invalid placement %q", s)
}

// SortEntry is one product's ordering state inside a single category
type SortEntry struct {
	ProductID      int64
	SalesCount     int64
	Order          int
	Fixed          bool
	OrderBeforeFix int
}

// SortOrderPlan is an in-memory snapshot of one category's ordering. All
// mutations happen on the snapshot; Changed reports what has to be written.
type SortOrderPlan struct {
	CategoryID int64
	entries    []*SortEntry
	byID       map[int64]*SortEntry
	original   map[int64]SortEntry
}

// NewSortOrderPlan snapshots the given entries
func NewSortOrderPlan(categoryID int64, entries []SortEntry) *SortOrderPlan {
	p := &SortOrderPlan{
		CategoryID: categoryID,
		entries:    make([]*SortEntry, 0, len(entries)),
		byID:       make(map[int64]*SortEntry, len(entries)),
		original:   make(map[int64]SortEntry, len(entries)),
	}
	for _, e := range entries {
		e := e
		p.entries = append(p.entries, &e)
		p.byID[e.ProductID] = &e
		p.original[e.ProductID] = e
	}
	return p
}

// Entry returns the current state of a product in this plan
func (p *SortOrderPlan) Entry(productID int64) (SortEntry, bool) {
	e, ok := p.byID[productID]
	if !ok {
		return SortEntry{}, false
	}
	return *e, true
}

// Entries returns the current state of every product
func (p *SortOrderPlan) Entries() []SortEntry {
	out := make([]SortEntry, len(p.entries))
	for i, e := range p.entries {
		out[i] = *e
	}
	return out
}

// Recompute assigns every unpinned product a position, walking products in
// sales order and skipping slots held by pinned products.
//
// The walk counts up from 0 with the best seller first, so the best seller
// gets the lowest reversed order and is listed last. Stored orders and
// existing pins depend on this direction; do not flip it.
func (p *SortOrderPlan) Recompute() {
	walk := make([]*SortEntry, len(p.entries))
	copy(walk, p.entries)
	sort.SliceStable(walk, func(i, j int) bool {
		if walk[i].SalesCount != walk[j].SalesCount {
			return walk[i].SalesCount > walk[j].SalesCount
		}
		return walk[i].ProductID < walk[j].ProductID
	})

	pinned := make(map[int]int64)
	for _, e := range walk {
		if e.Fixed {
			pinned[e.Order] = e.ProductID
		}
	}

	next := 0
	for _, e := range walk {
		for {
			holder, taken := pinned[next]
			if !taken || holder == e.ProductID {
				break
			}
			next++
		}
		if !e.Fixed {
			e.Order = next
		}
		next++
	}
}

// Lock pins productID next to targetID. Whatever sits on the destination
// slot is pushed up by one, cascading depth-first through further collisions.
func (p *SortOrderPlan) Lock(productID, targetID int64, placement Placement) error {
	if productID == targetID {
		return shared.NewValidationError("product %d cannot be pinned relative to itself", productID)
	}
	entry, ok := p.byID[productID]
	if !ok {
		return shared.WrapDomainError(shared.CodeNotInCategory,
			"product is not a member of the category", notInCategory(productID, p.CategoryID))
	}
	target, ok := p.byID[targetID]
	if !ok {
		return shared.WrapDomainError(shared.CodeNotInCategory,
			"target is not a member of the category", notInCategory(targetID, p.CategoryID))
	}

	pos := target.Order + placement.Offset()
	if !entry.Fixed {
		entry.OrderBeforeFix = entry.Order
	}
	p.vacate(pos, entry)
	entry.Order = pos
	entry.Fixed = true
	return nil
}

// Unlock restores the pre-pin position and recomputes the category
func (p *SortOrderPlan) Unlock(productID int64) error {
	entry, ok := p.byID[productID]
	if !ok {
		return shared.WrapDomainError(shared.CodeNotInCategory,
			"product is not a member of the category", notInCategory(productID, p.CategoryID))
	}
	if entry.Fixed {
		entry.Order = entry.OrderBeforeFix
	}
	entry.Fixed = false
	entry.OrderBeforeFix = 0
	p.Recompute()
	return nil
}

// Changed returns the entries that differ from the snapshot, in product id order
func (p *SortOrderPlan) Changed() []SortEntry {
	changed := make([]SortEntry, 0)
	for _, e := range p.entries {
		if p.original[e.ProductID] != *e {
			changed = append(changed, *e)
		}
	}
	sort.Slice(changed, func(i, j int) bool { return changed[i].ProductID < changed[j].ProductID })
	return changed
}

// ChangedIDs returns the product ids of Changed
func (p *SortOrderPlan) ChangedIDs() []int64 {
	changed := p.Changed()
	ids := make([]int64, len(changed))
	for i, e := range changed {
		ids[i] = e.ProductID
	}
	return ids
}

// Ranked returns entries in display order: highest position first
func (p *SortOrderPlan) Ranked() []SortEntry {
	out := p.Entries()
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order > out[j].Order
		}
		return out[i].ProductID < out[j].ProductID
	})
	return out
}

func (p *SortOrderPlan) vacate(pos int, keep *SortEntry) {
	for _, e := range p.entries {
		if e != keep && e.Order == pos {
			p.shift(e, pos+1, keep)
		}
	}
}

func (p *SortOrderPlan) shift(e *SortEntry, to int, keep *SortEntry) {
	for _, other := range p.entries {
		if other != e && other != keep && other.Order == to {
			p.shift(other, to+1, keep)
		}
	}
	e.Order = to
}

func notInCategory(productID, categoryID int64) error {
	return fmt.Errorf("product %d not in category %d", productID, categoryID)
}

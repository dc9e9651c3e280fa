// Package reconcile computes the delta between the lines a server snapshot
// holds and the quantities the user currently wants. The store uses it to
// overlay pending intents on every read, so a refetch never shows a value the
// user has already changed.
package reconcile

import (
	"cartsync/internal/model"
	"cartsync/internal/optimistic"
)

// LineDiff describes the local edits needed to reach the desired state.
// Apply order is Remove then Update, matching the order edits could conflict.
type LineDiff struct {
	ToUpdate []LineToUpdate // Lines whose desired quantity differs
	ToRemove []LineToRemove // Lines the user wants gone (desired <= 0)
}

// LineToUpdate specifies a quantity change for an existing line.
type LineToUpdate struct {
	LineID        string
	MerchandiseID string // For reference
	OldQuantity   int    // Server quantity (informational)
	NewQuantity   int    // Desired quantity
}

// LineToRemove specifies a line the user removed.
type LineToRemove struct {
	LineID        string
	MerchandiseID string // For reference
}

// IsEmpty returns true if the snapshot already matches every desire.
func (d *LineDiff) IsEmpty() bool {
	return len(d.ToUpdate) == 0 && len(d.ToRemove) == 0
}

// CurrentLine is a line in the server snapshot.
type CurrentLine struct {
	LineID        string
	MerchandiseID string
	Quantity      int
}

// CurrentLines flattens a cart into diff input, keeping line order.
func CurrentLines(cart *model.Cart) []CurrentLine {
	if cart == nil {
		return nil
	}
	out := make([]CurrentLine, 0, len(cart.Lines))
	for _, l := range cart.Lines {
		out = append(out, CurrentLine{LineID: l.ID, MerchandiseID: l.Merchandise.ID, Quantity: l.Quantity})
	}
	return out
}

// DiffLines computes the delta between current lines and desired quantities
// keyed by line id. Matching is by line id; lines with no desire are left
// alone and desires for lines not in current are ignored. Results follow the
// order of current.
func DiffLines(current []CurrentLine, desired map[string]int) *LineDiff {
	diff := &LineDiff{}
	if len(desired) == 0 {
		return diff
	}

	for _, line := range current {
		want, ok := desired[line.LineID]
		if !ok {
			continue
		}
		switch {
		case want <= 0:
			diff.ToRemove = append(diff.ToRemove, LineToRemove{
				LineID:        line.LineID,
				MerchandiseID: line.MerchandiseID,
			})
		case want != line.Quantity:
			diff.ToUpdate = append(diff.ToUpdate, LineToUpdate{
				LineID:        line.LineID,
				MerchandiseID: line.MerchandiseID,
				OldQuantity:   line.Quantity,
				NewQuantity:   want,
			})
		}
	}
	return diff
}

// Overlay returns cart with desired quantities applied. The input is never
// mutated; when nothing differs the same pointer comes back.
func Overlay(cart *model.Cart, desired map[string]int) *model.Cart {
	diff := DiffLines(CurrentLines(cart), desired)
	if diff.IsEmpty() {
		return cart
	}
	out := cart
	for _, r := range diff.ToRemove {
		out = optimistic.ApplyRemove(out, r.LineID)
	}
	for _, u := range diff.ToUpdate {
		out = optimistic.ApplyQuantityUpdate(out, u.LineID, u.NewQuantity)
	}
	return out
}

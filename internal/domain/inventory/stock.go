// Package inventory derives product stock from the movement ledger.
//
// Stock is never stored. Every change is a new ENTRY or EXIT movement and the
// current level is the fold of all movements in chronological order.
package inventory

import (
	"sort"
	"time"
)

// MovementType is the direction of a ledger entry
type MovementType string

const (
	Entry MovementType = "ENTRY"
	Exit  MovementType = "EXIT"
)

// Valid reports whether t is a known movement type
func (t MovementType) Valid() bool {
	return t == Entry || t == Exit
}

// Movement is the part of a ledger row stock derivation needs
type Movement struct {
	ID        int64
	Type      MovementType
	Quantity  int
	CreatedAt time.Time
}

// Level is a point in a product's stock history
type Level struct {
	At    time.Time
	Stock int
}

// DeriveStock folds movements oldest first: ENTRY adds, EXIT subtracts.
// Rows with an unknown type are ignored. The input slice is not modified.
func DeriveStock(movements []Movement) int {
	history := History(movements)
	if len(history) == 0 {
		return 0
	}
	return history[len(history)-1].Stock
}

// History returns the running stock after each movement, oldest first
func History(movements []Movement) []Level {
	ordered := make([]Movement, len(movements))
	copy(ordered, movements)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].CreatedAt.Equal(ordered[j].CreatedAt) {
			return ordered[i].ID < ordered[j].ID
		}
		return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
	})

	levels := make([]Level, 0, len(ordered))
	stock := 0
	for _, m := range ordered {
		switch m.Type {
		case Entry:
			stock += m.Quantity
		case Exit:
			stock -= m.Quantity
		default:
			continue
		}
		levels = append(levels, Level{At: m.CreatedAt, Stock: stock})
	}
	return levels
}

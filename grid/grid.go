// Package grid holds the value types of the shared 8x8 ownership board:
// owners, coordinates, the grid itself, rosters and immutable snapshots.
// Nothing here is synchronized; the arbiter owns the authoritative copy.
package grid

import (
	"fmt"
	"time"
)

// =============================================================================
// Dimensions
// =============================================================================

const (
	Size       = 8           // Cells per row and per column
	Cells      = Size * Size // Total cell count
	MaxPlayers = 4           // Player slots 1..MaxPlayers
)

// =============================================================================
// Owner
// =============================================================================

// Owner identifies who holds a cell. Player slots double as owner values.
type Owner uint8

// Empty marks an unclaimed cell.
const Empty Owner = 0

// IsValid reports whether o is Empty or a player slot.
func (o Owner) IsValid() bool {
	return o <= MaxPlayers
}

// IsPlayer reports whether o is a player slot (1..MaxPlayers).
func (o Owner) IsPlayer() bool {
	return o >= 1 && o <= MaxPlayers
}

// String returns the string representation of Owner.
func (o Owner) String() string {
	switch {
	case o == Empty:
		return "Empty"
	case o.IsPlayer():
		return fmt.Sprintf("P%d", uint8(o))
	default:
		return "InvalidOwner"
	}
}

// =============================================================================
// Coordinates
// =============================================================================

// Coord addresses a cell by row and column.
type Coord struct {
	Row int
	Col int
}

// InBounds reports whether c lies on the board.
func (c Coord) InBounds() bool {
	return c.Row >= 0 && c.Row < Size && c.Col >= 0 && c.Col < Size
}

// Index returns the row-major cell index. Callers check InBounds first.
func (c Coord) Index() int {
	return c.Row*Size + c.Col
}

func (c Coord) String() string {
	return fmt.Sprintf("(%d,%d)", c.Row, c.Col)
}

// CoordOf converts a row-major cell index back into a Coord.
func CoordOf(index int) Coord {
	return Coord{Row: index / Size, Col: index % Size}
}

// ValidIndex reports whether index addresses a cell.
func ValidIndex(index int) bool {
	return index >= 0 && index < Cells
}

// =============================================================================
// Grid
// =============================================================================

// Grid is the ownership table in row-major order. It is a value type:
// assignment copies the whole board.
type Grid [Cells]Owner

// At returns the owner of the cell at index.
func (g *Grid) At(index int) Owner {
	return g[index]
}

// OwnerOf returns the owner of the cell at c.
func (g *Grid) OwnerOf(c Coord) Owner {
	return g[c.Index()]
}

// Claim sets the cell at index to owner if, and only if, it is empty.
// It reports whether the grid changed.
func (g *Grid) Claim(index int, owner Owner) bool {
	if !ValidIndex(index) || !owner.IsPlayer() || g[index] != Empty {
		return false
	}
	g[index] = owner
	return true
}

// Full reports whether every cell is owned.
func (g *Grid) Full() bool {
	for _, o := range g {
		if o == Empty {
			return false
		}
	}
	return true
}

// Claimed returns the number of owned cells.
func (g *Grid) Claimed() int {
	n := 0
	for _, o := range g {
		if o != Empty {
			n++
		}
	}
	return n
}

// Counts returns the number of cells held by each owner, indexed by Owner.
func (g *Grid) Counts() [MaxPlayers + 1]int {
	var counts [MaxPlayers + 1]int
	for _, o := range g {
		if o.IsValid() {
			counts[o]++
		}
	}
	return counts
}

// Reset empties every cell.
func (g *Grid) Reset() {
	*g = Grid{}
}

// Diff returns the number of cells whose owner differs between g and other.
func (g *Grid) Diff(other *Grid) int {
	n := 0
	for i := range g {
		if g[i] != other[i] {
			n++
		}
	}
	return n
}

// =============================================================================
// Roster
// =============================================================================

// Roster is a bitmask of occupied player slots; bit slot-1 is set for each
// connected player.
type Roster uint8

// With returns r with slot marked present.
func (r Roster) With(slot Owner) Roster {
	if !slot.IsPlayer() {
		return r
	}
	return r | 1<<(slot-1)
}

// Has reports whether slot is marked present.
func (r Roster) Has(slot Owner) bool {
	if !slot.IsPlayer() {
		return false
	}
	return r&(1<<(slot-1)) != 0
}

// Count returns the number of slots present.
func (r Roster) Count() int {
	n := 0
	for s := Owner(1); s <= MaxPlayers; s++ {
		if r.Has(s) {
			n++
		}
	}
	return n
}

// =============================================================================
// Snapshot
// =============================================================================

// Snapshot is an immutable copy of the authoritative board. Grid is held by
// value so later mutations of the source never leak into a snapshot.
type Snapshot struct {
	ID          uint32
	Round       uint32
	Roster      Roster
	Grid        Grid
	GeneratedAt time.Time
}

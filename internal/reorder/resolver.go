package reorder

// Resolver computes the destination index of a dragged item. rects holds the
// drag-start boxes of every item in the current order, dragged is the index
// of the dragged item, and the returned index is its position in the final
// order (0 <= index < len(rects)).
type Resolver interface {
	Name() string
	Resolve(rects []Rect, dragged int, at Point) int
}

// Grid places the dragged item next to the item whose centre is nearest to
// the pointer: before it when the pointer is above or left of the centre,
// after it otherwise.
type Grid struct{}

// Name implements Resolver.
func (Grid) Name() string { return "grid" }

// Resolve implements Resolver.
func (Grid) Resolve(rects []Rect, dragged int, at Point) int {
	others := without(len(rects), dragged)
	if len(others) == 0 {
		return 0
	}
	nearest := -1
	best := 0.0
	for pos, idx := range others {
		d := distance(at, rects[idx].Center())
		if nearest < 0 || d < best {
			nearest = pos
			best = d
		}
	}
	c := rects[others[nearest]].Center()
	if at.Y < c.Y || at.X < c.X {
		return nearest
	}
	return nearest + 1
}

// List places the dragged item before the closest item whose vertical
// midpoint is below the pointer, or last when there is none.
type List struct{}

// Name implements Resolver.
func (List) Name() string { return "list" }

// Resolve implements Resolver.
func (List) Resolve(rects []Rect, dragged int, at Point) int {
	others := without(len(rects), dragged)
	target := len(others)
	var closest float64
	found := false
	for pos, idx := range others {
		r := rects[idx]
		offset := at.Y - (r.Y + r.Height/2)
		if offset < 0 && (!found || offset > closest) {
			closest = offset
			target = pos
			found = true
		}
	}
	return target
}

func without(n, skip int) []int {
	out := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if i != skip {
			out = append(out, i)
		}
	}
	return out
}

// ResolverByName returns the resolver for a layout name ("grid" or "list").
func ResolverByName(name string) (Resolver, bool) {
	switch name {
	case "grid", "":
		return Grid{}, true
	case "list":
		return List{}, true
	default:
		return nil, false
	}
}

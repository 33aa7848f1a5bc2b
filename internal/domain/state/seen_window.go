package state

// SeenWindow is an insertion-ordered set of review IDs. When it grows past its
// limit the oldest observations are evicted first. Observing an ID that is
// already present moves it to the newest position.
type SeenWindow struct {
	limit int
	order []int64
	index map[int64]struct{}
}

// NewSeenWindow creates an empty window. A non-positive limit falls back to
// DefaultSeenCap.
func NewSeenWindow(limit int) *SeenWindow {
	if limit <= 0 {
		limit = DefaultSeenCap
	}
	return &SeenWindow{
		limit: limit,
		index: make(map[int64]struct{}, limit),
	}
}

// Contains reports whether id is inside the window.
func (w *SeenWindow) Contains(id int64) bool {
	_, ok := w.index[id]
	return ok
}

// Observe records id as the most recent observation and evicts past the limit.
func (w *SeenWindow) Observe(id int64) {
	if _, ok := w.index[id]; ok {
		w.remove(id)
	}
	w.order = append(w.order, id)
	w.index[id] = struct{}{}

	for len(w.order) > w.limit {
		evicted := w.order[0]
		w.order = w.order[1:]
		delete(w.index, evicted)
	}
}

// Len returns the number of retained IDs.
func (w *SeenWindow) Len() int {
	return len(w.order)
}

// IDs returns a copy of the retained IDs, oldest first.
func (w *SeenWindow) IDs() []int64 {
	out := make([]int64, len(w.order))
	copy(out, w.order)
	return out
}

func (w *SeenWindow) remove(id int64) {
	for i, v := range w.order {
		if v == id {
			w.order = append(w.order[:i], w.order[i+1:]...)
			break
		}
	}
	delete(w.index, id)
}

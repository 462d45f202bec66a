package client

// HiddenSet is the session's local suppression list. It is never sent to the
// hub and never read from a push. Ids that no longer exist are harmless.
type HiddenSet map[int64]struct{}

// Hide adds id. Hiding twice is the same as hiding once.
func (h HiddenSet) Hide(id int64) {
	h[id] = struct{}{}
}

// RestoreAll empties the set.
func (h HiddenSet) RestoreAll() {
	clear(h)
}

func (h HiddenSet) Contains(id int64) bool {
	_, ok := h[id]
	return ok
}

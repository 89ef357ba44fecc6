package rank

// Tracker accumulates distinct product ids in the order they were first seen
type Tracker struct {
	seen  map[string]struct{}
	order []string
}

// NewTracker creates an empty tracker
func NewTracker() *Tracker {
	return &Tracker{seen: make(map[string]struct{})}
}

// Add records id and returns the number of distinct ids seen so far
func (t *Tracker) Add(id string) int {
	if _, ok := t.seen[id]; !ok {
		t.seen[id] = struct{}{}
		t.order = append(t.order, id)
	}
	return len(t.order)
}

// Len returns the number of distinct ids seen
func (t *Tracker) Len() int {
	return len(t.order)
}

// Seen returns the distinct ids in first-seen order
func (t *Tracker) Seen() []string {
	out := make([]string, len(t.order))
	copy(out, t.order)
	return out
}

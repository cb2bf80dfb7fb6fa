package game

// Timeline is one player's committed sequence of placed cards, kept sorted by
// year ascending. Ties keep insertion order, since every insert was already
// required to fall within the adjacent bounds.
type Timeline struct {
	entries []Track
}

// Len is the number of committed cards, which is also the player's score.
func (t *Timeline) Len() int {
	return len(t.entries)
}

// Entries returns a copy of the committed cards in order.
func (t *Timeline) Entries() []Track {
	out := make([]Track, len(t.entries))
	copy(out, t.entries)
	return out
}

// Bounds returns the years bracketing an insertion at index, with open bounds
// at the ends. ok is false when index is outside [0, Len()].
func (t *Timeline) Bounds(index int) (prev, next int, ok bool) {
	if index < 0 || index > len(t.entries) {
		return 0, 0, false
	}
	prev = yearMin
	next = yearMax
	if index > 0 {
		prev = t.entries[index-1].Year
	}
	if index < len(t.entries) {
		next = t.entries[index].Year
	}
	return prev, next, true
}

const (
	yearMin = -(1 << 31)
	yearMax = 1 << 31
)

// Fits reports whether a card of the given year may be committed at index.
func (t *Timeline) Fits(index, year int) bool {
	prev, next, ok := t.Bounds(index)
	return ok && prev <= year && year <= next
}

// InsertAt commits a card at index. Returns false if index is out of range.
func (t *Timeline) InsertAt(index int, card Track) bool {
	if index < 0 || index > len(t.entries) {
		return false
	}
	t.entries = append(t.entries, Track{})
	copy(t.entries[index+1:], t.entries[index:])
	t.entries[index] = card
	return true
}

// InsertChronological commits a card at its correct position: before the first
// entry with a later year, else at the end.
func (t *Timeline) InsertChronological(card Track) {
	for i, e := range t.entries {
		if e.Year > card.Year {
			t.InsertAt(i, card)
			return
		}
	}
	t.entries = append(t.entries, card)
}

// Remove deletes the card with the given id, reporting whether it was present.
func (t *Timeline) Remove(id string) bool {
	for i, e := range t.entries {
		if e.ID == id {
			t.entries = append(t.entries[:i], t.entries[i+1:]...)
			return true
		}
	}
	return false
}

// IndexOf returns the position of the card with the given id, or -1.
func (t *Timeline) IndexOf(id string) int {
	for i, e := range t.entries {
		if e.ID == id {
			return i
		}
	}
	return -1
}

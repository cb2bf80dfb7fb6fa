package game

// Track is a single song as returned by the catalog provider. Tracks are
// immutable once drawn into a deck; uniqueness within a deck is by ID.
type Track struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Artist     string `json:"artist"`
	Year       int    `json:"year"`
	MediaRef   string `json:"media_ref"`
	Popularity int    `json:"popularity,omitempty"`
}

// Deck is the shared draw pile: an ordered sequence of tracks, a cursor, and
// the set of ids already played. The cursor only ever moves forward; running
// off the end is the deck-exhaustion signal, never a wrap.
type Deck struct {
	tracks []Track
	cursor int
	played map[string]bool
}

// NewDeck builds a deck from an ordered candidate list, dropping duplicate ids.
func NewDeck(tracks []Track) *Deck {
	seen := make(map[string]bool, len(tracks))
	kept := make([]Track, 0, len(tracks))
	for _, t := range tracks {
		if t.ID == "" || seen[t.ID] {
			continue
		}
		seen[t.ID] = true
		kept = append(kept, t)
	}
	return &Deck{
		tracks: kept,
		played: make(map[string]bool),
	}
}

// Current returns the track under the cursor, or false if the deck is exhausted.
func (d *Deck) Current() (Track, bool) {
	if d.Exhausted() {
		return Track{}, false
	}
	return d.tracks[d.cursor], true
}

// Advance marks the current track played, then moves the cursor forward to the
// first unplayed position. Returns false when no unplayed track remains, which
// is the normal end-of-deck signal rather than an error.
func (d *Deck) Advance() bool {
	if d.Exhausted() {
		return false
	}
	d.played[d.tracks[d.cursor].ID] = true
	return d.seek(d.cursor + 1)
}

// Skip moves the cursor forward without marking the current track played, so
// the same player receives a fresh card. Returns false on exhaustion.
func (d *Deck) Skip() bool {
	if d.Exhausted() {
		return false
	}
	return d.seek(d.cursor + 1)
}

func (d *Deck) seek(from int) bool {
	for i := from; i < len(d.tracks); i++ {
		if !d.played[d.tracks[i].ID] {
			d.cursor = i
			return true
		}
	}
	d.cursor = len(d.tracks)
	return false
}

// Exhausted reports whether no playable track remains under or past the cursor.
func (d *Deck) Exhausted() bool {
	return d.cursor >= len(d.tracks)
}

// Remaining counts unplayed tracks at or past the cursor.
func (d *Deck) Remaining() int {
	n := 0
	for i := d.cursor; i < len(d.tracks); i++ {
		if !d.played[d.tracks[i].ID] {
			n++
		}
	}
	return n
}

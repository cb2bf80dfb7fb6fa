package game

// Snapshot is the immutable view broadcast to every room participant after an
// accepted transition. Committed timelines and display timelines are kept
// separate: the display variant overlays the pending placement so clients can
// render the tentative card without the server ever confusing it for
// committed state.
type Snapshot struct {
	Phase            Phase              `json:"phase"`
	CurrentPlayerID  string             `json:"current_player_id"`
	CurrentCard      *Track             `json:"current_card,omitempty"`
	Players          []Player           `json:"players"`
	Timelines        map[string][]Track `json:"timelines"`
	DisplayTimelines map[string][]Track `json:"display_timelines"`
	Pending          *PendingPlacement  `json:"pending_placement,omitempty"`
	Challenge        *Challenge         `json:"challenge,omitempty"`
	LastGuess        *GuessOutcome      `json:"last_guess,omitempty"`
	Passed           []string           `json:"passed,omitempty"`
	DeckRemaining    int                `json:"deck_remaining"`
	WinCondition     int                `json:"win_condition"`
	WinnerID         string             `json:"winner_id,omitempty"`
}

// DisplayTimeline projects a player's timeline as clients should render it:
// the committed cards, plus the pending card spliced in at its proposed index
// while the placement is unresolved.
func (s *State) DisplayTimeline(playerID string) []Track {
	tl := s.timelines[playerID]
	if tl == nil {
		return nil
	}
	entries := tl.Entries()

	if s.pending == nil || s.pending.Phase == PlacementResolved || s.pending.ByPlayerID != playerID {
		return entries
	}
	card, ok := s.deck.Current()
	if !ok || card.ID != s.pending.CardID {
		return entries
	}

	idx := s.pending.ProposedIndex
	if idx > len(entries) {
		idx = len(entries)
	}
	out := make([]Track, 0, len(entries)+1)
	out = append(out, entries[:idx]...)
	out = append(out, card)
	out = append(out, entries[idx:]...)
	return out
}

// Snapshot captures the current state. The returned value shares nothing
// mutable with the state, so it is safe to hand to the broadcast goroutines.
func (s *State) Snapshot() Snapshot {
	snap := Snapshot{
		Phase:            s.phase,
		CurrentPlayerID:  s.turnOrder[s.current],
		Players:          make([]Player, 0, len(s.players)),
		Timelines:        make(map[string][]Track, len(s.players)),
		DisplayTimelines: make(map[string][]Track, len(s.players)),
		DeckRemaining:    s.deck.Remaining(),
		WinCondition:     s.winCondition,
	}

	if card, ok := s.deck.Current(); ok {
		c := card
		snap.CurrentCard = &c
	}

	for _, p := range s.players {
		snap.Players = append(snap.Players, *p)
		snap.Timelines[p.ID] = s.timelines[p.ID].Entries()
		snap.DisplayTimelines[p.ID] = s.DisplayTimeline(p.ID)
	}

	if s.pending != nil {
		pp := *s.pending
		snap.Pending = &pp
	}
	if s.challenge != nil {
		ch := *s.challenge
		if ch.Result != nil {
			res := *ch.Result
			ch.Result = &res
		}
		snap.Challenge = &ch
	}
	if s.lastGuess != nil {
		lg := *s.lastGuess
		snap.LastGuess = &lg
	}
	for id := range s.passed {
		snap.Passed = append(snap.Passed, id)
	}
	if s.winner != nil {
		snap.WinnerID = s.winner.ID
	}

	return snap
}

package game

// Transition functions for the per-room state machine. All commands for a
// room are serialized by the owning hub, so these run one at a time; each
// either mutates the state and returns nil, or rejects with a sentinel error
// and leaves the state exactly as it was.

// ProposePlacement records the active player's tentative insertion of the
// current card into their own timeline. Correctness is judged against the
// committed timeline's bounds at the index; nothing is committed yet.
func (s *State) ProposePlacement(playerID string, index int) error {
	if s.phase != PhasePlayerTurn {
		return ErrInvalidPhase
	}
	if playerID != s.turnOrder[s.current] {
		return ErrNotCurrentPlayer
	}
	card, ok := s.deck.Current()
	if !ok {
		return ErrInvalidPhase
	}
	tl := s.timelines[playerID]
	if index < 0 || index > tl.Len() {
		return ErrBadIndex
	}

	s.pending = &PendingPlacement{
		CardID:        card.ID,
		ProposedIndex: index,
		ByPlayerID:    playerID,
		Correct:       tl.Fits(index, card.Year),
		Phase:         PlacementPlaced,
	}
	s.phase = PhaseSongGuess

	return nil
}

// SubmitGuess scores the active player's title/artist guess. A fully correct
// guess (both fields) pays out bonus tokens, doubled when double-points was
// armed. Progression to the challenge window does not depend on correctness.
func (s *State) SubmitGuess(playerID, title, artist string) error {
	if s.phase != PhaseSongGuess {
		return ErrInvalidPhase
	}
	if playerID != s.turnOrder[s.current] {
		return ErrNotCurrentPlayer
	}
	card, ok := s.deck.Current()
	if !ok {
		return ErrInvalidPhase
	}

	p := s.player(playerID)
	outcome := &GuessOutcome{
		PlayerID:      playerID,
		TitleCorrect:  TitlesMatch(card.Title, title),
		ArtistCorrect: ArtistsMatch(card.Artist, artist),
	}
	if outcome.TitleCorrect && outcome.ArtistCorrect {
		award := 1
		if p.DoublePointsArmed {
			award = 2
		}
		p.DoublePointsArmed = false
		p.BonusTokens += award
		p.Tokens += award
		outcome.TokensAwarded = award
	}
	s.lastGuess = outcome

	s.openChallengeWindow()

	return nil
}

// SkipGuess forfeits the guess and moves straight to the challenge window.
func (s *State) SkipGuess(playerID string) error {
	if s.phase != PhaseSongGuess {
		return ErrInvalidPhase
	}
	if playerID != s.turnOrder[s.current] {
		return ErrNotCurrentPlayer
	}

	s.lastGuess = &GuessOutcome{PlayerID: playerID, Skipped: true}
	s.openChallengeWindow()

	return nil
}

func (s *State) openChallengeWindow() {
	s.phase = PhaseChallengeWindow
	s.passed = make(map[string]bool)
	s.closeWindowIfAllPassed()
}

// challengeEligible reports whether a player may act in the challenge window:
// anyone holding tokens except the player who placed the card.
func (s *State) challengeEligible(p *Player) bool {
	return p.Tokens > 0 && p.ID != s.turnOrder[s.current]
}

// PassChallengeWindow records an explicit pass. Passes are set membership
// keyed by stable player id, so repeats are accepted without effect.
func (s *State) PassChallengeWindow(playerID string) error {
	if s.phase != PhaseChallengeWindow {
		return ErrInvalidPhase
	}
	p := s.player(playerID)
	if p == nil {
		return ErrUnknownPlayer
	}
	if !s.challengeEligible(p) {
		return ErrNotCurrentPlayer
	}

	s.passed[playerID] = true
	s.closeWindowIfAllPassed()

	return nil
}

// closeWindowIfAllPassed re-derives "all eligible responded" from scratch on
// every pass and reveals the placement once nobody is left to object.
func (s *State) closeWindowIfAllPassed() {
	for _, p := range s.players {
		if s.challengeEligible(p) && !s.passed[p.ID] {
			return
		}
	}
	s.reveal()
}

// reveal commits the pending placement if it was correct, discards it
// otherwise, and leaves the room in the reveal phase awaiting Continue.
func (s *State) reveal() {
	if s.pending != nil && s.pending.Correct {
		card, ok := s.deck.Current()
		if ok && card.ID == s.pending.CardID {
			s.timelines[s.pending.ByPlayerID].InsertAt(s.pending.ProposedIndex, card)
		}
	}
	if s.pending != nil {
		s.pending.Phase = PlacementResolved
	}
	s.passed = make(map[string]bool)
	s.renormalizeScores()
	s.phase = PhaseReveal
}

// InitiateChallenge spends one of the challenger's tokens and opens the
// dispute. The window closes immediately; pending passes are discarded.
func (s *State) InitiateChallenge(playerID string) error {
	if s.phase != PhaseChallengeWindow {
		return ErrInvalidPhase
	}
	p := s.player(playerID)
	if p == nil {
		return ErrUnknownPlayer
	}
	if p.ID == s.turnOrder[s.current] {
		return ErrNotCurrentPlayer
	}
	if p.Tokens < 1 {
		return ErrInsufficientTokens
	}

	defender := s.player(s.pending.ByPlayerID)
	if s.EnforceChallengeImmunity && defender.SkipNextChallenge {
		// Immunity absorbs the challenge as an accepted transition: the flag
		// is spent, the challenger keeps the token, and the placement reveals
		// unchallenged. Rejections never mutate, so this cannot be one.
		defender.SkipNextChallenge = false
		s.reveal()
		return nil
	}

	p.Tokens--
	s.challenge = &Challenge{
		ChallengerID:            playerID,
		DefenderID:              defender.ID,
		CardID:                  s.pending.CardID,
		DefenderProposedIndex:   s.pending.ProposedIndex,
		ChallengerProposedIndex: -1,
	}
	s.pending.Phase = PlacementChallenged
	s.passed = make(map[string]bool)
	s.phase = PhaseChallenge

	return nil
}

// SubmitChallengePlacement resolves the dispute. The challenger's index is
// given against the defender's display timeline, which shows the contested
// card already spliced in; it is shifted down by one when at or after that
// card before being judged against the committed (card-free) timeline.
//
// Outcomes: only the challenger correct moves the card into the challenger's
// own timeline at its chronological position; any outcome where the defender
// was correct keeps the card at the defender's original index (ties favor the
// incumbent); both wrong and the card goes to nobody.
func (s *State) SubmitChallengePlacement(playerID string, index int) error {
	if s.phase != PhaseChallenge {
		return ErrInvalidPhase
	}
	if s.challenge == nil || playerID != s.challenge.ChallengerID {
		return ErrNotCurrentPlayer
	}
	card, ok := s.deck.Current()
	if !ok || card.ID != s.challenge.CardID {
		return ErrInvalidPhase
	}

	defenderTL := s.timelines[s.challenge.DefenderID]

	adjusted := index
	if adjusted >= s.challenge.DefenderProposedIndex {
		adjusted--
	}
	if adjusted < 0 || adjusted > defenderTL.Len() {
		return ErrBadIndex
	}

	challengerCorrect := defenderTL.Fits(adjusted, card.Year)
	defenderCorrect := s.pending.Correct

	result := &ChallengeResult{
		ChallengerCorrect: challengerCorrect,
		DefenderCorrect:   defenderCorrect,
	}

	switch {
	case defenderCorrect:
		// Defender keeps the card at the original index whether or not the
		// challenger was also right.
		defenderTL.InsertAt(s.pending.ProposedIndex, card)
		result.WinnerID = s.challenge.DefenderID
	case challengerCorrect:
		s.timelines[s.challenge.ChallengerID].InsertChronological(card)
		result.WinnerID = s.challenge.ChallengerID
	default:
		// Both wrong: the card goes to nobody.
	}

	s.challenge.ChallengerProposedIndex = adjusted
	s.challenge.Resolved = true
	s.challenge.Result = result
	s.pending.Phase = PlacementResolved
	s.renormalizeScores()
	s.phase = PhaseChallengeResolved

	return nil
}

// Continue acknowledges a reveal or challenge resolution and advances the
// turn. Any seated player may send it, so a vanished active player cannot
// stall the room; the coordinator may also synthesize it after a deadline.
func (s *State) Continue(playerID string) error {
	if s.phase != PhaseReveal && s.phase != PhaseChallengeResolved {
		return ErrInvalidPhase
	}
	if s.player(playerID) == nil {
		return ErrUnknownPlayer
	}

	s.advanceTurn()

	return nil
}

// advanceTurn retires the just-played card, rotates the active player, and
// runs end-of-round win evaluation. Deck exhaustion ends the game on the spot
// with the current leader, overriding the configured threshold.
func (s *State) advanceTurn() {
	s.pending = nil
	s.challenge = nil
	s.lastGuess = nil
	s.passed = make(map[string]bool)

	hasNext := s.deck.Advance()

	wrapped := false
	if s.extraTurn {
		s.extraTurn = false
	} else {
		s.current = (s.current + 1) % len(s.players)
		wrapped = s.current == 0
	}

	s.renormalizeScores()

	if !hasNext {
		s.endByExhaustion()
		return
	}

	if wrapped {
		if w := s.roundLeader(); w != nil {
			s.winner = w
			s.phase = PhaseGameOver
			return
		}
	}

	s.phase = PhasePlayerTurn
}

// roundLeader returns the winner if a single player sits alone at or above
// the target score, nil otherwise. Only called when the turn order has
// wrapped; a tie at the target keeps the game going.
func (s *State) roundLeader() *Player {
	var leader *Player
	tied := false
	for _, p := range s.players {
		switch {
		case leader == nil || p.Score > leader.Score:
			leader = p
			tied = false
		case p.Score == leader.Score:
			tied = true
		}
	}
	if leader == nil || leader.Score < s.winCondition || tied {
		return nil
	}
	return leader
}

// endByExhaustion declares the highest scorer the winner, first in table
// order breaking ties.
func (s *State) endByExhaustion() {
	best := s.players[0]
	for _, p := range s.players[1:] {
		if p.Score > best.Score {
			best = p
		}
	}
	s.winner = best
	s.phase = PhaseGameOver
}

package game

// TokenAction names a paid or one-shot token effect.
type TokenAction string

const (
	// ActionSkipSong swaps the current card for the next one without
	// advancing the turn.
	ActionSkipSong TokenAction = "skip_song"
	// ActionExtraTurn suppresses the next turn rotation: the active player
	// goes again.
	ActionExtraTurn TokenAction = "extra_turn"
	// ActionStealToken moves one token from the target to the actor.
	ActionStealToken TokenAction = "steal_token"
	// ActionBonusToken grants the actor one token.
	ActionBonusToken TokenAction = "bonus_token"
	// ActionSkipChallenge arms immunity against the next challenge directed
	// at the actor.
	ActionSkipChallenge TokenAction = "skip_challenge"
	// ActionDoublePoints doubles the payout of the actor's next fully
	// correct guess.
	ActionDoublePoints TokenAction = "double_points"
)

// tokenCost is what each action spends. The one-shot effect cards are gated
// on holding tokens but only skip-song is a paid action; bonus-token in
// particular would cancel itself out if it also charged one.
var tokenCost = map[TokenAction]int{
	ActionSkipSong:      1,
	ActionExtraTurn:     0,
	ActionStealToken:    0,
	ActionBonusToken:    0,
	ActionSkipChallenge: 0,
	ActionDoublePoints:  0,
}

// UseTokenAction applies a token action for any player holding at least one
// token, regardless of whose turn it is. Skip-song always applies to the
// current card, whoever triggers it, matching the permissive original.
func (s *State) UseTokenAction(playerID string, action TokenAction, targetID string) error {
	if s.phase == PhaseGameOver {
		return ErrInvalidPhase
	}
	p := s.player(playerID)
	if p == nil {
		return ErrUnknownPlayer
	}
	cost, known := tokenCost[action]
	if !known {
		return ErrBadAction
	}
	if p.Tokens < 1 || p.Tokens < cost {
		return ErrInsufficientTokens
	}

	switch action {
	case ActionSkipSong:
		// Only sensible while the active player is still looking at the
		// card; once a placement is pending the card is in play.
		if s.phase != PhasePlayerTurn {
			return ErrInvalidPhase
		}
		if !s.deck.Skip() {
			p.Tokens -= cost
			s.endByExhaustion()
			return nil
		}
	case ActionExtraTurn:
		s.extraTurn = true
	case ActionStealToken:
		target := s.player(targetID)
		if target == nil {
			return ErrUnknownPlayer
		}
		// No-op when the target has nothing to take.
		if target.Tokens > 0 {
			target.Tokens--
			p.Tokens++
		}
	case ActionBonusToken:
		p.Tokens++
	case ActionSkipChallenge:
		p.SkipNextChallenge = true
	case ActionDoublePoints:
		p.DoublePointsArmed = true
	}

	p.Tokens -= cost

	// Token movement can change who is eligible in an open challenge window;
	// re-derive closure so the last holdout losing its tokens cannot strand
	// the round.
	if s.phase == PhaseChallengeWindow {
		s.closeWindowIfAllPassed()
	}

	return nil
}

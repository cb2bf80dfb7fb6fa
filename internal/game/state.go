package game

import "fmt"

// Phase is the lifecycle stage of a round within a game.
type Phase string

const (
	// PhasePlayerTurn waits for the active player to propose a placement.
	PhasePlayerTurn Phase = "player-turn"
	// PhaseSongGuess waits for the active player to guess title/artist or skip.
	PhaseSongGuess Phase = "song-guess"
	// PhaseChallengeWindow lets other token-holders pass or dispute the placement.
	PhaseChallengeWindow Phase = "challenge-window"
	// PhaseReveal shows the outcome of an unchallenged placement.
	PhaseReveal Phase = "reveal"
	// PhaseChallenge waits for the challenger's alternative placement.
	PhaseChallenge Phase = "challenge"
	// PhaseChallengeResolved shows the outcome of a challenge.
	PhaseChallengeResolved Phase = "challenge-resolved"
	// PhaseGameOver is terminal.
	PhaseGameOver Phase = "game-over"
)

// Player is one seat at the table. ID is the stable, server-issued identity;
// transport ids never reach this package, so reconnects keep timeline and
// score association for free.
type Player struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	IsCreator         bool   `json:"is_creator"`
	Tokens            int    `json:"tokens"`
	BonusTokens       int    `json:"bonus_tokens"`
	Score             int    `json:"score"`
	DoublePointsArmed bool   `json:"double_points_armed"`
	SkipNextChallenge bool   `json:"skip_next_challenge"`
}

// PlacementPhase tracks a pending placement through its life.
type PlacementPhase string

const (
	PlacementPlaced     PlacementPhase = "placed"
	PlacementChallenged PlacementPhase = "challenged"
	PlacementResolved   PlacementPhase = "resolved"
)

// PendingPlacement is a proposed, not-yet-committed insertion. The committed
// timeline is untouched until reveal or challenge resolution; clients only
// ever see the card spliced in through the display projection.
type PendingPlacement struct {
	CardID        string         `json:"card_id"`
	ProposedIndex int            `json:"proposed_index"`
	ByPlayerID    string         `json:"by_player_id"`
	Correct       bool           `json:"correct"`
	Phase         PlacementPhase `json:"phase"`
}

// ChallengeResult records how a dispute came out.
type ChallengeResult struct {
	ChallengerCorrect bool   `json:"challenger_correct"`
	DefenderCorrect   bool   `json:"defender_correct"`
	WinnerID          string `json:"winner_id,omitempty"`
}

// Challenge is the dispute over a just-placed card.
type Challenge struct {
	ChallengerID            string           `json:"challenger_id"`
	DefenderID              string           `json:"defender_id"`
	CardID                  string           `json:"card_id"`
	DefenderProposedIndex   int              `json:"defender_proposed_index"`
	ChallengerProposedIndex int              `json:"challenger_proposed_index"`
	Resolved                bool             `json:"resolved"`
	Result                  *ChallengeResult `json:"result,omitempty"`
}

// GuessOutcome is the feedback from the most recent song guess.
type GuessOutcome struct {
	PlayerID      string `json:"player_id"`
	TitleCorrect  bool   `json:"title_correct"`
	ArtistCorrect bool   `json:"artist_correct"`
	TokensAwarded int    `json:"tokens_awarded"`
	Skipped       bool   `json:"skipped"`
}

// Seed describes a seat when a game starts.
type Seed struct {
	ID        string
	Name      string
	IsCreator bool
}

const (
	// DefaultWinCondition is the score target when none is configured.
	DefaultWinCondition = 10
	// MinWinCondition and MaxWinCondition clamp the configurable target.
	MinWinCondition = 1
	MaxWinCondition = 50

	startingTokens = 2
)

// State is the authoritative per-room game state. It is owned by a single
// hub goroutine; none of its methods are safe for concurrent use.
type State struct {
	deck      *Deck
	timelines map[string]*Timeline
	players   []*Player
	turnOrder []string
	current   int

	phase     Phase
	pending   *PendingPlacement
	challenge *Challenge
	lastGuess *GuessOutcome

	winCondition int
	winner       *Player

	// passed tracks challenge-window responses by stable player id, so a
	// duplicate pass is a no-op rather than a second vote.
	passed map[string]bool

	// extraTurn suppresses the next player-index advance when set.
	extraTurn bool

	// EnforceChallengeImmunity gates whether the skip-challenge flag is
	// consulted when a challenge is initiated. The flag's plumbing always
	// runs; consulting it is kept optional because the behavior it guards
	// was never reachable in the original game.
	EnforceChallengeImmunity bool
}

// NewState starts a game: one distinct starting card is dealt from the front
// of the candidate list into each player's timeline, and the remainder forms
// the shared deck. The candidate list is expected to be pre-shuffled and
// deduplicated by the caller.
func NewState(seats []Seed, candidates []Track, winCondition int) (*State, error) {
	if len(seats) < 2 {
		return nil, fmt.Errorf("need at least 2 players, got %d", len(seats))
	}
	if winCondition < MinWinCondition {
		winCondition = MinWinCondition
	}
	if winCondition > MaxWinCondition {
		winCondition = MaxWinCondition
	}

	deduped := dedupeTracks(candidates)
	if len(deduped) <= len(seats) {
		return nil, fmt.Errorf("need more than %d candidate tracks, got %d", len(seats), len(deduped))
	}

	s := &State{
		timelines:    make(map[string]*Timeline, len(seats)),
		players:      make([]*Player, 0, len(seats)),
		turnOrder:    make([]string, 0, len(seats)),
		phase:        PhasePlayerTurn,
		winCondition: winCondition,
		passed:       make(map[string]bool),
	}

	for i, seat := range seats {
		if seat.ID == "" {
			return nil, fmt.Errorf("seat %d has no player id", i)
		}
		if _, dup := s.timelines[seat.ID]; dup {
			return nil, fmt.Errorf("duplicate player id %q", seat.ID)
		}
		p := &Player{
			ID:        seat.ID,
			Name:      seat.Name,
			IsCreator: seat.IsCreator,
			Tokens:    startingTokens,
		}
		tl := &Timeline{}
		tl.InsertChronological(deduped[i])
		s.players = append(s.players, p)
		s.turnOrder = append(s.turnOrder, p.ID)
		s.timelines[p.ID] = tl
	}

	s.deck = NewDeck(deduped[len(seats):])
	s.renormalizeScores()

	return s, nil
}

func dedupeTracks(tracks []Track) []Track {
	seen := make(map[string]bool, len(tracks))
	out := make([]Track, 0, len(tracks))
	for _, t := range tracks {
		if t.ID == "" || seen[t.ID] {
			continue
		}
		seen[t.ID] = true
		out = append(out, t)
	}
	return out
}

// Phase returns the current phase.
func (s *State) Phase() Phase {
	return s.phase
}

// Winner returns the winning player, or nil before game over.
func (s *State) Winner() *Player {
	return s.winner
}

// CurrentPlayer returns the player whose turn it is.
func (s *State) CurrentPlayer() *Player {
	return s.players[s.current]
}

// CurrentCard returns the card under the deck cursor.
func (s *State) CurrentCard() (Track, bool) {
	return s.deck.Current()
}

// Timeline returns the committed timeline for a player, or nil if unknown.
func (s *State) Timeline(playerID string) *Timeline {
	return s.timelines[playerID]
}

// Players returns the seats in table order.
func (s *State) Players() []*Player {
	return s.players
}

func (s *State) player(id string) *Player {
	for _, p := range s.players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// renormalizeScores recomputes every score from committed timeline length.
// Scores are derived, never incremented, so they cannot drift.
func (s *State) renormalizeScores() {
	for _, p := range s.players {
		p.Score = s.timelines[p.ID].Len()
	}
}

package game

import (
	"errors"
	"testing"
)

// toChallengeWindow walks p1's turn up to the challenge window: propose the
// current card at index, then skip the guess.
func toChallengeWindow(t *testing.T, s *State, index int) {
	t.Helper()
	if err := s.ProposePlacement("p1", index); err != nil {
		t.Fatalf("propose: %v", err)
	}
	if err := s.SkipGuess("p1"); err != nil {
		t.Fatalf("skip guess: %v", err)
	}
	if s.Phase() != PhaseChallengeWindow {
		t.Fatalf("phase = %s, want %s", s.Phase(), PhaseChallengeWindow)
	}
}

func TestChallengeDefenderCorrectKeepsCard(t *testing.T) {
	// Defender placed the 1990 card correctly at index 1 of [1980]. The
	// challenger's index 0 is wrong; the card stays where it was and the
	// spent token is not refunded.
	s := testState(t, 10, []int{1980, 1985}, []int{1990, 2005})

	toChallengeWindow(t, s, 1)

	if err := s.InitiateChallenge("p2"); err != nil {
		t.Fatalf("initiate: %v", err)
	}
	if got := s.player("p2").Tokens; got != startingTokens-1 {
		t.Fatalf("challenger tokens = %d, want %d", got, startingTokens-1)
	}
	if s.Phase() != PhaseChallenge {
		t.Fatalf("phase = %s, want %s", s.Phase(), PhaseChallenge)
	}

	if err := s.SubmitChallengePlacement("p2", 0); err != nil {
		t.Fatalf("submit: %v", err)
	}

	if s.Phase() != PhaseChallengeResolved {
		t.Fatalf("phase = %s, want %s", s.Phase(), PhaseChallengeResolved)
	}

	got := years(s.Timeline("p1"))
	if len(got) != 2 || got[0] != 1980 || got[1] != 1990 {
		t.Fatalf("defender timeline = %v, want [1980 1990]", got)
	}
	if s.Timeline("p2").IndexOf("d0") != -1 {
		t.Error("card must not appear in the challenger's timeline")
	}
	if got := s.player("p2").Tokens; got != startingTokens-1 {
		t.Errorf("token was refunded: %d", got)
	}
	if res := s.challenge.Result; res == nil || res.WinnerID != "p1" {
		t.Fatalf("result = %+v, want defender win", res)
	}
	checkScores(t, s)

	if err := s.Continue("p2"); err != nil {
		t.Fatalf("continue: %v", err)
	}
	if s.CurrentPlayer().ID != "p2" {
		t.Error("turn should advance after challenge resolution")
	}
}

func TestChallengeChallengerWinsCard(t *testing.T) {
	// Defender placed the 1990 card at index 0 of [1980]: wrong. The
	// challenger proposes the slot after 1980 (display index 2, committed
	// index 1): right. The card moves to the challenger's own timeline.
	s := testState(t, 10, []int{1980, 1985}, []int{1990, 2005})

	toChallengeWindow(t, s, 0)

	if err := s.InitiateChallenge("p2"); err != nil {
		t.Fatalf("initiate: %v", err)
	}
	if err := s.SubmitChallengePlacement("p2", 2); err != nil {
		t.Fatalf("submit: %v", err)
	}

	if got := years(s.Timeline("p1")); len(got) != 1 || got[0] != 1980 {
		t.Fatalf("defender timeline = %v, want [1980]", got)
	}
	got := years(s.Timeline("p2"))
	if len(got) != 2 || got[0] != 1985 || got[1] != 1990 {
		t.Fatalf("challenger timeline = %v, want [1985 1990]", got)
	}
	if res := s.challenge.Result; res == nil || res.WinnerID != "p2" {
		t.Fatalf("result = %+v, want challenger win", res)
	}
	checkScores(t, s)
}

func TestChallengeBothCorrectFavorsDefender(t *testing.T) {
	// Defender placed correctly; challenger's alternative is also correct.
	// The incumbent keeps the card.
	s := testState(t, 10, []int{1980, 1985}, []int{1990, 2005})

	toChallengeWindow(t, s, 1)

	if err := s.InitiateChallenge("p2"); err != nil {
		t.Fatalf("initiate: %v", err)
	}
	// Display [1980, 1990*]; index 2 is after the card, committed index 1,
	// which also fits.
	if err := s.SubmitChallengePlacement("p2", 2); err != nil {
		t.Fatalf("submit: %v", err)
	}

	res := s.challenge.Result
	if res == nil || !res.ChallengerCorrect || !res.DefenderCorrect {
		t.Fatalf("result = %+v, want both correct", res)
	}
	if res.WinnerID != "p1" {
		t.Fatalf("winner = %s, want defender p1", res.WinnerID)
	}
	if s.Timeline("p1").IndexOf("d0") != 1 {
		t.Error("card should sit at the defender's original index")
	}
	if s.Timeline("p2").IndexOf("d0") != -1 {
		t.Error("card must not appear in the challenger's timeline")
	}
}

func TestChallengeBothWrongRemovesCard(t *testing.T) {
	// Defender placed the 1990 card at index 0 of [1980]: wrong. The
	// challenger's display index 1 maps to committed index 0: also wrong.
	// The card ends up in nobody's timeline.
	s := testState(t, 10, []int{1980, 1985}, []int{1990, 2005})

	toChallengeWindow(t, s, 0)

	if err := s.InitiateChallenge("p2"); err != nil {
		t.Fatalf("initiate: %v", err)
	}
	if err := s.SubmitChallengePlacement("p2", 1); err != nil {
		t.Fatalf("submit: %v", err)
	}

	res := s.challenge.Result
	if res == nil || res.ChallengerCorrect || res.DefenderCorrect {
		t.Fatalf("result = %+v, want both wrong", res)
	}
	if res.WinnerID != "" {
		t.Fatalf("winner = %q, want none", res.WinnerID)
	}
	for _, p := range s.Players() {
		if s.Timeline(p.ID).IndexOf("d0") != -1 {
			t.Fatalf("card d0 found in %s's timeline after both-wrong outcome", p.ID)
		}
	}
	checkScores(t, s)
}

func TestChallengeIndexAdjustment(t *testing.T) {
	// The challenger's raw index is shifted down by one when at or after the
	// defender's card position, because the client shows the card already
	// inserted.
	tests := []struct {
		name         string
		defenderIdx  int
		rawIdx       int
		wantAdjusted int
	}{
		{"before the card", 1, 0, 0},
		{"right after the card", 1, 2, 1},
		{"at the card", 1, 1, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := testState(t, 10, []int{1980, 1985}, []int{1990, 2005})

			toChallengeWindow(t, s, tt.defenderIdx)
			if err := s.InitiateChallenge("p2"); err != nil {
				t.Fatalf("initiate: %v", err)
			}
			if err := s.SubmitChallengePlacement("p2", tt.rawIdx); err != nil {
				t.Fatalf("submit: %v", err)
			}
			if got := s.challenge.ChallengerProposedIndex; got != tt.wantAdjusted {
				t.Errorf("adjusted index = %d, want %d", got, tt.wantAdjusted)
			}
		})
	}
}

func TestChallengeOnlyChallengerMaySubmit(t *testing.T) {
	s := testState(t, 10, []int{1980, 1985}, []int{1990, 2005})

	toChallengeWindow(t, s, 1)
	if err := s.InitiateChallenge("p2"); err != nil {
		t.Fatalf("initiate: %v", err)
	}

	if err := s.SubmitChallengePlacement("p1", 0); !errors.Is(err, ErrNotCurrentPlayer) {
		t.Errorf("err = %v, want ErrNotCurrentPlayer", err)
	}
}

func TestChallengeRequiresToken(t *testing.T) {
	s := testState(t, 10, []int{1980, 1985}, []int{1990, 2005})

	s.player("p2").Tokens = 0
	toChallengeWindow(t, s, 1)

	// With no tokens p2 is not even eligible, so the window has already
	// revealed by the time the challenge arrives.
	if err := s.InitiateChallenge("p2"); !errors.Is(err, ErrInvalidPhase) {
		t.Errorf("err = %v, want ErrInvalidPhase", err)
	}
}

func TestSkipChallengeFlagPlumbing(t *testing.T) {
	// The flag is always set by the token action; whether challenge
	// initiation consults it is switchable and off by default.
	s := testState(t, 10, []int{1980, 1985}, []int{1990, 2005})

	if err := s.UseTokenAction("p1", ActionSkipChallenge, ""); err != nil {
		t.Fatalf("skip challenge: %v", err)
	}
	if !s.player("p1").SkipNextChallenge {
		t.Fatal("flag not set")
	}

	toChallengeWindow(t, s, 1)
	if err := s.InitiateChallenge("p2"); err != nil {
		t.Fatalf("default behavior should allow the challenge: %v", err)
	}
	if !s.player("p1").SkipNextChallenge {
		t.Error("default behavior should leave the flag untouched")
	}
}

func TestSkipChallengeFlagEnforced(t *testing.T) {
	// An absorbed challenge is an accepted transition, not a rejection: the
	// immunity flag is spent and the placement reveals unchallenged.
	s := testState(t, 10, []int{1980, 1985}, []int{1990, 2005})
	s.EnforceChallengeImmunity = true

	if err := s.UseTokenAction("p1", ActionSkipChallenge, ""); err != nil {
		t.Fatalf("skip challenge: %v", err)
	}
	toChallengeWindow(t, s, 1)

	if err := s.InitiateChallenge("p2"); err != nil {
		t.Fatalf("absorbed challenge should be accepted: %v", err)
	}
	if s.Phase() != PhaseReveal {
		t.Fatalf("phase = %s, want %s", s.Phase(), PhaseReveal)
	}
	if s.player("p1").SkipNextChallenge {
		t.Error("immunity should be consumed by the absorbed challenge")
	}
	if got := s.player("p2").Tokens; got != startingTokens {
		t.Errorf("challenger tokens = %d, want %d (no spend on an absorbed challenge)", got, startingTokens)
	}
	if s.Timeline("p1").IndexOf("d0") != 1 {
		t.Error("the correct placement should commit on the immunity reveal")
	}
	checkScores(t, s)
}

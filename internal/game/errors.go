package game

import "errors"

// Rejected commands leave the state untouched; callers drop them without
// broadcasting. Deck exhaustion is deliberately absent here: it surfaces as a
// normal game-over, not an error.
var (
	ErrInvalidPhase       = errors.New("command not valid in current phase")
	ErrNotCurrentPlayer   = errors.New("actor lacks authority for this action")
	ErrUnknownPlayer      = errors.New("unknown player")
	ErrInsufficientTokens = errors.New("insufficient tokens")
	ErrBadIndex           = errors.New("placement index out of range")
	ErrBadAction          = errors.New("unknown token action")
)

package game

import "errors"

var (
	// ErrGameActive is returned when a start is requested while another game
	// (or a pending post-game reset) still owns the participant pool.
	ErrGameActive = errors.New("another game is active")
	// ErrNotEnoughPlayers is returned when a start is requested with fewer
	// than two active participants.
	ErrNotEnoughPlayers = errors.New("need at least two active participants")
	// ErrNoSession is returned by session-scoped operations when no session
	// of that game type exists.
	ErrNoSession = errors.New("no active session")
	// ErrNotHolder is returned when a pass comes from anyone but the current
	// token holder.
	ErrNotHolder = errors.New("sender does not hold the token")
	// ErrInvalidTarget is returned when a pass names an ordinal that is not an
	// active participant other than the holder.
	ErrInvalidTarget = errors.New("invalid pass target")
)

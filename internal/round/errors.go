package round

import (
	"errors"

	"github.com/openmohaa/match-server/internal/stats"
)

var (
	ErrAlreadyRunning = errors.New("a round is already running")
	ErrNoRound        = errors.New("no round has been created")
	ErrNotRunning     = errors.New("round is not running")
	ErrAlreadyPaused  = errors.New("round is already paused")
	ErrNotPaused      = errors.New("round is not paused")
	ErrInvalidFaction = errors.New("participant must be an attacker or defender")

	// ErrNotInRoster is shared with the aggregator so callers test one value.
	ErrNotInRoster = stats.ErrNotInRoster
)

package engine

import (
	"errors"

	"github.com/openmohaa/match-server/internal/identity"
	"github.com/openmohaa/match-server/internal/round"
	"github.com/openmohaa/match-server/internal/stats"
	"github.com/openmohaa/match-server/internal/vote"
)

var (
	ErrNotConnected     = errors.New("participant is not connected")
	ErrAlreadyConnected = errors.New("participant is already connected")
	ErrMapNotFound      = errors.New("no map matches the selector")
	ErrInvalidArgument  = errors.New("invalid command argument")
	ErrUnknownCommand   = errors.New("unknown command")
	ErrStopped          = errors.New("engine stopped")

	errNotCached = errors.New("record not cached")
)

// ErrorClass splits errors into those caused by a participant's own input or
// state and those caused by the server.
type ErrorClass int

const (
	ClassNone ErrorClass = iota
	// ClassActor errors are reported back to the participant; nothing changed.
	ClassActor
	// ClassOperational errors are logged and abort only the operation.
	ClassOperational
)

func (c ErrorClass) String() string {
	switch c {
	case ClassNone:
		return "ok"
	case ClassActor:
		return "rejected"
	default:
		return "operational"
	}
}

var actorErrors = []error{
	ErrNotConnected,
	ErrAlreadyConnected,
	ErrMapNotFound,
	ErrInvalidArgument,
	ErrUnknownCommand,
	identity.ErrInvalidIdentity,
	round.ErrAlreadyRunning,
	round.ErrNoRound,
	round.ErrNotRunning,
	round.ErrAlreadyPaused,
	round.ErrNotPaused,
	round.ErrInvalidFaction,
	stats.ErrNotInRoster,
	vote.ErrInvalidState,
	vote.ErrNotFound,
	vote.ErrAmbiguous,
	vote.ErrAlreadyVoted,
	vote.ErrMaxNominated,
}

// Classify returns the class of err.
func Classify(err error) ErrorClass {
	if err == nil {
		return ClassNone
	}
	for _, target := range actorErrors {
		if errors.Is(err, target) {
			return ClassActor
		}
	}
	return ClassOperational
}

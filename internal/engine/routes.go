package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/openmohaa/match-server/internal/models"
)

// Command is a named command as it arrives from a transport.
type Command struct {
	Actor string          `json:"actor"`
	Args  json.RawMessage `json:"args,omitempty"`
}

// Handler runs one named command.
type Handler func(ctx context.Context, cmd Command) (any, error)

type connectArgs struct {
	Name string `json:"name"`
}

type factionArgs struct {
	ID      string         `json:"id"`
	Faction models.Faction `json:"faction"`
}

type selectorArgs struct {
	Selector string `json:"selector"`
}

type pauseArgs struct {
	Pause bool `json:"pause"`
}

type participantArgs struct {
	ID string `json:"id"`
}

type deltaArgs struct {
	ID    string `json:"id"`
	Field string `json:"field"`
	Value any    `json:"value"`
}

type hitArgs struct {
	Attacker string  `json:"attacker"`
	Victim   string  `json:"victim"`
	Weapon   string  `json:"weapon"`
	Damage   float64 `json:"damage"`
}

type killArgs struct {
	Killer   string       `json:"killer"`
	Victim   string       `json:"victim"`
	Position *models.Vec3 `json:"position,omitempty"`
}

type snapshotArgs struct {
	ID    string         `json:"id"`
	Stats map[string]any `json:"stats"`
}

// Commands lists the registered command names.
func (e *Engine) Commands() []string {
	out := make([]string, 0, len(e.routes))
	for name := range e.routes {
		out = append(out, name)
	}
	return out
}

// Dispatch runs the named command.
func (e *Engine) Dispatch(ctx context.Context, name string, cmd Command) (any, error) {
	h, ok := e.routes[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, name)
	}
	return h(ctx, cmd)
}

func (e *Engine) buildRoutes() map[string]Handler {
	return map[string]Handler{
		"connect": func(ctx context.Context, cmd Command) (any, error) {
			var a connectArgs
			if err := decodeArgs(cmd, &a); err != nil {
				return nil, err
			}
			return e.Connect(ctx, cmd.Actor, a.Name)
		},
		"disconnect": func(ctx context.Context, cmd Command) (any, error) {
			return nil, e.Disconnect(ctx, cmd.Actor)
		},
		"chooseFaction": func(ctx context.Context, cmd Command) (any, error) {
			var a factionArgs
			if err := decodeArgs(cmd, &a); err != nil {
				return nil, err
			}
			return e.ChooseFaction(ctx, cmd.Actor, a.Faction)
		},
		"createSession": func(ctx context.Context, cmd Command) (any, error) {
			var a selectorArgs
			if err := decodeArgs(cmd, &a); err != nil {
				return nil, err
			}
			return e.CreateSession(ctx, cmd.Actor, a.Selector)
		},
		"startSession": func(ctx context.Context, cmd Command) (any, error) {
			return e.StartSession(ctx, cmd.Actor)
		},
		"pauseSession": func(ctx context.Context, cmd Command) (any, error) {
			var a pauseArgs
			if err := decodeArgs(cmd, &a); err != nil {
				return nil, err
			}
			return e.PauseSession(ctx, cmd.Actor, a.Pause)
		},
		"endSession": func(ctx context.Context, cmd Command) (any, error) {
			return e.EndSession(ctx, cmd.Actor)
		},
		"addParticipant": func(ctx context.Context, cmd Command) (any, error) {
			var a participantArgs
			if err := decodeArgs(cmd, &a); err != nil {
				return nil, err
			}
			return e.AddParticipant(ctx, cmd.Actor, a.ID)
		},
		"removeParticipant": func(ctx context.Context, cmd Command) (any, error) {
			var a participantArgs
			if err := decodeArgs(cmd, &a); err != nil {
				return nil, err
			}
			return nil, e.RemoveParticipant(ctx, cmd.Actor, a.ID)
		},
		"swapFaction": func(ctx context.Context, cmd Command) (any, error) {
			var a factionArgs
			if err := decodeArgs(cmd, &a); err != nil {
				return nil, err
			}
			return nil, e.SwapFaction(ctx, cmd.Actor, a.ID, a.Faction)
		},
		"applyStatDelta": func(ctx context.Context, cmd Command) (any, error) {
			var a deltaArgs
			if err := decodeArgs(cmd, &a); err != nil {
				return nil, err
			}
			applied, err := e.ApplyStatDelta(ctx, cmd.Actor, a.ID, a.Field, a.Value)
			return map[string]bool{"applied": applied}, err
		},
		"recordHit": func(ctx context.Context, cmd Command) (any, error) {
			var a hitArgs
			if err := decodeArgs(cmd, &a); err != nil {
				return nil, err
			}
			return nil, e.RecordHit(ctx, cmd.Actor, a.Attacker, a.Victim, a.Weapon, a.Damage)
		},
		"recordKill": func(ctx context.Context, cmd Command) (any, error) {
			var a killArgs
			if err := decodeArgs(cmd, &a); err != nil {
				return nil, err
			}
			assists, err := e.RecordKill(ctx, cmd.Actor, a.Killer, a.Victim, a.Position)
			return map[string][]string{"assists": assists}, err
		},
		"mergeSnapshot": func(ctx context.Context, cmd Command) (any, error) {
			var a snapshotArgs
			if err := decodeArgs(cmd, &a); err != nil {
				return nil, err
			}
			fields, err := e.MergeSnapshot(ctx, cmd.Actor, a.ID, a.Stats)
			return map[string][]string{"applied": fields}, err
		},
		"nominateOrVote": func(ctx context.Context, cmd Command) (any, error) {
			var a selectorArgs
			if err := decodeArgs(cmd, &a); err != nil {
				return nil, err
			}
			return e.NominateOrVote(ctx, cmd.Actor, a.Selector)
		},
		"resolveVote": func(ctx context.Context, cmd Command) (any, error) {
			return e.ResolveVote(ctx, cmd.Actor)
		},
		"cancelVote": func(ctx context.Context, cmd Command) (any, error) {
			return nil, e.CancelVote(ctx, cmd.Actor)
		},
	}
}

// decodeArgs decodes numbers as json.Number so counters keep their precision
// until a stat validator sees them.
func decodeArgs(cmd Command, dest any) error {
	if len(cmd.Args) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(cmd.Args))
	dec.UseNumber()
	if err := dec.Decode(dest); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	return nil
}

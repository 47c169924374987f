package engine

import (
	"context"
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"

	"github.com/openmohaa/match-server/internal/identity"
	"github.com/openmohaa/match-server/internal/models"
	"github.com/openmohaa/match-server/internal/profile"
	"github.com/openmohaa/match-server/internal/round"
	"github.com/openmohaa/match-server/internal/stats"
	"github.com/openmohaa/match-server/internal/vote"
)

// VoteResolution is the outcome of resolving the map vote.
type VoteResolution struct {
	Map      models.MapInfo `json:"map"`
	Resolved bool           `json:"resolved"`
}

// Connect admits a participant as a spectator and loads their record in the
// background.
func (e *Engine) Connect(ctx context.Context, id, name string) (models.Participant, error) {
	return command(ctx, e, "connect", id, func() (models.Participant, error) {
		if !identity.Valid(id) {
			return models.Participant{}, identity.ErrInvalidIdentity
		}
		p := models.Participant{ID: id, Name: name, Faction: models.FactionSpectators, State: models.StateIdle}
		if e.machine.State() != models.RoundNone {
			p.State = models.StateSpectating
		}
		if !e.directory.Add(p, e.cfg.Maps.Lobby()) {
			return models.Participant{}, ErrAlreadyConnected
		}
		e.loadRecords([]models.Participant{p})
		return p, nil
	})
}

// Disconnect removes a participant from the round and the directory and
// saves their record.
func (e *Engine) Disconnect(ctx context.Context, id string) error {
	_, err := command(ctx, e, "disconnect", id, func() (struct{}, error) {
		if _, ok := e.directory.Get(id); !ok {
			return struct{}{}, ErrNotConnected
		}
		e.directory.Remove(id)
		if e.machine.Running() {
			if _, err := e.machine.Locate(id); err == nil {
				if err := e.removeFromRound(id); err != nil {
					return struct{}{}, err
				}
			}
		}
		if rec, ok := e.records.Get(id); ok {
			e.save(rec)
			e.records.Delete(id)
		}
		return struct{}{}, nil
	})
	return err
}

// ChooseFaction sets a participant's faction. During a running round a
// combat faction joins or swaps in the round and spectators leave it.
func (e *Engine) ChooseFaction(ctx context.Context, id string, f models.Faction) (models.Participant, error) {
	return command(ctx, e, "chooseFaction", id, func() (models.Participant, error) {
		p, ok := e.directory.Get(id)
		if !ok {
			return models.Participant{}, ErrNotConnected
		}
		if !f.Valid() {
			return models.Participant{}, fmt.Errorf("%w: faction %q", ErrInvalidArgument, f)
		}

		running := e.machine.Running()
		_, locateErr := e.machine.Locate(id)
		inRound := running && locateErr == nil

		switch {
		case f.Combat() && inRound:
			if err := e.machine.SwapFaction(id, f); err != nil {
				return models.Participant{}, err
			}
			e.notify(models.NotifyRosterChanged, "", e.snapshot())
			e.checkDecided()
		case f.Combat() && running:
			p.Faction = f
			if _, _, err := e.machine.AddParticipant(p); err != nil {
				return models.Participant{}, err
			}
			e.directory.SetFaction(id, f)
			e.loadRecords([]models.Participant{p})
			e.notify(models.NotifyRosterChanged, "", e.snapshot())
		case f.Combat():
			e.directory.SetFaction(id, f)
		default:
			e.directory.SetFaction(id, f)
			if inRound {
				if err := e.removeFromRound(id); err != nil {
					return models.Participant{}, err
				}
			}
			if e.machine.Running() {
				e.directory.SetState(id, models.StateSpectating)
			} else if st, _ := e.directory.Get(id); st.State == models.StateSelecting {
				e.directory.SetState(id, models.StateIdle)
			}
		}
		p, _ = e.directory.Get(id)
		return p, nil
	})
}

// CreateSession prepares a round on the map matching selector with every
// connected combat participant. The round starts when the prepare delay runs
// out or on StartSession.
func (e *Engine) CreateSession(ctx context.Context, actor, selector string) (models.RoundSnapshot, error) {
	return command(ctx, e, "createSession", actor, func() (models.RoundSnapshot, error) {
		candidates := e.cfg.Maps.Resolve(selector)
		switch len(candidates) {
		case 0:
			return models.RoundSnapshot{}, ErrMapNotFound
		case 1:
		default:
			return models.RoundSnapshot{}, &vote.AmbiguousError{Selector: selector, Candidates: candidates}
		}
		if err := e.createSession(candidates[0]); err != nil {
			return models.RoundSnapshot{}, err
		}
		return e.snapshot(), nil
	})
}

// StartSession starts the prepared round now.
func (e *Engine) StartSession(ctx context.Context, actor string) (models.RoundSnapshot, error) {
	return command(ctx, e, "startSession", actor, func() (models.RoundSnapshot, error) {
		if err := e.startSession(); err != nil {
			return models.RoundSnapshot{}, err
		}
		return e.snapshot(), nil
	})
}

// PauseSession pauses (true) or resumes (false) the round clock.
func (e *Engine) PauseSession(ctx context.Context, actor string, pause bool) (models.RoundSnapshot, error) {
	return command(ctx, e, "pauseSession", actor, func() (models.RoundSnapshot, error) {
		if err := e.machine.TogglePause(pause); err != nil {
			return models.RoundSnapshot{}, err
		}
		t := models.NotifySessionResumed
		if pause {
			t = models.NotifySessionPaused
		}
		snap := e.snapshot()
		e.notify(t, "", snap)
		return snap, nil
	})
}

// EndSession ends the running round, or discards a round still preparing.
// The archive is nil for a discarded round.
func (e *Engine) EndSession(ctx context.Context, actor string) (*models.RoundArchive, error) {
	return command(ctx, e, "endSession", actor, func() (*models.RoundArchive, error) {
		if e.machine.State() == models.RoundPreparing {
			return nil, e.abortSession()
		}
		return e.finishRound("command")
	})
}

// AddParticipant joins a connected combat participant to the running round.
func (e *Engine) AddParticipant(ctx context.Context, actor, id string) (models.PlayerRoundStat, error) {
	return command(ctx, e, "addParticipant", actor, func() (models.PlayerRoundStat, error) {
		p, ok := e.directory.Get(id)
		if !ok {
			return models.PlayerRoundStat{}, ErrNotConnected
		}
		stat, reused, err := e.machine.AddParticipant(p)
		if err != nil {
			return models.PlayerRoundStat{}, err
		}
		if !reused {
			e.loadRecords([]models.Participant{p})
			e.notify(models.NotifyRosterChanged, "", e.snapshot())
		}
		return stat, nil
	})
}

// RemoveParticipant drops a participant from the running round. Removing the
// last alive member of a faction ends the round.
func (e *Engine) RemoveParticipant(ctx context.Context, actor, id string) error {
	_, err := command(ctx, e, "removeParticipant", actor, func() (struct{}, error) {
		return struct{}{}, e.removeFromRound(id)
	})
	return err
}

// SwapFaction moves a participant to the other combat roster.
func (e *Engine) SwapFaction(ctx context.Context, actor, id string, f models.Faction) error {
	_, err := command(ctx, e, "swapFaction", actor, func() (struct{}, error) {
		if err := e.machine.SwapFaction(id, f); err != nil {
			return struct{}{}, err
		}
		e.notify(models.NotifyRosterChanged, "", e.snapshot())
		e.checkDecided()
		return struct{}{}, nil
	})
	return err
}

// ApplyStatDelta merges one field delta. A malformed value returns false
// without error.
func (e *Engine) ApplyStatDelta(ctx context.Context, actor, id, field string, value any) (bool, error) {
	return command(ctx, e, "applyStatDelta", actor, func() (bool, error) {
		if e.stats == nil {
			return false, round.ErrNotRunning
		}
		ok, err := e.stats.ApplyDelta(id, field, value)
		if err != nil {
			return false, err
		}
		deltasApplied.WithLabelValues(field, fmt.Sprint(ok)).Inc()
		if ok {
			e.statUpdated(id)
		}
		return ok, nil
	})
}

// RecordHit books damage between two rostered participants and remembers
// the attacker as an assist candidate for the victim.
func (e *Engine) RecordHit(ctx context.Context, actor, attacker, victim, weapon string, damage float64) error {
	_, err := command(ctx, e, "recordHit", actor, func() (struct{}, error) {
		if e.stats == nil {
			return struct{}{}, round.ErrNotRunning
		}
		if weapon == "" || damage <= 0 || math.IsInf(damage, 0) || math.IsNaN(damage) {
			return struct{}{}, fmt.Errorf("%w: damage %v with %q", ErrInvalidArgument, damage, weapon)
		}
		for _, id := range []string{attacker, victim} {
			if _, err := e.machine.Locate(id); err != nil {
				return struct{}{}, err
			}
		}
		hit := map[string]float64{weapon: damage}
		if _, err := e.stats.ApplyDelta(attacker, stats.FieldDamageDealt.String(), hit); err != nil {
			return struct{}{}, err
		}
		if _, err := e.stats.ApplyDelta(victim, stats.FieldDamageReceived.String(), hit); err != nil {
			return struct{}{}, err
		}
		if attacker != victim {
			e.stats.RecordContribution(victim, attacker)
		}
		e.statUpdated(attacker)
		if attacker != victim {
			e.statUpdated(victim)
		}
		return struct{}{}, nil
	})
	return err
}

// RecordKill books a death, the killer's kill and any assists, marks the
// victim dead and ends the round if that decided it. killer may be empty or
// equal to victim for deaths without a credited killer.
func (e *Engine) RecordKill(ctx context.Context, actor, killer, victim string, position *models.Vec3) ([]string, error) {
	return command(ctx, e, "recordKill", actor, func() ([]string, error) {
		if e.stats == nil {
			return nil, round.ErrNotRunning
		}
		if _, err := e.machine.Locate(victim); err != nil {
			return nil, err
		}
		if st, _ := e.machine.Lifecycle(victim); st != models.StateAlive {
			return nil, fmt.Errorf("%w: %s is not alive", ErrInvalidArgument, victim)
		}
		credited := killer != "" && killer != victim
		if credited {
			if _, err := e.machine.Locate(killer); err != nil {
				return nil, err
			}
			if _, err := e.stats.ApplyDelta(killer, stats.FieldKill.String(), 1); err != nil {
				return nil, err
			}
		}
		if _, err := e.stats.ApplyDelta(victim, stats.FieldDeath.String(), 1); err != nil {
			return nil, err
		}
		if position != nil {
			if _, err := e.stats.ApplyDelta(victim, stats.FieldLastDeathPosition.String(), *position); err != nil {
				return nil, err
			}
		}
		assists := e.stats.ConsumeAssists(victim, killer)
		if err := e.machine.MarkDead(victim); err != nil {
			return nil, err
		}

		if credited {
			e.statUpdated(killer)
		}
		e.statUpdated(victim)
		for _, id := range assists {
			e.statUpdated(id)
		}
		e.checkDecided()
		return assists, nil
	})
}

// MergeSnapshot folds a participant's public counter snapshot into the round
// record and returns the fields applied.
func (e *Engine) MergeSnapshot(ctx context.Context, actor, id string, partial map[string]any) ([]string, error) {
	return command(ctx, e, "mergeSnapshot", actor, func() ([]string, error) {
		if e.stats == nil {
			return nil, round.ErrNotRunning
		}
		fields, err := e.stats.MergeSnapshot(id, partial)
		names := make([]string, 0, len(fields))
		for _, f := range fields {
			names = append(names, f.String())
		}
		if len(fields) > 0 {
			e.statUpdated(id)
		}
		return names, err
	})
}

// NominateOrVote records a participant's vote for the map matching selector.
func (e *Engine) NominateOrVote(ctx context.Context, id, selector string) (models.Nomination, error) {
	return command(ctx, e, "nominateOrVote", id, func() (models.Nomination, error) {
		p, ok := e.directory.Get(id)
		if !ok {
			return models.Nomination{}, ErrNotConnected
		}
		if e.machine.State() != models.RoundNone {
			return models.Nomination{}, vote.ErrInvalidState
		}
		wasOpen := e.ballot.Open()
		n, err := e.ballot.Vote(p, selector)
		if err != nil {
			return models.Nomination{}, err
		}
		votesCast.Inc()
		t := models.NotifyVoteUpdated
		if !wasOpen {
			t = models.NotifyVoteStarted
		}
		e.notify(t, "", e.ballot.Nominations())
		return n, nil
	})
}

// ResolveVote resolves the vote now instead of waiting for its timer.
func (e *Engine) ResolveVote(ctx context.Context, actor string) (VoteResolution, error) {
	return command(ctx, e, "resolveVote", actor, func() (VoteResolution, error) {
		return e.resolveVote()
	})
}

// CancelVote discards every nomination.
func (e *Engine) CancelVote(ctx context.Context, actor string) error {
	_, err := command(ctx, e, "cancelVote", actor, func() (struct{}, error) {
		if e.ballot.Open() {
			e.ballot.Cancel()
			e.notify(models.NotifyVoteUpdated, "", e.ballot.Nominations())
		}
		return struct{}{}, nil
	})
	return err
}

// ReportPersistenceFailure surfaces a failed background save. Safe to call
// from any goroutine.
func (e *Engine) ReportPersistenceFailure(kind, id string, err error) {
	e.post(func() {
		e.logger.Errorw("Persistence failed", "kind", kind, "id", id, "error", err)
		e.notify(models.NotifyPersistenceFailed, id, map[string]string{
			"kind":  kind,
			"error": err.Error(),
		})
	})
}

func (e *Engine) createSession(m models.MapInfo) error {
	var roster []models.Participant
	for _, p := range e.directory.All() {
		if p.Faction.Combat() {
			roster = append(roster, p)
		}
	}
	if _, err := e.machine.Create(m, roster); err != nil {
		return err
	}
	e.ballot.Cancel()
	for _, p := range roster {
		e.directory.SetState(p.ID, models.StateSelecting)
	}
	e.loadRecords(roster)

	id := e.machine.RoundID()
	e.prepareTimer = e.cfg.Clock.AfterFunc(e.cfg.Settings.PrepareDuration, func() {
		e.post(func() { e.prepareElapsed(id) })
	})
	e.logger.Infow("Round prepared", "round", id, "map", m.Name, "players", len(roster))
	e.notify(models.NotifySessionPrepared, "", e.snapshot())
	return nil
}

func (e *Engine) startSession() error {
	if err := e.machine.Start(); err != nil {
		return err
	}
	e.disarmPrepare()
	e.ballot.Cancel()
	e.stats = stats.NewAggregator(e.machine, e.cfg.Clock, e.cfg.Settings.AssistWindow)

	// Reconcile with directory changes made while the round was preparing.
	snap := e.snapshot()
	changed := false
	for _, s := range append(snap.Attackers, snap.Defenders...) {
		p, ok := e.directory.Get(s.ID)
		switch {
		case !ok || !p.Faction.Combat():
			_, _ = e.machine.RemoveParticipant(s.ID)
			changed = true
		case p.Faction != s.Faction:
			_ = e.machine.SwapFaction(s.ID, p.Faction)
		}
	}
	var joined []models.Participant
	for _, p := range e.directory.All() {
		if !p.Faction.Combat() {
			e.directory.SetState(p.ID, models.StateSpectating)
			continue
		}
		if _, err := e.machine.Locate(p.ID); err != nil {
			if _, _, err := e.machine.AddParticipant(p); err == nil {
				joined = append(joined, p)
			}
		}
	}
	e.loadRecords(joined)

	roundsStarted.Inc()
	e.logger.Infow("Round started", "round", e.machine.RoundID())
	e.notify(models.NotifySessionStarted, "", e.snapshot())
	if changed {
		e.checkDecided()
	}
	return nil
}

func (e *Engine) abortSession() error {
	id := e.machine.RoundID()
	if err := e.machine.Abort(); err != nil {
		return err
	}
	e.disarmPrepare()
	for _, p := range e.directory.All() {
		if p.State == models.StateSelecting {
			e.directory.SetState(p.ID, models.StateIdle)
		}
	}
	e.logger.Infow("Round discarded before start", "round", id)
	e.publish(models.Notification{Type: models.NotifySessionEnded, RoundID: id})
	return nil
}

// finishRound ends the round and hands results to persistence.
func (e *Engine) finishRound(reason string) (*models.RoundArchive, error) {
	archive, err := e.machine.End()
	if err != nil {
		return nil, err
	}
	e.stats = nil

	lobby := e.cfg.Maps.Lobby()
	for _, p := range e.directory.All() {
		e.directory.SetState(p.ID, models.StateIdle)
		e.directory.Place(p.ID, lobby)
	}

	for _, s := range archive.Players {
		rec, err := e.records.Require(s.ID)
		if err == nil {
			err = rec.ApplyRoundResult(s, archive.Result.OutcomeFor(s.Faction), archive.EndedAt)
		}
		if err != nil {
			e.logger.Errorw("Round result not recorded", "round", archive.ID, "player", s.ID, "error", err)
			e.notify(models.NotifyPersistenceFailed, s.ID, map[string]string{"kind": "result", "error": err.Error()})
			continue
		}
		e.save(rec)
	}
	if e.cfg.Persistence != nil {
		if err := e.cfg.Persistence.EnqueueArchive(archive); err != nil {
			e.logger.Errorw("Round archive not queued", "round", archive.ID, "error", err)
			e.notify(models.NotifyPersistenceFailed, "", map[string]string{"kind": "archive", "error": err.Error()})
		}
	}

	winner := "draw"
	if !archive.Result.Draw {
		winner = string(archive.Result.Winner)
	}
	roundsEnded.WithLabelValues(winner, reason).Inc()
	e.logger.Infow("Round ended", "round", archive.ID, "winner", winner, "reason", reason, "players", len(archive.Players))
	e.publish(models.Notification{Type: models.NotifySessionEnded, RoundID: archive.ID, Payload: archive})
	return archive, nil
}

func (e *Engine) removeFromRound(id string) error {
	if _, err := e.machine.RemoveParticipant(id); err != nil {
		return err
	}
	if e.stats != nil {
		e.stats.Forget(id)
	}
	e.notify(models.NotifyRosterChanged, "", e.snapshot())
	e.checkDecided()
	return nil
}

// checkDecided ends the round once a faction has nobody alive.
func (e *Engine) checkDecided() {
	if !e.machine.Decided() {
		return
	}
	if _, err := e.finishRound("elimination"); err != nil {
		e.logger.Errorw("Failed to end decided round", "error", err)
	}
}

func (e *Engine) resolveVote() (VoteResolution, error) {
	if e.machine.State() != models.RoundNone {
		e.ballot.Cancel()
		return VoteResolution{}, round.ErrAlreadyRunning
	}
	m, ok := e.ballot.Resolve()
	if !ok {
		return VoteResolution{}, nil
	}
	e.logger.Infow("Vote resolved", "map", m.Name)
	e.notify(models.NotifyVoteResolved, "", m)
	if err := e.createSession(m); err != nil {
		return VoteResolution{Map: m, Resolved: true}, err
	}
	return VoteResolution{Map: m, Resolved: true}, nil
}

func (e *Engine) roundExpired(id string) {
	if id != e.machine.RoundID() || !e.machine.Running() {
		return
	}
	if _, err := e.finishRound("time"); err != nil {
		e.logger.Errorw("Failed to end expired round", "round", id, "error", err)
	}
}

func (e *Engine) voteExpired(gen uint64) {
	if gen != e.ballot.Generation() || !e.ballot.Open() {
		return
	}
	if _, err := e.resolveVote(); err != nil {
		e.logger.Warnw("Vote expired without a round", "error", err)
	}
}

func (e *Engine) prepareElapsed(id string) {
	if id != e.machine.RoundID() || e.machine.State() != models.RoundPreparing {
		return
	}
	e.prepareTimer = nil
	if err := e.startSession(); err != nil {
		e.logger.Errorw("Failed to start prepared round", "round", id, "error", err)
	}
}

func (e *Engine) disarmPrepare() {
	if e.prepareTimer != nil {
		e.prepareTimer.Stop()
		e.prepareTimer = nil
	}
}

func (e *Engine) statUpdated(id string) {
	if s, err := e.machine.Locate(id); err == nil {
		e.notify(models.NotifyStatUpdated, "", s.Clone())
	}
}

func (e *Engine) save(rec *profile.Record) {
	if e.cfg.Persistence == nil {
		return
	}
	doc, err := rec.Document()
	if err != nil {
		e.logger.Errorw("Profile not saved", "profile", rec.ID(), "error", err)
		return
	}
	if err := e.cfg.Persistence.EnqueueSave(rec.ID(), doc); err != nil {
		e.logger.Errorw("Profile save not queued", "profile", rec.ID(), "error", err)
		e.notify(models.NotifyPersistenceFailed, rec.ID(), map[string]string{"kind": "profile", "error": err.Error()})
	}
}

// loadRecords loads missing records off the loop, a few at a time, and posts
// the results back. Runs on the loop.
func (e *Engine) loadRecords(ps []models.Participant) {
	if e.cfg.Profiles == nil {
		return
	}
	var pending []models.Participant
	for _, p := range ps {
		if _, ok := e.records.Get(p.ID); ok || e.loading[p.ID] {
			continue
		}
		e.loading[p.ID] = true
		pending = append(pending, p)
	}
	if len(pending) == 0 {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), e.cfg.LoadTimeout)
		defer cancel()

		records := make([]*profile.Record, len(pending))
		errs := make([]error, len(pending))
		var g errgroup.Group
		g.SetLimit(8)
		for i, p := range pending {
			g.Go(func() error {
				records[i], errs[i] = e.cfg.Profiles.Load(ctx, p.ID, p.Name)
				return nil
			})
		}
		_ = g.Wait()

		e.post(func() {
			for i, p := range pending {
				delete(e.loading, p.ID)
				if errs[i] != nil {
					e.logger.Errorw("Profile load failed", "profile", p.ID, "error", errs[i])
					e.notify(models.NotifyPersistenceFailed, p.ID, map[string]string{"kind": "load", "error": errs[i].Error()})
					continue
				}
				if _, ok := e.directory.Get(p.ID); ok {
					e.records.Put(records[i])
				}
			}
		})
	}()
}

func (e *Engine) publish(n models.Notification) {
	if e.cfg.Notifier == nil {
		return
	}
	n.Timestamp = e.cfg.Clock.Now()
	e.cfg.Notifier.Publish(n)
}

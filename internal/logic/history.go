package logic

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"golang.org/x/sync/errgroup"

	"github.com/openmohaa/match-server/internal/models"
)

const defaultHistoryLimit = 50

// HistoryService answers lookups over archived rounds
type HistoryService struct {
	ch driver.Conn
}

func NewHistoryService(ch driver.Conn) *HistoryService {
	return &HistoryService{ch: ch}
}

// RecentRounds lists rounds that ended at or after since, newest first.
func (s *HistoryService) RecentRounds(ctx context.Context, since time.Time, limit int) ([]models.RoundSummary, error) {
	if limit <= 0 || limit > 500 {
		limit = defaultHistoryLimit
	}
	rows, err := s.ch.Query(ctx, `
		SELECT round_id, map_id, map_name, started_at, ended_at, winner, draw, players
		FROM matchd.rounds
		WHERE ended_at >= ?
		ORDER BY ended_at DESC
		LIMIT ?
	`, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query rounds: %w", err)
	}
	defer rows.Close()

	rounds := []models.RoundSummary{}
	for rows.Next() {
		var r models.RoundSummary
		var mapID uint32
		var winner string
		var players uint16
		if err := rows.Scan(&r.ID, &mapID, &r.Map.Name, &r.StartedAt, &r.EndedAt, &winner, &r.Draw, &players); err != nil {
			return nil, fmt.Errorf("failed to scan round: %w", err)
		}
		r.Map.ID = int(mapID)
		r.Winner = models.Faction(winner)
		r.Players = int(players)
		rounds = append(rounds, r)
	}
	return rounds, rows.Err()
}

// PlayerHistory totals one player's rounds since a point in time. The totals
// and favourite map queries run concurrently.
func (s *HistoryService) PlayerHistory(ctx context.Context, playerID string, since time.Time) (*models.PlayerHistory, error) {
	h := &models.PlayerHistory{PlayerID: playerID, Since: since}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var rounds, wins, losses, draws, kills, deaths, assists uint64
		err := s.ch.QueryRow(gctx, `
			SELECT
				count(),
				countIf(outcome = 'win'),
				countIf(outcome = 'loss'),
				countIf(outcome = 'draw'),
				sum(kills),
				sum(deaths),
				sum(assists)
			FROM matchd.round_players
			WHERE player_id = ? AND ended_at >= ?
		`, playerID, since).Scan(&rounds, &wins, &losses, &draws, &kills, &deaths, &assists)
		if err != nil {
			return fmt.Errorf("failed to query player totals: %w", err)
		}
		h.Rounds, h.Wins, h.Losses, h.Draws = int64(rounds), int64(wins), int64(losses), int64(draws)
		h.Kills, h.Deaths, h.Assists = int64(kills), int64(deaths), int64(assists)
		return nil
	})

	g.Go(func() error {
		var mapName string
		var plays uint64
		err := s.ch.QueryRow(gctx, `
			SELECT r.map_name, count() AS plays
			FROM matchd.round_players p
			INNER JOIN matchd.rounds r ON r.round_id = p.round_id
			WHERE p.player_id = ? AND p.ended_at >= ?
			GROUP BY r.map_name
			ORDER BY plays DESC, r.map_name ASC
			LIMIT 1
		`, playerID, since).Scan(&mapName, &plays)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to query favourite map: %w", err)
		}
		h.FavoriteMap = mapName
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return h, nil
}

package logic

import (
	"context"
	"database/sql"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openmohaa/match-server/internal/models"
)

// historyConn answers queries by matching a fragment of the SQL text.
type historyConn struct {
	driver.Conn
	mu      sync.Mutex
	rows    map[string][][]interface{}
	errs    map[string]error
	queries []string
}

func (c *historyConn) match(query string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queries = append(c.queries, query)
	for key := range c.rows {
		if strings.Contains(query, key) {
			return key
		}
	}
	for key := range c.errs {
		if strings.Contains(query, key) {
			return key
		}
	}
	return ""
}

func (c *historyConn) Query(ctx context.Context, query string, args ...interface{}) (driver.Rows, error) {
	key := c.match(query)
	if err := c.errs[key]; err != nil {
		return nil, err
	}
	return &historyRows{rows: c.rows[key]}, nil
}

func (c *historyConn) QueryRow(ctx context.Context, query string, args ...interface{}) driver.Row {
	key := c.match(query)
	if err := c.errs[key]; err != nil {
		return &historyRow{err: err}
	}
	rows := c.rows[key]
	if len(rows) == 0 {
		return &historyRow{err: sql.ErrNoRows}
	}
	return &historyRow{values: rows[0]}
}

type historyRows struct {
	driver.Rows
	rows [][]interface{}
	i    int
}

func (r *historyRows) Next() bool {
	r.i++
	return r.i <= len(r.rows)
}

func (r *historyRows) Scan(dest ...interface{}) error {
	for i, v := range r.rows[r.i-1] {
		assign(dest[i], v)
	}
	return nil
}

func (r *historyRows) Close() error { return nil }
func (r *historyRows) Err() error   { return nil }

type historyRow struct {
	driver.Row
	values []interface{}
	err    error
}

func (r *historyRow) Scan(dest ...interface{}) error {
	if r.err != nil {
		return r.err
	}
	for i, v := range r.values {
		assign(dest[i], v)
	}
	return nil
}

func (r *historyRow) Err() error { return r.err }

func assign(dest interface{}, val interface{}) {
	reflect.ValueOf(dest).Elem().Set(reflect.ValueOf(val))
}

func TestRecentRounds(t *testing.T) {
	ended := time.Date(2024, 5, 1, 21, 0, 0, 0, time.UTC)
	conn := &historyConn{rows: map[string][][]interface{}{
		"FROM matchd.rounds": {
			{"r2", uint32(5), "sand", ended.Add(-10 * time.Minute), ended, "defenders", false, uint16(8)},
			{"r1", uint32(3), "dust", ended.Add(-time.Hour), ended.Add(-50 * time.Minute), "", true, uint16(6)},
		},
	}}
	svc := NewHistoryService(conn)

	rounds, err := svc.RecentRounds(context.Background(), ended.Add(-7*24*time.Hour), 0)
	require.NoError(t, err)
	require.Len(t, rounds, 2)
	assert.Equal(t, "r2", rounds[0].ID)
	assert.Equal(t, models.MapInfo{ID: 5, Name: "sand"}, rounds[0].Map)
	assert.Equal(t, models.FactionDefenders, rounds[0].Winner)
	assert.Equal(t, 8, rounds[0].Players)
	assert.True(t, rounds[1].Draw)
}

func TestPlayerHistory(t *testing.T) {
	conn := &historyConn{rows: map[string][][]interface{}{
		"countIf": {{uint64(12), uint64(7), uint64(4), uint64(1), uint64(55), uint64(30), uint64(9)}},
		"GROUP BY r.map_name": {{"dust", uint64(8)}},
	}}
	svc := NewHistoryService(conn)

	h, err := svc.PlayerHistory(context.Background(), "aaaa-0001", time.Now().Add(-7*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(12), h.Rounds)
	assert.Equal(t, int64(7), h.Wins)
	assert.Equal(t, int64(55), h.Kills)
	assert.Equal(t, "dust", h.FavoriteMap)
	assert.Len(t, conn.queries, 2)
}

func TestPlayerHistory_NoRounds(t *testing.T) {
	conn := &historyConn{rows: map[string][][]interface{}{
		"countIf": {{uint64(0), uint64(0), uint64(0), uint64(0), uint64(0), uint64(0), uint64(0)}},
	}}
	svc := NewHistoryService(conn)

	h, err := svc.PlayerHistory(context.Background(), "aaaa-0001", time.Now())
	require.NoError(t, err)
	assert.Zero(t, h.Rounds)
	assert.Empty(t, h.FavoriteMap)
}

func TestPlayerHistory_QueryError(t *testing.T) {
	conn := &historyConn{
		rows: map[string][][]interface{}{},
		errs: map[string]error{"countIf": errors.New("clickhouse down")},
	}
	svc := NewHistoryService(conn)

	_, err := svc.PlayerHistory(context.Background(), "aaaa-0001", time.Now())
	assert.Error(t, err)
}

package worker

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/openmohaa/match-server/internal/profile"
)

// MockProfileSaver fails the first Failures calls per profile.
type MockProfileSaver struct {
	mu       sync.Mutex
	Failures int
	Err      error
	Calls    map[string]int
	Saved    map[string]profile.Document
}

func NewMockProfileSaver() *MockProfileSaver {
	return &MockProfileSaver{
		Calls: make(map[string]int),
		Saved: make(map[string]profile.Document),
	}
}

func (m *MockProfileSaver) SaveDocument(ctx context.Context, id string, doc profile.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls[id]++
	if m.Calls[id] <= m.Failures {
		if m.Err != nil {
			return m.Err
		}
		return errors.New("connection refused")
	}
	m.Saved[id] = doc
	return nil
}

func (m *MockProfileSaver) CallCount(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Calls[id]
}

func (m *MockProfileSaver) SavedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Saved)
}

// MockClickHouseConn implements driver.Conn for testing
type MockClickHouseConn struct {
	driver.Conn
	SendErr error
	// AppendErr fails every Append on the named table.
	AppendErr map[string]error

	mu   sync.Mutex
	Sent map[string][][]interface{}
}

func NewMockClickHouseConn() *MockClickHouseConn {
	return &MockClickHouseConn{Sent: make(map[string][][]interface{})}
}

func (m *MockClickHouseConn) PrepareBatch(ctx context.Context, query string, opts ...driver.PrepareBatchOption) (driver.Batch, error) {
	table := ""
	for _, f := range strings.Fields(query) {
		if strings.HasPrefix(f, "matchd.") {
			table = strings.TrimPrefix(f, "matchd.")
			break
		}
	}
	return &MockBatch{conn: m, table: table}, nil
}

// Rows returns the rows sent to a table.
func (m *MockClickHouseConn) Rows(table string) [][]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Sent[table]
}

type MockBatch struct {
	driver.Batch
	conn  *MockClickHouseConn
	table string
	rows  [][]interface{}
	sent  bool
}

func (m *MockBatch) IsSent() bool {
	return m.sent
}

func (m *MockBatch) Rows() int {
	return len(m.rows)
}

func (m *MockBatch) Append(v ...interface{}) error {
	if err := m.conn.AppendErr[m.table]; err != nil {
		return err
	}
	m.rows = append(m.rows, v)
	return nil
}

func (m *MockBatch) Send() error {
	if m.conn.SendErr != nil {
		return m.conn.SendErr
	}
	m.conn.mu.Lock()
	defer m.conn.mu.Unlock()
	m.conn.Sent[m.table] = append(m.conn.Sent[m.table], m.rows...)
	m.sent = true
	return nil
}

func (m *MockBatch) Abort() error {
	return nil
}

func (m *MockProfileSaver) Document(id string) profile.Document {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Saved[id]
}

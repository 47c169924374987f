package worker

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestPool_ConcurrentEnqueue(t *testing.T) {
	saver := NewMockProfileSaver()
	ch := NewMockClickHouseConn()

	pool := NewPool(PoolConfig{
		WorkerCount:   2,
		QueueSize:     1000,
		BatchSize:     10,
		FlushInterval: 10 * time.Millisecond,
		ClickHouse:    ch,
		Profiles:      saver,
		Logger:        zap.NewNop(),
	})
	pool.Start(context.Background())

	wg := sync.WaitGroup{}
	producers := 10
	jobsPerProducer := 40

	for i := 0; i < producers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < jobsPerProducer; j++ {
				if j%2 == 0 {
					_ = pool.EnqueueSave(fmt.Sprintf("player-%d-%d", i, j), doc(j))
				} else {
					_ = pool.EnqueueArchive(archive(fmt.Sprintf("round-%d-%d", i, j)))
				}
			}
		}(i)
	}

	wg.Wait()
	pool.Stop()

	if got, want := saver.SavedCount(), producers*jobsPerProducer/2; got != want {
		t.Errorf("saved %d profiles, want %d", got, want)
	}
	if got, want := len(ch.Rows("rounds")), producers*jobsPerProducer/2; got != want {
		t.Errorf("archived %d rounds, want %d", got, want)
	}
}

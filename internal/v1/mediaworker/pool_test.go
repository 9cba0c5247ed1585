package mediaworker

import (
	"context"
	"testing"

	"github.com/RoseWrightdev/media-orchestrator/internal/v1/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	return &config.Config{}
}

func TestNewPoolStartsAllWorkers(t *testing.T) {
	p, err := NewPool(context.Background(), testConfig(), 3)
	require.NoError(t, err)
	defer p.Close()

	assert.Equal(t, 3, p.ActiveWorkerCount())
	assert.Equal(t, 3, p.WantedWorkerCount())
}

func TestPoolGetNextRoundRobins(t *testing.T) {
	p, err := NewPool(context.Background(), testConfig(), 2)
	require.NoError(t, err)
	defer p.Close()

	seen := make(map[int64]int)
	for i := 0; i < 4; i++ {
		w, err := p.getNext()
		require.NoError(t, err)
		seen[w.PID()]++
	}
	assert.Len(t, seen, 2)
	for _, count := range seen {
		assert.Equal(t, 2, count)
	}
}

func TestPoolGetNextSkipsClosedWorkers(t *testing.T) {
	p, err := NewPool(context.Background(), testConfig(), 2)
	require.NoError(t, err)
	defer p.Close()

	p.mu.RLock()
	dead := p.workers[0]
	p.mu.RUnlock()
	dead.Close()

	for i := 0; i < 3; i++ {
		w, err := p.getNext()
		require.NoError(t, err)
		assert.NotEqual(t, dead.PID(), w.PID())
	}
}

func TestPoolCloseStopsAllWorkers(t *testing.T) {
	p, err := NewPool(context.Background(), testConfig(), 2)
	require.NoError(t, err)

	p.Close()
	assert.Equal(t, 0, p.ActiveWorkerCount())
}

package mediaworker

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/RoseWrightdev/media-orchestrator/internal/v1/config"
	"github.com/RoseWrightdev/media-orchestrator/internal/v1/metrics"
)

// Pool starts, supervises, and round-robins N worker shards, grounded on
// other_examples' mediaclient-pool.go (round-robin next-index, per-node
// health bookkeeping) generalized from an RPC-backed node pool to an
// in-process goroutine-shard pool.
type Pool struct {
	mu       sync.RWMutex
	workers  []*Worker
	nextIdx  atomic.Uint64
	wanted   int
	nextPID  atomic.Int64
	cfg      *config.Config
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewPool starts `count` workers sequentially (runtime.NumCPU() of them when
// count is 0 or less). If any fails to start, startup
// aborts — spec.md §4.1's fatal condition ("inability to spawn ≥1 worker at
// boot").
func NewPool(parent context.Context, cfg *config.Config, count int) (*Pool, error) {
	if count <= 0 {
		count = runtime.NumCPU()
	}
	ctx, cancel := context.WithCancel(parent)
	p := &Pool{
		wanted: count,
		cfg:    cfg,
		ctx:    ctx,
		cancel: cancel,
	}

	for i := 0; i < count; i++ {
		w, err := p.spawn()
		if err != nil {
			cancel()
			return nil, fmt.Errorf("mediaworker: failed to start worker %d/%d: %w", i+1, count, err)
		}
		p.workers = append(p.workers, w)
		p.supervise(i)
	}

	metrics.ActiveWorkers.Set(float64(len(p.workers)))
	slog.Info("media worker pool started", "count", count)
	return p, nil
}

func (p *Pool) spawn() (*Worker, error) {
	pid := p.nextPID.Add(1)
	return newWorker(pid, p.cfg)
}

// supervise watches the worker at index idx and, on unexpected death, logs,
// spawns a replacement, and reinserts it at the same index before the next
// dispatch — spec.md §4.1's crash/replace invariant.
func (p *Pool) supervise(idx int) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for {
			p.mu.RLock()
			w := p.workers[idx]
			p.mu.RUnlock()

			<-w.done // blocks until this worker's run loop exits

			select {
			case <-p.ctx.Done():
				return // pool shutting down, not an unexpected death
			default:
			}

			slog.Warn("mediaworker: worker died unexpectedly, respawning", "pid", w.PID(), "index", idx)
			metrics.WorkerRespawns.Inc()

			replacement, err := p.spawn()
			if err != nil {
				slog.Error("mediaworker: failed to respawn worker, pool degraded", "index", idx, "error", err)
				// Leave the dead handle in place; getNext() skips closed
				// workers, and the health check surfaces the deficit.
				return
			}

			p.mu.Lock()
			p.workers[idx] = replacement
			p.mu.Unlock()
			metrics.ActiveWorkers.Set(float64(p.ActiveWorkerCount()))
		}
	}()
}

// getNext returns the next worker in round-robin order, skipping closed
// workers, and never returns a closed worker — spec.md §4.2's guarantee.
func (p *Pool) getNext() (*Worker, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	n := len(p.workers)
	if n == 0 {
		return nil, fmt.Errorf("mediaworker: pool has no workers")
	}

	for attempt := 0; attempt < n; attempt++ {
		idx := int(p.nextIdx.Add(1)-1) % n
		w := p.workers[idx]
		if !w.Closed() {
			return w, nil
		}
	}
	return nil, fmt.Errorf("mediaworker: no live workers available")
}

// ActiveWorkerCount reports how many workers are currently live; satisfies
// health.WorkerPoolChecker.
func (p *Pool) ActiveWorkerCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	n := 0
	for _, w := range p.workers {
		if !w.Closed() {
			n++
		}
	}
	return n
}

// WantedWorkerCount reports the pool's configured size; satisfies
// health.WorkerPoolChecker.
func (p *Pool) WantedWorkerCount() int {
	return p.wanted
}

// Close shuts down every worker and stops supervision.
func (p *Pool) Close() {
	p.cancel()
	p.mu.Lock()
	for _, w := range p.workers {
		w.Close()
	}
	p.mu.Unlock()
	p.wg.Wait()
}

package engine

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Job is a unit of work run on the pool.
type Job func(ctx context.Context)

type WorkerPool struct {
	jobQueue    chan Job
	workerCount int
	logger      *zap.Logger
	ctx         context.Context
	wg          sync.WaitGroup
	stopOnce    sync.Once
}

func NewWorkerPool(workerCount int, bufferSize int, logger *zap.Logger) *WorkerPool {
	if workerCount < 1 {
		workerCount = 1
	}
	if bufferSize < 0 {
		bufferSize = 0
	}
	return &WorkerPool{
		jobQueue:    make(chan Job, bufferSize),
		workerCount: workerCount,
		logger:      logger,
	}
}

func (p *WorkerPool) Start(ctx context.Context) {
	p.ctx = ctx
	p.wg.Add(p.workerCount)
	for i := 0; i < p.workerCount; i++ {
		go p.worker(ctx, i)
	}
	p.logger.Debug("started worker pool", zap.Int("workers", p.workerCount))
}

// Submit blocks until the job is queued or ctx is done.
func (p *WorkerPool) Submit(ctx context.Context, job Job) error {
	select {
	case p.jobQueue <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TrySubmit queues the job only if there is room.
func (p *WorkerPool) TrySubmit(job Job) bool {
	select {
	case p.jobQueue <- job:
		return true
	default:
		p.logger.Warn("worker pool job queue full, dropping job")
		return false
	}
}

// Stop closes the queue and waits for the workers to drain it. Every queued
// job is called exactly once; after cancellation jobs receive the done
// context and must return without doing their work.
func (p *WorkerPool) Stop() {
	p.stopOnce.Do(func() { close(p.jobQueue) })
	p.wg.Wait()
	if p.ctx != nil {
		p.drain(p.ctx)
	}
}

func (p *WorkerPool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			p.drain(ctx)
			return
		case job, ok := <-p.jobQueue:
			if !ok {
				return
			}
			p.logger.Debug("worker picked up job", zap.Int("worker_id", id))
			job(ctx)
		}
	}
}

func (p *WorkerPool) drain(ctx context.Context) {
	for {
		select {
		case job, ok := <-p.jobQueue:
			if !ok {
				return
			}
			job(ctx)
		default:
			return
		}
	}
}

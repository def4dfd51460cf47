// Package worker runs the background pool that drains the ingestion
// queue and executes batches through the pipeline.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"semanticgallery/ingest"
	"semanticgallery/queue"
)

// dequeueWait bounds each blocking pop so workers notice Stop promptly.
const dequeueWait = 5 * time.Second

// Runner executes one dequeued ingestion task. *ingest.Ingestor wired
// with real collaborators satisfies it.
type Runner interface {
	Ingest(ctx context.Context, path string, opts ingest.Options) (ingest.Result, error)
}

// Pool is a fixed-size worker pool draining the ingestion queue. Workers
// share the read-only engine handle through the Runner; each task's
// file transactions remain independent.
type Pool struct {
	queue    *queue.Client
	runner   Runner
	workers  int
	log      *logrus.Logger
	stopOnce sync.Once
	stop     chan struct{}
	wg       sync.WaitGroup
}

// NewPool builds a pool of n workers; n < 1 falls back to 1.
func NewPool(q *queue.Client, runner Runner, n int, log *logrus.Logger) *Pool {
	if n < 1 {
		n = 1
	}
	return &Pool{
		queue:   q,
		runner:  runner,
		workers: n,
		log:     log,
		stop:    make(chan struct{}),
	}
}

// Start launches the workers. It returns immediately; use Stop to wind
// the pool down.
func (p *Pool) Start(ctx context.Context) {
	p.log.WithField("workers", p.workers).Info("starting ingestion workers")
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.drain(ctx, i)
	}
}

// Stop signals the workers and waits for in-flight tasks to finish.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
	p.wg.Wait()
	p.log.Info("ingestion workers stopped")
}

func (p *Pool) drain(ctx context.Context, id int) {
	defer p.wg.Done()
	log := p.log.WithField("worker", id)
	log.Debug("worker started")

	for {
		select {
		case <-p.stop:
			return
		case <-ctx.Done():
			return
		default:
		}

		task, err := p.queue.Dequeue(ctx, dequeueWait)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.WithError(err).Warn("dequeue failed")
			time.Sleep(time.Second)
			continue
		}
		if task == nil {
			continue
		}

		p.process(ctx, log, task)
	}
}

// process runs one task, tracking its status and storing the batch
// summary as the task result.
func (p *Pool) process(ctx context.Context, log *logrus.Entry, task *queue.IngestTask) {
	log = log.WithFields(logrus.Fields{"task": task.TaskID, "path": task.Path})
	log.Info("processing ingestion task")

	if err := p.queue.SetTaskStatus(ctx, task.TaskID, queue.StatusProcessing); err != nil {
		log.WithError(err).Warn("updating task status")
	}

	result, err := p.runner.Ingest(ctx, task.Path, ingest.Options{
		Recursive: task.Recursive,
		MaxDepth:  task.MaxDepth,
	})
	if err != nil {
		log.WithError(err).Warn("ingestion task failed")
		if serr := p.queue.SetTaskStatus(ctx, task.TaskID, queue.StatusFailed); serr != nil {
			log.WithError(serr).Warn("updating task status")
		}
		if rerr := p.queue.StoreTaskResult(ctx, task.TaskID, map[string]any{"error": err.Error()}); rerr != nil {
			log.WithError(rerr).Warn("storing task result")
		}
		return
	}

	if serr := p.queue.SetTaskStatus(ctx, task.TaskID, queue.StatusCompleted); serr != nil {
		log.WithError(serr).Warn("updating task status")
	}
	if rerr := p.queue.StoreTaskResult(ctx, task.TaskID, map[string]any{
		"total":     result.Total,
		"succeeded": result.Succeeded,
		"failed":    result.Failed,
	}); rerr != nil {
		log.WithError(rerr).Warn("storing task result")
	}
	log.WithFields(logrus.Fields{
		"succeeded": result.Succeeded,
		"failed":    result.Failed,
	}).Info("ingestion task complete")
}

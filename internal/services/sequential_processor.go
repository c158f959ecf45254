package services

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"auction-marketplace/internal/domain"
	"auction-marketplace/pkg/logger"
)

// ProcessorStats counts job outcomes since start.
type ProcessorStats struct {
	Applied uint64
	Dropped uint64
	Failed  uint64
}

// SequentialProcessor is the single consumer of the job queue. Jobs are
// applied one at a time in dequeue order.
type SequentialProcessor struct {
	queue       domain.JobQueue
	writer      *ListingWriter
	idleBackoff time.Duration
	jobTimeout  time.Duration
	log         logger.Logger

	applied atomic.Uint64
	dropped atomic.Uint64
	failed  atomic.Uint64
}

func NewSequentialProcessor(queue domain.JobQueue, writer *ListingWriter, log logger.Logger) *SequentialProcessor {
	return &SequentialProcessor{
		queue:       queue,
		writer:      writer,
		idleBackoff: time.Second,
		jobTimeout:  10 * time.Second,
		log:         log,
	}
}

// Run drains the queue until ctx is cancelled. A job already taken off the
// queue is finished under jobTimeout even if ctx is cancelled meanwhile.
func (p *SequentialProcessor) Run(ctx context.Context) error {
	p.log.Info("Sequential processor started")
	defer p.log.Info("Sequential processor stopped")

	for {
		job, err := p.queue.Dequeue(ctx)
		if err == nil {
			p.processDetached(ctx, job)
			if ctx.Err() != nil {
				return nil
			}
			continue
		}
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, domain.ErrMalformedJob) {
			p.dropped.Add(1)
			p.log.Warn("Discarding malformed job", "error", err)
			continue
		}
		p.log.Error("Failed to dequeue job", "error", err)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(p.idleBackoff):
		}
	}
}

func (p *SequentialProcessor) processDetached(ctx context.Context, job domain.Job) {
	jobCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.jobTimeout)
	defer cancel()
	p.Process(jobCtx, job)
}

// Process applies one job and reports the outcome. Rejections are dropped
// without retry; store failures have already been retried by the writer.
func (p *SequentialProcessor) Process(ctx context.Context, job domain.Job) error {
	var err error
	switch j := job.(type) {
	case *domain.BidJob:
		_, err = p.writer.ApplyBid(ctx, j)
	case *domain.AcceptBidJob:
		_, err = p.writer.ApplyAccept(ctx, j)
	case *domain.CloseListingJob:
		err = p.writer.ApplyClose(ctx, j)
	default:
		err = domain.ErrMalformedJob
	}

	switch {
	case err == nil:
		p.applied.Add(1)
		p.log.Debug("Job applied", "job_id", job.JobID(), "type", job.Type(), "product_id", job.Product())
	case domain.IsRejection(err):
		p.dropped.Add(1)
		p.log.Info("Job dropped", "job_id", job.JobID(), "type", job.Type(), "product_id", job.Product(), "reason", err.Error())
	default:
		p.failed.Add(1)
		p.log.Error("Job failed", "job_id", job.JobID(), "type", job.Type(), "product_id", job.Product(), "error", err)
	}
	return err
}

func (p *SequentialProcessor) Stats() ProcessorStats {
	return ProcessorStats{
		Applied: p.applied.Load(),
		Dropped: p.dropped.Load(),
		Failed:  p.failed.Load(),
	}
}

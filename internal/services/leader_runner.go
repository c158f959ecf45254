package services

import (
	"context"
	"time"

	"auction-marketplace/internal/domain"
	"auction-marketplace/pkg/logger"
)

// LeaderTask is work that may only run on the lease holder. It must return
// once ctx is cancelled.
type LeaderTask func(ctx context.Context) error

// RunWhileLeader campaigns for leadership every retryEvery and runs task for as
// long as the lease is held. Losing the lease cancels the task's context; the
// loop then goes back to campaigning. It returns when ctx is done.
func RunWhileLeader(ctx context.Context, election domain.LeaderElection, instanceID string,
	retryEvery time.Duration, task LeaderTask, log logger.Logger) {
	for {
		isLeader, lost, err := election.BecomeLeader(ctx, instanceID)
		switch {
		case err != nil:
			log.Warn("Leader election failed", "instance", instanceID, "error", err)
		case isLeader:
			log.Info("Acquired leadership", "instance", instanceID)
			runAsLeader(ctx, election, instanceID, lost, task, log)
		default:
			log.Debug("Another instance holds leadership", "instance", instanceID)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(retryEvery):
		}
	}
}

func runAsLeader(ctx context.Context, election domain.LeaderElection, instanceID string,
	lost <-chan struct{}, task LeaderTask, log logger.Logger) {
	leaderCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case <-lost:
			log.Warn("Leadership lost, stopping leader task", "instance", instanceID)
			cancel()
		case <-leaderCtx.Done():
		}
	}()

	if err := task(leaderCtx); err != nil && leaderCtx.Err() == nil {
		log.Error("Leader task failed", "instance", instanceID, "error", err)
	}
	cancel()

	releaseCtx, releaseCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer releaseCancel()
	if err := election.ReleaseLeadership(releaseCtx, instanceID); err != nil {
		log.Warn("Failed to release leadership", "instance", instanceID, "error", err)
	}
}

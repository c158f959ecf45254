package services

import (
	"context"
	"time"

	"auction-marketplace/internal/domain"
	"auction-marketplace/pkg/logger"
	"auction-marketplace/pkg/utils"

	"github.com/robfig/cron/v3"
)

const closeSweepBatch = 100

// OfferExpirer expires second-bidder offers nobody answered in time.
type OfferExpirer interface {
	ExpireStaleOffers(ctx context.Context) (int, error)
}

// MaintenanceScheduler runs the periodic sweeps of the bid worker: expired
// listings are routed through the queue as close_listing jobs and stale
// second-bidder offers are expired.
type MaintenanceScheduler struct {
	cron      *cron.Cron
	store     domain.ListingStore
	queue     domain.JobQueue
	offers    OfferExpirer
	closeSpec string
	offerSpec string
	now       func() time.Time
	log       logger.Logger
}

func NewMaintenanceScheduler(store domain.ListingStore, queue domain.JobQueue, offers OfferExpirer,
	closeSpec, offerSpec string, log logger.Logger) *MaintenanceScheduler {
	return &MaintenanceScheduler{
		cron:      cron.New(cron.WithSeconds()),
		store:     store,
		queue:     queue,
		offers:    offers,
		closeSpec: closeSpec,
		offerSpec: offerSpec,
		now:       time.Now,
		log:       log,
	}
}

func (s *MaintenanceScheduler) SetClock(now func() time.Time) {
	s.now = now
}

func (s *MaintenanceScheduler) Start(ctx context.Context) error {
	s.log.Info("Starting maintenance scheduler", "close_sweep", s.closeSpec, "offer_sweep", s.offerSpec)

	if _, err := s.cron.AddFunc(s.closeSpec, func() {
		s.SweepExpiredListings(ctx)
	}); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc(s.offerSpec, func() {
		s.SweepStaleOffers(ctx)
	}); err != nil {
		return err
	}

	s.cron.Start()
	return nil
}

// Stop halts the cron loop and waits for running sweeps to return.
func (s *MaintenanceScheduler) Stop() {
	s.log.Info("Stopping maintenance scheduler")
	<-s.cron.Stop().Done()
}

// SweepExpiredListings enqueues a close_listing job for every available
// listing past its end date that has no bids. It returns how many were queued.
func (s *MaintenanceScheduler) SweepExpiredListings(ctx context.Context) int {
	now := s.now()
	listings, err := s.store.ListExpiredListings(ctx, now, closeSweepBatch)
	if err != nil {
		s.log.Error("Failed to list expired listings", "error", err)
		return 0
	}

	queued := 0
	for _, product := range listings {
		bids, err := s.store.CountBids(ctx, product.ID)
		if err != nil {
			s.log.Error("Failed to count bids", "product_id", product.ID, "error", err)
			continue
		}
		if bids > 0 {
			// Waiting on the seller to accept.
			continue
		}

		job := &domain.CloseListingJob{
			ID:        utils.GenerateID("close"),
			ProductID: product.ID,
			Timestamp: now,
		}
		if err := s.queue.Enqueue(ctx, job); err != nil {
			s.log.Error("Failed to enqueue close job", "job_id", job.ID, "product_id", product.ID, "error", err)
			continue
		}
		queued++
	}

	if queued > 0 {
		s.log.Info("Queued expired listings for close", "count", queued)
	}
	return queued
}

func (s *MaintenanceScheduler) SweepStaleOffers(ctx context.Context) {
	if _, err := s.offers.ExpireStaleOffers(ctx); err != nil {
		s.log.Error("Failed to expire stale offers", "error", err)
	}
}

package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/vultisig/octra-wallet/contexthelper"
	"github.com/vultisig/octra-wallet/internal/tasks"
)

type WorkerService struct {
	refresher Refresher
	logger    *logrus.Logger
	sdClient  statsd.ClientInterface
}

// NewWorker creates the asynq handler side of post-submit refreshes.
func NewWorker(refresher Refresher, sdClient statsd.ClientInterface) *WorkerService {
	if sdClient == nil {
		sdClient = &statsd.NoOpClient{}
	}
	return &WorkerService{
		refresher: refresher,
		logger:    logrus.WithField("service", "worker").Logger,
		sdClient:  sdClient,
	}
}

func (s *WorkerService) incCounter(name string, tags []string) {
	if err := s.sdClient.Count(name, 1, tags, 1); err != nil {
		s.logger.Errorf("fail to count metric, err: %v", err)
	}
}

func (s *WorkerService) measureTime(name string, start time.Time, tags []string) {
	if err := s.sdClient.Timing(name, time.Since(start), tags, 1); err != nil {
		s.logger.Errorf("fail to measure time metric, err: %v", err)
	}
}

func (s *WorkerService) HandleAccountRefresh(ctx context.Context, t *asynq.Task) error {
	if err := contexthelper.CheckCancellation(ctx); err != nil {
		return err
	}
	defer s.measureTime("worker.account.refresh.latency", time.Now(), nil)
	var p tasks.AccountRefreshPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("json.Unmarshal failed: %v: %w", err, asynq.SkipRetry)
	}
	s.incCounter("worker.account.refresh", nil)
	s.logger.WithField("address", p.Address).Info("refreshing account")
	if err := s.refresher.RefreshAccount(ctx, p.Address); err != nil {
		s.incCounter("worker.account.refresh.error", nil)
		return fmt.Errorf("refresh of %s failed: %v: %w", p.Address, err, asynq.SkipRetry)
	}
	return nil
}

// Register mounts the handlers on mux.
func (s *WorkerService) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(tasks.TypeAccountRefresh, s.HandleAccountRefresh)
}

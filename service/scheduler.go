package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/vultisig/octra-wallet/contexthelper"
	"github.com/vultisig/octra-wallet/internal/tasks"
)

// RefreshScheduler arranges one delayed account re-read after a successful submission.
// It is a single shot, not a poll loop.
type RefreshScheduler interface {
	ScheduleRefresh(ctx context.Context, address string) error
}

// Refresher re-reads and stores the account snapshot of address.
type Refresher interface {
	RefreshAccount(ctx context.Context, address string) error
}

// QueueScheduler enqueues the refresh so any worker process can run it.
type QueueScheduler struct {
	client *asynq.Client
	delay  time.Duration
}

func NewQueueScheduler(client *asynq.Client, delay time.Duration) *QueueScheduler {
	return &QueueScheduler{client: client, delay: delay}
}

func (q *QueueScheduler) ScheduleRefresh(ctx context.Context, address string) error {
	task, err := tasks.NewAccountRefresh(address)
	if err != nil {
		return fmt.Errorf("fail to create task, err: %w", err)
	}
	_, err = q.client.EnqueueContext(ctx, task,
		asynq.ProcessIn(q.delay),
		asynq.MaxRetry(0),
		asynq.Timeout(time.Minute),
		asynq.Retention(10*time.Minute),
		asynq.Queue(tasks.QUEUE_NAME))
	if err != nil {
		return fmt.Errorf("fail to enqueue task, err: %w", err)
	}
	return nil
}

// TimerScheduler runs the refresh in process after the delay.
type TimerScheduler struct {
	refresher Refresher
	delay     time.Duration
	logger    *logrus.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

func NewTimerScheduler(refresher Refresher, delay time.Duration) *TimerScheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &TimerScheduler{
		refresher: refresher,
		delay:     delay,
		logger:    logrus.WithField("service", "timer_scheduler").Logger,
		ctx:       ctx,
		cancel:    cancel,
	}
}

func (t *TimerScheduler) ScheduleRefresh(_ context.Context, address string) error {
	if err := contexthelper.CheckCancellation(t.ctx); err != nil {
		return fmt.Errorf("scheduler stopped, err: %w", err)
	}
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		if err := contexthelper.Sleep(t.ctx, t.delay); err != nil {
			return
		}
		if err := t.refresher.RefreshAccount(t.ctx, address); err != nil {
			t.logger.WithError(err).WithField("address", address).Warn("account refresh failed")
		}
	}()
	return nil
}

// Stop cancels pending refreshes and waits for running ones.
func (t *TimerScheduler) Stop() {
	t.cancel()
	t.wg.Wait()
}

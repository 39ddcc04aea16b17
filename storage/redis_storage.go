package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/vultisig/octra-wallet/config"
	"github.com/vultisig/octra-wallet/contexthelper"
)

// ChangesChannel carries every write so that all walletd processes sharing the store observe it.
const ChangesChannel = "walletd:changes"

type RedisStorage struct {
	cfg    config.Config
	client *redis.Client
	pubsub *redis.PubSub
	subs   *Subscribers
	logger *logrus.Logger
	cancel context.CancelFunc
	done   chan struct{}
}

func NewRedisStorage(cfg config.Config) (*RedisStorage, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Host + ":" + cfg.Redis.Port,
		Username: cfg.Redis.User,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	status := client.Ping(context.Background())
	if status.Err() != nil {
		return nil, status.Err()
	}
	ctx, cancel := context.WithCancel(context.Background())
	pubsub := client.Subscribe(ctx, ChangesChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		cancel()
		_ = client.Close()
		return nil, fmt.Errorf("fail to subscribe to %s, err: %w", ChangesChannel, err)
	}
	r := &RedisStorage{
		cfg:    cfg,
		client: client,
		pubsub: pubsub,
		subs:   NewSubscribers(),
		logger: logrus.WithField("module", "redis_storage").Logger,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go r.dispatch(ctx)
	return r, nil
}

func (r *RedisStorage) dispatch(ctx context.Context) {
	defer close(r.done)
	ch := r.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var c Change
			if err := json.Unmarshal([]byte(msg.Payload), &c); err != nil {
				r.logger.WithError(err).Warn("dropping malformed change notification")
				continue
			}
			r.subs.Publish(c)
		}
	}
}

func (r *RedisStorage) Get(ctx context.Context, key string) (string, bool, error) {
	if contexthelper.CheckCancellation(ctx) != nil {
		return "", false, ctx.Err()
	}
	v, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("fail to get %s, err: %w", key, err)
	}
	return v, true, nil
}

func (r *RedisStorage) Set(ctx context.Context, key string, value string) error {
	if contexthelper.CheckCancellation(ctx) != nil {
		return ctx.Err()
	}
	old, err := r.client.GetSet(ctx, key, value).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("fail to set %s, err: %w", key, err)
	}
	return r.publish(ctx, Change{Key: key, OldValue: old, NewValue: value})
}

func (r *RedisStorage) Delete(ctx context.Context, key string) error {
	if contexthelper.CheckCancellation(ctx) != nil {
		return ctx.Err()
	}
	old, err := r.client.GetDel(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("fail to delete %s, err: %w", key, err)
	}
	return r.publish(ctx, Change{Key: key, OldValue: old, Deleted: true})
}

func (r *RedisStorage) publish(ctx context.Context, c Change) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("fail to serialize change, err: %w", err)
	}
	if err := r.client.Publish(ctx, ChangesChannel, payload).Err(); err != nil {
		return fmt.Errorf("fail to publish change for %s, err: %w", c.Key, err)
	}
	return nil
}

func (r *RedisStorage) OnChange(key string, fn func(Change)) func() {
	return r.subs.Add(key, fn)
}

func (r *RedisStorage) Close() error {
	r.cancel()
	err := r.pubsub.Close()
	<-r.done
	if cerr := r.client.Close(); cerr != nil {
		return cerr
	}
	return err
}

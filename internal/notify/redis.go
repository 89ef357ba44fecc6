// Package notify wakes idle rank workers over Redis pub/sub when keyword jobs are queued.
package notify

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// DefaultChannel carries keyword-queued announcements
const DefaultChannel = "rank:keywords:queued"

// Connect parses redisURL and verifies connectivity
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// Publisher announces queued jobs
type Publisher struct {
	rdb     *redis.Client
	channel string
}

// NewPublisher creates a publisher on channel, or DefaultChannel when empty
func NewPublisher(rdb *redis.Client, channel string) *Publisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Publisher{rdb: rdb, channel: channel}
}

// Notify publishes one announcement. Payload is the publish time in unix seconds.
func (p *Publisher) Notify(ctx context.Context) error {
	payload := strconv.FormatInt(time.Now().Unix(), 10)
	if err := p.rdb.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", p.channel, err)
	}
	return nil
}

// Subscriber turns announcements into a coalescing wake-up signal
type Subscriber struct {
	pubsub *redis.PubSub
	wake   chan struct{}
	done   chan struct{}
	once   sync.Once
}

// Subscribe listens on channel, or DefaultChannel when empty, until ctx ends or Close
// is called
func Subscribe(ctx context.Context, rdb *redis.Client, channel string) (*Subscriber, error) {
	if channel == "" {
		channel = DefaultChannel
	}

	pubsub := rdb.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	s := &Subscriber{
		pubsub: pubsub,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go s.listen(ctx, pubsub.Channel())

	logrus.WithField("channel", channel).Info("Subscribed to keyword announcements")
	return s, nil
}

func (s *Subscriber) listen(ctx context.Context, messages <-chan *redis.Message) {
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-messages:
			if !ok {
				return
			}
			signal(s.wake)
		}
	}
}

// Wake fires at most once per burst of announcements
func (s *Subscriber) Wake() <-chan struct{} {
	return s.wake
}

// Close stops listening and waits for the listener to exit
func (s *Subscriber) Close() error {
	var err error
	s.once.Do(func() {
		err = s.pubsub.Close()
		<-s.done
	})
	return err
}

// signal marks ch pending without blocking
func signal(ch chan<- struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

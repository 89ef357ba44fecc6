package notify

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestSignal_Coalesces(t *testing.T) {
	ch := make(chan struct{}, 1)
	signal(ch)
	signal(ch)
	signal(ch)

	assert.Len(t, ch, 1)
	<-ch
	assert.Len(t, ch, 0)
}

func TestConnect_InvalidURL(t *testing.T) {
	_, err := Connect(context.Background(), "not-a-redis-url")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse redis url")
}

func TestNewPublisher_DefaultChannel(t *testing.T) {
	p := NewPublisher(nil, "")
	assert.Equal(t, DefaultChannel, p.channel)

	p = NewPublisher(nil, "custom")
	assert.Equal(t, "custom", p.channel)
}

// Requires a reachable Redis, e.g. REDIS_URL=redis://localhost:6379/0
func TestPublishSubscribe(t *testing.T) {
	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		t.Skip("REDIS_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rdb, err := Connect(ctx, redisURL)
	require.NoError(t, err)
	defer func() {
		_ = rdb.Close() // Ignore error in test
	}()

	channel := "rank:test:" + time.Now().Format("150405.000000")
	sub, err := Subscribe(ctx, rdb, channel)
	require.NoError(t, err)
	defer func() {
		_ = sub.Close() // Ignore error in test
	}()

	pub := NewPublisher(rdb, channel)
	require.NoError(t, pub.Notify(ctx))
	require.NoError(t, pub.Notify(ctx))

	select {
	case <-sub.Wake():
	case <-ctx.Done():
		t.Fatal("no wake-up received")
	}
}

package observer

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	goredis "github.com/redis/go-redis/v9"
)

func TestRedisSinkPublishesEnvelope(t *testing.T) {
	mr := miniredis.RunT(t)

	sink, err := NewRedisSink(RedisConfig{URL: "redis://" + mr.Addr(), Timeout: time.Second})
	require.NoError(t, err)
	defer sink.Close()

	sub := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	defer sub.Close()
	ps := sub.Subscribe(context.Background(), DefaultChannel)
	defer ps.Close()
	_, err = ps.Receive(context.Background())
	require.NoError(t, err)

	require.NoError(t, sink.Publish(context.Background(), EventPunch, PunchEvent{EventID: 1, Bib: 7}))

	msg, err := ps.ReceiveMessage(context.Background())
	require.NoError(t, err)

	var env struct {
		Kind    EventKind `json:"type"`
		Payload PunchEvent `json:"payload"`
	}
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &env))
	assert.Equal(t, EventPunch, env.Kind)
	assert.Equal(t, 7, env.Payload.Bib)
}

func TestNewRedisSinkRequiresURL(t *testing.T) {
	_, err := NewRedisSink(RedisConfig{})
	assert.Error(t, err)
}

func TestNewRedisSinkRejectsNegativeRetries(t *testing.T) {
	mr := miniredis.RunT(t)
	_, err := NewRedisSink(RedisConfig{URL: "redis://" + mr.Addr(), Retries: -1})
	assert.Error(t, err)
}

package events

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudonix/voicerouter/internal/store"
)

func TestPublish_SendsEnvelopeOnTenantChannel(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	s := store.New(rdb, time.Second)

	sub := s.Subscribe(context.Background(), store.TenantEventsChannel("t1", string(ScopeCalls)))
	t.Cleanup(func() { _ = sub.Close() })
	_, err = sub.Receive(context.Background())
	require.NoError(t, err)

	p := New(s, nil)
	p.Publish(context.Background(), "t1", ScopeCalls, TypeCallCreated, map[string]string{"token": "tok-1"})

	msg, err := sub.ReceiveMessage(context.Background())
	require.NoError(t, err)
	assert.Contains(t, msg.Payload, `"type":"call.created"`)
	assert.Contains(t, msg.Payload, "tok-1")
}

func TestPublish_DoesNotPanicWhenStoreUnavailable(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	t.Cleanup(func() { _ = rdb.Close() })
	s := store.New(rdb, 50*time.Millisecond)

	p := New(s, nil)
	assert.NotPanics(t, func() {
		p.Publish(context.Background(), "t1", ScopeCalls, TypeCallCreated, nil)
	})
}

package memory

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/paylinks/pricechange/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishSubscribe(t *testing.T) {
	ps := NewPubSub(logger.NewNopLogger())
	defer ps.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	messages, err := ps.Subscribe(ctx, "price_change_notifications")
	require.NoError(t, err)

	require.NoError(t, ps.Publish(ctx, "price_change_notifications", message.NewMessage("msg_1", []byte(`{"event":"price_change_applied"}`))))

	select {
	case msg := <-messages:
		assert.Equal(t, "msg_1", msg.UUID)
		assert.JSONEq(t, `{"event":"price_change_applied"}`, string(msg.Payload))
		msg.Ack()
	case <-time.After(time.Second):
		t.Fatal("message was not delivered")
	}
}

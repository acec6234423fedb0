package internal

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubscriptionRegistry(t *testing.T) {
	assert := assert.New(t)

	newRegistry := func() *SubscriptionRegistry {
		r := NewSubscriptionRegistry()
		r.Subscribe(subscription{ProcessInstanceId: 1, ActivityInstanceId: 12, MessageName: "paid", CorrelationKey: "order-1"})
		r.Subscribe(subscription{ProcessInstanceId: 2, ActivityInstanceId: 21, MessageName: "paid", CorrelationKey: "order-2"})
		r.Subscribe(subscription{ProcessInstanceId: 1, ActivityInstanceId: 11, MessageName: "paid"})
		r.Subscribe(subscription{ProcessInstanceId: 1, ActivityInstanceId: 13, SignalName: "shutdown"})
		r.Subscribe(subscription{ProcessInstanceId: 2, ActivityInstanceId: 22, SignalName: "shutdown"})
		return r
	}

	t.Run("message subscriptions", func(t *testing.T) {
		r := newRegistry()
		assert.Equal(5, r.Len())

		subscriptions := r.MessageSubscriptions("paid", "")
		assert.Len(subscriptions, 3)
		assert.Equal(int64(11), subscriptions[0].ActivityInstanceId)
		assert.Equal(int64(12), subscriptions[1].ActivityInstanceId)
		assert.Equal(int64(21), subscriptions[2].ActivityInstanceId)

		subscriptions = r.MessageSubscriptions("paid", "order-2")
		assert.Len(subscriptions, 1)
		assert.Equal(int64(2), subscriptions[0].ProcessInstanceId)

		assert.Empty(r.MessageSubscriptions("paid", "order-3"))
		assert.Empty(r.MessageSubscriptions("shipped", ""))
	})

	t.Run("signal subscriptions", func(t *testing.T) {
		r := newRegistry()

		subscriptions := r.SignalSubscriptions("shutdown")
		assert.Len(subscriptions, 2)
		assert.Equal(int64(13), subscriptions[0].ActivityInstanceId)
		assert.Equal(int64(22), subscriptions[1].ActivityInstanceId)

		assert.Empty(r.SignalSubscriptions("paid"))
	})

	t.Run("ignores subscription without name", func(t *testing.T) {
		r := NewSubscriptionRegistry()
		r.Subscribe(subscription{ProcessInstanceId: 1, ActivityInstanceId: 1})
		assert.Equal(0, r.Len())
	})

	t.Run("unsubscribe", func(t *testing.T) {
		r := newRegistry()

		r.Unsubscribe(12)
		r.Unsubscribe(12) // idempotent
		r.Unsubscribe(99)

		assert.Equal(4, r.Len())
		assert.Len(r.MessageSubscriptions("paid", ""), 2)
		assert.Empty(r.MessageSubscriptions("paid", "order-1"))
	})

	t.Run("unsubscribe process instance", func(t *testing.T) {
		r := newRegistry()

		r.UnsubscribeProcessInstance(1)

		assert.Equal(2, r.Len())
		assert.Len(r.MessageSubscriptions("paid", ""), 1)
		assert.Len(r.SignalSubscriptions("shutdown"), 1)

		r.UnsubscribeProcessInstance(2)

		assert.Equal(0, r.Len())
		assert.Empty(r.messages)
		assert.Empty(r.signals)
		assert.Empty(r.byProcessInstance)
	})

	t.Run("concurrent access", func(t *testing.T) {
		r := NewSubscriptionRegistry()

		var wg sync.WaitGroup
		for i := range 50 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				id := int64(i + 1)
				r.Subscribe(subscription{ProcessInstanceId: id, ActivityInstanceId: id, SignalName: "tick"})
				r.SignalSubscriptions("tick")
			}()
		}
		wg.Wait()

		assert.Equal(50, r.Len())
		assert.Len(r.SignalSubscriptions("tick"), 50)
	})
}

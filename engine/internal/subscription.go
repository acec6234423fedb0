package internal

import (
	"cmp"
	"slices"
	"sync"
)

// subscription is held by an ACTIVE message or signal catch event.
type subscription struct {
	ProcessInstanceId  int64
	ActivityInstanceId int64

	ActivityId     string
	CorrelationKey string
	MessageName    string
	SignalName     string
}

// SubscriptionRegistry indexes the message and signal subscriptions of all running process instances.
//
// The registry is a cache: subscriptions are registered after the activity instance, holding it, has been written.
// On startup it is filled from the store.
type SubscriptionRegistry struct {
	mutex sync.RWMutex

	messages map[string]map[int64]subscription // message name -> activity instance ID -> subscription
	signals  map[string]map[int64]subscription // signal name -> activity instance ID -> subscription

	byActivityInstance map[int64]subscription
	byProcessInstance  map[int64]map[int64]bool // process instance ID -> activity instance IDs
}

func NewSubscriptionRegistry() *SubscriptionRegistry {
	return &SubscriptionRegistry{
		messages:           make(map[string]map[int64]subscription),
		signals:            make(map[string]map[int64]subscription),
		byActivityInstance: make(map[int64]subscription),
		byProcessInstance:  make(map[int64]map[int64]bool),
	}
}

// Subscribe registers a message or a signal subscription.
func (r *SubscriptionRegistry) Subscribe(s subscription) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	switch {
	case s.MessageName != "":
		add(r.messages, s.MessageName, s)
	case s.SignalName != "":
		add(r.signals, s.SignalName, s)
	default:
		return
	}

	r.byActivityInstance[s.ActivityInstanceId] = s

	ids, ok := r.byProcessInstance[s.ProcessInstanceId]
	if !ok {
		ids = make(map[int64]bool)
		r.byProcessInstance[s.ProcessInstanceId] = ids
	}
	ids[s.ActivityInstanceId] = true
}

// Unsubscribe removes the subscription of an activity instance, if any.
func (r *SubscriptionRegistry) Unsubscribe(activityInstanceId int64) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	s, ok := r.byActivityInstance[activityInstanceId]
	if !ok {
		return
	}

	r.unsubscribe(s)

	ids := r.byProcessInstance[s.ProcessInstanceId]
	delete(ids, activityInstanceId)
	if len(ids) == 0 {
		delete(r.byProcessInstance, s.ProcessInstanceId)
	}
}

// UnsubscribeProcessInstance removes all subscriptions of a process instance.
func (r *SubscriptionRegistry) UnsubscribeProcessInstance(processInstanceId int64) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for activityInstanceId := range r.byProcessInstance[processInstanceId] {
		r.unsubscribe(r.byActivityInstance[activityInstanceId])
	}
	delete(r.byProcessInstance, processInstanceId)
}

func (r *SubscriptionRegistry) unsubscribe(s subscription) {
	if s.MessageName != "" {
		remove(r.messages, s.MessageName, s.ActivityInstanceId)
	} else {
		remove(r.signals, s.SignalName, s.ActivityInstanceId)
	}
	delete(r.byActivityInstance, s.ActivityInstanceId)
}

// MessageSubscriptions returns a snapshot of the subscriptions of a message name, ordered by activity instance ID.
// If a correlation key is provided, only subscriptions with an equal correlation key are returned.
func (r *SubscriptionRegistry) MessageSubscriptions(name string, correlationKey string) []subscription {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	var result []subscription
	for _, s := range r.messages[name] {
		if correlationKey == "" || s.CorrelationKey == correlationKey {
			result = append(result, s)
		}
	}
	sortSubscriptions(result)
	return result
}

// SignalSubscriptions returns a snapshot of the subscriptions of a signal name, ordered by activity instance ID.
func (r *SubscriptionRegistry) SignalSubscriptions(name string) []subscription {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	result := make([]subscription, 0, len(r.signals[name]))
	for _, s := range r.signals[name] {
		result = append(result, s)
	}
	sortSubscriptions(result)
	return result
}

// Len returns the total number of subscriptions.
func (r *SubscriptionRegistry) Len() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	return len(r.byActivityInstance)
}

func add(m map[string]map[int64]subscription, name string, s subscription) {
	subscriptions, ok := m[name]
	if !ok {
		subscriptions = make(map[int64]subscription)
		m[name] = subscriptions
	}
	subscriptions[s.ActivityInstanceId] = s
}

func remove(m map[string]map[int64]subscription, name string, activityInstanceId int64) {
	delete(m[name], activityInstanceId)
	if len(m[name]) == 0 {
		delete(m, name)
	}
}

func sortSubscriptions(subscriptions []subscription) {
	slices.SortFunc(subscriptions, func(a, b subscription) int {
		return cmp.Compare(a.ActivityInstanceId, b.ActivityInstanceId)
	})
}

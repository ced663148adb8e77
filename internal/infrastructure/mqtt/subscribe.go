package mqtt

import (
	"fmt"
	"sync"
)

type subscription struct {
	topic   string
	qos     byte
	handler MessageHandler
}

// subscriptionSet remembers active subscriptions so they can be replayed
// after a reconnect. The zero value is ready to use.
type subscriptionSet struct {
	mu     sync.RWMutex
	byName map[string]subscription
}

func (s *subscriptionSet) put(sub subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.byName == nil {
		s.byName = make(map[string]subscription)
	}
	s.byName[sub.topic] = sub
}

func (s *subscriptionSet) drop(topic string) {
	s.mu.Lock()
	delete(s.byName, topic)
	s.mu.Unlock()
}

func (s *subscriptionSet) has(topic string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byName[topic]
	return ok
}

func (s *subscriptionSet) snapshot() []subscription {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]subscription, 0, len(s.byName))
	for _, sub := range s.byName {
		out = append(out, sub)
	}
	return out
}

// Subscribe registers handler for topic, which may contain + and # wildcards.
// The subscription is replayed after every reconnect.
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	if err := checkTopicQoS(topic, qos); err != nil {
		return err
	}
	if handler == nil {
		return fmt.Errorf("%w: nil handler", ErrSubscribeFailed)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.subs.put(subscription{topic: topic, qos: qos, handler: handler})
	if err := await(c.paho.Subscribe(topic, qos, c.wrapHandler(handler)), operationTimeout, ErrSubscribeFailed); err != nil {
		c.subs.drop(topic)
		return err
	}
	return nil
}

// Unsubscribe removes a subscription. Messages already in flight may still
// be delivered.
func (c *Client) Unsubscribe(topic string) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	c.subs.drop(topic)
	return await(c.paho.Unsubscribe(topic), operationTimeout, ErrUnsubscribeFailed)
}

// HasSubscription reports whether topic is tracked. Exact match only.
func (c *Client) HasSubscription(topic string) bool {
	return c.subs.has(topic)
}

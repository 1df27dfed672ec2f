package mqtt

import "errors"

var (
	ErrNotConnected     = errors.New("mqtt: not connected to broker")
	ErrConnectionFailed = errors.New("mqtt: cannot reach broker")
	ErrPublishFailed    = errors.New("mqtt: publish failed")
	ErrInvalidQoS       = errors.New("mqtt: QoS must be 0, 1 or 2")
	ErrInvalidTopic     = errors.New("mqtt: empty topic")

	// ErrQueueFull means AsyncPublisher dropped an event instead of blocking
	// the request that produced it.
	ErrQueueFull = errors.New("mqtt: change event queue full")
)

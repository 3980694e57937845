package hub

import "errors"

var (
	ErrHubStopped     = errors.New("hub stopped")
	ErrSendBufferFull = errors.New("send buffer full")
)

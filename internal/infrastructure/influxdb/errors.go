package influxdb

import "errors"

var (
	// ErrDisabled is returned by Connect when history is switched off.
	ErrDisabled = errors.New("influxdb: disabled in configuration")

	// ErrConnectionFailed wraps the reason the initial ping failed.
	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrNotConnected is returned by operations on a closed client.
	ErrNotConnected = errors.New("influxdb: not connected")
)

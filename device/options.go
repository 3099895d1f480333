package device

import (
	"time"

	"github.com/gogpu/mixer/driver"
	"github.com/gogpu/mixer/internal/executor"
)

// Default configuration values.
const (
	DefaultDriverName   = "soft"
	DefaultFenceTimeout = time.Second
	DefaultMinMajor     = 4
	DefaultMinMinor     = 5
)

// perfWarnThreshold is the latency above which allocations and buffer
// mapping are logged as performance warnings.
const perfWarnThreshold = 20 * time.Millisecond

// Option configures a Device.
type Option func(*options)

type options struct {
	opener       driver.Opener
	driverName   string
	capacity     int
	fenceTimeout time.Duration
	maxPerBucket int
	minMajor     int
	minMinor     int
}

func defaultOptions() options {
	return options{
		driverName:   DefaultDriverName,
		capacity:     executor.DefaultCapacity,
		fenceTimeout: DefaultFenceTimeout,
		minMajor:     DefaultMinMajor,
		minMinor:     DefaultMinMinor,
	}
}

// WithDriver opens the device's driver with open instead of looking it up
// in the driver registry.
func WithDriver(open driver.Opener) Option {
	return func(o *options) {
		o.opener = open
	}
}

// WithDriverName selects a registered driver. Default is "soft".
func WithDriverName(name string) Option {
	return func(o *options) {
		o.driverName = name
	}
}

// WithCapacity bounds the number of tasks queued on the device context.
func WithCapacity(n int) Option {
	return func(o *options) {
		o.capacity = n
	}
}

// WithFenceTimeout sets how long a readback waits for its fence before
// returning the buffer contents anyway.
func WithFenceTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.fenceTimeout = d
		}
	}
}

// WithMaxPooledPerBucket limits the idle resources kept per pool bucket.
// Zero, the default, keeps every released resource.
func WithMaxPooledPerBucket(n int) Option {
	return func(o *options) {
		o.maxPerBucket = max(n, 0)
	}
}

// WithMinVersion sets the minimum driver API version.
func WithMinVersion(major, minor int) Option {
	return func(o *options) {
		o.minMajor = major
		o.minMinor = minor
	}
}

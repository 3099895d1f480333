package mixer

import (
	"context"
	"fmt"
	"sync"

	"github.com/gogpu/mixer/device"
	"github.com/gogpu/mixer/driver/gpu"
	"github.com/gogpu/mixer/driver/soft"
)

// Accelerator paths that open the configured driver.
const (
	PathGPU     = "gpu"
	PathOGL     = "ogl"
	PathAuto    = "auto"
	PathDefault = "default"
)

// Accelerator creates image mixers for the channels of a server. Mixers
// created through one Accelerator share its device.
//
// For the paths "gpu", "ogl", "auto" and "default" the device is opened
// on first use with the configured driver, by default the wgpu driver.
// When that fails, or for any other path, mixers run on a software device
// instead. Failures are only
// logged for the explicit "gpu" and "ogl" paths.
//
// Thread safety: Accelerator is safe for concurrent use.
type Accelerator struct {
	path string
	opts acceleratorOptions

	mu       sync.Mutex
	dev      *device.Device
	fallback *device.Device
}

// NewAccelerator returns an accelerator for path. No device is opened
// until the first CreateImageMixer.
func NewAccelerator(path string, opts ...AcceleratorOption) *Accelerator {
	o := acceleratorOptions{driverName: gpu.Name}
	for _, opt := range opts {
		opt(&o)
	}
	return &Accelerator{path: path, opts: o}
}

// CreateImageMixer returns a mixer for channel.
func (a *Accelerator) CreateImageMixer(ctx context.Context, channel int) (*ImageMixer, error) {
	opts := append(append([]Option{}, a.opts.mixer...), WithChannel(channel))

	if a.hardwarePath() {
		dev, err := a.device(ctx)
		if err == nil {
			return NewImageMixer(dev, opts...), nil
		}
		if a.path == PathGPU || a.path == PathOGL {
			slogger().Error("mixer: accelerated device unavailable", "path", a.path,
				"driver", a.opts.driverName, "err", err)
		}
	}

	dev, err := a.softDevice(ctx)
	if err != nil {
		return nil, err
	}
	return NewImageMixer(dev, opts...), nil
}

// Device returns the accelerated device, or nil if none has been opened.
func (a *Accelerator) Device() *device.Device {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.dev
}

// Close closes the devices opened by the accelerator.
func (a *Accelerator) Close(ctx context.Context) error {
	a.mu.Lock()
	dev, fallback := a.dev, a.fallback
	a.dev, a.fallback = nil, nil
	a.mu.Unlock()

	var err error
	if dev != nil {
		err = dev.Close(ctx)
	}
	if fallback != nil {
		if ferr := fallback.Close(ctx); err == nil {
			err = ferr
		}
	}
	return err
}

func (a *Accelerator) hardwarePath() bool {
	switch a.path {
	case PathGPU, PathOGL, PathAuto, PathDefault:
		return true
	default:
		return false
	}
}

func (a *Accelerator) device(ctx context.Context) (*device.Device, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.dev != nil {
		return a.dev, nil
	}
	opts := append([]device.Option{device.WithDriverName(a.opts.driverName)}, a.opts.device...)
	dev, err := device.New(ctx, opts...)
	if err != nil {
		return nil, err
	}
	a.dev = dev
	return dev, nil
}

func (a *Accelerator) softDevice(ctx context.Context) (*device.Device, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.fallback != nil {
		return a.fallback, nil
	}
	opts := append(append([]device.Option{}, a.opts.device...), device.WithDriver(soft.Open))
	dev, err := device.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("mixer: software device: %w", err)
	}
	a.fallback = dev
	return dev, nil
}

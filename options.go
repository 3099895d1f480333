package mixer

import "github.com/gogpu/mixer/device"

// Option configures an ImageMixer.
//
// Example:
//
//	m := mixer.NewImageMixer(dev, mixer.WithBlendModes(true), mixer.WithChannel(2))
type Option func(*mixerOptions)

type mixerOptions struct {
	blendModes    bool
	straightAlpha bool
	channel       int
	maxFrameSize  int
}

func defaultOptions() mixerOptions {
	return mixerOptions{channel: 1}
}

// WithBlendModes enables blend modes other than normal. When disabled, the
// default, layers with another mode are still composited as a unit but
// with normal blending.
func WithBlendModes(enabled bool) Option {
	return func(o *mixerOptions) {
		o.blendModes = enabled
	}
}

// WithStraightAlpha makes every rendered frame straight alpha, as if Render
// were always called with straighten set.
func WithStraightAlpha(enabled bool) Option {
	return func(o *mixerOptions) {
		o.straightAlpha = enabled
	}
}

// WithChannel sets the channel number used in log messages.
func WithChannel(id int) Option {
	return func(o *mixerOptions) {
		o.channel = id
	}
}

// WithMaxFrameSize sets the size in bytes of the largest output frame. Blank
// frames up to that size are cut from recycled buffers of that size; a
// buffer is reused once its frame is released.
func WithMaxFrameSize(size int) Option {
	return func(o *mixerOptions) {
		o.maxFrameSize = max(size, 0)
	}
}

// AcceleratorOption configures an Accelerator.
type AcceleratorOption func(*acceleratorOptions)

type acceleratorOptions struct {
	driverName string
	device     []device.Option
	mixer      []Option
}

// WithDriverName selects the registered driver opened for the "gpu",
// "ogl", "auto" and "default" paths. Default is "wgpu".
func WithDriverName(name string) AcceleratorOption {
	return func(o *acceleratorOptions) {
		o.driverName = name
	}
}

// WithDeviceOptions passes options to every device the accelerator opens.
func WithDeviceOptions(opts ...device.Option) AcceleratorOption {
	return func(o *acceleratorOptions) {
		o.device = append(o.device, opts...)
	}
}

// WithMixerOptions passes options to every ImageMixer the accelerator
// creates.
func WithMixerOptions(opts ...Option) AcceleratorOption {
	return func(o *acceleratorOptions) {
		o.mixer = append(o.mixer, opts...)
	}
}

package mixer

import (
	"testing"

	"github.com/gogpu/mixer/device"
	"github.com/gogpu/mixer/driver/gpu"
)

func TestMixerOptions(t *testing.T) {
	tests := []struct {
		name string
		opts []Option
		want mixerOptions
	}{
		{"defaults", nil, mixerOptions{channel: 1}},
		{"blend modes", []Option{WithBlendModes(true)}, mixerOptions{blendModes: true, channel: 1}},
		{"straight alpha", []Option{WithStraightAlpha(true)}, mixerOptions{straightAlpha: true, channel: 1}},
		{"channel", []Option{WithChannel(4)}, mixerOptions{channel: 4}},
		{"frame size", []Option{WithMaxFrameSize(1 << 20)}, mixerOptions{channel: 1, maxFrameSize: 1 << 20}},
		{"negative frame size", []Option{WithMaxFrameSize(-1)}, mixerOptions{channel: 1}},
		{"last wins", []Option{WithChannel(2), WithChannel(3), WithBlendModes(true), WithBlendModes(false)}, mixerOptions{channel: 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := defaultOptions()
			for _, opt := range tt.opts {
				opt(&got)
			}
			if got != tt.want {
				t.Errorf("options = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestAcceleratorOptions(t *testing.T) {
	a := NewAccelerator(PathAuto,
		WithDriverName("other"),
		WithDeviceOptions(device.WithCapacity(8)),
		WithDeviceOptions(device.WithFenceTimeout(0)),
		WithMixerOptions(WithBlendModes(true)),
	)
	if a.opts.driverName != "other" {
		t.Errorf("driverName = %q, want other", a.opts.driverName)
	}
	if len(a.opts.device) != 2 {
		t.Errorf("device options = %d, want 2", len(a.opts.device))
	}
	if len(a.opts.mixer) != 1 {
		t.Errorf("mixer options = %d, want 1", len(a.opts.mixer))
	}

	if got := NewAccelerator("cpu").opts.driverName; got != gpu.Name {
		t.Errorf("default driverName = %q, want %q", got, gpu.Name)
	}
}

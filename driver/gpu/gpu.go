// Package gpu is a compositing driver on top of the wgpu hardware
// abstraction layer.
//
// Textures live on a hal device and every buffer is a persistently mapped
// hal buffer. Uploads and readbacks are recorded into command encoders and
// submitted to the device queue; fences track queue submissions, so a
// readback waits for the GPU with a timeout. The compositing kernel runs on
// a host mirror of each texture and the results are written back to the
// device texture before it is read.
//
// A texture lives on the device when it has 32-bit texels and its rows
// satisfy the adapter's copy pitch. Other textures, such as single channel
// keys and planes of odd widths, stay in host memory.
//
// The driver registers as "wgpu" and opens the pure Go software backend.
// Use New to open another hal backend.
package gpu

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/software"

	"github.com/gogpu/mixer/driver"
	"github.com/gogpu/mixer/driver/soft"
)

// Name is the name the driver registers under.
const Name = "wgpu"

// ErrNoAdapter is returned when a backend exposes no adapter.
var ErrNoAdapter = errors.New("gpu: no adapter")

// defaultCopyPitch is the WebGPU row alignment for buffer-texture copies.
const defaultCopyPitch = 256

func init() {
	driver.Register(Name, Open)
}

// Driver composites on a hal device.
//
// Thread safety: Driver methods are called from the device context. Fences
// may be waited on from any goroutine.
type Driver struct {
	instance hal.Instance
	adapter  hal.Adapter
	dev      hal.Device
	queue    hal.Queue
	info     gputypes.AdapterInfo
	limits   gputypes.Limits
	pitch    uint32

	kernel *soft.Driver

	// Command buffers not yet known to be complete, and the index of the
	// latest submission.
	inflight  []submission
	submitted uint64
	closed    atomic.Bool
}

type submission struct {
	index uint64
	enc   hal.CommandEncoder
	cmd   hal.CommandBuffer
}

// Open opens the software backend.
func Open() (driver.Driver, error) {
	return New(software.API{})
}

// New opens the first adapter backend exposes.
func New(backend hal.Backend) (*Driver, error) {
	inst, err := backend.CreateInstance(nil)
	if err != nil {
		return nil, fmt.Errorf("gpu: create instance: %w", err)
	}
	adapters := inst.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		inst.Destroy()
		return nil, ErrNoAdapter
	}
	exposed := adapters[0]
	open, err := exposed.Adapter.Open(0, exposed.Capabilities.Limits)
	if err != nil {
		inst.Destroy()
		return nil, fmt.Errorf("gpu: open %s: %w", exposed.Info.Name, err)
	}

	d := newDriver(open.Device, open.Queue, exposed)
	d.instance = inst
	d.adapter = exposed.Adapter
	slogger().Debug("gpu: device opened", "adapter", exposed.Info.Name,
		"backend", exposed.Info.Backend, "driver", exposed.Info.Driver)
	return d, nil
}

func newDriver(dev hal.Device, queue hal.Queue, exposed hal.ExposedAdapter) *Driver {
	pitch := exposed.Capabilities.AlignmentsMask.BufferCopyPitch
	if pitch == 0 {
		pitch = defaultCopyPitch
	}
	return &Driver{
		dev:    dev,
		queue:  queue,
		info:   exposed.Info,
		limits: exposed.Capabilities.Limits,
		pitch:  uint32(pitch),
		kernel: soft.New(),
	}
}

// Name returns "wgpu".
func (d *Driver) Name() string { return Name }

// Version reports the compositing API level of the kernel and describes
// the adapter.
func (d *Driver) Version() (int, int, string) {
	return soft.VersionMajor, soft.VersionMinor,
		fmt.Sprintf("%s %s (%s)", d.info.Name, d.info.Driver, d.info.Backend)
}

// Limits returns the limits the device was opened with.
func (d *Driver) Limits() gputypes.Limits { return d.limits }

// Info returns the adapter description.
func (d *Driver) Info() gputypes.AdapterInfo { return d.info }

// Close waits for the queue, frees command buffers and destroys the device.
func (d *Driver) Close() error {
	if !d.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := d.dev.WaitIdle()
	for _, s := range d.inflight {
		d.free(s)
	}
	d.inflight = nil
	_ = d.kernel.Close()

	d.dev.Destroy()
	if d.adapter != nil {
		d.adapter.Destroy()
	}
	if d.instance != nil {
		d.instance.Destroy()
	}
	if err != nil {
		return fmt.Errorf("gpu: wait idle: %w", err)
	}
	return nil
}

// devicePlaced reports whether a texture of desc lives on the device.
func (d *Driver) devicePlaced(desc driver.TextureDescriptor) bool {
	return desc.Stride == 4 && uint32(desc.Width*desc.Stride)%d.pitch == 0
}

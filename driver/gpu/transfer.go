package gpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/mixer/driver"
)

// CopyBufferToTexture uploads the first SizeBytes of src into dst. Device
// textures receive the bytes through a queue submission; the host mirror
// is filled from the same mapping.
func (d *Driver) CopyBufferToTexture(src driver.Buffer, dst driver.Texture) error {
	b, err := asBuffer(src)
	if err != nil {
		return err
	}
	t, err := asTexture(dst)
	if err != nil {
		return err
	}
	n := t.SizeBytes()
	if len(b.data) < n {
		return fmt.Errorf("gpu: upload of %d bytes into %d byte texture", len(b.data), n)
	}
	copy(t.pix(), b.data[:n])
	if t.raw == nil {
		return nil
	}

	err = d.encode("upload", func(enc hal.CommandEncoder) {
		transition(enc, t.raw, t.raw.CurrentUsage(), gputypes.TextureUsageCopyDst)
		enc.CopyBufferToTexture(b.raw, t.raw, []hal.BufferTextureCopy{t.region()})
		transition(enc, t.raw, gputypes.TextureUsageCopyDst, gputypes.TextureUsageTextureBinding)
	})
	if err != nil {
		return err
	}
	t.dirty = false
	return nil
}

// CopyTextureToBuffer downloads src into the start of dst. Kernel output
// still on the host is written to the device texture first.
func (d *Driver) CopyTextureToBuffer(src driver.Texture, dst driver.Buffer) error {
	t, err := asTexture(src)
	if err != nil {
		return err
	}
	b, err := asBuffer(dst)
	if err != nil {
		return err
	}
	n := t.SizeBytes()
	if len(b.data) < n {
		return fmt.Errorf("gpu: readback of %d byte texture into %d bytes", n, len(b.data))
	}
	if t.raw == nil {
		copy(b.data, t.pix())
		return nil
	}

	if t.dirty {
		layout := t.region().BufferLayout
		extent := t.extent()
		err := d.queue.WriteTexture(&hal.ImageCopyTexture{
			Texture: t.raw,
			Aspect:  gputypes.TextureAspectAll,
		}, t.pix(), &layout, &extent)
		if err != nil {
			return fmt.Errorf("gpu: write texture: %w", err)
		}
		t.dirty = false
	}

	return d.encode("readback", func(enc hal.CommandEncoder) {
		transition(enc, t.raw, t.raw.CurrentUsage(), gputypes.TextureUsageCopySrc)
		enc.CopyTextureToBuffer(t.raw, b.raw, []hal.BufferTextureCopy{t.region()})
		transition(enc, t.raw, gputypes.TextureUsageCopySrc, gputypes.TextureUsageTextureBinding)
	})
}

// FenceSync returns a fence reached when everything submitted so far has
// completed.
func (d *Driver) FenceSync() (driver.Fence, error) {
	if d.closed.Load() {
		return nil, driver.ErrResourceDestroyed
	}
	return &fence{queue: d.queue, index: d.submitted}, nil
}

// Flush frees the command buffers the queue has completed. Commands are
// submitted as they are recorded.
func (d *Driver) Flush() error {
	done := d.queue.PollCompleted()
	kept := d.inflight[:0]
	for _, s := range d.inflight {
		if s.index <= done {
			d.free(s)
			continue
		}
		kept = append(kept, s)
	}
	clear(d.inflight[len(kept):])
	d.inflight = kept
	return nil
}

// encode records one command buffer with record and submits it.
func (d *Driver) encode(label string, record func(enc hal.CommandEncoder)) error {
	if d.closed.Load() {
		return driver.ErrResourceDestroyed
	}
	enc, err := d.dev.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: label})
	if err != nil {
		return fmt.Errorf("gpu: %s: create encoder: %w", label, err)
	}
	if err := enc.BeginEncoding(label); err != nil {
		enc.Destroy()
		return fmt.Errorf("gpu: %s: begin encoding: %w", label, err)
	}
	record(enc)
	cmd, err := enc.EndEncoding()
	if err != nil {
		enc.Destroy()
		return fmt.Errorf("gpu: %s: end encoding: %w", label, err)
	}
	index, err := d.queue.Submit([]hal.CommandBuffer{cmd})
	if err != nil {
		d.dev.FreeCommandBuffer(cmd)
		enc.Destroy()
		return fmt.Errorf("gpu: %s: submit: %w", label, err)
	}
	d.submitted = index
	d.inflight = append(d.inflight, submission{index: index, enc: enc, cmd: cmd})
	return nil
}

func (d *Driver) free(s submission) {
	d.dev.FreeCommandBuffer(s.cmd)
	s.enc.Destroy()
}

// region covers the whole texture with tightly packed rows.
func (t *texture) region() hal.BufferTextureCopy {
	return hal.BufferTextureCopy{
		BufferLayout: hal.ImageDataLayout{
			BytesPerRow:  uint32(t.Width() * t.Stride()),
			RowsPerImage: uint32(t.Height()),
		},
		TextureBase: hal.ImageCopyTexture{Texture: t.raw, Aspect: gputypes.TextureAspectAll},
		Size:        t.extent(),
	}
}

// transition records a usage barrier. Backends without state tracking
// ignore it.
func transition(enc hal.CommandEncoder, tex hal.Texture, from, to gputypes.TextureUsage) {
	enc.TransitionTextures([]hal.TextureBarrier{{
		Texture: tex,
		Range:   hal.TextureRange{Aspect: gputypes.TextureAspectAll},
		Usage:   hal.TextureUsageTransition{OldUsage: from, NewUsage: to},
	}})
}

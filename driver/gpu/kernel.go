package gpu

import (
	"fmt"

	"github.com/gogpu/mixer/driver"
)

// Draw runs the compositing kernel on the host mirrors of the textures in
// p. The background is written back to the device before its next read.
func (d *Driver) Draw(p *driver.DrawParams) error {
	q := *p
	q.Textures = make([]driver.Texture, len(p.Textures))
	for i, t := range p.Textures {
		host, err := hostOf(t)
		if err != nil {
			return fmt.Errorf("gpu: plane %d: %w", i, err)
		}
		q.Textures[i] = host
	}

	bg, err := asTexture(p.Background)
	if err != nil {
		return fmt.Errorf("gpu: background: %w", err)
	}
	q.Background = bg.host
	if q.LocalKey, err = hostOf(p.LocalKey); err != nil {
		return fmt.Errorf("gpu: local key: %w", err)
	}
	if q.LayerKey, err = hostOf(p.LayerKey); err != nil {
		return fmt.Errorf("gpu: layer key: %w", err)
	}

	if err := d.kernel.Draw(&q); err != nil {
		return err
	}
	if bg.raw != nil {
		bg.dirty = true
	}
	return nil
}

// PostProcess finalizes target on its host mirror.
func (d *Driver) PostProcess(target driver.Texture, straighten bool) error {
	t, err := asTexture(target)
	if err != nil {
		return err
	}
	if err := d.kernel.PostProcess(t.host, straighten); err != nil {
		return err
	}
	if straighten && t.raw != nil {
		t.dirty = true
	}
	return nil
}

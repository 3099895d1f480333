package mixer

import (
	"context"
	"errors"
	"fmt"

	"github.com/gogpu/mixer/device"
	"github.com/gogpu/mixer/driver"
	"github.com/gogpu/mixer/frame"
	"github.com/gogpu/mixer/future"
)

// renderer composites scenes on the device context.
type renderer struct {
	dev           *device.Device
	blendModes    bool
	straightAlpha bool
}

// render draws the scene into a new target and starts its readback.
// Context-only. Item textures are released before it returns.
func (r *renderer) render(ctx context.Context, nodes []layer, roots []int, format frame.VideoFormatDesc, straighten bool) (*future.Future[*frame.Array], error) {
	defer releaseItems(nodes)
	if err := r.resolve(ctx, nodes); err != nil {
		return nil, err
	}

	target, err := r.dev.CreateTexture(ctx, format.Width, format.Height, 4, false, true)
	if err != nil {
		return nil, fmt.Errorf("mixer: target: %w", err)
	}
	defer target.Release()

	p := &pass{
		ctx:        ctx,
		dev:        r.dev,
		nodes:      nodes,
		blendModes: r.blendModes,
		width:      format.Width,
		height:     format.Height,
		aspect:     format.AspectRatio(),
	}
	fields := []frame.FieldMode{frame.FieldProgressive}
	if format.Interlaced() {
		fields = []frame.FieldMode{frame.FieldUpper, frame.FieldLower}
	}
	for _, field := range fields {
		p.field = field
		if err := p.drawLayers(target, roots); err != nil {
			return nil, err
		}
	}

	if err := r.dev.PostProcess(ctx, target, straighten || r.straightAlpha); err != nil {
		return nil, fmt.Errorf("mixer: post process: %w", err)
	}
	return r.dev.ReadbackAsync(ctx, target)
}

// resolve waits for every item texture. It keeps going after a failure so
// that all owned textures can be released.
func (r *renderer) resolve(ctx context.Context, nodes []layer) error {
	var errs []error
	for i := range nodes {
		for j := range nodes[i].items {
			it := &nodes[i].items[j]
			it.resolved = make([]*device.Texture, len(it.textures))
			for k, f := range it.textures {
				tex, err := device.Await(ctx, r.dev, f)
				if err != nil {
					errs = append(errs, fmt.Errorf("mixer: texture %d: %w", k, err))
					continue
				}
				it.resolved[k] = tex
			}
		}
	}
	return errors.Join(errs...)
}

func releaseItems(nodes []layer) {
	for i := range nodes {
		for j := range nodes[i].items {
			it := &nodes[i].items[j]
			if it.borrowed {
				continue
			}
			for _, tex := range it.resolved {
				if tex != nil {
					tex.Release()
				}
			}
			it.resolved = nil
		}
	}
}

// pass draws one field of a scene.
type pass struct {
	ctx        context.Context
	dev        *device.Device
	nodes      []layer
	field      frame.FieldMode
	blendModes bool
	width      int
	height     int
	aspect     float64
}

// drawLayers draws sibling layers in order. A key left over by one layer
// masks the next.
func (p *pass) drawLayers(target *device.Texture, indices []int) error {
	var layerKey *device.Texture
	defer releaseTexture(&layerKey)

	for _, i := range indices {
		if err := p.drawLayers(target, p.nodes[i].sublayers); err != nil {
			return err
		}
		if err := p.drawLayer(target, &p.nodes[i], &layerKey); err != nil {
			return err
		}
	}
	return nil
}

func (p *pass) drawLayer(target *device.Texture, l *layer, layerKey **device.Texture) error {
	items := make([]item, 0, len(l.items))
	for _, it := range l.items {
		it.transform.FieldMode &= p.field
		if it.transform.FieldMode != frame.FieldEmpty {
			items = append(items, it)
		}
	}
	if len(items) == 0 {
		return nil
	}

	var localKey, localMix, isolated *device.Texture
	defer releaseTexture(&localKey)
	defer releaseTexture(&localMix)
	defer releaseTexture(&isolated)

	dst := target
	if l.blend != frame.BlendNormal {
		var err error
		if isolated, err = p.texture(4, false); err != nil {
			return err
		}
		dst = isolated
	}

	for i := range items {
		if err := p.drawItem(dst, &items[i], *layerKey, &localKey, &localMix); err != nil {
			return err
		}
	}
	if err := p.drawTexture(dst, &localMix, frame.BlendNormal); err != nil {
		return err
	}
	if isolated != nil {
		mode := l.blend
		if !p.blendModes {
			mode = frame.BlendNormal
		}
		if err := p.drawTexture(target, &isolated, mode); err != nil {
			return err
		}
	}

	releaseTexture(layerKey)
	*layerKey, localKey = localKey, nil
	return nil
}

func (p *pass) drawItem(dst *device.Texture, it *item, layerKey *device.Texture, localKey, localMix **device.Texture) error {
	params := &driver.DrawParams{
		PixelFormat: it.desc,
		Textures:    make([]driver.Texture, len(it.resolved)),
		Transform:   it.transform,
		Geometry:    it.geometry,
		AspectRatio: p.aspect,
	}
	for i, tex := range it.resolved {
		params.Textures[i] = tex.Native()
	}
	t := &it.transform

	switch {
	case t.IsKey:
		if *localKey == nil {
			var err error
			if *localKey, err = p.texture(1, t.UseMipmap); err != nil {
				return err
			}
		}
		params.Background = (*localKey).Native()

	case t.IsMix:
		if *localMix == nil {
			var err error
			if *localMix, err = p.texture(4, t.UseMipmap); err != nil {
				return err
			}
		}
		params.Background = (*localMix).Native()
		params.LocalKey = native(*localKey)
		params.LayerKey = native(layerKey)
		params.Keyer = driver.KeyerAdditive
		defer releaseTexture(localKey)

	default:
		if err := p.drawTexture(dst, localMix, frame.BlendNormal); err != nil {
			return err
		}
		params.Background = dst.Native()
		params.LocalKey = native(*localKey)
		params.LayerKey = native(layerKey)
		defer releaseTexture(localKey)
	}

	if err := p.dev.Draw(p.ctx, params); err != nil {
		return fmt.Errorf("mixer: draw %s item: %w", it.desc.Format, err)
	}
	return nil
}

// drawTexture composites *src onto dst with mode and releases it. A nil
// source draws nothing.
func (p *pass) drawTexture(dst *device.Texture, src **device.Texture, mode frame.BlendMode) error {
	if *src == nil {
		return nil
	}
	defer releaseTexture(src)

	s := *src
	err := p.dev.Draw(p.ctx, &driver.DrawParams{
		PixelFormat: frame.NewPixelFormatDesc(frame.PixelFormatBGRA, frame.NewPlane(s.Width(), s.Height(), 4)),
		Textures:    []driver.Texture{s.Native()},
		Transform:   frame.DefaultImageTransform(),
		Geometry:    frame.DefaultGeometry(),
		AspectRatio: p.aspect,
		Background:  dst.Native(),
		BlendMode:   mode,
	})
	if err != nil {
		return fmt.Errorf("mixer: composite %s: %w", mode, err)
	}
	return nil
}

// texture returns a cleared texture the size of the output.
func (p *pass) texture(stride int, mipmapped bool) (*device.Texture, error) {
	return p.dev.CreateTexture(p.ctx, p.width, p.height, stride, mipmapped, true)
}

func native(t *device.Texture) driver.Texture {
	if t == nil {
		return nil
	}
	return t.Native()
}

func releaseTexture(t **device.Texture) {
	if *t != nil {
		(*t).Release()
		*t = nil
	}
}

package mixer

import (
	"github.com/gogpu/mixer/device"
	"github.com/gogpu/mixer/frame"
	"github.com/gogpu/mixer/future"
)

// item is one visited frame.
type item struct {
	desc      frame.PixelFormatDesc
	transform frame.ImageTransform
	geometry  frame.Geometry

	// textures has one entry per plane. Borrowed textures came with the
	// frame and are not released by the mixer.
	textures []*future.Future[*device.Texture]
	borrowed bool

	// resolved holds the awaited textures while rendering.
	resolved []*device.Texture
}

// layer is a node of the scene tree.
type layer struct {
	blend     frame.BlendMode
	items     []item
	sublayers []int
}

// scene is the tree of layers built by push, visit and pop. Layers live in
// an arena and refer to their children by index, in insertion order, which
// is also paint order.
type scene struct {
	nodes []layer
	roots []int

	// stack holds the open layers, innermost last.
	stack []int

	// transforms holds the accumulated transform of every push, starting
	// with the identity.
	transforms []frame.ImageTransform

	// implicit is the root layer collecting items visited outside any
	// layer, or -1.
	implicit int
}

func newScene() *scene {
	return &scene{
		transforms: []frame.ImageTransform{frame.DefaultImageTransform()},
		implicit:   -1,
	}
}

func (s *scene) top() frame.ImageTransform {
	return s.transforms[len(s.transforms)-1]
}

// push multiplies t onto the transform stack and opens a layer when it
// deepens the layer depth.
func (s *scene) push(t frame.ImageTransform) {
	prev := s.top()
	next := prev.Mul(t)
	s.transforms = append(s.transforms, next)
	if next.LayerDepth <= prev.LayerDepth {
		return
	}

	s.nodes = append(s.nodes, layer{blend: next.BlendMode})
	idx := len(s.nodes) - 1
	if n := len(s.stack); n == 0 {
		s.roots = append(s.roots, idx)
	} else {
		parent := &s.nodes[s.stack[n-1]]
		parent.sublayers = append(parent.sublayers, idx)
	}
	s.stack = append(s.stack, idx)
}

// add appends it to the innermost open layer.
func (s *scene) add(it item) {
	if n := len(s.stack); n > 0 {
		l := &s.nodes[s.stack[n-1]]
		l.items = append(l.items, it)
		return
	}

	// Reuse the implicit root only while it is still the last one painted.
	if n := len(s.roots); n == 0 || s.roots[n-1] != s.implicit {
		s.nodes = append(s.nodes, layer{blend: frame.BlendNormal})
		s.implicit = len(s.nodes) - 1
		s.roots = append(s.roots, s.implicit)
	}
	l := &s.nodes[s.implicit]
	l.items = append(l.items, it)
}

// pop drops the innermost transform and closes the layers deeper than the
// new top. Popping the identity is a no-op.
func (s *scene) pop() {
	if len(s.transforms) > 1 {
		s.transforms = s.transforms[:len(s.transforms)-1]
	}
	depth := min(max(s.top().LayerDepth, 0), len(s.stack))
	s.stack = s.stack[:depth]
}

// depth returns the number of open layers.
func (s *scene) depth() int { return len(s.stack) }

func (s *scene) empty() bool { return len(s.roots) == 0 }

// take returns the accumulated layers and starts a new frame. The transform
// stack is kept.
func (s *scene) take() (nodes []layer, roots []int) {
	nodes, roots = s.nodes, s.roots
	s.nodes, s.roots, s.stack = nil, nil, nil
	s.implicit = -1
	return nodes, roots
}

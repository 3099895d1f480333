package frame

// MutableFrame is a frame being filled by a producer. Freeze hands its
// arrays to an immutable ConstFrame.
type MutableFrame struct {
	tag      any
	desc     PixelFormatDesc
	layout   ChannelLayout
	planes   []*Array
	audio    []int32
	geometry Geometry
	opaque   any
}

// NewMutableFrame returns a frame over planes, one array per plane of desc.
// The frame takes ownership of the arrays.
func NewMutableFrame(tag any, planes []*Array, desc PixelFormatDesc, layout ChannelLayout) *MutableFrame {
	return &MutableFrame{
		tag:      tag,
		desc:     desc,
		layout:   layout,
		planes:   planes,
		geometry: DefaultGeometry(),
	}
}

// Tag returns the producer tag the frame was created with.
func (f *MutableFrame) Tag() any { return f.tag }

// PixelFormatDesc returns the plane layout.
func (f *MutableFrame) PixelFormatDesc() PixelFormatDesc { return f.desc }

// ChannelLayout returns the audio layout.
func (f *MutableFrame) ChannelLayout() ChannelLayout { return f.layout }

// ImageData returns the writable bytes of plane i, or nil.
func (f *MutableFrame) ImageData(i int) []byte {
	if i < 0 || i >= len(f.planes) {
		return nil
	}
	return f.planes[i].Bytes()
}

// AudioData returns the audio samples.
func (f *MutableFrame) AudioData() []int32 { return f.audio }

// SetAudioData replaces the audio samples.
func (f *MutableFrame) SetAudioData(samples []int32) { f.audio = samples }

// Geometry returns the geometry the frame is drawn with.
func (f *MutableFrame) Geometry() Geometry { return f.geometry }

// SetGeometry replaces the geometry.
func (f *MutableFrame) SetGeometry(g Geometry) { f.geometry = g }

// SetOpaque attaches producer data the compositor may understand, such as
// textures already resident on the device.
func (f *MutableFrame) SetOpaque(v any) { f.opaque = v }

// Freeze returns an immutable frame that owns the planes. f must not be used
// afterwards.
func (f *MutableFrame) Freeze() ConstFrame {
	c := ConstFrame{
		tag:      f.tag,
		desc:     f.desc,
		layout:   f.layout,
		planes:   f.planes,
		audio:    f.audio,
		geometry: f.geometry,
		opaque:   f.opaque,
	}
	f.planes = nil
	f.audio = nil
	return c
}

// Release drops the frame's references to its planes.
func (f *MutableFrame) Release() {
	for _, p := range f.planes {
		p.Release()
	}
	f.planes = nil
}

// ConstFrame is an immutable frame. Copies share the same plane arrays.
type ConstFrame struct {
	tag      any
	desc     PixelFormatDesc
	layout   ChannelLayout
	planes   []*Array
	audio    []int32
	geometry Geometry
	opaque   any
}

// EmptyFrame returns a frame without image data.
func EmptyFrame() ConstFrame {
	return ConstFrame{layout: InvalidChannelLayout(), geometry: DefaultGeometry()}
}

// Tag returns the producer tag.
func (f ConstFrame) Tag() any { return f.tag }

// PixelFormatDesc returns the plane layout.
func (f ConstFrame) PixelFormatDesc() PixelFormatDesc { return f.desc }

// ChannelLayout returns the audio layout.
func (f ConstFrame) ChannelLayout() ChannelLayout { return f.layout }

// ImageData returns the array of plane i, or nil.
func (f ConstFrame) ImageData(i int) *Array {
	if i < 0 || i >= len(f.planes) {
		return nil
	}
	return f.planes[i]
}

// AudioData returns the audio samples.
func (f ConstFrame) AudioData() []int32 { return f.audio }

// Geometry returns the geometry the frame is drawn with.
func (f ConstFrame) Geometry() Geometry { return f.geometry }

// Opaque returns producer data attached with SetOpaque.
func (f ConstFrame) Opaque() any { return f.opaque }

// Empty reports whether the frame carries no image.
func (f ConstFrame) Empty() bool {
	return f.desc.Format == PixelFormatInvalid || len(f.desc.Planes) == 0
}

// Retain returns a copy holding its own references to the planes.
func (f ConstFrame) Retain() ConstFrame {
	for _, p := range f.planes {
		p.Retain()
	}
	return f
}

// Release drops this copy's references to the planes.
func (f ConstFrame) Release() {
	for _, p := range f.planes {
		p.Release()
	}
}

package frame

import "fmt"

// VideoFormatDesc describes an output video format.
type VideoFormatDesc struct {
	Name string

	Width        int
	Height       int
	SquareWidth  int
	SquareHeight int

	// FieldMode is FieldProgressive for progressive formats. Interlaced
	// formats carry the field that is transmitted first.
	FieldMode FieldMode

	TimeScale int
	Duration  int

	// Size is the number of bytes of one BGRA output frame.
	Size int
}

// NewVideoFormatDesc returns a format with square pixels and a derived Size.
func NewVideoFormatDesc(name string, width, height int, field FieldMode, timeScale, duration int) VideoFormatDesc {
	return VideoFormatDesc{
		Name:         name,
		Width:        width,
		Height:       height,
		SquareWidth:  width,
		SquareHeight: height,
		FieldMode:    field,
		TimeScale:    timeScale,
		Duration:     duration,
		Size:         width * height * 4,
	}
}

// FPS returns the frame rate. Interlaced formats report frames, not fields.
func (d VideoFormatDesc) FPS() float64 {
	if d.Duration == 0 {
		return 0
	}
	return float64(d.TimeScale) / float64(d.Duration)
}

// AspectRatio returns the display aspect ratio, SquareWidth over
// SquareHeight, or 1 when either is unset.
func (d VideoFormatDesc) AspectRatio() float64 {
	if d.SquareWidth <= 0 || d.SquareHeight <= 0 {
		return 1
	}
	return float64(d.SquareWidth) / float64(d.SquareHeight)
}

// Interlaced reports whether the format is drawn as two fields.
func (d VideoFormatDesc) Interlaced() bool {
	return d.FieldMode != FieldProgressive
}

// String returns the format name with its dimensions.
func (d VideoFormatDesc) String() string {
	return fmt.Sprintf("%s (%dx%d %s)", d.Name, d.Width, d.Height, d.FieldMode)
}

// ChannelLayout describes audio channels carried alongside image data.
type ChannelLayout struct {
	NumChannels  int
	Type         string
	ChannelOrder []string
}

// InvalidChannelLayout returns the layout of frames without audio.
func InvalidChannelLayout() ChannelLayout {
	return ChannelLayout{Type: "invalid"}
}

// StereoChannelLayout returns a two channel left/right layout.
func StereoChannelLayout() ChannelLayout {
	return ChannelLayout{NumChannels: 2, Type: "stereo", ChannelOrder: []string{"L", "R"}}
}

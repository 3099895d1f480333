// Package mixer composites video frames on a shared device.
//
// # Overview
//
// A playout channel describes each output frame as a tree of layers: every
// producer pushes its transform, visits the frames it contributes and pops
// again. ImageMixer accumulates that tree and Render composites it into a
// single BGRA picture of the channel's video format, returned as a future.
//
// # Quick Start
//
//	acc := mixer.NewAccelerator("auto")
//	defer acc.Close(ctx)
//
//	m, err := acc.CreateImageMixer(ctx, 1)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	m.Push(transform)
//	m.Visit(ctx, f)
//	m.Pop()
//
//	pic, err := m.Render(ctx, format, false).Get()
//
// # Architecture
//
// The library is organized into:
//   - mixer: scene accumulation, compositing, accelerator selection
//   - frame: pixel formats, transforms, frames and byte arrays
//   - device: the device context, resource pools and transfers
//   - driver: the backend contract; driver/soft is the software backend
//   - future: eager and deferred results
//
// All driver work runs on the device's single context goroutine. Uploads
// are queued at normal priority, compositing at high priority, and the
// readback wait happens on whichever goroutine forces the rendered future.
//
// # Layers
//
// A transform whose layer depth is deeper than its parent's opens a layer.
// Items in a layer with the normal blend mode are drawn straight onto the
// output. Other blend modes draw the layer into its own texture first and
// blend that texture as a unit. Key items render into a single channel key
// that masks the next item of the layer; a key left over at the end of a
// layer masks the next sibling layer. Mix items are summed and then
// composited together, which implements crossfades.
package mixer

// Version information
const (
	// Version is the current version of the library
	Version = "0.1.0-alpha.1"

	// VersionMajor is the major version
	VersionMajor = 0

	// VersionMinor is the minor version
	VersionMinor = 1

	// VersionPatch is the patch version
	VersionPatch = 0

	// VersionPrerelease is the prerelease identifier
	VersionPrerelease = "alpha.1"
)

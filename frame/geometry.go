package frame

import (
	"errors"
	"fmt"
)

// ErrInvalidGeometry is returned for geometry whose coordinate count does
// not match its type.
var ErrInvalidGeometry = errors.New("frame: invalid geometry")

// Coord is one vertex of a quad. Vertex coordinates are normalized within
// the fill rectangle of the image transform; texture coordinates are
// normalized within the source image.
type Coord struct {
	VertexX  float64
	VertexY  float64
	TextureX float64
	TextureY float64
}

// GeometryType selects how Coords are interpreted.
type GeometryType uint8

const (
	// GeometryQuad is a single quad of four coordinates.
	GeometryQuad GeometryType = iota

	// GeometryQuadList is any number of independent quads, four coordinates
	// each.
	GeometryQuadList
)

// String returns a string representation of the geometry type.
func (t GeometryType) String() string {
	switch t {
	case GeometryQuad:
		return "quad"
	case GeometryQuadList:
		return "quad_list"
	default:
		return fmt.Sprintf("GeometryType(%d)", t)
	}
}

// Geometry is the shape an image is drawn with. Coordinates of each quad run
// top-left, top-right, bottom-right, bottom-left.
type Geometry struct {
	Type   GeometryType
	Coords []Coord
}

// DefaultGeometry returns the full-frame quad with identity texture mapping.
func DefaultGeometry() Geometry {
	return Geometry{
		Type: GeometryQuad,
		Coords: []Coord{
			{0, 0, 0, 0},
			{1, 0, 1, 0},
			{1, 1, 1, 1},
			{0, 1, 0, 1},
		},
	}
}

// Validate reports whether the coordinate count matches the type.
func (g Geometry) Validate() error {
	switch g.Type {
	case GeometryQuad:
		if len(g.Coords) != 4 {
			return fmt.Errorf("%w: quad with %d coords", ErrInvalidGeometry, len(g.Coords))
		}
	case GeometryQuadList:
		if len(g.Coords)%4 != 0 {
			return fmt.Errorf("%w: quad list with %d coords", ErrInvalidGeometry, len(g.Coords))
		}
	default:
		return fmt.Errorf("%w: %s", ErrInvalidGeometry, g.Type)
	}
	return nil
}

// Quads splits the coordinates into quads. Trailing coordinates that do not
// form a full quad are ignored.
func (g Geometry) Quads() [][4]Coord {
	quads := make([][4]Coord, 0, len(g.Coords)/4)
	for i := 0; i+4 <= len(g.Coords); i += 4 {
		quads = append(quads, [4]Coord(g.Coords[i:i+4]))
	}
	return quads
}

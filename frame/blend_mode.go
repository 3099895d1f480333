package frame

import (
	"fmt"
	"strings"
)

// BlendMode selects how an isolated layer is composited onto what lies
// below it. Modes are ordered; combining transforms keeps the larger one.
type BlendMode uint8

// Blend modes understood by the compositor.
const (
	BlendNormal BlendMode = iota
	BlendLighten
	BlendDarken
	BlendMultiply
	BlendAverage
	BlendAdd
	BlendSubtract
	BlendDifference
	BlendNegation
	BlendExclusion
	BlendScreen
	BlendOverlay
	BlendSoftLight
	BlendHardLight
	BlendColorDodge
	BlendColorBurn
	BlendLinearDodge
	BlendLinearBurn
	BlendLinearLight
	BlendVividLight
	BlendPinLight
	BlendHardMix
	BlendReflect
	BlendGlow
	BlendPhoenix
	BlendHue
	BlendSaturation
	BlendColor
	BlendLuminosity

	blendModeCount
)

var blendModeNames = [blendModeCount]string{
	BlendNormal:      "normal",
	BlendLighten:     "lighten",
	BlendDarken:      "darken",
	BlendMultiply:    "multiply",
	BlendAverage:     "average",
	BlendAdd:         "add",
	BlendSubtract:    "subtract",
	BlendDifference:  "difference",
	BlendNegation:    "negation",
	BlendExclusion:   "exclusion",
	BlendScreen:      "screen",
	BlendOverlay:     "overlay",
	BlendSoftLight:   "soft_light",
	BlendHardLight:   "hard_light",
	BlendColorDodge:  "color_dodge",
	BlendColorBurn:   "color_burn",
	BlendLinearDodge: "linear_dodge",
	BlendLinearBurn:  "linear_burn",
	BlendLinearLight: "linear_light",
	BlendVividLight:  "vivid_light",
	BlendPinLight:    "pin_light",
	BlendHardMix:     "hard_mix",
	BlendReflect:     "reflect",
	BlendGlow:        "glow",
	BlendPhoenix:     "phoenix",
	BlendHue:         "hue",
	BlendSaturation:  "saturation",
	BlendColor:       "color",
	BlendLuminosity:  "luminosity",
}

// String returns the canonical lower-case name of the mode.
func (m BlendMode) String() string {
	if m < blendModeCount {
		return blendModeNames[m]
	}
	return fmt.Sprintf("BlendMode(%d)", m)
}

// Valid reports whether m is a known mode.
func (m BlendMode) Valid() bool {
	return m < blendModeCount
}

// BlendModes returns every known mode in order.
func BlendModes() []BlendMode {
	modes := make([]BlendMode, blendModeCount)
	for i := range modes {
		modes[i] = BlendMode(i)
	}
	return modes
}

// ParseBlendMode maps a mode name to its BlendMode. Matching ignores case
// and treats '-' and ' ' like '_'. Unknown names yield BlendNormal and false.
func ParseBlendMode(name string) (BlendMode, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	key = strings.NewReplacer("-", "_", " ", "_").Replace(key)
	for i, n := range blendModeNames {
		if n == key {
			return BlendMode(i), true
		}
	}
	return BlendNormal, false
}

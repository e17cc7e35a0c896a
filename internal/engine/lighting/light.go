// Package lighting provides the directional light shared by the batch
// shaders through the LightData uniform block.
package lighting

import (
	"github.com/chewxy/math32"

	"github.com/Faultbox/bimstream/pkg/math"
)

// Light is a directional light with an ambient term.
type Light struct {
	Direction [3]float32 // towards the light, view space
	Color     [3]float32
	Ambient   [3]float32
	Intensity float32
}

// Default is a white key light from the upper right with a soft ambient.
func Default() Light {
	return Light{
		Direction: SunDirection(45, 50),
		Color:     [3]float32{1, 1, 1},
		Ambient:   [3]float32{0.3, 0.3, 0.32},
		Intensity: 0.8,
	}
}

// SunDirection converts longitude (rotation around Y) and latitude
// (elevation from the horizon), both in degrees, to a unit vector pointing
// towards the sun.
func SunDirection(longitude, latitude float32) [3]float32 {
	lon := longitude * math32.Pi / 180
	lat := latitude * math32.Pi / 180

	return [3]float32{
		math32.Cos(lat) * math32.Sin(lon),
		math32.Sin(lat),
		math32.Cos(lat) * math32.Cos(lon),
	}
}

// InView returns the light with its direction rotated into view space.
func (l Light) InView(view math.Mat4) Light {
	l.Direction = math.Normalize3(view.TransformDirection(l.Direction))
	return l
}

// Std140 packs the light in the std140 layout of the LightData block:
// three vec3 each padded to 16 bytes, with intensity in the last padding
// slot.
func (l Light) Std140() []float32 {
	return []float32{
		l.Direction[0], l.Direction[1], l.Direction[2], 0,
		l.Color[0], l.Color[1], l.Color[2], 0,
		l.Ambient[0], l.Ambient[1], l.Ambient[2], l.Intensity,
	}
}

// Package camera provides the orbit camera of the scene viewer.
package camera

import (
	"github.com/chewxy/math32"

	"github.com/Faultbox/bimstream/pkg/math"
)

// OrbitCamera orbits around a center point.
type OrbitCamera struct {
	Center math.Vec3

	// Spherical coordinates
	Distance  float32
	RotationX float32 // pitch, radians
	RotationY float32 // yaw, radians

	MinDistance float32
	MaxDistance float32
	MinPitch    float32
	MaxPitch    float32

	DragSensitivity float32
	ZoomSensitivity float32

	FovY float32 // radians
}

// NewOrbitCamera creates an orbit camera scaled for building models in
// meters.
func NewOrbitCamera() *OrbitCamera {
	return &OrbitCamera{
		Distance:        30,
		RotationX:       0.5,
		MinDistance:     0.5,
		MaxDistance:     20000,
		MinPitch:        -1.5,
		MaxPitch:        1.5,
		DragSensitivity: 0.005,
		ZoomSensitivity: 0.1,
		FovY:            math32.Pi / 4,
	}
}

// Position returns the camera position in world space.
func (c *OrbitCamera) Position() math.Vec3 {
	cosX := math32.Cos(c.RotationX)
	return c.Center.Add(math.Vec3{
		X: c.Distance * cosX * math32.Sin(c.RotationY),
		Y: c.Distance * math32.Sin(c.RotationX),
		Z: c.Distance * cosX * math32.Cos(c.RotationY),
	})
}

// ViewMatrix returns the view matrix for this camera.
func (c *OrbitCamera) ViewMatrix() math.Mat4 {
	return math.LookAt(c.Position(), c.Center, math.Vec3{Y: 1})
}

// ProjectionMatrix returns a perspective projection whose clip planes
// follow the orbit distance.
func (c *OrbitCamera) ProjectionMatrix(aspect float32) math.Mat4 {
	near := max(c.Distance*0.01, 0.01)
	far := c.Distance * 100
	return math.Perspective(c.FovY, aspect, near, far)
}

// HandleDrag updates rotation based on mouse drag delta.
func (c *OrbitCamera) HandleDrag(deltaX, deltaY float32) {
	c.RotationY -= deltaX * c.DragSensitivity
	c.RotationX = min(max(c.RotationX+deltaY*c.DragSensitivity, c.MinPitch), c.MaxPitch)
}

// HandleZoom updates distance based on scroll wheel delta.
func (c *OrbitCamera) HandleZoom(delta float32) {
	c.Distance -= delta * c.Distance * c.ZoomSensitivity
	c.Distance = min(max(c.Distance, c.MinDistance), c.MaxDistance)
}

// HandlePan moves the center in the view plane by a mouse delta.
func (c *OrbitCamera) HandlePan(deltaX, deltaY float32) {
	speed := c.Distance * 0.002
	right := math.Vec3{X: math32.Cos(c.RotationY), Z: -math32.Sin(c.RotationY)}
	c.Center = c.Center.Add(right.Scale(-deltaX * speed))
	c.Center.Y += deltaY * speed
}

// FitToBounds centers the camera on a bounding box and backs off far
// enough to see all of it.
func (c *OrbitCamera) FitToBounds(minP, maxP [3]float32) {
	lo, hi := math.V3(minP), math.V3(maxP)
	c.Center = lo.Add(hi).Scale(0.5)

	radius := hi.Sub(lo).Length() / 2
	c.Distance = min(max(radius/math32.Sin(c.FovY/2), c.MinDistance), c.MaxDistance)
	c.RotationX = 0.6
	c.RotationY = 0.8
}

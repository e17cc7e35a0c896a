package camera

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestZoomClamps(t *testing.T) {
	c := NewOrbitCamera()
	for range 100 {
		c.HandleZoom(1)
	}
	assert.Equal(t, c.MinDistance, c.Distance)

	for range 200 {
		c.HandleZoom(-1)
	}
	assert.Equal(t, c.MaxDistance, c.Distance)
}

func TestDragClampsPitch(t *testing.T) {
	c := NewOrbitCamera()
	c.HandleDrag(0, 10000)
	assert.Equal(t, c.MaxPitch, c.RotationX)
	c.HandleDrag(0, -10000)
	assert.Equal(t, c.MinPitch, c.RotationX)
}

func TestFitToBounds(t *testing.T) {
	c := NewOrbitCamera()
	c.FitToBounds([3]float32{0, 0, 0}, [3]float32{10, 4, 6})

	assert.Equal(t, float32(5), c.Center.X)
	assert.Equal(t, float32(2), c.Center.Y)
	assert.Equal(t, float32(3), c.Center.Z)
	assert.Greater(t, c.Distance, float32(5))
	assert.InDelta(t, c.Distance, c.Position().Distance(c.Center), 1e-3)
}

package math

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func defaultViewProjection() Mat4 {
	projection := NewMat4Perspective(45.0*K_DEG2RAD_MULTIPLIER, 16.0/9.0, 0.1, 1000.0)
	return NewMat4Identity().Mul(projection)
}

func TestFrustumPlanesAreNormalized(t *testing.T) {
	frustum := NewFrustumFromViewProjection(defaultViewProjection())

	for i := 0; i < FrustumPlaneCount; i++ {
		length := frustum.Planes[i].Normal.Length()
		assert.InDelta(t, 1.0, length, 0.001, "plane %d normal length", i)
	}
}

func TestFrustumIntersectsSphere(t *testing.T) {
	// Camera at the origin looking down -Z.
	frustum := NewFrustumFromViewProjection(defaultViewProjection())

	tests := []struct {
		name    string
		center  Vec3
		radius  float32
		visible bool
	}{
		{
			name:    "directly in front",
			center:  Vec3{0, 0, -10},
			radius:  1,
			visible: true,
		},
		{
			name:    "behind the camera",
			center:  Vec3{0, 0, 10},
			radius:  1,
			visible: false,
		},
		{
			name:    "beyond the far plane",
			center:  Vec3{0, 0, -2000},
			radius:  1,
			visible: false,
		},
		{
			name:    "far off to the side",
			center:  Vec3{500, 0, -10},
			radius:  1,
			visible: false,
		},
		{
			name:    "straddling the near plane",
			center:  Vec3{0, 0, 0},
			radius:  2,
			visible: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.visible, frustum.IntersectsSphere(tt.center, tt.radius))
		})
	}
}

func TestFrustumIntersectsAABB(t *testing.T) {
	frustum := NewFrustumFromViewProjection(defaultViewProjection())

	inside := Extents3D{
		Min: Vec3{-1, -1, -12},
		Max: Vec3{1, 1, -8},
	}
	assert.True(t, frustum.IntersectsAABB(inside))

	behind := Extents3D{
		Min: Vec3{-1, -1, 8},
		Max: Vec3{1, 1, 12},
	}
	assert.False(t, frustum.IntersectsAABB(behind))

	// A box straddling the left plane must be conservatively kept.
	straddling := Extents3D{
		Min: Vec3{-100, -1, -12},
		Max: Vec3{0, 1, -8},
	}
	assert.True(t, frustum.IntersectsAABB(straddling))
}

func TestSignedDistance(t *testing.T) {
	plane := Plane3D{Normal: Vec3{0, 1, 0}, D: -5}

	assert.InDelta(t, 5.0, float64(plane.SignedDistance(Vec3{0, 10, 0})), 0.0001)
	assert.InDelta(t, -5.0, float64(plane.SignedDistance(Vec3{0, 0, 0})), 0.0001)
}

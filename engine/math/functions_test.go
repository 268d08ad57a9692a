package math

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClamp(t *testing.T) {
	assert.Equal(t, 5, Clamp(10, 0, 5))
	assert.Equal(t, 0, Clamp(-3, 0, 5))
	assert.Equal(t, 3, Clamp(3, 0, 5))
	assert.Equal(t, float32(1.5), Clamp(float32(1.5), float32(0), float32(2)))
}

func TestVec3Ops(t *testing.T) {
	a := Vec3{1, 2, 3}
	b := Vec3{4, 5, 6}

	assert.Equal(t, Vec3{5, 7, 9}, a.Add(b))
	assert.Equal(t, Vec3{-3, -3, -3}, a.Sub(b))
	assert.InDelta(t, 32.0, float64(a.Dot(b)), 0.0001)
	assert.InDelta(t, 27.0, float64(a.DistanceSquared(b)), 0.0001)

	n := Vec3{0, 3, 4}.Normalized()
	assert.InDelta(t, 1.0, float64(n.Length()), 0.0001)
}

func TestMat4MulIdentity(t *testing.T) {
	m := NewMat4Translation(Vec3{1, 2, 3})
	out := m.Mul(NewMat4Identity())
	assert.Equal(t, m, out)
}

func TestMat4InverseRoundTrip(t *testing.T) {
	m := NewMat4EulerXYZ(0.3, 0.7, 0.1).Mul(NewMat4Translation(Vec3{5, -2, 9}))
	roundTrip := m.Mul(m.Inverse())

	identity := NewMat4Identity()
	for i := 0; i < 16; i++ {
		assert.InDelta(t, float64(identity.Data[i]), float64(roundTrip.Data[i]), 0.0001, "element %d", i)
	}
}

func TestFloat32BitsRoundTrip(t *testing.T) {
	values := []float32{0, 1, -1, 3.14159, -1e6}
	for _, v := range values {
		assert.Equal(t, v, Float32frombits(Float32bits(v)))
	}
}

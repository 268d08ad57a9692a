package math

/** @brief Indices of the six camera frustum planes. */
const (
	FrustumPlaneLeft = iota
	FrustumPlaneRight
	FrustumPlaneBottom
	FrustumPlaneTop
	FrustumPlaneNear
	FrustumPlaneFar
	FrustumPlaneCount
)

/**
 * @brief The six-plane volume describing a camera's visible region.
 * Plane normals point towards the inside of the volume.
 */
type Frustum struct {
	Planes [FrustumPlaneCount]Plane3D
}

func newPlane3D(v Vec4) Plane3D {
	normal := v.ToVec3()
	length := normal.Length()
	if length == 0 {
		return Plane3D{}
	}
	return Plane3D{
		Normal: Vec3{normal.X / length, normal.Y / length, normal.Z / length},
		D:      v.W / length,
	}
}

/** @brief The signed distance from the plane to point p. */
func (p Plane3D) SignedDistance(point Vec3) float32 {
	return p.Normal.Dot(point) + p.D
}

/**
 * @brief Extracts a frustum from a combined view-projection matrix using the
 * Gribb-Hartmann method. The matrix layout follows the row-vector convention
 * used throughout this package (translation in elements 12..14), so each
 * plane comes from a column combined with the fourth column.
 */
func NewFrustumFromViewProjection(viewProjection Mat4) Frustum {
	d := viewProjection.Data
	col := func(i int) Vec4 {
		return Vec4{d[i], d[4+i], d[8+i], d[12+i]}
	}
	c0, c1, c2, c3 := col(0), col(1), col(2), col(3)

	f := Frustum{}
	f.Planes[FrustumPlaneLeft] = newPlane3D(c3.Add(c0))
	f.Planes[FrustumPlaneRight] = newPlane3D(c3.Sub(c0))
	f.Planes[FrustumPlaneBottom] = newPlane3D(c3.Add(c1))
	f.Planes[FrustumPlaneTop] = newPlane3D(c3.Sub(c1))
	f.Planes[FrustumPlaneNear] = newPlane3D(c3.Add(c2))
	f.Planes[FrustumPlaneFar] = newPlane3D(c3.Sub(c2))
	return f
}

/**
 * @brief Returns true if the sphere at center with the given radius is inside
 * or intersects all six planes of the frustum.
 */
func (f Frustum) IntersectsSphere(center Vec3, radius float32) bool {
	for i := 0; i < FrustumPlaneCount; i++ {
		if f.Planes[i].SignedDistance(center) < -radius {
			return false
		}
	}
	return true
}

/**
 * @brief Returns true if the axis-aligned box intersects the frustum. A
 * conservative test: boxes straddling a plane are reported as intersecting.
 */
func (f Frustum) IntersectsAABB(extents Extents3D) bool {
	for i := 0; i < FrustumPlaneCount; i++ {
		p := f.Planes[i]
		// The box corner furthest along the plane normal.
		positive := extents.Min
		if p.Normal.X >= 0 {
			positive.X = extents.Max.X
		}
		if p.Normal.Y >= 0 {
			positive.Y = extents.Max.Y
		}
		if p.Normal.Z >= 0 {
			positive.Z = extents.Max.Z
		}
		if p.SignedDistance(positive) < 0 {
			return false
		}
	}
	return true
}

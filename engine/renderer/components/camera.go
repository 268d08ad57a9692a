package components

import (
	"github.com/spaghettifunk/astra/engine/math"
)

/**
 * @brief Represents a camera that can be used for
 * a variety of things, especially rendering and visibility
 * culling. Ideally, these are created and managed by the
 * camera system.
 */
type Camera struct {
	/**
	 * @brief The position of this camera.
	 * NOTE: Do not set this directly, use SetPosition() instead
	 * so the view matrix is recalculated when needed.
	 */
	Position math.Vec3
	/**
	 * @brief The rotation of this camera using Euler angles (pitch, yaw, roll).
	 * NOTE: Do not set this directly, use SetEulerRotation() instead
	 * so the view matrix is recalculated when needed.
	 */
	EulerRotation math.Vec3
	/** @brief Internal flag used to determine when the view matrix needs to be rebuilt. */
	IsDirty bool
	/**
	 * @brief The view matrix of this camera.
	 * NOTE: IMPORTANT: Do not get this directly, use GetView() instead
	 * so the view matrix is recalculated when needed.
	 */
	ViewMatrix math.Mat4

	/** @brief Vertical field of view in radians. */
	FOV float32
	/** @brief The near clipping plane distance. */
	NearClip float32
	/** @brief The far clipping plane distance. Also bounds the culling distance test. */
	FarClip float32
	/** @brief Width over height of the viewport. */
	AspectRatio float32
	/**
	 * @brief Layer bits this camera renders. An object is only visible if
	 * its layer mask intersects this mask.
	 */
	CullMask uint32
}

/** @brief The name of the default camera. */
const DEFAULT_CAMERA_NAME string = "default"

func NewCamera() *Camera {
	camera := &Camera{}
	camera.Reset()
	return camera
}

func (c *Camera) Reset() {
	c.EulerRotation = math.NewVec3Zero()
	c.Position = math.NewVec3Zero()
	c.IsDirty = false
	c.ViewMatrix = math.NewMat4Identity()
	c.FOV = 45.0 * math.K_DEG2RAD_MULTIPLIER
	c.NearClip = 0.1
	c.FarClip = 1000.0
	c.AspectRatio = 16.0 / 9.0
	c.CullMask = 0xFFFFFFFF
}

func (c *Camera) GetPosition() math.Vec3 {
	return c.Position
}

func (c *Camera) SetPosition(position math.Vec3) {
	c.Position = position
	c.IsDirty = true
}

func (c *Camera) GetEulerRotation() math.Vec3 {
	return c.EulerRotation
}

func (c *Camera) SetEulerRotation(rotation math.Vec3) {
	c.EulerRotation = rotation
	c.IsDirty = true
}

func (c *Camera) GetView() math.Mat4 {
	if c.IsDirty {
		rotation := math.NewMat4EulerXYZ(c.EulerRotation.X, c.EulerRotation.Y, c.EulerRotation.Z)
		translation := math.NewMat4Translation(c.Position)

		c.ViewMatrix = rotation.Mul(translation)
		c.ViewMatrix = c.ViewMatrix.Inverse()

		c.IsDirty = false
	}
	return c.ViewMatrix
}

func (c *Camera) GetProjection() math.Mat4 {
	return math.NewMat4Perspective(c.FOV, c.AspectRatio, c.NearClip, c.FarClip)
}

/**
 * @brief Extracts the six frustum planes from the combined view-projection
 * matrix. The result uses the (normal.xyz, d) representation with the plane
 * equation dot(normal, p) + d = 0.
 */
func (c *Camera) GetFrustum() math.Frustum {
	viewProjection := c.GetView().Mul(c.GetProjection())
	return math.NewFrustumFromViewProjection(viewProjection)
}

func (c *Camera) Yaw(amount float32) {
	c.EulerRotation.Y += amount
	c.IsDirty = true
}

func (c *Camera) Pitch(amount float32) {
	c.EulerRotation.X += amount

	// Clamp to avoid Gimbal lock.
	limit := float32(1.55334306) // 89 degrees, or equivalent to deg_to_rad(89.0f);
	c.EulerRotation.X = math.Clamp(c.EulerRotation.X, -limit, limit)

	c.IsDirty = true
}

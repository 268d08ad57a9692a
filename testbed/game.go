package testbed

import (
	"fmt"

	"github.com/spaghettifunk/astra/engine/math"
	"github.com/spaghettifunk/astra/engine/renderer"
	"github.com/spaghettifunk/astra/engine/renderer/culling"
	"github.com/spaghettifunk/astra/engine/renderer/metadata"
)

/** @brief Configuration for the synthetic test scene. */
type SceneConfig struct {
	/** @brief Number of candidate draw commands to generate. */
	ObjectCount uint32
	/** @brief Render passes the commands are distributed across. */
	Passes []uint32
	/**
	 * @brief Every Nth command is written with a sentinel mesh identifier to
	 * exercise the sanitizer. 0 disables corruption.
	 */
	CorruptEvery uint32
	/** @brief Candidates per hierarchy leaf. */
	LeafSize uint32
}

/**
 * @brief A synthetic scene: a grid of sphere-bounded objects spread across
 * render passes, with a few deliberately corrupt entries mixed in. Implements
 * the command source the culling pipelines consume.
 */
type Scene struct {
	backend renderer.ComputeBackend

	commands []metadata.IndirectRenderCommand
	spheres  []metadata.BoundingSphere

	meshes    map[uint32]metadata.MeshMetadata
	materials map[uint32]bool

	candidateBuffer *metadata.RenderBuffer
	boundsBuffer    *metadata.RenderBuffer
	hierarchy       *culling.BoundingHierarchy
}

const (
	sceneMeshCount     uint32 = 8
	sceneMaterialCount uint32 = 4
	sceneGridSpacing          = 4.0
)

func NewScene(backend renderer.ComputeBackend, config *SceneConfig) (*Scene, error) {
	if config.ObjectCount == 0 || len(config.Passes) == 0 {
		return nil, fmt.Errorf("func NewScene - object count and passes are required")
	}
	leafSize := config.LeafSize
	if leafSize == 0 {
		leafSize = 8
	}

	s := &Scene{
		backend:   backend,
		commands:  make([]metadata.IndirectRenderCommand, config.ObjectCount),
		spheres:   make([]metadata.BoundingSphere, config.ObjectCount),
		meshes:    make(map[uint32]metadata.MeshMetadata, sceneMeshCount),
		materials: make(map[uint32]bool, sceneMaterialCount),
	}

	for meshID := uint32(1); meshID <= sceneMeshCount; meshID++ {
		s.meshes[meshID] = metadata.MeshMetadata{
			IndexCount:  36 * meshID,
			VertexCount: 24 * meshID,
		}
	}
	for materialID := uint32(1); materialID <= sceneMaterialCount; materialID++ {
		s.materials[materialID] = true
	}

	s.generate(config, leafSize)

	if err := s.upload(); err != nil {
		s.Destroy()
		return nil, err
	}
	if err := s.buildHierarchy(leafSize); err != nil {
		s.Destroy()
		return nil, err
	}

	return s, nil
}

/**
 * @brief Lays the objects out on an XZ grid around the origin. Commands are
 * round-robined across the configured passes; mesh and material identifiers
 * cycle through the registered sets.
 */
func (s *Scene) generate(config *SceneConfig, leafSize uint32) {
	side := uint32(1)
	for side*side < config.ObjectCount {
		side++
	}
	half := float32(side-1) * sceneGridSpacing * 0.5

	for i := uint32(0); i < config.ObjectCount; i++ {
		meshID := (i % sceneMeshCount) + 1
		mesh := s.meshes[meshID]

		cmd := metadata.IndirectRenderCommand{
			MeshID:        meshID,
			MaterialID:    (i % sceneMaterialCount) + 1,
			RenderPass:    config.Passes[i%uint32(len(config.Passes))],
			InstanceCount: (i % 3) + 1,
			IndexCount:    mesh.IndexCount,
			FirstIndex:    0,
			VertexOffset:  0,
			FirstInstance: i,
		}

		if config.CorruptEvery > 0 && i%config.CorruptEvery == config.CorruptEvery-1 {
			// A stale entry the sanitizer must drop.
			cmd.MeshID = metadata.InvalidID
		}

		s.commands[i] = cmd
		s.spheres[i] = metadata.BoundingSphere{
			Center: math.Vec3{
				X: float32(i%side)*sceneGridSpacing - half,
				Y: 0,
				Z: float32(i/side)*sceneGridSpacing - half,
			},
			Radius:    1.0 + float32(i%4)*0.5,
			LayerMask: 0xFFFFFFFF,
		}
	}
}

func (s *Scene) upload() error {
	count := uint32(len(s.commands))

	var err error
	s.candidateBuffer, err = s.backend.RenderBufferCreate(metadata.RENDERBUFFER_TYPE_STORAGE, uint64(count)*metadata.CommandStride)
	if err != nil {
		return fmt.Errorf("func upload - creating candidate buffer: %w", err)
	}
	s.boundsBuffer, err = s.backend.RenderBufferCreate(metadata.RENDERBUFFER_TYPE_STORAGE, uint64(count)*metadata.SphereStride)
	if err != nil {
		return fmt.Errorf("func upload - creating bounds buffer: %w", err)
	}

	commandBlock := make([]byte, uint64(count)*metadata.CommandStride)
	sphereBlock := make([]byte, uint64(count)*metadata.SphereStride)
	for i := uint32(0); i < count; i++ {
		metadata.EncodeCommand(commandBlock[uint64(i)*metadata.CommandStride:], &s.commands[i])
		metadata.EncodeSphere(sphereBlock[uint64(i)*metadata.SphereStride:], &s.spheres[i])
	}

	if err := s.backend.RenderBufferLoadRange(s.candidateBuffer, 0, uint64(len(commandBlock)), commandBlock); err != nil {
		return fmt.Errorf("func upload - uploading candidates: %w", err)
	}
	if err := s.backend.RenderBufferLoadRange(s.boundsBuffer, 0, uint64(len(sphereBlock)), sphereBlock); err != nil {
		return fmt.Errorf("func upload - uploading bounds: %w", err)
	}
	return nil
}

/**
 * @brief Builds a flat bounding hierarchy over the candidate order: leaves
 * cover consecutive runs of leafSize candidates, internal nodes carry the
 * scene bounds. Leaves sit at the tail of the node array.
 */
func (s *Scene) buildHierarchy(leafSize uint32) error {
	count := uint32(len(s.commands))
	leafCount := (count + leafSize - 1) / leafSize
	nodeCount := 2*leafCount - 1

	sceneBounds := s.boundsOf(0, count)

	nodeBlock := make([]byte, uint64(nodeCount)*metadata.BVHNodeStride)
	rangeBlock := make([]byte, uint64(leafCount)*metadata.BVHLeafRangeStride)

	firstLeaf := nodeCount - leafCount
	for nodeIndex := uint32(0); nodeIndex < nodeCount; nodeIndex++ {
		var node metadata.BVHNode
		if nodeIndex < firstLeaf {
			node = sceneBounds
		} else {
			leaf := nodeIndex - firstLeaf
			first := leaf * leafSize
			n := leafSize
			if first+n > count {
				n = count - first
			}
			node = s.boundsOf(first, n)
			node.Max.W = float32(leaf)

			leafRange := metadata.BVHLeafRange{First: first, Count: n}
			metadata.EncodeBVHLeafRange(rangeBlock[uint64(leaf)*metadata.BVHLeafRangeStride:], &leafRange)
		}
		metadata.EncodeBVHNode(nodeBlock[uint64(nodeIndex)*metadata.BVHNodeStride:], &node)
	}

	nodeBuffer, err := s.backend.RenderBufferCreate(metadata.RENDERBUFFER_TYPE_STORAGE, uint64(len(nodeBlock)))
	if err != nil {
		return fmt.Errorf("func buildHierarchy - creating node buffer: %w", err)
	}
	rangeBuffer, err := s.backend.RenderBufferCreate(metadata.RENDERBUFFER_TYPE_STORAGE, uint64(len(rangeBlock)))
	if err != nil {
		s.backend.RenderBufferDestroy(nodeBuffer)
		return fmt.Errorf("func buildHierarchy - creating range buffer: %w", err)
	}
	if err := s.backend.RenderBufferLoadRange(nodeBuffer, 0, uint64(len(nodeBlock)), nodeBlock); err != nil {
		s.backend.RenderBufferDestroy(nodeBuffer)
		s.backend.RenderBufferDestroy(rangeBuffer)
		return fmt.Errorf("func buildHierarchy - uploading nodes: %w", err)
	}
	if err := s.backend.RenderBufferLoadRange(rangeBuffer, 0, uint64(len(rangeBlock)), rangeBlock); err != nil {
		s.backend.RenderBufferDestroy(nodeBuffer)
		s.backend.RenderBufferDestroy(rangeBuffer)
		return fmt.Errorf("func buildHierarchy - uploading ranges: %w", err)
	}

	s.hierarchy = &culling.BoundingHierarchy{
		NodeBuffer:  nodeBuffer,
		RangeBuffer: rangeBuffer,
		NodeCount:   nodeCount,
	}
	s.hierarchy.SetReady(true)
	return nil
}

func (s *Scene) boundsOf(first, count uint32) metadata.BVHNode {
	sphere := s.spheres[first]
	min := sphere.Center.Sub(math.Vec3{X: sphere.Radius, Y: sphere.Radius, Z: sphere.Radius})
	max := sphere.Center.Add(math.Vec3{X: sphere.Radius, Y: sphere.Radius, Z: sphere.Radius})
	for i := first + 1; i < first+count; i++ {
		sphere = s.spheres[i]
		r := math.Vec3{X: sphere.Radius, Y: sphere.Radius, Z: sphere.Radius}
		min = min.Min(sphere.Center.Sub(r))
		max = max.Max(sphere.Center.Add(r))
	}
	return metadata.BVHNode{
		Min: math.Vec4{X: min.X, Y: min.Y, Z: min.Z, W: 0},
		Max: math.Vec4{X: max.X, Y: max.Y, Z: max.Z, W: 0},
	}
}

func (s *Scene) Destroy() {
	if s.candidateBuffer != nil {
		s.backend.RenderBufferDestroy(s.candidateBuffer)
		s.candidateBuffer = nil
	}
	if s.boundsBuffer != nil {
		s.backend.RenderBufferDestroy(s.boundsBuffer)
		s.boundsBuffer = nil
	}
	if s.hierarchy != nil {
		s.backend.RenderBufferDestroy(s.hierarchy.NodeBuffer)
		s.backend.RenderBufferDestroy(s.hierarchy.RangeBuffer)
		s.hierarchy = nil
	}
}

func (s *Scene) CandidateCount() uint32 {
	return uint32(len(s.commands))
}

func (s *Scene) CommandAt(index uint32) (metadata.IndirectRenderCommand, error) {
	if index >= uint32(len(s.commands)) {
		return metadata.IndirectRenderCommand{}, fmt.Errorf("func CommandAt - index %d out of range", index)
	}
	return s.commands[index], nil
}

func (s *Scene) BoundingVolumeAt(index uint32) (metadata.BoundingSphere, error) {
	if index >= uint32(len(s.spheres)) {
		return metadata.BoundingSphere{}, fmt.Errorf("func BoundingVolumeAt - index %d out of range", index)
	}
	return s.spheres[index], nil
}

func (s *Scene) MaterialKnown(materialID uint32) bool {
	return s.materials[materialID]
}

func (s *Scene) MeshMetadata(meshID uint32) (metadata.MeshMetadata, bool) {
	mesh, ok := s.meshes[meshID]
	return mesh, ok
}

func (s *Scene) BoundingHierarchy() *culling.BoundingHierarchy {
	return s.hierarchy
}

func (s *Scene) CandidateBuffer() *metadata.RenderBuffer {
	return s.candidateBuffer
}

func (s *Scene) BoundsBuffer() *metadata.RenderBuffer {
	return s.boundsBuffer
}

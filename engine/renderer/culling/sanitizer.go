package culling

import (
	"sort"

	"github.com/spaghettifunk/astra/engine/renderer/metadata"
)

/** @brief Categories of survivable defects the sanitizer only records. */
type SoftIssueCategory string

const (
	SoftIssueZeroInstanceCount SoftIssueCategory = "zero-instance-count"
	SoftIssuePassMismatch      SoftIssueCategory = "pass-mismatch"
)

/** @brief Aggregate record for one soft-issue category. */
type SoftIssueRecord struct {
	Count        uint32
	FirstIndex   uint32
	FirstCommand metadata.IndirectRenderCommand
}

/**
 * @brief Transient per-invocation accumulator of soft issues. Created fresh
 * by every sanitize call and discarded after logging, so diagnostic data
 * never leaks across frames.
 */
type softIssueLedger map[SoftIssueCategory]*SoftIssueRecord

func (l softIssueLedger) record(category SoftIssueCategory, index uint32, cmd *metadata.IndirectRenderCommand) {
	if existing, ok := l[category]; ok {
		existing.Count++
		return
	}
	l[category] = &SoftIssueRecord{
		Count:        1,
		FirstIndex:   index,
		FirstCommand: *cmd,
	}
}

func (l softIssueLedger) log(d *diagnostics) {
	if len(l) == 0 {
		return
	}
	categories := make([]string, 0, len(l))
	for category := range l {
		categories = append(categories, string(category))
	}
	sort.Strings(categories)
	for _, category := range categories {
		record := l[SoftIssueCategory(category)]
		d.debugf("sanitize: soft issue '%s' on %d entries, first at index %d (mesh=%d material=%d pass=%d)",
			category, record.Count, record.FirstIndex,
			record.FirstCommand.MeshID, record.FirstCommand.MaterialID, record.FirstCommand.RenderPass)
	}
}

/**
 * @brief Host-side re-validation of the culled buffer after the GPU pass.
 * Soft issues are recorded and kept; entries failing a hard check (sentinel
 * or unknown identifiers, empty mesh metadata) are dropped and the
 * survivors compacted to the front in stable order. Dropping entries is
 * normal operation, not a failure: only an unmappable buffer fails the
 * sanitize, and the caller answers that by skipping the pass.
 *
 * Returns the corrected counters; the overflow counter is carried over
 * untouched from the dispatch.
 */
func (p *CullPipeline) sanitize(preCounters metadata.VisibilityCounters) (metadata.VisibilityCounters, error) {
	size := uint64(preCounters.DrawCount) * metadata.CommandStride
	view, err := p.backend.RenderBufferMapMemory(p.culledBuffer, 0, size)
	if err != nil {
		return metadata.VisibilityCounters{}, err
	}
	defer p.backend.RenderBufferUnmapMemory(p.culledBuffer)

	ledger := make(softIssueLedger)
	out := metadata.VisibilityCounters{Overflow: preCounters.Overflow}
	dropped := uint32(0)

	for i := uint32(0); i < preCounters.DrawCount; i++ {
		offset := uint64(i) * metadata.CommandStride
		cmd := metadata.DecodeCommand(view[offset:])

		if cmd.InstanceCount == 0 {
			ledger.record(SoftIssueZeroInstanceCount, i, &cmd)
		}
		if !commandPassMatches(&cmd, p.targetPass) {
			ledger.record(SoftIssuePassMismatch, i, &cmd)
		}

		if !p.commandHardValid(&cmd) {
			dropped++
			continue
		}

		// Stable compaction towards the front.
		if dropped > 0 {
			dst := uint64(out.DrawCount) * metadata.CommandStride
			copy(view[dst:dst+metadata.CommandStride], view[offset:offset+metadata.CommandStride])
		}
		out.DrawCount++
		out.InstanceCount += cmd.InstanceCount
	}

	ledger.log(p.diag)
	if dropped > 0 {
		p.diag.debugf("sanitize: dropped %d hard-corrupt entries, %d survive", dropped, out.DrawCount)
	}
	p.lastStats.Dropped = dropped

	if err := p.counters.Write(out); err != nil {
		return metadata.VisibilityCounters{}, err
	}
	return out, nil
}

// Hard-validity: sentinel checks plus presence in the command source's
// lookup tables. Pass mismatches and zero instance counts are soft.
func (p *CullPipeline) commandHardValid(cmd *metadata.IndirectRenderCommand) bool {
	if !identifierValid(cmd.MeshID) || !identifierValid(cmd.MaterialID) {
		return false
	}
	if !p.source.MaterialKnown(cmd.MaterialID) {
		return false
	}
	mesh, ok := p.source.MeshMetadata(cmd.MeshID)
	if !ok {
		return false
	}
	return mesh.IndexCount > 0 && mesh.VertexCount > 0
}

package culling

import (
	"fmt"
	"sort"

	"github.com/spaghettifunk/astra/engine/renderer/metadata"
)

/**
 * @brief Fraction of candidates that may be rejected for fatal reasons
 * before the whole candidate set is considered corrupt and the pass is
 * skipped. Render pass mismatches never count towards this.
 */
const fallbackCorruptionRatio = 0.25

/**
 * @brief Host-side recovery for an unexpectedly empty GPU result. Walks
 * every candidate with the identical acceptance predicate the passthrough
 * stage uses and writes accepted commands straight into the culled buffer,
 * coercing zero instance counts to one. Returns the counters it published,
 * or a skip reason when the rejections indicate the candidate set itself is
 * corrupt rather than merely empty for this pass.
 */
func (p *CullPipeline) cpuFallback(candidateCount uint32) (metadata.VisibilityCounters, string, error) {
	counters := metadata.VisibilityCounters{}
	fatalRejects := uint32(0)
	rejectCounts := make(map[rejectReason]uint32)
	encoded := make([]byte, 0, uint64(p.capacity)*metadata.CommandStride)

	for i := uint32(0); i < candidateCount; i++ {
		cmd, err := p.source.CommandAt(i)
		if err != nil {
			return counters, "", fmt.Errorf("func cpuFallback - reading candidate %d: %w", i, err)
		}
		reason := classifyCommand(p.source, &cmd, p.targetPass)
		if reason != rejectNone {
			rejectCounts[reason]++
			if reason != rejectPassMismatch {
				// Pass mismatches are the expected shape of an empty pass;
				// everything else points at a corrupt candidate set.
				fatalRejects++
			}
			continue
		}

		if cmd.InstanceCount == 0 {
			cmd.InstanceCount = 1
		}
		if counters.DrawCount >= p.capacity {
			counters.Overflow++
			continue
		}
		var raw [metadata.CommandStride]byte
		metadata.EncodeCommand(raw[:], &cmd)
		encoded = append(encoded, raw[:]...)
		counters.DrawCount++
		counters.InstanceCount += cmd.InstanceCount
	}

	if float64(fatalRejects) > float64(candidateCount)*fallbackCorruptionRatio {
		return counters, aggregateRejectReason(rejectCounts, fatalRejects), nil
	}

	if len(encoded) > 0 {
		if err := p.backend.RenderBufferLoadRange(p.culledBuffer, 0, uint64(len(encoded)), encoded); err != nil {
			return counters, "", fmt.Errorf("func cpuFallback - writing culled buffer: %w", err)
		}
	}
	if err := p.counters.Write(counters); err != nil {
		return counters, "", fmt.Errorf("func cpuFallback - publishing counters: %w", err)
	}

	p.diag.debugf("cpu fallback recovered %d commands (%d instances, %d overflow) for pass %d",
		counters.DrawCount, counters.InstanceCount, counters.Overflow, p.targetPass)
	return counters, "", nil
}

// One human-readable line covering every fatal rejection category seen.
func aggregateRejectReason(rejectCounts map[rejectReason]uint32, fatalRejects uint32) string {
	reasons := make([]rejectReason, 0, len(rejectCounts))
	for reason := range rejectCounts {
		if reason != rejectPassMismatch {
			reasons = append(reasons, reason)
		}
	}
	sort.Slice(reasons, func(i, j int) bool { return reasons[i] < reasons[j] })

	msg := fmt.Sprintf("cpu fallback rejected %d candidates as corrupt:", fatalRejects)
	for _, reason := range reasons {
		msg += fmt.Sprintf(" %s x%d;", reason, rejectCounts[reason])
	}
	return msg
}

package routing

import (
	"strings"

	"github.com/passbi/railroute/internal/models"
)

// Reconstruct walks predecessor links back from goal and returns the ridden
// segments in travel order. Unlabeled transfer edges are skipped.
func Reconstruct[S comparable](prev map[S]Step[S], goal S) []models.Segment {
	var segments []models.Segment
	node := goal
	for {
		step, ok := prev[node]
		if !ok {
			break
		}
		if step.Label != nil {
			segments = append(segments, *step.Label)
		}
		if !step.HasParent {
			break
		}
		node = step.Parent
	}

	for i, j := 0, len(segments)-1; i < j; i, j = i+1, j-1 {
		segments[i], segments[j] = segments[j], segments[i]
	}
	return segments
}

// MergeSegments consolidates consecutive segments on the same train where one
// ends at the sequence number the next one starts from
func MergeSegments(segments []models.Segment) []models.Segment {
	if len(segments) == 0 {
		return nil
	}

	merged := []models.Segment{}
	current := segments[0]
	for _, seg := range segments[1:] {
		if seg.Train == current.Train && seg.From == current.To {
			current.To = seg.To
			continue
		}
		merged = append(merged, current)
		current = seg
	}
	merged = append(merged, current)

	return merged
}

// FormatConnection renders merged segments as "T : 1 -> 5 ; U : 1 -> 2"
func FormatConnection(segments []models.Segment) string {
	merged := MergeSegments(segments)
	parts := make([]string, 0, len(merged))
	for _, seg := range merged {
		parts = append(parts, seg.String())
	}
	return strings.Join(parts, " ; ")
}

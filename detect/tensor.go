package detect

import (
	"sort"
	"time"

	"github.com/x448/float16"
)

var f16LookupTable [65536]float32

func init() {
	// precompute float16 lookup table for faster conversion to float32
	for i := range f16LookupTable {
		f16 := float16.Frombits(uint16(i))
		f16LookupTable[i] = f16.Float32()
	}
}

// DecodeF16 converts a raw float16 tensor buffer to float32 values.
// Accelerator backends commonly hand detection heads back in half
// precision
func DecodeF16(buf []uint16) []float32 {

	out := make([]float32, len(buf))

	for i, v := range buf {
		out[i] = f16LookupTable[v]
	}

	return out
}

// DecodeBoxes converts a flat detection head tensor into raw detections.
// Each row is [center x, center y, width, height, objectness, class
// scores...] in normalized image space.  Rows below confThresh are
// dropped and class-wise non-maximum suppression is applied with the
// nmsThresh IoU threshold
func DecodeBoxes(data []float32, numClasses int, confThresh, nmsThresh float32,
	ts time.Time, detectorID string) []RawDetection {

	stride := 5 + numClasses

	if stride <= 5 || len(data) < stride {
		return nil
	}

	var candidates []RawDetection

	for off := 0; off+stride <= len(data); off += stride {

		objectness := data[off+4]

		if objectness < confThresh {
			continue
		}

		// pick the best scoring class for this row
		bestClass := 0
		bestProb := data[off+5]

		for c := 1; c < numClasses; c++ {
			if data[off+5+c] > bestProb {
				bestClass = c
				bestProb = data[off+5+c]
			}
		}

		score := objectness * bestProb

		if score < confThresh {
			continue
		}

		candidates = append(candidates, RawDetection{
			ClassID:    bestClass,
			Confidence: score,
			Box: Box{
				X:      clampNorm(data[off] - data[off+2]/2),
				Y:      clampNorm(data[off+1] - data[off+3]/2),
				Width:  clampNorm(data[off+2]),
				Height: clampNorm(data[off+3]),
			},
			FrameTimestamp: ts,
			DetectorID:     detectorID,
		})
	}

	return nmsFilter(candidates, nmsThresh)
}

// nmsFilter implements a class-wise Non-Maximum Suppression (NMS)
// algorithm over the candidate detections
func nmsFilter(candidates []RawDetection, threshold float32) []RawDetection {

	if len(candidates) == 0 {
		return nil
	}

	// order candidates by descending confidence
	order := make([]int, len(candidates))

	for i := range order {
		order[i] = i
	}

	sort.SliceStable(order, func(a, b int) bool {
		return candidates[order[a]].Confidence > candidates[order[b]].Confidence
	})

	suppressed := make([]bool, len(candidates))
	var kept []RawDetection

	for i := 0; i < len(order); i++ {

		n := order[i]

		if suppressed[n] {
			continue
		}

		kept = append(kept, candidates[n])

		for j := i + 1; j < len(order); j++ {

			m := order[j]

			if suppressed[m] || candidates[m].ClassID != candidates[n].ClassID {
				continue
			}

			if candidates[n].Box.IoU(candidates[m].Box) > threshold {
				suppressed[m] = true
			}
		}
	}

	return kept
}

// clampNorm restricts a normalized coordinate to [0,1]
func clampNorm(v float32) float32 {

	if v < 0 {
		return 0
	}

	if v > 1 {
		return 1
	}

	return v
}

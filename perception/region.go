package perception

import (
	"github.com/google/uuid"

	"github.com/zonepilot/zonepilot/core"
)

// RegionAnalyzer produces candidate zones for a single changed sub-rectangle
// using local image primitives only. It never calls a remote service and
// never fails loudly: any internal error yields an empty result.
type RegionAnalyzer struct {
	minConfidence float64
	maxZones      int
}

// NewRegionAnalyzer builds a RegionAnalyzer from the shared Settings value.
func NewRegionAnalyzer(settings *core.Settings) *RegionAnalyzer {
	return &RegionAnalyzer{
		minConfidence: settings.MinZoneConfidence,
		maxZones:      settings.MaxZonesPerRegion,
	}
}

// Analyze scans bbox within frame for rectangular, edge-bounded candidate
// regions and classifies each as a zone. Every returned zone's bounds are
// contained in bbox and its confidence is at least minConfidence.
func (a *RegionAnalyzer) Analyze(frame *core.Frame, bbox core.Rect) []core.Zone {
	if frame == nil || bbox.Empty() {
		return nil
	}

	candidates := detectEdgeBlocks(frame, bbox)
	if len(candidates) == 0 {
		return nil
	}

	now := frame.Timestamp
	zones := make([]core.Zone, 0, len(candidates))
	for _, c := range candidates {
		if c.confidence < a.minConfidence {
			continue
		}
		if len(zones) >= a.maxZones {
			break
		}
		zones = append(zones, core.Zone{
			ID:         uuid.NewString(),
			Label:      "",
			Kind:       classifyShape(c),
			State:      core.ZoneStateEnabled,
			Bounds:     c.bounds,
			Confidence: c.confidence,
			LastSeen:   now,
		})
	}
	return zones
}

type candidateRegion struct {
	bounds     core.Rect
	confidence float64
	aspect     float64
}

// detectEdgeBlocks re-buckets bbox into blockSize blocks that show a
// luminance edge against their neighbor and merges adjacent edge blocks into
// candidate rectangles. This is a coarse local primitive standing in for a
// true edge/contour detector; it never leaves the frame it was given.
func detectEdgeBlocks(frame *core.Frame, bbox core.Rect) []candidateRegion {
	x0, y0 := int(bbox.X), int(bbox.Y)
	x1, y1 := int(bbox.X+bbox.W), int(bbox.Y+bbox.H)
	if x1 > frame.Width {
		x1 = frame.Width
	}
	if y1 > frame.Height {
		y1 = frame.Height
	}
	if x0 >= x1 || y0 >= y1 {
		return nil
	}

	cols := (x1 - x0 + blockSize - 1) / blockSize
	rows := (y1 - y0 + blockSize - 1) / blockSize
	if cols == 0 || rows == 0 {
		return nil
	}

	edge := make([][]bool, rows)
	lum := make([][]float64, rows)
	for by := 0; by < rows; by++ {
		edge[by] = make([]bool, cols)
		lum[by] = make([]float64, cols)
		for bx := 0; bx < cols; bx++ {
			bx0 := x0 + bx*blockSize
			by0 := y0 + by*blockSize
			bx1 := min(bx0+blockSize, x1)
			by1 := min(by0+blockSize, y1)
			lum[by][bx] = avgLuminance(frame, bx0, by0, bx1, by1)
		}
	}
	for by := 0; by < rows; by++ {
		for bx := 0; bx < cols; bx++ {
			if hasEdgeNeighbor(lum, bx, by, cols, rows) {
				edge[by][bx] = true
			}
		}
	}

	visited := make([][]bool, rows)
	for i := range visited {
		visited[i] = make([]bool, cols)
	}

	var out []candidateRegion
	for by := 0; by < rows; by++ {
		for bx := 0; bx < cols; bx++ {
			if !edge[by][bx] || visited[by][bx] {
				continue
			}
			minBX, minBY, maxBX, maxBY := floodFill(edge, visited, bx, by, cols, rows)
			rx0 := x0 + minBX*blockSize
			ry0 := y0 + minBY*blockSize
			rx1 := x0 + (maxBX+1)*blockSize
			ry1 := y0 + (maxBY+1)*blockSize
			if rx1 > x1 {
				rx1 = x1
			}
			if ry1 > y1 {
				ry1 = y1
			}
			w, h := float64(rx1-rx0), float64(ry1-ry0)
			if w <= 0 || h <= 0 {
				continue
			}
			out = append(out, candidateRegion{
				bounds:     core.Rect{X: float64(rx0), Y: float64(ry0), W: w, H: h},
				confidence: regionConfidence(maxBX-minBX+1, maxBY-minBY+1),
				aspect:     w / h,
			})
		}
	}
	return out
}

func hasEdgeNeighbor(lum [][]float64, bx, by, cols, rows int) bool {
	const neighborThreshold = 0.08
	v := lum[by][bx]
	if bx+1 < cols && abs(lum[by][bx+1]-v) > neighborThreshold {
		return true
	}
	if by+1 < rows && abs(lum[by+1][bx]-v) > neighborThreshold {
		return true
	}
	return false
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

// floodFill merges a connected run of edge blocks and returns its block-space
// bounding box.
func floodFill(edge, visited [][]bool, startX, startY, cols, rows int) (minX, minY, maxX, maxY int) {
	stack := [][2]int{{startX, startY}}
	minX, minY, maxX, maxY = startX, startY, startX, startY

	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		x, y := p[0], p[1]
		if x < 0 || y < 0 || x >= cols || y >= rows || visited[y][x] || !edge[y][x] {
			continue
		}
		visited[y][x] = true
		if x < minX {
			minX = x
		}
		if x > maxX {
			maxX = x
		}
		if y < minY {
			minY = y
		}
		if y > maxY {
			maxY = y
		}
		stack = append(stack, [2]int{x + 1, y}, [2]int{x - 1, y}, [2]int{x, y + 1}, [2]int{x, y - 1})
	}
	return
}

// regionConfidence grows with the run size up to a ceiling: larger coherent
// blobs are more likely to be a real control than single isolated blocks.
func regionConfidence(blocksWide, blocksTall int) float64 {
	size := blocksWide * blocksTall
	switch {
	case size <= 1:
		return 0.3
	case size <= 4:
		return 0.5
	case size <= 12:
		return 0.7
	default:
		return 0.6 // very large runs are more likely background, not a control
	}
}

// classifyShape guesses a zone kind from aspect ratio alone, the only signal
// this local tier has without OCR or template matching.
func classifyShape(c candidateRegion) core.ZoneKind {
	switch {
	case c.aspect > 4:
		return core.ZoneKindTextField
	case c.aspect < 0.3:
		return core.ZoneKindScrollArea
	case c.aspect >= 0.8 && c.aspect <= 1.25:
		return core.ZoneKindIcon
	default:
		return core.ZoneKindButton
	}
}

// layout/geometry.go
package layout

import "math"

type Size struct {
	W int `json:"w"`
	H int `json:"h"`
}

// Covers reports whether s is at least as large as target on both axes.
func (s Size) Covers(target Size) bool {
	return s.W >= target.W && s.H >= target.H
}

// Rect is a crop window in pixel coordinates of the frame it is applied to.
type Rect struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

func (r Rect) Size() Size {
	return Size{W: r.W, H: r.H}
}

func fullFrame(s Size) Rect {
	return Rect{W: s.W, H: s.H}
}

// SmartResize scales src up, never down, so that it covers target. It is a
// no-op when src already covers target; otherwise the factor is
// max(target.W/src.W, target.H/src.H), applied to both axes.
func SmartResize(src, target Size) (Size, float64) {
	if src.W <= 0 || src.H <= 0 || src.Covers(target) {
		return src, 1
	}
	scale := math.Max(float64(target.W)/float64(src.W), float64(target.H)/float64(src.H))
	resized := Size{
		W: max(int(math.Round(float64(src.W)*scale)), target.W),
		H: max(int(math.Round(float64(src.H)*scale)), target.H),
	}
	return resized, scale
}

// CenterWeightedCrop trims whichever axis exceeds target, removing floor(n/2)
// pixels before the kept window and the rest after it. Axes already within
// target are left untouched.
func CenterWeightedCrop(src, target Size) Rect {
	r := fullFrame(src)
	if target.H < src.H {
		remove := src.H - max(target.H, 0)
		r.Y = remove / 2
		r.H = src.H - remove
	}
	if target.W < src.W {
		remove := src.W - max(target.W, 0)
		r.X = remove / 2
		r.W = src.W - remove
	}
	return r
}

// RuleOfThirdsCrop reduces src to targetHeight. The frame is split into three
// zones of src.H/3 pixels. Removal comes from the bottom zone first; anything
// beyond the bottom zone is taken 30% from the top and 70% from the middle.
func RuleOfThirdsCrop(src Size, targetHeight int) Rect {
	remove := src.H - max(targetHeight, 0)
	if remove <= 0 {
		return fullFrame(src)
	}

	zone := src.H / 3
	if remove <= zone {
		return Rect{W: src.W, H: src.H - remove}
	}

	remaining := remove - zone
	top := int(math.Round(0.3 * float64(remaining)))
	middle := remaining - top
	return Rect{
		Y: top,
		W: src.W,
		H: src.H - top - middle - zone,
	}
}

// PercentOf returns round(percentage/100 * total).
func PercentOf(percentage, total int) int {
	return int(math.Round(float64(percentage) / 100 * float64(total)))
}

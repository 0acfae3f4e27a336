// layout/plan.go
package layout

import (
	"errors"
	"fmt"
	"time"

	"github.com/vitovidale/autosplit-service/domain"
)

var ErrInvalidInput = errors.New("invalid composition input")

type Stack string

const (
	// StackVertical places clips one above the other (horizontal split).
	StackVertical Stack = "vstack"
	// StackHorizontal places clips side by side (vertical split).
	StackHorizontal Stack = "hstack"
)

// ClipPlan describes how one input clip is transformed: optional upscale
// to Resized, then Crop in resized coordinates.
type ClipPlan struct {
	Source  Size    `json:"source"`
	Scale   float64 `json:"scale"`
	Resized Size    `json:"resized"`
	Crop    Rect    `json:"crop"`
}

func (c ClipPlan) Output() Size {
	return c.Crop.Size()
}

// Empty reports a zero-extent clip, which is left out of the stack.
func (c ClipPlan) Empty() bool {
	return c.Crop.W <= 0 || c.Crop.H <= 0
}

func (c ClipPlan) Resizes() bool {
	return c.Resized != c.Source
}

// Plan is the derived geometry for one job. It is a pure function of the
// layout, the measured dimensions and the durations.
type Plan struct {
	Layout       domain.Layout `json:"layout"`
	Frame        Size          `json:"frame"`
	Stack        Stack         `json:"stack"`
	Primary      ClipPlan      `json:"primary"`
	Gameplay     ClipPlan      `json:"gameplay"`
	PrimaryFirst bool          `json:"primary_first"`
	Duration     time.Duration `json:"duration"`
	LoopGameplay bool          `json:"loop_gameplay"`
}

// Input holds what was measured from the two source clips.
type Input struct {
	Primary          Size
	PrimaryDuration  time.Duration
	Gameplay         Size
	GameplayDuration time.Duration
}

// ReconcileDuration makes the gameplay last exactly as long as the primary:
// truncated when longer, looped when shorter.
func ReconcileDuration(primary, gameplay time.Duration) (time.Duration, bool) {
	return primary, gameplay < primary
}

func BuildPlan(l domain.Layout, in Input) (Plan, error) {
	if in.Primary.W <= 0 || in.Primary.H <= 0 || in.Gameplay.W <= 0 || in.Gameplay.H <= 0 {
		return Plan{}, fmt.Errorf("%w: non-positive dimensions primary=%dx%d gameplay=%dx%d",
			ErrInvalidInput, in.Primary.W, in.Primary.H, in.Gameplay.W, in.Gameplay.H)
	}
	if in.PrimaryDuration <= 0 || in.GameplayDuration <= 0 {
		return Plan{}, fmt.Errorf("%w: non-positive duration primary=%s gameplay=%s",
			ErrInvalidInput, in.PrimaryDuration, in.GameplayDuration)
	}

	duration, loop := ReconcileDuration(in.PrimaryDuration, in.GameplayDuration)
	plan := Plan{
		Layout:       l,
		PrimaryFirst: l.PrimaryFirst(),
		Duration:     duration,
		LoopGameplay: loop,
	}

	width, height := in.Primary.W, in.Primary.H
	switch {
	case l.Split == domain.SplitHorizontal:
		primaryHeight := PercentOf(l.Percentage, height)
		gameplayTarget := Size{W: width, H: height - primaryHeight}

		plan.Stack = StackVertical
		plan.Frame = in.Primary
		plan.Primary = ClipPlan{
			Source:  in.Primary,
			Scale:   1,
			Resized: in.Primary,
			Crop:    RuleOfThirdsCrop(in.Primary, primaryHeight),
		}
		plan.Gameplay = coverAndCrop(in.Gameplay, gameplayTarget)

	case l.Split == domain.SplitVertical && l.Edit == domain.EditCrop:
		primaryWidth := PercentOf(l.Percentage, width)

		plan.Stack = StackHorizontal
		plan.Frame = in.Primary
		plan.Primary = coverAndCrop(in.Primary, Size{W: primaryWidth, H: height})
		plan.Gameplay = coverAndCrop(in.Gameplay, Size{W: width - primaryWidth, H: height})

	case l.Split == domain.SplitVertical && l.Edit == domain.EditFit:
		plan.Stack = StackHorizontal
		plan.Frame = Size{W: 2 * width, H: height}
		plan.Primary = ClipPlan{
			Source:  in.Primary,
			Scale:   1,
			Resized: in.Primary,
			Crop:    fullFrame(in.Primary),
		}
		plan.Gameplay = coverAndCrop(in.Gameplay, in.Primary)

	default:
		return Plan{}, fmt.Errorf("%w: split=%q edit=%q", domain.ErrInvalidLayout, l.Split, l.Edit)
	}

	return plan, nil
}

func coverAndCrop(src, target Size) ClipPlan {
	resized, scale := SmartResize(src, target)
	return ClipPlan{
		Source:  src,
		Scale:   scale,
		Resized: resized,
		Crop:    CenterWeightedCrop(resized, target),
	}
}

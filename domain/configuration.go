// domain/configuration.go
package domain

import (
	"fmt"
	"strings"
)

type SplitType string

const (
	SplitNone       SplitType = "none"
	SplitHorizontal SplitType = "horizontal"
	SplitVertical   SplitType = "vertical"
)

type Position string

const (
	PositionTop    Position = "top"
	PositionBottom Position = "bottom"
	PositionLeft   Position = "left"
	PositionRight  Position = "right"
)

type EditType string

const (
	EditCrop EditType = "crop"
	EditFit  EditType = "fit"
)

// Layout is the validated split description of a configuration. A nil
// *Layout means split_type none: the job is a pass-through copy.
type Layout struct {
	Split      SplitType
	Position   Position
	Percentage int
	Edit       EditType
}

// NewLayout validates the raw columns and returns nil for split_type none
// (or empty). Edit type is meaningful only for vertical splits and is
// normalised to crop otherwise.
func NewLayout(split, position string, percentage int, edit string) (*Layout, error) {
	s := SplitType(strings.ToLower(strings.TrimSpace(split)))
	if s == "" || s == SplitNone {
		return nil, nil
	}
	if percentage < 0 || percentage > 100 {
		return nil, fmt.Errorf("%w: original_video_percentage %d out of [0,100]", ErrInvalidLayout, percentage)
	}

	p := Position(strings.ToLower(strings.TrimSpace(position)))
	e := EditType(strings.ToLower(strings.TrimSpace(edit)))

	switch s {
	case SplitHorizontal:
		if p != PositionTop && p != PositionBottom {
			return nil, fmt.Errorf("%w: position %q with horizontal split", ErrInvalidLayout, position)
		}
		e = EditCrop
	case SplitVertical:
		if p != PositionLeft && p != PositionRight {
			return nil, fmt.Errorf("%w: position %q with vertical split", ErrInvalidLayout, position)
		}
		if e == "" {
			e = EditCrop
		}
		if e != EditCrop && e != EditFit {
			return nil, fmt.Errorf("%w: edit type %q", ErrInvalidLayout, edit)
		}
	default:
		return nil, fmt.Errorf("%w: split type %q", ErrInvalidLayout, split)
	}

	return &Layout{Split: s, Position: p, Percentage: percentage, Edit: e}, nil
}

// PrimaryFirst reports whether the original video goes first in the stack
// (top or left).
func (l Layout) PrimaryFirst() bool {
	return l.Position == PositionTop || l.Position == PositionLeft
}

// Configuration is a named, user-owned editing template.
type Configuration struct {
	ID     string
	UserID string
	Name   string
	Layout *Layout
}

// Matches compares a normalized text command against the configuration name.
func (c Configuration) Matches(text string) bool {
	return strings.EqualFold(strings.TrimSpace(c.Name), NormalizeText(text))
}

// NormalizeText trims and case-folds a direct message.
func NormalizeText(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

// FindConfiguration returns the configuration whose name matches text.
func FindConfiguration(configs []Configuration, text string) (Configuration, bool) {
	for _, c := range configs {
		if c.Matches(text) {
			return c, true
		}
	}
	return Configuration{}, false
}

type Gameplay struct {
	ID       string
	Title    string
	Category string
}

// Account is a registered user of the service, linked to a messaging sender
// once their platform username is matched.
type Account struct {
	ID              string
	Email           string
	SenderID        string
	Username        string
	DefaultConfigID string
	AccessToken     string
}

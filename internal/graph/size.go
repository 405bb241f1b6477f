package graph

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Box metrics shared with the renderer.
const (
	HeaderHeight = 22.0
	LineHeight   = 16.0
	MetaHeight   = 18.0
	Padding      = 8.0
	StripWidth   = 6.0
	// CharWidth is the average glyph advance of the body font.
	CharWidth = 7.0
)

// Sizing controls node dimensions.
type Sizing struct {
	NodeWidth    float64 `yaml:"node_width" toml:"node_width" json:"nodeWidth"`
	MaxBodyLines int     `yaml:"max_body_lines" toml:"max_body_lines" json:"maxBodyLines"`
}

// DefaultSizing is a 200 unit wide box, 25 characters per body line.
var DefaultSizing = Sizing{NodeWidth: 200, MaxBodyLines: 6}

// Validate implements config.Validator.
func (s Sizing) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.NodeWidth, validation.Required, validation.Min(40.0)),
		validation.Field(&s.MaxBodyLines, validation.Required, validation.Min(1)),
	)
}

// OrDefault fills zero fields from DefaultSizing.
func (s Sizing) OrDefault() Sizing {
	if s.NodeWidth <= 0 {
		s.NodeWidth = DefaultSizing.NodeWidth
	}
	if s.MaxBodyLines <= 0 {
		s.MaxBodyLines = DefaultSizing.MaxBodyLines
	}
	return s
}

// LineChars is the body character budget of a box width wide.
func LineChars(width float64) int {
	n := int((width - StripWidth - 2*Padding) / CharWidth)
	if n < 1 {
		return 1
	}
	return n
}

// EstimateLines is the number of body lines text wraps to, capped.
func (s Sizing) EstimateLines(text string) int {
	lines := len(Wrap(text, LineChars(s.NodeWidth), s.MaxBodyLines))
	if lines < 1 {
		return 1
	}
	return lines
}

// Height returns the box height for a body of text.
func (s Sizing) Height(text string) float64 {
	return HeaderHeight + float64(s.EstimateLines(text))*LineHeight + MetaHeight + Padding
}

// MaxHeight is the height of a box with a full body.
func (s Sizing) MaxHeight() float64 {
	return HeaderHeight + float64(s.MaxBodyLines)*LineHeight + MetaHeight + Padding
}

// BodyLines is how many body lines fit in a box of height h.
func BodyLines(h float64) int {
	n := int((h - HeaderHeight - MetaHeight - Padding) / LineHeight)
	if n < 1 {
		return 1
	}
	return n
}

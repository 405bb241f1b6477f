package api

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/marginalia/internal/annotations"
	"github.com/starford/marginalia/internal/canvas"
	"github.com/starford/marginalia/internal/index"
	"github.com/starford/marginalia/internal/links"
	"github.com/starford/marginalia/internal/models"
	"github.com/starford/marginalia/internal/render"
)

func paletteIn() validation.Rule {
	vals := make([]any, len(models.Palette))
	for i, c := range models.Palette {
		vals[i] = string(c)
	}
	return validation.In(vals...)
}

// CreateNoteRequest is the request body for POST /notes.
type CreateNoteRequest struct {
	Text string `json:"text" example:"Compare with chapter 3"`
	Page int    `json:"page" example:"4"`
}

// Validate implements validation.Validatable.
func (r CreateNoteRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Page, validation.Min(0)),
	)
}

// CreateHighlightRequest is the request body for POST /highlights.
type CreateHighlightRequest struct {
	Text                string `json:"text" example:"revenue growth" validate:"required"`
	Note                string `json:"note,omitempty"`
	Color               string `json:"color,omitempty" example:"green"`
	Page                int    `json:"page"`
	StartOffset         *int   `json:"startOffset,omitempty"`
	EndOffset           *int   `json:"endOffset,omitempty"`
	SourceView          string `json:"sourceView,omitempty"`
	TranslationLanguage string `json:"translationLanguage,omitempty"`
}

// Validate implements validation.Validatable.
func (r CreateHighlightRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Text, validation.Required),
		validation.Field(&r.Color, paletteIn()),
		validation.Field(&r.Page, validation.Min(0)),
	)
}

func (r CreateHighlightRequest) input() annotations.HighlightInput {
	return annotations.HighlightInput{
		Text:                r.Text,
		Note:                r.Note,
		Color:               models.Color(r.Color),
		Page:                r.Page,
		StartOffset:         r.StartOffset,
		EndOffset:           r.EndOffset,
		SourceView:          r.SourceView,
		TranslationLanguage: r.TranslationLanguage,
	}
}

// UpdateAnnotationRequest is the request body for PATCH /annotations/{id}.
type UpdateAnnotationRequest struct {
	annotations.Patch
}

// Validate implements validation.Validatable. A nil color is left alone.
func (r UpdateAnnotationRequest) Validate() error {
	return validation.ValidateStruct(&r.Patch,
		validation.Field(&r.Patch.Color),
	)
}

// LinkRequest is the request body for the link endpoints. An empty
// targetFilePath means the current document; an empty targetId with a
// targetFilePath links to that document as a whole.
type LinkRequest struct {
	SourceID       string `json:"sourceId" validate:"required"`
	TargetID       string `json:"targetId,omitempty"`
	TargetFilePath string `json:"targetFilePath,omitempty"`
}

// Validate implements validation.Validatable.
func (r LinkRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.SourceID, validation.Required),
		validation.Field(&r.TargetID, validation.When(r.TargetFilePath == "", validation.Required)),
	)
}

// LinkResponse reports the outcome of a toggle.
type LinkResponse struct {
	Result links.Result `json:"result" example:"created"`
}

// AnnotationResponse is an annotation with its resolved links.
type AnnotationResponse struct {
	*models.Annotation
	LinkViews []links.View         `json:"linkViews"`
	Backlinks []*models.Annotation `json:"backlinks"`
}

// AnnotationListResponse wraps list results.
type AnnotationListResponse struct {
	Path        string               `json:"path"`
	Annotations []*models.Annotation `json:"annotations"`
	Total       int                  `json:"total"`
}

// DocumentResponse is returned when a document is opened.
type DocumentResponse struct {
	Path       string               `json:"path"`
	Notes      []*models.Annotation `json:"notes"`
	Highlights []*models.Annotation `json:"highlights"`
	Degraded   bool                 `json:"degraded"`
}

// SearchResponse is returned by the search endpoint.
type SearchResponse struct {
	Query string      `json:"query"`
	Hits  []index.Hit `json:"hits"`
}

var eventKinds = []any{
	canvas.PointerDown, canvas.PointerMove, canvas.PointerUp,
	canvas.Wheel, canvas.DoubleClick, canvas.MenuClosed,
}

// CanvasEventsRequest carries a batch of input events, applied in order.
type CanvasEventsRequest struct {
	Events []canvas.Event `json:"events"`
}

// Validate implements validation.Validatable.
func (r CanvasEventsRequest) Validate() error {
	if err := validation.Validate(r.Events, validation.Required); err != nil {
		return validation.Errors{"events": err}
	}
	for _, ev := range r.Events {
		if err := validation.Validate(ev.Kind, validation.Required, validation.In(eventKinds...)); err != nil {
			return validation.Errors{"events": err}
		}
	}
	return nil
}

// MenuRequest applies a context menu entry to the target it was opened on.
type MenuRequest struct {
	Target canvas.MenuTarget `json:"target"`
	Item   render.MenuItem   `json:"item"`
}

// Validate implements validation.Validatable.
func (r MenuRequest) Validate() error {
	return validation.ValidateStruct(&r.Item,
		validation.Field(&r.Item.Action, validation.Required),
	)
}

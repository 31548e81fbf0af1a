package result

import (
	"fmt"
	"html/template"
)

// Message kinds emitted by the renderer.
const (
	KindResult = "result"
	KindReset  = "reset"
)

// Sink delivers renderer output to a page.
type Sink interface {
	Emit(kind string, payload any) error
}

// Payload is the body of a result message.
type Payload struct {
	View
	Panel template.HTML `json:"panel"`
}

// Renderer shows and hides the result area and probability panel of one page.
type Renderer struct {
	sink    Sink
	topK    int
	visible bool
}

func NewRenderer(sink Sink, topK int) *Renderer {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Renderer{sink: sink, topK: topK}
}

// Show renders probs and makes both panels visible.
func (r *Renderer) Show(probs []float32) (View, error) {
	view := Render(probs, r.topK)
	panel, err := view.PanelHTML()
	if err != nil {
		return view, err
	}
	if err := r.sink.Emit(KindResult, Payload{View: view, Panel: panel}); err != nil {
		return view, fmt.Errorf("send result: %w", err)
	}
	r.visible = true
	return view, nil
}

// Reset hides both panels. It is a no-op when nothing is shown.
func (r *Renderer) Reset() error {
	if !r.visible {
		return nil
	}
	if err := r.sink.Emit(KindReset, nil); err != nil {
		return fmt.Errorf("send reset: %w", err)
	}
	r.visible = false
	return nil
}

// Visible reports whether a result is currently displayed.
func (r *Renderer) Visible() bool { return r.visible }

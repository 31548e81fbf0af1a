// Package result ranks class probabilities and renders them for the page.
package result

import (
	"bytes"
	"fmt"
	"html/template"
	"sort"
)

// DefaultTopK is how many classes the probability panel lists.
const DefaultTopK = 5

type Ranked struct {
	Digit       int
	Probability float32
}

// Bar is one row of the probability panel.
type Bar struct {
	Digit   int     `json:"digit"`
	Percent string  `json:"percent"`
	Width   float64 `json:"width"`
}

// View is everything the page shows after a prediction.
type View struct {
	Digit      int    `json:"digit"`
	Confidence string `json:"confidence"`
	Bars       []Bar  `json:"bars"`
}

// PredictedDigit is the index of the largest probability; ties go to the
// lowest index. It returns -1 for an empty vector.
func PredictedDigit(probs []float32) int {
	best := -1
	for i, p := range probs {
		if best < 0 || p > probs[best] {
			best = i
		}
	}
	return best
}

// Confidence formats the largest probability as a percentage with two decimals.
func Confidence(probs []float32) string {
	i := PredictedDigit(probs)
	if i < 0 {
		return "0.00"
	}
	return fmt.Sprintf("%.2f", float64(probs[i])*100)
}

// Rank orders all classes by descending probability. Equal probabilities
// keep digit order.
func Rank(probs []float32) []Ranked {
	ranked := make([]Ranked, len(probs))
	for i, p := range probs {
		ranked[i] = Ranked{Digit: i, Probability: p}
	}
	sort.SliceStable(ranked, func(a, b int) bool {
		return ranked[a].Probability > ranked[b].Probability
	})
	return ranked
}

// TopK returns the first k entries of Rank.
func TopK(probs []float32, k int) []Ranked {
	ranked := Rank(probs)
	if k < len(ranked) {
		ranked = ranked[:k]
	}
	return ranked
}

// Render builds the view for a probability vector.
func Render(probs []float32, k int) View {
	top := TopK(probs, k)
	bars := make([]Bar, len(top))
	for i, r := range top {
		pct := float64(r.Probability) * 100
		bars[i] = Bar{
			Digit:   r.Digit,
			Percent: fmt.Sprintf("%.1f", pct),
			Width:   clampPercent(pct),
		}
	}
	return View{
		Digit:      PredictedDigit(probs),
		Confidence: Confidence(probs),
		Bars:       bars,
	}
}

func clampPercent(p float64) float64 {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	default:
		return p
	}
}

var panelTemplate = template.Must(template.New("probabilities").Parse(
	`<h3 class="prob-title">Probabilities:</h3>
{{range .Bars}}<div class="prob-bar">
  <div class="prob-label"><span>Digit {{.Digit}}</span><span>{{.Percent}}%</span></div>
  <div class="prob-fill-container"><div class="prob-fill" style="width: {{.Percent}}%"></div></div>
</div>
{{end}}`))

// PanelHTML renders the probability panel markup.
func (v View) PanelHTML() (template.HTML, error) {
	var buf bytes.Buffer
	if err := panelTemplate.Execute(&buf, v); err != nil {
		return "", fmt.Errorf("render probability panel: %w", err)
	}
	return template.HTML(buf.String()), nil
}

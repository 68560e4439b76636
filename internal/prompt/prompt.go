// Package prompt turns a batch request into Work Items and renders the
// instruction sent to the model for each of them.
package prompt

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrEmptyTopic    = errors.New("topic is required")
	ErrQuantityRange = errors.New("quantity out of range")
	ErrUnknownMode   = errors.New("unknown visual mode")
)

// ModelVersion is appended to every prompt's mandatory parameters.
const ModelVersion = "--v 6.0"

// Request is what a user asks for: Quantity prompts on Topic in one Mode.
type Request struct {
	Topic    string `json:"topic"`
	ModeID   string `json:"mode"`
	Trend    string `json:"trend,omitempty"`
	Quantity int    `json:"quantity"`
}

// WorkItem is one prompt to generate.
type WorkItem struct {
	Index int
	Topic string
	Mode  Mode
	Trend string
}

// Label names what the item was generated under.
func (w WorkItem) Label() string {
	if w.Trend == "" {
		return w.Mode.Name
	}
	return w.Mode.Name + " + " + w.Trend
}

// Instruction renders the text sent to the model.
func (w WorkItem) Instruction() string {
	var b strings.Builder
	b.WriteString("Task: Create 1 Midjourney prompt description only.\n")
	fmt.Fprintf(&b, "Topic: %q\n", w.Topic)
	fmt.Fprintf(&b, "Style: %q", w.Mode.Name)
	if w.Trend != "" {
		fmt.Fprintf(&b, " + Trend: %s", w.Trend)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "Mandatory Params: %s --ar %s %s\n\n", w.Mode.Keywords, w.Mode.AspectRatio, ModelVersion)
	b.WriteString("INSTRUCTION:\n")
	b.WriteString("- Do NOT use '/imagine prompt:' prefix.\n")
	b.WriteString(`- Return output in strictly Valid JSON format: { "prompt": "your prompt text here" }`)
	b.WriteString("\n")
	return b.String()
}

// Build validates req and expands it into Quantity work items.
// All checks happen before any network call.
func Build(req Request, maxQuantity int) ([]WorkItem, error) {
	topic := strings.TrimSpace(req.Topic)
	if topic == "" {
		return nil, ErrEmptyTopic
	}
	if req.Quantity < 1 || req.Quantity > maxQuantity {
		return nil, fmt.Errorf("%w: %d not in 1..%d", ErrQuantityRange, req.Quantity, maxQuantity)
	}
	mode, err := LookupMode(req.ModeID)
	if err != nil {
		return nil, err
	}

	items := make([]WorkItem, req.Quantity)
	for i := range items {
		items[i] = WorkItem{
			Index: i,
			Topic: topic,
			Mode:  mode,
			Trend: strings.TrimSpace(req.Trend),
		}
	}
	return items, nil
}

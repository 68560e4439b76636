// Package export renders batch results into downloadable files and
// delivers them to a local directory or S3.
package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"

	"promptforge/internal/dispatch"
)

const (
	FormatText = "txt"
	FormatHTML = "html"
)

var ErrUnknownFormat = errors.New("unknown export format")

// Artifact is a rendered result file.
type Artifact struct {
	Name        string
	ContentType string
	Data        []byte
}

// Writer delivers an artifact and returns where it ended up.
type Writer interface {
	Write(ctx context.Context, a Artifact) (string, error)
}

// FileName is prompts_<topic>.<ext> with spaces replaced by underscores.
func FileName(topic, ext string) string {
	name := strings.TrimSpace(topic)
	name = strings.NewReplacer(" ", "_", "/", "_", "\\", "_", "..", "_").Replace(name)
	if name == "" {
		name = "untitled"
	}
	return "prompts_" + name + "." + ext
}

// Text numbers each prompt from 1, separated by blank lines.
func Text(results []dispatch.Result) []byte {
	var buf bytes.Buffer
	for i, r := range results {
		fmt.Fprintf(&buf, "%d. %s\n\n", i+1, r.Text)
	}
	return buf.Bytes()
}

// Markdown lists every prompt in its own code block, ready to copy.
func Markdown(topic string, results []dispatch.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Prompts: %s\n\n", topic)
	for i, r := range results {
		fmt.Fprintf(&b, "## Prompt #%d\n\n", i+1)
		if r.Label != "" {
			fmt.Fprintf(&b, "*%s*\n\n", r.Label)
		}
		b.WriteString("```text\n")
		b.WriteString(r.Text)
		b.WriteString("\n```\n\n")
	}
	return b.String()
}

// HTML renders Markdown into a standalone page.
func HTML(topic string, results []dispatch.Result) ([]byte, error) {
	var body bytes.Buffer
	if err := goldmark.Convert([]byte(Markdown(topic, results)), &body); err != nil {
		return nil, fmt.Errorf("failed to render markdown: %w", err)
	}

	var page bytes.Buffer
	page.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n<title>Prompts</title>\n</head>\n<body>\n")
	page.Write(body.Bytes())
	page.WriteString("</body>\n</html>\n")
	return page.Bytes(), nil
}

// Render builds the artifact for format.
func Render(format, topic string, results []dispatch.Result) (Artifact, error) {
	switch format {
	case "", FormatText:
		return Artifact{Name: FileName(topic, FormatText), ContentType: "text/plain; charset=utf-8", Data: Text(results)}, nil
	case FormatHTML:
		data, err := HTML(topic, results)
		if err != nil {
			return Artifact{}, err
		}
		return Artifact{Name: FileName(topic, FormatHTML), ContentType: "text/html; charset=utf-8", Data: data}, nil
	default:
		return Artifact{}, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// Package adapter maps workflow nodes onto the generation back-ends. Each adapter
// turns a node and its aggregated inputs into a provider request, and the
// provider's answer back into a node payload.
package adapter

import (
	"io"
	"strings"

	"github.com/meikuraledutech/workflow"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// BuildPrompt joins the node's own prompt with the plain text of every upstream
// text, separated by blank lines. Empty pieces are skipped.
func BuildPrompt(own string, texts []workflow.TextInput) string {
	parts := make([]string, 0, 1+len(texts))
	if p := strings.TrimSpace(own); p != "" {
		parts = append(parts, p)
	}
	for _, t := range texts {
		if p := PlainText(t.Content); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, "\n\n")
}

// PlainText strips markup from rich text. Block elements and <br> become line
// breaks, entities are decoded, runs of whitespace collapse to one space and blank
// lines are dropped. Script and style contents are discarded.
func PlainText(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return collapse(s)
	}

	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(s))
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			if z.Err() != io.EOF {
				return collapse(s)
			}
			return collapse(b.String())
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
			}
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			a := atom.Lookup(name)
			if a == atom.Script || a == atom.Style {
				skip++
			}
			if breaks(a) {
				b.WriteByte('\n')
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			a := atom.Lookup(name)
			if (a == atom.Script || a == atom.Style) && skip > 0 {
				skip--
			}
			if breaks(a) {
				b.WriteByte('\n')
			}
		}
	}
}

func breaks(a atom.Atom) bool {
	switch a {
	case atom.Br, atom.P, atom.Div, atom.Li, atom.Ul, atom.Ol, atom.Blockquote, atom.Pre,
		atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6, atom.Tr, atom.Hr:
		return true
	}
	return false
}

func collapse(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, l := range lines {
		if l = strings.Join(strings.Fields(l), " "); l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}

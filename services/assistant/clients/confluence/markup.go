// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package confluence

import (
	"html"
	"strings"

	xhtml "golang.org/x/net/html"
)

// StripMarkup converts Confluence storage-format markup to plain text.
//
// Description:
//
//	Script, style and macro parameters are dropped. Task lists become
//	markdown checkboxes ("- [x] done", "- [ ] open"), list items become
//	"- " lines, block elements end a line, and CDATA code bodies are kept.
//	Whitespace inside a line is collapsed.
func StripMarkup(storage string) string {
	trimmed := strings.TrimSpace(storage)
	if trimmed == "" {
		return ""
	}
	doc, err := xhtml.Parse(strings.NewReader(trimmed))
	if err != nil {
		return collapseSpaces(html.UnescapeString(trimmed))
	}
	var w textWriter
	w.walk(doc)
	return w.result()
}

type textWriter struct {
	lines []string
	cur   strings.Builder
}

func (w *textWriter) walk(n *xhtml.Node) {
	switch n.Type {
	case xhtml.TextNode:
		w.text(n.Data)
		return
	case xhtml.CommentNode:
		if body, ok := strings.CutPrefix(n.Data, "[CDATA["); ok {
			w.newline()
			for _, line := range strings.Split(strings.TrimSuffix(body, "]]"), "\n") {
				w.text(line)
				w.newline()
			}
		}
		return
	case xhtml.ElementNode:
		name := strings.ToLower(n.Data)
		switch name {
		case "script", "style", "noscript", "ac:parameter":
			return
		case "ac:task":
			w.task(n)
			return
		case "li":
			w.newline()
			w.cur.WriteString("- ")
		case "br":
			w.newline()
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			w.walk(c)
		}
		if isBlock(name) {
			w.newline()
		}
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		w.walk(c)
	}
}

func (w *textWriter) task(n *xhtml.Node) {
	var status, body string
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != xhtml.ElementNode {
			continue
		}
		switch strings.ToLower(c.Data) {
		case "ac:task-status":
			status = strings.TrimSpace(nodeText(c))
		case "ac:task-body":
			body = collapseSpaces(nodeText(c))
		}
	}
	box := "[ ]"
	if strings.EqualFold(status, "complete") {
		box = "[x]"
	}
	w.newline()
	w.cur.WriteString("- " + box + " " + body)
	w.newline()
}

func (w *textWriter) text(s string) {
	s = collapseSpaces(html.UnescapeString(s))
	if s == "" {
		return
	}
	if w.cur.Len() > 0 && !strings.HasSuffix(w.cur.String(), " ") {
		w.cur.WriteString(" ")
	}
	w.cur.WriteString(s)
}

func (w *textWriter) newline() {
	if line := strings.TrimSpace(w.cur.String()); line != "" && line != "-" {
		w.lines = append(w.lines, line)
	}
	w.cur.Reset()
}

func (w *textWriter) result() string {
	w.newline()
	return strings.Join(w.lines, "\n")
}

func nodeText(n *xhtml.Node) string {
	var b strings.Builder
	var walk func(*xhtml.Node)
	walk = func(n *xhtml.Node) {
		if n.Type == xhtml.TextNode {
			b.WriteString(n.Data)
			b.WriteString(" ")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func isBlock(name string) bool {
	switch name {
	case "p", "div", "h1", "h2", "h3", "h4", "h5", "h6", "li", "ul", "ol",
		"table", "tr", "pre", "blockquote", "section", "ac:task-list",
		"ac:structured-macro", "ac:layout-section", "ac:layout-cell":
		return true
	}
	return false
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

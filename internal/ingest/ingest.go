// Package ingest turns uploaded PDFs, pasted text and article URLs into the
// plain text handed to the extraction prompt.
package ingest

import (
	"errors"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Source kinds.
const (
	SourcePDF  = "pdf"
	SourceText = "text"
	SourceURL  = "url"
)

// ErrNoText is returned when an input yields no usable text.
var ErrNoText = errors.New("no text could be extracted from the input")

// Document is the text of one article together with where it came from.
type Document struct {
	Source string `json:"source"`          // pdf, text or url
	Name   string `json:"name,omitempty"`  // file name or URL
	Title  string `json:"title,omitempty"` // derived from the file name or page
	Text   string `json:"-"`
	Pages  int    `json:"pages,omitempty"`
	Chars  int    `json:"chars"`
}

// FromText wraps pasted text. Blank text yields ErrNoText.
func FromText(name, text string) (*Document, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrNoText
	}
	return &Document{
		Source: SourceText,
		Name:   name,
		Title:  deriveTitle(name),
		Text:   text,
		Chars:  utf8.RuneCountInString(text),
	}, nil
}

var numericSuffix = regexp.MustCompile(`[-_ ]\d+$`)

// deriveTitle extracts a title from a file name.
// e.g., "smith-2020.pdf" -> "smith-2020"
// e.g., "trial-report-1.pdf" -> "trial-report"
func deriveTitle(name string) string {
	if name == "" || name == "-" {
		return ""
	}
	base := filepath.Base(name)
	title := strings.TrimSuffix(base, filepath.Ext(base))

	// Remove part suffixes like "-1", "_2" but keep years.
	if m := numericSuffix.FindString(title); m != "" && len(m) < 4 {
		title = strings.TrimSuffix(title, m)
	}
	return title
}

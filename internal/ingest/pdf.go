package ingest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
)

var pdfMagic = []byte("%PDF-")

// ErrNotPDF is returned for inputs that do not start with a PDF header.
var ErrNotPDF = errors.New("input is not a PDF file")

// ExtractPDFText reads the embedded text layer of every page, skipping pages
// that fail to decode, and joins them with newlines. Scanned (image-only)
// PDFs have no text layer and yield ErrNoText.
func ExtractPDFText(r io.ReaderAt, size int64) (*Document, error) {
	header := make([]byte, len(pdfMagic))
	if _, err := r.ReadAt(header, 0); err != nil || !bytes.Equal(header, pdfMagic) {
		return nil, ErrNotPDF
	}

	reader, err := pdf.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}

	numPages := reader.NumPage()
	texts := make([]string, 0, numPages)
	for i := 1; i <= numPages; i++ {
		text, ok := pageText(reader, i)
		if !ok {
			continue
		}
		texts = append(texts, text)
	}

	text := strings.TrimSpace(strings.Join(texts, "\n"))
	if text == "" {
		return nil, ErrNoText
	}

	return &Document{
		Source: SourcePDF,
		Text:   text,
		Pages:  pageCount(r, size, numPages),
		Chars:  utf8.RuneCountInString(text),
	}, nil
}

// ExtractPDFBytes is ExtractPDFText over an in-memory file.
func ExtractPDFBytes(name string, data []byte) (*Document, error) {
	doc, err := ExtractPDFText(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}
	doc.Name = name
	doc.Title = deriveTitle(name)
	return doc, nil
}

// pageText returns the plain text of one page. The decoder panics on some
// malformed content streams; those pages are skipped.
func pageText(reader *pdf.Reader, i int) (text string, ok bool) {
	defer func() {
		if recover() != nil {
			text, ok = "", false
		}
	}()

	p := reader.Page(i)
	if p.V.IsNull() {
		return "", false
	}
	text, err := p.GetPlainText(nil)
	if err != nil {
		return "", false
	}
	return text, true
}

// pageCount prefers pdfcpu's count, which validates the cross-reference
// table, and falls back to the text reader's count.
func pageCount(r io.ReaderAt, size int64, fallback int) int {
	n, err := api.PageCount(io.NewSectionReader(r, 0, size), nil)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

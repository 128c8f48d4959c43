package ingest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-shiori/go-readability"
)

// MaxFetchBytes limits the size of a fetched article page or PDF.
const MaxFetchBytes = 20 << 20

const fetchUserAgent = "SysrevBot/1.0"

// FetchURL downloads an article and reduces it to readable text. HTML pages
// go through readability; PDF responses go through ExtractPDFText.
// A nil client uses a client with a 60 second timeout.
func FetchURL(ctx context.Context, client *http.Client, rawURL string) (*Document, error) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("unsupported URL scheme: %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("invalid URL: missing host")
	}

	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", fetchUserAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxFetchBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if len(body) > MaxFetchBytes {
		return nil, fmt.Errorf("response exceeds %d bytes", MaxFetchBytes)
	}

	// The final URL may differ after redirects.
	pageURL := parsed
	if resp.Request != nil && resp.Request.URL != nil {
		pageURL = resp.Request.URL
	}

	if isPDFResponse(resp.Header.Get("Content-Type"), body) {
		doc, err := ExtractPDFText(bytes.NewReader(body), int64(len(body)))
		if err != nil {
			return nil, err
		}
		doc.Source = SourceURL
		doc.Name = pageURL.String()
		doc.Title = deriveTitle(pageURL.Path)
		return doc, nil
	}

	article, err := readability.FromReader(bytes.NewReader(body), pageURL)
	if err != nil {
		return nil, fmt.Errorf("failed to extract article: %w", err)
	}

	text := strings.TrimSpace(article.TextContent)
	if text == "" {
		return nil, ErrNoText
	}

	return &Document{
		Source: SourceURL,
		Name:   pageURL.String(),
		Title:  strings.TrimSpace(article.Title),
		Text:   text,
		Chars:  utf8.RuneCountInString(text),
	}, nil
}

func isPDFResponse(contentType string, body []byte) bool {
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil && mediaType == "application/pdf" {
		return true
	}
	return bytes.HasPrefix(body, pdfMagic)
}

package ingest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jackzampolin/sysrev/internal/testutil"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		max       int
		want      string
		truncated bool
	}{
		{name: "short text unchanged", text: "hello", max: 10, want: "hello"},
		{name: "exact length unchanged", text: "hello", max: 5, want: "hello"},
		{name: "ascii cut", text: "hello world", max: 5, want: "hello", truncated: true},
		{name: "multibyte counted as characters", text: "ñandú café", max: 5, want: "ñandú", truncated: true},
		{name: "cjk", text: "日本語のテキスト", max: 3, want: "日本語", truncated: true},
		{name: "multibyte fits by runes", text: "ééé", max: 3, want: "ééé"},
		{name: "empty", text: "", max: 3, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, truncated := Truncate(tt.text, tt.max)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.truncated, truncated)
		})
	}
}

func TestTruncate_DefaultBound(t *testing.T) {
	long := strings.Repeat("a", DefaultMaxChars+10)

	got, truncated := Truncate(long, 0)
	assert.True(t, truncated)
	assert.Equal(t, DefaultMaxChars, len(got))

	got, truncated = Truncate(long, -1)
	assert.True(t, truncated)
	assert.Equal(t, DefaultMaxChars, len(got))
}

// The result never exceeds the bound and is always a valid prefix.
func TestTruncate_NeverExceedsBound(t *testing.T) {
	inputs := []string{
		strings.Repeat("x", 1000),
		strings.Repeat("ü", 1000),
		strings.Repeat("a😀b", 300),
		"mixed ascii, ñ, 中文 and emoji 🎉 " + strings.Repeat("z", 50),
	}
	for _, in := range inputs {
		for _, n := range []int{1, 2, 3, 7, 64, 999, 1000, 5000} {
			got, _ := Truncate(in, n)
			require.LessOrEqual(t, utf8.RuneCountInString(got), n)
			require.True(t, strings.HasPrefix(in, got))
			require.True(t, utf8.ValidString(got))
		}
	}
}

func TestFromText(t *testing.T) {
	doc, err := FromText("notes.txt", "  Some article text.  \n")
	require.NoError(t, err)
	assert.Equal(t, SourceText, doc.Source)
	assert.Equal(t, "Some article text.", doc.Text)
	assert.Equal(t, 18, doc.Chars)
	assert.Equal(t, "notes", doc.Title)

	_, err = FromText("", " \n\t ")
	assert.ErrorIs(t, err, ErrNoText)
}

func TestDeriveTitle(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"/path/to/smith-2020.pdf", "smith-2020"},
		{"/path/to/trial-report-1.pdf", "trial-report"},
		{"/path/to/trial-report-10.pdf", "trial-report"},
		{"simple.pdf", "simple"},
		{"-", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, deriveTitle(tt.input))
		})
	}
}

func TestExtractPDFText(t *testing.T) {
	data := testutil.BuildPDF("Randomized trial of drug A", "Results were significant")

	doc, err := ExtractPDFBytes("/uploads/trial-1.pdf", data)
	require.NoError(t, err)
	assert.Equal(t, SourcePDF, doc.Source)
	assert.Equal(t, "trial", doc.Title)
	assert.Equal(t, 2, doc.Pages)
	assert.Contains(t, doc.Text, "Randomized trial of drug A")
	assert.Contains(t, doc.Text, "Results were significant")
	assert.Equal(t, utf8.RuneCountInString(doc.Text), doc.Chars)
}

func TestExtractPDFText_Errors(t *testing.T) {
	_, err := ExtractPDFBytes("notes.txt", []byte("plain text, not a pdf"))
	assert.ErrorIs(t, err, ErrNotPDF)

	_, err = ExtractPDFBytes("empty.pdf", nil)
	assert.ErrorIs(t, err, ErrNotPDF)

	_, err = ExtractPDFBytes("blank.pdf", testutil.BuildPDF(""))
	assert.ErrorIs(t, err, ErrNoText)
}

func TestFetchURL_HTML(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, fetchUserAgent, r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<!DOCTYPE html><html><head><title>Enzyme Replacement Trial</title></head>
<body><nav>Home | About</nav><article><h1>Enzyme Replacement Trial</h1>
<p>We enrolled forty-two patients with late-onset disease in a randomized, double-blind trial conducted in Spain.</p>
<p>The primary outcome was the six minute walk test, which improved by 30 metres (p = 0.03) after 12 months of therapy.</p>
<p>Adverse events were mild and comparable between groups; no patient discontinued treatment during the study period.</p>
</article><footer>Copyright</footer></body></html>`)
	}))
	defer server.Close()

	doc, err := FetchURL(context.Background(), server.Client(), server.URL+"/article")
	require.NoError(t, err)
	assert.Equal(t, SourceURL, doc.Source)
	assert.Equal(t, server.URL+"/article", doc.Name)
	assert.Contains(t, doc.Text, "forty-two patients")
	assert.Contains(t, doc.Text, "six minute walk test")
}

func TestFetchURL_PDF(t *testing.T) {
	data := testutil.BuildPDF("Cohort study of 12 patients")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write(data)
	}))
	defer server.Close()

	doc, err := FetchURL(context.Background(), nil, server.URL+"/papers/cohort.pdf")
	require.NoError(t, err)
	assert.Equal(t, SourceURL, doc.Source)
	assert.Equal(t, "cohort", doc.Title)
	assert.Contains(t, doc.Text, "Cohort study of 12 patients")
}

func TestFetchURL_Errors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	_, err := FetchURL(context.Background(), nil, server.URL)
	assert.Error(t, err)

	_, err = FetchURL(context.Background(), nil, "ftp://example.com/file")
	assert.Error(t, err)

	_, err = FetchURL(context.Background(), nil, "not a url")
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrNoText))
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/sysrev/internal/extract"
	"github.com/jackzampolin/sysrev/internal/ingest"
	"github.com/jackzampolin/sysrev/internal/llmcall"
	"github.com/jackzampolin/sysrev/internal/providers"
	"github.com/jackzampolin/sysrev/internal/report"
	"github.com/jackzampolin/sysrev/internal/store"
)

// extractOptions holds the extract command flags.
type extractOptions struct {
	pdf, textFile, text, url string
	stdin                    bool

	provider, model string
	temperature     float64
	maxOutputTokens int
	maxChars        int
	forceEnglish    bool
	allowUnknown    bool
	save            bool

	format, out string
	export      bool
	render      bool
}

var extractFlags extractOptions

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract one document without a server",
	Long: `Run a single extraction locally and write the result.

Exactly one input is required. The record is written to stdout as JSON
or markdown unless --out or --export names a file. --render prints the
markdown report styled for the terminal.

Examples:
  sysrev extract --pdf paper.pdf
  sysrev extract --pdf paper.pdf --format markdown --out report.md
  sysrev extract --url https://example.org/article --render
  pbpaste | sysrev extract --stdin --save --export`,
	RunE: runExtract,
}

func init() {
	f := extractCmd.Flags()
	f.StringVar(&extractFlags.pdf, "pdf", "", "PDF file to extract from")
	f.StringVar(&extractFlags.textFile, "text-file", "", "Plain text file to extract from")
	f.StringVar(&extractFlags.text, "text", "", "Text to extract from")
	f.BoolVar(&extractFlags.stdin, "stdin", false, "Read the document text from stdin")
	f.StringVar(&extractFlags.url, "url", "", "Article URL to fetch and extract from")
	extractCmd.MarkFlagsMutuallyExclusive("pdf", "text-file", "text", "stdin", "url")
	extractCmd.MarkFlagsOneRequired("pdf", "text-file", "text", "stdin", "url")

	f.StringVar(&extractFlags.provider, "provider", "", "LLM provider (default from config)")
	f.StringVar(&extractFlags.model, "model", "", "Model (default from config)")
	f.Float64Var(&extractFlags.temperature, "temperature", 0, "Sampling temperature (default from config)")
	f.IntVar(&extractFlags.maxOutputTokens, "max-output-tokens", 0, "Output token limit (default from config)")
	f.IntVar(&extractFlags.maxChars, "max-chars", 0, "Input character limit (default from config)")
	f.BoolVar(&extractFlags.forceEnglish, "force-english", true, "Translate extracted values to English")
	f.BoolVar(&extractFlags.allowUnknown, "allow-unknown", true, `Use "unknown" for values not in the text`)
	f.BoolVar(&extractFlags.save, "save", false, "Save the result to the extraction database")

	f.StringVarP(&extractFlags.format, "format", "f", "", "json or markdown (default from config)")
	f.StringVar(&extractFlags.out, "out", "", "Write the download to this file or directory")
	f.BoolVar(&extractFlags.export, "export", false, "Write the download to the home exports directory")
	f.BoolVar(&extractFlags.render, "render", false, "Print the markdown report styled for the terminal")

	rootCmd.AddCommand(extractCmd)
}

func runExtract(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	logger, err := newLogger(os.Stderr)
	if err != nil {
		return err
	}
	h, mgr, err := loadConfig(logger)
	if err != nil {
		return err
	}
	cfg := mgr.Get()

	format, err := report.ParseFormat(firstNonEmpty(extractFlags.format, cfg.Defaults.DownloadFormat))
	if err != nil {
		return err
	}

	doc, err := readDocument(ctx, cmd.InOrStdin())
	if err != nil {
		return err
	}
	logger.Info("document loaded", "source", doc.Source, "name", doc.Name, "chars", doc.Chars, "pages", doc.Pages)

	registry := providers.NewRegistry()
	registry.SetLogger(logger)
	registry.Reload(cfg.ToProviderRegistryConfig())

	ecfg := extract.Config{
		Clients:  registry,
		Logger:   logger,
		Defaults: extract.DefaultsFromConfig(cfg),
	}
	if extractFlags.save {
		if err := h.EnsureExists(); err != nil {
			return err
		}
		dbPath := cfg.Storage.DBPath
		if dbPath == "" {
			dbPath = h.DBPath()
		}
		db, err := store.Open(dbPath)
		if err != nil {
			return fmt.Errorf("failed to open store: %w", err)
		}
		defer db.Close()
		ecfg.Store = db
		ecfg.Recorder = llmcall.NewRecorder(llmcall.NewStore(db), logger)
	}

	extractor, err := extract.New(ecfg)
	if err != nil {
		return err
	}

	res, err := extractor.Run(ctx, buildExtractRequest(cmd, doc, extractor.Defaults()))
	if err != nil {
		return err
	}
	logResult(logger, res)

	dl, err := report.Export(format, res.Data, res.Markdown)
	if err != nil {
		return err
	}

	if extractFlags.render {
		styled, err := report.RenderTerminal(res.Markdown, 100)
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), styled)
	}

	switch {
	case extractFlags.export:
		if err := h.EnsureExists(); err != nil {
			return err
		}
		return writeDownload(cmd, h.ExportPath(res.ID[:8]+"-"+dl.Filename), dl.Body)
	case extractFlags.out != "":
		path := extractFlags.out
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			path = filepath.Join(path, dl.Filename)
		}
		return writeDownload(cmd, path, dl.Body)
	case !extractFlags.render:
		_, err := cmd.OutOrStdout().Write(dl.Body)
		return err
	}
	return nil
}

// readDocument ingests the one input selected by flags.
func readDocument(ctx context.Context, stdin io.Reader) (*ingest.Document, error) {
	switch {
	case extractFlags.pdf != "":
		data, err := os.ReadFile(extractFlags.pdf)
		if err != nil {
			return nil, fmt.Errorf("failed to read PDF: %w", err)
		}
		return ingest.ExtractPDFBytes(filepath.Base(extractFlags.pdf), data)
	case extractFlags.textFile != "":
		data, err := os.ReadFile(extractFlags.textFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read text file: %w", err)
		}
		return ingest.FromText(filepath.Base(extractFlags.textFile), string(data))
	case extractFlags.text != "":
		return ingest.FromText("", extractFlags.text)
	case extractFlags.stdin:
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
		return ingest.FromText("", string(data))
	case extractFlags.url != "":
		return ingest.FetchURL(ctx, nil, extractFlags.url)
	}
	return nil, errors.New("one of --pdf, --text-file, --text, --stdin or --url is required")
}

// buildExtractRequest applies the flags the user set on top of the defaults.
func buildExtractRequest(cmd *cobra.Command, doc *ingest.Document, defaults extract.Defaults) extract.Request {
	flags := cmd.Flags()
	req := extract.Request{
		Document:  doc,
		Provider:  extractFlags.provider,
		Model:     extractFlags.model,
		MaxTokens: extractFlags.maxOutputTokens,
		MaxChars:  extractFlags.maxChars,
		Save:      extractFlags.save,
	}
	if flags.Changed("temperature") {
		t := extractFlags.temperature
		req.Temperature = &t
	}
	if flags.Changed("force-english") || flags.Changed("allow-unknown") {
		p := defaults.Prompt
		if flags.Changed("force-english") {
			p.ForceEnglish = extractFlags.forceEnglish
		}
		if flags.Changed("allow-unknown") {
			p.AllowUnknown = extractFlags.allowUnknown
		}
		req.Prompt = &p
	}
	return req
}

func logResult(logger *slog.Logger, res *extract.Result) {
	s := res.Summary()
	logger.Info("extraction complete",
		"id", res.ID,
		"study", s.Study,
		"design", s.Design,
		"country", s.Country,
		"model", res.Model,
		"tokens", res.Usage.TotalTokens,
		"cost_usd", res.Usage.CostUSD,
		"saved", res.Saved,
	)
	if res.Truncated {
		logger.Warn("input was truncated", "chars", res.InputChars)
	}
	for _, msg := range res.Validation {
		logger.Warn("record failed schema validation", "detail", msg)
	}
}

func writeDownload(cmd *cobra.Command, path string, body []byte) error {
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %s\n", path)
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

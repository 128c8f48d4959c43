package endpoints

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/sysrev/internal/api"
	"github.com/jackzampolin/sysrev/internal/extract"
	"github.com/jackzampolin/sysrev/internal/ingest"
	"github.com/jackzampolin/sysrev/internal/svcctx"
)

// ExtractionOptions override the configured defaults for one extraction.
type ExtractionOptions struct {
	Provider        string   `json:"provider,omitempty"`
	Model           string   `json:"model,omitempty"`
	Temperature     *float64 `json:"temperature,omitempty"`
	MaxOutputTokens int      `json:"max_output_tokens,omitempty"`
	MaxChars        int      `json:"max_chars,omitempty"`
	ForceEnglish    *bool    `json:"force_english,omitempty"`
	AllowUnknown    *bool    `json:"allow_unknown,omitempty"`
	Save            *bool    `json:"save,omitempty"`
}

// CreateExtractionRequest is the JSON body for POST /api/extractions.
// Exactly one of Text or URL is used; Text wins when both are set.
type CreateExtractionRequest struct {
	Text    string            `json:"text,omitempty"`
	URL     string            `json:"url,omitempty"`
	Name    string            `json:"name,omitempty"`
	Options ExtractionOptions `json:"options"`
}

// maxFormMemory bounds the in-memory part of a multipart upload.
const maxFormMemory = 32 << 20

// CreateExtractionEndpoint handles POST /api/extractions.
type CreateExtractionEndpoint struct{}

func (e *CreateExtractionEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/extractions", e.handler
}

func (e *CreateExtractionEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Run an extraction
//	@Description	Extract the systematic-review record from an uploaded PDF, pasted text or URL.
//	@Description	Accepts multipart/form-data (file, text, url and option fields) or a JSON body.
//	@Tags			extractions
//	@Accept			json,mpfd
//	@Produce		json
//	@Param			request	body		CreateExtractionRequest	false	"Text or URL with options"
//	@Param			file	formData	file					false	"PDF file"
//	@Success		201		{object}	extract.Result
//	@Failure		400		{object}	ErrorResponse
//	@Failure		502		{object}	ErrorResponse
//	@Router			/api/extractions [post]
func (e *CreateExtractionEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	extractor := svcctx.ExtractorFrom(ctx)
	if extractor == nil {
		writeError(w, http.StatusServiceUnavailable, "extractor not initialized")
		return
	}

	var (
		doc  *ingest.Document
		opts ExtractionOptions
		err  error
	)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		doc, opts, err = readMultipart(ctx, r)
	} else {
		doc, opts, err = readJSON(ctx, r)
	}
	if err != nil {
		writeError(w, inputStatus(err), err.Error())
		return
	}

	req, err := buildRequest(ctx, extractor, doc, opts)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := extractor.Run(ctx, req)
	if err != nil {
		svcctx.LoggerFrom(ctx).Warn("extraction failed", "source", doc.Source, "error", err)
		writeError(w, runStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// readMultipart reads a form upload. Pasted text takes precedence over the
// file, and the file over a URL.
func readMultipart(ctx context.Context, r *http.Request) (*ingest.Document, ExtractionOptions, error) {
	var opts ExtractionOptions
	if err := r.ParseMultipartForm(maxFormMemory); err != nil {
		return nil, opts, fmt.Errorf("failed to parse form: %w", err)
	}
	defer r.MultipartForm.RemoveAll()

	opts, err := formOptions(r)
	if err != nil {
		return nil, opts, err
	}

	if text := r.FormValue("text"); strings.TrimSpace(text) != "" {
		doc, err := ingest.FromText(r.FormValue("name"), text)
		return doc, opts, err
	}

	file, header, err := r.FormFile("file")
	switch {
	case err == nil:
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			return nil, opts, fmt.Errorf("failed to read upload: %w", err)
		}
		doc, err := ingest.ExtractPDFBytes(header.Filename, data)
		return doc, opts, err
	case !errors.Is(err, http.ErrMissingFile):
		return nil, opts, fmt.Errorf("failed to read upload: %w", err)
	}

	if u := r.FormValue("url"); u != "" {
		doc, err := ingest.FetchURL(ctx, svcctx.FetchClientFrom(ctx), u)
		return doc, opts, err
	}
	return nil, opts, extract.ErrEmptyInput
}

func readJSON(ctx context.Context, r *http.Request) (*ingest.Document, ExtractionOptions, error) {
	var body CreateExtractionRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return nil, body.Options, fmt.Errorf("invalid request body: %w", err)
	}
	switch {
	case strings.TrimSpace(body.Text) != "":
		doc, err := ingest.FromText(body.Name, body.Text)
		return doc, body.Options, err
	case body.URL != "":
		doc, err := ingest.FetchURL(ctx, svcctx.FetchClientFrom(ctx), body.URL)
		return doc, body.Options, err
	default:
		return nil, body.Options, extract.ErrEmptyInput
	}
}

// formOptions reads option fields from a parsed form. Unset fields stay zero.
func formOptions(r *http.Request) (ExtractionOptions, error) {
	opts := ExtractionOptions{
		Provider: r.FormValue("provider"),
		Model:    r.FormValue("model"),
	}
	if v := r.FormValue("temperature"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return opts, fmt.Errorf("invalid temperature: %q", v)
		}
		opts.Temperature = &f
	}
	for field, dst := range map[string]*int{
		"max_output_tokens": &opts.MaxOutputTokens,
		"max_chars":         &opts.MaxChars,
	} {
		if v := r.FormValue(field); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return opts, fmt.Errorf("invalid %s: %q must be an integer", field, v)
			}
			*dst = n
		}
	}
	for field, dst := range map[string]**bool{
		"force_english": &opts.ForceEnglish,
		"allow_unknown": &opts.AllowUnknown,
		"save":          &opts.Save,
	} {
		if v := r.FormValue(field); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return opts, fmt.Errorf("invalid %s: %q must be true or false", field, v)
			}
			*dst = &b
		}
	}
	return opts, nil
}

// buildRequest validates opts and turns them into an extraction request.
func buildRequest(ctx context.Context, extractor *extract.Extractor, doc *ingest.Document, opts ExtractionOptions) (extract.Request, error) {
	req := extract.Request{
		Document:    doc,
		Provider:    opts.Provider,
		Model:       opts.Model,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxOutputTokens,
		MaxChars:    opts.MaxChars,
		Save:        true,
	}

	if err := req.Validate(); err != nil {
		return req, err
	}

	if opts.ForceEnglish != nil || opts.AllowUnknown != nil {
		p := extractor.Defaults().Prompt
		if opts.ForceEnglish != nil {
			p.ForceEnglish = *opts.ForceEnglish
		}
		if opts.AllowUnknown != nil {
			p.AllowUnknown = *opts.AllowUnknown
		}
		req.Prompt = &p
	}

	if cm := svcctx.ConfigManagerFrom(ctx); cm != nil {
		req.Save = cm.Get().Defaults.Save
	}
	if opts.Save != nil {
		req.Save = *opts.Save
	}
	return req, nil
}

// inputStatus maps an ingestion error to an HTTP status.
func inputStatus(err error) int {
	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxErr):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadRequest
	}
}

// runStatus maps an extraction error to an HTTP status.
func runStatus(err error) int {
	switch {
	case errors.Is(err, extract.ErrEmptyInput), errors.Is(err, extract.ErrUnknownProvider),
		errors.Is(err, extract.ErrInvalidOptions):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func (e *CreateExtractionEndpoint) Command(getServerURL func() string) *cobra.Command {
	var (
		pdfPath, textPath, text, rawURL string
		opts                            ExtractionOptions
		temperature                     float64
		forceEnglish, allowUnknown      bool
		noSave, markdown                bool
	)

	cmd := &cobra.Command{
		Use:   "extractions create",
		Short: "Run an extraction on the server",
		Long: `Send a PDF, a text file, pasted text or a URL to the server and print the result.

Exactly one input is used: --text, then --text-file, then --file, then --url.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client := api.NewClient(getServerURL())

			flags := cmd.Flags()
			if flags.Changed("temperature") {
				opts.Temperature = &temperature
			}
			if flags.Changed("force-english") {
				opts.ForceEnglish = &forceEnglish
			}
			if flags.Changed("allow-unknown") {
				opts.AllowUnknown = &allowUnknown
			}
			if noSave {
				save := false
				opts.Save = &save
			}

			if textPath != "" && text == "" {
				data, err := os.ReadFile(textPath)
				if err != nil {
					return fmt.Errorf("failed to read text file: %w", err)
				}
				text = string(data)
			}

			var res extract.Result
			switch {
			case text != "":
				name := ""
				if textPath != "" {
					name = filepath.Base(textPath)
				}
				body := CreateExtractionRequest{Text: text, Name: name, Options: opts}
				if err := client.Post(ctx, "/api/extractions", body, &res); err != nil {
					return err
				}
			case pdfPath != "":
				f, err := os.Open(pdfPath)
				if err != nil {
					return fmt.Errorf("failed to open PDF: %w", err)
				}
				defer f.Close()
				if err := client.PostMultipart(ctx, "/api/extractions", optionFields(opts), "file", filepath.Base(pdfPath), f, &res); err != nil {
					return err
				}
			case rawURL != "":
				body := CreateExtractionRequest{URL: rawURL, Options: opts}
				if err := client.Post(ctx, "/api/extractions", body, &res); err != nil {
					return err
				}
			default:
				return fmt.Errorf("one of --file, --text-file, --text or --url is required")
			}

			if markdown {
				_, err := fmt.Fprint(cmd.OutOrStdout(), res.Markdown)
				return err
			}
			return api.Output(res)
		},
	}

	f := cmd.Flags()
	f.StringVar(&pdfPath, "file", "", "PDF file to upload")
	f.StringVar(&textPath, "text-file", "", "Plain text file with the article")
	f.StringVar(&text, "text", "", "Article text")
	f.StringVar(&rawURL, "url", "", "Article URL (HTML or PDF)")
	f.StringVar(&opts.Provider, "provider", "", "LLM provider (default from config)")
	f.StringVar(&opts.Model, "model", "", "Model name (default from config)")
	f.Float64Var(&temperature, "temperature", 0.2, "Sampling temperature (0-1)")
	f.IntVar(&opts.MaxOutputTokens, "max-output-tokens", 0, "Maximum output tokens")
	f.IntVar(&opts.MaxChars, "max-chars", 0, "Truncate the article to this many characters")
	f.BoolVar(&forceEnglish, "force-english", true, "Force output in English")
	f.BoolVar(&allowUnknown, "allow-unknown", true, "Allow 'unknown' for missing fields")
	f.BoolVar(&noSave, "no-save", false, "Do not store the extraction on the server")
	f.BoolVar(&markdown, "markdown", false, "Print the markdown report instead of the record")
	return cmd
}

// optionFields encodes opts as multipart form fields.
func optionFields(opts ExtractionOptions) map[string]string {
	fields := map[string]string{}
	if opts.Provider != "" {
		fields["provider"] = opts.Provider
	}
	if opts.Model != "" {
		fields["model"] = opts.Model
	}
	if opts.Temperature != nil {
		fields["temperature"] = strconv.FormatFloat(*opts.Temperature, 'f', -1, 64)
	}
	if opts.MaxOutputTokens > 0 {
		fields["max_output_tokens"] = strconv.Itoa(opts.MaxOutputTokens)
	}
	if opts.MaxChars > 0 {
		fields["max_chars"] = strconv.Itoa(opts.MaxChars)
	}
	if opts.ForceEnglish != nil {
		fields["force_english"] = strconv.FormatBool(*opts.ForceEnglish)
	}
	if opts.AllowUnknown != nil {
		fields["allow_unknown"] = strconv.FormatBool(*opts.AllowUnknown)
	}
	if opts.Save != nil {
		fields["save"] = strconv.FormatBool(*opts.Save)
	}
	return fields
}

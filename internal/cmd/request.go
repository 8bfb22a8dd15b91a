package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/closetiq/closetiq/internal/governor"
	"github.com/closetiq/closetiq/internal/observability"
	"github.com/closetiq/closetiq/internal/output"
)

var (
	requestData    string
	requestQuery   []string
	requestHeaders []string
	requestFiles   []string
	requestFields  []string
	requestTimeout time.Duration
)

var requestCmd = &cobra.Command{
	Use:   "request <METHOD> <PATH>",
	Short: "Send a request through the governor",
	Long: `Send one request to the wardrobe backend through the request governor and
print the uniform {success, data, message, error} result.

Examples:
  closetiq request GET /api/wardrobes
  closetiq request POST /api/clothing --data '{"name":"Blue Shirt","category":"shirt"}'
  closetiq request POST /api/classify --file image=./shirt.jpg`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := buildRequest(args[0], args[1])
		if err != nil {
			return err
		}

		cfg, err := loadedConfig()
		if err != nil {
			return err
		}
		sess, err := openSession(cmd.Context(), cfg, observability.CLILogger)
		if err != nil {
			return err
		}
		defer sess.Close()

		res, callErr := sess.governor.Do(cmd.Context(), req)
		if err := render(cmd, func(f output.Formatter) (string, error) { return f.FormatResult(res) }); err != nil {
			return err
		}
		return callErr
	},
}

func buildRequest(method, path string) (*governor.Request, error) {
	req := &governor.Request{
		Method:  strings.ToUpper(strings.TrimSpace(method)),
		Path:    path,
		Timeout: requestTimeout,
	}
	switch req.Method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
	default:
		return nil, fmt.Errorf("unsupported method: %s", method)
	}

	if len(requestQuery) > 0 {
		req.Query = url.Values{}
		for _, pair := range requestQuery {
			key, value, err := splitPair(pair)
			if err != nil {
				return nil, fmt.Errorf("--query: %w", err)
			}
			req.Query.Add(key, value)
		}
	}

	if len(requestHeaders) > 0 {
		req.Header = http.Header{}
		for _, pair := range requestHeaders {
			key, value, err := splitPair(pair)
			if err != nil {
				return nil, fmt.Errorf("--header: %w", err)
			}
			req.Header.Add(key, value)
		}
	}

	if len(requestFiles) > 0 || len(requestFields) > 0 {
		if requestData != "" {
			return nil, errors.New("--data cannot be combined with --file or --field")
		}
		form, err := buildForm()
		if err != nil {
			return nil, err
		}
		req.Form = form
		return req, nil
	}

	if requestData != "" {
		data := []byte(requestData)
		if strings.HasPrefix(requestData, "@") {
			var err error
			data, err = os.ReadFile(strings.TrimPrefix(requestData, "@")) // #nosec G304 -- operator-supplied path
			if err != nil {
				return nil, fmt.Errorf("read --data file: %w", err)
			}
		}
		if !json.Valid(data) {
			return nil, errors.New("--data must be valid JSON")
		}
		req.Body = json.RawMessage(data)
	}
	return req, nil
}

func buildForm() (*governor.Form, error) {
	form := &governor.Form{Fields: map[string]string{}}
	for _, pair := range requestFields {
		key, value, err := splitPair(pair)
		if err != nil {
			return nil, fmt.Errorf("--field: %w", err)
		}
		form.Fields[key] = value
	}
	for _, pair := range requestFiles {
		field, path, err := splitPair(pair)
		if err != nil {
			return nil, fmt.Errorf("--file: %w", err)
		}
		data, err := os.ReadFile(path) // #nosec G304 -- operator-supplied path
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		contentType := mime.TypeByExtension(filepath.Ext(path))
		if contentType == "" {
			contentType = http.DetectContentType(data)
		}
		form.Files = append(form.Files, governor.File{
			Field:       field,
			Name:        filepath.Base(path),
			ContentType: contentType,
			Data:        data,
		})
	}
	return form, nil
}

func splitPair(pair string) (string, string, error) {
	key, value, ok := strings.Cut(pair, "=")
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return "", "", fmt.Errorf("expected key=value, got %q", pair)
	}
	return key, value, nil
}

func init() {
	rootCmd.AddCommand(requestCmd)

	requestCmd.Flags().StringVarP(&requestData, "data", "d", "", "JSON body, or @file to read it from a file")
	requestCmd.Flags().StringArrayVarP(&requestQuery, "query", "q", nil, "query parameter key=value (repeatable)")
	requestCmd.Flags().StringArrayVarP(&requestHeaders, "header", "H", nil, "extra header key=value (repeatable)")
	requestCmd.Flags().StringArrayVar(&requestFiles, "file", nil, "multipart file field=path (repeatable)")
	requestCmd.Flags().StringArrayVar(&requestFields, "field", nil, "multipart form field key=value (repeatable)")
	requestCmd.Flags().DurationVar(&requestTimeout, "timeout", 0, "per-attempt timeout (default backend.request_timeout)")
	addOutputFlags(requestCmd)
}

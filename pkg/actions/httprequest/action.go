// Package httprequest provides the HTTP request action.
package httprequest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/loomhq/loom/pkg/models"
	"github.com/loomhq/loom/pkg/template"
)

const defaultTimeout = 30 * time.Second

var (
	// ErrURLRequired is returned when the config carries no url.
	ErrURLRequired = errors.New("http action requires a 'url'")
	// ErrServerError is returned for 5xx responses so the retry
	// controller can treat them as transient.
	ErrServerError = errors.New("server error during HTTP request")
)

// Action performs one HTTP request. URL, headers and body support
// templating against the execution context. Retries are the engine's
// concern, not the handler's: a 5xx response or transport failure is
// simply returned as an error.
type Action struct {
	client *http.Client
}

func NewAction() *Action {
	return &Action{
		client: &http.Client{Timeout: defaultTimeout},
	}
}

func (a *Action) Type() string {
	return "http"
}

func (a *Action) DisplayName() string {
	return "HTTP Request"
}

func (a *Action) ValidateConfig(config map[string]any) error {
	url, _ := config["url"].(string)
	if url == "" {
		return ErrURLRequired
	}

	if method, ok := config["method"].(string); ok && method != "" {
		switch strings.ToUpper(method) {
		case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete,
			http.MethodPatch, http.MethodHead, http.MethodOptions:
		default:
			return fmt.Errorf("invalid http method %q", method)
		}
	}

	return nil
}

func (a *Action) Execute(ctx context.Context, execCtx *models.ExecutionContext, config map[string]any, logger *slog.Logger) (any, error) {
	data := template.ContextData(execCtx)

	rawURL, _ := config["url"].(string)
	url := template.ResolveString(rawURL, data)

	method, _ := config["method"].(string)
	if method == "" {
		method = http.MethodGet
	}

	method = strings.ToUpper(method)

	logger = logger.With("action_type", "http", "method", method, "url", url)
	logger.InfoContext(ctx, "Executing HTTP request")

	req, err := a.buildRequest(ctx, method, url, config, data)
	if err != nil {
		return nil, err
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("status %d from %s: %w", resp.StatusCode, url, ErrServerError)
	}

	var body any
	if err := json.Unmarshal(bodyBytes, &body); err != nil {
		body = string(bodyBytes)
	}

	logger.InfoContext(ctx, "HTTP request completed",
		"status_code", resp.StatusCode,
		"body_length", len(bodyBytes))

	return map[string]any{
		"status_code": resp.StatusCode,
		"body":        body,
		"headers":     flattenHeaders(resp.Header),
	}, nil
}

func (a *Action) buildRequest(ctx context.Context, method, url string, config, data map[string]any) (*http.Request, error) {
	var bodyReader io.Reader

	if rawBody, ok := config["body"].(string); ok && rawBody != "" {
		rendered := template.Resolve(rawBody, data)

		if str, ok := rendered.(string); ok {
			bodyReader = strings.NewReader(str)
		} else {
			encoded, err := json.Marshal(rendered)
			if err != nil {
				return nil, fmt.Errorf("failed to marshal request body: %w", err)
			}

			bodyReader = strings.NewReader(string(encoded))
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create http request: %w", err)
	}

	if headers, ok := config["headers"].(map[string]any); ok {
		for key, value := range headers {
			if str, ok := value.(string); ok {
				req.Header.Set(key, template.ResolveString(str, data))
			}
		}
	}

	return req, nil
}

func flattenHeaders(header http.Header) map[string]any {
	flat := make(map[string]any, len(header))
	for key := range header {
		flat[key] = header.Get(key)
	}

	return flat
}

func (a *Action) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "The URL to send the request to. Supports templating.",
				"examples": []string{
					"https://api.example.com/users",
					"https://api.example.com/users/{{steps.get_user.body.id}}",
				},
			},
			"method": map[string]any{
				"type":        "string",
				"description": "HTTP method to use.",
				"default":     "GET",
				"enum":        []string{"GET", "POST", "PUT", "DELETE", "PATCH", "HEAD", "OPTIONS"},
			},
			"headers": map[string]any{
				"type":        "object",
				"description": "Request headers. Values support templating.",
				"additionalProperties": map[string]any{
					"type": "string",
				},
			},
			"body": map[string]any{
				"type":        "string",
				"format":      "code",
				"description": "Request body. Supports templating for dynamic JSON or text.",
			},
		},
		"required": []string{"url"},
	}
}

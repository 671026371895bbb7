package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"text/template"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/shrey2003/DeepSeek-OCR-CPU/inference"
)

// ModelClient talks to the external DeepSeek OCR model server. It implements
// inference.ModelRunner; the pipeline never sees anything behind it.
type ModelClient struct {
	baseURL     string
	httpClient  *retryablehttp.Client
	rateLimiter *rate.Limiter
	promptTmpl  *template.Template
}

// modelInferResponse is the model server's response payload.
type modelInferResponse struct {
	Markdown        string `json:"markdown"`
	RawOutput       string `json:"raw_output"`
	TokensGenerated int    `json:"tokens_generated"`
	InputTokens     int    `json:"input_tokens"`
}

// NewModelClient creates a client for the model server at baseURL. Requests
// are retried with backoff and throttled to requestsPerSecond (0 disables
// throttling).
func NewModelClient(baseURL string, promptTmpl *template.Template, requestsPerSecond float64) *ModelClient {
	logger := log.WithField("model_url", baseURL)

	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.RetryWaitMin = 1 * time.Second
	client.RetryWaitMax = 10 * time.Second
	client.Logger = logger

	var limiter *rate.Limiter
	if requestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), 1)
	}

	return &ModelClient{
		baseURL:     baseURL,
		httpClient:  client,
		rateLimiter: limiter,
		promptTmpl:  promptTmpl,
	}
}

// Infer sends one page image to the model server and returns its markdown
// plus the raw grounded output.
func (c *ModelClient) Infer(ctx context.Context, imagePath string) (*inference.ModelOutput, error) {
	logger := log.WithFields(logrus.Fields{
		"model_url": c.baseURL,
		"image":     filepath.Base(imagePath),
	})

	if c.rateLimiter != nil {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait failed: %w", err)
		}
	}

	prompt, err := c.renderPrompt(imagePath)
	if err != nil {
		return nil, err
	}

	imageContent, err := os.ReadFile(imagePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read image %s: %w", imagePath, err)
	}

	var requestBody bytes.Buffer
	writer := multipart.NewWriter(&requestBody)

	part, err := writer.CreateFormFile("file", filepath.Base(imagePath))
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, bytes.NewReader(imageContent)); err != nil {
		return nil, fmt.Errorf("failed to copy image content: %w", err)
	}
	if err := writer.WriteField("prompt", prompt); err != nil {
		return nil, fmt.Errorf("failed to write prompt field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	endpoint := c.baseURL + "/infer"
	req, err := retryablehttp.NewRequestWithContext(ctx, "POST", endpoint, &requestBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	logger.Debug("Sending inference request to model server")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error sending request to model server: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read model server response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		logger.WithField("status_code", resp.StatusCode).Error("Model server returned non-200 status")
		return nil, fmt.Errorf("model server returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var inferResp modelInferResponse
	if err := json.Unmarshal(respBody, &inferResp); err != nil {
		return nil, fmt.Errorf("failed to parse model server response: %w", err)
	}

	out := &inference.ModelOutput{
		Markdown:        inferResp.Markdown,
		RawOutput:       inferResp.RawOutput,
		TokensGenerated: inferResp.TokensGenerated,
		InputTokens:     inferResp.InputTokens,
	}

	// Some backends do not report token counts.
	if out.TokensGenerated == 0 && out.Markdown != "" {
		out.TokensGenerated = estimateTokens(out.Markdown)
	}
	if out.InputTokens == 0 {
		out.InputTokens = estimateTokens(prompt)
	}

	logger.WithField("tokens", out.TokensGenerated).Debug("Model inference completed")
	return out, nil
}

func (c *ModelClient) renderPrompt(imagePath string) (string, error) {
	templateMutex.RLock()
	defer templateMutex.RUnlock()

	var rendered bytes.Buffer
	err := c.promptTmpl.Execute(&rendered, map[string]interface{}{
		"Filename": filepath.Base(imagePath),
	})
	if err != nil {
		return "", fmt.Errorf("failed to render OCR prompt template: %w", err)
	}
	return rendered.String(), nil
}

// estimateTokens approximates a token count at roughly 4 characters per
// token, for backends that omit real counts.
func estimateTokens(text string) int {
	n := len(text) / 4
	if n < 1 {
		n = 1
	}
	return n
}

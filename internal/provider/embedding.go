package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultEmbeddingModel = "nvidia/nv-embedqa-e5-v5"
	defaultEmbeddingURL   = "https://integrate.api.nvidia.com/v1"
)

// HTTPEmbedder implements the Embedder interface against an OpenAI-compatible
// /embeddings endpoint that supports the asymmetric input_type parameter
// (Nvidia NemoRetriever models and similar). go-openai cannot serve this
// concern: its embedding request carries no input_type field.
type HTTPEmbedder struct {
	url      string
	model    string
	apiKey   string
	maxChars int
	client   *http.Client
}

// NewHTTPEmbedder creates a new embedding client. url and model fall back to
// the Nvidia retrieval defaults; maxChars caps the text sent per request.
func NewHTTPEmbedder(apiKey, url, model string, maxChars int) *HTTPEmbedder {
	if url == "" {
		url = defaultEmbeddingURL
	}
	if model == "" {
		model = defaultEmbeddingModel
	}
	url = strings.TrimRight(url, "/")

	return &HTTPEmbedder{
		url:      url,
		model:    model,
		apiKey:   apiKey,
		maxChars: maxChars,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// embeddingRequest is the request body for the embeddings API.
type embeddingRequest struct {
	Model          string `json:"model"`
	Input          string `json:"input"`
	EncodingFormat string `json:"encoding_format"`
	InputType      string `json:"input_type"`
}

// embeddingResponse is the response body from the embeddings API.
type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed returns a vector embedding for the given text. Text longer than the
// configured character budget is hard-truncated before the request is issued.
func (e *HTTPEmbedder) Embed(ctx context.Context, text string, inputType InputType) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("cannot embed empty text")
	}

	reqBody := embeddingRequest{
		Model:          e.model,
		Input:          Truncate(text, e.maxChars),
		EncodingFormat: "float",
		InputType:      string(inputType),
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshaling embedding request: %w", err)
	}

	endpoint := e.url + "/embeddings"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("creating embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return nil, fmt.Errorf("embedding request: %w", err)
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("%w: embedding API returned 429", ErrRateLimit)
	}

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embedding API returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var result embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: decoding embedding response: %v", ErrInvalidResponse, err)
	}

	if len(result.Data) == 0 || len(result.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("%w: no embedding returned", ErrInvalidResponse)
	}

	return result.Data[0].Embedding, nil
}

// Verify HTTPEmbedder implements Embedder.
var _ Embedder = (*HTTPEmbedder)(nil)

// Package ml holds HTTP clients for the external embedding and
// translation model services. The pipeline only depends on the
// interfaces; the clients are the production wiring.
package ml

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"firefeed/pipeline/internal/models"
)

// EmbeddingEngine turns text into a fixed-length vector.
type EmbeddingEngine interface {
	Embed(ctx context.Context, text, lang string) ([]float32, error)
}

// ModelHandle identifies a loaded translation model on the serving side.
type ModelHandle struct {
	ID         string `json:"id"`
	SourceLang string `json:"source_lang"`
	TargetLang string `json:"target_lang"`
}

// TranslationEngine produces translations and manages remote model
// loads. Loading is separated so the model cache can own its lifecycle.
type TranslationEngine interface {
	LoadModel(ctx context.Context, sourceLang, targetLang string) (ModelHandle, error)
	Translate(ctx context.Context, title, content, sourceLang string, targetLangs []string) (map[string]models.Translation, error)
}

// Client talks to an external model service over JSON HTTP.
type Client struct {
	endpoint string
	apiKey   string
	http     *http.Client
}

var _ EmbeddingEngine = (*Client)(nil)
var _ TranslationEngine = (*Client)(nil)

// NewClient creates a reusable HTTP client for one service endpoint.
func NewClient(endpoint, apiKey string) *Client {
	return &Client{
		endpoint: endpoint,
		apiKey:   apiKey,
		http:     &http.Client{Timeout: 60 * time.Second},
	}
}

// Embed requests a vector for the given text.
func (c *Client) Embed(ctx context.Context, text, lang string) ([]float32, error) {
	payload := map[string]any{
		"text": text,
		"lang": lang,
	}

	var resp struct {
		Embedding []float32 `json:"embedding"`
	}
	if err := c.post(ctx, "/embed", payload, &resp); err != nil {
		return nil, err
	}
	if len(resp.Embedding) == 0 {
		return nil, fmt.Errorf("embedding service returned empty vector")
	}
	return resp.Embedding, nil
}

// LoadModel asks the translation service to load the model for a
// language pair and returns its handle.
func (c *Client) LoadModel(ctx context.Context, sourceLang, targetLang string) (ModelHandle, error) {
	payload := map[string]any{
		"source_lang": sourceLang,
		"target_lang": targetLang,
	}

	var handle ModelHandle
	if err := c.post(ctx, "/models/load", payload, &handle); err != nil {
		return ModelHandle{}, err
	}
	if handle.ID == "" {
		return ModelHandle{}, fmt.Errorf("translation service returned empty model handle for %s-%s", sourceLang, targetLang)
	}
	return handle, nil
}

// Translate requests renditions of an item for every target language.
func (c *Client) Translate(ctx context.Context, title, content, sourceLang string, targetLangs []string) (map[string]models.Translation, error) {
	payload := map[string]any{
		"title":        title,
		"content":      content,
		"source_lang":  sourceLang,
		"target_langs": targetLangs,
	}

	var resp struct {
		Translations map[string]models.Translation `json:"translations"`
	}
	if err := c.post(ctx, "/translate", payload, &resp); err != nil {
		return nil, err
	}
	if len(resp.Translations) == 0 {
		return nil, fmt.Errorf("translation service returned no translations")
	}
	return resp.Translations, nil
}

func (c *Client) post(ctx context.Context, path string, payload any, v any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s from %s", resp.Status, path)
	}

	if v == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

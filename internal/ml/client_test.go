package ml

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/embed", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)

		var payload map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "hello world", payload["text"])
		assert.Equal(t, "en", payload["lang"])

		json.NewEncoder(w).Encode(map[string]any{"embedding": []float32{0.1, 0.2, 0.3}})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	vec, err := c.Embed(context.Background(), "hello world", "en")
	require.NoError(t, err)

	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
}

func TestEmbedEmptyVectorIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"embedding": []float32{}})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	_, err := c.Embed(context.Background(), "text", "en")
	require.Error(t, err)
}

func TestEmbedNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	_, err := c.Embed(context.Background(), "text", "en")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestLoadModel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/models/load", r.URL.Path)
		json.NewEncoder(w).Encode(ModelHandle{ID: "m1", SourceLang: "en", TargetLang: "ru"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	handle, err := c.LoadModel(context.Background(), "en", "ru")
	require.NoError(t, err)

	assert.Equal(t, "m1", handle.ID)
	assert.Equal(t, "en", handle.SourceLang)
	assert.Equal(t, "ru", handle.TargetLang)
}

func TestLoadModelEmptyHandleIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(ModelHandle{})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	_, err := c.LoadModel(context.Background(), "en", "ru")
	require.Error(t, err)
}

func TestTranslate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/translate", r.URL.Path)

		var payload struct {
			Title       string   `json:"title"`
			Content     string   `json:"content"`
			SourceLang  string   `json:"source_lang"`
			TargetLangs []string `json:"target_langs"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "en", payload.SourceLang)
		assert.Equal(t, []string{"ru", "de"}, payload.TargetLangs)

		json.NewEncoder(w).Encode(map[string]any{
			"translations": map[string]map[string]string{
				"ru": {"title": "заголовок", "content": "текст"},
				"de": {"title": "titel", "content": "inhalt"},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	translations, err := c.Translate(context.Background(), "title", "content", "en", []string{"ru", "de"})
	require.NoError(t, err)

	require.Len(t, translations, 2)
	assert.Equal(t, "заголовок", translations["ru"].Title)
	assert.Equal(t, "inhalt", translations["de"].Content)
}

func TestAPIKeyHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(map[string]any{"embedding": []float32{1}})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret")
	_, err := c.Embed(context.Background(), "text", "en")
	require.NoError(t, err)
}

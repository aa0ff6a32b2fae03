package translate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firefeed/pipeline/internal/ml"
	"firefeed/pipeline/internal/models"
)

type stubEngine struct {
	loadErr   error
	loads     int
	translate int
}

func (e *stubEngine) LoadModel(ctx context.Context, sourceLang, targetLang string) (ml.ModelHandle, error) {
	e.loads++
	if e.loadErr != nil {
		return ml.ModelHandle{}, e.loadErr
	}
	return ml.ModelHandle{ID: sourceLang + "_" + targetLang}, nil
}

func (e *stubEngine) Translate(ctx context.Context, title, content, sourceLang string, targetLangs []string) (map[string]models.Translation, error) {
	e.translate++
	out := make(map[string]models.Translation, len(targetLangs))
	for _, lang := range targetLangs {
		out[lang] = models.Translation{Title: title, Content: content}
	}
	return out, nil
}

func TestServiceTranslateLoadsModelsFirst(t *testing.T) {
	engine := &stubEngine{}
	cache := NewModelManager(engine, 5, time.Hour)
	t.Cleanup(cache.Close)

	s := NewService(engine, cache)
	out, err := s.Translate(context.Background(), "t", "c", "en", []string{"ru", "de"})
	require.NoError(t, err)

	assert.Len(t, out, 2)
	assert.Equal(t, 2, engine.loads)
	assert.Equal(t, 1, engine.translate)

	t.Run("second call reuses cached models", func(t *testing.T) {
		_, err := s.Translate(context.Background(), "t", "c", "en", []string{"ru", "de"})
		require.NoError(t, err)
		assert.Equal(t, 2, engine.loads)
	})
}

func TestServiceTranslateMissingModelFailsWhole(t *testing.T) {
	engine := &stubEngine{loadErr: errors.New("no such pair")}
	cache := NewModelManager(engine, 5, time.Hour)
	t.Cleanup(cache.Close)

	s := NewService(engine, cache)
	_, err := s.Translate(context.Background(), "t", "c", "en", []string{"ru"})
	require.Error(t, err)
	assert.Zero(t, engine.translate, "translation must not run without its models")
}

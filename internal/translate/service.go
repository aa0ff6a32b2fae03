package translate

import (
	"context"
	"fmt"

	"firefeed/pipeline/internal/ml"
	"firefeed/pipeline/internal/models"
)

// Translator produces renditions of one item for a set of target
// languages.
type Translator interface {
	Translate(ctx context.Context, title, content, sourceLang string, targetLangs []string) (map[string]models.Translation, error)
}

// Service combines the model cache with the translation engine: it
// ensures the models for every requested pair are resident before
// delegating the actual translation call.
type Service struct {
	engine ml.TranslationEngine
	cache  *ModelManager
}

var _ Translator = (*Service)(nil)

// NewService creates a translator backed by the given engine and model
// cache.
func NewService(engine ml.TranslationEngine, cache *ModelManager) *Service {
	return &Service{engine: engine, cache: cache}
}

// Translate loads (or reuses) the model for each language pair and
// requests the renditions. A missing model for any pair fails the whole
// call; partial renditions are not returned.
func (s *Service) Translate(ctx context.Context, title, content, sourceLang string, targetLangs []string) (map[string]models.Translation, error) {
	for _, target := range targetLangs {
		if _, err := s.cache.GetModel(ctx, sourceLang, target); err != nil {
			return nil, fmt.Errorf("model %s-%s unavailable: %w", sourceLang, target, err)
		}
	}
	return s.engine.Translate(ctx, title, content, sourceLang, targetLangs)
}

// internal/translate/service.go
package translate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"

	"veridian-bot/internal/models"
)

// CacheStore is the persistence side of the translation cache.
// StoreCachedTranslation has insert-if-absent semantics: concurrent
// writers racing on one key must not error.
type CacheStore interface {
	GetCachedTranslation(hash string) (*models.TranslationCache, error)
	StoreCachedTranslation(entry *models.TranslationCache) error
}

// Generator produces a fresh translation when the cache misses. It
// never fails: a fully degraded backend hands the text back
// untranslated.
type Generator interface {
	Translate(ctx context.Context, text, src, dst string) string
}

// ContentHash keys the cache on (text, source, target). The "|"
// delimiter does not survive cleaning in normal chat text.
func ContentHash(text, src, dst string) string {
	sum := sha256.Sum256([]byte(text + "|" + src + "|" + dst))
	return hex.EncodeToString(sum[:])
}

// Service answers translation requests from the cache first, falling
// back to the generator and remembering its output.
type Service struct {
	store     CacheStore
	generator Generator
}

func NewService(store CacheStore, generator Generator) *Service {
	return &Service{store: store, generator: generator}
}

// Translate returns the text in dst and whether it came from the
// cache. Identical languages short-circuit without touching the
// cache. Store failures are logged and swallowed: losing a cache row
// must not interrupt the conversation relay.
func (s *Service) Translate(ctx context.Context, text, src, dst string) (string, bool) {
	if src == dst {
		return text, false
	}

	hash := ContentHash(text, src, dst)
	entry, err := s.store.GetCachedTranslation(hash)
	if err != nil {
		slog.Warn("translation cache lookup failed", "hash", hash, "error", err)
	}
	if entry != nil {
		slog.Debug("translation served from cache", "hash", hash, "hits", entry.HitCount+1)
		return entry.TranslatedText, true
	}

	translated := s.generator.Translate(ctx, text, src, dst)

	if err := s.store.StoreCachedTranslation(&models.TranslationCache{
		ContentHash:    hash,
		OriginalText:   text,
		TranslatedText: translated,
		SourceLanguage: src,
		TargetLanguage: dst,
	}); err != nil {
		slog.Warn("failed to store translation in cache", "hash", hash, "error", err)
	}

	return translated, false
}

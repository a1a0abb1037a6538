package extract

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strings"

	"golang.org/x/sync/singleflight"

	"fintrack/internal/cache"
	"fintrack/internal/ingest"
	"fintrack/internal/log"
)

// CachedExtractor remembers extraction results by content hash, so that the
// same receipt uploaded twice costs one model call. Concurrent identical
// requests share a single upstream call.
type CachedExtractor struct {
	next  Extractor
	cache cache.Cache[ingest.Raw]
	group singleflight.Group
}

func NewCachedExtractor(next Extractor, c cache.Cache[ingest.Raw]) *CachedExtractor {
	return &CachedExtractor{next: next, cache: c}
}

func (e *CachedExtractor) AnalyzeReceipt(ctx context.Context, image []byte, mimeType string) (ingest.Raw, error) {
	key := "receipt:" + hashOf(image)
	return e.lookup(ctx, key, func(ctx context.Context) (ingest.Raw, error) {
		return e.next.AnalyzeReceipt(ctx, image, mimeType)
	})
}

func (e *CachedExtractor) ExtractTransactionDetails(ctx context.Context, text string) (ingest.Raw, error) {
	key := "details:" + hashOf([]byte(strings.TrimSpace(text)))
	return e.lookup(ctx, key, func(ctx context.Context) (ingest.Raw, error) {
		return e.next.ExtractTransactionDetails(ctx, text)
	})
}

func (e *CachedExtractor) lookup(ctx context.Context, key string, load func(context.Context) (ingest.Raw, error)) (ingest.Raw, error) {
	raw, ok, err := e.cache.Get(ctx, key)
	if err != nil {
		slog.WarnContext(ctx, "Extraction cache read failed",
			log.FieldComponent, log.ComponentCache,
			log.FieldError, err)
	}
	if ok {
		return raw, nil
	}

	v, err, shared := e.group.Do(key, func() (any, error) {
		raw, err := load(ctx)
		if err != nil {
			return ingest.Raw{}, err
		}
		if err := e.cache.Set(ctx, key, raw); err != nil {
			slog.WarnContext(ctx, "Extraction cache write failed",
				log.FieldComponent, log.ComponentCache,
				log.FieldError, err)
		}
		return raw, nil
	})
	if err != nil {
		return ingest.Raw{}, err
	}
	if shared {
		slog.DebugContext(ctx, "Extraction result shared with a concurrent request",
			log.FieldComponent, log.ComponentExtract)
	}
	return v.(ingest.Raw), nil
}

func hashOf(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

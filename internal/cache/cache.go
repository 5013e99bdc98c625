// Package cache layers translation lookup tiers over the store: unit-exact
// entries first, then an optional Redis hot tier, then content-fingerprint
// reuse across pages.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"wikiloom/internal/store"
)

// Mode controls how lookups treat cached entries.
type Mode string

const (
	// ModeNormal serves cached entries when present.
	ModeNormal Mode = "normal"
	// ModeRefresh bypasses all tiers so every unit is retranslated.
	ModeRefresh Mode = "refresh"
	// ModeCacheOnly serves cached entries and fails on any miss instead of
	// calling an engine.
	ModeCacheOnly Mode = "cache-only"
)

// Provenance records which tier produced a hit.
type Provenance string

const (
	ProvenanceUnit    Provenance = "unit"
	ProvenanceHot     Provenance = "hot"
	ProvenanceContent Provenance = "content"
)

// ErrCacheOnlyMiss indicates a lookup missed while engine calls are
// forbidden.
var ErrCacheOnlyMiss = errors.New("translation missing from cache in cache-only mode")

// Key identifies one translation unit lookup.
type Key struct {
	PageTitle   string
	SegmentKey  string
	Lang        string
	Fingerprint string
}

// Hit is a served cached translation.
type Hit struct {
	Text       string
	EngineID   string
	Provenance Provenance
}

type hotEntry struct {
	Text     string `json:"text"`
	EngineID string `json:"engine_id"`
}

// Cache coordinates the lookup tiers. The Redis client is optional; without
// it only the store tiers are consulted.
type Cache struct {
	store *store.Store
	redis redis.UniversalClient
	ttl   time.Duration
}

// New builds a cache over the store. Pass a nil client to disable the hot
// tier.
func New(s *store.Store, client redis.UniversalClient, ttl time.Duration) *Cache {
	return &Cache{store: s, redis: client, ttl: ttl}
}

// Lookup consults the tiers in order for the given mode. A nil hit with a
// nil error means the caller should translate; ModeCacheOnly turns that miss
// into ErrCacheOnlyMiss.
func (c *Cache) Lookup(ctx context.Context, key Key, mode Mode) (*Hit, error) {
	if mode == ModeRefresh {
		return nil, nil
	}

	tr, err := c.store.GetTranslation(ctx, key.PageTitle, key.SegmentKey, key.Lang)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	if tr != nil && tr.SourceFingerprint == key.Fingerprint && tr.QAStatus == store.QAPassed {
		return &Hit{Text: tr.TranslatedText, EngineID: tr.EngineID, Provenance: ProvenanceUnit}, nil
	}

	if hit, err := c.lookupHot(ctx, key); err != nil {
		return nil, err
	} else if hit != nil {
		return hit, nil
	}

	tr, err = c.store.FindByFingerprint(ctx, key.Fingerprint, key.Lang)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	if tr != nil {
		return &Hit{Text: tr.TranslatedText, EngineID: tr.EngineID, Provenance: ProvenanceContent}, nil
	}

	if mode == ModeCacheOnly {
		return nil, fmt.Errorf("%s/%s [%s]: %w", key.PageTitle, key.SegmentKey, key.Lang, ErrCacheOnlyMiss)
	}
	return nil, nil
}

// Store persists a translation into the durable tier and, when it passed
// validation, the hot tier.
func (c *Cache) Store(ctx context.Context, key Key, text, engineID string, status store.QAStatus) error {
	err := c.store.UpsertTranslation(ctx, store.Translation{
		PageTitle:         key.PageTitle,
		SegmentKey:        key.SegmentKey,
		Lang:              key.Lang,
		TranslatedText:    text,
		EngineID:          engineID,
		QAStatus:          status,
		SourceFingerprint: key.Fingerprint,
	})
	if err != nil {
		return err
	}
	if c.redis == nil || status != store.QAPassed {
		return nil
	}

	payload, err := json.Marshal(hotEntry{Text: text, EngineID: engineID})
	if err != nil {
		return fmt.Errorf("encode hot entry: %w", err)
	}
	if err := c.redis.Set(ctx, hotKey(key), payload, c.ttl).Err(); err != nil {
		// The hot tier is best effort; a Redis outage must not fail the job.
		return nil
	}
	return nil
}

// Invalidate drops a page's cached entries from the durable tier ahead of a
// forced refresh and returns how many were removed. Hot tier entries expire
// on their own.
func (c *Cache) Invalidate(ctx context.Context, pageTitle, lang string) (int, error) {
	return c.store.DeleteTranslations(ctx, pageTitle, lang)
}

func (c *Cache) lookupHot(ctx context.Context, key Key) (*Hit, error) {
	if c.redis == nil {
		return nil, nil
	}
	payload, err := c.redis.Get(ctx, hotKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		// Treat an unreachable hot tier as a miss.
		return nil, nil
	}
	var entry hotEntry
	if err := json.Unmarshal([]byte(payload), &entry); err != nil {
		return nil, nil
	}
	return &Hit{Text: entry.Text, EngineID: entry.EngineID, Provenance: ProvenanceHot}, nil
}

func hotKey(key Key) string {
	return "wikiloom:tr:" + key.Lang + ":" + key.Fingerprint
}

// Package discovery picks a model that a given credential can actually call.
package discovery

import (
	"context"
	"strings"
	"time"

	"promptforge/internal/cache"
	"promptforge/internal/providers"
	"promptforge/internal/utils"
)

// Discoverer resolves and caches the model to use per credential.
type Discoverer struct {
	provider providers.Provider
	cache    *cache.LRU[string]
	logger   *utils.Logger
}

// New creates a Discoverer. cacheSize <= 0 falls back to 256 entries;
// ttl <= 0 keeps entries for the lifetime of the Discoverer.
func New(provider providers.Provider, cacheSize int, ttl time.Duration) *Discoverer {
	if cacheSize <= 0 {
		cacheSize = 256
	}
	return &Discoverer{
		provider: provider,
		cache:    cache.New[string](cacheSize, ttl),
		logger:   utils.NewLogger("discovery"),
	}
}

// Discover returns the best model for apiKey. It never fails: when the
// model list cannot be fetched, the provider's default model is returned.
func (d *Discoverer) Discover(ctx context.Context, apiKey string) string {
	fp := utils.Fingerprint(apiKey)
	if model, ok := d.cache.Get(fp); ok {
		return model
	}

	catalog := d.provider.Catalog()
	models, err := d.provider.ListModels(ctx, apiKey)
	if err != nil {
		d.logger.Warn("model listing failed, using default", "credential", fp, "default", catalog.Default, "error", err)
		// Only cache the fallback when the failure was not the caller giving up.
		if ctx.Err() == nil {
			d.cache.Set(fp, catalog.Default)
		}
		return catalog.Default
	}

	model := Select(models, catalog)
	d.logger.Debug("model discovered", "credential", fp, "model", model, "listed", len(models))
	d.cache.Set(fp, model)
	return model
}

// Candidates returns the ordered model fallback list for apiKey:
// the discovered model first, then the catalogue fallbacks.
func (d *Discoverer) Candidates(ctx context.Context, apiKey string) []string {
	catalog := d.provider.Catalog()

	seen := make(map[string]struct{})
	var out []string
	add := func(m string) {
		if m == "" {
			return
		}
		if _, ok := seen[m]; ok {
			return
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}

	add(d.Discover(ctx, apiKey))
	for _, m := range catalog.Fallbacks {
		add(m)
	}
	add(catalog.Default)
	return out
}

// Forget drops the cached model of apiKey, e.g. after the model disappeared.
func (d *Discoverer) Forget(apiKey string) {
	d.cache.Delete(utils.Fingerprint(apiKey))
}

// Select applies the selection policy to a model listing: keep generation
// models, drop experimental ones, then take the first match of each
// preferred substring in order, else the first remaining model, else the
// catalogue default.
func Select(models []providers.ModelInfo, catalog providers.ModelCatalog) string {
	var usable []string
	for _, m := range models {
		if !m.SupportsGeneration || m.Experimental {
			continue
		}
		usable = append(usable, m.ID)
	}

	for _, pref := range catalog.Preferred {
		pref = strings.ToLower(pref)
		for _, id := range usable {
			if strings.Contains(strings.ToLower(id), pref) {
				return id
			}
		}
	}

	if len(usable) > 0 {
		return usable[0]
	}
	return catalog.Default
}

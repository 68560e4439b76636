package keypool

import (
	"context"
	"errors"
	"net/http"
	"time"

	"promptforge/internal/cache"
	"promptforge/internal/discovery"
	"promptforge/internal/providers"
	"promptforge/internal/utils"
)

const (
	checkPrompt    = "Reply with the single word OK."
	checkMaxTokens = 8
)

// Validator checks credentials with one minimal generation call each.
type Validator struct {
	provider   providers.Provider
	discoverer *discovery.Discoverer
	results    *cache.LRU[Credential]
	logger     *utils.Logger
	now        func() time.Time
}

// NewValidator creates a Validator whose results are cached for ttl
// (ttl <= 0 caches for the Validator's lifetime).
func NewValidator(provider providers.Provider, discoverer *discovery.Discoverer, cacheSize int, ttl time.Duration) *Validator {
	if cacheSize <= 0 {
		cacheSize = 256
	}
	return &Validator{
		provider:   provider,
		discoverer: discoverer,
		results:    cache.New[Credential](cacheSize, ttl),
		logger:     utils.NewLogger("keypool"),
		now:        time.Now,
	}
}

// Validate classifies each key. It performs network calls and never
// returns an error: failures are recorded on the credential.
func (v *Validator) Validate(ctx context.Context, keys []string) []Credential {
	out := make([]Credential, 0, len(keys))
	for _, key := range keys {
		out = append(out, v.validateOne(ctx, key))
	}
	return out
}

func (v *Validator) validateOne(ctx context.Context, key string) Credential {
	fp := utils.Fingerprint(key)
	if cred, ok := v.results.Get(fp); ok && cred.Key == key {
		return cred
	}

	cred := Credential{Key: key, LastUsed: v.now()}
candidates:
	for _, model := range v.discoverer.Candidates(ctx, key) {
		cred.Model = model
		_, err := v.provider.Generate(ctx, key, providers.GenerateRequest{
			Model:           model,
			Prompt:          checkPrompt,
			MaxOutputTokens: checkMaxTokens,
		})
		if err == nil {
			cred.Status = StatusValid
			break
		}

		cred.LastError = err.Error()
		if !providers.IsRecoverable(err) {
			// The caller gave up; do not cache a verdict.
			cred.Status = StatusErrored
			cred.Model = ""
			return cred
		}

		switch providers.KindOf(err) {
		case providers.KindModelNotFound:
			cred.Status = StatusErrored
			v.discoverer.Forget(key)
			continue
		case providers.KindRateLimited:
			cred.Status = StatusRateLimited
		case providers.KindInvalidCredential:
			cred.Status = StatusInvalid
		default:
			cred.Status = StatusErrored
			if authenticatedButEmpty(err) {
				cred.Status = StatusValid
			}
		}
		break candidates
	}

	// Only a working key reports the model it will be dispatched with.
	if cred.Status == StatusValid {
		cred.LastError = ""
	} else {
		cred.Model = ""
	}
	v.logger.Info("credential validated", "credential", fp, "status", cred.Status.String(), "model", cred.Model)
	v.results.Set(fp, cred)
	return cred
}

// authenticatedButEmpty reports a 200 response that carried no text. The
// key worked; the check was just too small to produce output.
func authenticatedButEmpty(err error) bool {
	var perr *providers.Error
	if !errors.As(err, &perr) {
		return false
	}
	return perr.StatusCode == http.StatusOK
}

// Package secrets resolves provider credentials per tenant from an ordered
// chain of sources.
package secrets

import (
	"context"
	"fmt"
	"strings"

	"github.com/ManuelReschke/ClientHub/app/repository"
	"github.com/ManuelReschke/ClientHub/internal/pkg/env"
)

// Source returns the value for key, or "" when it has none.
type Source interface {
	Lookup(ctx context.Context, tenant, key string) (string, error)
}

type SourceFunc func(ctx context.Context, tenant, key string) (string, error)

func (f SourceFunc) Lookup(ctx context.Context, tenant, key string) (string, error) {
	return f(ctx, tenant, key)
}

// SettingsSource reads tenant overrides from the settings table.
type SettingsSource struct {
	repo repository.SettingRepository
}

func NewSettingsSource(repo repository.SettingRepository) *SettingsSource {
	return &SettingsSource{repo: repo}
}

func (s *SettingsSource) Lookup(ctx context.Context, tenant, key string) (string, error) {
	v, err := s.repo.GetValue(ctx, tenant, key)
	if err != nil {
		return "", fmt.Errorf("settings %s/%s: %w", tenant, key, err)
	}
	return strings.TrimSpace(v), nil
}

// EnvSource reads process-wide values. Keys map to upper-case variable names
// (stripe_webhook_secret -> STRIPE_WEBHOOK_SECRET).
type EnvSource struct{}

func (EnvSource) Lookup(_ context.Context, _ string, key string) (string, error) {
	return strings.TrimSpace(env.GetEnv(strings.ToUpper(key), "")), nil
}

type Resolver struct {
	sources []Source
}

// NewResolver consults sources in the given order.
func NewResolver(sources ...Source) *Resolver {
	return &Resolver{sources: sources}
}

// Resolve returns the first non-empty value. A failing source aborts the
// lookup rather than silently falling through to a less specific secret.
func (r *Resolver) Resolve(ctx context.Context, tenant, key string) (string, error) {
	for _, src := range r.sources {
		v, err := src.Lookup(ctx, tenant, key)
		if err != nil {
			return "", err
		}
		if v != "" {
			return v, nil
		}
	}
	return "", nil
}

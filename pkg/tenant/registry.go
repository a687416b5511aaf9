// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package tenant

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/PTTG-IT/SDP-MCP-sub003/pkg/crypto"
	gwerrors "github.com/PTTG-IT/SDP-MCP-sub003/pkg/errors"
	"github.com/PTTG-IT/SDP-MCP-sub003/pkg/store"
)

// Registry is the tenant facade: cached, decrypted reads backed by the
// persistent store, and validated writes that seal credentials before
// they ever touch disk.
type Registry struct {
	store           *store.Store
	crypto          *crypto.Service
	cache           *cache
	regionEndpoints map[string]string
}

// New builds a Registry. regionEndpoints maps each recognized region
// tag to the base URL whose origin a tenant's instance URL must share;
// an unrecognized region always fails registration.
func New(s *store.Store, cs *crypto.Service, regionEndpoints map[string]string) *Registry {
	return NewWithTTL(s, cs, regionEndpoints, DefaultCacheTTL)
}

// NewWithTTL is New with an explicit cache TTL, for tests.
func NewWithTTL(s *store.Store, cs *crypto.Service, regionEndpoints map[string]string, ttl time.Duration) *Registry {
	return &Registry{
		store:           s,
		crypto:          cs,
		cache:           newCache(ttl),
		regionEndpoints: regionEndpoints,
	}
}

// GetTenant resolves a tenant by id: cache hit returns immediately; a
// miss loads the tenant row and its oauth_config, decrypts the
// credential triple, populates the cache, and returns the assembled
// view.
func (r *Registry) GetTenant(ctx context.Context, id string) (*TenantWithConfig, error) {
	if v, ok := r.cache.get(id); ok {
		return v, nil
	}

	t, err := r.store.FindTenantByID(ctx, id)
	if err != nil {
		return nil, err
	}
	cfg, err := r.store.FindOAuthConfigByTenant(ctx, id)
	if err != nil {
		return nil, err
	}

	twc, err := r.decrypt(t, cfg)
	if err != nil {
		return nil, err
	}

	r.cache.set(id, twc)
	return twc, nil
}

func (r *Registry) decrypt(t *store.Tenant, cfg *store.OAuthConfig) (*TenantWithConfig, error) {
	clientID, err := r.crypto.Decrypt(crypto.Sealed(cfg.ClientIDEnc), t.Name)
	if err != nil {
		return nil, err
	}
	clientSecret, err := r.crypto.Decrypt(crypto.Sealed(cfg.ClientSecretEnc), t.Name)
	if err != nil {
		return nil, err
	}
	refreshToken, err := r.crypto.Decrypt(crypto.Sealed(cfg.RefreshTokenEnc), t.Name)
	if err != nil {
		return nil, err
	}

	return &TenantWithConfig{
		Tenant:        *t,
		ClientID:      clientID,
		ClientSecret:  clientSecret,
		RefreshToken:  refreshToken,
		Scopes:        cfg.Scopes,
		InstanceURL:   cfg.InstanceURL,
		SchemeVersion: cfg.SchemeVersion,
	}, nil
}

// Register validates and persists a new tenant: name uniqueness, scope
// format, and instance-URL/region origin agreement, then encrypts
// credentials and writes tenant + oauth_config in one transaction.
func (r *Registry) Register(ctx context.Context, req RegisterRequest) (*store.Tenant, error) {
	if existing, err := r.store.FindTenantByName(ctx, req.Name); err == nil && existing != nil {
		return nil, gwerrors.NewNameCollisionError("tenant name already registered: "+req.Name, nil)
	} else if !gwerrors.IsNotFound(err) {
		return nil, err
	}

	if bad := ValidateScopes(req.Scopes); bad != "" {
		return nil, gwerrors.NewInvalidScopeError("scope does not match the required pattern: "+bad, nil)
	}

	if bad := ValidateMetadata(req.Metadata); bad != "" {
		return nil, gwerrors.NewInvalidArgumentError(bad, nil)
	}

	if err := r.checkRegionOrigin(req.Region, req.InstanceURL); err != nil {
		return nil, err
	}

	now := time.Now()
	t := &store.Tenant{
		Name:      req.Name,
		Region:    req.Region,
		Status:    store.TenantActive,
		Tier:      req.Tier,
		Metadata:  req.Metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if t.Metadata == nil {
		t.Metadata = map[string]string{}
	}

	clientIDEnc, err := r.crypto.Encrypt(req.ClientID, req.Name)
	if err != nil {
		return nil, err
	}
	clientSecretEnc, err := r.crypto.Encrypt(req.ClientSecret, req.Name)
	if err != nil {
		return nil, err
	}
	refreshTokenEnc, err := r.crypto.Encrypt(req.RefreshToken, req.Name)
	if err != nil {
		return nil, err
	}

	cfg := &store.OAuthConfig{
		ClientIDEnc:     string(clientIDEnc),
		ClientSecretEnc: string(clientSecretEnc),
		RefreshTokenEnc: string(refreshTokenEnc),
		Scopes:          req.Scopes,
		InstanceURL:     req.InstanceURL,
		SchemeVersion:   int(crypto.CurrentScheme),
	}

	if err := r.store.InsertTenantWithConfig(ctx, t, cfg); err != nil {
		return nil, err
	}
	return t, nil
}

func (r *Registry) checkRegionOrigin(region, instanceURL string) error {
	endpoint, ok := r.regionEndpoints[region]
	if !ok {
		return gwerrors.NewRegionMismatchError("unrecognized region: "+region, nil)
	}

	wantOrigin, err := origin(endpoint)
	if err != nil {
		return gwerrors.NewInternalError("configured region endpoint is not a valid URL", err)
	}
	gotOrigin, err := origin(instanceURL)
	if err != nil {
		return gwerrors.NewRegionMismatchError("instance URL is not a valid URL", err)
	}
	if wantOrigin != gotOrigin {
		return gwerrors.NewRegionMismatchError("instance URL origin does not match region "+region, nil)
	}
	return nil
}

func origin(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host), nil
}

// UpdateStatus transitions a tenant's status, invalidating its cache
// entry so the next GetTenant reflects the change immediately.
func (r *Registry) UpdateStatus(ctx context.Context, id string, status store.TenantStatus) error {
	t, err := r.store.FindTenantByID(ctx, id)
	if err != nil {
		return err
	}
	t.Status = status
	t.UpdatedAt = time.Now()
	if err := r.store.UpdateTenantStatusTierMetadata(ctx, t); err != nil {
		return err
	}
	r.cache.invalidate(id)
	return nil
}

// ValidateScope reports whether requiredScope is authorized for a
// tenant carrying allowedScopes: an exact match, or the admin wildcard.
func ValidateScope(allowedScopes []string, requiredScope string) bool {
	for _, s := range allowedScopes {
		if s == AdminWildcard || s == requiredScope {
			return true
		}
	}
	return false
}

// Package oidc implements federated sign-in with an OpenID Connect provider
// using the authorization code flow.
package oidc

import (
	"context"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"github.com/go-faster/errors"
	"golang.org/x/oauth2"

	"github.com/xenking/storefront/internal/domain/identity"
)

var _ identity.FederatedAuthenticator = (*Authenticator)(nil)

// Config describes an OpenID Connect client registration.
type Config struct {
	// Name prefixes the UIDs of identities from this provider.
	Name         string
	Issuer       string
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// Authenticator exchanges authorization codes for verified identities.
type Authenticator struct {
	name     string
	oauth    oauth2.Config
	verifier *gooidc.IDTokenVerifier
}

// New discovers the provider at cfg.Issuer.
func New(ctx context.Context, cfg Config) (*Authenticator, error) {
	provider, err := gooidc.NewProvider(ctx, cfg.Issuer)
	if err != nil {
		return nil, errors.Wrapf(err, "discover %s", cfg.Issuer)
	}
	name := cfg.Name
	if name == "" {
		name = "oidc"
	}
	return &Authenticator{
		name: name,
		oauth: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     provider.Endpoint(),
			Scopes:       []string{gooidc.ScopeOpenID, "profile", "email"},
		},
		verifier: provider.Verifier(&gooidc.Config{ClientID: cfg.ClientID}),
	}, nil
}

// AuthCodeURL returns the consent page URL carrying state.
func (a *Authenticator) AuthCodeURL(state string) string {
	return a.oauth.AuthCodeURL(state)
}

type claims struct {
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

// Exchange trades code for tokens and verifies the ID token.
func (a *Authenticator) Exchange(ctx context.Context, code string) (*identity.Identity, error) {
	tok, err := a.oauth.Exchange(ctx, code)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.ErrorCode == "access_denied" {
			return nil, identity.ErrPopupClosed
		}
		return nil, errors.Wrap(identity.ErrNetwork, err.Error())
	}
	raw, ok := tok.Extra("id_token").(string)
	if !ok || raw == "" {
		return nil, errors.Wrap(identity.ErrNetwork, "token response without id_token")
	}
	idt, err := a.verifier.Verify(ctx, raw)
	if err != nil {
		return nil, errors.Wrap(identity.ErrNetwork, err.Error())
	}
	var c claims
	if err := idt.Claims(&c); err != nil {
		return nil, errors.Wrap(identity.ErrNetwork, err.Error())
	}
	return &identity.Identity{
		UID:      a.name + ":" + idt.Subject,
		Email:    c.Email,
		Name:     c.Name,
		PhotoURL: c.Picture,
		Provider: a.name,
	}, nil
}

package idp

import (
	"context"
	"fmt"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// NewIDTokenVerifier returns a verifier that checks signature, issuer,
// audience and expiry against the provider's published keys. Keys are
// fetched lazily on first use.
func NewIDTokenVerifier(issuer, jwksURL, clientID string) *oidc.IDTokenVerifier {
	keySet := oidc.NewRemoteKeySet(context.Background(), jwksURL)
	return oidc.NewVerifier(issuer, keySet, &oidc.Config{ClientID: clientID})
}

type idTokenClaims struct {
	Email string `json:"email"`
}

// verifyIDToken checks the id_token of a token response, when there is one,
// and ensures it names the same user as the userinfo response
func verifyIDToken(ctx context.Context, verifier *oidc.IDTokenVerifier, token *oauth2.Token, identity *Identity) error {
	raw, _ := token.Extra("id_token").(string)
	if raw == "" {
		return nil
	}

	idToken, err := verifier.Verify(ctx, raw)
	if err != nil {
		return fmt.Errorf("invalid id_token: %w", err)
	}

	var claims idTokenClaims
	if err := idToken.Claims(&claims); err != nil {
		return fmt.Errorf("invalid id_token claims: %w", err)
	}

	if identity.Subject != "" && idToken.Subject != identity.Subject {
		return fmt.Errorf("id_token subject does not match userinfo")
	}
	if claims.Email != "" && !strings.EqualFold(claims.Email, identity.Email) {
		return fmt.Errorf("id_token email does not match userinfo")
	}
	return nil
}

package server

import (
	"crypto/ed25519"
	"net/http"

	"github.com/openbadgekit/badgecore/pkg/issuer"
	"github.com/openbadgekit/badgecore/pkg/keycodec"
)

// wellKnown serves this deployment's own issuer document so other verifiers
// can validate credentials signed under PublicDomain. The identity binding
// rules require the id to match the well-known location.
func (h *Handler) wellKnown(w http.ResponseWriter, r *http.Request) {
	doc := map[string]any{
		"id":    issuer.WellKnownURL(h.cfg.PublicDomain),
		"type":  "Issuer",
		"name":  h.cfg.IssuerName,
		"url":   h.cfg.IssuerURL,
		"email": h.cfg.IssuerEmail,
	}
	if doc["name"] == "" {
		doc["name"] = h.cfg.PublicDomain
	}
	if doc["url"] == "" {
		doc["url"] = "https://" + h.cfg.PublicDomain
	}

	if h.cfg.SigningKeyPEM != "" {
		if priv, err := keycodec.DecodePrivatePEM(h.cfg.SigningKeyPEM); err == nil {
			pub := priv.Public().(ed25519.PublicKey)
			key := map[string]any{"id": doc["id"].(string) + "#key"}
			if pem, err := keycodec.EncodePublicPEM(pub); err == nil {
				key["publicKeyPem"] = pem
			}
			if mb, err := keycodec.EncodeMultibase(pub); err == nil {
				key["publicKeyMultibase"] = mb
			}
			doc["publicKey"] = key
		}
	}

	writeJSON(w, http.StatusOK, doc)
}

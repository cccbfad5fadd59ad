// Package netpasstest provides utilities for testing applications that
// embed netpass: a mock auth issuer that serves JWKS and signs tokens, and
// a scripted payment gateway with hand-driven callbacks.
package netpasstest

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

// Issuer is a mock external authentication provider. It runs an HTTP server
// serving JWKS at /.well-known/jwks.json and signs tokens that validate
// against it, so the gin auth gate can be tested without a real provider.
type Issuer struct {
	server   *httptest.Server
	key      *rsa.PrivateKey
	kid      string
	audience string
}

// NewIssuer creates a mock issuer. Call Close when done.
func NewIssuer(audience string) *Issuer {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		panic("generate RSA key: " + err.Error())
	}
	iss := &Issuer{key: key, kid: "netpass-test-1", audience: audience}

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/jwks.json", iss.handleJWKS)
	iss.server = httptest.NewServer(mux)
	return iss
}

// URL is the issuer base URL; use it as the configured issuer.
func (i *Issuer) URL() string { return i.server.URL }

// JWKSURL is what goes into AuthConfig.JWKSURL.
func (i *Issuer) JWKSURL() string { return i.server.URL + "/.well-known/jwks.json" }

func (i *Issuer) Audience() string { return i.audience }

func (i *Issuer) Close() { i.server.Close() }

// Token signs a JWT for the given user with optional extra claims merged
// over the standard set (sub, iss, aud, exp, iat).
func (i *Issuer) Token(userID string, extra map[string]any) string {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": userID,
		"iss": i.URL(),
		"aud": i.audience,
		"exp": now.Add(time.Hour).Unix(),
		"iat": now.Unix(),
	}
	for k, v := range extra {
		claims[k] = v
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = i.kid
	signed, err := tok.SignedString(i.key)
	if err != nil {
		panic("sign token: " + err.Error())
	}
	return signed
}

// AdminToken signs a token carrying the given admin role.
func (i *Issuer) AdminToken(userID, role string) string {
	return i.Token(userID, map[string]any{"roles": []string{role}})
}

// ExpiredToken signs a token that already expired, for rejection tests.
func (i *Issuer) ExpiredToken(userID string) string {
	return i.Token(userID, map[string]any{"exp": time.Now().Add(-time.Hour).Unix()})
}

func (i *Issuer) handleJWKS(w http.ResponseWriter, r *http.Request) {
	pub := &i.key.PublicKey
	doc := map[string]any{
		"keys": []map[string]string{{
			"kty": "RSA",
			"use": "sig",
			"alg": "RS256",
			"kid": i.kid,
			"n":   base64URLEncode(pub.N),
			"e":   base64URLEncode(big.NewInt(int64(pub.E))),
		}},
	}
	b, _ := json.Marshal(doc)
	sum := sha256.Sum256(b)
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("ETag", "\""+hex.EncodeToString(sum[:])+"\"")
	_, _ = w.Write(b)
}

func base64URLEncode(i *big.Int) string {
	b := i.Bytes()
	for len(b) > 0 && b[0] == 0x00 {
		b = b[1:]
	}
	return base64.RawURLEncoding.EncodeToString(b)
}

package activitypub

import (
	"context"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-fed/httpsig"
)

// maxClockSkew bounds how far the Date of a signed request may be off.
const maxClockSkew = 12 * time.Hour

var ErrSignature = errors.New("signature verification failed")

var signedHeaders = []string{httpsig.RequestTarget, "host", "date", "digest"}

// SignRequest signs an outgoing request with the given private key. The
// Digest header is computed from body and must not be set beforehand.
// keyID format: "https://example.com/users/alice#main-key"
func SignRequest(req *http.Request, privateKey *rsa.PrivateKey, keyID string, body []byte) error {
	signer, _, err := httpsig.NewSigner(
		[]httpsig.Algorithm{httpsig.RSA_SHA256},
		httpsig.DigestSha256,
		signedHeaders,
		httpsig.Signature,
		0,
	)
	if err != nil {
		return fmt.Errorf("failed to create signer: %w", err)
	}

	if req.Header.Get("Date") == "" {
		req.Header.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	}
	req.Header.Set("Host", req.URL.Host)
	return signer.SignRequest(privateKey, keyID, req, body)
}

// VerifyRequest checks the Digest and HTTP signature of an inbound request
// whose body has already been read. It returns the URI of the actor that
// owns the signing key.
func (t *HTTPTransport) VerifyRequest(ctx context.Context, req *http.Request, body []byte) (string, error) {
	if err := verifyDigest(req, body); err != nil {
		return "", fmt.Errorf("%w: %v", ErrSignature, err)
	}
	if err := verifyDate(req, time.Now()); err != nil {
		return "", fmt.Errorf("%w: %v", ErrSignature, err)
	}

	verifier, err := httpsig.NewVerifier(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSignature, err)
	}

	keyID := verifier.KeyId()
	key, cached, err := t.resolveKey(ctx, keyID, false)
	if err != nil {
		return "", fmt.Errorf("%w: resolving key: %v", ErrSignature, err)
	}
	err = verifyWithKey(verifier, key)
	if err != nil && cached {
		// the remote side may have rotated its key since it was cached
		t.cache.Del("key:" + keyID)
		key, _, err = t.resolveKey(ctx, keyID, true)
		if err != nil {
			return "", fmt.Errorf("%w: resolving key: %v", ErrSignature, err)
		}
		err = verifyWithKey(verifier, key)
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSignature, err)
	}
	return key.Owner, nil
}

func verifyWithKey(verifier httpsig.Verifier, key *publicKeyOwner) error {
	pub, err := ParsePublicKey(key.Pem)
	if err != nil {
		return err
	}
	return verifier.Verify(pub, httpsig.RSA_SHA256)
}

func digestOf(body []byte) string {
	hash := sha256.Sum256(body)
	return "SHA-256=" + base64.StdEncoding.EncodeToString(hash[:])
}

func verifyDigest(req *http.Request, body []byte) error {
	header := req.Header.Get("Digest")
	if header == "" {
		return errors.New("missing Digest header")
	}
	want := digestOf(body)
	for _, d := range strings.Split(header, ",") {
		algo, value, ok := strings.Cut(strings.TrimSpace(d), "=")
		if ok && strings.EqualFold(algo, "SHA-256") {
			if "SHA-256="+value == want {
				return nil
			}
			return errors.New("digest mismatch")
		}
	}
	return errors.New("no SHA-256 digest")
}

func verifyDate(req *http.Request, now time.Time) error {
	date, err := http.ParseTime(req.Header.Get("Date"))
	if err != nil {
		return fmt.Errorf("invalid Date header: %w", err)
	}
	if d := now.Sub(date); d > maxClockSkew || d < -maxClockSkew {
		return fmt.Errorf("date %s outside allowed skew", date.Format(time.RFC3339))
	}
	return nil
}

// ParsePublicKey converts a PKIX or PKCS#1 PEM string to *rsa.PublicKey.
func ParsePublicKey(pemString string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemString))
	if block == nil {
		return nil, fmt.Errorf("failed to parse PEM block")
	}

	if block.Type == "RSA PUBLIC KEY" {
		return x509.ParsePKCS1PublicKey(block.Bytes)
	}

	pubKey, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}

	rsaPubKey, ok := pubKey.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("not an RSA public key")
	}
	return rsaPubKey, nil
}

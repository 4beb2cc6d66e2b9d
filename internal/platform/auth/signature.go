package auth

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/marketline/api/internal/platform/httpx"
)

const (
	SignatureHeader          = "X-Signature"
	SignatureTimestampHeader = "X-Signature-Timestamp"
	SignatureNonceHeader     = "X-Signature-Nonce"

	defaultSignatureSkew = 5 * time.Minute
)

// NonceStore remembers nonces until they expire. Use reports false for a nonce already seen.
type NonceStore interface {
	Use(ctx context.Context, nonce string, expiry time.Time) (bool, error)
}

// MemoryNonceStore is a process-local NonceStore.
type MemoryNonceStore struct {
	mu     sync.Mutex
	now    func() time.Time
	nonces map[string]time.Time
}

func NewMemoryNonceStore() *MemoryNonceStore {
	return &MemoryNonceStore{now: time.Now, nonces: make(map[string]time.Time)}
}

func (s *MemoryNonceStore) Use(_ context.Context, nonce string, expiry time.Time) (bool, error) {
	if nonce == "" {
		return false, errors.New("auth: nonce is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for key, exp := range s.nonces {
		if !exp.After(now) {
			delete(s.nonces, key)
		}
	}
	if _, seen := s.nonces[nonce]; seen {
		return false, nil
	}
	s.nonces[nonce] = expiry
	return true, nil
}

// SignatureVerifier authenticates requests signed with a shared secret. The signature is an
// HMAC-SHA256, base64 or hex encoded, over
//
//	METHOD \n escaped path \n timestamp \n nonce \n hex(sha256(body))
type SignatureVerifier struct {
	secret []byte
	nonces NonceStore
	skew   time.Duration
	now    func() time.Time
}

type SignatureOption func(*SignatureVerifier)

// WithSignatureSkew bounds how far the signed timestamp may drift from the local clock.
func WithSignatureSkew(d time.Duration) SignatureOption {
	return func(v *SignatureVerifier) {
		if d > 0 {
			v.skew = d
		}
	}
}

func WithSignatureClock(now func() time.Time) SignatureOption {
	return func(v *SignatureVerifier) {
		if now != nil {
			v.now = now
		}
	}
}

func WithNonceStore(store NonceStore) SignatureOption {
	return func(v *SignatureVerifier) {
		if store != nil {
			v.nonces = store
		}
	}
}

// NewSignatureVerifier fails on an empty secret.
func NewSignatureVerifier(secret string, opts ...SignatureOption) (*SignatureVerifier, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("auth: signature secret is required")
	}
	v := &SignatureVerifier{
		secret: []byte(secret),
		skew:   defaultSignatureSkew,
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	if v.nonces == nil {
		store := NewMemoryNonceStore()
		store.now = v.now
		v.nonces = store
	}
	return v, nil
}

// Sign returns the hex signature for a request with the given parts.
func (v *SignatureVerifier) Sign(method, path, timestamp, nonce string, body []byte) string {
	return hex.EncodeToString(v.mac(canonicalRequest(method, path, timestamp, nonce, body)))
}

// Verify checks the signature headers of r. The body is read and restored for the next handler.
func (v *SignatureVerifier) Verify(r *http.Request) error {
	signature := strings.TrimSpace(r.Header.Get(SignatureHeader))
	timestamp := strings.TrimSpace(r.Header.Get(SignatureTimestampHeader))
	nonce := strings.TrimSpace(r.Header.Get(SignatureNonceHeader))
	if signature == "" || timestamp == "" || nonce == "" {
		return httpx.NewError("signature_missing", "signature, timestamp and nonce headers are required", http.StatusUnauthorized)
	}
	signedAt, err := parseSignedAt(timestamp)
	if err != nil {
		return httpx.NewError("timestamp_invalid", "signature timestamp invalid", http.StatusUnauthorized)
	}
	now := v.now()
	if drift := now.Sub(signedAt); drift > v.skew || drift < -v.skew {
		return httpx.NewError("timestamp_skew", "signature timestamp outside allowed window", http.StatusUnauthorized)
	}
	got, err := decodeSignature(signature)
	if err != nil {
		return httpx.NewError("signature_invalid", "signature encoding invalid", http.StatusUnauthorized)
	}

	body, err := restoreBody(r)
	if err != nil {
		return httpx.NewError("invalid_body", "unable to read body for signature verification", http.StatusBadRequest)
	}
	want := v.mac(canonicalRequest(r.Method, r.URL.EscapedPath(), timestamp, nonce, body))
	if !hmac.Equal(got, want) {
		return httpx.NewError("signature_mismatch", "signature verification failed", http.StatusUnauthorized)
	}

	fresh, err := v.nonces.Use(r.Context(), nonce, now.Add(2*v.skew))
	if err != nil {
		return httpx.NewError("verification_unavailable", "nonce storage error", http.StatusServiceUnavailable)
	}
	if !fresh {
		return httpx.NewError("nonce_replay", "duplicate signature nonce", http.StatusUnauthorized)
	}
	return nil
}

// RequireSignature rejects requests that fail Verify.
func (v *SignatureVerifier) RequireSignature() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v == nil {
				httpx.WriteError(r.Context(), w, httpx.NewError("verification_unavailable", "signature verification not configured", http.StatusServiceUnavailable))
				return
			}
			if err := v.Verify(r); err != nil {
				var rejected httpx.Error
				if !errors.As(err, &rejected) {
					rejected = httpx.NewError("signature_invalid", "signature verification failed", http.StatusUnauthorized)
				}
				httpx.WriteError(r.Context(), w, rejected)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (v *SignatureVerifier) mac(message []byte) []byte {
	h := hmac.New(sha256.New, v.secret)
	_, _ = h.Write(message)
	return h.Sum(nil)
}

func canonicalRequest(method, path, timestamp, nonce string, body []byte) []byte {
	if path == "" {
		path = "/"
	}
	digest := sha256.Sum256(body)
	return []byte(strings.Join([]string{strings.ToUpper(method), path, timestamp, nonce, hex.EncodeToString(digest[:])}, "\n"))
}

func restoreBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	body, err := io.ReadAll(r.Body)
	_ = r.Body.Close()
	if err != nil {
		return nil, err
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	return body, nil
}

func decodeSignature(value string) ([]byte, error) {
	if decoded, err := hex.DecodeString(value); err == nil {
		return decoded, nil
	}
	if decoded, err := base64.StdEncoding.DecodeString(value); err == nil {
		return decoded, nil
	}
	return nil, errors.New("auth: signature must be hex or base64 encoded")
}

// parseSignedAt accepts RFC 3339 or unix seconds.
func parseSignedAt(value string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts.UTC(), nil
	}
	if seconds, err := strconv.ParseInt(value, 10, 64); err == nil {
		return time.Unix(seconds, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("auth: unparseable timestamp %q", value)
}

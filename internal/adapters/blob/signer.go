// Package blob resolves stored avatar references into fetchable URLs.
// References that are already absolute http(s) URLs pass through; everything
// else is treated as a key under the local blob directory and handed out as a
// short-lived signed URL.
package blob

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dkeye/Poker/internal/core"
)

var (
	ErrBadRef      = errors.New("bad blob reference")
	ErrBadSign     = errors.New("bad signature")
	ErrURLExpired  = errors.New("signed url expired")
	ErrNoSignerKey = errors.New("blob signing key is empty")
)

type Signer struct {
	BaseURL string
	Key     []byte
	TTL     time.Duration
	Now     func() time.Time
}

var _ core.BlobStore = (*Signer)(nil)

func NewSigner(baseURL string, key []byte, ttl time.Duration) (*Signer, error) {
	if len(key) == 0 {
		return nil, ErrNoSignerKey
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Signer{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Key:     key,
		TTL:     ttl,
		Now:     time.Now,
	}, nil
}

func IsAbsolute(ref string) bool {
	return strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://")
}

// CleanRef normalises a stored key and rejects anything that could climb out
// of the blob directory.
func CleanRef(ref string) (string, error) {
	ref = strings.TrimLeft(ref, "/")
	if ref == "" || strings.ContainsAny(ref, "\\?#") {
		return "", ErrBadRef
	}
	for _, part := range strings.Split(ref, "/") {
		if part == "" || part == "." || part == ".." {
			return "", ErrBadRef
		}
	}
	return ref, nil
}

func (s *Signer) Resolve(_ context.Context, ref string) (string, error) {
	if ref == "" {
		return "", nil
	}
	if IsAbsolute(ref) {
		return ref, nil
	}
	key, err := CleanRef(ref)
	if err != nil {
		return "", fmt.Errorf("%w: %q", err, ref)
	}
	exp := s.Now().Add(s.TTL).Unix()
	return fmt.Sprintf("%s/%s?expires=%d&sig=%s", s.BaseURL, key, exp, s.sign(key, exp)), nil
}

// Verify checks the query parameters of a URL produced by Resolve.
func (s *Signer) Verify(ref, expires, sig string) error {
	key, err := CleanRef(ref)
	if err != nil {
		return err
	}
	exp, err := strconv.ParseInt(expires, 10, 64)
	if err != nil {
		return ErrBadSign
	}
	want := s.sign(key, exp)
	if !hmac.Equal([]byte(want), []byte(sig)) {
		return ErrBadSign
	}
	if s.Now().Unix() > exp {
		return ErrURLExpired
	}
	return nil
}

func (s *Signer) sign(key string, exp int64) string {
	mac := hmac.New(sha256.New, s.Key)
	mac.Write([]byte(key))
	mac.Write([]byte{'\n'})
	mac.Write([]byte(strconv.FormatInt(exp, 10)))
	return hex.EncodeToString(mac.Sum(nil))
}

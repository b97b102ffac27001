package utils

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/hkdf"
)

// Link purposes, part of the signed payload so a review token cannot be
// replayed as an unsubscribe token
const (
	LinkPurposeReview      = "review"
	LinkPurposeUnsubscribe = "unsubscribe"
)

var ErrInvalidToken = errors.New("invalid or tampered link token")

// LinkSigner builds the public tracked links placed in review messages.
// Tokens are "<requestID>.<signature>".
type LinkSigner struct {
	baseURL string
	key     []byte
}

func NewLinkSigner(appSecret, baseURL string) (*LinkSigner, error) {
	if appSecret == "" {
		return nil, errors.New("link signer needs an app secret")
	}
	key := make([]byte, 32)
	r := hkdf.New(sha256.New, []byte(appSecret), nil, []byte("rankitpro review drip links"))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("derive link key: %w", err)
	}
	return &LinkSigner{baseURL: strings.TrimRight(baseURL, "/"), key: key}, nil
}

func (s *LinkSigner) sign(purpose, id string) string {
	mac := hmac.New(sha256.New, s.key)
	mac.Write([]byte(purpose + ":" + id))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil)[:18])
}

// Token returns the signed token for a request and purpose
func (s *LinkSigner) Token(purpose string, requestID uint) string {
	id := strconv.FormatUint(uint64(requestID), 10)
	return id + "." + s.sign(purpose, id)
}

// Verify checks a token and returns the request id it was issued for
func (s *LinkSigner) Verify(purpose, token string) (uint, error) {
	id, sig, ok := strings.Cut(token, ".")
	if !ok || id == "" || sig == "" {
		return 0, ErrInvalidToken
	}
	if !hmac.Equal([]byte(sig), []byte(s.sign(purpose, id))) {
		return 0, ErrInvalidToken
	}
	n, err := strconv.ParseUint(id, 10, 32)
	if err != nil || n == 0 {
		return 0, ErrInvalidToken
	}
	return uint(n), nil
}

func (s *LinkSigner) ReviewLink(requestID uint) string {
	return s.baseURL + "/r/" + s.Token(LinkPurposeReview, requestID)
}

func (s *LinkSigner) UnsubscribeLink(requestID uint) string {
	return s.baseURL + "/u/" + s.Token(LinkPurposeUnsubscribe, requestID)
}

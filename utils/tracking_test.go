package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinkSignerRoundTrip(t *testing.T) {
	s, err := NewLinkSigner("super-secret", "https://app.rankitpro.test/")
	require.NoError(t, err)

	token := s.Token(LinkPurposeReview, 42)
	id, err := s.Verify(LinkPurposeReview, token)
	require.NoError(t, err)
	assert.Equal(t, uint(42), id)

	assert.True(t, strings.HasPrefix(s.ReviewLink(42), "https://app.rankitpro.test/r/42."))
	assert.True(t, strings.HasPrefix(s.UnsubscribeLink(42), "https://app.rankitpro.test/u/42."))
}

func TestLinkSignerRejectsTampering(t *testing.T) {
	s, err := NewLinkSigner("super-secret", "https://app.rankitpro.test")
	require.NoError(t, err)
	other, err := NewLinkSigner("another-secret", "https://app.rankitpro.test")
	require.NoError(t, err)

	token := s.Token(LinkPurposeReview, 42)
	_, sig, _ := strings.Cut(token, ".")

	for name, bad := range map[string]string{
		"empty":         "",
		"no signature":  "42",
		"other id":      "43." + sig,
		"other purpose": s.Token(LinkPurposeUnsubscribe, 42),
		"other secret":  other.Token(LinkPurposeReview, 42),
		"garbage":       "abc.def",
		"zero id":       s.Token(LinkPurposeReview, 0),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := s.Verify(LinkPurposeReview, bad)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}

	_, err = NewLinkSigner("", "https://x")
	assert.Error(t, err)
}

package product

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRef(t *testing.T) {
	t.Parallel()

	t.Run("CanonicalProductURL", func(t *testing.T) {
		ref, err := ParseRef("https://produto.mercadolivre.com.br/MLB-1234567890")
		require.NoError(t, err)
		assert.Equal(t, "MLB1234567890", ref.Identifier)
		assert.Equal(t, "https://produto.mercadolivre.com.br/MLB-1234567890", ref.SourceURL)
	})

	t.Run("CatalogStyleURL", func(t *testing.T) {
		ref, err := ParseRef("https://www.mercadolivre.com.br/p/MLB51568808")
		require.NoError(t, err)
		assert.Equal(t, "MLB51568808", ref.Identifier)
	})

	t.Run("QueryStringDoesNotChangeIdentity", func(t *testing.T) {
		a, err := ParseRef("https://produto.mercadolivre.com.br/MLB-1234567890")
		require.NoError(t, err)
		b, err := ParseRef("https://produto.mercadolivre.com.br/MLB-1234567890?utm_source=ig&ref=share#detalhes")
		require.NoError(t, err)
		assert.Equal(t, a.Identifier, b.Identifier)
		assert.Equal(t, a.SourceURL, b.SourceURL)
	})

	t.Run("LowercaseTokenAccepted", func(t *testing.T) {
		ref, err := ParseRef("https://produto.mercadolivre.com.br/mlb-3344556677-tenis")
		require.NoError(t, err)
		assert.Equal(t, "MLB3344556677", ref.Identifier)
	})

	t.Run("WrongDomain", func(t *testing.T) {
		_, err := ParseRef("https://example.com/MLB-1234567890")
		require.ErrorIs(t, err, ErrInvalidReference)
	})

	t.Run("LookalikeDomainRejected", func(t *testing.T) {
		_, err := ParseRef("https://notmercadolivre.com.br/MLB-1234567890")
		require.ErrorIs(t, err, ErrInvalidReference)
	})

	t.Run("NoProductToken", func(t *testing.T) {
		_, err := ParseRef("https://www.mercadolivre.com.br/ofertas")
		require.ErrorIs(t, err, ErrInvalidReference)
	})

	t.Run("EmptyInput", func(t *testing.T) {
		_, err := ParseRef("   ")
		require.ErrorIs(t, err, ErrInvalidReference)
	})

	t.Run("BadScheme", func(t *testing.T) {
		_, err := ParseRef("ftp://produto.mercadolivre.com.br/MLB-1234567890")
		require.ErrorIs(t, err, ErrInvalidReference)
	})
}

package chain

import (
	"encoding/base64"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTypeTag(t *testing.T) {
	tag, err := ParseTypeTag("0xabc::portfolio::Portfolio")
	require.NoError(t, err)
	assert.Equal(t, "0xabc", tag.Package)
	assert.Equal(t, "portfolio::Portfolio", tag.ShortName())
	assert.Equal(t, "0xabc::portfolio::Portfolio", tag.String())

	generic, err := ParseTypeTag("0x2::coin::Coin<0x2::sui::SUI>")
	require.NoError(t, err)
	assert.Equal(t, "Coin", generic.Name)

	for _, bad := range []string{"", "portfolio", "0x1::portfolio", "::a::b"} {
		_, err := ParseTypeTag(bad)
		assert.Error(t, err, bad)
	}
}

func TestIsAddress(t *testing.T) {
	cases := map[string]bool{
		"0x1":                          true,
		"0xABCdef0123":                 true,
		"0x" + strings.Repeat("a", 64): true,
		"0x" + strings.Repeat("a", 65): false,
		"0x":                           false,
		"abc":                          false,
		"0xzz":                         false,
		"":                             false,
	}
	for in, want := range cases {
		assert.Equal(t, want, IsAddress(in), in)
	}
}

func TestParseObjectShapes(t *testing.T) {
	t.Run("reference id and nested data fields", func(t *testing.T) {
		obj, ok := ParseObject(map[string]any{
			"reference": map[string]any{"objectId": "0x5"},
			"content": map[string]any{
				"type": testTag,
				"data": map[string]any{"fields": map[string]any{"name": "Bob"}},
			},
		})
		require.True(t, ok)
		assert.Equal(t, "0x5", obj.ID)
		assert.Equal(t, testTag, obj.Type)
		assert.Equal(t, "Bob", obj.Fields["name"])
	})

	t.Run("object wrapper", func(t *testing.T) {
		obj, ok := ParseObject(map[string]any{"object": map[string]any{"object_id": "0x6"}})
		require.True(t, ok)
		assert.Equal(t, "0x6", obj.ID)
		assert.False(t, obj.HasContent())
	})

	t.Run("empty", func(t *testing.T) {
		_, ok := ParseObject(map[string]any{"foo": 1})
		assert.False(t, ok)
		_, ok = ParseObject(nil)
		assert.False(t, ok)
	})
}

func TestEd25519Signer(t *testing.T) {
	seed := make([]byte, 32)
	seed[0] = 7

	fromB64, err := ParseEd25519Key(base64.StdEncoding.EncodeToString(seed))
	require.NoError(t, err)
	flagged, err := ParseEd25519Key(base64.StdEncoding.EncodeToString(append([]byte{0x00}, seed...)))
	require.NoError(t, err)
	fromHex, err := ParseEd25519Key("0x" + hex.EncodeToString(seed))
	require.NoError(t, err)

	assert.Equal(t, fromB64.Address(), flagged.Address())
	assert.Equal(t, fromB64.Address(), fromHex.Address())
	assert.True(t, IsAddress(fromB64.Address()))
	assert.Len(t, fromB64.Address(), 66)

	_, err = ParseEd25519Key(base64.StdEncoding.EncodeToString(append([]byte{0x01}, seed...)))
	assert.Error(t, err)
	_, err = ParseEd25519Key("")
	assert.Error(t, err)
}

func TestParseMutationResultEventsUnderEffects(t *testing.T) {
	res := ParseMutationResult(map[string]any{
		"txDigest": "D",
		"effects": map[string]any{
			"events": []any{map[string]any{"parsedJson": map[string]any{"object_id": "0x1"}}},
		},
	})
	assert.Equal(t, "D", res.Digest)
	assert.Len(t, res.Events, 1)
}

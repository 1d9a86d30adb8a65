package codec

import (
	"encoding/base64"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/risa-org/wsc/errs"
)

func key32() []byte {
	k := make([]byte, 32)
	for i := range k {
		k[i] = byte(i)
	}
	return k
}

func TestRoundTripNoCompressionNoEncryption(t *testing.T) {
	c, err := New(Config{})
	require.NoError(t, err)

	wire, err := c.Encode([]byte("hello world"))
	require.NoError(t, err)

	got, err := c.Decode(wire)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(got))
}

func TestRoundTripGzipAboveThreshold(t *testing.T) {
	c, err := New(Config{CompressionEnabled: true, CompressionThreshold: 4, CompressionAlgorithm: CompressionGzip})
	require.NoError(t, err)

	payload := []byte("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	wire, err := c.Encode(payload)
	require.NoError(t, err)

	got, err := c.Decode(wire)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestRoundTripDeflate(t *testing.T) {
	c, err := New(Config{CompressionEnabled: true, CompressionThreshold: 1, CompressionAlgorithm: CompressionDeflate})
	require.NoError(t, err)

	payload := []byte("the quick brown fox jumps over the lazy dog, repeatedly")
	wire, err := c.Encode(payload)
	require.NoError(t, err)

	got, err := c.Decode(wire)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestRoundTripSnappyFallback(t *testing.T) {
	c, err := New(Config{CompressionEnabled: true, CompressionThreshold: 1, CompressionAlgorithm: CompressionFallback})
	require.NoError(t, err)

	payload := []byte("snappy round trip payload data data data")
	wire, err := c.Encode(payload)
	require.NoError(t, err)

	got, err := c.Decode(wire)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestBelowThresholdSkipsCompression(t *testing.T) {
	c, err := New(Config{CompressionEnabled: true, CompressionThreshold: 1000, CompressionAlgorithm: CompressionGzip})
	require.NoError(t, err)

	payload := []byte("short")
	wire, err := c.Encode(payload)
	require.NoError(t, err)

	got, err := c.Decode(wire)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestRoundTripWithEncryption(t *testing.T) {
	c, err := New(Config{EncryptionEnabled: true, EncryptionKey: key32()})
	require.NoError(t, err)

	payload := []byte("secret message")
	wire, err := c.Encode(payload)
	require.NoError(t, err)
	assert.NotContains(t, wire, "secret")

	got, err := c.Decode(wire)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestRoundTripWithCompressionAndEncryption(t *testing.T) {
	c, err := New(Config{
		CompressionEnabled:   true,
		CompressionThreshold: 1,
		CompressionAlgorithm: CompressionGzip,
		EncryptionEnabled:    true,
		EncryptionKey:        key32(),
	})
	require.NoError(t, err)

	payload := []byte("compress then encrypt then decrypt then decompress")
	wire, err := c.Encode(payload)
	require.NoError(t, err)

	got, err := c.Decode(wire)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestTamperedCiphertextFailsTagVerification(t *testing.T) {
	c, err := New(Config{EncryptionEnabled: true, EncryptionKey: key32()})
	require.NoError(t, err)

	wire, err := c.Encode([]byte("payload"))
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(wire)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0xFF

	_, err = c.Decode(base64.StdEncoding.EncodeToString(raw))
	require.Error(t, err)

	var e *errs.Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, errs.KindEncryption, e.Kind)
	assert.False(t, e.Retryable)
}

func TestFixedIVIsUsedWhenConfigured(t *testing.T) {
	iv := make([]byte, 12)
	c, err := New(Config{EncryptionEnabled: true, EncryptionKey: key32(), FixedIV: iv})
	require.NoError(t, err)

	wireA, err := c.Encode([]byte("same plaintext"))
	require.NoError(t, err)
	wireB, err := c.Encode([]byte("same plaintext"))
	require.NoError(t, err)

	assert.Equal(t, wireA, wireB, "a fixed IV makes identical plaintexts produce identical ciphertext")
}

func TestInvalidEncryptionKeyLengthFailsAtConstruction(t *testing.T) {
	_, err := New(Config{EncryptionEnabled: true, EncryptionKey: []byte("too-short")})
	require.Error(t, err)

	var e *errs.Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, errs.KindEncryption, e.Kind)
}

package util

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashStringRoundTrip(t *testing.T) {
	h := DoubleSha256([]byte("block header bytes"))
	s := h.String()
	back, err := HashFromString(s)
	require.NoError(t, err)
	assert.Equal(t, h, back)
}

func TestHashIsZero(t *testing.T) {
	assert.True(t, HashZero.IsZero())
	h := DoubleSha256([]byte("x"))
	assert.False(t, h.IsZero())
}

func TestVarIntRoundTrip(t *testing.T) {
	cases := []uint64{0, 1, 0xfc, 0xfd, 0xffff, 0x10000, 0xffffffff, 0x100000000}
	for _, v := range cases {
		var buf bytes.Buffer
		require.NoError(t, WriteVarInt(&buf, v))
		got, err := ReadVarInt(&buf)
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
}

func TestVarBytesRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte("a locking script")
	require.NoError(t, WriteVarBytes(&buf, payload))
	got, err := ReadVarBytes(&buf, 1024)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestHashSerializeRoundTrip(t *testing.T) {
	h := DoubleSha256([]byte("y"))
	var buf bytes.Buffer
	require.NoError(t, h.Serialize(&buf))
	got, err := DeserializeHash(&buf)
	require.NoError(t, err)
	assert.Equal(t, h, got)
}

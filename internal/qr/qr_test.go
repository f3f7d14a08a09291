package qr

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPayload_EncodeFieldNames(t *testing.T) {
	data, err := Payload{SessionID: "s-1", Code: "abc", Expires: 1700000000000}.Encode()
	require.NoError(t, err)
	assert.JSONEq(t, `{"sessionId":"s-1","code":"abc","expires":1700000000000}`, data)
}

func TestDecode_RejectsIncompletePayload(t *testing.T) {
	_, err := Decode(`{"sessionId":"s-1"}`)
	assert.Error(t, err)

	_, err = Decode(`not json`)
	assert.Error(t, err)

	p, err := Decode(`{"sessionId":"s-1","code":"abc","expires":5}`)
	require.NoError(t, err)
	assert.Equal(t, Payload{SessionID: "s-1", Code: "abc", Expires: 5}, p)
}

func TestPNG_ProducesImage(t *testing.T) {
	png, err := PNG(`{"sessionId":"s-1","code":"abc","expires":5}`, 0)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG\r\n\x1a\n")), "expected PNG signature")
}

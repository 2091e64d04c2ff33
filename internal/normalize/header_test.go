package normalize

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderEncoding(t *testing.T) {
	h := http.Header{}
	h.Add("content-type", "application/json")
	h.Add("Set-Cookie", "a=1")
	h.Add("Set-Cookie", "b=2")

	data, err := EncodeHeader(h)
	require.NoError(t, err)
	assert.Equal(t, `{"Content-Type":["application/json"],"Set-Cookie":["a=1","b=2"]}`, string(data))

	back, err := DecodeHeader(data)
	require.NoError(t, err)
	assert.Equal(t, "application/json", back.Get("Content-Type"))
	assert.Equal(t, []string{"a=1", "b=2"}, back.Values("Set-Cookie"))
}

func TestDecodeHeaderJoinedValue(t *testing.T) {
	h, err := DecodeHeader([]byte(`{"Content-Type":"application/json"}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"application/json"}, h.Values("Content-Type"))
}

func TestHeaderEncodingEmpty(t *testing.T) {
	data, err := EncodeHeader(nil)
	require.NoError(t, err)
	assert.Nil(t, data)

	h, err := DecodeHeader(nil)
	require.NoError(t, err)
	assert.Empty(t, h)

	_, err = DecodeHeader([]byte("[1,2]"))
	assert.Error(t, err)
	_, err = DecodeHeader([]byte("{"))
	assert.Error(t, err)
}

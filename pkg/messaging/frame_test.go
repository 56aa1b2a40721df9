package messaging

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"hftcore/pkg/exception"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameStream(t *testing.T) {
	buf, err := AppendFrame(nil, FrameMessage, "orders.new", []byte(`{"id":1}`))
	require.NoError(t, err)
	buf, err = AppendFrame(buf, FramePing, "", nil)
	require.NoError(t, err)

	r := bytes.NewReader(buf)
	kind, topic, payload, err := ReadFrame(r)
	require.NoError(t, err)
	assert.Equal(t, FrameMessage, kind)
	assert.Equal(t, "orders.new", topic)
	assert.Equal(t, `{"id":1}`, string(payload))

	kind, topic, payload, err = ReadFrame(r)
	require.NoError(t, err)
	assert.Equal(t, FramePing, kind)
	assert.Empty(t, topic)
	assert.Empty(t, payload)

	_, _, _, err = ReadFrame(r)
	assert.ErrorIs(t, err, io.EOF)
}

func TestDecodeFrameRejectsBadInput(t *testing.T) {
	_, _, _, err := DecodeFrame([]byte{1, 0})
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

	_, _, _, err = DecodeFrame([]byte{9, 0, 0, 0, 0, 0, 0})
	assert.ErrorIs(t, err, exception.ErrFrameKind)

	buf, err := AppendFrame(nil, FrameSubscribe, "abc", nil)
	require.NoError(t, err)
	_, _, _, err = DecodeFrame(buf[:len(buf)-1])
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

	_, err = AppendFrame(nil, FrameMessage, "t", []byte(strings.Repeat("x", DefaultMaxFrameSize)))
	assert.ErrorIs(t, err, exception.ErrFrameTooLarge)

	_, err = AppendFrame(nil, FrameKind(0), "t", nil)
	assert.ErrorIs(t, err, exception.ErrFrameKind)
}

package push

import (
	"testing"

	"github.com/go-stomp/stomp/v3/frame"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameEncodeDecode(t *testing.T) {
	send := frame.New(frame.SEND, "destination", "/app/text", "note", "a:b\nc")
	send.Body = []byte(`{"text":"hi"}`)

	encoded, err := encodeFrame(send)
	require.NoError(t, err)
	assert.NotContains(t, string(encoded), "a:b\nc")

	frames, err := decodeFrames(encoded)
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, frame.SEND, frames[0].Command)
	assert.Equal(t, "a:b\nc", frames[0].Header.Get("note"))
	assert.Equal(t, `{"text":"hi"}`, string(frames[0].Body))
}

func TestDecodeFramesSkipsHeartbeats(t *testing.T) {
	frames, err := decodeFrames([]byte("\n"))
	require.NoError(t, err)
	assert.Empty(t, frames)

	frames, err = decodeFrames([]byte("\nCONNECTED\nversion:1.2\n\n\x00\n"))
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, frame.CONNECTED, frames[0].Command)
	assert.Equal(t, "1.2", frames[0].Header.Get("version"))
}

func TestDecodeFramesHonorsContentLength(t *testing.T) {
	raw := "MESSAGE\ncontent-length:5\ndestination:/user/queue/snapshot\n\na\x00b\x00c\x00" + "RECEIPT\nreceipt-id:7\n\n\x00"

	frames, err := decodeFrames([]byte(raw))
	require.NoError(t, err)
	require.Len(t, frames, 2)
	assert.Equal(t, []byte("a\x00b\x00c"), frames[0].Body)
	assert.Equal(t, frame.RECEIPT, frames[1].Command)
}

func TestDecodeFramesRejectsBadContentLength(t *testing.T) {
	_, err := decodeFrames([]byte("MESSAGE\ncontent-length:x\n\n\x00"))
	require.Error(t, err)
}

package push

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/go-stomp/stomp/v3/frame"
)

// encodeFrame renders f as the payload of one WebSocket text message.
func encodeFrame(f *frame.Frame) ([]byte, error) {
	var buf bytes.Buffer
	if err := frame.NewWriter(&buf).Write(f); err != nil {
		return nil, fmt.Errorf("encode %s frame: %w", f.Command, err)
	}

	return buf.Bytes(), nil
}

// decodeFrames reads every frame carried by one WebSocket message.
// Heart-beat EOLs are skipped, so a message holding only heart-beats yields
// no frames and no error.
func decodeFrames(data []byte) ([]*frame.Frame, error) {
	reader := frame.NewReader(bytes.NewReader(data))

	var frames []*frame.Frame
	for {
		f, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return frames, nil
		}
		if err != nil {
			return frames, fmt.Errorf("decode stomp frame: %w", err)
		}
		if f == nil {
			continue
		}
		frames = append(frames, f)
	}
}

package messaging

import (
	"encoding/binary"
	"io"
	"math"

	"hftcore/pkg/exception"
)

// FrameKind tags frames exchanged with a hub.
type FrameKind uint8

const (
	FrameMessage FrameKind = iota + 1
	FrameSubscribe
	FramePing
	FramePong
)

const (
	frameHeaderSize = 7
	// DefaultMaxFrameSize bounds topic plus payload of one frame.
	DefaultMaxFrameSize = 1 << 20
)

// AppendFrame encodes a frame as
// [kind u8][topic len u16][payload len u32][topic][payload], little endian.
func AppendFrame(dst []byte, kind FrameKind, topic string, payload []byte) ([]byte, error) {
	if kind < FrameMessage || kind > FramePong {
		return dst, exception.ErrFrameKind
	}
	if len(topic) > math.MaxUint16 || len(topic)+len(payload) > DefaultMaxFrameSize {
		return dst, exception.ErrFrameTooLarge
	}
	dst = append(dst, byte(kind))
	dst = binary.LittleEndian.AppendUint16(dst, uint16(len(topic)))
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(payload)))
	dst = append(dst, topic...)
	dst = append(dst, payload...)
	return dst, nil
}

// DecodeFrame parses one complete frame. The payload aliases b.
func DecodeFrame(b []byte) (FrameKind, string, []byte, error) {
	if len(b) < frameHeaderSize {
		return 0, "", nil, io.ErrUnexpectedEOF
	}
	kind := FrameKind(b[0])
	if kind < FrameMessage || kind > FramePong {
		return 0, "", nil, exception.ErrFrameKind
	}
	topicLen := int(binary.LittleEndian.Uint16(b[1:3]))
	payloadLen := int(binary.LittleEndian.Uint32(b[3:7]))
	if topicLen+payloadLen > DefaultMaxFrameSize {
		return 0, "", nil, exception.ErrFrameTooLarge
	}
	body := b[frameHeaderSize:]
	if len(body) != topicLen+payloadLen {
		return 0, "", nil, io.ErrUnexpectedEOF
	}
	return kind, string(body[:topicLen]), body[topicLen:], nil
}

// ReadFrame reads one frame from a byte stream.
func ReadFrame(r io.Reader) (FrameKind, string, []byte, error) {
	var header [frameHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return 0, "", nil, err
	}
	kind := FrameKind(header[0])
	if kind < FrameMessage || kind > FramePong {
		return 0, "", nil, exception.ErrFrameKind
	}
	topicLen := int(binary.LittleEndian.Uint16(header[1:3]))
	payloadLen := int(binary.LittleEndian.Uint32(header[3:7]))
	if topicLen+payloadLen > DefaultMaxFrameSize {
		return 0, "", nil, exception.ErrFrameTooLarge
	}
	body := make([]byte, topicLen+payloadLen)
	if _, err := io.ReadFull(r, body); err != nil {
		return 0, "", nil, err
	}
	return kind, string(body[:topicLen]), body[topicLen:], nil
}

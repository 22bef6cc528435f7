package protocol

import (
	"context"
	"log/slog"
)

// frameSync marks the start of an edge frame on the wire. The adapter board
// emits one frame per CKP rising edge it detects.
const frameSync byte = 0xA5

// frameLen is the total frame size: sync byte, 4-byte little-endian
// microsecond timestamp, 1-byte XOR checksum over the timestamp bytes.
const frameLen = 6

// EdgeCallback receives one decoded edge timestamp, in the same microsecond
// clock domain the decoder expects.
type EdgeCallback func(timestampUS uint32)

// byteReceiver is the subset of SerialConn that SerialEdgeSource needs,
// narrow enough to fake in tests without a real port.
type byteReceiver interface {
	Receive(buf []byte) (int, error)
}

// SerialEdgeSource reads framed edge timestamps from a byteReceiver and
// invokes a callback for each one, resynchronizing on checksum failure
// rather than treating it as fatal.
type SerialEdgeSource struct {
	conn byteReceiver
	buf  []byte
}

// NewSerialEdgeSource wraps an already-constructed SerialConn. The caller is
// responsible for calling Open before Run.
func NewSerialEdgeSource(conn *SerialConn) *SerialEdgeSource {
	return &SerialEdgeSource{conn: conn}
}

// Run reads frames until ctx is cancelled or the connection returns an
// unrecoverable error. It invokes onEdge once per valid frame.
func (s *SerialEdgeSource) Run(ctx context.Context, onEdge EdgeCallback) error {
	read := make([]byte, 256)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, err := s.conn.Receive(read)
		if err != nil {
			return err
		}
		if n == 0 {
			continue
		}
		s.buf = append(s.buf, read[:n]...)
		s.drainFrames(onEdge)
	}
}

// drainFrames extracts as many complete, valid frames as are buffered,
// discarding one byte at a time when resynchronizing.
func (s *SerialEdgeSource) drainFrames(onEdge EdgeCallback) {
	for {
		idx := s.findSync()
		if idx < 0 {
			s.buf = nil
			return
		}
		if idx > 0 {
			s.buf = s.buf[idx:]
		}
		if len(s.buf) < frameLen {
			return
		}

		frame := s.buf[:frameLen]
		ts, checksum := decodeFrame(frame)
		if checksum != frame[5] {
			slog.Debug("edge frame checksum mismatch, resyncing")
			s.buf = s.buf[1:]
			continue
		}

		onEdge(ts)
		s.buf = s.buf[frameLen:]
	}
}

func (s *SerialEdgeSource) findSync() int {
	for i, b := range s.buf {
		if b == frameSync {
			return i
		}
	}
	return -1
}

// decodeFrame extracts the timestamp and expected checksum from a
// frameLen-byte frame, without validating frame[0].
func decodeFrame(frame []byte) (timestampUS uint32, checksum byte) {
	b0, b1, b2, b3 := frame[1], frame[2], frame[3], frame[4]
	timestampUS = uint32(b0) | uint32(b1)<<8 | uint32(b2)<<16 | uint32(b3)<<24
	checksum = b0 ^ b1 ^ b2 ^ b3
	return timestampUS, checksum
}

// encodeFrame builds a wire frame for timestampUS, the inverse of
// decodeFrame. It is used by tests.
func encodeFrame(timestampUS uint32) []byte {
	b0 := byte(timestampUS)
	b1 := byte(timestampUS >> 8)
	b2 := byte(timestampUS >> 16)
	b3 := byte(timestampUS >> 24)
	return []byte{frameSync, b0, b1, b2, b3, b0 ^ b1 ^ b2 ^ b3}
}

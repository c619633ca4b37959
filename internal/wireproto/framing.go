package wireproto

import (
	"encoding/binary"
	"fmt"
	"io"
)

// maxFrameLen bounds a single frame to guard against a corrupt or hostile
// peer claiming an unbounded length prefix.
const maxFrameLen = 16 << 20 // 16 MiB

// WriteFrame writes a length-prefixed (4-byte big-endian) encoding of msg to w.
func WriteFrame(w io.Writer, msg Message) error {
	data, err := msg.Marshal()
	if err != nil {
		return err
	}
	var length [4]byte
	binary.BigEndian.PutUint32(length[:], uint32(len(data)))
	if _, err := w.Write(length[:]); err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// ReadFrame reads one length-prefixed message from r.
func ReadFrame(r io.Reader) (Message, error) {
	var length [4]byte
	if _, err := io.ReadFull(r, length[:]); err != nil {
		return Message{}, err
	}
	n := binary.BigEndian.Uint32(length[:])
	if n > maxFrameLen {
		return Message{}, fmt.Errorf("wireproto: frame length %d exceeds max %d", n, maxFrameLen)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return Message{}, err
	}
	return Unmarshal(buf)
}

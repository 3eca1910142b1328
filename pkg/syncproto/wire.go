package syncproto

import (
	"encoding/binary"

	"github.com/robcohen/peervault/pkg/vaulterr"
)

// writer accumulates a payload using the u16/u32 length-prefixed
// primitives the wire format uses throughout.
type writer struct {
	buf []byte
}

func (w *writer) u8(v byte)      { w.buf = append(w.buf, v) }
func (w *writer) u32(v uint32)   { w.buf = binary.BigEndian.AppendUint32(w.buf, v) }
func (w *writer) u64(v uint64)   { w.buf = binary.BigEndian.AppendUint64(w.buf, v) }
func (w *writer) bytes(b []byte) { w.buf = append(w.buf, b...) }

// bytes16 appends a u16-length-prefixed byte string. The wire format uses
// 0-length as "absent" for a handful of optional fields; callers that
// need that distinction pass nil vs []byte{} explicitly upstream.
func (w *writer) bytes16(b []byte) {
	w.buf = binary.BigEndian.AppendUint16(w.buf, uint16(len(b)))
	w.buf = append(w.buf, b...)
}

func (w *writer) bytes32(b []byte) {
	w.buf = binary.BigEndian.AppendUint32(w.buf, uint32(len(b)))
	w.buf = append(w.buf, b...)
}

func (w *writer) str16(s string) { w.bytes16([]byte(s)) }
func (w *writer) str32(s string) { w.bytes32([]byte(s)) }

func (w *writer) u16(v uint16) { w.buf = binary.BigEndian.AppendUint16(w.buf, v) }

func (w *writer) strList16(items []string) {
	w.u16(uint16(len(items)))
	for _, s := range items {
		w.str16(s)
	}
}

// reader consumes a payload with bounds checks, surfacing any overrun as
// protocol.bad-frame.
type reader struct {
	b   []byte
	off int
}

func newReader(b []byte) *reader { return &reader{b: b} }

func (r *reader) need(n int) error {
	if r.off+n > len(r.b) {
		return vaulterr.New(vaulterr.CodeProtocolBadFrame, "payload shorter than declared field")
	}
	return nil
}

func (r *reader) u8() (byte, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	v := r.b[r.off]
	r.off++
	return v, nil
}

func (r *reader) u16() (uint16, error) {
	if err := r.need(2); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint16(r.b[r.off:])
	r.off += 2
	return v, nil
}

func (r *reader) u32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(r.b[r.off:])
	r.off += 4
	return v, nil
}

func (r *reader) u64() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint64(r.b[r.off:])
	r.off += 8
	return v, nil
}

func (r *reader) bytes16() ([]byte, error) {
	n, err := r.u16()
	if err != nil {
		return nil, err
	}
	if err := r.need(int(n)); err != nil {
		return nil, err
	}
	v := r.b[r.off : r.off+int(n)]
	r.off += int(n)
	return v, nil
}

func (r *reader) bytes32() ([]byte, error) {
	n, err := r.u32()
	if err != nil {
		return nil, err
	}
	if n > uint32(len(r.b)-r.off) {
		return nil, vaulterr.New(vaulterr.CodeProtocolBadFrame, "declared length overruns payload")
	}
	v := r.b[r.off : r.off+int(n)]
	r.off += int(n)
	return v, nil
}

func (r *reader) str16() (string, error) {
	b, err := r.bytes16()
	return string(b), err
}

func (r *reader) str32() (string, error) {
	b, err := r.bytes32()
	return string(b), err
}

func (r *reader) strList16() ([]string, error) {
	n, err := r.u16()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, n)
	for i := 0; i < int(n); i++ {
		s, err := r.str16()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// rest returns any bytes not yet consumed, the v2 extension block when
// present and otherwise just trailing padding callers ignore.
func (r *reader) rest() []byte { return r.b[r.off:] }

func (r *reader) atEnd() bool { return r.off >= len(r.b) }

package pdmsg

import (
	"errors"
	"testing"
)

func TestHeaderFields(t *testing.T) {
	var m Message
	m.SetType(TypeRequest)
	m.SetDataObjectCount(1)
	m.SetID(5)
	m.SetRevision(Revision30)
	m.SetPowerRole(PowerRoleSink)
	m.SetDataRole(DataRoleUFP)

	if m.Type() != TypeRequest {
		t.Errorf("Type = %v, want TypeRequest", m.Type())
	}
	if !m.IsData() {
		t.Error("IsData = false, want true")
	}
	if m.DataObjectCount() != 1 {
		t.Errorf("DataObjectCount = %d, want 1", m.DataObjectCount())
	}
	if m.ID() != 5 {
		t.Errorf("ID = %d, want 5", m.ID())
	}
	if m.Revision() != Revision30 {
		t.Errorf("Revision = %v, want Revision30", m.Revision())
	}
	if m.IsExtended() {
		t.Error("IsExtended = true, want false")
	}

	// Fields must not clobber each other.
	m.SetRevision(Revision20)
	if m.Type() != TypeRequest || m.ID() != 5 || m.DataObjectCount() != 1 {
		t.Errorf("revision change disturbed other fields: header %#x", m.Header)
	}
}

func TestEncodeDecode(t *testing.T) {
	var m Message
	m.SetType(TypeSourceCap)
	m.SetRevision(Revision20)
	m.SetDataObjectCount(2)
	m.Data[0] = 0x0a0b0c0d
	m.Data[1] = 0xcafef00d

	if m.EncodedLen() != 10 {
		t.Fatalf("EncodedLen = %d, want 10", m.EncodedLen())
	}

	var buf [MaxMessageBytes]byte
	n := m.ToBytes(buf[:])
	if n != 10 {
		t.Fatalf("ToBytes = %d, want 10", n)
	}
	if buf[0] != byte(m.Header) || buf[1] != byte(m.Header>>8) {
		t.Errorf("header bytes = %#x %#x, want little endian of %#x", buf[0], buf[1], m.Header)
	}
	if buf[2] != 0x0d || buf[5] != 0x0a {
		t.Errorf("first object bytes = % x, want little endian of %#x", buf[2:6], m.Data[0])
	}

	got, err := FromBytes(buf[:n])
	if err != nil {
		t.Fatalf("FromBytes: %v", err)
	}
	if got.Header != m.Header || got.Data[0] != m.Data[0] || got.Data[1] != m.Data[1] {
		t.Errorf("round trip = %+v, want %+v", got, m)
	}
}

func TestFromBytesTruncated(t *testing.T) {
	if _, err := FromBytes([]byte{0x42}); !errors.Is(err, ErrTruncated) {
		t.Errorf("FromBytes(1 byte) = %v, want ErrTruncated", err)
	}

	var m Message
	m.SetDataObjectCount(3)
	var buf [MaxMessageBytes]byte
	m.ToBytes(buf[:])
	if _, err := FromBytes(buf[:6]); !errors.Is(err, ErrTruncated) {
		t.Errorf("FromBytes(short frame) = %v, want ErrTruncated", err)
	}
}

func TestFromBytesIgnoresTrailing(t *testing.T) {
	var m Message
	m.SetType(TypeAccept)
	var buf [8]byte
	m.ToBytes(buf[:])
	buf[2], buf[3] = 0xff, 0xff // junk past the encoded length

	got, err := FromBytes(buf[:])
	if err != nil {
		t.Fatalf("FromBytes: %v", err)
	}
	if got.Header != m.Header || got.Data[0] != 0 {
		t.Errorf("decode = %+v, want header only message", got)
	}
}

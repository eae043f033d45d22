// Package pdmsg defines types to encode and decode USB-C Power Delivery
// messages.
package pdmsg

import "errors"

const (
	// MaxDataObjects is the maximum number of data objects that can be
	// stored in a message, as set by the standard.
	MaxDataObjects = 7

	// MaxMessageBytes is the maximum number of bytes in an encoded
	// message: 2 bytes of header plus up to 7 data objects of 4 bytes
	// each.
	MaxMessageBytes = 2 + 4*MaxDataObjects

	// MaxPayloadBytes is the maximum number of payload bytes following
	// the header in an encoded message.
	MaxPayloadBytes = MaxMessageBytes - 2
)

// ErrTruncated is returned by FromBytes when the buffer is shorter than
// the length implied by the message header.
var ErrTruncated = errors.New("pdmsg: truncated message")

// field extracts width bits of h starting at shift.
func field(h uint16, shift, width uint) uint16 {
	return (h >> shift) & (1<<width - 1)
}

// setField returns h with width bits starting at shift replaced by v.
func setField(h uint16, shift, width uint, v uint16) uint16 {
	mask := uint16(1<<width-1) << shift
	return (h &^ mask) | (v << shift & mask)
}

// Message represents a power delivery message. Extended messages are
// not supported.
type Message struct {
	Header uint16

	// Data holds the message's data objects. The array is sized to the
	// maximum allowed by the standard so that no heap allocation is
	// needed; only the first DataObjectCount() elements are meaningful.
	Data [MaxDataObjects]uint32
}

// FromBytes decodes a message from its wire encoding. Only the bytes
// implied by the header's data object count are consumed; trailing
// bytes are ignored.
func FromBytes(b []byte) (Message, error) {
	var m Message
	if len(b) < 2 {
		return m, ErrTruncated
	}
	m.Header = uint16(b[0]) | uint16(b[1])<<8
	c := int(m.DataObjectCount())
	if len(b) < 2+4*c {
		return Message{}, ErrTruncated
	}
	for i := 0; i < c; i++ {
		o := b[2+i*4 : 6+i*4]
		m.Data[i] = uint32(o[0]) | uint32(o[1])<<8 | uint32(o[2])<<16 | uint32(o[3])<<24
	}
	return m, nil
}

// EncodedLen returns the number of bytes the message occupies on the
// wire, always 2 + 4×DataObjectCount().
func (m Message) EncodedLen() uint8 {
	return 2 + 4*m.DataObjectCount()
}

// ToBytes serializes the message into b, which must be at least
// EncodedLen() bytes long, and returns the number of bytes written.
func (m Message) ToBytes(b []byte) uint8 {
	b[0] = byte(m.Header)
	b[1] = byte(m.Header >> 8)
	for i, d := range m.Data[:m.DataObjectCount()] {
		b[2+i*4] = byte(d)
		b[3+i*4] = byte(d >> 8)
		b[4+i*4] = byte(d >> 16)
		b[5+i*4] = byte(d >> 24)
	}
	return m.EncodedLen()
}

// DataObjectCount returns the number of data objects in the message.
func (m Message) DataObjectCount() uint8 {
	return uint8(field(m.Header, 12, 3))
}

// SetDataObjectCount sets the number of data objects in the message.
// n must be at most MaxDataObjects.
func (m *Message) SetDataObjectCount(n uint8) {
	m.Header = setField(m.Header, 12, 3, uint16(n))
}

// IsData returns true if the message is a data message, otherwise it is
// a control message.
func (m Message) IsData() bool {
	return m.DataObjectCount() > 0
}

// Type returns the message type. Data and control messages share type
// values, so IsData must be consulted along with Type to determine the
// actual message type.
func (m Message) Type() Type {
	return Type(field(m.Header, 0, 5))
}

// SetType sets the message type.
func (m *Message) SetType(t Type) {
	m.Header = setField(m.Header, 0, 5, uint16(t))
}

// ID returns the message ID.
func (m Message) ID() uint8 {
	return uint8(field(m.Header, 9, 3))
}

// SetID sets the message ID.
func (m *Message) SetID(id uint8) {
	m.Header = setField(m.Header, 9, 3, uint16(id))
}

// IsExtended returns true if the message has its extended flag set.
func (m Message) IsExtended() bool {
	return field(m.Header, 15, 1) != 0
}

// Revision returns the power delivery revision number of the message.
func (m Message) Revision() Revision {
	return Revision(field(m.Header, 6, 2))
}

// SetRevision sets the power delivery revision number of the message.
func (m *Message) SetRevision(r Revision) {
	m.Header = setField(m.Header, 6, 2, uint16(r))
}

// PowerRole returns the power role of the sender of the message.
func (m Message) PowerRole() PowerRole {
	return PowerRole(field(m.Header, 8, 1))
}

// SetPowerRole sets the power role of the sender of the message.
func (m *Message) SetPowerRole(r PowerRole) {
	m.Header = setField(m.Header, 8, 1, uint16(r))
}

// DataRole returns the data role of the sender of the message.
func (m Message) DataRole() DataRole {
	return DataRole(field(m.Header, 5, 1))
}

// SetDataRole sets the data role of the sender of the message.
func (m *Message) SetDataRole(r DataRole) {
	m.Header = setField(m.Header, 5, 1, uint16(r))
}

// Type represents the PD message type.
type Type uint8

// Control message types
const (
	TypeGoodCRC      Type = 0b00001
	TypeAccept       Type = 0b00011
	TypeReject       Type = 0b00100
	TypePing         Type = 0b00101
	TypePSReady      Type = 0b00110
	TypeGetSourceCap Type = 0b00111
	TypeGetSinkCap   Type = 0b01000
	TypeWait         Type = 0b01100
	TypeSoftReset    Type = 0b01101
)

// Data message types
const (
	TypeSourceCap Type = 0b00001
	TypeRequest   Type = 0b00010
	TypeSinkCap   Type = 0b00100
)

// Revision represents the power delivery revision number of a message.
type Revision uint8

// Power delivery revision numbers, in header encoding.
const (
	Revision10 Revision = 0b00
	Revision20 Revision = 0b01
	Revision30 Revision = 0b10
)

// PowerRole represents the power role of the sender of a message.
type PowerRole uint8

// Power roles of the sender of a message.
const (
	PowerRoleSink   PowerRole = 0
	PowerRoleSource PowerRole = 1
)

// DataRole represents the data role of the sender of a message.
type DataRole uint8

// Data roles of the sender of a message.
const (
	DataRoleUFP DataRole = 0
	DataRoleDFP DataRole = 1
)

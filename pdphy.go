// Package pdphy defines high level interfaces and types for driving the
// physical layer of a USB Power Delivery port.
package pdphy

import (
	"errors"

	"github.com/oxplot/go-pdphy/pdmsg"
)

// TransmitType selects the framing of an outgoing transmission. The
// numeric values are written verbatim into the hardware frame type
// field and must not be reordered.
type TransmitType uint8

// Transmit types, in hardware encoding order.
const (
	TxSOP TransmitType = iota
	TxSOPPrime
	TxSOPDoublePrime
	TxSOPPrimeDebug
	TxSOPDoublePrimeDebug
	TxHardReset
	TxCableReset
	TxBISTMode2
)

func (t TransmitType) String() string {
	switch t {
	case TxSOP:
		return "SOP"
	case TxSOPPrime:
		return "SOP'"
	case TxSOPDoublePrime:
		return "SOP''"
	case TxSOPPrimeDebug:
		return "SOP'-debug"
	case TxSOPDoublePrimeDebug:
		return "SOP''-debug"
	case TxHardReset:
		return "hard-reset"
	case TxCableReset:
		return "cable-reset"
	case TxBISTMode2:
		return "bist-mode-2"
	}
	return "INVALID"
}

// IsReset returns true if the type is one of the bare reset signals
// rather than a framed message type.
func (t TransmitType) IsReset() bool {
	return t == TxHardReset || t == TxCableReset
}

// TransmitStatus is the completion outcome of a transmission, reported
// by hardware after the transmit request has been accepted.
type TransmitStatus uint8

// Transmit completion outcomes.
const (
	TxStatusSuccess TransmitStatus = iota
	TxStatusFailed
	TxStatusDiscarded
)

func (s TransmitStatus) String() string {
	switch s {
	case TxStatusSuccess:
		return "success"
	case TxStatusFailed:
		return "failed"
	case TxStatusDiscarded:
		return "discarded"
	}
	return "INVALID"
}

// TransmitRequest describes a single transmission handed to the PHY.
type TransmitRequest struct {
	// Type selects the frame type of the transmission.
	Type TransmitType

	// Message, when non-nil, is transmitted as a framed PD message of
	// Type. When nil, a bare control signal of Type is sent instead.
	Message *pdmsg.Message

	// NegotiatedRev selects the hardware retry count for signal
	// transmissions. Framed messages carry their own revision in the
	// header, which takes precedence.
	NegotiatedRev pdmsg.Revision
}

// Port is implemented by the protocol layer sitting above the PHY. The
// PHY holds a Port only to deliver notifications and never drives its
// lifecycle.
//
// All methods are invoked with no PHY locks held, so implementations
// may call back into the PHY synchronously, including issuing a new
// transmit request.
type Port interface {

	// TransmitComplete is called once for every accepted transmit
	// request, after hardware has either delivered the frame, exhausted
	// its automatic retries or discarded the frame.
	TransmitComplete(TransmitStatus)

	// ReceivedMessage is called with each valid message read out of the
	// receive buffer. The message is a copy owned by the callee.
	ReceivedMessage(pdmsg.Message)

	// HardReset is called after hard reset signaling has been observed
	// on the wire and the PHY has been returned to its post reset
	// state.
	HardReset()
}

// ErrBusy is returned by transmit when a received message is still
// pending delivery to the upper layer and the shared buffer must not be
// overwritten. The caller should retry after the pending message has
// been consumed.
var ErrBusy = errors.New("pdphy: rx message pending")

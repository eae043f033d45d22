// Package pm8150b implements the USB Power Delivery physical layer
// driver for the PD PHY block found in Qualcomm PM8150B compatible
// PMICs.
//
// The block exposes one message sized transmit buffer, one receive
// buffer and a set of discrete interrupt lines. The driver serializes
// protocol messages into the transmit registers, assembles received
// frames from the receive registers and converts interrupt events into
// pdphy.Port callbacks. Hardware performs message retries itself; the
// retry count written with every transmission is the only retry
// mechanism in this layer.
package pm8150b

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	pdphy "github.com/oxplot/go-pdphy"
	"github.com/oxplot/go-pdphy/pdmsg"
	"github.com/oxplot/go-pdphy/phydriver"
)

// IRQEvent identifies one of the discrete interrupt lines of the PD PHY
// block. The owner of the physical lines decodes each line to its event
// via Profile.EventForLine and feeds it to PDPhy.HandleIRQ.
type IRQEvent uint8

// Interrupt events, one per hardware line.
const (
	IRQSigTx IRQEvent = iota
	IRQSigRx
	IRQMsgTx
	IRQMsgRx
	IRQMsgTxFailed
	IRQMsgTxDiscarded
	IRQMsgRxDiscarded
	numIRQEvents // must be last
)

func (e IRQEvent) String() string {
	switch e {
	case IRQSigTx:
		return "sig-tx"
	case IRQSigRx:
		return "sig-rx"
	case IRQMsgTx:
		return "msg-tx"
	case IRQMsgRx:
		return "msg-rx"
	case IRQMsgTxFailed:
		return "msg-tx-failed"
	case IRQMsgTxDiscarded:
		return "msg-tx-discarded"
	case IRQMsgRxDiscarded:
		return "msg-rx-discarded"
	}
	return "INVALID"
}

// resetSettle is how long the block is left unpowered between the
// disable and enable halves of a full reset, so its internal state
// machine starts from scratch.
const resetSettle = 450 * time.Microsecond

// PDPhy drives a single PD PHY register block.
//
// Every multi register sequence runs under one internal mutex, making
// each sequence atomic with respect to concurrent interrupt dispatch
// and request calls. Upper layer callbacks are always invoked with the
// mutex released so the pdphy.Port may call back into the driver
// synchronously.
type PDPhy struct {
	io   phydriver.RegIO
	vdd  phydriver.Regulator
	base uint16
	log  zerolog.Logger

	mu sync.Mutex // register transaction guard

	port pdphy.Port

	// armed gates interrupt dispatch: events arriving before Init has
	// completed a full reset, or after Shutdown, are dropped.
	armed atomic.Bool

	// resetWork carries deferred hard reset requests from HandleIRQ to
	// the reset worker. Capacity one; a request arriving while another
	// is pending coalesces with it.
	resetWork chan struct{}
	quit      chan struct{}
	wg        sync.WaitGroup
}

// New returns a driver for the PD PHY block described by prof,
// accessed through io and powered by vdd. The returned driver is inert
// until Init is called.
func New(io phydriver.RegIO, vdd phydriver.Regulator, prof Profile) *PDPhy {
	return &PDPhy{
		io:        io,
		vdd:       vdd,
		base:      prof.Base,
		log:       zerolog.Nop(),
		resetWork: make(chan struct{}, 1),
	}
}

// SetLogger sets the logger used for diagnostics. The default discards
// everything. Must be called before Init.
func (p *PDPhy) SetLogger(l zerolog.Logger) {
	p.log = l
}

// Init binds the upper layer port, performs a full reset of the block
// and starts accepting interrupt events. It must be called before any
// other method and may be called again after Shutdown.
func (p *PDPhy) Init(port pdphy.Port) error {
	p.port = port
	if err := p.Reset(); err != nil {
		return err
	}
	p.quit = make(chan struct{})
	p.wg.Add(1)
	go p.resetWorker()
	p.armed.Store(true)
	return nil
}

// Shutdown stops interrupt dispatch, terminates any in-flight
// transmission and closes the frame filter. The supply is left in
// whatever state the last enable or disable put it in.
func (p *PDPhy) Shutdown() {
	p.armed.Store(false)
	if p.quit != nil {
		close(p.quit)
		p.wg.Wait()
		p.quit = nil
	}
	// A request the worker never drained must not fire as a spurious
	// hard reset in the next session.
	select {
	case <-p.resetWork:
	default:
	}
	p.mu.Lock()
	p.resetOn()
	p.mu.Unlock()
}

// Reset power cycles the block: disable, a settle delay, then enable.
// It runs during Init and is available for recovery when the upper
// layer decides the PHY is wedged. It must not be called concurrently
// with an in-flight transmit or receive.
func (p *PDPhy) Reset() error {
	if err := p.disable(); err != nil {
		return err
	}
	time.Sleep(resetSettle)
	return p.enable()
}

// Transmit sends a framed message or a bare control signal, depending
// on whether the request carries a message. It returns once hardware
// has accepted the transmission; completion is reported later through
// Port.TransmitComplete. pdphy.ErrBusy is returned when a received
// message is still pending delivery.
func (p *PDPhy) Transmit(req pdphy.TransmitRequest) error {
	var err error
	if req.Message != nil {
		err = p.transmitPayload(req.Type, req.Message)
	} else {
		err = p.transmitSignal(req.Type, req.NegotiatedRev)
	}
	if err != nil {
		p.log.Debug().Err(err).Stringer("type", req.Type).Msg("pm8150b: transmit")
	}
	return err
}

// SetPdRx opens or gates the receive path. With the path gated,
// hardware holds incoming messages instead of raising msg-rx.
func (p *PDPhy) SetPdRx(on bool) error {
	var val uint8
	if !on {
		val = 1
	}
	p.mu.Lock()
	err := p.write(regRxAcknowledge, val)
	p.mu.Unlock()
	p.log.Debug().Bool("on", on).Msg("pm8150b: set pd rx")
	return err
}

// SetRoles mirrors the negotiated data and power roles into the message
// configuration register. The remaining bits of the register are
// preserved.
func (p *PDPhy) SetRoles(dataRoleHost, powerRoleSource bool) error {
	var val uint8
	if dataRoleHost {
		val |= msgConfigPortDataRole
	}
	if powerRoleSource {
		val |= msgConfigPortPowerRole
	}
	p.mu.Lock()
	err := p.updateBits(regMsgConfig, msgConfigPortDataRole|msgConfigPortPowerRole, val)
	p.mu.Unlock()
	p.log.Debug().
		Bool("data_role_host", dataRoleHost).
		Bool("power_role_source", powerRoleSource).
		Msg("pm8150b: set roles")
	return err
}

// HandleIRQ dispatches a hardware interrupt event. It is safe to call
// concurrently with the request methods. The sig-rx path only enqueues
// work and never blocks; everything else completes before returning.
func (p *PDPhy) HandleIRQ(ev IRQEvent) {
	if !p.armed.Load() {
		p.log.Debug().Stringer("irq", ev).Msg("pm8150b: dropping irq while masked")
		return
	}
	switch ev {
	case IRQSigTx:
		// We never transmit bare signals this line would acknowledge.
		p.log.Error().Msg("pm8150b: unexpected sig-tx interrupt")
	case IRQSigRx:
		select {
		case p.resetWork <- struct{}{}:
		default:
		}
	case IRQMsgTx:
		p.port.TransmitComplete(pdphy.TxStatusSuccess)
	case IRQMsgRx:
		p.receive()
	case IRQMsgTxFailed:
		p.port.TransmitComplete(pdphy.TxStatusFailed)
	case IRQMsgTxDiscarded:
		p.port.TransmitComplete(pdphy.TxStatusDiscarded)
	case IRQMsgRxDiscarded:
		// No handling is defined for this line.
	}
}

// retryControl returns the TX control retry count field for the given
// revision: revision 3.0 links allow 2 hardware retries, everything
// else 3.
func retryControl(rev pdmsg.Revision) uint8 {
	if rev == pdmsg.Revision30 {
		return txControlRetryCount(2)
	}
	return txControlRetryCount(3)
}

// clearTxControl zeroes the TX control register. The readback is not
// used for its value; it forces enough delay for the clear command to
// latch before the next write. Callers must hold p.mu.
func (p *PDPhy) clearTxControl() error {
	if err := p.write(regTxControl, 0); err != nil {
		return err
	}
	_, err := p.read(regTxControl)
	return err
}

func (p *PDPhy) transmitSignal(typ pdphy.TransmitType, rev pdmsg.Revision) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.clearTxControl(); err != nil {
		return err
	}
	val := txControlSendSignal | retryControl(rev)
	if typ.IsReset() {
		val |= txControlFrameType(1)
	}
	return p.write(regTxControl, val)
}

func (p *PDPhy) transmitPayload(typ pdphy.TransmitType, msg *pdmsg.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	// A pending received message shares buffer space with the transmit
	// path; overwriting it mid consumption would corrupt it.
	ack, err := p.read(regRxAcknowledge)
	if err != nil {
		return err
	}
	if ack != 0 {
		return pdphy.ErrBusy
	}

	if err := p.clearTxControl(); err != nil {
		return err
	}

	var buf [pdmsg.MaxMessageBytes]byte
	n := msg.ToBytes(buf[:])

	if err := p.bulkWrite(regTxBufferHdr, buf[:2]); err != nil {
		return err
	}
	if n > 2 {
		if err := p.bulkWrite(regTxBufferData, buf[2:n]); err != nil {
			return err
		}
	}

	// Hardware encodes the frame size as length minus one.
	if err := p.write(regTxSize, n-1); err != nil {
		return err
	}

	// The control register must be cleared again before re-arming.
	if err := p.clearTxControl(); err != nil {
		return err
	}

	val := txControlFrameType(uint8(typ)) | txControlSendMsg | retryControl(msg.Revision())
	return p.write(regTxControl, val)
}

// receive drains the RX buffer and hands the assembled message to the
// upper layer. Failures on this path have no synchronous caller to
// report to and are only logged; the result is a missed message, which
// the protocol layer recovers from like any lost frame.
func (p *PDPhy) receive() {
	p.mu.Lock()
	msg, ok := p.readFrame()
	p.mu.Unlock()
	if ok {
		p.port.ReceivedMessage(msg)
	}
}

// readFrame reads one frame out of the RX registers and releases the
// buffer back to hardware. Callers must hold p.mu.
func (p *PDPhy) readFrame() (pdmsg.Message, bool) {
	size, err := p.read(regRxSize)
	if err != nil {
		p.log.Error().Err(err).Msg("pm8150b: rx size read")
		return pdmsg.Message{}, false
	}
	// A trailing rx signal can legitimately zero the size register
	// before we get here.
	if size < 1 || size > pdmsg.MaxPayloadBytes {
		p.log.Debug().Uint8("size", size).Msg("pm8150b: invalid rx size")
		return pdmsg.Message{}, false
	}
	n := int(size) + 1 // size register holds length minus one

	status, err := p.read(regRxStatus)
	if err != nil {
		p.log.Error().Err(err).Msg("pm8150b: rx status read")
		return pdmsg.Message{}, false
	}

	var buf [pdmsg.MaxMessageBytes]byte
	if err := p.bulkRead(regRxBuffer, buf[:n]); err != nil {
		p.log.Error().Err(err).Msg("pm8150b: rx buffer read")
		return pdmsg.Message{}, false
	}

	// Return ownership of the RX buffer to hardware before the upper
	// layer sees the message.
	if err := p.write(regRxAcknowledge, 0); err != nil {
		p.log.Error().Err(err).Msg("pm8150b: rx acknowledge write")
		return pdmsg.Message{}, false
	}

	msg, err := pdmsg.FromBytes(buf[:n])
	if err != nil {
		p.log.Debug().Err(err).Int("len", n).Msg("pm8150b: rx decode")
		return pdmsg.Message{}, false
	}
	p.log.Debug().Int("len", n).Uint8("status", status).Msg("pm8150b: rx frame")
	return msg, true
}

// resetOn terminates any in-flight transmission and closes the frame
// filter. Both steps are attempted even if the first fails, so a stuck
// TX register cannot keep the filter open. Callers must hold p.mu.
func (p *PDPhy) resetOn() {
	if err := p.write(regTxControl, 0); err != nil {
		p.log.Error().Err(err).Msg("pm8150b: reset on: tx terminate")
	}
	if err := p.write(regFrameFilter, 0); err != nil {
		p.log.Error().Err(err).Msg("pm8150b: reset on: frame filter")
	}
}

// resetOff reopens the frame filter for SOP and hard reset frames.
// Callers must hold p.mu.
func (p *PDPhy) resetOff() {
	if err := p.write(regFrameFilter, frameFilterEnSOP|frameFilterEnHardReset); err != nil {
		p.log.Error().Err(err).Msg("pm8150b: reset off")
	}
}

// resetWorker executes hard reset sequences deferred by the sig-rx
// interrupt path, which must never run them inline.
func (p *PDPhy) resetWorker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.quit:
			return
		case <-p.resetWork:
			p.hardReset()
		}
	}
}

func (p *PDPhy) hardReset() {
	p.mu.Lock()
	p.resetOn()
	p.resetOff()
	p.mu.Unlock()
	p.port.HardReset()
}

// enable powers the supply and brings the block to its post reset
// operational state. Any failure after power-on powers the supply back
// off before returning.
func (p *PDPhy) enable() error {
	if err := p.vdd.Enable(); err != nil {
		return fmt.Errorf("pm8150b: enable supply: %w", err)
	}

	p.mu.Lock()
	err := p.bringUp()
	p.mu.Unlock()

	if err != nil {
		p.vdd.Disable()
		p.log.Error().Err(err).Msg("pm8150b: enable")
		return err
	}
	return nil
}

// bringUp configures the freshly powered block. Callers must hold p.mu
// and have enabled the supply.
func (p *PDPhy) bringUp() error {
	// Revision 2.0 is the post reset default until negotiation raises
	// it.
	if err := p.updateBits(regMsgConfig, msgConfigSpecRevMask, uint8(pdmsg.Revision20)); err != nil {
		return err
	}

	// Zero then set, so the hardware re-latches its internal reset
	// state machine.
	if err := p.write(regEnControl, 0); err != nil {
		return err
	}
	if err := p.write(regEnControl, controlEnable); err != nil {
		return err
	}

	p.resetOff()
	return nil
}

// disable quiesces the block and removes power. The supply is always
// released, even when the enable register write fails.
func (p *PDPhy) disable() error {
	p.mu.Lock()
	p.resetOn()
	err := p.write(regEnControl, 0)
	p.mu.Unlock()

	if derr := p.vdd.Disable(); derr != nil {
		p.log.Error().Err(derr).Msg("pm8150b: disable supply")
	}
	return err
}

func (p *PDPhy) read(off uint16) (uint8, error) {
	return p.io.Read(p.base + off)
}

func (p *PDPhy) write(off uint16, val uint8) error {
	return p.io.Write(p.base+off, val)
}

func (p *PDPhy) bulkRead(off uint16, b []byte) error {
	return p.io.BulkRead(p.base+off, b)
}

func (p *PDPhy) bulkWrite(off uint16, b []byte) error {
	return p.io.BulkWrite(p.base+off, b)
}

// updateBits read-modify-writes the masked bits of the register at off.
// Callers must hold p.mu.
func (p *PDPhy) updateBits(off uint16, mask, val uint8) error {
	cur, err := p.read(off)
	if err != nil {
		return err
	}
	return p.write(off, cur&^mask|val&mask)
}

// Register offsets within the PD PHY block and their bit fields. The
// encodings are fixed by hardware and shared with the port partner's
// view of the protocol; they must match exactly.
const (
	regMsgConfig           = 0x40
	msgConfigPortDataRole  = 1 << 3
	msgConfigPortPowerRole = 1 << 2
	msgConfigSpecRevMask   = 0x3

	regTxSize = 0x42

	regTxControl        = 0x44
	txControlSendSignal = 1 << 1
	txControlSendMsg    = 1 << 0

	regEnControl  = 0x46
	controlEnable = 1 << 0

	regRxSize        = 0x48
	regRxStatus      = 0x4a
	regRxAcknowledge = 0x4b

	regFrameFilter         = 0x4c
	frameFilterEnSOP       = 1 << 0
	frameFilterEnHardReset = 1 << 5

	regTxBufferHdr  = 0x60
	regTxBufferData = 0x62
	regRxBuffer     = 0x80
)

func txControlRetryCount(n uint8) uint8 { return (n & 0x3) << 5 }
func txControlFrameType(n uint8) uint8  { return (n & 0x7) << 2 }

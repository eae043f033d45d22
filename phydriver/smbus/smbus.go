// Package smbus provides a phydriver.RegIO implementation backed by a
// Linux SMBus adapter, for PHYs sitting behind a bridge that maps their
// 16 bit register space onto SMBus transfers.
package smbus

import (
	"fmt"
	"sync"

	"github.com/platinasystems/i2c"
)

// Bus accesses a PD PHY register block through /dev/i2c-N. The bridge
// addressing convention follows the common two stage scheme: the high
// offset byte travels in the SMBus command field and the low byte as
// its data byte, after which plain byte transfers access the selected
// register.
type Bus struct {
	mu  sync.Mutex
	bus i2c.Bus
}

// New opens SMBus adapter index and binds it to the bridge at the given
// slave address.
func New(index, addr int) (*Bus, error) {
	b := new(Bus)
	if err := b.bus.Open(index); err != nil {
		return nil, fmt.Errorf("smbus: open adapter %d: %w", index, err)
	}
	if err := b.bus.ForceSlaveAddress(addr); err != nil {
		b.bus.Close()
		return nil, fmt.Errorf("smbus: slave address %#x: %w", addr, err)
	}
	return b, nil
}

// Close releases the underlying adapter.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bus.Close()
}

// setOffset latches off as the active register address in the bridge.
// Callers must hold b.mu.
func (b *Bus) setOffset(off uint16) error {
	var d i2c.SMBusData
	d[0] = uint8(off)
	if err := b.bus.Do(i2c.Write, uint8(off>>8), i2c.ByteData, &d); err != nil {
		return fmt.Errorf("smbus: set offset %#x: %w", off, err)
	}
	return nil
}

// Read implements phydriver.RegIO.
func (b *Bus) Read(off uint16) (uint8, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.readLocked(off)
}

func (b *Bus) readLocked(off uint16) (uint8, error) {
	if err := b.setOffset(off); err != nil {
		return 0, err
	}
	var d i2c.SMBusData
	if err := b.bus.Do(i2c.Read, 0, i2c.Byte, &d); err != nil {
		return 0, fmt.Errorf("smbus: read %#x: %w", off, err)
	}
	return d[0], nil
}

// Write implements phydriver.RegIO.
func (b *Bus) Write(off uint16, val uint8) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.writeLocked(off, val)
}

func (b *Bus) writeLocked(off uint16, val uint8) error {
	if err := b.setOffset(off); err != nil {
		return err
	}
	var d i2c.SMBusData
	if err := b.bus.Do(i2c.Write, val, i2c.Byte, &d); err != nil {
		return fmt.Errorf("smbus: write %#x: %w", off, err)
	}
	return nil
}

// BulkRead implements phydriver.RegIO.
func (b *Bus) BulkRead(off uint16, p []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range p {
		v, err := b.readLocked(off + uint16(i))
		if err != nil {
			return err
		}
		p[i] = v
	}
	return nil
}

// BulkWrite implements phydriver.RegIO.
func (b *Bus) BulkWrite(off uint16, p []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, v := range p {
		if err := b.writeLocked(off+uint16(i), v); err != nil {
			return err
		}
	}
	return nil
}

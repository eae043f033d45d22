// Package phydriver defines interfaces for implementing USB Power
// Delivery PHY drivers on top of register mapped buses.
package phydriver

// RegIO is the minimum interface to the register bus of a PD PHY,
// byte addressable at 16 bit offsets. All PHY drivers in this module
// access hardware exclusively through this interface.
//
// Each call must be atomic with respect to concurrent callers.
// Atomicity across calls is the caller's responsibility; drivers
// serialize multi register sequences themselves.
type RegIO interface {

	// Read returns the value of the register at off.
	Read(off uint16) (uint8, error)

	// Write sets the register at off to val.
	Write(off uint16, val uint8) error

	// BulkRead fills p with len(p) consecutive bytes starting at off.
	BulkRead(off uint16, p []byte) error

	// BulkWrite writes the bytes of p to consecutive offsets starting
	// at off.
	BulkWrite(off uint16, p []byte) error
}

// Regulator controls the power supply feeding a PHY. Implementations
// backed by always-on supplies can use NopRegulator.
type Regulator interface {

	// Enable powers the supply on. Enable on an already enabled supply
	// is a no-op.
	Enable() error

	// Disable powers the supply off.
	Disable() error
}

// NopRegulator is a Regulator for PHYs whose supply is not software
// controlled.
type NopRegulator struct{}

// Enable implements Regulator.
func (NopRegulator) Enable() error { return nil }

// Disable implements Regulator.
func (NopRegulator) Disable() error { return nil }

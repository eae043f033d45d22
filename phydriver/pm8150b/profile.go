package pm8150b

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// Profile describes the board integration of a PD PHY block: where the
// register block sits within the parent device's address space and how
// the board's interrupt line names map onto the block's events.
//
// Profiles for boards not covered by the built-in ones can be loaded
// from TOML files of the form:
//
//	base = 0x1700
//
//	[irqs]
//	"usb-pd-sig-tx" = "sig-tx"
//	"usb-pd-sig-rx" = "sig-rx"
//	# ... one binding per hardware line
type Profile struct {
	// Base is the offset of the PD PHY register block.
	Base uint16 `toml:"base"`

	// IRQs maps each interrupt line name to the name of the event the
	// line signals, as returned by IRQEvent.String.
	IRQs map[string]string `toml:"irqs"`
}

// PM8150B returns the profile for the PD PHY block of the Qualcomm
// PM8150B, whose line names match the event names directly.
func PM8150B() Profile {
	irqs := make(map[string]string, numIRQEvents)
	for ev := IRQEvent(0); ev < numIRQEvents; ev++ {
		irqs[ev.String()] = ev.String()
	}
	return Profile{Base: 0x1700, IRQs: irqs}
}

// LoadProfile reads and validates a profile from a TOML file.
func LoadProfile(path string) (Profile, error) {
	var p Profile
	if _, err := toml.DecodeFile(path, &p); err != nil {
		return Profile{}, fmt.Errorf("pm8150b: profile %s: %w", path, err)
	}
	if err := p.Validate(); err != nil {
		return Profile{}, fmt.Errorf("pm8150b: profile %s: %w", path, err)
	}
	return p, nil
}

// Validate checks that every event of the block is bound to exactly one
// interrupt line and that no binding names an unknown event.
func (p Profile) Validate() error {
	var seen [numIRQEvents]string
	for line, name := range p.IRQs {
		ev, ok := parseIRQEvent(name)
		if !ok {
			return fmt.Errorf("line %q bound to unknown event %q", line, name)
		}
		if prev := seen[ev]; prev != "" {
			return fmt.Errorf("event %q bound to both lines %q and %q", name, prev, line)
		}
		seen[ev] = line
	}
	for ev := IRQEvent(0); ev < numIRQEvents; ev++ {
		if seen[ev] == "" {
			return fmt.Errorf("event %q not bound to any line", ev)
		}
	}
	return nil
}

// EventForLine returns the event signaled by the named interrupt line.
func (p Profile) EventForLine(name string) (IRQEvent, bool) {
	ev, ok := p.IRQs[name]
	if !ok {
		return 0, false
	}
	return parseIRQEvent(ev)
}

func parseIRQEvent(name string) (IRQEvent, bool) {
	for ev := IRQEvent(0); ev < numIRQEvents; ev++ {
		if ev.String() == name {
			return ev, true
		}
	}
	return 0, false
}

//go:build tinygo

package dw3000

import (
	"machine"
	"time"
)

// tinygoPin wraps a machine.Pin to satisfy the Pin interface.
type tinygoPin struct {
	pin machine.Pin
}

func (p *tinygoPin) Out(l Level) error {
	p.pin.Configure(machine.PinConfig{Mode: machine.PinOutput})
	p.pin.Set(bool(l))
	return nil
}

func (p *tinygoPin) In(pull Pull) error {
	var mPull machine.PinMode
	switch pull {
	case PullUp:
		mPull = machine.PinInputPullup
	case PullDown:
		mPull = machine.PinInputPulldown
	default:
		mPull = machine.PinInput
	}
	p.pin.Configure(machine.PinConfig{Mode: mPull})
	return nil
}

func (p *tinygoPin) Read() Level {
	return Level(p.pin.Get())
}

func (p *tinygoPin) Watch(edge Edge, handler func()) error {
	var mEdge machine.PinChange
	switch edge {
	case RisingEdge:
		mEdge = machine.PinRising
	case FallingEdge:
		mEdge = machine.PinFalling
	case BothEdges:
		mEdge = machine.PinToggle
	default:
		return nil
	}

	return p.pin.SetInterrupt(mEdge, func(machine.Pin) {
		handler()
	})
}

func (p *tinygoPin) Unwatch() error {
	p.pin.Configure(machine.PinConfig{Mode: machine.PinInput})
	return nil
}

// tinygoSPI wraps a machine.SPI to satisfy the SPI interface. Chip select
// is driven manually around each transaction; SetFastRate reconfigures
// the bus clock once the driver allows full speed.
type tinygoSPI struct {
	spi    *machine.SPI
	cs     machine.Pin
	sck    machine.Pin
	sdo    machine.Pin
	sdi    machine.Pin
	fastHz uint32
}

func (s *tinygoSPI) Tx(w, r []byte) error {
	s.cs.Low()
	err := s.spi.Tx(w, r)
	s.cs.High()
	return err
}

func (s *tinygoSPI) SetFastRate() error {
	return s.spi.Configure(machine.SPIConfig{
		Frequency: s.fastHz,
		Mode:      0,
		SCK:       s.sck,
		SDO:       s.sdo,
		SDI:       s.sdi,
	})
}

// TinyGoConfig bundles the MCU pins for NewTinyGo.
type TinyGoConfig struct {
	RadioConfig
	SCK, SDO, SDI machine.Pin
	CS            machine.Pin
	Reset         machine.Pin // machine.NoPin for soft reset
	Wakeup        machine.Pin // machine.NoPin for chip-select wake
	IRQ           machine.Pin // machine.NoPin for polled operation
	// FastHz is the SPI clock after probe. Defaults to 20MHz.
	FastHz uint32
}

// NewTinyGo creates a DW3000 driver for TinyGo systems. The SPI bus must
// already be configured at a rate of 2MHz or less.
func NewTinyGo(c TinyGoConfig, spi *machine.SPI) (*Device, error) {
	if c.FastHz == 0 {
		c.FastHz = 20000000
	}

	// Configure CS pin as output and set high (inactive)
	c.CS.Configure(machine.PinConfig{Mode: machine.PinOutput})
	c.CS.High()

	hw := HardwareConfig{
		RadioConfig: c.RadioConfig,
		Delay:       time.Sleep,
	}
	if c.Reset != machine.NoPin {
		hw.Reset = &tinygoPin{pin: c.Reset}
	}
	if c.Wakeup != machine.NoPin {
		hw.Wakeup = &tinygoPin{pin: c.Wakeup}
	}
	if c.IRQ != machine.NoPin {
		hw.IRQ = &tinygoPin{pin: c.IRQ}
	}

	spiWrapper := &tinygoSPI{
		spi:    spi,
		cs:     c.CS,
		sck:    c.SCK,
		sdo:    c.SDO,
		sdi:    c.SDI,
		fastHz: c.FastHz,
	}

	return NewWithHardware(hw, spiWrapper)
}

//go:build !tinygo

package dw3000

import (
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// realPin wraps a gpio.PinIO to satisfy the Pin interface.
type realPin struct {
	gpio.PinIO
	stopWatch chan struct{}
}

func (p *realPin) Out(l Level) error {
	if l == High {
		return p.PinIO.Out(gpio.High)
	}
	return p.PinIO.Out(gpio.Low)
}

func (p *realPin) In(pull Pull) error {
	var pPull gpio.Pull
	switch pull {
	case PullFloat:
		pPull = gpio.Float
	case PullDown:
		pPull = gpio.PullDown
	case PullUp:
		pPull = gpio.PullUp
	default:
		pPull = gpio.PullNoChange
	}
	return p.PinIO.In(pPull, gpio.NoEdge)
}

func (p *realPin) Read() Level {
	if p.PinIO.Read() == gpio.High {
		return High
	}
	return Low
}

func (p *realPin) Watch(edge Edge, handler func()) error {
	var pEdge gpio.Edge
	switch edge {
	case RisingEdge:
		pEdge = gpio.RisingEdge
	case FallingEdge:
		pEdge = gpio.FallingEdge
	case BothEdges:
		pEdge = gpio.BothEdges
	default:
		pEdge = gpio.NoEdge
	}

	// The DW3000 IRQ line idles low, so watch with a pull-down.
	if err := p.PinIO.In(gpio.PullDown, pEdge); err != nil {
		return err
	}

	p.stopWatch = make(chan struct{})

	go func() {
		for {
			// Wait for edge with -1 (infinite timeout)
			if p.PinIO.WaitForEdge(-1) {
				select {
				case <-p.stopWatch:
					return
				default:
					handler()
				}
			} else {
				select {
				case <-p.stopWatch:
					return
				default:
				}
			}
		}
	}()
	return nil
}

func (p *realPin) Unwatch() error {
	if p.stopWatch != nil {
		close(p.stopWatch)
		p.stopWatch = nil
	}
	// Disable edge detection
	return p.PinIO.In(gpio.PullDown, gpio.NoEdge)
}

// periphSPI wraps a periph.io SPI port. The connection starts at the slow
// rate the chip requires before its clocks are confirmed; SetFastRate
// reconnects at full speed once the driver allows it.
type periphSPI struct {
	port spi.PortCloser
	conn spi.Conn
	fast physic.Frequency
}

func (s *periphSPI) Tx(w, r []byte) error {
	return s.conn.Tx(w, r)
}

func (s *periphSPI) SetFastRate() error {
	conn, err := s.port.Connect(s.fast, spi.Mode0, 8)
	if err != nil {
		return err
	}
	s.conn = conn
	return nil
}

// Config holds the configuration for the Linux/periph.io driver.
type Config struct {
	RadioConfig
	// IRQPin is the GPIO pin number (BCM numbering) for the interrupt
	// line. Optional. If not provided, the caller polls ISR.
	IRQPin int
	// ResetPin is the GPIO pin number for RSTn. Optional; soft reset is
	// used without it.
	ResetPin int
	// WakeupPin is the GPIO pin number for WAKEUP. Optional; chip-select
	// wake is used without it.
	WakeupPin int
	// SpiBusPath is the path to the SPI bus (e.g., "/dev/spidev0.0").
	// Defaults to "/dev/spidev0.0" if not provided.
	SpiBusPath string
	// SpiSlowHz is the SPI clock before the chip clocks are up.
	// Defaults to 2000000 (2MHz) if not provided.
	SpiSlowHz int
	// SpiFastHz is the SPI clock used after probe.
	// Defaults to 20000000 (20MHz) if not provided.
	SpiFastHz int
}

// New creates and initialises a DW3000 driver for Linux systems using
// periph.io for SPI and GPIO.
func New(c Config) (*Device, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph.io host: %w", err)
	}

	if c.SpiBusPath == "" {
		c.SpiBusPath = "/dev/spidev0.0"
	}
	if c.SpiSlowHz == 0 {
		c.SpiSlowHz = 2000000
	}
	if c.SpiFastHz == 0 {
		c.SpiFastHz = 20000000
	}

	p, err := spireg.Open(c.SpiBusPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SPI port: %w", err)
	}

	conn, err := p.Connect(physic.Frequency(c.SpiSlowHz)*physic.Hertz, spi.Mode0, 8)
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("failed to create SPI connection: %w", err)
	}
	spiWrapper := &periphSPI{
		port: p,
		conn: conn,
		fast: physic.Frequency(c.SpiFastHz) * physic.Hertz,
	}

	pin := func(n int) (Pin, error) {
		name := fmt.Sprintf("GPIO%d", n)
		real := gpioreg.ByName(name)
		if real == nil {
			return nil, fmt.Errorf("failed to open pin %s", name)
		}
		return &realPin{PinIO: real}, nil
	}

	hw := HardwareConfig{
		RadioConfig: c.RadioConfig,
		Delay:       time.Sleep,
	}
	if c.IRQPin != 0 {
		if hw.IRQ, err = pin(c.IRQPin); err != nil {
			p.Close()
			return nil, err
		}
	}
	if c.ResetPin != 0 {
		if hw.Reset, err = pin(c.ResetPin); err != nil {
			p.Close()
			return nil, err
		}
	}
	if c.WakeupPin != 0 {
		if hw.Wakeup, err = pin(c.WakeupPin); err != nil {
			p.Close()
			return nil, err
		}
	}

	dev, err := NewWithHardware(hw, spiWrapper)
	if err != nil {
		p.Close()
		return nil, err
	}

	// Store the port closer so we can close it later
	dev.port = p
	return dev, nil
}

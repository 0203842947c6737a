// Package dw3000 is a driver for the Qorvo DW3000/DW3720 UWB transceivers.
//
// The driver owns the chip's register interface and power state machine and
// turns hardware events into typed callbacks for a ranging/MAC stack above
// it. It assumes the single-owner model of the chip: one Device per physical
// transceiver, with configuration calls and the event pipeline (ISR) sharing
// that Device. Public methods serialise on an internal mutex, which also
// provides the critical section the interrupt-enable registers and forced
// transceiver-off need; beyond that there is no internal concurrency.
//
// Faults detected asynchronously (SPI CRC mismatches, receive errors) are
// reported through the callback slots rather than return values, because
// they surface in interrupt context where no caller is waiting on a result.
package dw3000

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
)

var (
	ErrPkg         = errors.New("dw3000")
	ErrDevID       = errors.New("device id not recognised")
	ErrPLLLock     = errors.New("PLL failed to lock")
	ErrPGFCal      = errors.New("PGF calibration failed")
	ErrDelayedLate = errors.New("delayed TX/RX time has already passed")
	ErrTimeout     = errors.New("timeout waiting for device")
)

// Channel is one of the two supported UWB RF channels.
type Channel uint8

const (
	Channel5 Channel = 5 // 6.5 GHz
	Channel9 Channel = 9 // 8 GHz
)

func (c Channel) String() string {
	switch c {
	case Channel5:
		return "channel 5 (6.5GHz)"
	case Channel9:
		return "channel 9 (8GHz)"
	default:
		return "unknown"
	}
}

// STSMode selects the secure timestamp sequence packet configuration.
type STSMode uint8

const (
	// STSModeOff disables the STS.
	STSModeOff STSMode = iota
	// STSMode1 places the STS before the PHY header.
	STSMode1
	// STSMode2 places the STS after the data.
	STSMode2
	// STSModeND sends the STS with no data segment at all.
	STSModeND
)

// DblBufState tracks which receive buffer the host currently owns.
type DblBufState uint8

const (
	DblBufOff DblBufState = iota
	DblBuf0
	DblBuf1
)

// RadioConfig is the radio portion of the driver configuration.
type RadioConfig struct {
	// Channel selects the RF channel, 5 or 9.
	// Defaults to Channel5 if not provided.
	Channel Channel
	// STSMode configures the secure timestamp sequence.
	STSMode STSMode
	// STSLength is the STS length in blocks of 8 symbols.
	// Defaults to 8 (64 symbols) if not provided.
	STSLength uint16
	// ExtendedFrames enables the non-standard long (up to 1023 byte) PHR mode.
	ExtendedFrames bool
	// KeepBadFCS delivers frames whose FCS check failed instead of
	// discarding them. Zero-length frames then count as good receptions.
	KeepBadFCS bool
	// SPICRC selects the SPI transaction CRC protection mode.
	SPICRC SPICRCMode
	// TXAntennaDelay and RXAntennaDelay are the calibrated antenna delays
	// in device time units.
	TXAntennaDelay uint16
	RXAntennaDelay uint16
}

// HardwareConfig bundles the radio configuration with the hardware
// interfaces the driver needs.
type HardwareConfig struct {
	RadioConfig
	// IRQ is the interrupt request pin (active high).
	// Optional. If not provided the caller must poll ISR itself.
	IRQ Pin
	// Reset is the RSTn pin. Optional; without it a soft reset is used.
	Reset Pin
	// Wakeup is the WAKEUP pin used to exit sleep. Optional.
	Wakeup Pin
	// Delay is the time source used by calibration and reset sequencing.
	// Defaults to time.Sleep. Tests inject a no-op here.
	Delay func(time.Duration)
}

// CallbackData is the payload handed to event callbacks. It is only valid
// for the duration of the callback.
type CallbackData struct {
	// Dev is the device the event belongs to.
	Dev *Device
	// Status and StatusHi are the raw status words as reconciled by the
	// event pipeline (double-buffer bits folded in).
	Status   uint32
	StatusHi uint16
	// Length is the received frame length including FCS, RX events only.
	Length uint16
	// Ranging reports the ranging bit of the received PHY header.
	Ranging bool
	// SemaStatus carries the raw dual-SPI semaphore byte, semaphore
	// events only.
	SemaStatus uint8
}

// Callback is an event handler slot. Any slot may be left nil; the event
// pipeline still clears the corresponding status bits so an unconsumed
// event never stays latched.
//
// Callbacks run from the event pipeline with the device lock held. Do not
// call Device methods from inside a callback; hand the event off to
// another goroutine (a channel send is enough) and do the register work
// there.
type Callback func(*CallbackData)

// Callbacks holds the fixed set of event handler slots.
type Callbacks struct {
	TxDone    Callback
	RxOk      Callback
	RxError   Callback
	RxTimeout Callback
	SPIError  Callback
	SPIReady  Callback
	DualSPI   Callback
}

// chipOps is the per-variant operation table, chosen once at probe time.
type chipOps interface {
	String() string
	// match reports whether the dev-id register belongs to this variant.
	match(devID uint32) bool
	// dualSPI reports whether the variant has the second SPI host port
	// and its semaphore.
	dualSPI() bool
}

// Revision nibble is ignored when matching device ids.
const _devIDMask = 0xFFFFFFF0

type dw3000Ops struct{}

func (dw3000Ops) String() string          { return "DW3000" }
func (dw3000Ops) match(devID uint32) bool { return devID&_devIDMask == 0xDECA0300 }
func (dw3000Ops) dualSPI() bool           { return false }

type dw3720Ops struct{}

func (dw3720Ops) String() string          { return "DW3720" }
func (dw3720Ops) match(devID uint32) bool { return devID&_devIDMask == 0xDECA0310 }
func (dw3720Ops) dualSPI() bool           { return true }

var chipTable = []chipOps{dw3000Ops{}, dw3720Ops{}}

// localState is the mutable runtime state not mirrored directly by
// hardware registers. One instance per Device, owned by it for the chip's
// lifetime.
type localState struct {
	dblBuf     DblBufState
	channel    Channel
	spiCRC     SPICRCMode
	stsMode    STSMode
	stsLength  uint16
	stsThresh  int16 // derived quality threshold
	longFrames bool
	sleepMode  uint16 // accumulated on-wake actions (AON_DIG_CFG image)
	wakeCfg    uint8  // armed wake sources (AON_CFG image, sleep bit excluded)

	txAntDelay uint16
	rxAntDelay uint16

	// Hot-path caches, refreshed whenever the register is rewritten.
	sysCfg uint32

	// Factory calibration loaded from OTP at initialise.
	xtalTrim     uint8
	ldoTuneLo    uint32
	ldoTuneHi    uint32
	biasTune     uint16
	vBatRef      uint8
	tempRef      uint8
	pllCoarse    [2]uint32 // per channel: 0 = ch5, 1 = ch9
	dgcFromOTP   bool
	tempOverride int8      // calibration temperature override, 0 = use SAR
}

// Device is the handle for one physical DW3000/DW3720. It owns the
// transport reference, the local state and the registered callbacks.
type Device struct {
	cfg   HardwareConfig
	conn  SPI
	ops   chipOps
	delay func(time.Duration)

	// mu serialises public operations and doubles as the critical section
	// around interrupt-enable updates and forced transceiver-off.
	mu   sync.Mutex
	port io.Closer

	state localState
	cb    Callbacks

	// header(2) + payload + CRC(1)
	scratch [_maxTransaction + 3]byte
}

// NewWithHardware creates and initialises a driver with the provided
// hardware interfaces: reset, probe the device id, load the factory
// calibration from OTP and apply the radio configuration.
func NewWithHardware(c HardwareConfig, conn SPI) (*Device, error) {
	if c.Channel == 0 {
		c.Channel = Channel5
	}
	if c.Channel != Channel5 && c.Channel != Channel9 {
		return nil, fmt.Errorf("%w: channel must be 5 or 9", ErrPkg)
	}
	if c.STSLength == 0 {
		c.STSLength = 8
	}
	if c.Delay == nil {
		c.Delay = time.Sleep
	}

	d := &Device{
		cfg:   c,
		conn:  conn,
		delay: c.Delay,
	}

	globalLogger.Info("Resetting DW3000...")
	if err := d.reset(); err != nil {
		return nil, err
	}

	devID := d.read32(_DEV_ID, 0)
	for _, ops := range chipTable {
		if ops.match(devID) {
			d.ops = ops
			break
		}
	}
	if d.ops == nil {
		return nil, fmt.Errorf("%w: %w: read 0x%08X, check wiring/power", ErrPkg, ErrDevID, devID)
	}
	globalLogger.Info("Probed " + d.ops.String())

	// The chip limits the SPI clock until its clocks are confirmed up.
	if fr, ok := conn.(FastRater); ok {
		if err := fr.SetFastRate(); err != nil {
			return nil, fmt.Errorf("failed to raise SPI rate: %w", err)
		}
	}

	if err := d.initialise(); err != nil {
		return nil, err
	}
	if err := d.Configure(c.RadioConfig); err != nil {
		return nil, err
	}

	if c.IRQ != nil {
		if err := c.IRQ.In(PullDown); err != nil {
			return nil, fmt.Errorf("failed to configure IRQ pin: %w", err)
		}
		if err := c.IRQ.Watch(RisingEdge, d.ISR); err != nil {
			return nil, fmt.Errorf("failed to watch IRQ pin: %w", err)
		}
	}

	globalLogger.Info("DW3000 initialised and locked. Ready to operate.")
	return d, nil
}

// reset brings the chip to a clean INIT_RC state, via the RSTn pin when
// wired, a soft reset otherwise, then waits for the IDLE_RC entry.
func (d *Device) reset() error {
	if d.cfg.Reset != nil {
		// RSTn is open drain: drive low, then release to input.
		d.cfg.Reset.Out(Low)
		d.delay(time.Millisecond)
		d.cfg.Reset.In(PullNoChange)
		d.delay(2 * time.Millisecond)
	} else {
		d.softReset()
	}

	// Wait for the internal RC oscillator start-up; SPI is unreliable
	// before RCINIT/SPIRDY.
	for i := 0; i < 100; i++ {
		status := d.read32(_SYS_STATUS, 0)
		if status&(StatusRCINIT|StatusSPIRDY) != 0 {
			return nil
		}
		d.delay(time.Millisecond)
	}
	return fmt.Errorf("%w: %w: no SPI-ready after reset", ErrPkg, ErrTimeout)
}

// softReset resets all digital blocks through PMSC. The clock must be
// forced to the RC oscillator first or the reset strobe can be missed.
func (d *Device) softReset() {
	d.modify16(_CLK_CTRL, 0, ^_clkSysMask, _clkForceRC)
	d.write8(_SOFT_RST, 0, 0x00)
	d.delay(time.Millisecond)
	d.write8(_SOFT_RST, 0, 0x0F)
	d.state.dblBuf = DblBufOff
	d.state.sleepMode = 0
}

// initialise zeroes the local state and loads the factory calibration
// artifacts from OTP: LDO and bias trims, crystal trim, V/T SAR reference
// readings and the per-channel PLL coarse codes.
func (d *Device) initialise() error {
	d.state = localState{channel: 0, spiCRC: SPICRCModeOff}

	d.state.ldoTuneLo = d.otpRead(_otpAddrLDOTuneLo)
	d.state.ldoTuneHi = d.otpRead(_otpAddrLDOTuneHi)
	d.state.biasTune = uint16(d.otpRead(_otpAddrBiasTune) >> 16 & 0x1F)

	vbat := d.otpRead(_otpAddrVBat)
	vtemp := d.otpRead(_otpAddrVTemp)
	d.state.vBatRef = uint8(vbat)
	d.state.tempRef = uint8(vtemp)

	d.state.pllCoarse[0] = d.otpRead(_otpAddrPLLCh5)
	d.state.pllCoarse[1] = d.otpRead(_otpAddrPLLCh9)

	// Apply trims the hardware can kick in from OTP directly.
	var kick uint16
	if d.state.ldoTuneLo != 0 && d.state.ldoTuneHi != 0 {
		kick |= _otpCfgLDOKick
	}
	if d.state.biasTune != 0 {
		kick |= _otpCfgBIASKick
	}
	if kick != 0 {
		d.or16(_OTP_CFG, 0, kick)
	}

	xtal := uint8(d.otpRead(_otpAddrXtalTrim) & 0x7F)
	if xtal == 0 {
		xtal = 0x2E // mid-range when the OTP was never programmed
	}
	d.state.xtalTrim = xtal
	d.write8(_XTAL, 0, xtal)

	dgc := d.otpRead(_otpAddrDGCCh5)
	d.state.dgcFromOTP = dgc != 0

	return nil
}

// Close powers the chip down to DEEPSLEEP and releases the hardware
// interfaces.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.fastCommand(_CMD_TXRXOFF)
	d.write8(_AON_CFG, 0, _aonCfgSleepEn)
	d.write8(_AON_CTRL, 0, _aonCtrlSave)
	globalLogger.Info("DW3000 put to sleep.")

	if d.port != nil {
		if err := d.port.Close(); err != nil {
			globalLogger.Warn("Failed to close SPI port")
		}
	}
	if d.cfg.IRQ != nil {
		d.cfg.IRQ.Unwatch()
	}
	return nil
}

func (d *Device) String() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return fmt.Sprintf("%s(Channel=%d, STSMode=%d, DoubleBuffer=%v, SPICRC=%v)",
		d.ops.String(), d.state.channel, d.state.stsMode, d.state.dblBuf != DblBufOff, d.state.spiCRC != SPICRCModeOff)
}

// DevID reads the device identification register.
func (d *Device) DevID() uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.read32(_DEV_ID, 0)
}

// ReadStatus reads the low 32 bits of the system event status register
// without clearing anything. Useful for polled operation where no IRQ pin
// is wired.
func (d *Device) ReadStatus() uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.read32(_SYS_STATUS, 0)
}

// CheckDevID re-reads the device identification register and verifies it
// still matches the variant probed at startup. Useful as a cheap liveness
// check after wake or suspected bus trouble.
func (d *Device) CheckDevID() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	devID := d.read32(_DEV_ID, 0)
	if !d.ops.match(devID) {
		return fmt.Errorf("%w: %w: read 0x%08X", ErrPkg, ErrDevID, devID)
	}
	return nil
}

// SetCallbacks installs the event handler slots. Passing zero-value slots
// removes handlers; status clearing in the event pipeline is unaffected.
func (d *Device) SetCallbacks(cb Callbacks) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cb = cb
}

// SetSPICRCMode enables or disables CRC protection of SPI transactions.
// The chip-side generator is switched through SYS_CFG and the local mode
// drives CRC append/verify in the transaction layer.
func (d *Device) SetSPICRCMode(mode SPICRCMode) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if mode != SPICRCModeOff {
		// Order matters: enable the chip side first while transactions
		// are still unprotected.
		d.or32(_SYS_CFG, 0, _sysCfgSPICRCEN)
		d.state.sysCfg |= _sysCfgSPICRCEN
		d.state.spiCRC = mode
	} else {
		// Mirror image on disable: the chip still checks write CRCs until
		// the bit clears, so the disabling transaction must carry one.
		d.and32(_SYS_CFG, 0, ^_sysCfgSPICRCEN)
		d.state.spiCRC = mode
		d.state.sysCfg &^= _sysCfgSPICRCEN
	}
}

// InterruptOp selects how SetInterrupts combines the given bits with the
// current interrupt mask.
type InterruptOp uint8

const (
	// InterruptsEnable ORs the bits into the mask.
	InterruptsEnable InterruptOp = iota
	// InterruptsEnableOnly replaces the mask with exactly the given bits.
	InterruptsEnableOnly
	// InterruptsDisable clears the given bits.
	InterruptsDisable
)

// SetInterrupts updates the hardware interrupt enable mask. The update
// runs under the critical section so an interrupt firing mid-update
// cannot be lost.
func (d *Device) SetInterrupts(lo uint32, hi uint16, op InterruptOp) {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch op {
	case InterruptsEnable:
		d.or32(_SYS_ENABLE_LO, 0, lo)
		d.or16(_SYS_ENABLE_HI, 0, hi)
	case InterruptsEnableOnly:
		d.write32(_SYS_ENABLE_LO, 0, lo)
		d.write16(_SYS_ENABLE_HI, 0, hi)
	case InterruptsDisable:
		d.and32(_SYS_ENABLE_LO, 0, ^lo)
		d.and16(_SYS_ENABLE_HI, 0, ^hi)
	}
}

// WriteTXFrame loads data into the TX buffer and programs the frame
// control length and ranging flag. The frame goes on air at the next
// StartTX. Length includes the 2-byte FCS appended by the chip.
func (d *Device) WriteTXFrame(data []byte, ranging bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	limit := 125
	if d.state.longFrames {
		limit = 1021
	}
	if len(data) > limit {
		return fmt.Errorf("%w: frame too large (%d bytes), limit is %d", ErrPkg, len(data), limit)
	}

	d.writeReg(_TX_BUFFER, 0, data)
	fctrl := uint32(len(data)+2) & 0x3FF
	if ranging {
		fctrl |= 1 << 11
	}
	d.modify32(_TX_FCTRL, 0, ^uint32(0xBFF), fctrl)
	return nil
}

// ReadRXFrame copies n received bytes from the receive buffer the host
// currently owns into buf.
func (d *Device) ReadRXFrame(buf []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()

	reg := uint32(_RX_BUFFER_0)
	if d.state.dblBuf == DblBuf1 {
		reg = _RX_BUFFER_1
	}
	d.readReg(reg, 0, buf)
}

// ReadTXTimestamp returns the 40-bit transmit timestamp in device time
// units, adjusted by the chip for the programmed antenna delay.
func (d *Device) ReadTXTimestamp() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.readTimestamp(_TX_TIME)
}

// ReadRXTimestamp returns the 40-bit receive timestamp in device time units.
func (d *Device) ReadRXTimestamp() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.readTimestamp(_RX_TIME)
}

func (d *Device) readTimestamp(reg uint32) uint64 {
	var buf [5]byte
	d.readReg(reg, 0, buf[:])
	var ts uint64
	for i := 4; i >= 0; i-- {
		ts = ts<<8 | uint64(buf[i])
	}
	return ts
}

// SetDelayedTRXTime programs the delayed TX/RX start time. The value is
// the high 32 bits of the 40-bit device time at which the operation
// should begin.
func (d *Device) SetDelayedTRXTime(t uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.write32(_DX_TIME, 0, t)
}

// SetReferenceTime programs the reference time used by the
// delayed-relative-to-reference TX/RX variants.
func (d *Device) SetReferenceTime(t uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.write32(_DREF_TIME, 0, t)
}

// SetAntennaDelays stores the calibrated TX/RX antenna delays. The TX
// delay is also programmed into the chip so transmit timestamps come back
// corrected.
func (d *Device) SetAntennaDelays(tx, rx uint16) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state.txAntDelay = tx
	d.state.rxAntDelay = rx
	d.write16(_TX_ANTD, 0, tx)
}

// SetXTALTrim adjusts the crystal trim. Trim is a 7 bit value.
func (d *Device) SetXTALTrim(trim uint8) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state.xtalTrim = trim & 0x7F
	d.write8(_XTAL, 0, d.state.xtalTrim)
}

// XTALTrim returns the crystal trim currently applied.
func (d *Device) XTALTrim() uint8 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state.xtalTrim
}

// STSQuality reads the accumulated STS symbol count of the last reception
// and reports whether it clears the configured quality threshold. Only
// meaningful when an STS mode is active.
func (d *Device) STSQuality() (int16, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	acc := int16(d.read16(_STS_STS, 0) & 0x0FFF)
	return acc, acc >= d.state.stsThresh
}

// SetTempOverride pins the temperature used by the PLL calibration hot
// branch instead of sampling the SAR, in raw SAR units. Zero restores
// SAR sampling.
func (d *Device) SetTempOverride(raw int8) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state.tempOverride = raw
}

// ReadVTemp samples the on-chip SAR ADC and returns the raw voltage and
// temperature readings.
func (d *Device) ReadVTemp() (vbat, temp uint8) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.readVTemp()
}

func (d *Device) readVTemp() (vbat, temp uint8) {
	d.write8(_SAR_CTRL, 0, 0)
	d.write8(_SAR_CTRL, 0, 1)
	d.delay(100 * time.Microsecond)
	for i := 0; i < 10 && d.read8(_SAR_STATUS, 0)&0x01 == 0; i++ {
		d.delay(10 * time.Microsecond)
	}
	reading := d.read16(_SAR_READING, 0)
	d.write8(_SAR_CTRL, 0, 0)
	return uint8(reading), uint8(reading >> 8)
}

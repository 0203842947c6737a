package dw3000

import (
	"fmt"
	"time"
)

// ClockState is one of the addressable power/clock states. TX and RX are
// entered through fast commands and exit on their own; SLEEP is entered
// through the sleep controller.
type ClockState uint8

const (
	// StateInit forces the divided oscillator clock, used only when the
	// SPI rate has to be dropped before further negotiation.
	StateInit ClockState = iota
	// StateIdleRC runs from the internal RC oscillator, PLL off.
	StateIdleRC
	// StateIdlePLL is the PLL-clocked idle state, ready to TX/RX.
	StateIdlePLL
)

const (
	_pllLockRetries = 50
	_pllLockPoll    = 20 * time.Microsecond
)

// SetClockState drives the device between the addressable power/clock
// states. Requesting StateIdlePLL either succeeds with the lock bit set or
// returns ErrPLLLock with the chip left in IDLE_RC; retrying is the
// caller's decision.
func (d *Device) SetClockState(s ClockState) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.setClockState(s)
}

func (d *Device) setClockState(s ClockState) error {
	switch s {
	case StateIdlePLL:
		d.modify16(_CLK_CTRL, 0, ^_clkSysMask, _clkAuto)
		d.or32(_SEQ_CTRL, 0, _seqAINIT2IDLE)
		for i := 0; i < _pllLockRetries; i++ {
			if d.read32(_SYS_STATUS, 0)&StatusCPLOCK != 0 {
				return nil
			}
			d.delay(_pllLockPoll)
		}
		return fmt.Errorf("%w: %w", ErrPkg, ErrPLLLock)

	case StateIdleRC:
		d.modify16(_CLK_CTRL, 0, ^_clkSysMask, _clkForceRC)
		d.and32(_SEQ_CTRL, 0, ^_seqAINIT2IDLE)
		// FORCE2INIT is one-shot: leaving it asserted wedges the
		// sequencer, so de-assert immediately.
		d.or32(_SEQ_CTRL, 0, _seqFORCE2INIT)
		d.and32(_SEQ_CTRL, 0, ^_seqFORCE2INIT)
		d.modify16(_CLK_CTRL, 0, ^_clkSysMask, _clkAuto)
		return nil

	case StateInit:
		d.modify16(_CLK_CTRL, 0, ^_clkSysMask, _clkForceDiv)
		d.and32(_SEQ_CTRL, 0, ^_seqAINIT2IDLE)
		d.or32(_SEQ_CTRL, 0, _seqFORCE2INIT)
		d.and32(_SEQ_CTRL, 0, ^_seqFORCE2INIT)
		// The divided clock stays forced; that is the point of INIT.
		return nil
	}
	panic("dw3000: unknown clock state")
}

// ForceTRXOff aborts any transmission or reception in progress. Always
// safe to call; it is the cancellation primitive for delayed TX/RX.
func (d *Device) ForceTRXOff() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.forceTRXOff()
}

// forceTRXOff issues the TXRXOFF fast command unless the chip already
// reports an idle low-power state, in which case turning the transceiver
// off would stomp a state the sequencer is about to leave on its own.
func (d *Device) forceTRXOff() {
	st := d.read8(_SYS_STATE, 2)
	if st == _pmscStateWakeup || st == _pmscStateIdleRC {
		return
	}
	d.fastCommand(_CMD_TXRXOFF)
}

// Configure applies the radio configuration: STS, frame length mode, SPI
// CRC, DGC tuning, PGF calibration and the channel switch with its PLL
// relock. The chip ends in IDLE_PLL on success.
func (d *Device) Configure(cfg RadioConfig) error {
	if cfg.Channel == 0 {
		cfg.Channel = Channel5
	}
	if cfg.Channel != Channel5 && cfg.Channel != Channel9 {
		return fmt.Errorf("%w: channel must be 5 or 9", ErrPkg)
	}
	if cfg.STSLength == 0 {
		cfg.STSLength = 8
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.state.stsMode = cfg.STSMode
	d.state.stsLength = cfg.STSLength
	// Quality threshold: 90% of the configured STS symbol count.
	d.state.stsThresh = int16(uint32(cfg.STSLength) * 8 * 9 / 10)
	d.state.longFrames = cfg.ExtendedFrames
	d.state.txAntDelay = cfg.TXAntennaDelay
	d.state.rxAntDelay = cfg.RXAntennaDelay

	var sys uint32
	sys |= uint32(cfg.STSMode) << _sysCfgCPSPCShift
	if cfg.ExtendedFrames {
		sys |= _sysCfgPHRMode
	}
	if cfg.SPICRC != SPICRCModeOff {
		sys |= _sysCfgSPICRCEN
	}
	if cfg.KeepBadFCS {
		sys |= _sysCfgDisFCE
	}
	d.modify32(_SYS_CFG, 0, ^(_sysCfgCPSPC | _sysCfgPHRMode | _sysCfgSPICRCEN | _sysCfgDisFCE), sys)
	d.state.sysCfg = d.read32(_SYS_CFG, 0)
	d.state.spiCRC = cfg.SPICRC

	if cfg.STSMode != STSModeOff {
		d.write16(_STS_CFG, 0, cfg.STSLength-1)
	}
	if cfg.TXAntennaDelay != 0 {
		d.write16(_TX_ANTD, 0, cfg.TXAntennaDelay)
	}

	if err := d.setChannel(cfg.Channel); err != nil {
		return err
	}
	return d.runPGFCal()
}

// SetChannel switches to the other RF channel and re-locks the PLL. A
// no-op when the channel is already active.
func (d *Device) SetChannel(ch Channel) error {
	if ch != Channel5 && ch != Channel9 {
		return fmt.Errorf("%w: channel must be 5 or 9", ErrPkg)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if ch == d.state.channel {
		return nil
	}
	return d.setChannel(ch)
}

// setChannel rewrites the channel-specific analog trims from IDLE_RC and
// brings the PLL back up for the new channel: the fast path is the
// temperature-aware auto calibration, the fallback the generic
// AINIT2IDLE lock poll.
func (d *Device) setChannel(ch Channel) error {
	d.forceTRXOff()
	d.setClockState(StateIdleRC)

	var chanBit uint32
	if ch == Channel9 {
		chanBit = 1
	}
	d.modify32(_CHAN_CTRL, 0, ^uint32(1), chanBit)

	d.write8(_RF_TX_CTRL_1, 0, _rfTxCtrl1)
	if ch == Channel5 {
		d.write32(_RF_TX_CTRL_2, 0, _rfTxCtrl2Ch5)
		d.write16(_PLL_CFG, 0, _pllCfgCh5)
	} else {
		d.write32(_RF_TX_CTRL_2, 0, _rfTxCtrl2Ch9)
		d.write16(_PLL_CFG, 0, _pllCfgCh9)
	}
	d.loadDGC(ch)

	d.state.channel = ch

	if err := d.pllCalibrate(ch); err != nil {
		globalLogger.Warn("PLL auto-cal failed, falling back to lock poll")
		if err := d.setClockState(StateIdlePLL); err != nil {
			return err
		}
	}
	return nil
}

// loadDGC programs the receiver digital gain control for the channel,
// kicked from OTP when the factory wrote tuning data, from the hard-coded
// tables otherwise.
func (d *Device) loadDGC(ch Channel) {
	if d.state.dgcFromOTP {
		sel := uint16(0)
		if ch == Channel9 {
			sel = 1 << 5
		}
		d.modify16(_OTP_CFG, 0, ^uint16(1<<5), sel|_otpCfgDGCKick)
		return
	}
	lut := &_dgcLUTCh5
	if ch == Channel9 {
		lut = &_dgcLUTCh9
	}
	d.write16(_DGC_CFG, 0, _dgcCfg)
	d.write32(_DGC_CFG0, 0, _dgcCfg0)
	d.write32(_DGC_CFG1, 0, _dgcCfg1)
	for i, v := range lut {
		d.write32(_DGC_LUT0+uint32(i*4), 0, v)
	}
}

// TXMode selects the transmit start variant. Exactly one start variant
// may be combined with TXResponseExpected.
type TXMode uint8

const (
	// TXImmediate starts the transmission now.
	TXImmediate TXMode = 0x00
	// TXDelayed starts at the absolute time programmed via SetDelayedTRXTime.
	TXDelayed TXMode = 0x01
	// TXResponseExpected auto-enables the receiver after the transmission.
	TXResponseExpected TXMode = 0x02
	// TXDelayedRef starts relative to the programmed reference time.
	TXDelayedRef TXMode = 0x04
	// TXDelayedRS starts relative to the last RX timestamp.
	TXDelayedRS TXMode = 0x08
	// TXDelayedTS starts relative to the last TX timestamp.
	TXDelayedTS TXMode = 0x10
	// TXCCA transmits only if the channel is clear.
	TXCCA TXMode = 0x20
)

// StartTX begins a transmission of the frame previously loaded with
// WriteTXFrame. Delayed variants verify the half-period warning after the
// command and return ErrDelayedLate, with the transceiver forced off,
// when the requested time has already passed - an ambiguous late
// transmission is never allowed out.
func (d *Device) StartTX(mode TXMode) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	w4r := mode&TXResponseExpected != 0
	pick := func(plain, withResp byte) byte {
		if w4r {
			return withResp
		}
		return plain
	}

	var cmd byte
	delayed := true
	switch {
	case mode&TXDelayed != 0:
		cmd = pick(_CMD_DTX, _CMD_DTX_W4R)
	case mode&TXDelayedRef != 0:
		cmd = pick(_CMD_DTX_REF, _CMD_DTX_REF_W4R)
	case mode&TXDelayedRS != 0:
		d.subtractAntennaDelay()
		cmd = pick(_CMD_DTX_RS, _CMD_DTX_RS_W4R)
	case mode&TXDelayedTS != 0:
		d.subtractAntennaDelay()
		cmd = pick(_CMD_DTX_TS, _CMD_DTX_TS_W4R)
	case mode&TXCCA != 0:
		cmd = pick(_CMD_CCA_TX, _CMD_CCA_TX_W4R)
		delayed = false
	default:
		cmd = pick(_CMD_TX, _CMD_TX_W4R)
		delayed = false
	}

	d.fastCommand(cmd)

	if delayed && d.lateDelayedStart() {
		d.forceTRXOff()
		return fmt.Errorf("%w: TX %w", ErrPkg, ErrDelayedLate)
	}
	return nil
}

// subtractAntennaDelay corrects the programmed delay for the
// timestamp-relative start variants: the stored timestamp already
// includes the antenna delay, so leaving it in would double-count it.
func (d *Device) subtractAntennaDelay() {
	dx := d.read32(_DX_TIME, 0)
	d.write32(_DX_TIME, 0, dx-uint32(d.state.txAntDelay))
}

// lateDelayedStart re-reads the high status byte after a delayed-start
// command and reports whether the chip flagged the half period warning.
func (d *Device) lateDelayedStart() bool {
	hpd := d.read8(_SYS_STATUS, 3)
	return hpd&uint8(StatusHPDWARN>>24) != 0
}

// RXMode selects the receiver enable variant.
type RXMode uint8

const (
	// RXImmediate enables the receiver now.
	RXImmediate RXMode = 0x00
	// RXDelayed enables at the absolute time programmed via SetDelayedTRXTime.
	RXDelayed RXMode = 0x01
	// RXDelayedRef enables relative to the programmed reference time.
	RXDelayedRef RXMode = 0x04
	// RXDelayedRS enables relative to the last RX timestamp.
	RXDelayedRS RXMode = 0x08
	// RXDelayedTS enables relative to the last TX timestamp.
	RXDelayedTS RXMode = 0x10
	// RXIdleOnDelayError leaves the radio idle when the delayed start is
	// late; without it the receiver is enabled immediately instead.
	RXIdleOnDelayError RXMode = 0x40
)

// RXEnable turns the receiver on. For delayed variants that turn out to
// be late the behaviour depends on RXIdleOnDelayError: either the radio
// is left idle or reception starts immediately; both cases return
// ErrDelayedLate so the caller can tell the deadline was missed.
func (d *Device) RXEnable(mode RXMode) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var cmd byte
	delayed := true
	switch {
	case mode&RXDelayed != 0:
		cmd = _CMD_DRX
	case mode&RXDelayedRef != 0:
		cmd = _CMD_DRX_REF
	case mode&RXDelayedRS != 0:
		cmd = _CMD_DRX_RS
	case mode&RXDelayedTS != 0:
		cmd = _CMD_DRX_TS
	default:
		cmd = _CMD_RX
		delayed = false
	}

	d.fastCommand(cmd)

	if delayed && d.lateDelayedStart() {
		d.forceTRXOff()
		if mode&RXIdleOnDelayError == 0 {
			d.fastCommand(_CMD_RX)
		}
		return fmt.Errorf("%w: RX %w", ErrPkg, ErrDelayedLate)
	}
	return nil
}

// EnableDoubleBuffer switches double-buffered reception on or off. On
// enable the host owns buffer 0; ownership then toggles only through
// SignalRXBufferFree.
func (d *Device) EnableDoubleBuffer(enable bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if enable {
		d.and32(_SYS_CFG, 0, ^(_sysCfgDisDRXB | _sysCfgRXAUTR))
		d.write8(_RDB_DIAG, 0, 0)
		d.state.dblBuf = DblBuf0
	} else {
		d.or32(_SYS_CFG, 0, _sysCfgDisDRXB)
		d.state.dblBuf = DblBufOff
	}
	d.state.sysCfg = d.read32(_SYS_CFG, 0)
}

// SignalRXBufferFree hands the current receive buffer back to the chip
// and takes ownership of the other one. Toggling is driven only by this
// call, never inferred.
func (d *Device) SignalRXBufferFree() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.signalRXBufferFree()
}

func (d *Device) signalRXBufferFree() {
	if d.state.dblBuf == DblBufOff {
		return
	}
	d.fastCommand(_CMD_DB_TOGGLE)
	if d.state.dblBuf == DblBuf0 {
		d.state.dblBuf = DblBuf1
	} else {
		d.state.dblBuf = DblBuf0
	}
}

// ActiveRXBuffer reports which receive buffer the host currently owns.
func (d *Device) ActiveRXBuffer() DblBufState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state.dblBuf
}

package dw3000

import (
	"fmt"
	"time"
)

// Sleep/wake controller. Retention (AON) memory preserves only a subset
// of registers across SLEEP/DEEPSLEEP; what gets reloaded automatically
// on wake is programmed here, everything else must be put back with
// RestoreConfig before TX/RX resumes.

// OnWake selects which configuration is reloaded automatically on wake.
type OnWake uint16

const (
	// OnWakeRunSAR samples voltage/temperature right after wake.
	OnWakeRunSAR OnWake = 1 << 0
	// OnWakeLoadLDO reapplies the OTP LDO trims.
	OnWakeLoadLDO OnWake = 1 << 1
	// OnWakeLoadDGC reloads the receiver gain lookup tables.
	OnWakeLoadDGC OnWake = 1 << 2
	// OnWakeLoadBias reapplies the OTP bias trim.
	OnWakeLoadBias OnWake = 1 << 3
	// OnWakeGoToIdle sequences to IDLE_PLL after wake.
	OnWakeGoToIdle OnWake = 1 << 8
	// OnWakeGoToRX enables the receiver after wake.
	OnWakeGoToRX OnWake = 1 << 9
)

// WakeSource selects which events wake the chip from sleep.
type WakeSource uint8

const (
	// WakeSourceCS wakes on a SPI chip-select edge.
	WakeSourceCS WakeSource = 1 << 0
	// WakeSourcePin wakes on the dedicated WAKEUP pin.
	WakeSourcePin WakeSource = 1 << 1
	// WakeSourceCounter wakes when the sleep counter expires.
	WakeSourceCounter WakeSource = 1 << 2
	// WakeSourceCounterRepeat re-arms the counter automatically.
	WakeSourceCounterRepeat WakeSource = 1 << 3
)

// aonRead reads one byte of AON memory by address.
func (d *Device) aonRead(addr uint16) uint8 {
	d.write16(_AON_ADDR, 0, addr)
	d.write8(_AON_CTRL, 0, _aonCtrlDirectRd)
	v := d.read8(_AON_RDATA, 0)
	d.write8(_AON_CTRL, 0, 0)
	return v
}

// aonWrite writes one byte of AON memory by address.
func (d *Device) aonWrite(addr uint16, v uint8) {
	d.write16(_AON_ADDR, 0, addr)
	d.write8(_AON_WDATA, 0, v)
	d.write8(_AON_CTRL, 0, _aonCtrlDirectWr)
	d.write8(_AON_CTRL, 0, 0)
}

// ConfigureSleep accumulates the on-wake actions and arms the wake
// sources. The configuration only takes effect at EnterSleep.
func (d *Device) ConfigureSleep(onWake OnWake, src WakeSource) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.state.sleepMode |= uint16(onWake)

	var cfg uint8
	if src&WakeSourceCS != 0 {
		cfg |= _aonCfgWakeCS
	}
	if src&WakeSourcePin != 0 {
		cfg |= _aonCfgWakePin
	}
	if src&WakeSourceCounter != 0 {
		cfg |= _aonCfgWakeCnt
	}
	if src&WakeSourceCounterRepeat != 0 {
		cfg |= _aonCfgPresSlp
	}
	d.state.wakeCfg = cfg
}

// CalibrateSleepCounter measures the low-power oscillator against the
// crystal and returns the number of crystal cycles per low-power cycle.
// Needed once before counter-based wake so a desired wake interval can
// be translated into counter units.
func (d *Device) CalibrateSleepCounter() (uint16, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.write8(_AON_CFG, 0, _aonCfgLPOscCal)
	d.write8(_AON_CTRL, 0, _aonCtrlCfgUpload)
	d.delay(2 * time.Millisecond)

	lo := d.aonRead(_aonAddrCalResLo)
	hi := d.aonRead(_aonAddrCalResHi)

	d.write8(_AON_CFG, 0, 0)
	d.write8(_AON_CTRL, 0, _aonCtrlCfgUpload)

	cycles := uint16(hi)<<8 | uint16(lo)
	if cycles == 0 {
		return 0, fmt.Errorf("%w: %w: LP oscillator calibration returned zero", ErrPkg, ErrTimeout)
	}
	return cycles, nil
}

// SetSleepCounter programs the top 16 bits of the sleep counter that
// times counter-based wake.
func (d *Device) SetSleepCounter(count uint16) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.aonWrite(_aonAddrSleepCntLo, uint8(count))
	d.aonWrite(_aonAddrSleepCntHi, uint8(count>>8))
	d.write8(_AON_CTRL, 0, _aonCtrlCfgUpload)
}

// EnterSleep writes the armed configuration to retention memory and
// asserts sleep. The chip stops responding on SPI until a wake event.
func (d *Device) EnterSleep() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.write16(_AON_DIG_CFG, 0, d.state.sleepMode)
	d.write8(_AON_CFG, 0, d.state.wakeCfg|_aonCfgSleepEn)
	d.write8(_AON_CTRL, 0, _aonCtrlSave)
	globalLogger.Info("Entering sleep")
}

// Wakeup wakes the chip, through the WAKEUP pin when wired, by holding
// chip select low with a long dummy read otherwise, then waits for
// SPI-ready.
func (d *Device) Wakeup() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cfg.Wakeup != nil {
		d.cfg.Wakeup.Out(High)
		d.delay(500 * time.Microsecond)
		d.cfg.Wakeup.Out(Low)
	} else {
		// CS wake: any sufficiently long assertion works, the data is
		// irrelevant.
		var dummy [200]byte
		d.readReg(_DEV_ID, 0, dummy[:])
	}

	for i := 0; i < 100; i++ {
		if d.read32(_SYS_STATUS, 0)&(StatusSPIRDY|StatusRCINIT) != 0 {
			return nil
		}
		d.delay(100 * time.Microsecond)
	}
	return fmt.Errorf("%w: %w: no SPI-ready after wake", ErrPkg, ErrTimeout)
}

// RestoreConfig puts back the configuration retention memory does not
// cover: OTP trims, receiver gain tables and the bias default. Must run
// after wake, before TX/RX, unless the matching OnWake reload bits were
// armed.
func (d *Device) RestoreConfig() {
	d.mu.Lock()
	defer d.mu.Unlock()

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
	d.write8(_XTAL, 0, d.state.xtalTrim)
	d.loadDGC(d.state.channel)
	d.write8(_BIAS_CTRL, 0, _biasCtrlDefault)
}

package dw3000

import (
	"fmt"
	"time"
)

// Channel/PLL calibration. Two successive-approximation loops, one per
// channel, because the channels expose different comparator semantics in
// RF_STATUS: channel 5 uses a thermometer-coded coarse code with a 2-bit
// comparator pair, channel 9 a binary code with single-step moves.

const (
	_pllCalMaxSteps = 33
	_pllCalSettle   = 20 * time.Microsecond

	// Above this the channel 5 coarse code needs the hot-temperature
	// correction before the loop starts.
	_hotTempC = 45
)

// calibrationResult is the outcome of one PLL calibration attempt.
type calibrationResult struct {
	locked bool
	steps  int
}

// pllCalibrate runs the per-channel auto calibration. On success the
// system clock multiplexer is switched to the PLL output and all manual
// RF overrides used during the loop are cleared, so the caller has
// nothing to clean up. Returns ErrPLLLock when the step budget runs out
// or the factory calibration data is missing.
func (d *Device) pllCalibrate(ch Channel) error {
	var res calibrationResult
	var err error
	if ch == Channel5 {
		res, err = d.pllCalCh5()
	} else {
		res, err = d.pllCalCh9()
	}
	// The manual overrides must not leak into the fallback path either.
	d.write32(_RF_ENABLE, 0, 0)
	if err != nil {
		return err
	}

	// Lock achieved: clock from the PLL from here on and give sequencing
	// back to the hardware.
	d.modify16(_CLK_CTRL, 0, ^_clkSysMask, _clkForcePLL)
	d.write32(_RF_CTRL_MASK, 0, 0)
	d.write32(_LDO_CTRL, 0, 0)

	globalLogger.Debug(fmt.Sprintf("PLL locked via auto-cal in %d steps", res.steps))
	return nil
}

// pllCalCh5 tunes the thermometer-coded coarse code for channel 5. The
// comparator pair in RF_STATUS steers the search: cmp-high set means the
// code is too high (halve it), cmp-low clear means it is too low (double
// and fill), otherwise hold and wait for lock.
func (d *Device) pllCalCh5() (calibrationResult, error) {
	code := d.state.pllCoarse[0]
	if code == 0 {
		// Factory never programmed a coarse code; only the generic
		// lock poll can help.
		return calibrationResult{}, fmt.Errorf("%w: %w: no OTP coarse code", ErrPkg, ErrPLLLock)
	}

	if d.calTemperature() > _hotTempC {
		// Hot silicon pulls the VCO band down one thermometer step.
		code >>= 1
	}

	d.or32(_RF_ENABLE, 0, _rfEnPLL|_rfEnLDO|_rfEnPLLCal)
	d.write16(_PLL_CAL, 0, _pllCalEn)
	d.write32(_PLL_COARSE, 0, code)
	d.delay(_pllCalSettle)

	for step := 0; step < _pllCalMaxSteps; step++ {
		rf := d.read8(_RF_STATUS, 0)
		switch {
		case rf&_rfStatusCmpHi != 0:
			code >>= 1
		case rf&_rfStatusCmpLo == 0:
			code = code<<1 | 1
		}
		d.write32(_PLL_COARSE, 0, code)
		d.delay(_pllCalSettle)

		rf = d.read8(_RF_STATUS, 0)
		pll := d.read8(_PLL_STATUS, 0)
		if rf&_pllLockRFCh5 == _pllLockRFCh5 && pll == _pllStatusLockCh5 {
			return calibrationResult{locked: true, steps: step + 1}, nil
		}
	}
	return calibrationResult{steps: _pllCalMaxSteps}, fmt.Errorf("%w: channel 5 %w", ErrPkg, ErrPLLLock)
}

// pllCalCh9 tunes the binary coarse code for channel 9. Same loop shape
// as channel 5 but single-step moves, a different lock signature and a
// prerequisite analog setup: the calibration prebuffers must be enabled
// and ICAS/RCAS disabled for the comparator to read back sanely.
func (d *Device) pllCalCh9() (calibrationResult, error) {
	code := d.state.pllCoarse[1]
	if code == 0 {
		return calibrationResult{}, fmt.Errorf("%w: %w: no OTP coarse code", ErrPkg, ErrPLLLock)
	}

	d.or32(_RF_ENABLE, 0, _rfEnPLL|_rfEnLDO|_rfEnPLLCal|_rfEnCh9Pre|_rfEnICASOff|_rfEnRCASOff)
	d.write16(_PLL_CAL, 0, _pllCalEn)
	d.write32(_PLL_COARSE, 0, code)
	d.delay(_pllCalSettle)

	for step := 0; step < _pllCalMaxSteps; step++ {
		rf := d.read8(_RF_STATUS, 0)
		switch {
		case rf&_rfStatusCmpHi != 0:
			code--
		case rf&_rfStatusCmpLo == 0:
			code++
		}
		d.write32(_PLL_COARSE, 0, code)
		d.delay(_pllCalSettle)

		rf = d.read8(_RF_STATUS, 0)
		pll := d.read8(_PLL_STATUS, 0)
		if rf&_pllLockRFCh9 == _pllLockRFCh9 && pll == _pllStatusLockCh9 {
			return calibrationResult{locked: true, steps: step + 1}, nil
		}
	}
	return calibrationResult{steps: _pllCalMaxSteps}, fmt.Errorf("%w: channel 9 %w", ErrPkg, ErrPLLLock)
}

// calTemperature returns the die temperature in degrees C for the
// calibration hot branch, from the override when one is pinned, from the
// SAR otherwise.
func (d *Device) calTemperature() int {
	if d.state.tempOverride != 0 {
		return int(d.state.tempOverride)
	}
	_, raw := d.readVTemp()
	// SAR counts to degrees, referenced to the factory reading at 23C.
	return int(raw) - int(d.state.tempRef) + 23
}

const _pgfCalRetries = 3

// runPGFCal calibrates the programmable gain filter of the analog
// receiver front end. Bounded retries; a still-saturated I/Q result after
// the last attempt is reported as ErrPGFCal.
func (d *Device) runPGFCal() error {
	// COMP_DLY and LDO on manually for the duration of the cal.
	d.or32(_LDO_CTRL, 0, 0x105)

	var done bool
	for attempt := 0; attempt < _pgfCalRetries && !done; attempt++ {
		d.write16(_RX_CAL, 0, 0x11) // cal mode 1, enable
		for i := 0; i < 20; i++ {
			if d.read8(_RX_CAL_STS, 0)&0x01 != 0 {
				done = true
				break
			}
			d.delay(10 * time.Microsecond)
		}
		d.write8(_RX_CAL_STS, 0, 0x01) // write 1 to clear
		d.write16(_RX_CAL, 0, 0)
	}
	d.write32(_LDO_CTRL, 0, 0)

	if !done {
		return fmt.Errorf("%w: %w: no completion flag", ErrPkg, ErrPGFCal)
	}
	// 0x1FFFFFFF in a result register means the block saturated.
	if d.read32(_RX_CAL_RESI, 0) == 0x1FFFFFFF || d.read32(_RX_CAL_RESQ, 0) == 0x1FFFFFFF {
		return fmt.Errorf("%w: %w: I/Q saturated", ErrPkg, ErrPGFCal)
	}
	return nil
}

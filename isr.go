package dw3000

// Event pipeline. ISR is invoked once per interrupt assertion (or once
// per poll on platforms without the IRQ line wired). It reconciles the
// double-buffer status into the unified status word, classifies the event
// in a fixed priority order and clears only the bits belonging to the
// branch just handled - a blanket clear would drop a second real event
// arriving while the handler runs. Status registers are write-1-to-clear.

// ISR processes all pending hardware events and dispatches callbacks. It
// never returns an error; faults it detects are routed to callbacks,
// since in interrupt context there is nobody to hand a return value to.
func (d *Device) ISR() {
	d.mu.Lock()
	defer d.mu.Unlock()

	fstat := d.read8(_FINT_STAT, 0)
	status := d.read32(_SYS_STATUS, 0)
	var statusHi uint16
	if fstat&_fintSysPanic != 0 || d.ops.dualSPI() {
		statusHi = d.read16(_SYS_STATUS_HI, 0)
	}

	// Fold the double-buffer status for the buffer the host owns into
	// the unified view; classification below is written against the
	// unified word only.
	if d.state.dblBuf != DblBufOff {
		rdb := d.read8(_RDB_STATUS, 0)
		fcg, fr, cia, cperr := uint8(_rdbRXFCG0), uint8(_rdbRXFR0), uint8(_rdbCIADONE0), uint8(_rdbCPERR0)
		if d.state.dblBuf == DblBuf1 {
			fcg, fr, cia, cperr = _rdbRXFCG1, _rdbRXFR1, _rdbCIADONE1, _rdbCPERR1
		}
		if rdb&fcg != 0 {
			status |= StatusRXFCG
		}
		if rdb&fr != 0 {
			status |= StatusRXFR
		}
		if rdb&cia != 0 {
			status |= StatusCIADONE
		}
		if rdb&cperr != 0 {
			status |= StatusCPERR
		}
	}

	// Snapshot the frame decode before any clearing: clearing RX status
	// invalidates the length decode path in some buffer modes.
	finfo := d.read32(_RX_FINFO, 0)
	lenMask := _rxFInfoLenMaskStd
	if d.state.longFrames {
		lenMask = _rxFInfoLenMaskExt
	}
	frameLen := uint16(finfo & lenMask)
	ranging := finfo&_rxFInfoRNG != 0

	// System panic group: transport and configuration faults.
	if status&_statusPanicLo != 0 || statusHi&_statusHiPanic != 0 {
		if status&StatusSPICRCE != 0 || statusHi&_statusHiSPIFault != 0 {
			d.write32(_SYS_STATUS, 0, status&StatusSPICRCE)
			d.write16(_SYS_STATUS_HI, 0, statusHi&_statusHiSPIFault)
			if d.cb.SPIError != nil {
				d.cb.SPIError(&CallbackData{Dev: d, Status: status, StatusHi: statusHi})
			}
		}
		if statusHi&StatusHiCMDERR != 0 {
			// No callback wired for command errors currently.
			d.write16(_SYS_STATUS_HI, 0, StatusHiCMDERR)
			globalLogger.Warn("fast command error")
		}
		if statusHi&StatusHiAESERR != 0 {
			d.write16(_SYS_STATUS_HI, 0, StatusHiAESERR)
			globalLogger.Warn("AES engine error")
		}
		if status&(StatusVWARN|StatusPLLHILO) != 0 {
			d.write32(_SYS_STATUS, 0, status&(StatusVWARN|StatusPLLHILO))
			globalLogger.Warn("brown-out/PLL warning")
		}
	}

	// TX complete. The receiver bias differs from the transmitter bias
	// and must be restored before any auto-enabled RX that follows.
	if status&StatusTXFRS != 0 {
		d.write8(_BIAS_CTRL, 0, _biasCtrlDefault)
		d.write32(_SYS_STATUS, 0, _statusAllTX)
		if d.cb.TxDone != nil {
			d.cb.TxDone(&CallbackData{Dev: d, Status: status, StatusHi: statusHi})
		}
	}

	// SPI ready after power-on or wake. Callback before clear: the
	// handler may need to read status before it is gone.
	if status&(StatusSPIRDY|StatusRCINIT) != 0 {
		if d.cb.SPIReady != nil {
			d.cb.SPIReady(&CallbackData{Dev: d, Status: status, StatusHi: statusHi})
		}
		d.write32(_SYS_STATUS, 0, status&(StatusSPIRDY|StatusRCINIT))
	}

	// Receive groups, mutually exclusive per invocation.
	switch {
	case status&StatusRXFCG != 0 ||
		(status&StatusRXFR != 0 && status&StatusRXFCE != 0 && d.state.sysCfg&_sysCfgDisFCE != 0):
		// Good frame - including the FCS-error-because-no-payload case,
		// which is valid when FCS enforcement is disabled for
		// zero-length frames.
		data := CallbackData{Dev: d, Status: status, StatusHi: statusHi, Length: frameLen, Ranging: ranging}
		clearLo := _statusAllRXGood | status&(StatusCIAERR|StatusCPERR|StatusRXFCE)
		d.write32(_SYS_STATUS, 0, clearLo)
		d.clearDblBufStatus()

		if frameLen == 0 && d.state.stsMode != STSModeND && status&StatusRXFCE == 0 {
			// The chip can misreport a corrupted PHY header as a
			// zero-length good frame; reinterpret it as a header error.
			data.Status |= StatusRXPHE
			data.Status &^= StatusRXFCG | StatusRXPHD
			if d.cb.RxError != nil {
				d.cb.RxError(&data)
			}
		} else if d.cb.RxOk != nil {
			d.cb.RxOk(&data)
		}
		if d.state.dblBuf != DblBufOff {
			d.signalRXBufferFree()
		}

	case status&_statusAllRXErr != 0:
		d.write32(_SYS_STATUS, 0, status&_statusAllRXErr|StatusCIADONE|StatusRXFR)
		d.clearDblBufStatus()
		if d.cb.RxError != nil {
			d.cb.RxError(&CallbackData{Dev: d, Status: status, StatusHi: statusHi, Length: frameLen, Ranging: ranging})
		}

	case status&_statusAllRXTO != 0:
		d.write32(_SYS_STATUS, 0, status&_statusAllRXTO)
		if d.cb.RxTimeout != nil {
			d.cb.RxTimeout(&CallbackData{Dev: d, Status: status, StatusHi: statusHi})
		}
	}

	// Dual-SPI semaphore handed over by the other host.
	if statusHi&StatusHiSEMAVAIL != 0 {
		d.write16(_SYS_STATUS_HI, 0, StatusHiSEMAVAIL)
		sema := d.read8(_SPI_SEM, 0)
		if d.cb.DualSPI != nil {
			d.cb.DualSPI(&CallbackData{Dev: d, Status: status, StatusHi: statusHi, SemaStatus: sema})
		}
	}
}

// clearDblBufStatus clears the status nibble of the buffer the host owns.
func (d *Device) clearDblBufStatus() {
	switch d.state.dblBuf {
	case DblBuf0:
		d.write8(_RDB_STATUS, 0, _rdbRXFCG0|_rdbRXFR0|_rdbCIADONE0|_rdbCPERR0)
	case DblBuf1:
		d.write8(_RDB_STATUS, 0, _rdbRXFCG1|_rdbRXFR1|_rdbCIADONE1|_rdbCPERR1)
	}
}

// RequestSemaphore asks the chip for the dual-SPI semaphore. DW3720 only;
// a no-op on single-port parts.
func (d *Device) RequestSemaphore() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.ops.dualSPI() {
		globalLogger.Warn("semaphore request on single-SPI part")
		return
	}
	d.write8(_SPI_SEM, 0, 0x01)
}

// ReleaseSemaphore hands the dual-SPI semaphore back.
func (d *Device) ReleaseSemaphore() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.ops.dualSPI() {
		return
	}
	d.write8(_SPI_SEM, 0, 0x02)
}

// SemaphoreStatus returns the raw dual-SPI semaphore byte.
func (d *Device) SemaphoreStatus() uint8 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.read8(_SPI_SEM, 0)
}

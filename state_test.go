package dw3000

import (
	"bytes"
	"errors"
	"testing"
	"time"
)

func TestSetClockStateIdlePLL(t *testing.T) {
	m := newMockSPI()
	d := newTestDevice(m)
	m.set32(_SYS_STATUS, StatusCPLOCK)

	if err := d.SetClockState(StateIdlePLL); err != nil {
		t.Fatalf("IDLE_PLL transition failed: %v", err)
	}

	// Clock back to auto, then AINIT2IDLE set via OR-modify.
	if !bytes.Contains(m.tx, []byte{0xC4, 0x12, 0xFC, 0xFF, 0x00, 0x00}) {
		t.Errorf("clock not set to auto: %X", m.tx)
	}
	if !bytes.Contains(m.tx, []byte{0xC4, 0x23, 0xFF, 0xFF, 0xFF, 0xFF, 0x00, 0x01, 0x00, 0x00}) {
		t.Errorf("AINIT2IDLE not set: %X", m.tx)
	}
}

func TestSetClockStateIdlePLLLockFailure(t *testing.T) {
	m := newMockSPI()
	d := newTestDevice(m)
	// CPLOCK never comes up.
	m.set32(_SYS_STATUS, 0)

	err := d.SetClockState(StateIdlePLL)
	if !errors.Is(err, ErrPLLLock) {
		t.Fatalf("expected ErrPLLLock, got %v", err)
	}
}

func TestSetClockStateIdleRC(t *testing.T) {
	m := newMockSPI()
	d := newTestDevice(m)

	if err := d.SetClockState(StateIdleRC); err != nil {
		t.Fatalf("IDLE_RC transition failed: %v", err)
	}

	// FORCE2INIT is one-shot: assert then de-assert, in that order.
	assert := []byte{0xC4, 0x23, 0xFF, 0xFF, 0xFF, 0xFF, 0x00, 0x00, 0x80, 0x00}
	deassert := []byte{0xC4, 0x23, 0xFF, 0xFF, 0x7F, 0xFF, 0x00, 0x00, 0x00, 0x00}
	ai := bytes.Index(m.tx, assert)
	di := bytes.Index(m.tx, deassert)
	if ai < 0 || di < 0 || di < ai {
		t.Errorf("FORCE2INIT assert/de-assert sequence wrong (assert at %d, deassert at %d): %X", ai, di, m.tx)
	}
	// Clock handed back to the sequencer at the end.
	if !bytes.Contains(m.tx[di:], []byte{0xC4, 0x12, 0xFC, 0xFF, 0x00, 0x00}) {
		t.Errorf("clock not restored to auto after FORCE2INIT: %X", m.tx)
	}
}

func TestForceTRXOff(t *testing.T) {
	m := newMockSPI()
	d := newTestDevice(m)

	// Active RX: the off command must be issued.
	m.setReg(_SYS_STATE+2, _pmscStateRX)
	d.ForceTRXOff()
	if len(m.fast) != 1 || m.fast[0] != _CMD_TXRXOFF {
		t.Errorf("TXRXOFF not issued from RX state, fast commands: %X", m.fast)
	}

	// Already in IDLE_RC: forcing off would disturb the sequencer.
	m.fast = nil
	m.setReg(_SYS_STATE+2, _pmscStateIdleRC)
	d.ForceTRXOff()
	if len(m.fast) != 0 {
		t.Errorf("TXRXOFF issued from IDLE_RC: %X", m.fast)
	}
}

func TestStartTXImmediate(t *testing.T) {
	m := newMockSPI()
	d := newTestDevice(m)

	if err := d.StartTX(TXImmediate); err != nil {
		t.Fatalf("StartTX failed: %v", err)
	}
	if len(m.fast) != 1 || m.fast[0] != _CMD_TX {
		t.Errorf("fast commands: %X", m.fast)
	}

	m.fast = nil
	if err := d.StartTX(TXImmediate | TXResponseExpected); err != nil {
		t.Fatalf("StartTX W4R failed: %v", err)
	}
	if len(m.fast) != 1 || m.fast[0] != _CMD_TX_W4R {
		t.Errorf("fast commands: %X", m.fast)
	}
}

func TestStartTXDelayedLate(t *testing.T) {
	m := newMockSPI()
	d := newTestDevice(m)

	// HPDWARN set: the programmed time has already passed.
	m.setReg(_SYS_STATUS+3, byte(StatusHPDWARN>>24))
	m.setReg(_SYS_STATE+2, _pmscStateTX)

	err := d.StartTX(TXDelayed)
	if !errors.Is(err, ErrDelayedLate) {
		t.Fatalf("expected ErrDelayedLate, got %v", err)
	}
	// The late transmission must have been aborted.
	want := []byte{_CMD_DTX, _CMD_TXRXOFF}
	if !bytes.Equal(m.fast, want) {
		t.Errorf("fast commands: %X, want %X", m.fast, want)
	}
}

func TestStartTXDelayedOnTime(t *testing.T) {
	m := newMockSPI()
	d := newTestDevice(m)
	m.setReg(_SYS_STATUS+3, 0)

	if err := d.StartTX(TXDelayed); err != nil {
		t.Fatalf("StartTX failed: %v", err)
	}
	if len(m.fast) != 1 || m.fast[0] != _CMD_DTX {
		t.Errorf("fast commands: %X", m.fast)
	}
}

func TestStartTXTimestampRelativeAntennaDelay(t *testing.T) {
	m := newMockSPI()
	d := newTestDevice(m)
	d.state.txAntDelay = 0x4015
	m.set32(_DX_TIME, 0x10000)
	m.setReg(_SYS_STATUS+3, 0)

	if err := d.StartTX(TXDelayedRS); err != nil {
		t.Fatalf("StartTX failed: %v", err)
	}
	// DX_TIME rewritten with the antenna delay subtracted, before the
	// start command goes out. DX_TIME is file 0x00 offset 0x2C.
	corrected := uint32(0x10000 - 0x4015)
	if !bytes.Contains(m.tx, []byte{0x80, 0xB0, byte(corrected), byte(corrected >> 8), byte(corrected >> 16), byte(corrected >> 24)}) {
		t.Errorf("antenna delay not subtracted from DX_TIME: %X", m.tx)
	}
	if len(m.fast) != 1 || m.fast[0] != _CMD_DTX_RS {
		t.Errorf("fast commands: %X", m.fast)
	}
}

func TestRXEnableLate(t *testing.T) {
	m := newMockSPI()
	d := newTestDevice(m)
	m.setReg(_SYS_STATUS+3, byte(StatusHPDWARN>>24))
	m.setReg(_SYS_STATE+2, _pmscStateRX)

	// Without RXIdleOnDelayError the receiver comes up immediately
	// instead, but the caller is still told the deadline was missed.
	err := d.RXEnable(RXDelayed)
	if !errors.Is(err, ErrDelayedLate) {
		t.Fatalf("expected ErrDelayedLate, got %v", err)
	}
	want := []byte{_CMD_DRX, _CMD_TXRXOFF, _CMD_RX}
	if !bytes.Equal(m.fast, want) {
		t.Errorf("fast commands: %X, want %X", m.fast, want)
	}

	// With RXIdleOnDelayError the radio stays idle.
	m.fast = nil
	err = d.RXEnable(RXDelayed | RXIdleOnDelayError)
	if !errors.Is(err, ErrDelayedLate) {
		t.Fatalf("expected ErrDelayedLate, got %v", err)
	}
	want = []byte{_CMD_DRX, _CMD_TXRXOFF}
	if !bytes.Equal(m.fast, want) {
		t.Errorf("fast commands: %X, want %X", m.fast, want)
	}
}

func TestSetChannelNoop(t *testing.T) {
	m := newMockSPI()
	d := newTestDevice(m)
	d.state.channel = Channel5

	if err := d.SetChannel(Channel5); err != nil {
		t.Fatalf("SetChannel failed: %v", err)
	}
	if len(m.tx) != 0 {
		t.Errorf("no-op channel switch touched the bus: %X", m.tx)
	}

	if err := d.SetChannel(Channel(7)); err == nil {
		t.Error("expected error for invalid channel")
	}
}

func TestSetChannelSwitch(t *testing.T) {
	m := newMockSPI()
	d := newTestDevice(m)
	d.state.channel = Channel5
	d.state.pllCoarse[1] = 0x10
	// Lock immediately: comparator holds, lock signature present.
	m.setReg(_RF_STATUS, _pllLockRFCh9|_rfStatusCmpLo)
	m.setReg(_PLL_STATUS, _pllStatusLockCh9)

	if err := d.SetChannel(Channel9); err != nil {
		t.Fatalf("SetChannel(9) failed: %v", err)
	}
	if d.state.channel != Channel9 {
		t.Errorf("channel state = %v", d.state.channel)
	}
	// Channel bit set in CHAN_CTRL (file 0x01 offset 0x14).
	if !bytes.Contains(m.tx, []byte{0x84, 0x53, 0xFE, 0xFF, 0xFF, 0xFF, 0x01, 0x00, 0x00, 0x00}) {
		t.Errorf("CHAN_CTRL not updated: %X", m.tx)
	}
	// Channel 9 PLL configuration written (offset 0, short header).
	pllCfg := _pllCfgCh9
	if !bytes.Contains(m.tx, []byte{0xA4, byte(pllCfg), byte(pllCfg >> 8)}) {
		t.Errorf("PLL_CFG for channel 9 not written: %X", m.tx)
	}
}

func TestConfigureKeepBadFCS(t *testing.T) {
	m := probeMock(0xDECA0302)
	_, err := NewWithHardware(HardwareConfig{
		RadioConfig: RadioConfig{KeepBadFCS: true},
		Delay:       func(time.Duration) {},
	}, m)
	if err != nil {
		t.Fatalf("NewWithHardware failed: %v", err)
	}

	// SYS_CFG modify carries the FCS-error acceptance bit in the OR word
	// and clears it in the AND mask.
	if !bytes.Contains(m.tx, []byte{0x80, 0x43, 0xCF, 0xCF, 0xFB, 0xFF, 0x10, 0x00, 0x00, 0x00}) {
		t.Errorf("SYS_CFG modify missing the FCS-error acceptance bit: %X", m.tx)
	}
}

func TestDoubleBufferToggle(t *testing.T) {
	m := newMockSPI()
	d := newTestDevice(m)

	d.EnableDoubleBuffer(true)
	if d.ActiveRXBuffer() != DblBuf0 {
		t.Fatalf("active buffer after enable = %v", d.ActiveRXBuffer())
	}

	d.SignalRXBufferFree()
	if d.ActiveRXBuffer() != DblBuf1 {
		t.Errorf("active buffer after first toggle = %v", d.ActiveRXBuffer())
	}
	d.SignalRXBufferFree()
	if d.ActiveRXBuffer() != DblBuf0 {
		t.Errorf("active buffer after second toggle = %v", d.ActiveRXBuffer())
	}
	want := []byte{_CMD_DB_TOGGLE, _CMD_DB_TOGGLE}
	if !bytes.Equal(m.fast, want) {
		t.Errorf("fast commands: %X, want %X", m.fast, want)
	}

	d.EnableDoubleBuffer(false)
	m.fast = nil
	d.SignalRXBufferFree()
	if len(m.fast) != 0 {
		t.Errorf("toggle issued with double buffering off: %X", m.fast)
	}
}

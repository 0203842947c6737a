package dw3000

import (
	"bytes"
	"errors"
	"testing"
	"time"
)

// probeMock returns a mock preloaded with everything the constructor
// needs to get through reset, probe, OTP load and configuration.
func probeMock(devID uint32) *mockSPI {
	m := newMockSPI()
	m.set32(_DEV_ID, devID)
	// RCINIT satisfies the reset wait, CPLOCK the IDLE_PLL fallback poll.
	m.set32(_SYS_STATUS, StatusRCINIT|StatusCPLOCK)
	// PGF calibration completion flag.
	m.setReg(_RX_CAL_STS, 0x01)
	return m
}

func TestProbe(t *testing.T) {
	m := probeMock(0xDECA0302)
	dev, err := NewWithHardware(HardwareConfig{Delay: func(time.Duration) {}}, m)
	if err != nil {
		t.Fatalf("NewWithHardware failed: %v", err)
	}

	if dev.ops.String() != "DW3000" {
		t.Errorf("probed %s, want DW3000", dev.ops.String())
	}
	if dev.ops.dualSPI() {
		t.Error("DW3000 must not report dual SPI")
	}
	if got := dev.DevID(); got != 0xDECA0302 {
		t.Errorf("DevID() = 0x%08X", got)
	}

	// Default crystal trim applied when the OTP word is blank.
	// XTAL is file 0x09 offset 0x14.
	if !bytes.Contains(m.tx, []byte{0xA4, 0x50, 0x2E}) {
		t.Errorf("default XTAL trim not written, TX trace: %X", m.tx)
	}
}

func TestProbeRevisionIgnored(t *testing.T) {
	// Same parts with a different silicon revision nibble must still match.
	m := probeMock(0xDECA0303)
	dev, err := NewWithHardware(HardwareConfig{Delay: func(time.Duration) {}}, m)
	if err != nil {
		t.Fatalf("NewWithHardware failed: %v", err)
	}
	if dev.ops.String() != "DW3000" {
		t.Errorf("probed %s, want DW3000", dev.ops.String())
	}

	m = probeMock(0xDECA0314)
	dev, err = NewWithHardware(HardwareConfig{Delay: func(time.Duration) {}}, m)
	if err != nil {
		t.Fatalf("NewWithHardware failed: %v", err)
	}
	if dev.ops.String() != "DW3720" {
		t.Errorf("probed %s, want DW3720", dev.ops.String())
	}
	if !dev.ops.dualSPI() {
		t.Error("DW3720 must report dual SPI")
	}
}

func TestProbeUnknownDevice(t *testing.T) {
	m := probeMock(0x11223344)
	_, err := NewWithHardware(HardwareConfig{Delay: func(time.Duration) {}}, m)
	if !errors.Is(err, ErrDevID) {
		t.Fatalf("expected ErrDevID, got %v", err)
	}
}

func TestProbeRaisesSPIRate(t *testing.T) {
	m := &mockFastSPI{mockSPI: *probeMock(0xDECA0302)}
	_, err := NewWithHardware(HardwareConfig{Delay: func(time.Duration) {}}, m)
	if err != nil {
		t.Fatalf("NewWithHardware failed: %v", err)
	}
	if m.fastCalls != 1 {
		t.Errorf("SetFastRate called %d times, want 1", m.fastCalls)
	}
}

func TestWriteTXFrame(t *testing.T) {
	m := newMockSPI()
	d := newTestDevice(m)

	if err := d.WriteTXFrame([]byte("ping"), true); err != nil {
		t.Fatalf("WriteTXFrame failed: %v", err)
	}

	// Payload into the TX buffer (file 0x14, short write form).
	if !bytes.Contains(m.tx, []byte{0xD0, 'p', 'i', 'n', 'g'}) {
		t.Errorf("payload not written to TX buffer: %X", m.tx)
	}
	// Frame control: length 4+2 FCS, ranging bit 11 set.
	fctrl := uint32(6) | 1<<11
	if !bytes.Contains(m.tx, []byte{0x80, 0x93, 0x00, 0xF4, 0xFF, 0xFF, byte(fctrl), byte(fctrl >> 8), 0x00, 0x00}) {
		t.Errorf("TX_FCTRL modify not found: %X", m.tx)
	}
}

func TestWriteTXFrameLimits(t *testing.T) {
	m := newMockSPI()
	d := newTestDevice(m)

	if err := d.WriteTXFrame(make([]byte, 126), false); err == nil {
		t.Error("expected error for 126-byte frame in standard mode")
	}
	if err := d.WriteTXFrame(make([]byte, 125), false); err != nil {
		t.Errorf("125-byte frame rejected: %v", err)
	}

	d.state.longFrames = true
	if err := d.WriteTXFrame(make([]byte, 1021), false); err != nil {
		t.Errorf("1021-byte extended frame rejected: %v", err)
	}
	if err := d.WriteTXFrame(make([]byte, 1022), false); err == nil {
		t.Error("expected error for 1022-byte frame in extended mode")
	}
}

func TestReadTimestamps(t *testing.T) {
	m := newMockSPI()
	d := newTestDevice(m)

	m.setReg(_TX_TIME, 0x01, 0x02, 0x03, 0x04, 0x05)
	if ts := d.ReadTXTimestamp(); ts != 0x0504030201 {
		t.Errorf("TX timestamp = 0x%010X", ts)
	}

	m.setReg(_RX_TIME, 0xFF, 0x00, 0x00, 0x00, 0x80)
	if ts := d.ReadRXTimestamp(); ts != 0x80000000FF {
		t.Errorf("RX timestamp = 0x%010X", ts)
	}
}

func TestSetSPICRCModeOrdering(t *testing.T) {
	m := newMockSPI()
	d := newTestDevice(m)

	// On enable the chip-side generator must be switched on while the
	// transaction layer still sends unprotected frames, so the enabling
	// transaction itself carries no CRC.
	d.SetSPICRCMode(SPICRCModeWrite)
	crcEN := _sysCfgSPICRCEN
	enable := []byte{0x80, 0x43, 0xFF, 0xFF, 0xFF, 0xFF}
	enable = append(enable, byte(crcEN), byte(crcEN>>8), byte(crcEN>>16), byte(crcEN>>24))
	if !bytes.Equal(m.tx, enable) {
		t.Errorf("enable transaction: got %X, want %X", m.tx, enable)
	}
	if d.state.spiCRC != SPICRCModeWrite {
		t.Error("local CRC mode not updated")
	}

	// Subsequent writes carry the CRC.
	m.tx = nil
	d.write8(_XTAL, 0, 0x2E)
	body := []byte{0xA4, 0x50, 0x2E}
	want := append(append([]byte(nil), body...), crc8(0, body))
	if !bytes.Equal(m.tx, want) {
		t.Errorf("protected write: got %X, want %X", m.tx, want)
	}

	// Disable flips the local mode first so the disabling transaction is
	// still protected.
	m.tx = nil
	d.SetSPICRCMode(SPICRCModeOff)
	if m.tx[len(m.tx)-1] != crc8(0, m.tx[:len(m.tx)-1]) {
		t.Errorf("disable transaction lost its CRC: %X", m.tx)
	}
}

func TestSetInterrupts(t *testing.T) {
	m := newMockSPI()
	d := newTestDevice(m)

	d.SetInterrupts(StatusRXFCG, 0, InterruptsEnableOnly)
	// SYS_ENABLE_LO is file 0x00 offset 0x3C: plain write, exact value.
	if !bytes.Contains(m.tx, []byte{0x80, 0xF0, 0x00, 0x40, 0x00, 0x00}) {
		t.Errorf("enable-only write not found: %X", m.tx)
	}

	m.tx = nil
	d.SetInterrupts(StatusTXFRS, 0, InterruptsEnable)
	// OR-modify, mask all ones.
	if !bytes.Contains(m.tx, []byte{0x80, 0xF3, 0xFF, 0xFF, 0xFF, 0xFF, 0x80, 0x00, 0x00, 0x00}) {
		t.Errorf("enable OR-modify not found: %X", m.tx)
	}

	m.tx = nil
	d.SetInterrupts(StatusTXFRS, 0, InterruptsDisable)
	// AND-modify with the complement.
	if !bytes.Contains(m.tx, []byte{0x80, 0xF3, 0x7F, 0xFF, 0xFF, 0xFF, 0x00, 0x00, 0x00, 0x00}) {
		t.Errorf("disable AND-modify not found: %X", m.tx)
	}
}

func TestReadOTP(t *testing.T) {
	m := newMockSPI()
	d := newTestDevice(m)
	m.set32(_OTP_RDATA, 0xCAFEBABE)

	if v := d.ReadOTP(_otpAddrXtalTrim); v != 0xCAFEBABE {
		t.Errorf("ReadOTP = 0x%08X", v)
	}
	// Address write then manual read strobe.
	if !bytes.Contains(m.tx, []byte{0xAC, 0x10, _otpAddrXtalTrim, 0x00}) {
		t.Errorf("OTP address not written: %X", m.tx)
	}
	if !bytes.Contains(m.tx, []byte{0xAC, 0x20, byte(_otpCfgReadEn), 0x00}) {
		t.Errorf("OTP read strobe not written: %X", m.tx)
	}
}

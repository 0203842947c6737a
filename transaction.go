package dw3000

// transaction.go contains the low level framing for the DW3000 SPI
// interface: every register access turns into exactly one transaction of
// header bytes (1 or 2) followed by the payload, optionally protected by
// an 8-bit CRC.

// spiMode selects how the chip interprets the transaction payload.
type spiMode uint8

const (
	_modeRead spiMode = iota
	_modeWrite
	_modeAndOr8  // payload is 1 byte AND mask, 1 byte OR mask
	_modeAndOr16 // 2+2
	_modeAndOr32 // 4+4
)

// Largest payload the chip accepts in one transaction (TX buffer size).
const _maxTransaction = 1024

// SPICRCMode controls the optional CRC protection of SPI transactions.
type SPICRCMode uint8

const (
	// SPICRCModeOff disables SPI CRC.
	SPICRCModeOff SPICRCMode = iota
	// SPICRCModeWrite appends a CRC-8 to every write transaction.
	SPICRCModeWrite
	// SPICRCModeReadWrite additionally verifies reads against the
	// hardware-computed CRC register.
	SPICRCModeReadWrite
)

// CRC-8, polynomial x^8 + x^2 + x + 1 (0x07), matching the engine in the
// chip. Table generated once at startup.
var crc8Table [256]byte

func init() {
	const poly = 0x07
	for i := range crc8Table {
		crc := byte(i)
		for b := 0; b < 8; b++ {
			if crc&0x80 != 0 {
				crc = crc<<1 ^ poly
			} else {
				crc <<= 1
			}
		}
		crc8Table[i] = crc
	}
}

func crc8(seed byte, data []byte) byte {
	crc := seed
	for _, b := range data {
		crc = crc8Table[crc^b]
	}
	return crc
}

// spiHeader writes the transaction header for the given register and mode
// into hdr and returns the header length.
//
// Layout, bit-exact:
//
//	byte 0: dir(1) | file select(5) | sub-address high(2)
//	byte 1: sub-address low(6) | mode(2)        (extended form only)
//
// The short 1-byte form is used iff the sub-address is 0 and the mode is a
// plain read or write; everything else takes the extended 2-byte form.
func spiHeader(regID uint32, index uint16, mode spiMode, hdr []byte) int {
	addr := regID + uint32(index)
	file := byte(addr>>16) & 0x1F
	sub := addr & 0xFFFF
	if sub > 0xFF {
		panic("dw3000: register sub-address out of range")
	}

	var dir byte
	switch mode {
	case _modeRead:
		dir = 0
	case _modeWrite, _modeAndOr8, _modeAndOr16, _modeAndOr32:
		dir = 1 << 7
	default:
		// Indicates a driver bug, not a hardware fault.
		panic("dw3000: unknown SPI transaction mode")
	}

	hdr[0] = dir | file<<2 | byte(sub>>6)&0x03
	if sub == 0 && (mode == _modeRead || mode == _modeWrite) {
		return 1
	}

	var sel byte
	switch mode {
	case _modeAndOr8:
		sel = 1
	case _modeAndOr16:
		sel = 2
	case _modeAndOr32:
		sel = 3
	}
	hdr[1] = byte(sub&0x3F)<<2 | sel
	return 2
}

// fastCommandHeader builds the 1-byte header of a fast command:
// write bit | opcode<<1 | fast-access selector.
func fastCommandHeader(cmd byte) byte {
	return 0x80 | cmd<<1 | 0x01
}

// spiTx clocks out the first n bytes of the scratch buffer, discarding
// whatever the chip shifts back.
func (d *Device) spiTx(n int) {
	slice := d.scratch[:n]
	if err := d.conn.Tx(slice, slice); err != nil {
		globalLogger.Error("SPI transfer error")
	}
}

// writeReg performs a single write transaction.
func (d *Device) writeReg(regID uint32, index uint16, data []byte) {
	if len(data) > _maxTransaction {
		panic("dw3000: transaction exceeds maximum size")
	}
	n := spiHeader(regID, index, _modeWrite, d.scratch[:2])
	copy(d.scratch[n:], data)
	total := n + len(data)
	if d.state.spiCRC != SPICRCModeOff {
		d.scratch[total] = crc8(0, d.scratch[:total])
		total++
	}
	d.spiTx(total)
}

// readReg performs a single read transaction into out.
//
// When CRC checking is enabled the expected CRC over header+payload is
// compared against the chip's own CRC register; a mismatch is reported
// through the SPI-error callback and the (possibly corrupt) data is still
// returned - the caller decides what to do about repeated errors. Reads of
// the CRC register itself are exempt to avoid recursion.
func (d *Device) readReg(regID uint32, index uint16, out []byte) {
	if len(out) > _maxTransaction {
		panic("dw3000: transaction exceeds maximum size")
	}
	n := spiHeader(regID, index, _modeRead, d.scratch[:2])
	total := n + len(out)
	for i := n; i < total; i++ {
		d.scratch[i] = 0
	}
	slice := d.scratch[:total]
	if err := d.conn.Tx(slice, slice); err != nil {
		globalLogger.Error("SPI transfer error")
		return
	}
	copy(out, d.scratch[n:total])

	if d.state.spiCRC == SPICRCModeReadWrite && regID != _SPI_RD_CRC {
		want := crc8(0, d.scratch[:total])
		var got [1]byte
		d.readReg(_SPI_RD_CRC, 0, got[:])
		if want != got[0] {
			globalLogger.Warn("SPI read CRC mismatch")
			if d.cb.SPIError != nil {
				d.cb.SPIError(&CallbackData{Dev: d})
			}
		}
	}
}

// modifyReg performs an AND/OR-modify transaction. The chip applies
// (reg & and) | or on its side, so the update cannot race with status
// bits the hardware flips between a read and a write.
func (d *Device) modifyReg(regID uint32, index uint16, mode spiMode, and, or uint32) {
	n := spiHeader(regID, index, mode, d.scratch[:2])
	var width int
	switch mode {
	case _modeAndOr8:
		width = 1
	case _modeAndOr16:
		width = 2
	case _modeAndOr32:
		width = 4
	default:
		panic("dw3000: modifyReg requires an AND/OR mode")
	}
	putLE(d.scratch[n:n+width], and)
	putLE(d.scratch[n+width:n+2*width], or)
	total := n + 2*width
	if d.state.spiCRC != SPICRCModeOff {
		d.scratch[total] = crc8(0, d.scratch[:total])
		total++
	}
	d.spiTx(total)
}

// fastCommand issues a single-byte hardware-sequenced command.
func (d *Device) fastCommand(cmd byte) {
	d.scratch[0] = fastCommandHeader(cmd)
	total := 1
	if d.state.spiCRC != SPICRCModeOff {
		d.scratch[1] = crc8(0, d.scratch[:1])
		total = 2
	}
	d.spiTx(total)
}

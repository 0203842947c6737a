package dw3000

import "encoding/binary"

// Typed register accessors. All multi-byte registers are little-endian on
// the wire.

func putLE(buf []byte, v uint32) {
	switch len(buf) {
	case 1:
		buf[0] = byte(v)
	case 2:
		binary.LittleEndian.PutUint16(buf, uint16(v))
	case 4:
		binary.LittleEndian.PutUint32(buf, v)
	default:
		panic("dw3000: bad register width")
	}
}

func (d *Device) read8(regID uint32, index uint16) uint8 {
	var buf [1]byte
	d.readReg(regID, index, buf[:])
	return buf[0]
}

func (d *Device) read16(regID uint32, index uint16) uint16 {
	var buf [2]byte
	d.readReg(regID, index, buf[:])
	return binary.LittleEndian.Uint16(buf[:])
}

func (d *Device) read32(regID uint32, index uint16) uint32 {
	var buf [4]byte
	d.readReg(regID, index, buf[:])
	return binary.LittleEndian.Uint32(buf[:])
}

func (d *Device) write8(regID uint32, index uint16, v uint8) {
	d.writeReg(regID, index, []byte{v})
}

func (d *Device) write16(regID uint32, index uint16, v uint16) {
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], v)
	d.writeReg(regID, index, buf[:])
}

func (d *Device) write32(regID uint32, index uint16, v uint32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	d.writeReg(regID, index, buf[:])
}

// modify8 applies (reg & and) | or atomically on the chip side.
func (d *Device) modify8(regID uint32, index uint16, and, or uint8) {
	d.modifyReg(regID, index, _modeAndOr8, uint32(and), uint32(or))
}

func (d *Device) modify16(regID uint32, index uint16, and, or uint16) {
	d.modifyReg(regID, index, _modeAndOr16, uint32(and), uint32(or))
}

func (d *Device) modify32(regID uint32, index uint16, and, or uint32) {
	d.modifyReg(regID, index, _modeAndOr32, and, or)
}

// Bit set/clear conveniences.

func (d *Device) or8(regID uint32, index uint16, bits uint8) {
	d.modify8(regID, index, 0xFF, bits)
}

func (d *Device) and8(regID uint32, index uint16, bits uint8) {
	d.modify8(regID, index, bits, 0)
}

func (d *Device) or16(regID uint32, index uint16, bits uint16) {
	d.modify16(regID, index, 0xFFFF, bits)
}

func (d *Device) and16(regID uint32, index uint16, bits uint16) {
	d.modify16(regID, index, bits, 0)
}

func (d *Device) or32(regID uint32, index uint16, bits uint32) {
	d.modify32(regID, index, 0xFFFFFFFF, bits)
}

func (d *Device) and32(regID uint32, index uint16, bits uint32) {
	d.modify32(regID, index, bits, 0)
}

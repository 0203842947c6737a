package dw3000

// OTP read access. Programming the OTP is out of scope; reads are needed
// for factory calibration (LDO/bias trims, PLL coarse codes, SAR
// references) and the wake-restore path.

func (d *Device) otpRead(addr uint16) uint32 {
	d.write16(_OTP_ADDR, 0, addr&0x7F)
	d.write16(_OTP_CFG, 0, _otpCfgReadEn)
	v := d.read32(_OTP_RDATA, 0)
	d.write16(_OTP_CFG, 0, 0)
	return v
}

// ReadOTP reads one 32-bit word from the factory calibration OTP memory.
func (d *Device) ReadOTP(addr uint16) uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.otpRead(addr)
}

package dw3000

// --- DW3000 Register Files ---
//
// Register identifiers encode the register file in bits [23:16] and the
// byte offset within the file in the low bits. The transaction layer
// splits them back apart when it builds the SPI header.

// File 0x00 - general configuration
const (
	_DEV_ID        = 0x00
	_EUI_64        = 0x04
	_PANADR        = 0x0C
	_SYS_CFG       = 0x10
	_FF_CFG        = 0x14
	_SPI_RD_CRC    = 0x18 // hardware-computed CRC of the last read
	_SYS_TIME      = 0x1C
	_TX_FCTRL      = 0x24
	_DX_TIME       = 0x2C
	_DREF_TIME     = 0x30
	_RX_FWTO       = 0x34
	_SYS_CTRL      = 0x38
	_SYS_ENABLE_LO = 0x3C
	_SYS_ENABLE_HI = 0x40
	_SYS_STATUS    = 0x44
	_SYS_STATUS_HI = 0x48
	_RX_FINFO      = 0x4C
	_RX_TIME       = 0x64
	_TX_TIME       = 0x74
)

// File 0x01 - general configuration (high)
const (
	_TX_ANTD    = 0x10004
	_ACK_RESP   = 0x10008
	_TX_POWER   = 0x1000C
	_CHAN_CTRL  = 0x10014
	_LE_PEND_01 = 0x10018
	_SPI_SEM    = 0x10020 // dual-SPI semaphore request/status
	_RDB_STATUS = 0x10024
	_RDB_DIAG   = 0x10028
	_FINT_STAT  = 0x10030 // fast interrupt status byte
)

// File 0x02 - STS configuration
const (
	_STS_CFG  = 0x20000
	_STS_CTRL = 0x20004
	_STS_STS  = 0x20008 // STS quality (accumulated symbol count)
)

// File 0x03 - receiver tuning (DGC)
const (
	_DGC_CFG  = 0x30018
	_DGC_CFG0 = 0x3001C
	_DGC_CFG1 = 0x30020
	_DGC_LUT0 = 0x30038
	_DGC_LUT1 = 0x3003C
	_DGC_LUT2 = 0x30040
	_DGC_LUT3 = 0x30044
	_DGC_LUT4 = 0x30048
	_DGC_LUT5 = 0x3004C
	_DGC_LUT6 = 0x30050
	_DGC_DBG  = 0x30060
)

// File 0x04 - external sync / receiver calibration (PGF)
const (
	_EC_CTRL     = 0x40000
	_RX_CAL      = 0x4000C
	_RX_CAL_RESI = 0x40014
	_RX_CAL_RESQ = 0x4001C
	_RX_CAL_STS  = 0x40020
)

// File 0x06 - digital receiver tuning
const (
	_DTUNE0 = 0x60000
	_DTUNE3 = 0x6000C
)

// File 0x07 - analog RF configuration
const (
	_RF_ENABLE    = 0x70000 // manual RF block enable overrides
	_RF_CTRL_MASK = 0x70004
	_RF_SWITCH    = 0x70014
	_RF_TX_CTRL_1 = 0x7001A
	_RF_TX_CTRL_2 = 0x7001C
	_LDO_TUNE_LO  = 0x70040
	_RF_STATUS    = 0x70044 // PLL comparator / lock flags
	_LDO_CTRL     = 0x70048
	_LDO_RLOAD    = 0x70050
)

// File 0x08 - transmitter calibration (SAR, PG)
const (
	_SAR_CTRL    = 0x80000
	_SAR_STATUS  = 0x80004
	_SAR_READING = 0x80008
	_PGC_CTRL    = 0x80010
	_PGC_STATUS  = 0x80014
)

// File 0x09 - frequency synthesiser (PLL)
const (
	_PLL_CFG    = 0x90000
	_PLL_COARSE = 0x90004 // coarse tuning code (thermometer coded on channel 5)
	_PLL_CAL    = 0x90008
	_PLL_STATUS = 0x90010
	_XTAL       = 0x90014
)

// File 0x0A - always-on retention block
const (
	_AON_DIG_CFG = 0xA0000 // on-wake download configuration
	_AON_CTRL    = 0xA0004
	_AON_RDATA   = 0xA0008
	_AON_ADDR    = 0xA000C
	_AON_WDATA   = 0xA0010
	_AON_CFG     = 0xA0014 // wake source / sleep enable
)

// File 0x0B - OTP memory interface
const (
	_OTP_WDATA = 0xB0000
	_OTP_ADDR  = 0xB0004
	_OTP_CFG   = 0xB0008
	_OTP_STAT  = 0xB000C
	_OTP_RDATA = 0xB0010
)

// File 0x0F - digital diagnostics
const (
	_EVC_CTRL  = 0xF0000
	_SYS_STATE = 0xF0030
)

// File 0x11 - power management and sequencing control
const (
	_SOFT_RST  = 0x110000
	_CLK_CTRL  = 0x110004
	_SEQ_CTRL  = 0x110008
	_LED_CTRL  = 0x110016
	_BIAS_CTRL = 0x11001F
)

// Files 0x12..0x16 - data buffers
const (
	_RX_BUFFER_0 = 0x120000
	_RX_BUFFER_1 = 0x130000
	_TX_BUFFER   = 0x140000
	_ACC_MEM     = 0x150000
	_SCRATCH_RAM = 0x160000
)

// --- Fast commands (single byte opcode space 0x00..0x13) ---

const (
	_CMD_TXRXOFF     = 0x00 // force transceiver off, always safe
	_CMD_TX          = 0x01
	_CMD_RX          = 0x02
	_CMD_DTX         = 0x03 // delayed TX, absolute time
	_CMD_DRX         = 0x04
	_CMD_DTX_TS      = 0x05 // delayed TX relative to last TX timestamp
	_CMD_DRX_TS      = 0x06
	_CMD_DTX_RS      = 0x07 // delayed TX relative to last RX timestamp
	_CMD_DRX_RS      = 0x08
	_CMD_DTX_REF     = 0x09 // delayed TX relative to reference time
	_CMD_DRX_REF     = 0x0A
	_CMD_CCA_TX      = 0x0B
	_CMD_TX_W4R      = 0x0C // TX, receiver auto-enabled afterwards
	_CMD_DTX_W4R     = 0x0D
	_CMD_DTX_TS_W4R  = 0x0E
	_CMD_DTX_RS_W4R  = 0x0F
	_CMD_DTX_REF_W4R = 0x10
	_CMD_CCA_TX_W4R  = 0x11
	_CMD_CLR_IRQS    = 0x12
	_CMD_DB_TOGGLE   = 0x13 // signal RX buffer free, flips double buffer
)

// --- SYS_STATUS (low word) bits ---
//
// Exported because callback payloads carry the raw status word.
const (
	StatusIRQS    uint32 = 1 << 0  // interrupt request
	StatusCPLOCK  uint32 = 1 << 1  // PLL lock detect
	StatusSPICRCE uint32 = 1 << 2  // SPI write CRC error
	StatusAAT     uint32 = 1 << 3  // automatic ack trigger
	StatusTXFRB   uint32 = 1 << 4  // TX frame begun
	StatusTXPRS   uint32 = 1 << 5  // TX preamble sent
	StatusTXPHS   uint32 = 1 << 6  // TX PHY header sent
	StatusTXFRS   uint32 = 1 << 7  // TX frame sent
	StatusRXPRD   uint32 = 1 << 8  // RX preamble detected
	StatusRXSFDD  uint32 = 1 << 9  // RX SFD detected
	StatusCIADONE uint32 = 1 << 10 // CIA processing done
	StatusRXPHD   uint32 = 1 << 11 // RX PHY header detected
	StatusRXPHE   uint32 = 1 << 12 // RX PHY header error
	StatusRXFR    uint32 = 1 << 13 // RX frame ready
	StatusRXFCG   uint32 = 1 << 14 // RX FCS good
	StatusRXFCE   uint32 = 1 << 15 // RX FCS error
	StatusRXFSL   uint32 = 1 << 16 // RX reed-solomon frame sync loss
	StatusRXFTO   uint32 = 1 << 17 // RX frame wait timeout
	StatusCIAERR  uint32 = 1 << 18 // CIA error
	StatusVWARN   uint32 = 1 << 19 // low voltage warning (brown-out)
	StatusRXOVRR  uint32 = 1 << 20 // receiver overrun
	StatusRXPTO   uint32 = 1 << 21 // preamble detect timeout
	StatusSPIRDY  uint32 = 1 << 23 // SPI ready after wake/power-on
	StatusRCINIT  uint32 = 1 << 24 // RC oscillator init done
	StatusPLLHILO uint32 = 1 << 25 // PLL out of range
	StatusRXSTO   uint32 = 1 << 26 // SFD timeout
	StatusHPDWARN uint32 = 1 << 27 // half period delay warning (late)
	StatusCPERR   uint32 = 1 << 28 // STS quality error
	StatusARFE    uint32 = 1 << 29 // address filter reject
)

// --- SYS_STATUS (high word) bits ---
const (
	StatusHiRXPREJ   uint16 = 1 << 0 // receiver preamble reject
	StatusHiAESDONE  uint16 = 1 << 1
	StatusHiAESERR   uint16 = 1 << 2
	StatusHiCMDERR   uint16 = 1 << 3 // fast command error
	StatusHiSPIOVF   uint16 = 1 << 4 // SPI overflow
	StatusHiSPIUNF   uint16 = 1 << 5 // SPI underflow
	StatusHiSPIERR   uint16 = 1 << 6 // SPI collision / transport error
	StatusHiCCAFAIL  uint16 = 1 << 7 // CCA found the channel busy
	StatusHiSEMAVAIL uint16 = 1 << 8 // dual-SPI semaphore available
)

// Composite status groups used by the event pipeline.
const (
	_statusAllTX      = StatusAAT | StatusTXFRB | StatusTXPRS | StatusTXPHS | StatusTXFRS
	_statusAllRXGood  = StatusRXPRD | StatusRXSFDD | StatusCIADONE | StatusRXPHD | StatusRXFR | StatusRXFCG
	_statusAllRXErr   = StatusRXPHE | StatusRXFCE | StatusRXFSL | StatusRXSTO | StatusARFE | StatusRXOVRR | StatusCIAERR
	_statusAllRXTO    = StatusRXFTO | StatusRXPTO
	_statusPanicLo    = StatusSPICRCE | StatusVWARN | StatusPLLHILO
	_statusHiPanic    = StatusHiAESERR | StatusHiCMDERR | StatusHiSPIOVF | StatusHiSPIUNF | StatusHiSPIERR
	_statusHiSPIFault = StatusHiSPIOVF | StatusHiSPIUNF | StatusHiSPIERR
)

// --- FINT_STAT bits ---
const (
	_fintTXOK     = 1 << 0 // any TX event
	_fintCCAFail  = 1 << 1
	_fintRXTSErr  = 1 << 2 // CIA / timestamp error
	_fintRXOK     = 1 << 3 // frame received OK
	_fintRXErr    = 1 << 4
	_fintRXTO     = 1 << 5
	_fintSysEvent = 1 << 6 // SPI ready, semaphore, timers
	_fintSysPanic = 1 << 7 // errors needing attention
)

// --- RDB_STATUS bits (double buffer status, one nibble per buffer) ---
const (
	_rdbRXFCG0   = 1 << 0
	_rdbRXFR0    = 1 << 1
	_rdbCIADONE0 = 1 << 2
	_rdbCPERR0   = 1 << 3
	_rdbRXFCG1   = 1 << 4
	_rdbRXFR1    = 1 << 5
	_rdbCIADONE1 = 1 << 6
	_rdbCPERR1   = 1 << 7
)

// --- SYS_CFG bits ---
const (
	_sysCfgFFEN      uint32 = 1 << 0
	_sysCfgDisFCS    uint32 = 1 << 3  // transmit without FCS
	_sysCfgDisFCE    uint32 = 1 << 4  // FCS error does not discard frame
	_sysCfgPHRMode   uint32 = 1 << 5  // extended (long) frames
	_sysCfgPHR6M8    uint32 = 1 << 6
	_sysCfgCPSPC     uint32 = 3 << 12 // STS packet configuration
	_sysCfgCPSPCShift       = 12
	_sysCfgPDOAMode  uint32 = 3 << 16
	_sysCfgSPICRCEN  uint32 = 1 << 18 // SPI CRC generation enable
	_sysCfgDisDRXB   uint32 = 1 << 20 // double RX buffer disable (set = single)
	_sysCfgRXAUTR    uint32 = 1 << 21 // receiver auto re-enable
)

// --- RX_FINFO fields ---
const (
	_rxFInfoLenMaskStd uint32 = 0x0000007F // standard frames: 7 bit length
	_rxFInfoLenMaskExt uint32 = 0x000003FF // extended frames: 10 bit length
	_rxFInfoRNG        uint32 = 1 << 15    // ranging bit from the PHY header
)

// --- CLK_CTRL system clock selection (bits [1:0]) ---
const (
	_clkAuto     uint16 = 0x0 // let the sequencer pick
	_clkForceRC  uint16 = 0x1 // force internal RC oscillator
	_clkForcePLL uint16 = 0x2
	_clkForceDiv uint16 = 0x3 // divided RC clock, for slow SPI negotiation
	_clkSysMask  uint16 = 0x3
)

// --- SEQ_CTRL bits ---
const (
	_seqAINIT2IDLE uint32 = 1 << 8  // auto INIT_RC -> IDLE_PLL sequencing
	_seqFORCE2INIT uint32 = 1 << 23 // one-shot force back to INIT_RC
)

// --- RF_ENABLE manual override bits ---
const (
	_rfEnPLL     uint32 = 1 << 0
	_rfEnLDO     uint32 = 1 << 1
	_rfEnPLLCal  uint32 = 1 << 2 // route comparator to RF_STATUS
	_rfEnCh9Pre  uint32 = 1 << 3 // channel 9 calibration prebuffers
	_rfEnICASOff uint32 = 1 << 4 // disable ICAS during channel 9 cal
	_rfEnRCASOff uint32 = 1 << 5 // disable RCAS during channel 9 cal
)

// --- RF_STATUS bits ---
const (
	_rfStatusCmpHi   uint8 = 1 << 0 // coarse code too high, step down
	_rfStatusCmpLo   uint8 = 1 << 1 // coarse code high enough, hold
	_rfStatusPLLLock uint8 = 1 << 2
	_rfStatusLDORdy  uint8 = 1 << 3
)

// PLL lock signatures checked by the calibration loops: the RF status
// flags and the PLL status code must both match before the loop is
// allowed to succeed.
const (
	_pllLockRFCh5     uint8 = _rfStatusCmpLo | _rfStatusPLLLock | _rfStatusLDORdy
	_pllLockRFCh9     uint8 = _rfStatusPLLLock | _rfStatusLDORdy
	_pllStatusLockCh5 uint8 = 0x31
	_pllStatusLockCh9 uint8 = 0x11
)

// --- PLL_CFG values per channel ---
const (
	_pllCfgCh5 uint16 = 0x1F3C
	_pllCfgCh9 uint16 = 0x0F3C
	_pllCalEn  uint16 = 1 << 8
)

// --- RF analog trims per channel ---
const (
	_rfTxCtrl1       uint8  = 0x0E
	_rfTxCtrl2Ch5    uint32 = 0x1C071134
	_rfTxCtrl2Ch9    uint32 = 0x1C010034
	_biasCtrlDefault uint8  = 0x07 // post-TX receiver bias
)

// --- AON control and retention addresses ---
const (
	_aonCtrlRestore   uint8 = 1 << 0 // download retained config into registers
	_aonCtrlSave      uint8 = 1 << 1 // upload configuration into retention
	_aonCtrlCfgUpload uint8 = 1 << 2
	_aonCtrlDirectRd  uint8 = 1 << 3 // direct AON memory read strobe
	_aonCtrlDirectWr  uint8 = 1 << 4

	_aonAddrSleepCntLo = 0x102
	_aonAddrSleepCntHi = 0x103
	_aonAddrLPOscTrim  = 0x104
	_aonAddrCalCtrl    = 0x105
	_aonAddrCalResLo   = 0x106
	_aonAddrCalResHi   = 0x107
)

// AON_CFG wake source / sleep bits.
const (
	_aonCfgSleepEn  uint8 = 1 << 0
	_aonCfgWakeCnt  uint8 = 1 << 1 // wake on sleep counter expiry
	_aonCfgBrownout uint8 = 1 << 2
	_aonCfgWakeCS   uint8 = 1 << 3 // wake on SPI chip select
	_aonCfgWakePin  uint8 = 1 << 4 // wake on WAKEUP pin
	_aonCfgPresSlp  uint8 = 1 << 5 // preserve sleep (repeat counter)
	_aonCfgLPOscCal uint8 = 1 << 6 // run low-power oscillator calibration
)

// --- OTP interface ---
const (
	_otpCfgManual   uint16 = 1 << 0
	_otpCfgReadEn   uint16 = 1 << 1
	_otpCfgDGCKick  uint16 = 1 << 6 // load DGC LUTs from OTP
	_otpCfgLDOKick  uint16 = 1 << 7 // apply LDO tune from OTP
	_otpCfgBIASKick uint16 = 1 << 8 // apply bias tune from OTP
)

// Factory calibration OTP word addresses.
const (
	_otpAddrLDOTuneLo = 0x04
	_otpAddrLDOTuneHi = 0x05
	_otpAddrPartID    = 0x06
	_otpAddrLotID     = 0x07
	_otpAddrVBat      = 0x08
	_otpAddrVTemp     = 0x09
	_otpAddrBiasTune  = 0x0A
	_otpAddrDGCCh5    = 0x20
	_otpAddrDGCCh9    = 0x2A
	_otpAddrPLLCh5    = 0x35
	_otpAddrPLLCh9    = 0x36
	_otpAddrXtalTrim  = 0x1E
	_otpAddrRevision  = 0x1F
)

// Hard-coded DGC configuration used when the OTP has no tuning data.
var _dgcLUTCh5 = [7]uint32{0x380FD, 0x3887D, 0x39097, 0x398C3, 0x3A12B, 0x3A93B, 0x3B573}
var _dgcLUTCh9 = [7]uint32{0x5407D, 0x548BD, 0x550E7, 0x55B0F, 0x56327, 0x56C1B, 0x57557}

const (
	_dgcCfg  uint16 = 0x64
	_dgcCfg0 uint32 = 0x10000240
	_dgcCfg1 uint32 = 0x1B6DA489
)

// --- SYS_STATE PMSC states (byte 2 of SYS_STATE) ---
const (
	_pmscStateWakeup uint8 = 0x1
	_pmscStateIdleRC uint8 = 0x2
	_pmscStateIdle   uint8 = 0x3
	_pmscStateTX     uint8 = 0x8
	_pmscStateRX     uint8 = 0x12
)

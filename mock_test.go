package dw3000

import (
	"time"
)

// --- Mocks ---

type mockPin struct {
	mode    string
	outs    []Level
	level   Level
	pull    Pull
	edge    Edge
	handler func()
}

func (m *mockPin) Out(l Level) error {
	m.mode = "output"
	m.level = l
	m.outs = append(m.outs, l)
	return nil
}

func (m *mockPin) In(pull Pull) error {
	m.mode = "input"
	m.pull = pull
	return nil
}

func (m *mockPin) Read() Level { return m.level }

func (m *mockPin) Watch(edge Edge, handler func()) error {
	m.edge = edge
	m.handler = handler
	return nil
}

func (m *mockPin) Unwatch() error {
	m.handler = nil
	return nil
}

// mockSPI records every byte clocked out and serves register reads from a
// backing map. Responses can also be queued per register for loops that
// expect the value to change between polls; queued responses are consumed
// before the static map is consulted.
type mockSPI struct {
	tx       []byte            // full TX trace, transactions concatenated
	regs     map[uint32][]byte // regID+index -> backing bytes
	regQueue map[uint32][][]byte
	fast     []byte // decoded fast command opcodes in order
	err      error
}

func newMockSPI() *mockSPI {
	return &mockSPI{
		regs:     make(map[uint32][]byte),
		regQueue: make(map[uint32][][]byte),
	}
}

func (m *mockSPI) setReg(reg uint32, data ...byte) {
	m.regs[reg] = data
}

func (m *mockSPI) set32(reg uint32, v uint32) {
	m.setReg(reg, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}

func (m *mockSPI) set16(reg uint32, v uint16) {
	m.setReg(reg, byte(v), byte(v>>8))
}

func (m *mockSPI) queueReg(reg uint32, data ...byte) {
	m.regQueue[reg] = append(m.regQueue[reg], data)
}

// decode recovers the register id from a read header. Extended headers are
// tried first; a 1-byte short header can only address offset 0 of a file.
func (m *mockSPI) decode(w []byte) (reg uint32, hdrLen int, ok bool) {
	file := uint32(w[0]>>2) & 0x1F
	if len(w) >= 2 && w[1]&0x03 == 0 {
		sub := uint32(w[0]&0x03)<<6 | uint32(w[1]>>2)
		if sub != 0 {
			return file<<16 | sub, 2, true
		}
	}
	if w[0]&0x03 == 0 {
		return file << 16, 1, true
	}
	return 0, 0, false
}

func (m *mockSPI) Tx(w, r []byte) error {
	m.tx = append(m.tx, w...)

	// Fast commands are the only 1-byte transactions (2 with CRC).
	if len(w) <= 2 && w[0]&0x81 == 0x81 {
		m.fast = append(m.fast, (w[0]>>1)&0x1F)
		return m.err
	}

	if w[0]&0x80 == 0 { // read
		if reg, hdrLen, ok := m.decode(w); ok {
			if q := m.regQueue[reg]; len(q) > 0 {
				copy(r[hdrLen:], q[0])
				m.regQueue[reg] = q[1:]
			} else if v, ok := m.regs[reg]; ok {
				copy(r[hdrLen:], v)
			}
		}
	}
	return m.err
}

// mockFastSPI additionally satisfies FastRater.
type mockFastSPI struct {
	mockSPI
	fastCalls int
}

func (m *mockFastSPI) SetFastRate() error {
	m.fastCalls++
	return nil
}

// newTestDevice builds a Device around the mock directly, skipping the
// reset/probe/configure sequence of the constructor.
func newTestDevice(m *mockSPI) *Device {
	return &Device{
		conn:  m,
		ops:   dw3000Ops{},
		delay: func(time.Duration) {},
	}
}

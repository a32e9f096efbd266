package riscv

// Compressed (16-bit) instruction decoding. Only the subset a C-toolchain actually emits
// is implemented; an unrecognized compressed encoding is an illegal instruction trap.

func bit(raw uint16, n uint) uint32 {
	return uint32(raw>>n) & 1
}

func bits(raw uint16, hi, lo uint) uint32 {
	return uint32(raw>>lo) & ((1 << (hi - lo + 1)) - 1)
}

// cReg maps a compressed 3-bit register field to x8..x15.
func cReg(field uint32) uint32 {
	return 8 + field
}

func (m *Machine) execute16(raw uint16) (uint64, error) {
	pc := m.PC
	quadrant := raw & 0x3
	funct3 := bits(raw, 15, 13)

	rdFull := bits(raw, 11, 7)
	rs2Full := bits(raw, 6, 2)

	switch quadrant {
	case 0:
		rdP := cReg(bits(raw, 4, 2))
		rs1P := cReg(bits(raw, 9, 7))
		rs2P := cReg(bits(raw, 4, 2))

		switch funct3 {
		case 0: // C.ADDI4SPN
			nzuimm := (bits(raw, 12, 11) << 4) | (bits(raw, 10, 7) << 6) | (bit(raw, 6) << 2) | (bit(raw, 5) << 3)
			if nzuimm == 0 {
				return 0, ErrIllegalInstruction
			}
			m.setReg(rdP, m.reg(SP)+uint64(nzuimm))
			return pc + 2, nil

		case 2: // C.LW
			off := (bits(raw, 12, 10) << 3) | (bit(raw, 6) << 2) | (bit(raw, 5) << 6)
			addr := m.reg(rs1P) + uint64(off)
			v, err := m.Mem.Load32(addr)
			if err != nil {
				return 0, err
			}
			m.setReg(rdP, uint64(int64(int32(v))))
			return pc + 2, nil

		case 3: // C.LD
			off := (bits(raw, 12, 10) << 3) | (bits(raw, 6, 5) << 6)
			addr := m.reg(rs1P) + uint64(off)
			v, err := m.Mem.Load64(addr)
			if err != nil {
				return 0, err
			}
			m.setReg(rdP, v)
			return pc + 2, nil

		case 6: // C.SW
			off := (bits(raw, 12, 10) << 3) | (bit(raw, 6) << 2) | (bit(raw, 5) << 6)
			addr := m.reg(rs1P) + uint64(off)
			if err := m.Mem.Store32(addr, uint32(m.reg(rs2P))); err != nil {
				return 0, err
			}
			return pc + 2, nil

		case 7: // C.SD
			off := (bits(raw, 12, 10) << 3) | (bits(raw, 6, 5) << 6)
			addr := m.reg(rs1P) + uint64(off)
			if err := m.Mem.Store64(addr, m.reg(rs2P)); err != nil {
				return 0, err
			}
			return pc + 2, nil
		}
		return 0, ErrIllegalInstruction

	case 1:
		switch funct3 {
		case 0: // C.ADDI / C.NOP
			imm := signExtend((bit(raw, 12)<<5)|bits(raw, 6, 2), 6)
			m.setReg(rdFull, uint64(int64(m.reg(rdFull))+imm))
			return pc + 2, nil

		case 1: // C.ADDIW
			imm := signExtend((bit(raw, 12)<<5)|bits(raw, 6, 2), 6)
			m.setReg(rdFull, uint64(int64(int32(int64(m.reg(rdFull))+imm))))
			return pc + 2, nil

		case 2: // C.LI
			imm := signExtend((bit(raw, 12)<<5)|bits(raw, 6, 2), 6)
			m.setReg(rdFull, uint64(imm))
			return pc + 2, nil

		case 3:
			if rdFull == SP {
				nzimm := (bit(raw, 12) << 9) | (bit(raw, 6) << 4) | (bit(raw, 5) << 6) |
					(bits(raw, 4, 3) << 7) | (bit(raw, 2) << 5)
				imm := signExtend(nzimm, 10)
				m.setReg(SP, uint64(int64(m.reg(SP))+imm))
				return pc + 2, nil
			}
			nzimm := (bit(raw, 12) << 17) | (bits(raw, 6, 2) << 12)
			imm := signExtend(nzimm, 18)
			m.setReg(rdFull, uint64(imm))
			return pc + 2, nil

		case 4:
			rdP := cReg(bits(raw, 9, 7))
			rs2P := cReg(bits(raw, 4, 2))
			switch bits(raw, 11, 10) {
			case 0: // C.SRLI
				shamt := (bit(raw, 12) << 5) | bits(raw, 6, 2)
				m.setReg(rdP, m.reg(rdP)>>shamt)
				return pc + 2, nil
			case 1: // C.SRAI
				shamt := (bit(raw, 12) << 5) | bits(raw, 6, 2)
				m.setReg(rdP, uint64(int64(m.reg(rdP))>>shamt))
				return pc + 2, nil
			case 2: // C.ANDI
				imm := signExtend((bit(raw, 12)<<5)|bits(raw, 6, 2), 6)
				m.setReg(rdP, m.reg(rdP)&uint64(imm))
				return pc + 2, nil
			case 3:
				switch (bit(raw, 12) << 2) | bits(raw, 6, 5) {
				case 0: // C.SUB
					m.setReg(rdP, m.reg(rdP)-m.reg(rs2P))
				case 1: // C.XOR
					m.setReg(rdP, m.reg(rdP)^m.reg(rs2P))
				case 2: // C.OR
					m.setReg(rdP, m.reg(rdP)|m.reg(rs2P))
				case 3: // C.AND
					m.setReg(rdP, m.reg(rdP)&m.reg(rs2P))
				case 4: // C.SUBW
					m.setReg(rdP, uint64(int64(int32(uint32(m.reg(rdP))-uint32(m.reg(rs2P))))))
				case 5: // C.ADDW
					m.setReg(rdP, uint64(int64(int32(uint32(m.reg(rdP))+uint32(m.reg(rs2P))))))
				default:
					return 0, ErrIllegalInstruction
				}
				return pc + 2, nil
			}
			return 0, ErrIllegalInstruction

		case 5: // C.J
			off := (bit(raw, 12) << 11) | (bit(raw, 11) << 4) | (bits(raw, 10, 9) << 8) |
				(bit(raw, 8) << 10) | (bit(raw, 7) << 6) | (bit(raw, 6) << 7) |
				(bits(raw, 5, 3) << 1) | (bit(raw, 2) << 5)
			return uint64(int64(pc) + signExtend(off, 12)), nil

		case 6: // C.BEQZ
			rs1P := cReg(bits(raw, 9, 7))
			off := branchImm16(raw)
			if m.reg(rs1P) == 0 {
				return uint64(int64(pc) + off), nil
			}
			return pc + 2, nil

		case 7: // C.BNEZ
			rs1P := cReg(bits(raw, 9, 7))
			off := branchImm16(raw)
			if m.reg(rs1P) != 0 {
				return uint64(int64(pc) + off), nil
			}
			return pc + 2, nil
		}
		return 0, ErrIllegalInstruction

	case 2:
		switch funct3 {
		case 0: // C.SLLI
			shamt := (bit(raw, 12) << 5) | bits(raw, 6, 2)
			m.setReg(rdFull, m.reg(rdFull)<<shamt)
			return pc + 2, nil

		case 2: // C.LWSP
			off := (bit(raw, 12) << 5) | (bits(raw, 6, 4) << 2) | (bits(raw, 3, 2) << 6)
			v, err := m.Mem.Load32(m.reg(SP) + uint64(off))
			if err != nil {
				return 0, err
			}
			m.setReg(rdFull, uint64(int64(int32(v))))
			return pc + 2, nil

		case 3: // C.LDSP
			off := (bit(raw, 12) << 5) | (bits(raw, 6, 5) << 3) | (bits(raw, 4, 2) << 6)
			v, err := m.Mem.Load64(m.reg(SP) + uint64(off))
			if err != nil {
				return 0, err
			}
			m.setReg(rdFull, v)
			return pc + 2, nil

		case 4:
			if bit(raw, 12) == 0 {
				if rs2Full == 0 { // C.JR
					if rdFull == 0 {
						return 0, ErrIllegalInstruction
					}
					return m.reg(rdFull), nil
				}
				// C.MV
				m.setReg(rdFull, m.reg(rs2Full))
				return pc + 2, nil
			}
			if rdFull == 0 && rs2Full == 0 { // C.EBREAK
				return 0, ErrBreakpoint
			}
			if rs2Full == 0 { // C.JALR
				target := m.reg(rdFull)
				m.setReg(RA, pc+2)
				return target, nil
			}
			// C.ADD
			m.setReg(rdFull, m.reg(rdFull)+m.reg(rs2Full))
			return pc + 2, nil

		case 6: // C.SWSP
			off := (bits(raw, 12, 9) << 2) | (bits(raw, 8, 7) << 6)
			if err := m.Mem.Store32(m.reg(SP)+uint64(off), uint32(m.reg(rs2Full))); err != nil {
				return 0, err
			}
			return pc + 2, nil

		case 7: // C.SDSP
			off := (bits(raw, 12, 10) << 3) | (bits(raw, 9, 7) << 6)
			if err := m.Mem.Store64(m.reg(SP)+uint64(off), m.reg(rs2Full)); err != nil {
				return 0, err
			}
			return pc + 2, nil
		}
		return 0, ErrIllegalInstruction
	}

	return 0, ErrIllegalInstruction
}

func branchImm16(raw uint16) int64 {
	off := (bit(raw, 12) << 8) | (bits(raw, 11, 10) << 3) | (bits(raw, 6, 5) << 6) |
		(bits(raw, 4, 3) << 1) | (bit(raw, 2) << 5)
	return signExtend(off, 9)
}

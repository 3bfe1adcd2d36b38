package packet

// Packet is a word-addressed command buffer: one header word followed by a
// variable-length payload. It is owned by whichever buffer object supplied
// it and is never resized in place after submission.
type Packet struct {
	Header  uint32
	Payload []uint32
}

// NewPacket builds a packet with the given opcode/type/count already packed
// into the header, sized to hold count payload words.
func NewPacket(opcode Opcode, typ Type, count int) *Packet {
	p := &Packet{Payload: make([]uint32, count)}
	p.SetOpcode(opcode)
	p.SetType(typ)
	p.SetCount(uint32(count))
	return p
}

func packField(word, val, shift, mask uint32) uint32 {
	return (word &^ (mask << shift)) | ((val & mask) << shift)
}

// Opcode extracts the operation code from the header.
func (p *Packet) Opcode() Opcode {
	return Opcode((p.Header >> opcodeShift) & opcodeMask)
}

// SetOpcode packs the operation code into the header.
func (p *Packet) SetOpcode(op Opcode) {
	p.Header = packField(p.Header, uint32(op), opcodeShift, opcodeMask)
}

// Type extracts the dispatch type (device vs. host-local) from the header.
func (p *Packet) Type() Type {
	return Type((p.Header >> typeShift) & typeMask)
}

// SetType packs the dispatch type into the header.
func (p *Packet) SetType(t Type) {
	p.Header = packField(p.Header, uint32(t), typeShift, typeMask)
}

// Count returns the number of payload words recorded in the header.
func (p *Packet) Count() uint32 {
	return (p.Header >> countShift) & countMask
}

// SetCount packs the payload word count into the header.
func (p *Packet) SetCount(count uint32) {
	p.Header = packField(p.Header, count, countShift, countMask)
}

// State extracts the device-visible slot state nibble (device-poller path
// only; host-submitted commands track state separately in core.Command).
func (p *Packet) State() uint8 {
	return uint8((p.Header >> stateShift) & stateMask)
}

// SetState packs the slot state nibble into the header.
func (p *Packet) SetState(state uint8) {
	p.Header = packField(p.Header, uint32(state), stateShift, stateMask)
}

// ExtraCUMasks returns the extra_cu_masks field packed into the low two
// bits of the custom byte; meaningful only for START_KERNEL packets.
func (p *Packet) ExtraCUMasks() uint32 {
	return (p.Header >> customShift) & 0x3
}

// SetExtraCUMasks packs extra_cu_masks into the custom byte.
func (p *Packet) SetExtraCUMasks(n uint32) {
	custom := (p.Header >> customShift) & customMask
	custom = (custom &^ 0x3) | (n & 0x3)
	p.Header = packField(p.Header, custom, customShift, customMask)
}

// PacketSize is count+1, the total word size including the header.
func (p *Packet) PacketSize() uint32 {
	return p.Count() + 1
}

// CUMasks returns the number of CU-mask words preceding the register map:
// 1+extra_cu_masks for a CU-invocation packet (START_KERNEL or START_CU —
// spec.md's own worked example for START_CU submits a CU-mask word
// alongside the register map, so both opcodes carry CU masks here), zero
// otherwise.
func (p *Packet) CUMasks() uint32 {
	switch p.Opcode() {
	case OpStartKernel, OpStartCU:
		return 1 + p.ExtraCUMasks()
	default:
		return 0
	}
}

// RegmapSize is the number of register-map words following the CU masks.
func (p *Packet) RegmapSize() uint32 {
	return p.Count() - p.CUMasks()
}

// CUMaskWords returns the CU-mask words (LSB = CU 0 within the first mask).
func (p *Packet) CUMaskWords() []uint32 {
	n := p.CUMasks()
	return p.Payload[:n]
}

// Regmap returns the register-map words following the CU masks.
func (p *Packet) Regmap() []uint32 {
	return p.Payload[p.CUMasks():]
}

// GetPacketSizeForOpcode derives the number of payload words following a
// packet's header from its opcode and header count field alone, for the
// device-poller path where only the header has been copied in yet. The
// header count field already records the packet's full payload length
// for every opcode (core.Configure's own count != 5+num_cus check depends
// on this holding for CONFIGURE too), so this is a pass-through for every
// opcode except STOP/ABORT, which carry no payload regardless of count.
func GetPacketSizeForOpcode(opcode Opcode, count uint32) uint32 {
	switch opcode {
	case OpStop, OpAbort:
		return 0
	default:
		return count
	}
}

// ConfigurePayload is the decoded form of a CONFIGURE packet's payload.
type ConfigurePayload struct {
	SlotSize   uint32
	NumCUs     uint32
	CUShift    uint32
	CUBaseAddr uint32
	Features   uint32
	CUAddr     []uint32
}

// ParseConfigurePayload decodes a CONFIGURE packet's payload words. It does
// not check the header count; the payload must hold at least 5+num_cus
// words. core.ExecCore.Configure compares count with 5+NumCUs after
// decoding.
func ParseConfigurePayload(payload []uint32) ConfigurePayload {
	numCUs := payload[ConfigNumCUsWord]
	cfg := ConfigurePayload{
		SlotSize:   payload[ConfigSlotSizeWord],
		NumCUs:     numCUs,
		CUShift:    payload[ConfigCUShiftWord],
		CUBaseAddr: payload[ConfigCUBaseAddrWord],
		Features:   payload[ConfigFeaturesWord],
		CUAddr:     make([]uint32, numCUs),
	}
	copy(cfg.CUAddr, payload[ConfigCUAddrWord0:ConfigCUAddrWord0+int(numCUs)])
	return cfg
}

// BuildConfigurePayload encodes a CONFIGURE payload for test fixtures and
// the simulation CLI.
func BuildConfigurePayload(cfg ConfigurePayload) []uint32 {
	out := make([]uint32, 5+len(cfg.CUAddr))
	out[ConfigSlotSizeWord] = cfg.SlotSize
	out[ConfigNumCUsWord] = uint32(len(cfg.CUAddr))
	out[ConfigCUShiftWord] = cfg.CUShift
	out[ConfigCUBaseAddrWord] = cfg.CUBaseAddr
	out[ConfigFeaturesWord] = cfg.Features
	copy(out[ConfigCUAddrWord0:], cfg.CUAddr)
	return out
}

// WritePairs decodes a WRITE packet's payload into (addr, val) pairs.
// The payload's word count must be even; a malformed odd count is a
// BadPacket condition the caller must check for before calling this.
func WritePairs(payload []uint32) [][2]uint32 {
	pairs := make([][2]uint32, 0, len(payload)/2)
	for i := 0; i+1 < len(payload); i += 2 {
		pairs = append(pairs, [2]uint32{payload[i], payload[i+1]})
	}
	return pairs
}

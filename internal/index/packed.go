package index

import (
	"encoding/binary"
	"fmt"
)

// PackedOrds maps each document of a segment to its ordinal. Storage width
// (8, 16 or 32 bits) is chosen from the number of ordinals; every width is
// read back through the same widened Get.
type PackedOrds struct {
	bits int
	b8   []uint8
	b16  []uint16
	b32  []uint32
}

// BitsRequired returns the storage width for ordinals in [0, numOrds).
func BitsRequired(numOrds int) int {
	switch {
	case numOrds <= 1<<8:
		return 8
	case numOrds <= 1<<16:
		return 16
	default:
		return 32
	}
}

// NewPackedOrds packs ords, all of which must be < numOrds.
func NewPackedOrds(ords []int, numOrds int) *PackedOrds {
	p := &PackedOrds{bits: BitsRequired(numOrds)}
	switch p.bits {
	case 8:
		p.b8 = make([]uint8, len(ords))
		for i, o := range ords {
			p.b8[i] = uint8(o)
		}
	case 16:
		p.b16 = make([]uint16, len(ords))
		for i, o := range ords {
			p.b16[i] = uint16(o)
		}
	default:
		p.b32 = make([]uint32, len(ords))
		for i, o := range ords {
			p.b32[i] = uint32(o)
		}
	}
	return p
}

// Get returns the ordinal of doc.
func (p *PackedOrds) Get(doc uint32) int {
	switch p.bits {
	case 8:
		return int(p.b8[doc])
	case 16:
		return int(p.b16[doc])
	default:
		return int(p.b32[doc])
	}
}

// Len returns the number of documents covered.
func (p *PackedOrds) Len() int {
	switch p.bits {
	case 8:
		return len(p.b8)
	case 16:
		return len(p.b16)
	default:
		return len(p.b32)
	}
}

// BitsPerValue returns the storage width.
func (p *PackedOrds) BitsPerValue() int {
	return p.bits
}

// MarshalBinary encodes the width byte followed by little-endian values.
func (p *PackedOrds) MarshalBinary() ([]byte, error) {
	n := p.Len()
	out := make([]byte, 1, 1+n*p.bits/8)
	out[0] = byte(p.bits)
	switch p.bits {
	case 8:
		out = append(out, p.b8...)
	case 16:
		for _, v := range p.b16 {
			out = binary.LittleEndian.AppendUint16(out, v)
		}
	default:
		for _, v := range p.b32 {
			out = binary.LittleEndian.AppendUint32(out, v)
		}
	}
	return out, nil
}

// UnmarshalPackedOrds decodes the MarshalBinary format.
func UnmarshalPackedOrds(data []byte) (*PackedOrds, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("packed ords: empty buffer")
	}
	p := &PackedOrds{bits: int(data[0])}
	body := data[1:]
	switch p.bits {
	case 8:
		p.b8 = append([]uint8(nil), body...)
	case 16:
		if len(body)%2 != 0 {
			return nil, fmt.Errorf("packed ords: truncated 16-bit block (%d bytes)", len(body))
		}
		p.b16 = make([]uint16, len(body)/2)
		for i := range p.b16 {
			p.b16[i] = binary.LittleEndian.Uint16(body[i*2:])
		}
	case 32:
		if len(body)%4 != 0 {
			return nil, fmt.Errorf("packed ords: truncated 32-bit block (%d bytes)", len(body))
		}
		p.b32 = make([]uint32, len(body)/4)
		for i := range p.b32 {
			p.b32[i] = binary.LittleEndian.Uint32(body[i*4:])
		}
	default:
		return nil, fmt.Errorf("packed ords: unsupported width %d", p.bits)
	}
	return p, nil
}

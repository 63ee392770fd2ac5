package frameheader

import (
	"encoding/binary"
	"strconv"
)

// Size длина префикса фрейма: uint16 little-endian.
const Size = 2

// MaxLength максимальная длина пейлоада, которую может описать заголовок.
const MaxLength = 1<<16 - 1

type FrameHeader []byte

func (f FrameHeader) Length() int {
	_ = f[1]
	return int(binary.LittleEndian.Uint16(f))
}

// Append дописывает заголовок для пейлоада длины l в конец b.
func Append(b []byte, l int) []byte {
	return binary.LittleEndian.AppendUint16(b, uint16(l))
}

func (f FrameHeader) String() string {
	return "length=" + strconv.Itoa(f.Length())
}

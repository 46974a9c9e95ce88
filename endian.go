package gnssflash

import (
	"encoding/binary"
	"fmt"
	"sync"
	"unsafe"
)

// 主机字节序只探测一次
var hostLittleEndian = sync.OnceValue(func() bool {
	probe := uint16(1)
	return *(*byte)(unsafe.Pointer(&probe)) == 1
})

// IsLittleEndian reports whether the host stores multi-byte integers least
// significant byte first.
func IsLittleEndian() bool {
	return hostLittleEndian()
}

// NativeOrder returns the host byte order.
func NativeOrder() binary.ByteOrder {
	if IsLittleEndian() {
		return binary.LittleEndian
	}
	return binary.BigEndian
}

/*
 * @Description: 解析DA期望的多字节字段顺序
 * @param name big / little / native
 * @return binary.ByteOrder
 * @return error
 */
func ParseByteOrder(name string) (binary.ByteOrder, error) {
	switch {
	case StrCompare(name, "big", false):
		return binary.BigEndian, nil
	case StrCompare(name, "little", false):
		return binary.LittleEndian, nil
	case StrCompare(name, "native", false):
		return NativeOrder(), nil
	}
	return nil, fmt.Errorf("%w: unknown byte order %q", ErrInvalidConfig, name)
}

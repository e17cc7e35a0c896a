package gpu

import "github.com/pkg/errors"

// SizeOf returns the byte size and component type of an upload slice.
func SizeOf(data any) (int, ComponentType, error) {
	switch d := data.(type) {
	case []float32:
		return len(d) * 4, Float, nil
	case []int16:
		return len(d) * 2, Short, nil
	case []int8:
		return len(d), Byte, nil
	case []uint16:
		return len(d) * 2, UnsignedShort, nil
	case []uint32:
		return len(d) * 4, UnsignedInt, nil
	default:
		return 0, 0, errors.Errorf("gpu: unsupported buffer data %T", data)
	}
}

// Len returns the element count of an upload slice, or 0 for unsupported data.
func Len(data any) int {
	n, typ, err := SizeOf(data)
	if err != nil {
		return 0
	}
	return n / typ.Size()
}

func cloneData(data any) any {
	switch d := data.(type) {
	case []float32:
		return append([]float32(nil), d...)
	case []int16:
		return append([]int16(nil), d...)
	case []int8:
		return append([]int8(nil), d...)
	case []uint16:
		return append([]uint16(nil), d...)
	case []uint32:
		return append([]uint32(nil), d...)
	default:
		return nil
	}
}

package repl

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"

	"github.com/PokkeFe/os-memsim/internal/vaddr"
)

// encodeValue converts a single command-line token into the raw bytes
// for one element of the given type. For Char, only the token's first
// byte is used, matching the original setVariable's
// &command_list[i].c_str()[0] behavior.
func encodeValue(t vaddr.DataType, token string) ([]byte, error) {
	switch t {
	case vaddr.Char:
		if token == "" {
			return []byte{0}, nil
		}
		return []byte{token[0]}, nil
	case vaddr.Short:
		v, err := strconv.ParseInt(token, 10, 16)
		if err != nil {
			return nil, fmt.Errorf("invalid short %q: %w", token, err)
		}
		buf := make([]byte, 2)
		binary.LittleEndian.PutUint16(buf, uint16(v))
		return buf, nil
	case vaddr.Int:
		v, err := strconv.ParseInt(token, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid int %q: %w", token, err)
		}
		buf := make([]byte, 4)
		binary.LittleEndian.PutUint32(buf, uint32(v))
		return buf, nil
	case vaddr.Long:
		v, err := strconv.ParseInt(token, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid long %q: %w", token, err)
		}
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint64(buf, uint64(v))
		return buf, nil
	case vaddr.Float:
		v, err := strconv.ParseFloat(token, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid float %q: %w", token, err)
		}
		buf := make([]byte, 4)
		binary.LittleEndian.PutUint32(buf, math.Float32bits(float32(v)))
		return buf, nil
	case vaddr.Double:
		v, err := strconv.ParseFloat(token, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid double %q: %w", token, err)
		}
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint64(buf, math.Float64bits(v))
		return buf, nil
	default:
		return nil, fmt.Errorf("cannot encode value of type %s", t)
	}
}

// decodeValue renders the raw bytes of a single element back into its
// human-readable form for the "print <pid>:<name>" command.
func decodeValue(t vaddr.DataType, data []byte) string {
	switch t {
	case vaddr.Char:
		return string(rune(data[0]))
	case vaddr.Short:
		return strconv.FormatInt(int64(int16(binary.LittleEndian.Uint16(data))), 10)
	case vaddr.Int:
		return strconv.FormatInt(int64(int32(binary.LittleEndian.Uint32(data))), 10)
	case vaddr.Long:
		return strconv.FormatInt(int64(binary.LittleEndian.Uint64(data)), 10)
	case vaddr.Float:
		return strconv.FormatFloat(float64(math.Float32frombits(binary.LittleEndian.Uint32(data))), 'f', 6, 32)
	case vaddr.Double:
		return strconv.FormatFloat(math.Float64frombits(binary.LittleEndian.Uint64(data)), 'f', 6, 64)
	default:
		return ""
	}
}

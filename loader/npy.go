package loader

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/sarchlab/npusim/kernels"
)

var npyMagic = []byte("\x93NUMPY")

// ReadNpyFile reads a C-ordered int8 NumPy array file.
func ReadNpyFile(path string) (*kernels.Tensor[int8], error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	t, err := ParseNpy(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// ParseNpy decodes an in-memory .npy image. Only the int8 dtype ('|i1' or
// 'i1') in C order is accepted, which is what the pack writer produces.
func ParseNpy(data []byte) (*kernels.Tensor[int8], error) {
	if len(data) < 10 || !bytes.Equal(data[:6], npyMagic) {
		return nil, fmt.Errorf("not an npy file")
	}

	major := data[6]
	var headerLen, offset int
	switch major {
	case 1:
		headerLen = int(binary.LittleEndian.Uint16(data[8:10]))
		offset = 10
	case 2, 3:
		if len(data) < 12 {
			return nil, fmt.Errorf("truncated npy header")
		}
		headerLen = int(binary.LittleEndian.Uint32(data[8:12]))
		offset = 12
	default:
		return nil, fmt.Errorf("unsupported npy version %d", major)
	}
	if offset+headerLen > len(data) {
		return nil, fmt.Errorf("truncated npy header")
	}

	header := string(data[offset : offset+headerLen])
	descr, err := headerField(header, "descr")
	if err != nil {
		return nil, err
	}
	descr = strings.Trim(descr, "'\"")
	if descr != "|i1" && descr != "i1" {
		return nil, fmt.Errorf("unsupported dtype %s, expected |i1", descr)
	}

	order, err := headerField(header, "fortran_order")
	if err != nil {
		return nil, err
	}
	if order != "False" {
		return nil, fmt.Errorf("fortran-ordered arrays are not supported")
	}

	shapeText, err := headerField(header, "shape")
	if err != nil {
		return nil, err
	}
	shape, err := parseShape(shapeText)
	if err != nil {
		return nil, err
	}

	body := data[offset+headerLen:]
	n, ok := kernels.NumElements(shape)
	if !ok {
		return nil, fmt.Errorf("npy shape %v overflows", shape)
	}
	if len(body) != n {
		return nil, fmt.Errorf("npy body holds %d bytes, shape %v needs %d", len(body), shape, n)
	}
	out := kernels.New[int8](shape...)
	for i, b := range body {
		out.Data[i] = int8(b)
	}
	return out, nil
}

// headerField extracts the raw text of one key of the npy header dict.
func headerField(header, key string) (string, error) {
	marker := "'" + key + "':"
	i := strings.Index(header, marker)
	if i < 0 {
		return "", fmt.Errorf("npy header has no %s", key)
	}
	rest := strings.TrimSpace(header[i+len(marker):])

	if strings.HasPrefix(rest, "(") {
		end := strings.Index(rest, ")")
		if end < 0 {
			return "", fmt.Errorf("malformed %s in npy header", key)
		}
		return rest[:end+1], nil
	}

	end := strings.IndexAny(rest, ",}")
	if end < 0 {
		return "", fmt.Errorf("malformed %s in npy header", key)
	}
	return strings.TrimSpace(rest[:end]), nil
}

func parseShape(text string) ([]int, error) {
	inner := strings.TrimSuffix(strings.TrimPrefix(text, "("), ")")
	var shape []int
	for _, part := range strings.Split(inner, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("bad npy shape %s", text)
		}
		shape = append(shape, n)
	}
	return shape, nil
}

// WriteNpyFile writes t as a version 1.0 int8 .npy file.
func WriteNpyFile(path string, t *kernels.Tensor[int8]) error {
	return os.WriteFile(path, EncodeNpy(t), 0o644)
}

// EncodeNpy encodes t as a version 1.0 .npy image with the header padded so
// the data starts on a 64-byte boundary.
func EncodeNpy(t *kernels.Tensor[int8]) []byte {
	dims := make([]string, len(t.Shape))
	for i, d := range t.Shape {
		dims[i] = strconv.Itoa(d)
	}
	shape := strings.Join(dims, ", ")
	if len(dims) == 1 {
		shape += ","
	}
	header := fmt.Sprintf("{'descr': '|i1', 'fortran_order': False, 'shape': (%s), }", shape)

	total := len(npyMagic) + 4 + len(header) + 1
	if pad := total % 64; pad != 0 {
		header += strings.Repeat(" ", 64-pad)
	}
	header += "\n"

	var buf bytes.Buffer
	buf.Write(npyMagic)
	buf.Write([]byte{1, 0})
	_ = binary.Write(&buf, binary.LittleEndian, uint16(len(header)))
	buf.WriteString(header)
	for _, v := range t.Data {
		buf.WriteByte(byte(v))
	}
	return buf.Bytes()
}

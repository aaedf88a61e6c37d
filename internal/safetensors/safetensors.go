// Package safetensors reads and writes the safetensors container: an 8-byte
// little-endian header length, a JSON header naming every tensor's dtype,
// shape and byte range, then the raw tensor bytes.
package safetensors

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"slices"

	"github.com/goccy/go-json"
	"golang.org/x/exp/mmap"
)

const (
	metadataKey = "__metadata__"
	// maxHeader bounds the header read from untrusted files.
	maxHeader = 100 << 20
)

// Info locates one tensor inside the data section.
type Info struct {
	DType   string   `json:"dtype"`
	Shape   []int    `json:"shape"`
	Offsets [2]int64 `json:"data_offsets"`
}

// File is an opened safetensors container.
type File struct {
	r        io.ReaderAt
	closer   io.Closer
	base     int64
	size     int64
	infos    map[string]Info
	Metadata map[string]string
}

// Open memory-maps the file at path and parses its header. The mapping
// stays open until Close.
func Open(path string) (*File, error) {
	r, err := mmap.Open(path)
	if err != nil {
		return nil, err
	}
	sf, err := Parse(r, int64(r.Len()))
	if err != nil {
		_ = r.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	sf.closer = r
	return sf, nil
}

// Parse reads the header from r, which holds size bytes.
func Parse(r io.ReaderAt, size int64) (*File, error) {
	var lenBuf [8]byte
	if _, err := r.ReadAt(lenBuf[:], 0); err != nil {
		return nil, fmt.Errorf("read header length: %w", err)
	}
	n := binary.LittleEndian.Uint64(lenBuf[:])
	if n > maxHeader || int64(n)+8 > size {
		return nil, fmt.Errorf("header length %d exceeds file size %d", n, size)
	}
	header := make([]byte, n)
	if _, err := r.ReadAt(header, 8); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(header, &raw); err != nil {
		return nil, fmt.Errorf("parse header: %w", err)
	}
	f := &File{r: r, base: 8 + int64(n), size: size - 8 - int64(n), infos: make(map[string]Info, len(raw))}
	for name, msg := range raw {
		if name == metadataKey {
			if err := json.Unmarshal(msg, &f.Metadata); err != nil {
				return nil, fmt.Errorf("parse metadata: %w", err)
			}
			continue
		}
		var info Info
		if err := json.Unmarshal(msg, &info); err != nil {
			return nil, fmt.Errorf("parse tensor %s: %w", name, err)
		}
		if info.Offsets[0] < 0 || info.Offsets[1] < info.Offsets[0] || info.Offsets[1] > f.size {
			return nil, fmt.Errorf("tensor %s: data offsets %v outside data section of %d bytes", name, info.Offsets, f.size)
		}
		f.infos[name] = info
	}
	return f, nil
}

func (f *File) Close() error {
	if f.closer == nil {
		return nil
	}
	return f.closer.Close()
}

// Names lists the tensors in f, sorted.
func (f *File) Names() []string {
	names := make([]string, 0, len(f.infos))
	for name := range f.infos {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (f *File) Info(name string) (Info, bool) {
	info, ok := f.infos[name]
	return info, ok
}

// Float32s decodes tensor name to float32. F32, F16 and BF16 are supported.
func (f *File) Float32s(name string) ([]float32, []int, error) {
	info, ok := f.infos[name]
	if !ok {
		return nil, nil, fmt.Errorf("tensor not found: %s", name)
	}
	count, err := elements(info.Shape)
	if err != nil {
		return nil, nil, fmt.Errorf("tensor %s: %w", name, err)
	}
	width, decode, err := decoder(info.DType)
	if err != nil {
		return nil, nil, fmt.Errorf("tensor %s: %w", name, err)
	}
	if got := info.Offsets[1] - info.Offsets[0]; got != int64(count*width) {
		return nil, nil, fmt.Errorf("tensor %s: %d bytes for %d %s elements", name, got, count, info.DType)
	}
	buf := make([]byte, count*width)
	if _, err := f.r.ReadAt(buf, f.base+info.Offsets[0]); err != nil {
		return nil, nil, fmt.Errorf("read tensor %s: %w", name, err)
	}
	out := make([]float32, count)
	for i := range out {
		out[i] = decode(buf[i*width:])
	}
	return out, slices.Clone(info.Shape), nil
}

func decoder(dtype string) (int, func([]byte) float32, error) {
	switch dtype {
	case "F32":
		return 4, func(b []byte) float32 { return math.Float32frombits(binary.LittleEndian.Uint32(b)) }, nil
	case "F16":
		return 2, func(b []byte) float32 { return halfToFloat(binary.LittleEndian.Uint16(b)) }, nil
	case "BF16":
		return 2, func(b []byte) float32 { return math.Float32frombits(uint32(binary.LittleEndian.Uint16(b)) << 16) }, nil
	}
	return 0, nil, fmt.Errorf("unsupported dtype %s", dtype)
}

func elements(shape []int) (int, error) {
	n := 1
	for _, d := range shape {
		if d < 0 {
			return 0, fmt.Errorf("negative dimension %d", d)
		}
		if d > 0 && n > math.MaxInt32/d {
			return 0, errors.New("tensor too large")
		}
		n *= d
	}
	return n, nil
}

// halfToFloat widens an IEEE 754 half-precision value.
func halfToFloat(h uint16) float32 {
	sign := uint32(h>>15) << 31
	exp := uint32(h>>10) & 0x1f
	frac := uint32(h) & 0x3ff
	switch {
	case exp == 0x1f:
		return math.Float32frombits(sign | 0x7f800000 | frac<<13)
	case exp == 0 && frac == 0:
		return math.Float32frombits(sign)
	case exp == 0:
		// subnormal: value is frac * 2^-24
		v := float32(frac) / (1 << 24)
		if sign != 0 {
			v = -v
		}
		return v
	}
	return math.Float32frombits(sign | (exp+112)<<23 | frac<<13)
}

// Tensor is an F32 tensor to write.
type Tensor struct {
	Name  string
	Shape []int
	Data  []float32
}

// Write stores tensors as F32 in the order given. The header is padded with
// spaces to an 8-byte boundary.
func Write(w io.Writer, tensors []Tensor, metadata map[string]string) error {
	header := make(map[string]any, len(tensors)+1)
	if len(metadata) > 0 {
		header[metadataKey] = metadata
	}
	var off int64
	for _, t := range tensors {
		count, err := elements(t.Shape)
		if err != nil {
			return fmt.Errorf("tensor %s: %w", t.Name, err)
		}
		if count != len(t.Data) {
			return fmt.Errorf("tensor %s: shape %v holds %d elements, have %d", t.Name, t.Shape, count, len(t.Data))
		}
		if _, dup := header[t.Name]; dup || t.Name == metadataKey {
			return fmt.Errorf("duplicate tensor name %q", t.Name)
		}
		end := off + int64(4*count)
		header[t.Name] = Info{DType: "F32", Shape: t.Shape, Offsets: [2]int64{off, end}}
		off = end
	}
	hb, err := json.Marshal(header)
	if err != nil {
		return err
	}
	for len(hb)%8 != 0 {
		hb = append(hb, ' ')
	}

	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(hb)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	if _, err := w.Write(hb); err != nil {
		return err
	}
	for _, t := range tensors {
		buf := make([]byte, 4*len(t.Data))
		for i, v := range t.Data {
			binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
		}
		if _, err := w.Write(buf); err != nil {
			return err
		}
	}
	return nil
}

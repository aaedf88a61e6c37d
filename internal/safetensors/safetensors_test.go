package safetensors

import (
	"bytes"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestWriteThenOpen(t *testing.T) {
	var buf bytes.Buffer
	err := Write(&buf, []Tensor{
		{Name: "b", Shape: []int{3}, Data: []float32{1, -2, 0.5}},
		{Name: "a", Shape: []int{2, 2}, Data: []float32{0, 1, 2, 3}},
	}, map[string]string{"format": "test"})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	hdr := binary.LittleEndian.Uint64(buf.Bytes()[:8])
	if hdr%8 != 0 {
		t.Fatalf("header length %d not 8-byte aligned", hdr)
	}

	path := filepath.Join(t.TempDir(), "t.safetensors")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	f, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()

	if got := f.Names(); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("Names = %v", got)
	}
	if f.Metadata["format"] != "test" {
		t.Fatalf("metadata = %v", f.Metadata)
	}
	info, ok := f.Info("b")
	if !ok || info.DType != "F32" || info.Offsets != [2]int64{0, 12} {
		t.Fatalf("Info(b) = %+v, %v", info, ok)
	}
	data, shape, err := f.Float32s("a")
	if err != nil {
		t.Fatalf("Float32s: %v", err)
	}
	if len(shape) != 2 || shape[0] != 2 || shape[1] != 2 {
		t.Fatalf("shape = %v", shape)
	}
	for i, v := range []float32{0, 1, 2, 3} {
		if data[i] != v {
			t.Fatalf("a[%d] = %f, want %f", i, data[i], v)
		}
	}
	if _, _, err := f.Float32s("missing"); err == nil {
		t.Fatal("expected error for missing tensor")
	}
}

func TestWriteRejectsShapeMismatch(t *testing.T) {
	err := Write(&bytes.Buffer{}, []Tensor{{Name: "x", Shape: []int{2, 2}, Data: []float32{1}}}, nil)
	if err == nil {
		t.Fatal("expected shape mismatch error")
	}
	err = Write(&bytes.Buffer{}, []Tensor{
		{Name: "x", Shape: []int{1}, Data: []float32{1}},
		{Name: "x", Shape: []int{1}, Data: []float32{2}},
	}, nil)
	if err == nil {
		t.Fatal("expected duplicate name error")
	}
}

func build(header string, data []byte) []byte {
	var out bytes.Buffer
	var n [8]byte
	binary.LittleEndian.PutUint64(n[:], uint64(len(header)))
	out.Write(n[:])
	out.WriteString(header)
	out.Write(data)
	return out.Bytes()
}

func TestHalfPrecision(t *testing.T) {
	data := make([]byte, 8)
	binary.LittleEndian.PutUint16(data[0:], 0x3c00) // 1.0
	binary.LittleEndian.PutUint16(data[2:], 0xc000) // -2.0
	binary.LittleEndian.PutUint16(data[4:], 0x3f80) // bf16 1.0
	binary.LittleEndian.PutUint16(data[6:], 0x4040) // bf16 3.0
	raw := build(`{"h":{"dtype":"F16","shape":[2],"data_offsets":[0,4]},"bf":{"dtype":"BF16","shape":[2],"data_offsets":[4,8]}}`, data)

	f, err := Parse(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	h, _, err := f.Float32s("h")
	if err != nil || h[0] != 1 || h[1] != -2 {
		t.Fatalf("F16 = %v, %v", h, err)
	}
	bf, _, err := f.Float32s("bf")
	if err != nil || bf[0] != 1 || bf[1] != 3 {
		t.Fatalf("BF16 = %v, %v", bf, err)
	}
}

func TestHalfToFloatSpecials(t *testing.T) {
	if v := halfToFloat(0x7c00); !math.IsInf(float64(v), 1) {
		t.Fatalf("+inf = %f", v)
	}
	if v := halfToFloat(0x0001); v != float32(math.Ldexp(1, -24)) {
		t.Fatalf("smallest subnormal = %g", v)
	}
	if v := halfToFloat(0x8000); v != 0 || !math.Signbit(float64(v)) {
		t.Fatalf("-0 = %f", v)
	}
}

func TestParseRejectsBadInput(t *testing.T) {
	cases := map[string][]byte{
		"short":        {1, 2, 3},
		"huge":         build("", nil)[:0],
		"bad json":     build("{nope", nil),
		"out of range": build(`{"x":{"dtype":"F32","shape":[4],"data_offsets":[0,16]}}`, make([]byte, 8)),
	}
	cases["huge"] = append(binary.LittleEndian.AppendUint64(nil, 1<<40), '{', '}')
	for name, raw := range cases {
		if _, err := Parse(bytes.NewReader(raw), int64(len(raw))); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}

	raw := build(`{"x":{"dtype":"I8","shape":[2],"data_offsets":[0,2]}}`, make([]byte, 2))
	f, err := Parse(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, _, err := f.Float32s("x"); err == nil {
		t.Fatal("expected unsupported dtype error")
	}
}

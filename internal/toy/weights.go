package toy

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/gofrs/flock"

	"github.com/samcharles93/infill/internal/safetensors"
)

// Save writes the model weights as safetensors.
func (m *LM) Save(w io.Writer) error {
	return safetensors.Write(w, []safetensors.Tensor{
		{Name: "emb", Shape: []int{m.Vocab, m.Hidden}, Data: m.Emb.Data},
		{Name: "w", Shape: []int{m.Vocab, m.Hidden}, Data: m.W.Data},
		{Name: "bias", Shape: []int{m.Vocab}, Data: m.Bias},
	}, map[string]string{
		"format": "infill-toy",
		"vocab":  strconv.Itoa(m.Vocab),
		"hidden": strconv.Itoa(m.Hidden),
	})
}

// SaveFile writes the model weights to path. Writers to the same path are
// serialised through a lock file and readers never see a partial file.
func (m *LM) SaveFile(path string) (err error) {
	lockPath := path + ".lock"
	lock := flock.New(lockPath)
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("lock %s: %w", lockPath, err)
	}
	defer func() {
		if uerr := lock.Unlock(); uerr != nil && err == nil {
			err = fmt.Errorf("unlock %s: %w", lockPath, uerr)
		}
		_ = os.Remove(lockPath)
	}()

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := m.Save(f); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// Load reads weights written by Save.
func Load(path string) (*LM, error) {
	f, err := safetensors.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	emb, shape, err := f.Float32s("emb")
	if err != nil {
		return nil, err
	}
	if len(shape) != 2 || shape[0] <= 0 || shape[1] <= 0 {
		return nil, fmt.Errorf("%s: emb shape %v is not [vocab, hidden]", path, shape)
	}
	vocab, hidden := shape[0], shape[1]

	w, wshape, err := f.Float32s("w")
	if err != nil {
		return nil, err
	}
	if len(wshape) != 2 || wshape[0] != vocab || wshape[1] != hidden {
		return nil, fmt.Errorf("%s: w shape %v, want [%d %d]", path, wshape, vocab, hidden)
	}
	bias, bshape, err := f.Float32s("bias")
	if err != nil {
		return nil, err
	}
	if len(bshape) != 1 || bshape[0] != vocab {
		return nil, fmt.Errorf("%s: bias shape %v, want [%d]", path, bshape, vocab)
	}
	return &LM{
		Vocab:  vocab,
		Hidden: hidden,
		Emb:    Mat{R: vocab, C: hidden, Data: emb},
		W:      Mat{R: vocab, C: hidden, Data: w},
		Bias:   bias,
		h:      make([]float32, hidden),
	}, nil
}

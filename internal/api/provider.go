package api

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/samcharles93/infill/internal/inference"
	"github.com/samcharles93/infill/internal/registry"
)

// HandleProvider hands out the model handle requests run against.
type HandleProvider interface {
	WithHandle(ctx context.Context, model string, fn func(h *inference.Handle) error) error
	Current() (*inference.Handle, bool)
	ListModels() ([]string, error)
}

type ProviderConfig struct {
	// Default is used when a request names no model.
	Default registry.Spec
	// ModelsPath is a directory of tokenizer files or model directories
	// that requests may name.
	ModelsPath string
}

// RegistryProvider resolves model names to registry specs. Naming a model
// other than the live one replaces it.
type RegistryProvider struct {
	cfg ProviderConfig
	reg *registry.Registry
}

const envModelsDir = "INFILL_MODELS_DIR"

var tokenizerExts = []string{".json", ".model"}

func NewRegistryProvider(reg *registry.Registry, cfg ProviderConfig) *RegistryProvider {
	return &RegistryProvider{cfg: cfg, reg: reg}
}

func (p *RegistryProvider) WithHandle(ctx context.Context, model string, fn func(h *inference.Handle) error) error {
	spec, err := p.resolve(model)
	if err != nil {
		return err
	}
	h, err := p.reg.Acquire(ctx, spec)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(h)
}

func (p *RegistryProvider) Current() (*inference.Handle, bool) {
	return p.reg.Current()
}

// ListModels names the default model and every tokenizer in the models
// directory.
func (p *RegistryProvider) ListModels() ([]string, error) {
	var out []string
	if p.cfg.Default.Tokenizer != "" {
		out = append(out, modelName(p.cfg.Default.Tokenizer))
	}
	if dir := p.modelsDir(); dir != "" {
		found, err := DiscoverModels(dir)
		if err != nil {
			return nil, err
		}
		for _, path := range found {
			out = append(out, modelName(path))
		}
	}
	slices.Sort(out)
	return slices.Compact(out), nil
}

func (p *RegistryProvider) resolve(model string) (registry.Spec, error) {
	spec := p.cfg.Default
	model = strings.TrimSpace(model)
	if model == "" {
		if spec.Tokenizer != "" {
			return spec, nil
		}
		dir := p.modelsDir()
		if dir == "" {
			return spec, newInvalidRequest("model is required")
		}
		found, err := DiscoverModels(dir)
		if err != nil {
			return spec, err
		}
		switch len(found) {
		case 1:
			spec.Tokenizer = found[0]
			return spec, nil
		case 0:
			return spec, fmt.Errorf("%w: no tokenizers in %s", ErrModelNotFound, dir)
		default:
			return spec, newInvalidRequest(fmt.Sprintf("multiple models found in %s; specify model", dir))
		}
	}
	if spec.Tokenizer != "" && model == modelName(spec.Tokenizer) {
		return spec, nil
	}
	// Pinned weights are sized to the default tokenizer only.
	spec.Weights = ""
	if looksLikePath(model) {
		spec.Tokenizer = filepath.Clean(model)
		return spec, nil
	}
	if resolved := resolveInDir(p.modelsDir(), model); resolved != "" {
		spec.Tokenizer = resolved
		return spec, nil
	}
	return spec, fmt.Errorf("%w: %q", ErrModelNotFound, model)
}

func (p *RegistryProvider) modelsDir() string {
	if dir := strings.TrimSpace(p.cfg.ModelsPath); dir != "" {
		return dir
	}
	return strings.TrimSpace(os.Getenv(envModelsDir))
}

func looksLikePath(v string) bool {
	if strings.Contains(v, string(filepath.Separator)) {
		return true
	}
	return slices.Contains(tokenizerExts, strings.ToLower(filepath.Ext(v)))
}

func resolveInDir(dir, name string) string {
	if dir == "" {
		return ""
	}
	cand := filepath.Join(dir, name)
	if exists(cand) {
		return cand
	}
	for _, ext := range tokenizerExts {
		if cand := filepath.Join(dir, name+ext); exists(cand) {
			return cand
		}
	}
	return ""
}

// DiscoverModels lists tokenizer files and model directories holding a
// tokenizer in dir.
func DiscoverModels(dir string) ([]string, error) {
	st, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !st.IsDir() {
		return nil, fmt.Errorf("models path is not a directory: %s", dir)
	}
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	models := make([]string, 0, len(ents))
	for _, e := range ents {
		path := filepath.Join(dir, e.Name())
		if e.IsDir() {
			if exists(filepath.Join(path, "tokenizer.json")) || exists(filepath.Join(path, "tokenizer.model")) {
				models = append(models, path)
			}
			continue
		}
		if slices.Contains(tokenizerExts, strings.ToLower(filepath.Ext(e.Name()))) {
			models = append(models, path)
		}
	}
	return models, nil
}

func modelName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func exists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

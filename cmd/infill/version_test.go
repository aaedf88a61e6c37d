package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/samcharles93/infill/internal/version"
)

func TestPrintVersion(t *testing.T) {
	info := version.Info{Version: "v0.3.0", Commit: "abc1234", Modified: true}

	var buf bytes.Buffer
	if err := printVersion(&buf, info, false); err != nil {
		t.Fatalf("printVersion: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"version:    v0.3.0", "commit:     abc1234 (modified)", "go:         go"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in %q", want, out)
		}
	}
	if strings.Contains(out, "build time") {
		t.Errorf("empty build time should be omitted: %q", out)
	}

	buf.Reset()
	if err := printVersion(&buf, info, true); err != nil {
		t.Fatalf("printVersion json: %v", err)
	}
	if !strings.Contains(buf.String(), `"version":"v0.3.0"`) || !strings.Contains(buf.String(), `"modified":true`) {
		t.Errorf("unexpected JSON: %s", buf.String())
	}
}

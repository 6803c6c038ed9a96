package enginetest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// ErrUnsupported is returned by Build when no Go toolchain that targets
// wasip1/wasm is available.
var ErrUnsupported = errors.New("go toolchain cannot build wasip1/wasm")

// Build compiles ./cmd/engine of the enclosing module into dir and returns
// the path of the resulting engine.wasm.
func Build(ctx context.Context, dir string) (string, error) {
	goBin, err := exec.LookPath("go")
	if err != nil {
		return "", ErrUnsupported
	}

	targets, err := exec.CommandContext(ctx, goBin, "tool", "dist", "list").Output()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	if !containsLine(targets, "wasip1/wasm") {
		return "", ErrUnsupported
	}

	gomod, err := exec.CommandContext(ctx, goBin, "env", "GOMOD").Output()
	if err != nil {
		return "", fmt.Errorf("failed to locate module root: %w", err)
	}
	root := filepath.Dir(strings.TrimSpace(string(gomod)))

	out := filepath.Join(dir, "engine.wasm")
	cmd := exec.CommandContext(ctx, goBin, "build", "-buildmode=c-shared", "-o", out, "./cmd/engine")
	cmd.Dir = root
	cmd.Env = append(os.Environ(), "GOOS=wasip1", "GOARCH=wasm", "CGO_ENABLED=0")
	if output, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("failed to build engine module: %w\n%s", err, output)
	}
	return out, nil
}

func containsLine(b []byte, line string) bool {
	for _, l := range bytes.Split(b, []byte("\n")) {
		if string(bytes.TrimSpace(l)) == line {
			return true
		}
	}
	return false
}

var module struct {
	once sync.Once
	dir  string
	path string
	err  error
}

// Module returns the path of an engine module built once per test binary.
// The test is skipped in -short mode or when the toolchain cannot target
// wasip1. Call Cleanup from TestMain to remove the build directory.
func Module(t testing.TB) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping engine module build in short mode")
	}

	module.once.Do(func() {
		module.dir, module.err = os.MkdirTemp("", "enginetest")
		if module.err != nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		module.path, module.err = Build(ctx, module.dir)
	})

	if errors.Is(module.err, ErrUnsupported) {
		t.Skip(module.err)
	}
	require.NoError(t, module.err)
	return module.path
}

// Cleanup removes the module built by Module, if any.
func Cleanup() {
	if module.dir != "" {
		os.RemoveAll(module.dir)
	}
}

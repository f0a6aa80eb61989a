package capability

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// FileBackend serves file operations confined to a sandbox root.
// Paths that resolve outside the root are rejected without retry.
type FileBackend struct {
	Root string
}

// NewFileBackend creates a file backend rooted at dir.
func NewFileBackend(dir string) *FileBackend {
	return &FileBackend{Root: dir}
}

// Invoke handles read, write, list, copy and delete operations.
func (f *FileBackend) Invoke(ctx context.Context, inv Invocation) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch inv.Operation {
	case "read":
		return f.read(inv.Params)
	case "write":
		return f.write(inv.Params)
	case "list":
		return f.list(inv.Params)
	case "copy":
		return f.copy(inv.Params)
	case "delete":
		return f.delete(inv.Params)
	default:
		return nil, NonRetryable(fmt.Errorf("unknown file operation: %s", inv.Operation))
	}
}

// resolve joins rel onto the root and rejects escapes.
func (f *FileBackend) resolve(rel string) (string, error) {
	abs := filepath.Join(f.Root, filepath.Clean("/"+rel))
	if abs != f.Root && !strings.HasPrefix(abs, f.Root+string(filepath.Separator)) {
		return "", NonRetryable(fmt.Errorf("path escapes sandbox: %s", rel))
	}
	return abs, nil
}

func (f *FileBackend) read(params map[string]any) (any, error) {
	rel, err := stringParam(params, "path")
	if err != nil {
		return nil, err
	}
	path, err := f.resolve(rel)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rel, err)
	}
	return string(data), nil
}

func (f *FileBackend) write(params map[string]any) (any, error) {
	rel, err := stringParam(params, "path")
	if err != nil {
		return nil, err
	}
	content := optStringParam(params, "content", "")

	path, err := f.resolve(rel)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create parent dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return nil, fmt.Errorf("write %s: %w", rel, err)
	}
	return fmt.Sprintf("wrote %d bytes to %s", len(content), rel), nil
}

func (f *FileBackend) list(params map[string]any) (any, error) {
	pattern := optStringParam(params, "pattern", "**/*")

	matches, err := doublestar.Glob(os.DirFS(f.Root), pattern)
	if err != nil {
		return nil, NonRetryable(fmt.Errorf("bad glob pattern %q: %w", pattern, err))
	}
	sort.Strings(matches)
	return matches, nil
}

func (f *FileBackend) copy(params map[string]any) (any, error) {
	srcRel, err := stringParam(params, "src")
	if err != nil {
		return nil, err
	}
	dstRel, err := stringParam(params, "dst")
	if err != nil {
		return nil, err
	}

	src, err := f.resolve(srcRel)
	if err != nil {
		return nil, err
	}
	dst, err := f.resolve(dstRel)
	if err != nil {
		return nil, err
	}

	in, err := os.Open(src)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", srcRel, err)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return nil, fmt.Errorf("create parent dir: %w", err)
	}
	out, err := os.Create(dst)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", dstRel, err)
	}
	defer out.Close()

	n, err := io.Copy(out, in)
	if err != nil {
		return nil, fmt.Errorf("copy: %w", err)
	}
	return fmt.Sprintf("copied %d bytes to %s", n, dstRel), nil
}

func (f *FileBackend) delete(params map[string]any) (any, error) {
	rel, err := stringParam(params, "path")
	if err != nil {
		return nil, err
	}
	path, err := f.resolve(rel)
	if err != nil {
		return nil, err
	}
	if err := os.Remove(path); err != nil {
		return nil, fmt.Errorf("delete %s: %w", rel, err)
	}
	return "deleted " + rel, nil
}

package processor

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"thumbnailer/internal/pkg/logger"
	"thumbnailer/internal/ports"
	"thumbnailer/internal/storage"
)

// fakeTool writes $3 files named Thumbnail%06d.jpg into $2, echoes its
// input on stdout, reports on stderr and exits with $4.
const fakeTool = `#!/bin/sh
src="$1"
dir="$2"
n="${3:-1}"
code="${4:-0}"
i=1
while [ "$i" -le "$n" ]; do
  printf 'frame %s' "$i" > "$dir/$(printf 'Thumbnail%06d.jpg' "$i")"
  i=$((i+1))
done
echo "input $src"
echo "wrote $n frames" >&2
exit "$code"
`

// writeScript installs an executable shell script and returns its path.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script tools need a POSIX shell")
	}

	path := filepath.Join(t.TempDir(), "tool.sh")
	if err := os.WriteFile(path, []byte(body), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

// memProvider is an in-memory store for mem:// locations. A location is
// signed when its query has sig=.
type memProvider struct {
	mu        sync.Mutex
	objects   map[string][]byte
	types     map[string]string
	failNames map[string]bool
	signErr   error
	signCalls int
}

func newMemProvider() *memProvider {
	return &memProvider{
		objects:   make(map[string][]byte),
		types:     make(map[string]string),
		failNames: make(map[string]bool),
	}
}

func (m *memProvider) Provider() string { return "mem" }

func (m *memProvider) Signed(u *url.URL) bool {
	return u != nil && u.Scheme == "mem" && strings.Contains(u.RawQuery, "sig=")
}

func (m *memProvider) SignRead(ctx context.Context, u *url.URL, ttl time.Duration) (ports.SignedURLOutput, error) {
	return m.sign(u, ttl)
}

func (m *memProvider) SignWrite(ctx context.Context, u *url.URL, ttl time.Duration) (ports.SignedURLOutput, error) {
	return m.sign(u, ttl)
}

func (m *memProvider) sign(u *url.URL, ttl time.Duration) (ports.SignedURLOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.signErr != nil {
		return ports.SignedURLOutput{}, m.signErr
	}
	m.signCalls++

	signed := *u
	signed.RawQuery = fmt.Sprintf("sig=minted-%d", m.signCalls)
	return ports.SignedURLOutput{URL: signed.String(), ExpiresAt: time.Now().Add(ttl)}, nil
}

func (m *memProvider) PutObject(ctx context.Context, in ports.PutObjectInput) (ports.PutObjectOutput, error) {
	body, err := io.ReadAll(in.Reader)
	if err != nil {
		return ports.PutObjectOutput{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failNames[in.ObjectKey] {
		return ports.PutObjectOutput{}, fmt.Errorf("store rejected %s", in.ObjectKey)
	}

	m.objects[in.ObjectKey] = body
	m.types[in.ObjectKey] = in.ContentType
	return ports.PutObjectOutput{ObjectKey: in.ObjectKey, Size: int64(len(body))}, nil
}

func (m *memProvider) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}

func (m *memProvider) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.signCalls
}

func newTestRegistry(p *memProvider) *storage.Registry {
	r := storage.NewRegistry()
	r.Register(p, "mem")
	return r
}

type testEnv struct {
	proc     *Processor
	store    *memProvider
	tempRoot string
}

func newTestEnv(t *testing.T, toolPath string, timeout time.Duration) *testEnv {
	t.Helper()

	store := newMemProvider()
	tempRoot := t.TempDir()

	proc := New(Deps{
		Registry:        newTestRegistry(store),
		ToolPath:        toolPath,
		TempRoot:        tempRoot,
		WorkspacePrefix: "thumbnails",
		ToolTimeout:     timeout,
		CredentialTTL:   time.Hour,
		Log:             logger.Discard(),
	})

	return &testEnv{proc: proc, store: store, tempRoot: tempRoot}
}

// assertNoWorkspaces fails when anything is left under the temp root.
func (e *testEnv) assertNoWorkspaces(t *testing.T) {
	t.Helper()

	entries, err := os.ReadDir(e.tempRoot)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		names := make([]string, 0, len(entries))
		for _, en := range entries {
			names = append(names, en.Name())
		}
		t.Errorf("expected temp root to be empty, found %v", names)
	}
}

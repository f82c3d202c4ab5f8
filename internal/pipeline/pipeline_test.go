package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tanq16/mediarelay/internal/resolver"
	"github.com/tanq16/mediarelay/internal/store"
)

type stubResolver struct {
	mu        sync.Mutex
	calls     int
	stdout    string
	err       error
	writeName string
	writeSize int
}

func (s *stubResolver) ResolveURL(_ context.Context, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.stdout, s.err
}

func (s *stubResolver) Materialize(_ context.Context, _ string, dir string) error {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if s.writeName == "" {
		return nil
	}
	return os.WriteFile(filepath.Join(dir, s.writeName), make([]byte, s.writeSize), 0644)
}

func newTestService(t *testing.T, r resolver.Resolver) *Service {
	t.Helper()
	s, err := store.New(t.TempDir())
	require.NoError(t, err)
	return NewService(r, s)
}

func workspaceCount(t *testing.T, s *store.Store) int {
	t.Helper()
	entries, err := os.ReadDir(s.Root())
	require.NoError(t, err)
	return len(entries)
}

func TestService_ResolveDirectURL(t *testing.T) {
	t.Run("Should return the last non-empty line", func(t *testing.T) {
		stub := &stubResolver{stdout: "warning: x\nhttps://cdn.example/v.mp4\n\n"}
		svc := newTestService(t, stub)
		got, err := svc.ResolveDirectURL(context.Background(), "https://example.com/v")
		require.NoError(t, err)
		assert.Equal(t, "https://cdn.example/v.mp4", got)
	})

	t.Run("Should reject invalid input without invoking the resolver", func(t *testing.T) {
		stub := &stubResolver{stdout: "https://cdn.example/v.mp4"}
		svc := newTestService(t, stub)
		for _, raw := range []string{"", "ftp://example.com/a", "not a url", "//example.com/v"} {
			_, err := svc.ResolveDirectURL(context.Background(), raw)
			assert.ErrorIs(t, err, resolver.ErrInvalidInput, raw)
		}
		assert.Equal(t, 0, stub.calls)
	})

	t.Run("Should surface tool failures unchanged and without retry", func(t *testing.T) {
		stub := &stubResolver{err: resolver.ErrExternalTool}
		svc := newTestService(t, stub)
		_, err := svc.ResolveDirectURL(context.Background(), "https://example.com/v")
		assert.ErrorIs(t, err, resolver.ErrExternalTool)
		assert.Equal(t, 1, stub.calls)
	})

	t.Run("Should treat empty output as a tool failure", func(t *testing.T) {
		svc := newTestService(t, &stubResolver{stdout: "\n\n"})
		_, err := svc.ResolveDirectURL(context.Background(), "https://example.com/v")
		assert.ErrorIs(t, err, resolver.ErrExternalTool)
	})
}

func TestService_Materialize(t *testing.T) {
	t.Run("Should return the produced file in its own workspace", func(t *testing.T) {
		svc := newTestService(t, &stubResolver{writeName: "clip.mp4", writeSize: 1000})
		ws, f, err := svc.Materialize(context.Background(), "https://example.com/v")
		require.NoError(t, err)
		assert.Equal(t, "clip.mp4", f.Name)
		assert.Equal(t, int64(1000), f.SizeBytes)
		assert.Equal(t, ws.Dir, filepath.Dir(f.Path))
		assert.Equal(t, 1, svc.Store().Active())

		require.NoError(t, ws.Release())
		assert.Equal(t, 0, workspaceCount(t, svc.Store()))
	})

	t.Run("Should report NoOutputProduced and clean up", func(t *testing.T) {
		svc := newTestService(t, &stubResolver{})
		_, _, err := svc.Materialize(context.Background(), "https://example.com/v")
		assert.ErrorIs(t, err, store.ErrNoOutputProduced)
		assert.Equal(t, 0, workspaceCount(t, svc.Store()))
		assert.Equal(t, 0, svc.Store().Active())
	})

	t.Run("Should clean up after a tool failure", func(t *testing.T) {
		svc := newTestService(t, &stubResolver{err: errors.Join(resolver.ErrExternalTool, errors.New("exit 1"))})
		_, _, err := svc.Materialize(context.Background(), "https://example.com/v")
		assert.ErrorIs(t, err, resolver.ErrExternalTool)
		assert.Equal(t, 0, workspaceCount(t, svc.Store()))
	})

	t.Run("Should keep concurrent requests apart", func(t *testing.T) {
		svc := newTestService(t, &stubResolver{writeName: "clip.mp4", writeSize: 10})
		const n = 8
		var wg sync.WaitGroup
		paths := make(chan string, n)
		for range n {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ws, f, err := svc.Materialize(context.Background(), "https://example.com/v")
				if !assert.NoError(t, err) {
					return
				}
				paths <- f.Path
				assert.NoError(t, ws.Release())
			}()
		}
		wg.Wait()
		close(paths)
		seen := map[string]bool{}
		for p := range paths {
			assert.False(t, seen[p])
			seen[p] = true
		}
		assert.Len(t, seen, n)
		assert.Equal(t, 0, workspaceCount(t, svc.Store()))
	})
}

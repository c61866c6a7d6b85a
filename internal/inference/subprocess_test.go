package inference

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeServerEnv makes the test binary act as llama-server. Its value names
// a file that gets one line per spawned server.
const fakeServerEnv = "AISERVER_FAKE_LLAMA_SERVER"

func TestMain(m *testing.M) {
	if spawns := os.Getenv(fakeServerEnv); spawns != "" {
		runFakeLlamaServer(spawns, os.Args[1:])
		os.Exit(0)
	}
	os.Exit(m.Run())
}

// runFakeLlamaServer serves /v1/models and a one-fragment completion stream
// on the --host/--port it was given.
func runFakeLlamaServer(spawns string, args []string) {
	var host, port string
	for i := 0; i+1 < len(args); i++ {
		switch args[i] {
		case "--host":
			host = args[i+1]
		case "--port":
			port = args[i+1]
		}
	}
	f, err := os.OpenFile(spawns, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err == nil {
		fmt.Fprintln(f, os.Getpid())
		f.Close()
	}
	// model load time
	time.Sleep(200 * time.Millisecond)
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/models", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":[{"id":"m"}]}`)
	})
	mux.HandleFunc("/v1/completions", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"text\":\" from spawn\"}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	})
	_ = http.ListenAndServe(net.JoinHostPort(host, port), mux)
}

func newFakeSpawnAdapter(t *testing.T) (*SubprocessAdapter, string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("signals unsupported on windows")
	}
	bin, err := os.Executable()
	require.NoError(t, err)
	spawns := filepath.Join(t.TempDir(), "spawns")
	a := NewSubprocessAdapter(SubprocessConfig{
		Bin:          bin,
		ReadyTimeout: 20 * time.Second,
		Env:          []string{fakeServerEnv + "=" + spawns},
	}, zerolog.Nop())
	t.Cleanup(func() { _ = a.Close() })
	return a, spawns
}

func spawnCount(t *testing.T, spawns string) int {
	t.Helper()
	b, err := os.ReadFile(spawns)
	if os.IsNotExist(err) {
		return 0
	}
	require.NoError(t, err)
	return strings.Count(string(b), "\n")
}

func TestSubprocessConcurrentStartSpawnsOnce(t *testing.T) {
	a, spawns := newFakeSpawnAdapter(t)
	modelPath := filepath.Join(t.TempDir(), "m.gguf")

	const n = 4
	var wg sync.WaitGroup
	urls := make([]string, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := a.Start(modelPath, DefaultParams())
			errs[i] = err
			if err == nil {
				urls[i] = s.(*subprocessSession).baseURL
			}
		}(i)
	}
	wg.Wait()
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, urls[0], urls[i])
	}
	assert.Equal(t, 1, spawnCount(t, spawns))

	s, err := a.Start(modelPath, DefaultParams())
	require.NoError(t, err)
	res, err := s.Generate(context.Background(), "hi", nil)
	require.NoError(t, err)
	assert.Equal(t, " from spawn", res.Content)
	assert.Equal(t, 1, spawnCount(t, spawns))

	require.NoError(t, a.Close())
	assert.Empty(t, a.procs)
	assert.False(t, modelsReachable(context.Background(), &http.Client{}, urls[0], 300*time.Millisecond))
}

func TestSubprocessRestartsDeadServer(t *testing.T) {
	a, spawns := newFakeSpawnAdapter(t)
	modelPath := filepath.Join(t.TempDir(), "m.gguf")

	_, err := a.Start(modelPath, DefaultParams())
	require.NoError(t, err)
	a.mu.Lock()
	p := a.procs[modelPath]
	a.mu.Unlock()
	require.NotNil(t, p)
	require.NoError(t, p.cmd.Process.Kill())
	<-p.exited

	_, err = a.Start(modelPath, DefaultParams())
	require.NoError(t, err)
	assert.Equal(t, 2, spawnCount(t, spawns))
}

func TestSubprocessCloseWhileStarting(t *testing.T) {
	a, _ := newFakeSpawnAdapter(t)
	modelPath := filepath.Join(t.TempDir(), "m.gguf")

	errCh := make(chan error, 1)
	go func() {
		_, err := a.Start(modelPath, DefaultParams())
		errCh <- err
	}()
	require.Eventually(t, func() bool {
		a.mu.Lock()
		defer a.mu.Unlock()
		return a.procs[modelPath] != nil
	}, 5*time.Second, time.Millisecond)
	require.NoError(t, a.Close())

	select {
	case err := <-errCh:
		require.Error(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Start did not return after Close")
	}
	assert.Empty(t, a.procs)
}

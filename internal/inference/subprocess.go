package inference

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"aiserver/internal/common/procutil"
)

// SubprocessConfig tunes the spawned llama-server.
type SubprocessConfig struct {
	Bin       string
	Host      string
	CtxSize   int
	Threads   int
	GPULayers int
	ExtraArgs []string
	// ReadyTimeout bounds the wait for /v1/models after spawn.
	ReadyTimeout time.Duration
	// Env is appended to the child's environment.
	Env []string
}

// SubprocessAdapter spawns one llama-server per model path and reuses it for
// later sessions.
type SubprocessAdapter struct {
	cfg        SubprocessConfig
	mu         sync.Mutex
	procs      map[string]*procInfo
	httpClient *http.Client
	log        zerolog.Logger
}

// procInfo is the per-model spawn entry. It is registered before the
// process starts so concurrent callers for the same model wait on starting
// instead of spawning a second server.
type procInfo struct {
	starting chan struct{} // closed once the server is ready or failed
	err      error         // set before starting is closed

	// guarded by SubprocessAdapter.mu
	cmd     *exec.Cmd
	baseURL string
	stopped bool

	exited  chan struct{}
	waitErr error // set before exited is closed
	tail    *procutil.Tail
}

// NewSubprocessAdapter constructs a spawn-mode adapter.
func NewSubprocessAdapter(cfg SubprocessConfig, log zerolog.Logger) *SubprocessAdapter {
	if strings.TrimSpace(cfg.Host) == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = 60 * time.Second
	}
	return &SubprocessAdapter{
		cfg:        cfg,
		procs:      make(map[string]*procInfo),
		httpClient: &http.Client{},
		log:        log.With().Str("adapter", "llama_subprocess").Logger(),
	}
}

// Start ensures a server for modelPath is running and ready.
func (a *SubprocessAdapter) Start(modelPath string, params Params) (Session, error) {
	if strings.TrimSpace(modelPath) == "" {
		return nil, errors.New("model path is empty")
	}
	baseURL, err := a.ensureProcess(modelPath)
	if err != nil {
		return nil, err
	}
	return &subprocessSession{a: a, baseURL: baseURL, params: params}, nil
}

type subprocessSession struct {
	a       *SubprocessAdapter
	baseURL string
	params  Params
}

func (s *subprocessSession) Generate(ctx context.Context, prompt string, onToken func(string) error) (Result, error) {
	req := newCompletionRequest("", prompt, s.params)
	return streamCompletion(ctx, s.a.httpClient, s.baseURL, "", req, onToken, s.a.log)
}

func (s *subprocessSession) Close() error { return nil }

// ensureProcess returns the base URL of a ready server for modelPath,
// spawning one if none is running or starting.
func (a *SubprocessAdapter) ensureProcess(modelPath string) (string, error) {
	for {
		a.mu.Lock()
		p := a.procs[modelPath]
		if p == nil {
			p = &procInfo{starting: make(chan struct{})}
			a.procs[modelPath] = p
			a.mu.Unlock()
			a.spawn(modelPath, p)
			if p.err != nil {
				return "", p.err
			}
			return p.baseURL, nil
		}
		a.mu.Unlock()

		<-p.starting
		if p.err != nil {
			return "", p.err
		}
		if modelsReachable(context.Background(), a.httpClient, p.baseURL, time.Second) {
			return p.baseURL, nil
		}
		a.log.Warn().Str("model", modelPath).Msg("llama-server unhealthy, restarting")
		a.forget(modelPath, p)
		_ = a.terminate(modelPath, p)
	}
}

// spawn starts llama-server for p and waits for readiness. It always closes
// p.starting; on failure p.err is set and p is no longer registered.
func (a *SubprocessAdapter) spawn(modelPath string, p *procInfo) {
	fail := func(err error) {
		p.err = err
		a.forget(modelPath, p)
		close(p.starting)
	}
	bin, err := resolveBin(a.cfg.Bin)
	if err != nil {
		fail(err)
		return
	}
	port, err := pickFreePort(a.cfg.Host)
	if err != nil {
		fail(err)
		return
	}
	baseURL := fmt.Sprintf("http://%s:%d", a.cfg.Host, port)
	args := []string{"-m", modelPath, "--host", a.cfg.Host, "--port", strconv.Itoa(port)}
	if a.cfg.CtxSize > 0 {
		args = append(args, "-c", strconv.Itoa(a.cfg.CtxSize))
	}
	if a.cfg.GPULayers > 0 {
		args = append(args, "-ngl", strconv.Itoa(a.cfg.GPULayers))
	}
	if a.cfg.Threads > 0 {
		args = append(args, "-t", strconv.Itoa(a.cfg.Threads))
	}
	args = append(args, a.cfg.ExtraArgs...)

	cmd := exec.Command(bin, args...)
	cmd.Dir = filepath.Dir(modelPath)
	cmd.Env = append(os.Environ(), a.cfg.Env...)
	stderr, err := cmd.StderrPipe()
	if err != nil {
		fail(err)
		return
	}
	if err := cmd.Start(); err != nil {
		fail(fmt.Errorf("start llama-server: %w", err))
		return
	}
	log := a.log.With().Str("model", modelPath).Int("pid", cmd.Process.Pid).Logger()
	log.Info().Str("url", baseURL).Msg("llama-server started")

	p.exited = make(chan struct{})
	p.tail = procutil.NewTail(4096)
	go func() {
		_ = procutil.ScanLines(stderr, func(line string) {
			p.tail.WriteLine(line)
			log.Debug().Str("stream", "stderr").Msg(line)
		})
		p.waitErr = cmd.Wait()
		close(p.exited)
	}()

	a.mu.Lock()
	p.cmd, p.baseURL = cmd, baseURL
	stopped := p.stopped
	a.mu.Unlock()
	if stopped {
		_ = cmd.Process.Kill()
		<-p.exited
		fail(errors.New("llama-server stopped before ready"))
		return
	}

	deadline := time.Now().Add(a.cfg.ReadyTimeout)
	for {
		select {
		case <-p.exited:
			log.Warn().AnErr("exit", p.waitErr).Msg("llama-server exited before ready")
			fail(fmt.Errorf("llama-server exited before ready: %v; stderr tail: %s", p.waitErr, p.tail.String()))
			return
		default:
		}
		if modelsReachable(context.Background(), a.httpClient, baseURL, time.Second) {
			break
		}
		if time.Now().After(deadline) {
			log.Warn().Msg("llama-server not ready in time")
			a.forget(modelPath, p)
			_ = a.terminate(modelPath, p)
			fail(fmt.Errorf("llama-server not ready in time: %s", baseURL))
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
	log.Info().Msg("llama-server ready")
	close(p.starting)
}

// forget unregisters p if it is still the entry for modelPath.
func (a *SubprocessAdapter) forget(modelPath string, p *procInfo) {
	a.mu.Lock()
	if a.procs[modelPath] == p {
		delete(a.procs, modelPath)
	}
	a.mu.Unlock()
}

// Stop terminates the server for modelPath, if any: SIGTERM, then kill after 2s.
func (a *SubprocessAdapter) Stop(modelPath string) error {
	a.mu.Lock()
	p := a.procs[modelPath]
	delete(a.procs, modelPath)
	a.mu.Unlock()
	return a.terminate(modelPath, p)
}

// terminate stops p's process. A server that has not been started yet is
// marked stopped and killed by spawn as soon as it starts.
func (a *SubprocessAdapter) terminate(modelPath string, p *procInfo) error {
	if p == nil {
		return nil
	}
	a.mu.Lock()
	p.stopped = true
	cmd := p.cmd
	a.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	_ = cmd.Process.Signal(syscall.SIGTERM)
	select {
	case <-p.exited:
	case <-time.After(2 * time.Second):
		_ = cmd.Process.Kill()
		<-p.exited
	}
	a.log.Info().Str("model", modelPath).Msg("llama-server stopped")
	return nil
}

// StopAll terminates all managed servers.
func (a *SubprocessAdapter) StopAll() {
	a.mu.Lock()
	paths := make([]string, 0, len(a.procs))
	for k := range a.procs {
		paths = append(paths, k)
	}
	a.mu.Unlock()
	for _, path := range paths {
		_ = a.Stop(path)
	}
}

// Close implements io.Closer for app shutdown.
func (a *SubprocessAdapter) Close() error {
	a.StopAll()
	return nil
}

// resolveBin finds bin on PATH or as a file path.
func resolveBin(bin string) (string, error) {
	bin = strings.TrimSpace(bin)
	if bin == "" {
		bin = "llama-server"
	}
	p, err := exec.LookPath(bin)
	if err != nil {
		return "", ErrDependencyUnavailable(fmt.Sprintf("llama-server not found: %s", bin))
	}
	return p, nil
}

func pickFreePort(host string) (int, error) {
	l, err := net.Listen("tcp", net.JoinHostPort(host, "0"))
	if err != nil {
		return 0, err
	}
	defer l.Close()
	_, port, err := net.SplitHostPort(l.Addr().String())
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(port)
}

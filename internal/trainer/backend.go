package trainer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"aiserver/internal/common/procutil"
	"aiserver/internal/device"
	"aiserver/internal/model"
)

// HIPAllocConf is exported to the trainer so ROCm builds of the framework
// can grow allocations instead of fragmenting.
const HIPAllocConf = "PYTORCH_HIP_ALLOC_CONF=expandable_segments:True"

// Job is one fine-tuning request handed to a Backend.
type Job struct {
	ID          string
	Model       *model.Model
	DatasetPath string
	ConfigPath  string
	Recipe      Recipe
	Device      device.Device
}

// Backend runs the training loop for a Job and leaves the trained weights in
// Job.Recipe.FinalDir().
type Backend interface {
	Train(ctx context.Context, job Job) error
}

// BackendFunc adapts a function to Backend.
type BackendFunc func(ctx context.Context, job Job) error

func (f BackendFunc) Train(ctx context.Context, job Job) error { return f(ctx, job) }

// CommandBackend runs an external trainer program as
// `<Bin> <Args...> --config <ConfigPath>`.
type CommandBackend struct {
	Bin  string
	Args []string
	// Env is appended to the inherited environment.
	Env []string
	Log zerolog.Logger
	// Grace is how long the process gets after SIGTERM before it is killed.
	Grace time.Duration
}

// ErrTrainerNotFound is returned when Bin cannot be resolved.
var ErrTrainerNotFound = errors.New("trainer program not found")

func (b *CommandBackend) Train(ctx context.Context, job Job) error {
	bin, err := exec.LookPath(strings.TrimSpace(b.Bin))
	if err != nil {
		return fmt.Errorf("%w: %s", ErrTrainerNotFound, b.Bin)
	}
	args := append(append([]string{}, b.Args...), "--config", job.ConfigPath)
	cmd := exec.Command(bin, args...)
	cmd.Dir = job.Recipe.OutputDir
	cmd.Env = append(os.Environ(), HIPAllocConf)
	cmd.Env = append(cmd.Env, b.Env...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start trainer: %w", err)
	}
	log := b.Log.With().Str("job", job.ID).Int("pid", cmd.Process.Pid).Logger()
	log.Info().Str("bin", bin).Strs("args", args).Msg("trainer started")

	tail := procutil.NewTail(4096)
	var wg sync.WaitGroup
	pump := func(r io.Reader, stream string, keep bool) {
		defer wg.Done()
		_ = procutil.ScanLines(r, func(line string) {
			if keep {
				tail.WriteLine(line)
			}
			log.Info().Str("stream", stream).Msg(line)
		})
	}
	wg.Add(2)
	go pump(stdout, "stdout", false)
	go pump(stderr, "stderr", true)

	exited := make(chan error, 1)
	go func() {
		wg.Wait()
		exited <- cmd.Wait()
	}()

	select {
	case err := <-exited:
		if err != nil {
			log.Error().Err(err).Msg("trainer failed")
			return fmt.Errorf("trainer exited: %w; stderr tail: %s", err, strings.TrimSpace(tail.String()))
		}
		log.Info().Msg("trainer finished")
		return nil
	case <-ctx.Done():
		grace := b.Grace
		if grace <= 0 {
			grace = 10 * time.Second
		}
		_ = cmd.Process.Signal(syscall.SIGTERM)
		select {
		case <-exited:
		case <-time.After(grace):
			_ = cmd.Process.Kill()
			<-exited
		}
		log.Warn().Msg("trainer canceled")
		return ctx.Err()
	}
}

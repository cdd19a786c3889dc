package model

import (
	"bufio"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/rs/zerolog/log"
)

// procHandle is the bridge's view of one running model process. The real
// implementation wraps exec.Cmd; tests substitute an in-memory fake.
type procHandle interface {
	// WriteLine queues one line for delivery to the process stdin.
	WriteLine(line []byte) error
	// Lines returns the channel of complete stdout lines.
	Lines() <-chan []byte
	// Alive reports whether the process is still running.
	Alive() bool
	// Kill signals the process to stop without waiting for exit.
	Kill()
}

// launcher spawns a fresh model process.
type launcher func() (procHandle, error)

const (
	// Pending writes beyond this are dropped oldest-first; the model only
	// ever cares about the most recent status anyway.
	writeQueueSize = 16
	readQueueSize  = 64
)

type execProcess struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser

	in    chan []byte
	out   chan []byte
	dead  atomic.Bool
	kill  sync.Once
}

// launchCommand starts `command args...` with line-buffered stdio bridged to
// channels. Model stderr passes straight through to the keeper's stderr.
func launchCommand(command string, args ...string) (procHandle, error) {
	cmd := exec.Command(command, args...)
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	p := &execProcess{
		cmd:   cmd,
		stdin: stdin,
		in:    make(chan []byte, writeQueueSize),
		out:   make(chan []byte, readQueueSize),
	}

	go p.readLoop(stdout)
	go p.writeLoop()
	go func() {
		// Reap the child so a crashed model is observable via Alive.
		err := cmd.Wait()
		p.dead.Store(true)
		if err != nil {
			log.Debug().Err(err).Str("command", command).Msg("Model process exited")
		}
	}()

	return p, nil
}

func (p *execProcess) readLoop(stdout io.Reader) {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := append([]byte(nil), scanner.Bytes()...)
		select {
		case p.out <- line:
		default:
			// Reader is far behind; drop the oldest line to make room.
			select {
			case <-p.out:
			default:
			}
			p.out <- line
		}
	}
	p.dead.Store(true)
}

func (p *execProcess) writeLoop() {
	for line := range p.in {
		if _, err := p.stdin.Write(append(line, '\n')); err != nil {
			// Broken pipe is fatal for this process instance only; the
			// bridge restarts it before the next status is delivered.
			log.Warn().Err(err).Msg("Model stdin write failed")
			p.dead.Store(true)
			return
		}
	}
}

func (p *execProcess) WriteLine(line []byte) error {
	if p.dead.Load() {
		return errProcessDead
	}
	select {
	case p.in <- line:
	default:
		// Queue full: discard the oldest queued status in favor of this one.
		select {
		case <-p.in:
		default:
		}
		p.in <- line
	}
	return nil
}

func (p *execProcess) Lines() <-chan []byte { return p.out }

func (p *execProcess) Alive() bool { return !p.dead.Load() }

func (p *execProcess) Kill() {
	p.kill.Do(func() {
		if p.cmd.Process != nil {
			_ = p.cmd.Process.Signal(syscall.SIGTERM)
		}
	})
}

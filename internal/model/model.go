// Package model bridges the keeper to external pricing model processes.
//
// Each tracked auction owns one long-lived subprocess. The keeper writes the
// auction status to the model's stdin as one JSON object per line and reads
// pricing decisions (stances) back from its stdout, also line-JSON. A model
// that exits is restarted transparently with the same arguments before the
// next status is delivered.
package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"math/big"
	"strconv"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

var errProcessDead = errors.New("model process not running")

// Stance is the model's current instruction: the price the keeper should be
// bidding at, and optionally a gas price to use for the transaction.
type Stance struct {
	Price    decimal.Decimal
	GasPrice *big.Int
}

// Parameters identify one model process: the auction house addresses plus the
// auction id. Two Parameters with the same id and houses are the same model.
type Parameters struct {
	Flipper *common.Address
	Flapper *common.Address
	Flopper *common.Address
	Clipper *common.Address
	ID      uint64
}

// Args renders the process invocation arguments. The model sees the same
// flags on every (re)start.
func (p Parameters) Args() []string {
	var args []string
	if p.Flipper != nil {
		args = append(args, "--flipper", p.Flipper.Hex())
	}
	if p.Flapper != nil {
		args = append(args, "--flapper", p.Flapper.Hex())
	}
	if p.Flopper != nil {
		args = append(args, "--flopper", p.Flopper.Hex())
	}
	if p.Clipper != nil {
		args = append(args, "--clipper", p.Clipper.Hex())
	}
	args = append(args, "--id", strconv.FormatUint(p.ID, 10))
	return args
}

// Handle is what the rest of the keeper sees of a model.
type Handle interface {
	SendStatus(status any) error
	GetStance() *Stance
	Terminate()
}

// Factory creates the model for a newly sighted auction.
type Factory func(p Parameters) (Handle, error)

// NewCommandFactory returns a Factory that runs `command` with the rendered
// Parameters flags appended.
func NewCommandFactory(command string, extraArgs ...string) Factory {
	return func(p Parameters) (Handle, error) {
		args := append(append([]string(nil), extraArgs...), p.Args()...)
		return New(p, func() (procHandle, error) {
			return launchCommand(command, args...)
		}), nil
	}
}

// Model owns a single external pricing process for one auction.
type Model struct {
	params Parameters
	launch launcher

	mu   sync.Mutex
	proc procHandle
	last *Stance

	restarted func() // metrics hook, optional
}

// New constructs a Model. The process is not started until the first
// SendStatus call.
func New(params Parameters, launch launcher) *Model {
	return &Model{params: params, launch: launch}
}

// OnRestart registers a callback invoked every time the subprocess is
// (re)started.
func (m *Model) OnRestart(fn func()) { m.restarted = fn }

// SendStatus serializes the status to one JSON line and queues it for the
// model. A model found not running is restarted first, never silently
// skipped.
func (m *Model) SendStatus(status any) error {
	line, err := json.Marshal(status)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.ensureRunning(); err != nil {
		return err
	}
	if err := m.proc.WriteLine(line); err != nil {
		// Retry once through a fresh process.
		m.proc = nil
		if err := m.ensureRunning(); err != nil {
			return err
		}
		return m.proc.WriteLine(line)
	}
	return nil
}

// GetStance drains every complete output line currently available, keeps the
// last one that parses, and returns the most recent good stance ever seen.
// Returns nil only if the model has never produced valid output.
func (m *Model) GetStance() *Stance {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.proc == nil {
		return m.last
	}

	for {
		select {
		case line := <-m.proc.Lines():
			if stance, err := parseStance(line); err != nil {
				log.Warn().
					Uint64("auction", m.params.ID).
					Str("line", string(line)).
					Err(err).
					Msg("Discarding malformed model output")
			} else {
				m.last = stance
			}
		default:
			return m.last
		}
	}
}

// Terminate signals the process to stop. It does not wait for exit and is
// safe to call more than once.
func (m *Model) Terminate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.proc != nil {
		m.proc.Kill()
		m.proc = nil
	}
}

func (m *Model) ensureRunning() error {
	if m.proc != nil && m.proc.Alive() {
		return nil
	}
	proc, err := m.launch()
	if err != nil {
		return err
	}
	if m.proc != nil {
		log.Info().Uint64("auction", m.params.ID).Msg("Restarted model process")
	}
	m.proc = proc
	if m.restarted != nil {
		m.restarted()
	}
	return nil
}

// stanceMsg is the inbound wire form. Price arrives as a numeric string;
// a bare JSON number is tolerated too.
type stanceMsg struct {
	Price    flexString `json:"price"`
	GasPrice *int64     `json:"gasPrice"`
}

type flexString string

func (s *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) >= 2 && b[0] == '"' {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		*s = flexString(str)
		return nil
	}
	*s = flexString(b)
	return nil
}

func parseStance(line []byte) (*Stance, error) {
	var msg stanceMsg
	if err := json.Unmarshal(line, &msg); err != nil {
		return nil, err
	}
	if msg.Price == "" || msg.Price == "null" {
		return nil, errors.New("missing price")
	}
	price, err := decimal.NewFromString(string(msg.Price))
	if err != nil {
		return nil, err
	}
	stance := &Stance{Price: price}
	if msg.GasPrice != nil {
		stance.GasPrice = big.NewInt(*msg.GasPrice)
	}
	return stance, nil
}

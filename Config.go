package segvhandler

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

const (
	DefaultMaxFrames  = 32
	MaxFramesCap      = 128
	DefaultExitStatus = -1
)

const (
	EnvSignals    = "SEGVHANDLER_SIGNALS"
	EnvFD         = "SEGVHANDLER_FD"
	EnvMaxFrames  = "SEGVHANDLER_MAX_FRAMES"
	EnvExitStatus = "SEGVHANDLER_EXIT_STATUS"
	EnvLogLevel   = "SEGVHANDLER_LOG_LEVEL"
)

// Config controls what the crash handler monitors and where it reports.
// It is copied into native state by Install, before any handler can run.
type Config struct {
	// Signals monitored when Install is called without arguments.
	Signals []SignalKind
	// OutputFD receives the header and the backtrace.
	OutputFD int
	// MaxFrames bounds the captured backtrace, 1..MaxFramesCap.
	MaxFrames int
	// ExitStatus is passed to _exit after the report; -1 is seen as 255.
	// Values whose low 8 bits are zero are rejected.
	ExitStatus int
	LogLevel   logrus.Level
}

func DefaultConfig() Config {
	return Config{
		Signals:    append([]SignalKind(nil), DefaultSignals...),
		OutputFD:   int(os.Stderr.Fd()),
		MaxFrames:  DefaultMaxFrames,
		ExitStatus: DefaultExitStatus,
		LogLevel:   logrus.InfoLevel,
	}
}

func (c Config) Validate() error {
	if c.OutputFD < 0 {
		return fmt.Errorf("%w: output fd %d", ErrInvalidConfig, c.OutputFD)
	}
	if c.MaxFrames < 1 || c.MaxFrames > MaxFramesCap {
		return fmt.Errorf("%w: max frames %d not in [1, %d]", ErrInvalidConfig, c.MaxFrames, MaxFramesCap)
	}
	// _exit keeps the low 8 bits; 0 there would read as a clean exit
	if c.ExitStatus&0xff == 0 {
		return fmt.Errorf("%w: exit status %d is 0 to the parent", ErrInvalidConfig, c.ExitStatus)
	}
	if c.LogLevel > logrus.TraceLevel {
		return fmt.Errorf("%w: log level %d", ErrInvalidConfig, uint32(c.LogLevel))
	}
	for _, k := range c.Signals {
		if k <= 0 {
			return fmt.Errorf("%w: signal %d", ErrInvalidConfig, int(k))
		}
	}
	return nil
}

// ConfigFromEnv starts from DefaultConfig and applies the SEGVHANDLER_*
// environment variables that are set.
func ConfigFromEnv() (cfg Config, err error) {
	cfg = DefaultConfig()

	if v := Env(EnvSignals); v.IsPresent() {
		kinds, err := ParseSignalKinds(v.AsStringArray())
		if err != nil {
			return cfg, fmt.Errorf("%w: %s=%q: %v", ErrInvalidConfig, EnvSignals, v.value, err)
		}
		if len(kinds) == 0 {
			return cfg, fmt.Errorf("%w: %s is empty", ErrInvalidConfig, EnvSignals)
		}
		cfg.Signals = kinds
	}
	if cfg.OutputFD, err = Env(EnvFD).AsIntDefault(cfg.OutputFD); err != nil {
		return
	}
	if cfg.MaxFrames, err = Env(EnvMaxFrames).AsIntDefault(cfg.MaxFrames); err != nil {
		return
	}
	if cfg.ExitStatus, err = Env(EnvExitStatus).AsIntDefault(cfg.ExitStatus); err != nil {
		return
	}
	level := Env(EnvLogLevel).AsStringDefault(cfg.LogLevel.String())
	if cfg.LogLevel, err = logrus.ParseLevel(level); err != nil {
		return cfg, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, EnvLogLevel, err)
	}

	err = cfg.Validate()
	return
}

type EnvValue struct {
	name  string
	value string
}

func Env(name string) EnvValue {
	return EnvValue{name: name, value: strings.TrimSpace(os.Getenv(name))}
}

func (v EnvValue) IsPresent() bool {
	return len(v.value) != 0
}

func (v EnvValue) AsStringDefault(def string) string {
	if v.IsPresent() {
		return v.value
	}
	return def
}

func (v EnvValue) AsStringArray() []string {
	return strings.Split(v.value, ",")
}

func (v EnvValue) AsIntDefault(def int) (int, error) {
	if !v.IsPresent() {
		return def, nil
	}
	n, err := strconv.Atoi(v.value)
	if err != nil {
		return def, fmt.Errorf("%w: %s: can't convert to integer: %s", ErrInvalidConfig, v.name, v.value)
	}
	return n, nil
}

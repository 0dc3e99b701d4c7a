package segvhandler

/*
 #include "segvhandler.h"
*/
import "C"
import (
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// SignalKind is a signal number the crash handler can be installed for.
type SignalKind int

const (
	SIGSEGV = SignalKind(unix.SIGSEGV)
	SIGABRT = SignalKind(unix.SIGABRT)
	SIGILL  = SignalKind(unix.SIGILL)
)

// DefaultSignals is the set monitored when no kinds are given to Install.
var DefaultSignals = []SignalKind{SIGSEGV, SIGABRT, SIGILL}

// String returns the label printed in crash headers: SIGSEGV, SIGABRT,
// SIGILL, or UNKNOWN for anything else.
func (k SignalKind) String() string {
	return C.GoString(C.crash_signal_name(C.int(k)))
}

// Recognized reports whether k has its own label in crash headers.
func (k SignalKind) Recognized() bool {
	switch k {
	case SIGSEGV, SIGABRT, SIGILL:
		return true
	}
	return false
}

// SysName is the operating system name of the signal, e.g. "SIGUSR1".
func (k SignalKind) SysName() string {
	if name := unix.SignalName(unix.Signal(k)); name != "" {
		return name
	}
	return "signal " + strconv.Itoa(int(k))
}

func (k SignalKind) Signal() unix.Signal {
	return unix.Signal(k)
}

// ParseSignalKind accepts "SIGSEGV", "segv" or a signal number.
func ParseSignalKind(s string) (SignalKind, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrUnknownSignal
	}
	if n, err := strconv.Atoi(s); err == nil {
		if n <= 0 {
			return 0, ErrUnknownSignal
		}
		return SignalKind(n), nil
	}
	name := strings.ToUpper(s)
	if !strings.HasPrefix(name, "SIG") {
		name = "SIG" + name
	}
	sig := unix.SignalNum(name)
	if sig == 0 {
		return 0, ErrUnknownSignal
	}
	return SignalKind(sig), nil
}

// ParseSignalKinds parses a comma separated list, skipping empty items.
func ParseSignalKinds(list []string) (kinds []SignalKind, err error) {
	for _, item := range list {
		if strings.TrimSpace(item) == "" {
			continue
		}
		k, err := ParseSignalKind(item)
		if err != nil {
			return nil, err
		}
		kinds = append(kinds, k)
	}
	return
}

package segvhandler

/*
 #include "segvhandler.h"
*/
import "C"
import (
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
)

// Registry is the process-wide record of the signals this package has
// taken over. The OS holds one handler per signal number and the native
// reporter has one configuration, so there is a single Registry per
// process, reached through GetRegistry. It is written by Install from
// ordinary code and only read afterwards; the native handler never
// touches it.
type Registry struct {
	mu      sync.Mutex
	cfg     Config
	kinds   map[SignalKind]bool
	preload sync.Once
}

// newRegistry builds an unshared Registry. The native configuration it
// pushes on Install is still process-wide, so only GetRegistry and tests
// call it.
func newRegistry(cfg Config) *Registry {
	return &Registry{
		cfg:   cfg,
		kinds: make(map[SignalKind]bool),
	}
}

// Configure replaces the configuration used by the next Install.
func (r *Registry) Configure(cfg Config) (err error) {
	if err = cfg.Validate(); err != nil {
		log.WithFields(logrus.Fields{
			"err": err,
		}).Error("Registry: configure fail")
		return
	}
	r.mu.Lock()
	r.cfg = cfg
	r.mu.Unlock()
	log.SetLevel(cfg.LogLevel)
	return
}

func (r *Registry) Config() Config {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cfg
}

// Install makes the crash handler the OS handler for each kind, replacing
// whatever was there. With no kinds the configured Signals are used.
// Installation stops at the first kind the OS rejects; kinds installed
// before it stay installed. Calling Install again simply re-registers.
//
// The previous handler is not chained. Once SIGSEGV is taken over, a Go
// nil dereference no longer becomes a recoverable panic: the process
// prints a native report, which has no Go frames, and exits.
func (r *Registry) Install(kinds ...SignalKind) (err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err = r.cfg.Validate(); err != nil {
		return
	}
	if len(kinds) == 0 {
		kinds = r.cfg.Signals
	}

	r.preload.Do(func() {
		log.Debug("Registry: preload unwinder")
		C.crash_preload_unwinder()
	})
	C.crash_configure(C.int(r.cfg.OutputFD), C.int(r.cfg.MaxFrames), C.int(r.cfg.ExitStatus))

	for _, k := range kinds {
		if code := int(C.crash_install(C.int(k))); code != 0 {
			err = NewRegistrationError(k, code)
			log.WithFields(logrus.Fields{
				"signal": k.SysName(),
				"code":   code,
				"err":    err,
			}).Error("Registry: install fail")
			return
		}
		r.kinds[k] = true
		log.WithFields(logrus.Fields{
			"signal":     k.SysName(),
			"label":      k.String(),
			"fd":         r.cfg.OutputFD,
			"max_frames": r.cfg.MaxFrames,
		}).Debug("Registry: handler installed")
	}
	return
}

// Installed asks the OS whether the crash handler is the active handler
// for kind.
func (r *Registry) Installed(kind SignalKind) (bool, error) {
	switch rc := int(C.crash_is_installed(C.int(kind))); {
	case rc < 0:
		return false, NewRegistrationError(kind, -rc)
	default:
		return rc == 1, nil
	}
}

// Kinds lists the signals Install has registered, in signal number order.
func (r *Registry) Kinds() []SignalKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kl := make([]SignalKind, 0, len(r.kinds))
	for k := range r.kinds {
		kl = append(kl, k)
	}
	sort.Slice(kl, func(i, j int) bool { return kl[i] < kl[j] })
	return kl
}

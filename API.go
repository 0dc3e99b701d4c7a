/*Package segvhandler : prints a symbolized native backtrace when the process receives a fatal signal */
package segvhandler

/*
 #cgo CFLAGS: -g -O2 -w -fno-omit-frame-pointer
 #cgo linux LDFLAGS: -Wl,--export-dynamic
 #include "segvhandler.h"
*/
import "C"
import (
	"os"
	"sync"

	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

var log = logrus.New()

func init() {
	log.SetFormatter(&logrus.TextFormatter{
		DisableColors: !isatty.IsTerminal(os.Stdout.Fd()),
	})
	log.SetOutput(os.Stdout)
	log.SetLevel(logrus.InfoLevel)
}

// SetLogger replaces the package logger. Call it before Install.
func SetLogger(l *logrus.Logger) {
	if l != nil {
		log = l
	}
}

var (
	registry     *Registry
	registryOnce sync.Once
)

// GetRegistry returns the process-wide Registry, created with
// DefaultConfig on first use.
func GetRegistry() *Registry {
	registryOnce.Do(func() {
		registry = newRegistry(DefaultConfig())
	})
	return registry
}

/*************
 * Functions *
 *************/

// Configure sets the configuration used by the next Install.
func Configure(cfg Config) error {
	return GetRegistry().Configure(cfg)
}

// Install registers the crash handler for kinds, or for the configured
// signals (SIGSEGV, SIGABRT, SIGILL by default) when none are given.
// Call it from ordinary code during startup.
//
// Go relies on SIGSEGV to turn nil dereferences into panics. After
// Install those faults end the process with a crash report instead, and
// recover no longer sees them.
func Install(kinds ...SignalKind) error {
	log.WithFields(logrus.Fields{
		"kinds": kinds,
	}).Debug("install")
	return GetRegistry().Install(kinds...)
}

// InstallFromEnv loads the configuration from SEGVHANDLER_* variables and
// installs the handler for the configured signals.
func InstallFromEnv() (err error) {
	cfg, err := ConfigFromEnv()
	if err != nil {
		log.WithFields(logrus.Fields{
			"err": err,
		}).Error("load config from env fail")
		return
	}
	if err = Configure(cfg); err != nil {
		return
	}
	return Install()
}

func IsInstalled(kind SignalKind) (bool, error) {
	return GetRegistry().Installed(kind)
}

// CauseSegfault writes to an invalid address from two nested native
// frames. With the handler installed the process prints a crash report
// and exits; it never returns.
func CauseSegfault() {
	log.Info("cause segfault ...")
	C.crash_cause_segfault()
	panic("segvhandler: write to invalid address did not fault")
}

package segvhandler

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

const helperEnv = "SEGVHANDLER_TEST_HELPER"

// TestHelperProcess is not a real test. The tests below re-run the test
// binary with helperEnv set so that a child takes over fatal signals and
// dies instead of the test process.
func TestHelperProcess(t *testing.T) {
	mode := os.Getenv(helperEnv)
	if mode == "" {
		return
	}

	switch mode {
	case "segfault":
		if err := Install(); err != nil {
			fmt.Fprintln(os.Stdout, "install:", err)
			os.Exit(3)
		}
		CauseSegfault()
	case "env":
		if err := InstallFromEnv(); err != nil {
			fmt.Fprintln(os.Stdout, "install:", err)
			os.Exit(3)
		}
		CauseSegfault()
	case "nilderef":
		if err := Install(); err != nil {
			os.Exit(3)
		}
		func() {
			defer func() {
				if r := recover(); r != nil {
					fmt.Fprintln(os.Stderr, "recovered:", r)
					os.Exit(0)
				}
			}()
			var p *int
			*p = 1
		}()
	case "abort":
		if err := Install(); err != nil {
			os.Exit(3)
		}
		_ = unix.Kill(unix.Getpid(), unix.SIGABRT)
	case "unknown":
		if err := Install(SignalKind(unix.SIGUSR1)); err != nil {
			os.Exit(3)
		}
		_ = unix.Kill(unix.Getpid(), unix.SIGUSR1)
	case "idempotent":
		for i := 0; i < 2; i++ {
			if err := Install(); err != nil {
				fmt.Fprintln(os.Stdout, "install:", err)
				os.Exit(3)
			}
		}
		for _, k := range DefaultSignals {
			if ok, err := IsInstalled(k); err != nil || !ok {
				fmt.Fprintln(os.Stdout, "not installed:", k, err)
				os.Exit(4)
			}
		}
		if n := len(GetRegistry().Kinds()); n != len(DefaultSignals) {
			fmt.Fprintln(os.Stdout, "kinds:", n)
			os.Exit(5)
		}
		os.Exit(0)
	}

	// the handler terminates the process; reaching here means it did not run
	time.Sleep(5 * time.Second)
	os.Exit(6)
}

func runHelper(t *testing.T, mode string, env ...string) (stderr string, code int) {
	t.Helper()
	cmd := exec.Command(os.Args[0], "-test.run=^TestHelperProcess$")
	cmd.Env = append(os.Environ(), helperEnv+"="+mode)
	cmd.Env = append(cmd.Env, env...)
	var errBuf, outBuf bytes.Buffer
	cmd.Stderr = &errBuf
	cmd.Stdout = &outBuf

	err := cmd.Run()
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		code = 0
	case errors.As(err, &exitErr):
		code = exitErr.ExitCode()
	default:
		t.Fatalf("run helper %q: %v", mode, err)
	}
	t.Logf("helper %q exited %d\nstdout:\n%s\nstderr:\n%s", mode, code, outBuf.String(), errBuf.String())
	return errBuf.String(), code
}

func TestCauseSegfaultReport(t *testing.T) {
	stderr, code := runHelper(t, "segfault")
	if code != 255 {
		t.Fatalf("exit code %d, want 255", code)
	}
	if !strings.Contains(stderr, "about to write to an invalid address") {
		t.Error("self-test banner missing")
	}

	c, err := ParseReport(strings.NewReader(stderr))
	if err != nil {
		t.Fatalf("ParseReport: %v", err)
	}
	if c.Signal != SIGSEGV || c.SignalName != "SIGSEGV" {
		t.Errorf("signal %q, want SIGSEGV", c.SignalName)
	}
	if c.Addr != 1 {
		t.Errorf("address %#x, want 0x1", c.Addr)
	}
	if c.Pid <= 0 || c.Pid == os.Getpid() {
		t.Errorf("unexpected pid %d", c.Pid)
	}
	if len(c.Frames) > DefaultMaxFrames {
		t.Errorf("got %d frames, bound is %d", len(c.Frames), DefaultMaxFrames)
	}

	// innermost first: the handler, then both self-test frames, then the entry point
	order := []string{"crash_handler", "crash_stack_frame_1", "crash_stack_frame_2", "crash_cause_segfault"}
	last := -1
	for _, name := range order {
		idx := frameIndex(c.Frames, name)
		if idx < 0 {
			t.Errorf("no frame named %s in %q", name, c.Frames)
			continue
		}
		if idx <= last {
			t.Errorf("frame %s at %d, want after %d: %q", name, idx, last, c.Frames)
		}
		last = idx
	}
}

func frameIndex(frames []string, name string) int {
	for i, f := range frames {
		if strings.Contains(f, "("+name+"+") {
			return i
		}
	}
	return -1
}

func TestGoNilDereferenceIsFatal(t *testing.T) {
	stderr, code := runHelper(t, "nilderef")
	if code != 255 {
		t.Fatalf("exit code %d, want 255", code)
	}
	if strings.Contains(stderr, "recovered") {
		t.Error("nil dereference was recovered after Install")
	}
	c, err := ParseReport(strings.NewReader(stderr))
	if err != nil {
		t.Fatalf("ParseReport: %v", err)
	}
	if c.Signal != SIGSEGV || c.Addr != 0 {
		t.Errorf("unexpected crash %+v", c)
	}
}

func TestInstallFromEnvReport(t *testing.T) {
	stderr, code := runHelper(t, "env",
		EnvExitStatus+"=7",
		EnvMaxFrames+"=2",
		EnvSignals+"=segv",
	)
	if code != 7 {
		t.Fatalf("exit code %d, want 7", code)
	}
	c, err := ParseReport(strings.NewReader(stderr))
	if err != nil {
		t.Fatalf("ParseReport: %v", err)
	}
	if c.Signal != SIGSEGV {
		t.Errorf("signal %q, want SIGSEGV", c.SignalName)
	}
	if len(c.Frames) == 0 || len(c.Frames) > 2 {
		t.Errorf("got %d frames, want 1 or 2", len(c.Frames))
	}
}

func TestAbortReport(t *testing.T) {
	stderr, code := runHelper(t, "abort")
	if code != 255 {
		t.Fatalf("exit code %d, want 255", code)
	}
	c, err := ParseReport(strings.NewReader(stderr))
	if err != nil {
		t.Fatalf("ParseReport: %v", err)
	}
	if c.Signal != SIGABRT {
		t.Errorf("signal %q, want SIGABRT", c.SignalName)
	}
	if c.Addr != 0 {
		t.Errorf("address %#x for a sent signal, want 0x0", c.Addr)
	}
}

func TestUnknownSignalReport(t *testing.T) {
	stderr, code := runHelper(t, "unknown")
	if code != 255 {
		t.Fatalf("exit code %d, want 255", code)
	}
	c, err := ParseReport(strings.NewReader(stderr))
	if err != nil {
		t.Fatalf("ParseReport: %v", err)
	}
	if c.SignalName != "UNKNOWN" {
		t.Errorf("signal %q, want UNKNOWN", c.SignalName)
	}
}

func TestInstallIdempotentDefaultSet(t *testing.T) {
	if _, code := runHelper(t, "idempotent"); code != 0 {
		t.Fatalf("helper exited %d", code)
	}
}

package segvhandler

/*
 #include <stdlib.h>
 #include "segvhandler.h"
*/
import "C"
import (
	"unsafe"

	"github.com/sirupsen/logrus"
)

// Snapshot is a bounded list of native return addresses, innermost first.
type Snapshot struct {
	Frames []uintptr
}

// CaptureSnapshot records up to maxFrames native return addresses of the
// calling thread, clamped to [1, MaxFramesCap]. Only frames with native
// unwind information are seen, so the walk stops at the cgo boundary.
func CaptureSnapshot(maxFrames int) Snapshot {
	return captureAtDepth(0, maxFrames)
}

// captureAtDepth nests depth native frames before capturing, which gives
// tests a stack deeper than the capture bound.
func captureAtDepth(depth, maxFrames int) Snapshot {
	var (
		buf      [MaxFramesCap]C.uintptr_t
		overflow C.int
	)
	n := int(C.crash_capture_at_depth(C.int(depth), &buf[0], C.int(maxFrames), &overflow))
	if overflow != 0 {
		panic("segvhandler: backtrace wrote past its bound")
	}
	s := Snapshot{Frames: make([]uintptr, n)}
	for i := 0; i < n; i++ {
		s.Frames[i] = uintptr(buf[i])
	}
	return s
}

// Symbolize resolves each frame with backtrace_symbols. It allocates and
// must not be used from a signal handler.
func (s Snapshot) Symbolize() (syms []string, err error) {
	if len(s.Frames) == 0 {
		return
	}
	pcs := make([]C.uintptr_t, len(s.Frames))
	for i, pc := range s.Frames {
		pcs[i] = C.uintptr_t(pc)
	}
	res := C.crash_symbols(&pcs[0], C.int(len(pcs)))
	if res == nil {
		err = NewErrorAndLog("Snapshot: symbolize fail")
		return
	}
	defer C.free(unsafe.Pointer(res))

	strs := unsafe.Slice(res, len(pcs))
	for i := range strs {
		syms = append(syms, C.GoString(strs[i]))
	}
	log.WithFields(logrus.Fields{
		"frames": len(syms),
	}).Debug("Snapshot: symbolized")
	return
}

package segvhandler

/*
 #include "segvhandler.h"
*/
import "C"
import (
	"bufio"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Crash is one fault event as seen in a crash report.
type Crash struct {
	Pid        int
	Signal     SignalKind
	SignalName string
	Addr       uintptr
	Time       time.Time
	Summary    string
	Frames     []string
}

var headerRe = regexp.MustCompile(`^Crash: PID (-?\d+) received (\S+) for address: 0x([0-9a-fA-F]+)$`)

func NewCrash(pid int, kind SignalKind, addr uintptr) *Crash {
	c := &Crash{
		Pid:        pid,
		Signal:     kind,
		SignalName: kind.String(),
		Addr:       addr,
		Time:       time.Now(),
	}
	c.Summary = strings.TrimSuffix(c.Header(), "\n")
	return c
}

// Header renders the first report line, newline included, with the same
// formatter the signal handler uses.
func (c *Crash) Header() string {
	var buf [C.CRASH_HEADER_CAP]byte
	n := C.crash_format_header((*C.char)(unsafe.Pointer(&buf[0])), C.size_t(len(buf)),
		C.long(c.Pid), C.int(c.Signal), C.uintptr_t(c.Addr))
	return string(buf[:int(n)])
}

// ParseHeader decodes a "Crash: PID ..." line.
func ParseHeader(line string) (c *Crash, err error) {
	m := headerRe.FindStringSubmatch(strings.TrimRight(line, "\r\n"))
	if m == nil {
		err = ErrNoHeader
		return
	}
	pid, err := strconv.Atoi(m[1])
	if err != nil {
		return
	}
	addr, err := strconv.ParseUint(m[3], 16, 64)
	if err != nil {
		return
	}
	c = &Crash{
		Pid:        pid,
		Signal:     SignalKind(unix.SignalNum(m[2])),
		SignalName: m[2],
		Addr:       uintptr(addr),
		Summary:    m[0],
	}
	return
}

// ParseReport reads a crash report. Lines before the header are skipped;
// every non-empty line after it is a frame, innermost first.
func ParseReport(r io.Reader) (c *Crash, err error) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if c == nil {
			if hc, herr := ParseHeader(line); herr == nil {
				c = hc
			}
			continue
		}
		if strings.TrimSpace(line) != "" {
			c.Frames = append(c.Frames, line)
		}
	}
	if err = scanner.Err(); err != nil {
		return nil, err
	}
	if c == nil {
		err = ErrNoHeader
	}
	return
}

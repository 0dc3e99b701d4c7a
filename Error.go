package segvhandler

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// Errors
// RegistrationError   sigaction rejected the handler, Code holds errno
// ErrUnknownSignal    signal name or number could not be parsed
// ErrInvalidConfig    Config failed validation
// ErrNoHeader         input holds no crash header line

type RegistrationError struct {
	Msg    string
	Code   int
	Signal SignalKind
}

func (err *RegistrationError) Error() string {
	return err.Msg
}

func (err *RegistrationError) Unwrap() error {
	return unix.Errno(err.Code)
}

func NewRegistrationError(kind SignalKind, code int) *RegistrationError {
	return &RegistrationError{
		Msg:    fmt.Sprintf("install handler for %s: %s", kind.SysName(), unix.Errno(code).Error()),
		Code:   code,
		Signal: kind,
	}
}

var (
	ErrUnknownSignal = errors.New("Unknown Signal")
	ErrInvalidConfig = errors.New("Invalid Config")
	ErrNoHeader      = errors.New("No Crash Header")
)

func NewErrorAndLog(msg string) error {
	err := errors.New(msg)
	log.WithFields(logrus.Fields{
		"err": err,
	}).Error(msg)
	return err
}

package xserver

import (
	"fmt"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/pkg/errors"
)

// Extension error codes, relative to the fixed first-error values the
// extensions report from QueryExtension.
const (
	shmFirstError  = 128
	syncFirstError = 129

	ErrorCodeBadShmSeg = shmFirstError
	ErrorCodeBadFence  = syncFirstError + 2
)

var (
	// ErrUnsupported ends a connection that uses a request or variant
	// outside the implemented subset.
	ErrUnsupported = errors.New("unsupported request")
	// ErrClientGone is returned for requests on a disconnected client.
	ErrClientGone = errors.New("client disconnected")
)

var errorNames = map[byte]string{
	xproto.BadValue:          "BadValue",
	xproto.BadWindow:         "BadWindow",
	xproto.BadPixmap:         "BadPixmap",
	xproto.BadAtom:           "BadAtom",
	xproto.BadCursor:         "BadCursor",
	xproto.BadMatch:          "BadMatch",
	xproto.BadDrawable:       "BadDrawable",
	xproto.BadAccess:         "BadAccess",
	xproto.BadAlloc:          "BadAlloc",
	xproto.BadGContext:       "BadGContext",
	xproto.BadIDChoice:       "BadIDChoice",
	xproto.BadLength:         "BadLength",
	xproto.BadImplementation: "BadImplementation",
	ErrorCodeBadShmSeg:       "BadShmSeg",
	ErrorCodeBadFence:        "BadFence",
}

// Error is a recoverable protocol error. It is reported to the client
// and the connection stays open.
type Error struct {
	Code     byte
	BadValue uint32
}

func (e *Error) Error() string {
	name, ok := errorNames[e.Code]
	if !ok {
		name = fmt.Sprintf("error %d", e.Code)
	}
	return fmt.Sprintf("%s (value %#x)", name, e.BadValue)
}

func newError(code byte, value uint32) *Error {
	return &Error{Code: code, BadValue: value}
}

func BadValue(v uint32) *Error       { return newError(xproto.BadValue, v) }
func BadWindow(id uint32) *Error     { return newError(xproto.BadWindow, id) }
func BadPixmap(id uint32) *Error     { return newError(xproto.BadPixmap, id) }
func BadAtom(id uint32) *Error       { return newError(xproto.BadAtom, id) }
func BadCursor(id uint32) *Error     { return newError(xproto.BadCursor, id) }
func BadMatch() *Error               { return newError(xproto.BadMatch, 0) }
func BadDrawable(id uint32) *Error   { return newError(xproto.BadDrawable, id) }
func BadAccess() *Error              { return newError(xproto.BadAccess, 0) }
func BadAlloc() *Error               { return newError(xproto.BadAlloc, 0) }
func BadGContext(id uint32) *Error   { return newError(xproto.BadGContext, id) }
func BadIDChoice(id uint32) *Error   { return newError(xproto.BadIDChoice, id) }
func BadLength() *Error              { return newError(xproto.BadLength, 0) }
func BadImplementation() *Error      { return newError(xproto.BadImplementation, 0) }
func BadSHMSegment(id uint32) *Error { return newError(ErrorCodeBadShmSeg, id) }
func BadFence(id uint32) *Error      { return newError(ErrorCodeBadFence, id) }

// asProtocolError extracts a protocol error from err, if it is one.
func asProtocolError(err error) (*Error, bool) {
	var xerr *Error
	if errors.As(err, &xerr) {
		return xerr, true
	}
	return nil, false
}

// unsupported builds a connection-terminating error.
func unsupported(format string, args ...interface{}) error {
	return errors.Wrapf(ErrUnsupported, format, args...)
}

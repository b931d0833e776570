package usbtmc

import (
	"errors"
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

// ErrBusy is returned by Request/Transmit when the engine is not Idle.
var ErrBusy = errors.New("usbtmc: engine busy")

// ErrNotSupported is returned by Attach when no USBTMC USB488 interface
// with both bulk endpoints is found, or the VID/PID/serial filters
// reject the device.
var ErrNotSupported = errors.New("usbtmc: device not supported")

// ErrLowSpeedUnsupported is returned by Attach for a low-speed port; the
// USBTMC bulk transfer model assumes full-/high-speed bulk endpoints
// (original_source/USBTMCHost/usbtmc.h's Init takes a lowspeed flag the
// USB Host Shield core uses to refuse bulk class drivers on low-speed
// ports, carried forward here).
var ErrLowSpeedUnsupported = errors.New("usbtmc: low-speed devices are not supported")

// wrapTransport wraps an opaque transport rcode with the attach or
// control-request step that produced it, via github.com/pkg/errors so a
// caller can still unwrap to the original error with errors.Cause.
func wrapTransport(step string, err error) error {
	if err == nil {
		return nil
	}
	return pkgerrors.Wrapf(err, "usbtmc: %s", step)
}

// LastError is a snapshot of the most recent OnFailed notification,
// convenient for callers that want an error value rather than a
// callback.
type LastError struct {
	Info   InfoCode
	Detail byte
}

func (e *LastError) Error() string {
	return fmt.Sprintf("usbtmc: %s (detail 0x%02x)", e.Info, e.Detail)
}

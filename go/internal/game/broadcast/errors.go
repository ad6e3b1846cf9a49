package broadcast

import "errors"

// ErrClosed is returned when subscribing to a closed broadcaster.
var ErrClosed = errors.New("broadcaster closed")

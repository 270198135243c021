package dispatch

import "errors"

// ErrFindDue wraps a failure to read due entries; the tick did nothing.
var ErrFindDue = errors.New("find due entries")

package forgetting

import "errors"

// ErrInvalidRetention reports a target retention outside (0,1).
var ErrInvalidRetention = errors.New("target retention must be in (0,1)")

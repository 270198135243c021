package simulate

import "errors"

// Sentinel kinds for simulation failures.
var (
	ErrUnhealthy    = errors.New("service unhealthy")
	ErrStatus       = errors.New("unexpected status")
	ErrVerification = errors.New("verification failed")
)

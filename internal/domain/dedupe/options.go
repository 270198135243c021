package dedupe

// Option applies a configuration option to the tracker.
type Option func(*inFlightTracker)

// WithMaxSize caps how many ids may be in flight at once.
// A value of zero or less means unbounded.
func WithMaxSize(maxSize int) Option {
	return func(d *inFlightTracker) {
		d.maxSize = maxSize
	}
}

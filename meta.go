package duscan

import "time"

// progName and progVersion populate every dump's metadata object (§4.7).
// Version is bumped alongside releases of cmd/duscan.
const (
	progName    = "duscan"
	progVersion = "0.1.0"
)

// nowFunc is the dump timestamp source, a var so tests can override it;
// production code always takes the zero-argument default.
var nowFunc = time.Now

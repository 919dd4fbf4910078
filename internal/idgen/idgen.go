// Package idgen provides the process-wide monotonic download-ID generator
// used to correlate the log lines emitted by one race across its upstream
// fetches. It is purely an observability aid, not configuration.
package idgen

import (
	"strconv"
	"sync/atomic"
	"time"
)

// sid is the process-start timestamp rendered in base-36, fixed for the
// life of the process.
var sid = strconv.FormatInt(time.Now().UnixMilli(), 36)

var counter uint64

// Next returns the next "<sid>:<n>" download ID. Safe for concurrent use.
func Next() string {
	n := atomic.AddUint64(&counter, 1) - 1
	return sid + ":" + strconv.FormatUint(n, 10)
}

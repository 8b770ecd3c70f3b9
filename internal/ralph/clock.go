package ralph

import "time"

// timeNow is overridden in tests for deterministic durations and
// timestamps, following the same indirection used in sessionmgr and
// collab.
var timeNow = time.Now

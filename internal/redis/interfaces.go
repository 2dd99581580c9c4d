package redis

import "paygate/internal/service"

// Ensure concrete types implement the service ports.
var (
	_ service.IntentCache = (*CacheStore)(nil)
	_ service.SweepLocker = (*LockStore)(nil)
)

package evt

import (
	"github.com/asaskevich/EventBus"
)

const (
	// CacheSizeChanged fires after a value was stored or a slot was removed, Parameter: new slot count
	CacheSizeChanged = "cache:sizeChanged"

	// CacheEntryEvicted fires if cleanup removed a slot, Parameter: key
	CacheEntryEvicted = "cache:evicted"

	// CacheCleared fires after the cache was flushed, Parameter: none
	CacheCleared = "cache:cleared"

	// ApplicationStarted fires on start of the application. Parameter: version number, build time
	ApplicationStarted = "application:started"
)

// nolint:gochecknoglobals
var evtBus = EventBus.New()

// Bus returns the global bus instance
func Bus() EventBus.Bus {
	return evtBus
}

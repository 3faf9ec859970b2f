package harness

import (
	"os/exec"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// PATH lookups are repeated at launch and before every probe; cache them
// so a swarm of workers does not hammer the filesystem.
var binCache = gocache.New(5*time.Minute, 10*time.Minute)

// BinaryAvailable reports whether the named binary is on PATH.
// Results are cached for five minutes.
func BinaryAvailable(name string) bool {
	if cached, ok := binCache.Get(name); ok {
		return cached.(bool)
	}
	_, err := exec.LookPath(name)
	found := err == nil
	binCache.Set(name, found, gocache.DefaultExpiration)
	return found
}

// ResetAvailabilityCache clears cached PATH lookups. Test hook.
func ResetAvailabilityCache() {
	binCache.Flush()
}

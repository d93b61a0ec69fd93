package coordinator

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// instanceLock guards bootstrap/populate against two coordinators racing
// against the same database from the same host. It is a defense-in-depth
// measure, not a correctness requirement — populate_if_empty's own
// "count == 0" check is what actually prevents duplicate chunks per §9's
// frozen rule, even across hosts where this file lock can't reach. The lock
// lives under the OS temp dir, keyed by a hash of the database URL, so two
// coordinators pointed at different databases never contend.
type instanceLock struct {
	fl *flock.Flock
}

func newInstanceLock(databaseURL string) *instanceLock {
	path := filepath.Join(os.TempDir(), fmt.Sprintf("hnquarry-%x.lock", hashKey(databaseURL)))
	return &instanceLock{fl: flock.New(path)}
}

// acquire attempts a non-blocking exclusive lock. Returns false if another
// coordinator process already holds it for this database.
func (l *instanceLock) acquire() (bool, error) {
	return l.fl.TryLock()
}

func (l *instanceLock) release() error {
	return l.fl.Unlock()
}

func hashKey(s string) uint32 {
	var h uint32 = 2166136261
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= 16777619
	}
	return h
}

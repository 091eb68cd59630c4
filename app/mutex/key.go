package mutex

import (
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// StorageKey derives the key used against the store for a lock name.
func (o Options) StorageKey(name string) string {
	key := o.KeyPrefix + name
	if !o.HashKey {
		return key
	}
	return strconv.FormatUint(xxhash.Sum64String(key), 16)
}

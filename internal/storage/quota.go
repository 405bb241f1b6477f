package storage

import "fmt"

// Quota wraps a Backend and rejects writes that would push the total size
// of keys plus values above a fixed budget, the way browser local storage
// does.
type Quota struct {
	Backend
	max int64
}

// WithQuota limits b to max bytes. A non-positive max disables the limit
// and returns b unchanged.
func WithQuota(b Backend, max int64) Backend {
	if max <= 0 {
		return b
	}
	return &Quota{Backend: b, max: max}
}

// Set checks the projected size before delegating.
func (q *Quota) Set(key, value string) error {
	used, err := q.usage(key)
	if err != nil {
		return err
	}
	if used+int64(len(key)+len(value)) > q.max {
		return fmt.Errorf("storage: set %s (%d bytes, %d used of %d): %w",
			key, len(value), used, q.max, ErrQuotaExceeded)
	}
	return q.Backend.Set(key, value)
}

// usage sums every entry except skip, which is about to be replaced.
func (q *Quota) usage(skip string) (int64, error) {
	keys, err := q.Backend.Keys()
	if err != nil {
		return 0, err
	}
	var total int64
	for _, k := range keys {
		if k == skip {
			continue
		}
		v, ok, err := q.Backend.Get(k)
		if err != nil {
			return 0, err
		}
		if ok {
			total += int64(len(k) + len(v))
		}
	}
	return total, nil
}

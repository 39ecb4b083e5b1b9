package calculations

import "time"

// Default TTLs, added to time.Now() when storing to calculate expires_at.
// Keys carry the data fingerprint, so these only bound how long unused entries linger.
const (
	TTLWholeSample = 7 * 24 * time.Hour
	TTLRolling     = 7 * 24 * time.Hour
	TTLPCA         = 7 * 24 * time.Hour
)

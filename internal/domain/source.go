package domain

import "time"

// Strategy is how the bytes of a video are obtained.
type Strategy string

const (
	StrategyManifest     Strategy = "manifest"
	StrategyPublicURL    Strategy = "public-url"
	StrategySignedObject Strategy = "signed-object"
	StrategyUnresolved   Strategy = "unresolved"
)

// ResolvedSource is the per-request answer of the resolver. For
// StrategySignedObject URL stays empty until the object key is signed.
type ResolvedSource struct {
	Strategy  Strategy
	URL       string
	ObjectKey string
}

// SignedAccess is a time-limited URL for one object key.
type SignedAccess struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Valid reports whether the entry can still be handed out at now.
func (a SignedAccess) Valid(now time.Time) bool {
	return a.URL != "" && now.Before(a.ExpiresAt)
}

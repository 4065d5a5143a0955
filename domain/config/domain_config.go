package config

import "time"

// VersionPolicy decides which client versions may overwrite the stored snapshot
type VersionPolicy string

const (
	// VersionPolicyPermissive accepts any client version >= the stored one
	VersionPolicyPermissive VersionPolicy = "permissive"
	// VersionPolicyStrict accepts only a client version equal to the stored one
	VersionPolicyStrict VersionPolicy = "strict"
)

// DomainConfig holds the business rules of snapshot sync and categories
type DomainConfig struct {
	// Category rules
	MaxCategoryNameLength int
	FallbackCategoryName  string
	FallbackSortOrder     int
	DefaultSortOrder      int

	// Snapshot rules
	VersionPolicy    VersionPolicy
	MaxDocumentBytes int64
	WriteRetries     int

	// Account rules
	MinPasswordLength     int
	MaxDisplayNameLength  int
	SessionTTL            time.Duration
	AuthRateLimit         int
	AuthRateLimitWindow   time.Duration
	CategoryLockDuration  time.Duration
	CategoryLockWaitLimit time.Duration
}

// DefaultDomainConfig returns the default domain configuration
func DefaultDomainConfig() *DomainConfig {
	return &DomainConfig{
		MaxCategoryNameLength: 40,
		FallbackCategoryName:  "Other",
		FallbackSortOrder:     9999,
		DefaultSortOrder:      0,

		VersionPolicy:    VersionPolicyPermissive,
		MaxDocumentBytes: 8 << 20,
		WriteRetries:     3,

		MinPasswordLength:     8,
		MaxDisplayNameLength:  80,
		SessionTTL:            30 * 24 * time.Hour,
		AuthRateLimit:         12,
		AuthRateLimitWindow:   time.Minute,
		CategoryLockDuration:  10 * time.Second,
		CategoryLockWaitLimit: 5 * time.Second,
	}
}

// ParseVersionPolicy maps a configuration string to a policy, defaulting to permissive
func ParseVersionPolicy(s string) VersionPolicy {
	if VersionPolicy(s) == VersionPolicyStrict {
		return VersionPolicyStrict
	}
	return VersionPolicyPermissive
}

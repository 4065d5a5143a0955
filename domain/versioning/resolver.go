package versioning

import "finsync/domain/config"

// Decision is the outcome of comparing a pushed version with the stored one
type Decision struct {
	Accept bool
	// ServerVersion is the version the comparison saw; on accept it is also
	// the expected version for the compare-and-swap write.
	ServerVersion int64
	// NextVersion is the version an accepted write will produce
	NextVersion int64
}

// Resolver decides whether a push may overwrite the stored snapshot.
// No field-level merge is attempted; an accepted push replaces the document.
type Resolver struct {
	policy config.VersionPolicy
}

// NewResolver creates a resolver for the given policy
func NewResolver(policy config.VersionPolicy) *Resolver {
	return &Resolver{policy: policy}
}

// Policy returns the active version policy
func (r *Resolver) Policy() config.VersionPolicy {
	return r.policy
}

// Resolve compares clientVersion against serverVersion. A client behind the
// server is always rejected. Under the strict policy a client ahead of the
// server is rejected as well.
func (r *Resolver) Resolve(clientVersion, serverVersion int64) Decision {
	d := Decision{ServerVersion: serverVersion}

	switch {
	case clientVersion < serverVersion:
		return d
	case r.policy == config.VersionPolicyStrict && clientVersion != serverVersion:
		return d
	}

	d.Accept = true
	d.NextVersion = serverVersion + 1
	return d
}

// Package model defines domain entities for the application.
package model

// CredentialKind is the closed set of credential types the gateway
// accepts behind the single auth header. Resolved once at the boundary;
// handlers never inspect the raw header.
type CredentialKind string

const (
	// KindMaster is the administrator-only static credential.
	KindMaster CredentialKind = "master"
	// KindAPIKey is a long-lived user-scoped key.
	KindAPIKey CredentialKind = "api_key"
	// KindAccessToken is a short-lived signed session credential.
	KindAccessToken CredentialKind = "access_token"
)

// Principal is the per-request caller identity produced by the
// credential resolver. It is transient and never persisted.
type Principal struct {
	Kind      CredentialKind
	UserID    string
	APIKeyID  string
	SessionID string // jti of the backing session, access tokens only
	IsAdmin   bool
}

// IsMaster reports whether the caller holds the master key.
func (p *Principal) IsMaster() bool {
	return p.Kind == KindMaster
}

package auth

import (
	"slices"

	"github.com/anyllm/gateway/internal/model"
)

// Policy declares which credential kinds a route accepts and whether a
// master-key caller must name an explicit target user. The table is
// fixed per route, not data-driven at request time.
type Policy struct {
	Name string
	// Allowed is the set of credential kinds the route accepts.
	Allowed []model.CredentialKind
	// RequireTarget forces master-key callers to supply a target
	// user. Routes that are not user-scoped leave this false.
	RequireTarget bool
}

// Route policies. Downstream consumers operate on the resolved
// Principal against one of these, never on the raw header.
var (
	// PolicyCall covers user-facing model call endpoints.
	PolicyCall = Policy{
		Name:    "call",
		Allowed: []model.CredentialKind{model.KindAPIKey, model.KindAccessToken, model.KindMaster},
	}

	// PolicySelf covers self-information endpoints such as key
	// management; the master key is deliberately rejected so admin
	// tooling cannot accidentally read or mint user keys here.
	PolicySelf = Policy{
		Name:    "self",
		Allowed: []model.CredentialKind{model.KindAPIKey, model.KindAccessToken},
	}

	// PolicyAdmin covers administrative endpoints.
	PolicyAdmin = Policy{
		Name:    "admin",
		Allowed: []model.CredentialKind{model.KindMaster},
	}

	// PolicyProfile covers profile/usage endpoints: all kinds, but a
	// master-key caller must name the user being inspected.
	PolicyProfile = Policy{
		Name:          "profile",
		Allowed:       []model.CredentialKind{model.KindAPIKey, model.KindAccessToken, model.KindMaster},
		RequireTarget: true,
	}
)

// Allows reports whether the policy accepts the credential kind.
func (p Policy) Allows(kind model.CredentialKind) bool {
	return slices.Contains(p.Allowed, kind)
}

// EffectiveUser authorizes the principal against the policy and
// resolves the user ID the request is accounted to. For api_key and
// access_token principals that is always their own user; the target
// parameter only applies to master-key callers.
func (p Policy) EffectiveUser(principal *model.Principal, target string) (string, error) {
	if principal == nil || !p.Allows(principal.Kind) {
		return "", ErrForbidden
	}

	if principal.IsMaster() {
		if p.RequireTarget && target == "" {
			return "", ErrTargetUserRequired
		}
		return target, nil
	}

	return principal.UserID, nil
}

package query

import (
	"hyquery/pkg/config"
	"hyquery/pkg/protocol"
)

// Access decides whether a V2 request may use an endpoint, either through
// public permissions or a recognized auth token.
type Access struct {
	public *config.Permissions
	tokens map[string]*config.Permissions
}

// NewAccess builds the access policy from the resolved auth config.
func NewAccess(cfg *config.AuthConfig) *Access {
	a := &Access{}
	if cfg != nil {
		a.public = cfg.PublicAccess
		a.tokens = cfg.Tokens
	}
	if a.public == nil {
		a.public = &config.Permissions{Basic: true}
	}
	if a.tokens == nil {
		a.tokens = map[string]*config.Permissions{}
	}
	return a
}

// Allowed reports whether queryType is permitted for a request carrying
// authToken (which may be empty). Challenge requests are always allowed.
func (a *Access) Allowed(queryType protocol.QueryType, authToken []byte) bool {
	if permits(a.public, queryType) {
		return true
	}
	if len(authToken) == 0 {
		return false
	}
	perms, ok := a.tokens[string(authToken)]
	return ok && permits(perms, queryType)
}

func permits(p *config.Permissions, queryType protocol.QueryType) bool {
	switch queryType {
	case protocol.QueryBasic:
		return p.Basic
	case protocol.QueryPlayers:
		return p.Players
	default:
		return true
	}
}

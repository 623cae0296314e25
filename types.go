package goGuard

import (
	"time"

	"github.com/MrEthical07/goGuard/authz"
)

// Identity is the authenticated principal of one request.
type Identity = authz.Identity

// Rule is the access requirement of one operation.
type Rule = authz.Rule

// Decision is the result of [Engine.Authorize].
type Decision = authz.Decision

// TokenPair is returned by [Engine.Login] and [Engine.Refresh]. The refresh
// token replaces any refresh token issued earlier for the same identity.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

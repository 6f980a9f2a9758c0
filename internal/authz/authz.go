// Package authz answers claim checks against the access claims middleware
// stored on the request context. Claim values are flat strings; holding the
// superuser claim grants everything.
package authz

import (
	"context"
	"strings"

	"fleetledger/pkg/requestcontext"
)

// Superuser grants every claim check.
const Superuser = "superuser"

// Claim value builders. Tags are aggregate type tags such as "Agency"; claim
// values are lowercase, e.g. "createagency" or "viewagencylist".
func Create(tag string) string      { return "create" + strings.ToLower(tag) }
func Update(tag string) string      { return "update" + strings.ToLower(tag) }
func Delete(tag string) string      { return "delete" + strings.ToLower(tag) }
func ViewDetails(tag string) string { return "view" + strings.ToLower(tag) + "details" }
func ViewList(tag string) string    { return "view" + strings.ToLower(tag) + "list" }

// Checker evaluates claim checks for the current request. It is stateless;
// the claims live on the context.
type Checker struct{}

func NewChecker() Checker { return Checker{} }

// Allow reports whether the caller holds the claim, or superuser.
func (Checker) Allow(ctx context.Context, claim string) bool {
	for _, held := range requestcontext.AccessClaims(ctx) {
		if held == claim || held == Superuser {
			return true
		}
	}
	return false
}

// Package access implements the authorization engine: per-request
// resolution of the roles entitled to act on the request's primary entity,
// compared against the caller's role set.
package access

import (
	"errors"
	"net/http"
	"sort"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/formapi/formapi/pkg/observability"
	"github.com/formapi/formapi/pkg/request"
	"github.com/formapi/formapi/pkg/store"
)

// EveryoneRole is the default identifier of the pseudo-role implicitly
// granted to every caller, authenticated or not.
const EveryoneRole = "000000000000000000000000"

// ErrUnauthorized signals an empty intersection between the caller's roles
// and the entity's permitted roles. Reported as 401, never retried.
var ErrUnauthorized = errors.New("unauthorized")

// methodPermissions maps an HTTP-style method to its "all" and "own"
// permission types.
var methodPermissions = map[string]struct{ All, Own string }{
	http.MethodPost:   {All: "create_all", Own: "create_own"},
	http.MethodGet:    {All: "read_all", Own: "read_own"},
	http.MethodPut:    {All: "update_all", Own: "update_own"},
	http.MethodPatch:  {All: "update_all", Own: "update_own"},
	http.MethodDelete: {All: "delete_all", Own: "delete_own"},
}

// Config holds the injected authorization settings.
type Config struct {
	// EveryoneRole overrides the well-known pseudo-role identifier.
	EveryoneRole string
	// AdminKey, when set, short-circuits authorization for requests
	// presenting it via the x-admin-key header or a bearer token.
	AdminKey string
	// CacheSize bounds the decision cache; zero disables caching.
	CacheSize int
}

// Authorizer decides whether a caller's roles intersect the roles permitted
// to perform an operation on the request's primary entity.
type Authorizer struct {
	cfg     Config
	cache   *lru.Cache[string, bool]
	metrics *observability.Metrics
	log     *observability.Logger
}

// NewAuthorizer creates an authorizer. Metrics may be nil.
func NewAuthorizer(cfg Config, metrics *observability.Metrics, log *observability.Logger) *Authorizer {
	if cfg.EveryoneRole == "" {
		cfg.EveryoneRole = EveryoneRole
	}
	a := &Authorizer{cfg: cfg, metrics: metrics, log: log}
	if cfg.CacheSize > 0 {
		a.cache, _ = lru.New[string, bool](cfg.CacheSize)
	}
	return a
}

// Everyone returns the configured pseudo-role identifier.
func (a *Authorizer) Everyone() string {
	return a.cfg.EveryoneRole
}

// AdminKeyMatches reports whether the request presents the configured
// administrative key, via the x-admin-key header or as a bearer token.
func (a *Authorizer) AdminKeyMatches(r *http.Request) bool {
	if a.cfg.AdminKey == "" {
		return false
	}
	if r.Header.Get("x-admin-key") == a.cfg.AdminKey {
		return true
	}
	auth := r.Header.Get("Authorization")
	return auth == "Bearer: "+a.cfg.AdminKey || auth == "Bearer "+a.cfg.AdminKey
}

// UserRoles returns the caller's role identifiers plus the everyone
// pseudo-role. Unauthenticated callers hold the default role set.
func (a *Authorizer) UserRoles(rc *request.Context) []string {
	if rc.User == nil {
		roles := make([]string, 0, len(rc.Roles.Default)+1)
		for _, role := range rc.Roles.Default {
			roles = append(roles, store.DocumentID(role))
		}
		return append(roles, a.cfg.EveryoneRole)
	}
	roles := make([]string, 0, len(rc.User.Roles)+1)
	roles = append(roles, rc.User.Roles...)
	return append(roles, a.cfg.EveryoneRole)
}

// EntityPermissionRoles computes the set of roles entitled to perform the
// method on the entity. Submission-type entities use submissionAccess;
// everything else uses access. "all" rules apply unconditionally, "own"
// rules only to the authenticated owner, and "self" rules grant the
// entity's own identity whatever the matching "own" rule grants.
func EntityPermissionRoles(entity store.Document, entityType, method string, user *request.User) []string {
	perms, ok := methodPermissions[method]
	if !ok {
		return nil
	}
	accessKey := "access"
	if entityType == "submission" {
		accessKey = "submissionAccess"
	}
	rules := accessRules(entity, accessKey)

	var roles []string
	for _, rule := range rules {
		switch ruleType(rule) {
		case perms.All:
			roles = append(roles, ruleRoles(rule)...)
		case perms.Own:
			if user != nil && ownerOf(entity) == user.ID {
				roles = append(roles, ruleRoles(rule)...)
			}
		case "self":
			if user != nil && user.ID == store.DocumentID(entity) {
				// Grant whatever the matching own-rule grants. With no
				// own-rule for this method, self grants nothing.
				for _, ownRule := range rules {
					if ruleType(ownRule) == perms.Own {
						roles = append(roles, ruleRoles(ownRule)...)
						break
					}
				}
			}
		}
	}
	return roles
}

// Authorize decides the request: admin key short-circuits, a request with
// no resolved entity targets the collection root and is allowed, otherwise
// the caller's roles must intersect the entity's permitted roles.
func (a *Authorizer) Authorize(r *http.Request, rc *request.Context) error {
	if a.AdminKeyMatches(r) {
		return nil
	}

	entity := rc.PrimaryEntity()
	if entity == nil {
		return nil
	}
	method := strings.ToUpper(r.Method)
	userRoles := a.UserRoles(rc)

	allowed, cacheKey, cached := a.cachedDecision(rc, entity, method, userRoles)
	if !cached {
		permitted := EntityPermissionRoles(rc.Resources[entity.Type], entity.Type, method, rc.User)
		allowed = intersects(userRoles, permitted)
		if a.cache != nil && cacheKey != "" {
			a.cache.Add(cacheKey, allowed)
		}
	}

	outcome := "allow"
	if !allowed {
		outcome = "deny"
	}
	if a.metrics != nil {
		a.metrics.AuthDecisionsTotal.WithLabelValues(entity.Type, method, outcome).Inc()
	}
	if !allowed {
		return ErrUnauthorized
	}
	return nil
}

// cachedDecision looks up a prior decision. The key includes the entity's
// modified timestamp, so updating an entity's access rules invalidates it.
func (a *Authorizer) cachedDecision(rc *request.Context, entity *request.EntityRef, method string, userRoles []string) (bool, string, bool) {
	if a.cache == nil {
		return false, "", false
	}
	doc := rc.Resources[entity.Type]
	modified := modifiedKey(doc["modified"])
	if modified == "" {
		return false, "", false
	}
	sorted := append([]string(nil), userRoles...)
	sort.Strings(sorted)
	key := entity.Type + "|" + entity.ID + "|" + modified + "|" + method + "|" + strings.Join(sorted, ",")
	allowed, ok := a.cache.Get(key)
	return allowed, key, ok
}

// modifiedKey renders a modified timestamp for the cache key. The value is
// a time.Time straight from the store or an already-rendered string.
func modifiedKey(value interface{}) string {
	switch v := value.(type) {
	case time.Time:
		return v.UTC().Format(time.RFC3339Nano)
	case string:
		return v
	}
	return ""
}

func intersects(a, b []string) bool {
	set := make(map[string]bool, len(a))
	for _, item := range a {
		set[item] = true
	}
	for _, item := range b {
		if set[item] {
			return true
		}
	}
	return false
}

func accessRules(entity store.Document, key string) []map[string]interface{} {
	raw, _ := entity[key].([]interface{})
	rules := make([]map[string]interface{}, 0, len(raw))
	for _, item := range raw {
		if rule, ok := item.(map[string]interface{}); ok {
			rules = append(rules, rule)
		}
	}
	return rules
}

func ruleType(rule map[string]interface{}) string {
	t, _ := rule["type"].(string)
	return t
}

func ruleRoles(rule map[string]interface{}) []string {
	raw, _ := rule["roles"].([]interface{})
	roles := make([]string, 0, len(raw))
	for _, item := range raw {
		if role, ok := item.(string); ok {
			roles = append(roles, role)
		}
	}
	return roles
}

func ownerOf(entity store.Document) string {
	owner, _ := entity["owner"].(string)
	return owner
}

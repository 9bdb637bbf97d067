package authz

import (
	"sync"

	"github.com/casbin/casbin/v2"
)

// EnforceRequest asks whether a role may perform an action on a resource.
type EnforceRequest struct {
	Role     string
	Resource string
	Action   string
}

//go:generate mockgen -source=authz_service.go -destination=mock/authz_service_mock.go -package=mock
type Service interface {
	Enforce(req EnforceRequest) (bool, error)
}

type service struct {
	enforcer *casbin.Enforcer
	mu       sync.Mutex
}

// rolePolicies is the built-in permission table. Operators run and inspect
// syncs; admins additionally manage branches.
var rolePolicies = [][3]string{
	{"operator", "sync", "trigger"},
	{"operator", "sync", "read"},
	{"admin", "sync", "trigger"},
	{"admin", "sync", "read"},
	{"admin", "branch", "write"},
	{"admin", "branch", "read"},
}

var roleInheritance = [][2]string{
	{"admin", "operator"},
}

func NewService(enforcer *casbin.Enforcer) (Service, error) {
	for _, p := range rolePolicies {
		if _, err := enforcer.AddPolicy(p[0], p[1], p[2]); err != nil {
			return nil, err
		}
	}
	for _, g := range roleInheritance {
		if _, err := enforcer.AddGroupingPolicy(g[0], g[1]); err != nil {
			return nil, err
		}
	}
	return &service{enforcer: enforcer}, nil
}

func (s *service) Enforce(req EnforceRequest) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enforcer.Enforce(req.Role, req.Resource, req.Action)
}

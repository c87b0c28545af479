package price

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// Action is a class of mutating operation subject to authorization.
type Action uint8

// Actions.
const (
	// ActionConfigure covers adding, removing and reconfiguring assets.
	ActionConfigure Action = iota + 1
	// ActionStore covers StorePrice and StoreObservations.
	ActionStore
)

func (a Action) String() string {
	switch a {
	case ActionConfigure:
		return "configure"
	case ActionStore:
		return "store"
	}
	return "unknown"
}

// Authorizer decides whether caller may perform action on asset.
// asset is the zero address for engine-wide actions.
type Authorizer interface {
	Authorize(ctx context.Context, caller common.Address, action Action, asset common.Address) bool
}

// AuthorizerFunc adapts a function to Authorizer.
type AuthorizerFunc func(ctx context.Context, caller common.Address, action Action, asset common.Address) bool

// Authorize implements Authorizer.
func (f AuthorizerFunc) Authorize(ctx context.Context, caller common.Address, action Action, asset common.Address) bool {
	return f(ctx, caller, action, asset)
}

// AllowAll permits every caller.
type AllowAll struct{}

// Authorize implements Authorizer.
func (AllowAll) Authorize(context.Context, common.Address, Action, common.Address) bool {
	return true
}

// AllowList permits admins to configure and store, and keepers to store.
type AllowList struct {
	admins  map[common.Address]struct{}
	keepers map[common.Address]struct{}
}

// NewAllowList creates an allow-list authorizer.
func NewAllowList(admins, keepers []common.Address) *AllowList {
	l := &AllowList{
		admins:  make(map[common.Address]struct{}, len(admins)),
		keepers: make(map[common.Address]struct{}, len(keepers)),
	}
	for _, a := range admins {
		l.admins[a] = struct{}{}
	}
	for _, k := range keepers {
		l.keepers[k] = struct{}{}
	}
	return l
}

// Authorize implements Authorizer.
func (l *AllowList) Authorize(_ context.Context, caller common.Address, action Action, _ common.Address) bool {
	if _, ok := l.admins[caller]; ok {
		return true
	}
	if action == ActionStore {
		_, ok := l.keepers[caller]
		return ok
	}
	return false
}

// ContractChecker reports whether an address holds deployed code.
type ContractChecker interface {
	IsContract(ctx context.Context, addr common.Address) (bool, error)
}

// ContractCheckerFunc adapts a function to ContractChecker.
type ContractCheckerFunc func(ctx context.Context, addr common.Address) (bool, error)

// IsContract implements ContractChecker.
func (f ContractCheckerFunc) IsContract(ctx context.Context, addr common.Address) (bool, error) {
	return f(ctx, addr)
}

package client

import (
	"sort"
	"strings"
	"sync"

	"github.com/saiset-co/sai-trade-client/types"
)

const (
	OpLogin  = "login"
	OpLogout = "logout"
)

// defaultOperations is the built-in endpoint table. Entries from
// client.operations in the config override or extend it.
var defaultOperations = []types.Operation{
	{Name: OpLogin, Service: "auth", Method: "POST", Path: "/api/v1/auth/login"},
	{Name: OpLogout, Service: "auth", Method: "POST", Path: "/api/v1/auth/logout"},
	{Name: "register", Service: "auth", Method: "POST", Path: "/api/v1/auth/register"},
	{Name: "getProfile", Service: "auth", Method: "GET", Path: "/api/v1/users/me"},
	{Name: "updateProfile", Service: "auth", Method: "PUT", Path: "/api/v1/users/me"},
	{Name: "getApiKeys", Service: "auth", Method: "GET", Path: "/api/v1/users/me/api-keys"},

	{Name: "getBalances", Service: "trading", Method: "GET", Path: "/api/v1/account/balances"},
	{Name: "getPositions", Service: "trading", Method: "GET", Path: "/api/v1/positions"},
	{Name: "closePosition", Service: "trading", Method: "POST", Path: "/api/v1/positions/{id}/close"},
	{Name: "getOrders", Service: "trading", Method: "GET", Path: "/api/v1/orders"},
	{Name: "getOrder", Service: "trading", Method: "GET", Path: "/api/v1/orders/{id}"},
	{Name: "createOrder", Service: "trading", Method: "POST", Path: "/api/v1/orders"},
	{Name: "cancelOrder", Service: "trading", Method: "DELETE", Path: "/api/v1/orders/{id}"},
	{Name: "getTrades", Service: "trading", Method: "GET", Path: "/api/v1/trades"},

	{Name: "getMarkets", Service: "market", Method: "GET", Path: "/api/v1/markets"},
	{Name: "getTicker", Service: "market", Method: "GET", Path: "/api/v1/markets/{symbol}/ticker"},
	{Name: "getOrderBook", Service: "market", Method: "GET", Path: "/api/v1/markets/{symbol}/orderbook"},
	{Name: "getKlines", Service: "market", Method: "GET", Path: "/api/v1/markets/{symbol}/klines"},
	{Name: "getStrategies", Service: "market", Method: "GET", Path: "/api/v1/strategies"},
	{Name: "getStrategy", Service: "market", Method: "GET", Path: "/api/v1/strategies/{id}"},
	{Name: "createStrategy", Service: "market", Method: "POST", Path: "/api/v1/strategies"},
	{Name: "updateStrategy", Service: "market", Method: "PUT", Path: "/api/v1/strategies/{id}"},
	{Name: "deleteStrategy", Service: "market", Method: "DELETE", Path: "/api/v1/strategies/{id}"},
	{Name: "backtestStrategy", Service: "market", Method: "POST", Path: "/api/v1/strategies/{id}/backtest"},

	{Name: "getNotifications", Service: "notification", Method: "GET", Path: "/api/v1/notifications"},
	{Name: "markNotificationRead", Service: "notification", Method: "POST", Path: "/api/v1/notifications/{id}/read"},
	{Name: "getRiskLimits", Service: "notification", Method: "GET", Path: "/api/v1/risk/limits"},
	{Name: "updateRiskLimits", Service: "notification", Method: "PUT", Path: "/api/v1/risk/limits"},
	{Name: "getAlerts", Service: "notification", Method: "GET", Path: "/api/v1/risk/alerts"},
}

type Registry struct {
	operations map[string]types.Operation
	mu         sync.RWMutex
}

// NewRegistry returns the default table with overrides applied on top.
func NewRegistry(overrides map[string]types.OperationConfig) *Registry {
	r := &Registry{operations: make(map[string]types.Operation, len(defaultOperations)+len(overrides))}

	for _, op := range defaultOperations {
		r.operations[op.Name] = op
	}

	for name, cfg := range overrides {
		r.operations[name] = types.Operation{
			Name:    name,
			Service: cfg.Service,
			Method:  strings.ToUpper(cfg.Method),
			Path:    cfg.Path,
		}
	}

	return r
}

func (r *Registry) Lookup(name string) (types.Operation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	op, ok := r.operations[name]
	return op, ok
}

// Register adds a new operation; existing names are rejected.
func (r *Registry) Register(op types.Operation) error {
	if op.Name == "" || op.Service == "" || op.Path == "" {
		return types.Errorf(types.ErrInvalidParameter, "incomplete operation %q", op.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.operations[op.Name]; exists {
		return types.Errorf(types.ErrOperationExists, "operation: %s", op.Name)
	}

	op.Method = strings.ToUpper(op.Method)
	r.operations[op.Name] = op

	return nil
}

func (r *Registry) List() []types.Operation {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ops := make([]types.Operation, 0, len(r.operations))
	for _, op := range r.operations {
		ops = append(ops, op)
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i].Name < ops[j].Name })

	return ops
}

// Services lists the distinct services referenced by the table.
func (r *Registry) Services() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, op := range r.operations {
		seen[op.Service] = struct{}{}
	}

	services := make([]string, 0, len(seen))
	for s := range seen {
		services = append(services, s)
	}
	sort.Strings(services)

	return services
}

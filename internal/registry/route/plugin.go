package route

import (
	"sort"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/misteriosai/agent-memory/internal/service"
)

// RouterLoader mounts routes on the gin engine. Handlers reach the memory
// subsystem through svc.
type RouterLoader func(r *gin.Engine, svc *service.Memory) error

// RouteType distinguishes which server a plugin's routes belong to.
type RouteType int

const (
	// RouteTypeMain registers routes on the main API server.
	RouteTypeMain RouteType = iota
	// RouteTypeManagement registers routes on the management server (health, metrics).
	// When no dedicated management port is configured, these are mounted on the main server.
	RouteTypeManagement
)

// Plugin represents a route plugin with an order for deterministic mount sequence.
type Plugin struct {
	Order  int
	Type   RouteType
	Loader RouterLoader
}

var (
	mu      sync.Mutex
	plugins []Plugin
)

// Register adds a route plugin. Called from init() in plugin packages.
func Register(p Plugin) {
	mu.Lock()
	defer mu.Unlock()
	plugins = append(plugins, p)
}

func loaders(t RouteType) []RouterLoader {
	mu.Lock()
	defer mu.Unlock()
	sorted := make([]Plugin, len(plugins))
	copy(sorted, plugins)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Order < sorted[j].Order })
	var out []RouterLoader
	for _, p := range sorted {
		if p.Type == t {
			out = append(out, p.Loader)
		}
	}
	return out
}

// MainRouteLoaders returns loaders for RouteTypeMain plugins, sorted by order.
func MainRouteLoaders() []RouterLoader {
	return loaders(RouteTypeMain)
}

// ManagementRouteLoaders returns loaders for RouteTypeManagement plugins, sorted by order.
func ManagementRouteLoaders() []RouterLoader {
	return loaders(RouteTypeManagement)
}

// Mount runs every loader against r.
func Mount(r *gin.Engine, svc *service.Memory, loaders []RouterLoader) error {
	for _, load := range loaders {
		if err := load(r, svc); err != nil {
			return err
		}
	}
	return nil
}

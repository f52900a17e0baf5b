package tools

import (
	"encoding/json"
	"net/http"

	"github.com/shettysaish20/Hybrid-DM-MCP-App/internal/mcp"
	"github.com/shettysaish20/Hybrid-DM-MCP-App/internal/rpc"
)

// Catalogue lists connected tool servers and their tools.
type Catalogue interface {
	ServerIDs() []string
	Tools(ids []string) []mcp.ToolDefinition
}

// SchemaHandler serves the tool catalogue as JSON.
type SchemaHandler struct {
	Catalogue    Catalogue
	Descriptions map[string]string
}

// ServerIDs lists the connected servers; empty without a catalogue.
func (h SchemaHandler) ServerIDs() []string {
	if h.Catalogue == nil {
		return []string{}
	}
	return h.Catalogue.ServerIDs()
}

// ServeHTTP renders one entry per server, in start order.
func (h SchemaHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	servers := []rpc.ServerTools{}
	if h.Catalogue != nil {
		for _, id := range h.Catalogue.ServerIDs() {
			entry := rpc.ServerTools{ID: id, Description: h.Descriptions[id], Tools: []rpc.ToolInfo{}}
			for _, d := range h.Catalogue.Tools([]string{id}) {
				entry.Tools = append(entry.Tools, rpc.ToolInfo{
					Name:        d.Name,
					Description: d.Description,
					InputSchema: d.InputSchema,
				})
			}
			servers = append(servers, entry)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"servers": servers})
}

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// MCP transports.
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
	TransportLocal = "local"
)

// MCPServerConfig describes one tool server the dispatcher connects to.
type MCPServerConfig struct {
	ID          string            `mapstructure:"id" yaml:"id"`
	Description string            `mapstructure:"description" yaml:"description"`
	Transport   string            `mapstructure:"transport" yaml:"transport"`
	Command     string            `mapstructure:"command" yaml:"command"`
	Args        []string          `mapstructure:"args" yaml:"args"`
	Script      string            `mapstructure:"script" yaml:"script"`
	Cwd         string            `mapstructure:"cwd" yaml:"cwd"`
	Env         map[string]string `mapstructure:"env" yaml:"env"`
	URL         string            `mapstructure:"url" yaml:"url"`
	Headers     map[string]string `mapstructure:"headers" yaml:"headers"`
	// Capabilities is informational; the catalogue format carries it.
	Capabilities []string `mapstructure:"capabilities" yaml:"capabilities"`
}

// normalize fills the transport and, for script-style entries, the command.
func (s *MCPServerConfig) normalize() {
	if s.Transport == "" {
		switch {
		case s.URL != "":
			s.Transport = TransportHTTP
		case s.Command != "" || s.Script != "":
			s.Transport = TransportStdio
		default:
			s.Transport = TransportLocal
		}
	}
	if s.Transport == TransportStdio && s.Command == "" && s.Script != "" {
		if strings.HasSuffix(s.Script, ".py") {
			s.Command = "python3"
			s.Args = append([]string{s.Script}, s.Args...)
		} else {
			s.Command = s.Script
		}
	}
}

func (s MCPServerConfig) validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return fmt.Errorf("mcp server must define id")
	}
	switch s.Transport {
	case TransportStdio:
		if s.Command == "" {
			return fmt.Errorf("mcp server %q: stdio transport needs command or script", s.ID)
		}
	case TransportHTTP:
		if s.URL == "" {
			return fmt.Errorf("mcp server %q: http transport needs url", s.ID)
		}
	case TransportLocal:
	default:
		return fmt.Errorf("mcp server %q: unknown transport %q", s.ID, s.Transport)
	}
	return nil
}

type catalogueFile struct {
	MCPServers []MCPServerConfig `yaml:"mcp_servers"`
}

// LoadServerCatalogue reads a profiles-style YAML file listing MCP servers
// under the top-level mcp_servers key. Relative cwd entries resolve against
// the file's directory.
func LoadServerCatalogue(path string) ([]MCPServerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read server catalogue: %w", err)
	}
	var file catalogueFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse server catalogue: %w", err)
	}

	base := filepath.Dir(path)
	seen := make(map[string]bool, len(file.MCPServers))
	for i := range file.MCPServers {
		s := &file.MCPServers[i]
		s.normalize()
		if s.Cwd != "" && !filepath.IsAbs(s.Cwd) {
			s.Cwd = filepath.Join(base, s.Cwd)
		}
		if err := s.validate(); err != nil {
			return nil, err
		}
		if seen[s.ID] {
			return nil, fmt.Errorf("duplicate mcp server id %q", s.ID)
		}
		seen[s.ID] = true
	}
	return file.MCPServers, nil
}

package client

import (
	"fmt"
	"log/slog"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// ServerConfig describes one entry of the mcpServers map in a servers file.
type ServerConfig struct {
	Name    string            `yaml:"-"`
	Command string            `yaml:"command"`
	Args    []string          `yaml:"args"`
	Env     map[string]string `yaml:"env"`
	URL     string            `yaml:"url"`
	Token   string            `yaml:"token"`
}

type serversFile struct {
	MCPServers map[string]ServerConfig `yaml:"mcpServers"`
}

// LoadServers reads a YAML or JSON servers file. ${VAR} references in commands,
// arguments, environment values, URLs and tokens are expanded from the process
// environment. Servers are returned sorted by name.
func LoadServers(path string) ([]ServerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read servers file: %w", err)
	}
	return ParseServers(data)
}

func ParseServers(data []byte) ([]ServerConfig, error) {
	var file serversFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse servers file: %w", err)
	}
	if len(file.MCPServers) == 0 {
		return nil, fmt.Errorf("servers file defines no mcpServers")
	}

	servers := make([]ServerConfig, 0, len(file.MCPServers))
	for name, srv := range file.MCPServers {
		srv.Name = name
		srv.expand()
		if srv.Command == "" && srv.URL == "" {
			return nil, fmt.Errorf("server %s: command or url is required", name)
		}
		if srv.Command != "" && srv.URL != "" {
			return nil, fmt.Errorf("server %s: command and url are mutually exclusive", name)
		}
		servers = append(servers, srv)
	}
	sort.Slice(servers, func(i, j int) bool { return servers[i].Name < servers[j].Name })
	return servers, nil
}

func (s *ServerConfig) expand() {
	s.Command = os.ExpandEnv(s.Command)
	s.URL = os.ExpandEnv(s.URL)
	s.Token = os.ExpandEnv(s.Token)
	for i, arg := range s.Args {
		s.Args[i] = os.ExpandEnv(arg)
	}
	for k, v := range s.Env {
		s.Env[k] = os.ExpandEnv(v)
	}
}

// ClientConfig converts the entry into a client Config.
func (s ServerConfig) ClientConfig(log *slog.Logger) Config {
	return Config{
		Logger:   log,
		Name:     s.Name,
		Command:  s.Command,
		Args:     s.Args,
		Env:      s.Env,
		Endpoint: s.URL,
		Token:    s.Token,
	}
}

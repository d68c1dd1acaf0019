package config

import (
	_ "embed"
	"errors"
	"fmt"
	"net/netip"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed config.default.yaml
var defaultConfigYAML []byte

type Config struct {
	Resolver Resolver `yaml:"resolver"`
	Server   Server   `yaml:"server"`
	Proxy    Proxy    `yaml:"proxy"`
	MDNS     MDNS     `yaml:"mdns"`
}

type Resolver struct {
	RootServers  []netip.Addr  `yaml:"root_servers"`
	Port         uint16        `yaml:"port"`
	Timeout      time.Duration `yaml:"timeout"`
	MaxReferrals int           `yaml:"max_referrals"`
}

type Server struct {
	Addr          string        `yaml:"addr"`
	HTTPAddr      string        `yaml:"http_addr"`
	MaxConcurrent int64         `yaml:"max_concurrent"`
	MaxFrameSize  uint32        `yaml:"max_frame_size"`
	ReadTimeout   time.Duration `yaml:"read_timeout"`
	WriteTimeout  time.Duration `yaml:"write_timeout"`
}

type Proxy struct {
	Addr            string        `yaml:"addr"`
	HTTPAddr        string        `yaml:"http_addr"`
	Upstream        string        `yaml:"upstream"`
	UpstreamTimeout time.Duration `yaml:"upstream_timeout"`
	Fallback        string        `yaml:"fallback"`
	FallbackTimeout time.Duration `yaml:"fallback_timeout"`
	TTL             uint32        `yaml:"ttl"`
	MaxDatagramSize int           `yaml:"max_datagram_size"`
	MaxReplySize    int           `yaml:"max_reply_size"`
}

type MDNS struct {
	Addr    string        `yaml:"addr"`
	Domains DomainList    `yaml:"domains"`
	Timeout time.Duration `yaml:"timeout"`
}

type DomainList []string

func (s *DomainList) UnmarshalYAML(value *yaml.Node) error {
	var ss []string
	if err := value.Decode(&ss); err != nil {
		return err
	}
	for i := range ss {
		ss[i] = normalizeDomain(ss[i])
	}
	*s = ss
	return nil
}

// Match reports whether domain equals or lies under one of the listed domains.
func (s DomainList) Match(domain string) bool {
	domain = normalizeDomain(domain)
	for _, suffix := range s {
		if strings.HasSuffix(domain, suffix) {
			return true
		}
	}
	return false
}

func normalizeDomain(domain string) string {
	return "." + strings.ToLower(strings.Trim(domain, "."))
}

func (c *Config) validate() error {
	var errs []error
	if len(c.Resolver.RootServers) == 0 {
		errs = append(errs, errors.New("resolver.root_servers is empty"))
	}
	for _, addr := range c.Resolver.RootServers {
		if !addr.Is4() {
			errs = append(errs, fmt.Errorf("resolver.root_servers: %s is not an IPv4 address", addr))
		}
	}
	if c.Resolver.Timeout <= 0 {
		errs = append(errs, errors.New("resolver.timeout must be positive"))
	}
	if c.Server.MaxConcurrent <= 0 {
		errs = append(errs, errors.New("server.max_concurrent must be positive"))
	}
	if c.Proxy.UpstreamTimeout <= 0 || c.Proxy.FallbackTimeout <= 0 {
		errs = append(errs, errors.New("proxy timeouts must be positive"))
	}
	if c.Proxy.MaxDatagramSize < 12 || c.Proxy.MaxReplySize <= 0 {
		errs = append(errs, errors.New("proxy buffer sizes are too small"))
	}
	return errors.Join(errs...)
}

func DefaultConfig() *Config {
	return defaultConfig()
}

// LoadConfig reads file over the embedded defaults. An empty file name returns the defaults.
func LoadConfig(file string) (*Config, error) {
	cfg := defaultConfig()
	if file == "" {
		return cfg, nil
	}

	f, err := os.Open(file)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	if err = yaml.NewDecoder(f).Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err = cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func defaultConfig() *Config {
	var cfg Config
	if err := yaml.Unmarshal(defaultConfigYAML, &cfg); err != nil {
		panic(fmt.Errorf("failed to load default config: %w", err))
	}
	return &cfg
}

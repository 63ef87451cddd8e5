// Package config holds the runtime configuration and its loader.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pion/webrtc/v4"
	"github.com/spf13/viper"
)

// Role represents the side a participant plays in a call.
type Role string

const (
	RoleCaller Role = "caller"
	RoleCallee Role = "callee"
)

// DefaultSTUNServers are used when no ice_servers are configured.
var DefaultSTUNServers = []string{
	"stun:stun1.l.google.com:19302",
	"stun:stun2.l.google.com:19302",
}

// ICEServer is one STUN/TURN entry.
type ICEServer struct {
	URLs       []string `mapstructure:"urls"`
	Username   string   `mapstructure:"username"`
	Credential string   `mapstructure:"credential"`
}

// Devices names the capture sources. The "camera" is an IVF (VP8) file and
// the "microphone" an Ogg (Opus) file, replayed in real time.
type Devices struct {
	Video string `mapstructure:"video"`
	Audio string `mapstructure:"audio"`
}

// Placeholder configures the synthetic video shown while the camera is off.
type Placeholder struct {
	File string `mapstructure:"file"` // optional IVF file; its first frame is repeated
	FPS  int    `mapstructure:"fps"`
}

// Config stores every parameter of a duocall process.
type Config struct {
	RendezvousURL        string      `mapstructure:"rendezvous_url"` // callee/caller: rendezvous server base URL
	ListenAddr           string      `mapstructure:"listen_addr"`    // rendezvous server: listen address
	Mode                 string      `mapstructure:"mode"`           // rendezvous server: gin mode
	ICEServers           []ICEServer `mapstructure:"ice_servers"`
	ICECandidatePoolSize int         `mapstructure:"ice_candidate_pool_size"`
	Devices              Devices     `mapstructure:"devices"`
	Placeholder          Placeholder `mapstructure:"placeholder"`
	RecordDir            string      `mapstructure:"record_dir"` // empty disables recording of remote tracks
	Debug                bool        `mapstructure:"debug"`
}

// Load reads configuration from defaults, the optional YAML file at path
// (skipped when empty) and DUOCALL_* environment variables, in that order of
// increasing precedence.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("DUOCALL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("rendezvous_url", "http://127.0.0.1:8080")
	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("mode", "release")
	v.SetDefault("ice_candidate_pool_size", 10)
	v.SetDefault("devices.video", "")
	v.SetDefault("devices.audio", "")
	v.SetDefault("placeholder.file", "")
	v.SetDefault("placeholder.fps", 1)
	v.SetDefault("record_dir", "")
	v.SetDefault("debug", false)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if len(cfg.ICEServers) == 0 {
		cfg.ICEServers = []ICEServer{{URLs: DefaultSTUNServers}}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges that viper cannot express.
func (c *Config) Validate() error {
	var errs []error
	if c.ICECandidatePoolSize < 0 || c.ICECandidatePoolSize > 255 {
		errs = append(errs, fmt.Errorf("ice_candidate_pool_size must be 0~255, got %d", c.ICECandidatePoolSize))
	}
	if c.Placeholder.FPS < 1 {
		errs = append(errs, fmt.Errorf("placeholder.fps must be >= 1, got %d", c.Placeholder.FPS))
	}
	for i, s := range c.ICEServers {
		if len(s.URLs) == 0 {
			errs = append(errs, fmt.Errorf("ice_servers[%d] has no urls", i))
		}
	}
	return errors.Join(errs...)
}

// WebRTC converts the ICE settings into a pion configuration.
func (c *Config) WebRTC() webrtc.Configuration {
	servers := make([]webrtc.ICEServer, 0, len(c.ICEServers))
	for _, s := range c.ICEServers {
		srv := webrtc.ICEServer{URLs: s.URLs, Username: s.Username}
		if s.Credential != "" {
			srv.Credential = s.Credential
		}
		servers = append(servers, srv)
	}
	return webrtc.Configuration{
		ICEServers:           servers,
		ICECandidatePoolSize: uint8(c.ICECandidatePoolSize),
	}
}

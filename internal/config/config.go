package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Voice transport modes.
const (
	VoiceModeMesh    = "mesh"
	VoiceModeManaged = "managed"
)

// Default configuration values (production).
const (
	DefaultDomain     = "cinemate.example.com"
	DefaultSTUN       = "stun:stun.l.google.com:19302"
	DefaultEchoWindow = 100 * time.Millisecond
)

// Config holds application configuration.
type Config struct {
	// Domain is the Cinemate server domain. APIBase and WSBase are
	// derived from it unless overridden individually.
	Domain  string `mapstructure:"domain"`
	APIBase string `mapstructure:"api_base"`
	WSBase  string `mapstructure:"ws_base"`

	// ICE servers for the voice mesh.
	STUNServer string `mapstructure:"stun_server"`
	TURNServer string `mapstructure:"turn_server"`
	TURNUser   string `mapstructure:"turn_username"`
	TURNPass   string `mapstructure:"turn_password"`

	// VoiceMode selects between the full mesh ("mesh") and a managed
	// media relay ("managed"). With "managed" the mesh is bypassed and
	// ManagedURL/ManagedToken are handed to the managed transport.
	VoiceMode    string `mapstructure:"voice_mode"`
	ManagedURL   string `mapstructure:"managed_url"`
	ManagedToken string `mapstructure:"managed_token"`

	// AudioSource is the path of an Ogg/Opus file used as the local
	// audio source. Empty means voice cannot be enabled.
	AudioSource string `mapstructure:"audio_source"`

	// EchoWindow is the grace period during which media events caused by
	// a remotely applied playback command are not re-broadcast.
	EchoWindow time.Duration `mapstructure:"echo_window"`

	// Identity of the local user. Token takes precedence when set.
	DisplayName    string `mapstructure:"display_name"`
	UserID         string `mapstructure:"user_id"`
	IdentityToken  string `mapstructure:"identity_token"`
	IdentitySecret string `mapstructure:"identity_secret"`

	LogLevel string `mapstructure:"log_level"`
}

// Options carries CLI flag overrides. Flags beat environment, which
// beats the optional config file, which beats defaults.
type Options struct {
	Domain      string
	STUN        string
	TURN        string
	TURNUser    string
	TURNPass    string
	VoiceMode   string
	AudioSource string
	Name        string
	ConfigFile  string
}

// Load reads configuration from defaults, an optional yaml file,
// CINEMATE_* environment variables and CLI flag overrides.
func Load(opts Options) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("cinemate")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("domain", DefaultDomain)
	v.SetDefault("stun_server", DefaultSTUN)
	v.SetDefault("voice_mode", VoiceModeMesh)
	v.SetDefault("echo_window", DefaultEchoWindow.String())
	v.SetDefault("display_name", "Anonymous")
	v.SetDefault("log_level", "warn")

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyOverride(&cfg.Domain, opts.Domain)
	applyOverride(&cfg.STUNServer, opts.STUN)
	applyOverride(&cfg.TURNServer, opts.TURN)
	applyOverride(&cfg.TURNUser, opts.TURNUser)
	applyOverride(&cfg.TURNPass, opts.TURNPass)
	applyOverride(&cfg.VoiceMode, opts.VoiceMode)
	applyOverride(&cfg.AudioSource, opts.AudioSource)
	applyOverride(&cfg.DisplayName, opts.Name)

	if cfg.APIBase == "" {
		cfg.APIBase = fmt.Sprintf("https://%s", cfg.Domain)
	}
	if cfg.WSBase == "" {
		cfg.WSBase = fmt.Sprintf("wss://%s", cfg.Domain)
	}
	if cfg.VoiceMode != VoiceModeMesh && cfg.VoiceMode != VoiceModeManaged {
		return nil, fmt.Errorf("unknown voice mode %q", cfg.VoiceMode)
	}
	if cfg.EchoWindow <= 0 {
		cfg.EchoWindow = DefaultEchoWindow
	}

	return &cfg, nil
}

func applyOverride(dst *string, val string) {
	if val != "" {
		*dst = val
	}
}

// RoomSocketURL builds the relay websocket URL for a room.
func (c *Config) RoomSocketURL(roomID, username, userID string) string {
	q := url.Values{}
	q.Set("username", username)
	if userID != "" {
		q.Set("user_id", userID)
	}
	return fmt.Sprintf("%s/ws/%s?%s", c.WSBase, url.PathEscape(roomID), q.Encode())
}

// RoomLink returns the shareable webapp URL for a room ID.
func (c *Config) RoomLink(roomID string) string {
	return fmt.Sprintf("https://%s/?room=%s", c.Domain, url.QueryEscape(roomID))
}

// STUNServers returns the STUN server URLs.
func (c *Config) STUNServers() []string {
	if c.STUNServer == "" {
		return nil
	}
	return []string{c.STUNServer}
}

// TURNServers returns TURN server URLs if configured.
func (c *Config) TURNServers() []string {
	if c.TURNServer == "" {
		return nil
	}
	return []string{
		fmt.Sprintf("%s:3478?transport=udp", c.TURNServer),
		fmt.Sprintf("%s:3478?transport=tcp", c.TURNServer),
	}
}

// TURNCredentials returns the TURN username and password.
func (c *Config) TURNCredentials() (string, string) {
	return c.TURNUser, c.TURNPass
}

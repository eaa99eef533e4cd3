package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-ini/ini"
	"gopkg.in/yaml.v3"

	"c4ghfs/internal/artifacts"
	"c4ghfs/internal/cache"
	"c4ghfs/internal/common"
	"c4ghfs/internal/vfs"
)

// getConfigDir returns the config directory path.
// Uses C4GHFS_CONFIG_DIR env var if set, otherwise defaults to ~/.c4ghfs.
// This is computed dynamically to support test isolation.
func getConfigDir() string {
	if dir := os.Getenv("C4GHFS_CONFIG_DIR"); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".c4ghfs")
}

// ConfigDir returns the configuration directory path
func ConfigDir() string {
	return getConfigDir()
}

// SettingsPath returns the YAML settings file path
func SettingsPath() string {
	return filepath.Join(getConfigDir(), "settings.yaml")
}

// ConfPath returns the crypt4ghfs-style INI file path
func ConfPath() string {
	return filepath.Join(getConfigDir(), "crypt4ghfs.conf")
}

// InitConfigDir creates the config directory and writes the default
// settings file if none exists. It returns the settings path.
func InitConfigDir() (string, error) {
	if err := os.MkdirAll(getConfigDir(), 0700); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}
	path := SettingsPath()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.WriteFile(path, artifacts.GlobalSettings, 0600); err != nil {
			return "", fmt.Errorf("failed to create default settings: %w", err)
		}
	}
	return path, nil
}

// Settings is the overlay configuration
type Settings struct {
	RootDir               string   `yaml:"rootdir"`
	Extension             string   `yaml:"extension"`
	AssumeSameSizeHeaders *bool    `yaml:"assume_same_size_headers"` // pointer to detect missing
	LogLevel              string   `yaml:"log_level"`                // trace, debug, info, warn, off
	EntryTimeout          int      `yaml:"entry_timeout"`            // seconds
	AttrTimeout           int      `yaml:"attr_timeout"`             // seconds
	NameEncoding          string   `yaml:"name_encoding"`
	Excludes              []string `yaml:"excludes"`
	ListWorkers           int      `yaml:"list_workers"`
	HeaderCacheTTL        int      `yaml:"header_cache_ttl"` // seconds, 0 = no expiration
	HeaderCacheSize       int      `yaml:"header_cache_size"`
}

// loadDefaultSettings parses default settings from embedded artifact.
func loadDefaultSettings() Settings {
	var settings Settings
	if err := yaml.Unmarshal(artifacts.GlobalSettings, &settings); err != nil {
		panic("failed to parse embedded settings: " + err.Error())
	}
	return settings
}

// Defaults returns the built-in settings
func Defaults() *Settings {
	s := loadDefaultSettings()
	return &s
}

// ApplyDefaults fills zero-value fields with their defaults. Extension is
// left alone: an explicitly empty extension disables decryption, so only
// a missing key (handled by the loaders) falls back to "c4gh".
func (s *Settings) ApplyDefaults() {
	def := loadDefaultSettings()
	if s.AssumeSameSizeHeaders == nil {
		s.AssumeSameSizeHeaders = def.AssumeSameSizeHeaders
	}
	if s.LogLevel == "" {
		s.LogLevel = def.LogLevel
	}
	if s.EntryTimeout <= 0 {
		s.EntryTimeout = def.EntryTimeout
	}
	if s.AttrTimeout <= 0 {
		s.AttrTimeout = def.AttrTimeout
	}
	if s.NameEncoding == "" {
		s.NameEncoding = def.NameEncoding
	}
	if s.ListWorkers <= 0 {
		s.ListWorkers = def.ListWorkers
	}
	if s.HeaderCacheSize <= 0 {
		s.HeaderCacheSize = def.HeaderCacheSize
	}
}

// SameSizeHeaders returns whether all containers are assumed to share one
// header length (defaults to true).
func (s *Settings) SameSizeHeaders() bool {
	if s.AssumeSameSizeHeaders == nil {
		return true
	}
	return *s.AssumeSameSizeHeaders
}

// Suffix returns the normalized container suffix, e.g. ".c4gh"
func (s *Settings) Suffix() string {
	return common.NormalizeExtension(s.Extension)
}

// Root returns RootDir with a leading ~ expanded
func (s *Settings) Root() string {
	return expandHome(s.RootDir)
}

// NormalizedLogLevel returns the lowercase log level; "none" maps to "off".
func (s *Settings) NormalizedLogLevel() string {
	level := strings.ToLower(strings.TrimSpace(s.LogLevel))
	if level == "" || level == "none" {
		return "off"
	}
	return level
}

// TableOptions builds the VFS table options described by the settings
func (s *Settings) TableOptions() (vfs.TableOptions, error) {
	enc, err := vfs.LookupNameEncoding(s.NameEncoding)
	if err != nil {
		return vfs.TableOptions{}, err
	}

	opts := vfs.TableOptions{
		Entry: vfs.EntryOptions{
			Extension:    s.Suffix(),
			Hint:         vfs.NewHeaderSizeHint(vfs.PolicyFor(s.SameSizeHeaders())),
			NameEncoding: enc,
			EntryTimeout: time.Duration(s.EntryTimeout) * time.Second,
			AttrTimeout:  time.Duration(s.AttrTimeout) * time.Second,
		},
		ListWorkers: s.ListWorkers,
	}
	if len(s.Excludes) > 0 {
		opts.Exclude = BuildExcludeFilter(s.Excludes)
	}
	if !cache.Disabled && s.HeaderCacheSize > 0 {
		opts.HeaderCache = cache.NewHeaderCache(time.Duration(s.HeaderCacheTTL)*time.Second, s.HeaderCacheSize)
	}
	return opts, nil
}

// Load reads settings from path. Files ending in .conf or .ini are read
// as crypt4ghfs INI files, everything else as YAML.
func Load(path string) (*Settings, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".conf", ".ini":
		return loadINI(path)
	default:
		return loadYAML(path)
	}
}

// LoadDefault loads settings.yaml from the config directory, then
// crypt4ghfs.conf. Falls back to embedded defaults if neither exists.
func LoadDefault() (*Settings, error) {
	for _, path := range []string{SettingsPath(), ConfPath()} {
		if _, err := os.Stat(path); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		return Load(path)
	}
	return Defaults(), nil
}

func loadYAML(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Start from defaults so keys missing from the file keep them
	settings := loadDefaultSettings()
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	settings.ApplyDefaults()
	return &settings, nil
}

// loadINI reads a crypt4ghfs.conf:
//
//	[DEFAULT] log_level
//	[FUSE]    rootdir, extension, assume_same_size_headers, entry_timeout,
//	          attr_timeout, name_encoding, list_workers
//	[FILTER]  excludes (comma separated)
//	[CACHE]   ttl, size
func loadINI(path string) (*Settings, error) {
	f, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	settings := loadDefaultSettings()

	if section := f.Section(ini.DefaultSection); section.HasKey("log_level") {
		settings.LogLevel = section.Key("log_level").String()
	}

	if f.HasSection("FUSE") {
		section := f.Section("FUSE")
		if section.HasKey("rootdir") {
			settings.RootDir = section.Key("rootdir").String()
		}
		if section.HasKey("extension") {
			settings.Extension = section.Key("extension").String()
		}
		if section.HasKey("assume_same_size_headers") {
			same, err := section.Key("assume_same_size_headers").Bool()
			if err != nil {
				return nil, fmt.Errorf("%s: assume_same_size_headers: %w", path, err)
			}
			settings.AssumeSameSizeHeaders = &same
		}
		if section.HasKey("entry_timeout") {
			settings.EntryTimeout = section.Key("entry_timeout").MustInt(settings.EntryTimeout)
		}
		if section.HasKey("attr_timeout") {
			settings.AttrTimeout = section.Key("attr_timeout").MustInt(settings.AttrTimeout)
		}
		if section.HasKey("name_encoding") {
			settings.NameEncoding = section.Key("name_encoding").String()
		}
		if section.HasKey("list_workers") {
			settings.ListWorkers = section.Key("list_workers").MustInt(settings.ListWorkers)
		}
	}

	if f.HasSection("FILTER") {
		section := f.Section("FILTER")
		if section.HasKey("excludes") {
			settings.Excludes = section.Key("excludes").Strings(",")
		}
	}

	if f.HasSection("CACHE") {
		section := f.Section("CACHE")
		if section.HasKey("ttl") {
			settings.HeaderCacheTTL = section.Key("ttl").MustInt(settings.HeaderCacheTTL)
		}
		if section.HasKey("size") {
			settings.HeaderCacheSize = section.Key("size").MustInt(settings.HeaderCacheSize)
		}
	}

	settings.ApplyDefaults()
	return &settings, nil
}

// Save writes settings as YAML to path
func Save(path string, settings *Settings) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	data, err := yaml.Marshal(settings)
	if err != nil {
		return err
	}
	header := []byte("# c4ghfs settings\n# See: c4ghfs --help\n\n")
	return os.WriteFile(path, append(header, data...), 0600)
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

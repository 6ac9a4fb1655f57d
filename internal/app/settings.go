package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/dotcommander/asanasense/internal/models"
)

// Settings represents configuration loaded from config.yaml.
// Field names match snake_case YAML keys.
type Settings struct {
	AccessToken        string        `yaml:"access_token" json:"-" validate:"required"`
	Workspace          string        `yaml:"workspace" json:"workspace" validate:"required"`
	MonitoredVariables []string      `yaml:"monitored_variables" json:"monitored_variables"`
	Name               string        `yaml:"name" json:"name"`
	APIBase            string        `yaml:"api_base" json:"api_base" validate:"omitempty,url"`
	ScanInterval       time.Duration `yaml:"scan_interval" json:"scan_interval" validate:"gte=0"`
	MaxPages           int           `yaml:"max_pages" json:"max_pages" validate:"gte=0,lte=10000"`
	HistoryDB          string        `yaml:"history_db" json:"history_db,omitempty"`
}

const (
	DefaultName         = "asana"
	DefaultAPIBase      = "https://app.asana.com/api/1.0"
	DefaultScanInterval = 30 * time.Second
	DefaultMaxPages     = 100
)

// Environment overrides, applied after the config file.
const (
	EnvAccessToken = "ASANASENSE_ACCESS_TOKEN"
	EnvWorkspace   = "ASANASENSE_WORKSPACE"
	EnvHistoryDB   = "ASANASENSE_HISTORY_DB"
	EnvConfigPath  = "ASANASENSE_CONFIG"
	EnvAPIBase     = "ASANASENSE_API_BASE"
	// EnvVariables is a comma-separated monitored_variables list.
	EnvVariables = "ASANASENSE_MONITORED_VARIABLES"
)

// settingsOnce, settings, settingsSrc, settingsErr implement the sync.Once lazy-load singleton.
// configPathOverride and settingsFS are process-wide seams for the --config flag and tests.
//
//nolint:gochecknoglobals // sync.Once singleton + RWMutex override are intentional process-wide state
var (
	settingsOnce sync.Once
	settings     Settings
	settingsSrc  string
	settingsErr  error

	overrideMu         sync.RWMutex
	configPathOverride string
	settingsFS         afero.Fs = afero.NewOsFs()

	validate = validator.New()
)

func fs() afero.Fs {
	overrideMu.RLock()
	defer overrideMu.RUnlock()
	return settingsFS
}

// SetConfigPathOverride pins the config file (e.g. --config). It must be set
// before the first LoadSettings call.
func SetConfigPathOverride(path string) {
	overrideMu.Lock()
	configPathOverride = path
	overrideMu.Unlock()
}

func getConfigPathOverride() string {
	overrideMu.RLock()
	defer overrideMu.RUnlock()
	if configPathOverride != "" {
		return configPathOverride
	}
	return os.Getenv(EnvConfigPath)
}

// LoadSettings loads configuration once using the documented lookup order.
// Lookup order (first found wins):
// 0) --config / ASANASENSE_CONFIG (must exist)
// 1) ~/.config/asanasense/config.yaml
// 2) /etc/asanasense/config.yaml
// 3) ./config.yaml
// Environment variables are applied separately by ApplyEnv.
func LoadSettings() (Settings, error) {
	settingsOnce.Do(func() {
		settings, settingsSrc, settingsErr = loadFirst(fs())
	})
	return settings, settingsErr
}

// SettingsSource names the file LoadSettings read, or "" when none was found.
func SettingsSource() string {
	_, _ = LoadSettings()
	return settingsSrc
}

func loadFirst(fsys afero.Fs) (Settings, string, error) {
	if p := getConfigPathOverride(); p != "" {
		s, err := loadSettingsFile(fsys, p)
		if err != nil {
			return Settings{}, "", fmt.Errorf("load config %s: %w", p, err)
		}
		return s, p, nil
	}

	paths, err := configPaths()
	if err != nil {
		return Settings{}, "", err
	}
	for _, p := range paths {
		s, err := loadSettingsFile(fsys, p)
		if err == nil {
			return s, p, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return Settings{}, "", fmt.Errorf("load config %s: %w", p, err)
		}
	}
	return Settings{}, "", nil
}

func configPaths() ([]string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return nil, err
	}
	return []string{
		filepath.Join(dir, "config.yaml"),
		filepath.Join(string(os.PathSeparator), "etc", "asanasense", "config.yaml"),
		"config.yaml",
	}, nil
}

func loadSettingsFile(fsys afero.Fs, path string) (Settings, error) {
	b, err := afero.ReadFile(fsys, path)
	if err != nil {
		return Settings{}, err
	}

	var s Settings
	if err := yaml.Unmarshal(b, &s); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// ApplyEnv overlays non-empty environment overrides.
func (s *Settings) ApplyEnv() {
	if v := os.Getenv(EnvAccessToken); v != "" {
		s.AccessToken = v
	}
	if v := os.Getenv(EnvWorkspace); v != "" {
		s.Workspace = v
	}
	if v := os.Getenv(EnvHistoryDB); v != "" {
		s.HistoryDB = v
	}
	if v := os.Getenv(EnvAPIBase); v != "" {
		s.APIBase = v
	}
	if v := os.Getenv(EnvVariables); v != "" {
		s.MonitoredVariables = s.MonitoredVariables[:0:0]
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				s.MonitoredVariables = append(s.MonitoredVariables, name)
			}
		}
	}
}

// ApplyFlags overlays flags the user set explicitly (--token, --workspace, --history-db).
func (s *Settings) ApplyFlags(flags *pflag.FlagSet) {
	set := func(name string, dst *string) {
		f := flags.Lookup(name)
		if f != nil && f.Changed {
			*dst = f.Value.String()
		}
	}
	set("token", &s.AccessToken)
	set("workspace", &s.Workspace)
	set("history-db", &s.HistoryDB)
}

// WithDefaults fills unset optional fields.
func (s Settings) WithDefaults() Settings {
	if s.Name == "" {
		s.Name = DefaultName
	}
	if s.APIBase == "" {
		s.APIBase = DefaultAPIBase
	}
	if s.ScanInterval == 0 {
		s.ScanInterval = DefaultScanInterval
	}
	if s.MaxPages == 0 {
		s.MaxPages = DefaultMaxPages
	}
	s.HistoryDB = expandHome(s.HistoryDB)
	return s
}

// Validate checks struct tags and reports every failing field.
func (s Settings) Validate() error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %q", yamlKey(e.StructField()), e.Tag()))
	}
	return &ConfigError{Problems: msgs}
}

// Effective loads the config file and applies env, flags and defaults, in
// that order. It does not validate.
func Effective(flags *pflag.FlagSet) (Settings, error) {
	s, err := LoadSettings()
	if err != nil {
		return Settings{}, err
	}
	s.ApplyEnv()
	if flags != nil {
		s.ApplyFlags(flags)
	}
	return s.WithDefaults(), nil
}

// Resolve is Effective followed by Validate.
func Resolve(flags *pflag.FlagSet) (Settings, error) {
	s, err := Effective(flags)
	if err != nil {
		return Settings{}, err
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func yamlKey(field string) string {
	switch field {
	case "AccessToken":
		return "access_token"
	case "Workspace":
		return "workspace"
	case "APIBase":
		return "api_base"
	case "ScanInterval":
		return "scan_interval"
	case "MaxPages":
		return "max_pages"
	}
	return strings.ToLower(field)
}

func expandHome(p string) string {
	if !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, p[2:])
}

var _ models.RecoverableError = (*ConfigError)(nil)

// ConfigError lists every invalid setting.
type ConfigError struct {
	Problems []string
}

func (e *ConfigError) Error() string {
	return "invalid config: " + strings.Join(e.Problems, "; ")
}

func (e *ConfigError) ErrorCode() string { return "INVALID_CONFIG" }

func (e *ConfigError) Context() map[string]string {
	return map[string]string{"problems": strings.Join(e.Problems, "; ")}
}

func (e *ConfigError) SuggestedAction() string {
	return "edit ~/.config/asanasense/config.yaml or set " + EnvAccessToken + " and " + EnvWorkspace
}

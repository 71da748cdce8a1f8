package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	// ProjectBase is the directory source locations are expected to live
	// under; files outside it are documented with a warning and get no
	// source links.
	ProjectBase string   `toml:"project_base"`
	Paths       []string `toml:"paths"`

	// DocFormat is the system default docstring dialect. Case-insensitive,
	// an optional trailing language code is accepted and ignored.
	DocFormat string `toml:"docformat"`

	// Privacy holds ordered "qname-pattern:PRIVACY" override rules.
	Privacy []string `toml:"privacy"`

	// Inventories lists external inventory references in the forms
	// "[name:]url[:base_url]" and "[name:]path:base_url".
	Inventories []string `toml:"inventories"`

	// Branches maps a module qname pattern to guard-name decisions for
	// conditional blocks, e.g. ["mypkg.*".TYPE_CHECKING] = false.
	Branches map[string]map[string]bool `toml:"branches"`

	Introspect Introspect `toml:"introspect"`
	Exclude    Exclude    `toml:"exclude"`
	Watch      Watch      `toml:"watch"`
	Output     Output     `toml:"output"`
	History    History    `toml:"history"`
	Metrics    Metrics    `toml:"metrics"`

	// WarningsAsErrors makes a parse failure fatal for the driver.
	WarningsAsErrors bool `toml:"warnings_as_errors"`
	// Strict re-raises programmer errors from extensions.
	Strict bool `toml:"strict"`
}

type Introspect struct {
	Enabled bool          `toml:"enabled"`
	Python  string        `toml:"python"`
	Timeout time.Duration `toml:"timeout"`
}

type Exclude struct {
	Dirs  []string `toml:"dirs"`
	Files []string `toml:"files"`
}

type Watch struct {
	Enabled  bool          `toml:"enabled"`
	Debounce time.Duration `toml:"debounce"`
}

type Output struct {
	// Model is where the serialized JSON object model is written.
	Model string `toml:"model"`
	// Inventory is where this project's objects inventory is written.
	Inventory string `toml:"inventory"`
	// State is the optional persisted-System file used to skip re-parsing.
	State string `toml:"state"`
}

type History struct {
	Path string `toml:"path"`
}

type Metrics struct {
	Listen string `toml:"listen"`
	// OTLPEndpoint enables trace export when set.
	OTLPEndpoint string `toml:"otlp_endpoint"`
}

// DocFormats is the closed set of accepted docformat identifiers.
var DocFormats = map[string]bool{
	"epytext":          true,
	"restructuredtext": true,
	"google":           true,
	"numpy":            true,
	"plaintext":        true,
}

// NormalizeDocFormat lowercases the identifier and strips a trailing
// language code ("restructuredtext en" -> "restructuredtext").
func NormalizeDocFormat(raw string) (string, error) {
	name := strings.ToLower(strings.TrimSpace(raw))
	if fields := strings.Fields(name); len(fields) > 0 {
		name = fields[0]
	}
	if name == "" {
		return "plaintext", nil
	}
	if !DocFormats[name] {
		return "", fmt.Errorf("unknown docformat %q", raw)
	}
	return name, nil
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return nil, err
	}

	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = 500 * time.Millisecond
	}
	if cfg.Introspect.Timeout == 0 {
		cfg.Introspect.Timeout = 10 * time.Second
	}
	if cfg.Introspect.Python == "" {
		cfg.Introspect.Python = "python3"
	}
	if cfg.ProjectBase == "" {
		cfg.ProjectBase = "."
	}
	if len(cfg.Paths) == 0 {
		cfg.Paths = []string{"."}
	}

	format, err := NormalizeDocFormat(cfg.DocFormat)
	if err != nil {
		return nil, err
	}
	cfg.DocFormat = format

	return &cfg, nil
}

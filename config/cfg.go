package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"

	yaml "gopkg.in/yaml.v3"

	"github.com/rupor-github/gencfg"
)

//go:embed config.yaml.tmpl
var ConfigTmpl []byte

type (
	// GrammarConfig points to external grammar files. Empty value means
	// embedded default for the layer.
	GrammarConfig struct {
		Base   string `yaml:"base" sanitize:"assure_file_access"`
		HTML   string `yaml:"html" sanitize:"assure_file_access"`
		Kindle string `yaml:"kindle" sanitize:"assure_file_access"`
	}

	ResourcesConfig struct {
		SearchRoots []string `yaml:"search_roots" validate:"min=1,dive,required"`
	}

	KindleConfig struct {
		Language string `yaml:"language" validate:"required"`
		Author   string `yaml:"author"`
	}

	DocumentConfig struct {
		Title            string          `yaml:"title" validate:"required"`
		InputEncoding    string          `yaml:"input_encoding"`
		SourceExtensions []string        `yaml:"source_extensions" validate:"min=1,dive,required"`
		StylesheetPath   string          `yaml:"stylesheet_path" sanitize:"assure_file_access"`
		Grammar          GrammarConfig   `yaml:"grammar"`
		Resources        ResourcesConfig `yaml:"resources"`
		Kindle           KindleConfig    `yaml:"kindle"`
	}

	Config struct {
		Version   int            `yaml:"version" validate:"eq=1"`
		Document  DocumentConfig `yaml:"document"`
		Logging   LoggingConfig  `yaml:"logging"`
		Reporting ReporterConfig `yaml:"reporting"`
	}
)

// GrammarOverride returns path to the format specific grammar file, if any.
func (g *GrammarConfig) GrammarOverride(format OutputFmt) string {
	switch format {
	case OutputFmtKindle:
		return g.Kindle
	default:
		return g.HTML
	}
}

func unmarshalConfig(data []byte, cfg *Config, process bool) (*Config, error) {
	// Only fields we defined are allowed, so no yaml.Unmarshal here
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration data: %w", err)
	}
	if process {
		if err := gencfg.Sanitize(cfg); err != nil {
			return nil, err
		}
		if err := gencfg.Validate(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// LoadConfiguration reads the configuration from the file at the given path,
// puts its values on top of the expanded configuration template (defaults)
// and validates the result.
func LoadConfiguration(path string, options ...func(*gencfg.ProcessingOptions)) (*Config, error) {
	haveFile := len(path) > 0

	data, err := gencfg.Process(ConfigTmpl, options...)
	if err != nil {
		return nil, fmt.Errorf("failed to process configuration template: %w", err)
	}
	cfg, err := unmarshalConfig(data, &Config{}, !haveFile)
	if err != nil {
		return nil, fmt.Errorf("failed to process configuration template: %w", err)
	}
	if !haveFile {
		return cfg, nil
	}

	data, err = os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err = unmarshalConfig(data, cfg, haveFile)
	if err != nil {
		return nil, fmt.Errorf("failed to process configuration file: %w", err)
	}
	return cfg, nil
}

// Prepare generates configuration file from template and returns it as a byte
// slice.
func Prepare() ([]byte, error) {
	return gencfg.Process(ConfigTmpl)
}

func Dump(cfg *Config) ([]byte, error) {
	data, err := yaml.Marshal(*cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config to yaml: %v", err)
	}
	return data, nil
}

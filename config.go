package rexdb

import (
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/rexdb/index"
	"github.com/hupe1980/rexdb/keyvalue"
	"github.com/hupe1980/rexdb/model"
)

// Config declares a DB and its namespaces in a YAML file.
type Config struct {
	StoragePath     string            `yaml:"storage_path"`
	LogLevel        string            `yaml:"log_level"`
	QueriesLogLevel string            `yaml:"queries_log_level"`
	Namespaces      []NamespaceConfig `yaml:"namespaces"`
}

// NamespaceConfig declares one namespace and its indexes.
type NamespaceConfig struct {
	Name    string        `yaml:"name"`
	Indexes []IndexConfig `yaml:"indexes"`
}

// IndexConfig declares one index in the configuration file. Kind is
// one of hash, tree, text, composite_hash, composite_tree; FieldType
// one of int, int64, double, string.
type IndexConfig struct {
	Name      string   `yaml:"name"`
	JSONPath  string   `yaml:"json_path"`
	Kind      string   `yaml:"kind"`
	FieldType string   `yaml:"field_type"`
	PK        bool     `yaml:"pk"`
	Unique    bool     `yaml:"unique"`
	Array     bool     `yaml:"array"`
	Sparse    bool     `yaml:"sparse"`
	Collate   string   `yaml:"collate"`
	Fields    []string `yaml:"fields"`
}

// LoadConfig reads and parses a YAML configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, model.WrapError(model.CodeParams, err, "can't read config %q", path)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, model.WrapError(model.CodeParams, err, "can't parse config %q", path)
	}
	return &cfg, nil
}

// OpenFromConfig creates a DB and opens every configured namespace.
func OpenFromConfig(cfg *Config, optFns ...Option) (*DB, error) {
	opts := []Option{}
	if cfg.StoragePath != "" {
		opts = append(opts, WithStoragePath(cfg.StoragePath))
	}
	if cfg.LogLevel != "" {
		opts = append(opts, WithLogLevel(parseLogLevel(cfg.LogLevel)))
	}
	if cfg.QueriesLogLevel != "" {
		opts = append(opts, WithQueriesLogLevel(parseLogLevel(cfg.QueriesLogLevel)))
	}
	opts = append(opts, optFns...)

	db, err := Open(opts...)
	if err != nil {
		return nil, err
	}
	for _, nc := range cfg.Namespaces {
		defs := make([]IndexDef, 0, len(nc.Indexes))
		for _, ic := range nc.Indexes {
			def, err := ic.toDef()
			if err != nil {
				_ = db.Close()
				return nil, err
			}
			defs = append(defs, def)
		}
		if _, err := db.OpenNamespace(nc.Name, defs...); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return db, nil
}

func (ic IndexConfig) toDef() (IndexDef, error) {
	kind, err := parseKind(ic.Kind)
	if err != nil {
		return IndexDef{}, err
	}
	fieldType, err := parseFieldType(ic.FieldType, kind)
	if err != nil {
		return IndexDef{}, err
	}
	return IndexDef{
		Name:      ic.Name,
		JSONPath:  ic.JSONPath,
		Kind:      kind,
		FieldType: fieldType,
		Opts: index.Opts{
			PK:      ic.PK,
			Unique:  ic.Unique,
			Array:   ic.Array,
			Sparse:  ic.Sparse,
			Collate: keyvalue.ParseCollateMode(ic.Collate),
		},
		Fields: ic.Fields,
	}, nil
}

func parseKind(s string) (index.Kind, error) {
	switch s {
	case "hash", "":
		return index.KindHash, nil
	case "tree":
		return index.KindTree, nil
	case "text":
		return index.KindFullText, nil
	case "composite_hash":
		return index.KindCompositeHash, nil
	case "composite_tree":
		return index.KindCompositeTree, nil
	default:
		return 0, model.ErrParams("unknown index kind %q", s)
	}
}

func parseFieldType(s string, kind index.Kind) (keyvalue.Type, error) {
	switch s {
	case "int":
		return keyvalue.TypeInt, nil
	case "int64":
		return keyvalue.TypeInt64, nil
	case "double":
		return keyvalue.TypeDouble, nil
	case "string":
		return keyvalue.TypeString, nil
	case "":
		// Composite and full-text kinds carry their own key type.
		if kind.IsComposite() || kind == index.KindFullText {
			return keyvalue.TypeUndefined, nil
		}
		return 0, model.ErrParams("index field type is required for kind %q", kind)
	default:
		return 0, model.ErrParams("unknown index field type %q", s)
	}
}

func parseLogLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

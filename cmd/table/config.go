package table

import (
	"fmt"
	"os"

	"go.miragespace.co/sqlrepo/pool"
	"go.miragespace.co/sqlrepo/spec/store"

	"gopkg.in/yaml.v3"
)

// Columns keeps the declaration order of a YAML mapping of column name to type.
type Columns []store.Column

func (c *Columns) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: columns must be a mapping of name to type", value.Line)
	}
	cols := make(Columns, 0, len(value.Content)/2)
	for i := 0; i+1 < len(value.Content); i += 2 {
		var name, typ string
		if err := value.Content[i].Decode(&name); err != nil {
			return err
		}
		if err := value.Content[i+1].Decode(&typ); err != nil {
			return err
		}
		t, err := store.ParseColumnType(typ)
		if err != nil {
			return fmt.Errorf("line %d: column %q: %w", value.Content[i].Line, name, err)
		}
		cols = append(cols, store.Column{Name: name, Type: t})
	}
	*c = cols
	return nil
}

func (c Columns) MarshalYAML() (interface{}, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, col := range c {
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: col.Name},
			&yaml.Node{Kind: yaml.ScalarNode, Value: string(col.Type)},
		)
	}
	return node, nil
}

type Table struct {
	Name    string  `yaml:"name" json:"name"`
	Columns Columns `yaml:"columns" json:"columns"`
}

type Config struct {
	path       string
	schemas    map[string]store.Schema
	Version    int     `yaml:"version" json:"version"`
	Connection string  `yaml:"connection" json:"connection"`
	Tables     []Table `yaml:"tables" json:"tables"`
}

func NewConfig(path string) (*Config, error) {
	cfg := &Config{
		path: path,
	}
	if err := cfg.readFile(); err != nil {
		return nil, err
	}
	if err := cfg.checkVersion(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) checkVersion() error {
	if c.Version != 1 {
		return fmt.Errorf("expecting config version 1, got %v", c.Version)
	}
	return nil
}

func (c *Config) validate() error {
	if c.Connection == "" {
		c.Connection = pool.MemoryName
	}
	if c.Connection != pool.MemoryName && !store.ValidIdentifier(c.Connection) {
		return fmt.Errorf("invalid connection name %q", c.Connection)
	}
	if len(c.Tables) == 0 {
		return fmt.Errorf("no tables declared")
	}
	c.schemas = make(map[string]store.Schema, len(c.Tables))
	for _, t := range c.Tables {
		if _, ok := c.schemas[t.Name]; ok {
			return fmt.Errorf("table %q is declared twice", t.Name)
		}
		schema, err := store.NewSchema(t.Name, t.Columns...)
		if err != nil {
			return fmt.Errorf("error validating table %q: %w", t.Name, err)
		}
		c.schemas[t.Name] = schema
	}
	return nil
}

// Schema returns the validated schema of the named table.
func (c *Config) Schema(name string) (store.Schema, error) {
	s, ok := c.schemas[name]
	if !ok {
		return store.Schema{}, fmt.Errorf("table %q is not declared in %s", name, c.path)
	}
	return s, nil
}

// Schemas returns every declared schema in declaration order.
func (c *Config) Schemas() []store.Schema {
	out := make([]store.Schema, 0, len(c.Tables))
	for _, t := range c.Tables {
		out = append(out, c.schemas[t.Name])
	}
	return out
}

func (c *Config) readFile() error {
	f, err := os.Open(c.path)
	if err != nil {
		return fmt.Errorf("error opening config file for reading: %w", err)
	}
	defer f.Close()
	return yaml.NewDecoder(f).Decode(c)
}

// Package kernel holds the built-in symbol database: kernel commands and
// environments, plus the component database of packages and classes that
// documents can load.
package kernel

import (
	_ "embed"
	"os"
	"sort"

	"github.com/BurntSushi/toml"
	"github.com/teranos/texcomp/errors"
	"github.com/teranos/texcomp/symbol"
	"gopkg.in/yaml.v3"
)

//go:embed data/kernel.yaml
var embeddedDatabase []byte

// Component is a package or class file and the symbols it provides
type Component struct {
	FileNames    []string `yaml:"file_names" toml:"file_names"`
	References   []string `yaml:"references" toml:"references"`
	Commands     []string `yaml:"commands" toml:"commands"`
	Environments []string `yaml:"environments" toml:"environments"`
}

// ID is the unit id the component is registered under
func (c *Component) ID() symbol.UnitID {
	return symbol.UnitID(c.FileNames[0])
}

// Symbols returns the component's records, owned by its unit
func (c *Component) Symbols() []symbol.Record {
	return records(c.Commands, c.Environments, c.ID())
}

// Database is the kernel symbol set and component lookup
type Database struct {
	Commands     []string     `yaml:"commands" toml:"commands"`
	Environments []string     `yaml:"environments" toml:"environments"`
	Components   []*Component `yaml:"components" toml:"components"`

	byName map[string]*Component
}

// Load decodes the embedded database
func Load() (*Database, error) {
	return Parse(embeddedDatabase)
}

// Parse decodes a YAML database
func Parse(data []byte) (*Database, error) {
	var db Database
	if err := yaml.Unmarshal(data, &db); err != nil {
		return nil, errors.Wrap(err, "failed to decode kernel database")
	}
	if err := db.reindex(); err != nil {
		return nil, err
	}
	return &db, nil
}

// LoadComponentFile merges a TOML file of components into the database.
// Components whose file names are already known replace the existing entry.
//
//	[[components]]
//	file_names = ["mymacros.sty"]
//	commands = ["R", "N"]
func (db *Database) LoadComponentFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "failed to read component file %s", path)
	}

	var extra Database
	if _, err := toml.Decode(string(data), &extra); err != nil {
		return errors.Wrapf(err, "failed to decode component file %s", path)
	}

	db.Commands = append(db.Commands, extra.Commands...)
	db.Environments = append(db.Environments, extra.Environments...)
	for _, c := range extra.Components {
		if len(c.FileNames) == 0 {
			return errors.NewInvalidArgumentError("component in %s has no file names", path)
		}
		if old, ok := db.byName[c.FileNames[0]]; ok {
			db.replace(old, c)
			continue
		}
		db.Components = append(db.Components, c)
	}
	return db.reindex()
}

// Add registers a component discovered at run time. File names the
// database already knows keep their existing component.
func (db *Database) Add(c *Component) error {
	if len(c.FileNames) == 0 {
		return errors.NewInvalidArgumentError("component without file names")
	}
	if _, ok := db.byName[c.FileNames[0]]; ok {
		return nil
	}
	db.Components = append(db.Components, c)
	for _, name := range c.FileNames {
		if _, ok := db.byName[name]; !ok {
			db.byName[name] = c
		}
	}
	return nil
}

// Builtins returns the kernel records, owned by no unit
func (db *Database) Builtins() []symbol.Record {
	return records(db.Commands, db.Environments, symbol.BuiltinUnit)
}

// Find returns the component that provides the given file name
func (db *Database) Find(fileName string) (*Component, bool) {
	c, ok := db.byName[fileName]
	return c, ok
}

// Related returns the components for the given file names plus the
// components they reference directly, without duplicates.
func (db *Database) Related(fileNames []string) []*Component {
	var start []*Component
	for _, name := range fileNames {
		if c, ok := db.Find(name); ok {
			start = append(start, c)
		}
	}

	seen := make(map[symbol.UnitID]bool)
	var out []*Component
	add := func(c *Component) {
		if !seen[c.ID()] {
			seen[c.ID()] = true
			out = append(out, c)
		}
	}
	for _, c := range start {
		add(c)
		for _, ref := range c.References {
			if rc, ok := db.Find(ref); ok {
				add(rc)
			}
		}
	}
	return out
}

func (db *Database) replace(old, c *Component) {
	for i, existing := range db.Components {
		if existing == old {
			db.Components[i] = c
			return
		}
	}
}

func (db *Database) reindex() error {
	db.byName = make(map[string]*Component, len(db.Components))
	for _, c := range db.Components {
		if len(c.FileNames) == 0 {
			return errors.NewInvalidArgumentError("component without file names")
		}
		for _, name := range c.FileNames {
			db.byName[name] = c
		}
	}
	return nil
}

func records(commands, environments []string, origin symbol.UnitID) []symbol.Record {
	out := make([]symbol.Record, 0, len(commands)+len(environments))
	for _, name := range commands {
		out = append(out, symbol.Record{Name: name, Kind: symbol.Command, Origin: origin})
	}
	for _, name := range environments {
		out = append(out, symbol.Record{Name: name, Kind: symbol.Environment, Origin: origin})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].Name < out[j].Name
	})
	return out
}

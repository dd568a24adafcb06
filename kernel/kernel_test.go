package kernel

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teranos/texcomp/errors"
	"github.com/teranos/texcomp/symbol"
)

func TestLoad_Embedded(t *testing.T) {
	db, err := Load()
	require.NoError(t, err)

	builtins := db.Builtins()
	assert.Contains(t, builtins, symbol.Record{Name: "section", Kind: symbol.Command})
	assert.Contains(t, builtins, symbol.Record{Name: "itemize", Kind: symbol.Environment})
	for _, r := range builtins {
		assert.True(t, r.IsBuiltin())
	}

	tikz, ok := db.Find("tikz.sty")
	require.True(t, ok)
	assert.Equal(t, symbol.UnitID("tikz.sty"), tikz.ID())
	assert.Contains(t, tikz.Symbols(), symbol.Record{Name: "tikzpicture", Kind: symbol.Environment, Origin: "tikz.sty"})
}

func TestRelated_FollowsOneLevelOfReferences(t *testing.T) {
	db, err := Parse([]byte(`
components:
  - file_names: [a.sty]
    references: [b.sty, missing.sty]
  - file_names: [b.sty]
    references: [c.sty]
  - file_names: [c.sty]
`))
	require.NoError(t, err)

	var ids []symbol.UnitID
	for _, c := range db.Related([]string{"a.sty", "b.sty", "unknown.sty"}) {
		ids = append(ids, c.ID())
	}
	assert.Equal(t, []symbol.UnitID{"a.sty", "b.sty", "c.sty"}, ids)

	ids = nil
	for _, c := range db.Related([]string{"a.sty"}) {
		ids = append(ids, c.ID())
	}
	assert.Equal(t, []symbol.UnitID{"a.sty", "b.sty"}, ids)
}

func TestParse_RejectsComponentWithoutFileNames(t *testing.T) {
	_, err := Parse([]byte("components:\n  - commands: [x]\n"))
	require.Error(t, err)
	assert.True(t, errors.IsInvalidArgumentError(err))
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse([]byte("commands: [unterminated"))
	assert.Error(t, err)
}

func TestLoadComponentFile(t *testing.T) {
	db, err := Load()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "extra.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
commands = ["mykernelcmd"]

[[components]]
file_names = ["mymacros.sty"]
commands = ["R", "N"]
environments = ["proofsketch"]

[[components]]
file_names = ["tikz.sty"]
commands = ["onlythis"]
`), 0o644))

	require.NoError(t, db.LoadComponentFile(path))

	mine, ok := db.Find("mymacros.sty")
	require.True(t, ok)
	assert.ElementsMatch(t, []symbol.Record{
		{Name: "N", Kind: symbol.Command, Origin: "mymacros.sty"},
		{Name: "R", Kind: symbol.Command, Origin: "mymacros.sty"},
		{Name: "proofsketch", Kind: symbol.Environment, Origin: "mymacros.sty"},
	}, mine.Symbols())

	tikz, ok := db.Find("tikz.sty")
	require.True(t, ok)
	assert.Equal(t, []string{"onlythis"}, tikz.Commands)
	assert.Contains(t, db.Builtins(), symbol.Record{Name: "mykernelcmd", Kind: symbol.Command})
}

func TestLoadComponentFile_Errors(t *testing.T) {
	db, err := Load()
	require.NoError(t, err)

	assert.Error(t, db.LoadComponentFile(filepath.Join(t.TempDir(), "missing.toml")))

	bad := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(bad, []byte("[[components]]\ncommands = [\"x\"]\n"), 0o644))
	err = db.LoadComponentFile(bad)
	require.Error(t, err)
	assert.True(t, errors.IsInvalidArgumentError(err))
}

func TestAdd(t *testing.T) {
	db, err := Load()
	require.NoError(t, err)

	local := &Component{
		FileNames:  []string{"localmacros.sty"},
		References: []string{"xcolor.sty"},
		Commands:   []string{"RR"},
	}
	require.NoError(t, db.Add(local))

	c, ok := db.Find("localmacros.sty")
	require.True(t, ok)
	assert.Equal(t, []symbol.Record{{Name: "RR", Kind: symbol.Command, Origin: "localmacros.sty"}}, c.Symbols())

	related := db.Related([]string{"localmacros.sty"})
	require.Len(t, related, 2)
	assert.Equal(t, symbol.UnitID("xcolor.sty"), related[1].ID())

	// known names keep their component
	require.NoError(t, db.Add(&Component{FileNames: []string{"tikz.sty"}}))
	tikz, _ := db.Find("tikz.sty")
	assert.NotEmpty(t, tikz.Environments)

	assert.True(t, errors.IsInvalidArgumentError(db.Add(&Component{})))
}

package rules_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allewwaly/insight-vmi-sub006/ctype"
	"github.com/allewwaly/insight-vmi-sub006/expr"
	"github.com/allewwaly/insight-vmi-sub006/internal/symbol"
	"github.com/allewwaly/insight-vmi-sub006/rules"
)

const ruleXML = `<?xml version="1.0"?>
<typeknowledge version="1">
  <rules>
    <rule priority="5">
      <name>foo-to-bar</name>
      <filter>
        <typename>struct foo</typename>
      </filter>
      <action type="expression" targettype="struct bar">instance_base + 8</action>
    </rule>
  </rules>
</typeknowledge>
`

func TestLoaderCompilesExpressionRule(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "rules.xml")
	require.NoError(t, os.WriteFile(p, []byte(ruleXML), 0644))

	cat := ctype.NewCatalog()
	foo := &ctype.Type{ID: cat.AllocID(), Kind: ctype.KindStruct, Name: symbol.Intern("foo")}
	cat.Insert(foo)
	bar := &ctype.Type{ID: cat.AllocID(), Kind: ctype.KindStruct, Name: symbol.Intern("bar")}
	cat.Insert(bar)

	factory := func(addr uint64) expr.Runtime {
		return mapRuntime{"instance_base": {Kind: expr.Constant, Value: int64(addr)}}
	}
	loader := rules.NewLoader(cat, factory)
	loaded, err := loader.LoadFile(context.Background(), p)
	require.NoError(t, err)
	require.Len(t, loaded, 1)

	engine := rules.NewEngine(nil)
	engine.Add(loaded[0])

	res := engine.Apply(context.Background(), rules.MatchContext{
		Instance: ctype.Instance{Address: 0x1000, Type: foo.ID},
		TypeName: "struct foo",
	})
	require.Equal(t, rules.Match, res.Kind)
	assert.EqualValues(t, 0x1008, res.Instance.Address)
	assert.Equal(t, bar.ID, res.Instance.Type)
}

func TestLoaderRejectsUnknownTargetType(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "rules.xml")
	bad := `<typeknowledge><rules><rule priority="1"><filter><typename>struct foo</typename></filter>` +
		`<action type="expression" targettype="struct nosuch">0</action></rule></rules></typeknowledge>`
	require.NoError(t, os.WriteFile(p, []byte(bad), 0644))

	cat := ctype.NewCatalog()
	foo := &ctype.Type{ID: cat.AllocID(), Kind: ctype.KindStruct, Name: symbol.Intern("foo")}
	cat.Insert(foo)

	loader := rules.NewLoader(cat, nil)
	_, err := loader.LoadFile(context.Background(), p)
	assert.Error(t, err)
}

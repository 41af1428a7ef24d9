package flowcontrol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTable_UnsetReadsNeutral(t *testing.T) {
	tbl := NewTable()
	v := tbl.Get("missing")
	assert.False(t, v.Truthy())
}

func TestTable_SetAndClear(t *testing.T) {
	tbl := NewTable()
	tbl.SetNumber("hp", 42)
	tbl.SetString("zone.name", "arena")

	assert.Equal(t, 42.0, tbl.Get("hp").Number)
	assert.True(t, tbl.Get("zone.name").Truthy())

	tbl.Clear("hp")
	assert.False(t, tbl.Get("hp").Truthy())
	assert.Equal(t, 1, tbl.Len())
}

func TestTable_ClearPrefixed(t *testing.T) {
	tbl := NewTable()
	tbl.SetNumber("zone.a", 1)
	tbl.SetNumber("zone.b", 1)
	tbl.SetNumber("other", 1)

	tbl.ClearPrefixed("zone.")
	assert.Equal(t, 1, tbl.Len())
	assert.True(t, tbl.Get("other").Truthy())
}

func TestTable_ClearPrefixedEmptyMatchesEverything(t *testing.T) {
	tbl := NewTable()
	tbl.SetNumber("a", 1)
	tbl.SetNumber("b", 1)

	tbl.ClearPrefixed("")
	assert.Equal(t, 0, tbl.Len())
}

func TestTable_ClearAll(t *testing.T) {
	tbl := NewTable()
	tbl.SetNumber("a", 1)
	tbl.SetString("b", "x")
	tbl.ClearAll()
	assert.Equal(t, 0, tbl.Len())
}

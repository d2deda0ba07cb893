package snapshot

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/require"
)

type widget struct {
	Name  string
	Value int
}

func TestWriteAtomicThenLoadMap(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)

	in := map[string]widget{"a": {Name: "a", Value: 1}}
	require.NoError(t, s.WriteAtomic("widgets.etf", in))

	out := map[string]widget{}
	var list []widget
	require.NoError(t, s.LoadMap("widgets.etf", &out, &list, func() {}))
	require.Equal(t, in, out)

	// No temp file should survive a successful write.
	_, err = os.Stat(filepath.Join(dir, "widgets.etf.tmp"))
	require.True(t, os.IsNotExist(err))
}

func TestLoadMapMissingFileIsEmpty(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)

	out := map[string]widget{}
	var list []widget
	require.NoError(t, s.LoadMap("nope.etf", &out, &list, func() {}))
	require.Empty(t, out)
}

func TestLoadMapLegacyListFallback(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)

	legacy := []widget{{Name: "a", Value: 1}, {Name: "b", Value: 2}}
	data, err := cbor.Marshal(legacy)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "widgets.etf"), data, 0o644))

	out := map[string]widget{}
	var list []widget
	require.NoError(t, s.LoadMap("widgets.etf", &out, &list, func() {
		for _, w := range list {
			out[w.Name] = w
		}
	}))
	require.Len(t, out, 2)
	require.Equal(t, 2, out["b"].Value)
}

func TestLoadMapCorruptFileIsEmpty(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "widgets.etf"), []byte("not cbor at all, just garbage bytes"), 0o644))

	out := map[string]widget{}
	var list []widget
	require.NoError(t, s.LoadMap("widgets.etf", &out, &list, func() {}))
	require.Empty(t, out)
}

func TestClearAllRecreatesLayout(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, s.WriteAtomic("teams.etf", map[string]widget{"a": {}}))

	require.NoError(t, s.ClearAll())

	_, err = os.Stat(filepath.Join(dir, "teams.etf"))
	require.True(t, os.IsNotExist(err))
	info, err := os.Stat(filepath.Join(dir, "chat"))
	require.NoError(t, err)
	require.True(t, info.IsDir())
}

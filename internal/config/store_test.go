package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	return NewStore(filepath.Join(dir, "config.yaml"))
}

func TestEnsureExistsCreatesExampleServer(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.EnsureExists())

	doc, err := s.Load()
	require.NoError(t, err)
	require.Len(t, doc.Servers, 1)
	require.Contains(t, doc.Servers, ExampleServerName)
}

func TestEnsureExistsNoopWhenFileAlreadyPresent(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Save(map[string]*ServerConfig{
		"alpha": {Host: "10.0.0.1", Username: "bob", Port: 22, ConnectionType: "ssh"},
	}, true))

	require.NoError(t, s.EnsureExists())

	doc, err := s.Load()
	require.NoError(t, err)
	require.Len(t, doc.Servers, 1, "EnsureExists must not overwrite an existing (even non-empty) file")
	require.Contains(t, doc.Servers, "alpha")
}

func TestEnsureExistsNoopOnExistingEmptyFile(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(s.path), 0o700))
	require.NoError(t, os.WriteFile(s.path, []byte("servers: {}\n"), 0o600))

	require.NoError(t, s.EnsureExists())

	doc, err := s.Load()
	require.NoError(t, err)
	require.Empty(t, doc.Servers)
}

func TestLoadMissingFileReturnsEmptyRegistry(t *testing.T) {
	s := newTestStore(t)

	doc, err := s.Load()
	require.NoError(t, err)
	require.NotNil(t, doc.Servers)
	require.Empty(t, doc.Servers)

	_, err = os.Stat(s.path)
	require.True(t, os.IsNotExist(err), "Load must never create the file as a side effect")
}

func TestSaveMergePreservesUntouchedEntries(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Save(map[string]*ServerConfig{
		"alpha": {Host: "10.0.0.1", Username: "bob", Port: 22, ConnectionType: "ssh"},
	}, true))

	require.NoError(t, s.Save(map[string]*ServerConfig{
		"beta": {Host: "10.0.0.2", Username: "carol", Port: 2222, ConnectionType: "relay"},
	}, true))

	doc, err := s.Load()
	require.NoError(t, err)
	require.Len(t, doc.Servers, 2)
	require.Equal(t, "10.0.0.1", doc.Servers["alpha"].Host, "config preservation: alpha must be byte-identical after an unrelated save")
}

func TestDeleteIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Save(map[string]*ServerConfig{
		"alpha": {Host: "10.0.0.1", Username: "bob", Port: 22, ConnectionType: "ssh"},
	}, true))

	absent, err := s.Delete("alpha")
	require.NoError(t, err)
	require.False(t, absent)

	absent, err = s.Delete("alpha")
	require.NoError(t, err)
	require.True(t, absent, "second delete of the same name must report already-absent")
}

func TestGetRedactsNothingAtStoreLayer(t *testing.T) {
	// Redaction is applied by the dispatcher layer (get_server_info), not
	// the store itself, so the store must hand back the real password.
	s := newTestStore(t)
	require.NoError(t, s.Save(map[string]*ServerConfig{
		"alpha": {Host: "10.0.0.1", Username: "bob", Port: 22, ConnectionType: "ssh", Password: "hunter2"},
	}, true))

	sc, ok, err := s.Get("alpha")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "hunter2", sc.Password)
	require.Equal(t, "***", sc.Redacted().Password)
}

func TestListSortStability(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Save(map[string]*ServerConfig{
		"alpha": {Host: "10.0.0.1", Username: "bob", Port: 22, ConnectionType: "ssh"},
		"beta":  {Host: "10.0.0.2", Username: "carol", Port: 22, ConnectionType: "ssh"},
	}, true))

	list, err := s.List()
	require.NoError(t, err)
	require.Len(t, list, 2)
}

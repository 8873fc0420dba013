package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/tchow-twistedxcom/remote-terminal-mcp/internal/logging"
)

var storeLog = logging.ForComponent(logging.CompConfig)

// Store is the YAML-backed registry at a fixed on-disk path. It never
// caches: every method that reads the document opens and parses the file
// fresh, and every Save re-reads before merging.
type Store struct {
	path string
}

// NewStore builds a Store rooted at path. Callers pass the resolved
// ~/.remote-terminal/config.yaml (or an override from REMOTE_TERMINAL_CONFIG);
// the Store itself never hard-codes a location.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// DefaultPath returns ~/.remote-terminal/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".remote-terminal", "config.yaml"), nil
}

// Path returns the backing file path.
func (s *Store) Path() string { return s.path }

// EnsureExists implements the first-run policy: if the file is absent,
// create it with a single example-server. If it already exists — even as
// an empty mapping — this is a no-op. This rule is inviolable: no read
// path may ever overwrite an existing file as a side effect.
func (s *Store) EnsureExists() error {
	if _, err := os.Stat(s.path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("checking config file %s: %w", s.path, err)
	}

	doc := &Document{Servers: map[string]*ServerConfig{
		ExampleServerName: exampleServer(),
	}}
	return s.writeDocument(doc)
}

// Load reads the current registry. A missing or unparsable file yields an
// empty registry rather than an error — read operations never fail the
// caller just because the store hasn't been initialized yet.
func (s *Store) Load() (*Document, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Document{Servers: map[string]*ServerConfig{}}, nil
		}
		return nil, fmt.Errorf("reading config file %s: %w", s.path, err)
	}

	doc := &Document{}
	if err := yaml.Unmarshal(data, doc); err != nil {
		storeLog.Warn("config_unparsable", "path", s.path, "error", err.Error())
		return &Document{Servers: map[string]*ServerConfig{}}, nil
	}
	if doc.Servers == nil {
		doc.Servers = map[string]*ServerConfig{}
	}
	populateNames(doc)
	return doc, nil
}

// Get returns a single server's record, or ok=false if absent.
func (s *Store) Get(name string) (ServerConfig, bool, error) {
	doc, err := s.Load()
	if err != nil {
		return ServerConfig{}, false, err
	}
	sc, ok := doc.Servers[name]
	if !ok {
		return ServerConfig{}, false, nil
	}
	return *sc, true, nil
}

// List returns every registered server, sorted by name for determinism.
func (s *Store) List() ([]ServerConfig, error) {
	doc, err := s.Load()
	if err != nil {
		return nil, err
	}
	out := make([]ServerConfig, 0, len(doc.Servers))
	for _, sc := range doc.Servers {
		out = append(out, *sc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Save performs the read-modify-write described in spec §4.B: take the
// advisory lock, re-read the current file, merge the given entries over
// it key-by-key (entries are complete records — no per-field merge),
// serialize to a sibling temp file, fsync, atomically rename, then
// re-read and assert every touched key is present.
func (s *Store) Save(entries map[string]*ServerConfig, merge bool) error {
	lock, err := acquireLock(s.path)
	if err != nil {
		return fmt.Errorf("config-store contention: %w", err)
	}
	defer lock.release()

	doc := &Document{Servers: map[string]*ServerConfig{}}
	if merge {
		current, err := s.Load()
		if err != nil {
			return err
		}
		doc = current
	}
	if doc.Servers == nil {
		doc.Servers = map[string]*ServerConfig{}
	}
	for name, sc := range entries {
		cp := *sc
		cp.Name = name
		doc.Servers[name] = &cp
	}

	if err := s.writeDocument(doc); err != nil {
		return err
	}

	verify, err := s.Load()
	if err != nil {
		return fmt.Errorf("re-reading config after save: %w", err)
	}
	for name := range entries {
		if _, ok := verify.Servers[name]; !ok {
			return fmt.Errorf("save verification failed: key %q missing after write", name)
		}
	}
	return nil
}

// Delete removes a single server by name. Idempotent: deleting an absent
// name succeeds and reports absence rather than erroring.
func (s *Store) Delete(name string) (alreadyAbsent bool, err error) {
	lock, lockErr := acquireLock(s.path)
	if lockErr != nil {
		return false, fmt.Errorf("config-store contention: %w", lockErr)
	}
	defer lock.release()

	doc, err := s.Load()
	if err != nil {
		return false, err
	}
	if _, ok := doc.Servers[name]; !ok {
		return true, nil
	}
	delete(doc.Servers, name)
	return false, s.writeDocument(doc)
}

// writeDocument serializes doc to a sibling temp file, fsyncs it, then
// atomically renames it over the target path. Grounded on the same
// temp-file-then-rename discipline used elsewhere in the corpus for
// crash-safe config persistence: at no point does the target path hold
// partially-written bytes.
func (s *Store) writeDocument(doc *Document) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshaling config document: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".config-*.yaml.tmp")
	if err != nil {
		return fmt.Errorf("creating temp config file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once the rename below succeeds

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp config file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("fsyncing temp config file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp config file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o600); err != nil {
		return fmt.Errorf("chmod temp config file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("renaming temp config file into place: %w", err)
	}
	return nil
}

func populateNames(doc *Document) {
	for name, sc := range doc.Servers {
		sc.Name = name
	}
}

// ErrNotFound is returned by callers that need to distinguish a missing
// server from other errors (the Store's own Get/Delete use a bool instead,
// this is for tools layered on top that prefer a sentinel).
var ErrNotFound = errors.New("server not found")

package credentials

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// FileStore keeps credentials in a YAML file readable only by the owner.
// Reads are cached until the file changes (see Watch) or is rewritten
// through the store.
type FileStore struct {
	path string

	mu     sync.Mutex
	cached *Credentials
}

// NewFileStore returns a store backed by path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file.
func (s *FileStore) Path() string { return s.path }

// Credentials implements Accessor.
func (s *FileStore) Credentials(context.Context) (Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cached == nil {
		c, err := s.load()
		if err != nil {
			return Credentials{}, err
		}
		s.cached = &c
	}
	if !s.cached.Complete() {
		return Credentials{}, ErrNotConfigured
	}
	return *s.cached, nil
}

// Load reads the file without consulting the cache.
func (s *FileStore) Load() (Credentials, error) {
	return s.load()
}

func (s *FileStore) load() (Credentials, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Credentials{}, nil
		}
		return Credentials{}, fmt.Errorf("read credentials: %w", err)
	}

	var c Credentials
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return Credentials{}, fmt.Errorf("decode credentials %s: %w", s.path, err)
	}
	return c, nil
}

// Put writes the credentials atomically with 0600 permissions.
func (s *FileStore) Put(c Credentials) error {
	if !c.Complete() {
		return fmt.Errorf("domain and api token are required")
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	enc, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.Write(enc); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return err
	}

	// best-effort fsync on directory
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}

	s.invalidate()
	return nil
}

// Delete removes the stored credentials.
func (s *FileStore) Delete() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	s.invalidate()
	return nil
}

func (s *FileStore) invalidate() {
	s.mu.Lock()
	s.cached = nil
	s.mu.Unlock()
}

// Watch drops the cache whenever the credential file changes on disk, so a
// running server picks up credentials written by another process. It
// blocks until ctx is done.
func (s *FileStore) Watch(ctx context.Context, log *logrus.Entry) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	// Watch the directory: Put replaces the file by rename.
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	target := filepath.Clean(s.path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			s.invalidate()
			log.WithField("op", ev.Op.String()).Debug("credentials file changed")
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.WithError(err).Warn("credentials watcher error")
		}
	}
}

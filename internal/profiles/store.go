package profiles

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joshp123/climatelink/internal/firmware"
)

var (
	ErrNotFound = errors.New("profile not found")
	// ErrSideFilesMissing marks a profile restored from the blob mirror whose
	// relative side files are not present locally.
	ErrSideFilesMissing = errors.New("profile side files missing")
)

const fileSuffix = ".yaml"

// Store persists profiles by name.
type Store interface {
	List(ctx context.Context) ([]string, error)
	Get(ctx context.Context, name string) (Entry, error)
	Put(ctx context.Context, entry Entry) error
}

// DirStore keeps one <name>.yaml document per profile in a directory.
type DirStore struct {
	dir string
}

func NewDirStore(dir string) *DirStore {
	return &DirStore{dir: dir}
}

func (s *DirStore) Dir() string {
	return s.dir
}

func (s *DirStore) List(context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list profiles: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), fileSuffix) {
			continue
		}
		name := strings.TrimSuffix(e.Name(), fileSuffix)
		if firmware.ValidateName(name) != nil {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *DirStore) Get(_ context.Context, name string) (Entry, error) {
	data, err := s.read(name)
	if err != nil {
		return Entry{}, err
	}
	return Decode(name, data, s.dir)
}

func (s *DirStore) Put(_ context.Context, entry Entry) error {
	data, err := Encode(entry)
	if err != nil {
		return err
	}
	return s.write(entry.Profile.Name, data)
}

func (s *DirStore) read(name string) ([]byte, error) {
	if err := firmware.ValidateName(name); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, fmt.Errorf("read profile %s: %w", name, err)
	}
	return data, nil
}

// write replaces the document atomically. Documents may carry inline
// secrets, so they are only readable by the owner.
func (s *DirStore) write(name string, data []byte) error {
	if err := firmware.ValidateName(name); err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("create profiles dir: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, "."+name+"-*.tmp")
	if err != nil {
		return fmt.Errorf("write profile %s: %w", name, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write profile %s: %w", name, err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("write profile %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write profile %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), s.path(name)); err != nil {
		return fmt.Errorf("write profile %s: %w", name, err)
	}
	return nil
}

func (s *DirStore) path(name string) string {
	return filepath.Join(s.dir, name+fileSuffix)
}

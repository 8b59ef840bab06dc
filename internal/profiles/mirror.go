package profiles

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/joshp123/climatelink/internal/blob"
)

// Mirror is a DirStore backed up to a blob store. Local writes succeed even
// when the remote copy fails; a profile missing locally is restored from the
// blob store on first read.
//
// Only the YAML document is mirrored. Side files it references by a relative
// path (secrets, captures) stay on the host that wrote them.
type Mirror struct {
	local  *DirStore
	remote blob.Store
	log    zerolog.Logger
}

func NewMirror(local *DirStore, remote blob.Store, log zerolog.Logger) (*Mirror, error) {
	if local == nil {
		return nil, fmt.Errorf("local store is required")
	}
	if remote == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	return &Mirror{local: local, remote: remote, log: log}, nil
}

func (m *Mirror) List(ctx context.Context) ([]string, error) {
	names, err := m.local.List(ctx)
	if err != nil {
		return nil, err
	}
	remote, err := m.remote.List(ctx)
	if err != nil {
		m.log.Warn().Err(err).Msg("list blob mirror")
		return names, nil
	}

	seen := make(map[string]bool, len(names))
	for _, name := range names {
		seen[name] = true
	}
	for _, name := range remote {
		if !seen[name] {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (m *Mirror) Get(ctx context.Context, name string) (Entry, error) {
	entry, err := m.local.Get(ctx, name)
	if err == nil {
		return entry, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Entry{}, err
	}

	data, blobErr := m.remote.Load(ctx, name)
	if blobErr != nil {
		if errors.Is(blobErr, blob.ErrBlobNotFound) {
			return Entry{}, err
		}
		return Entry{}, fmt.Errorf("load profile %s from blob: %w", name, blobErr)
	}

	entry, err = Decode(name, data, m.local.Dir())
	if err != nil {
		missing := m.missingSideFiles(data)
		if len(missing) == 0 {
			return Entry{}, err
		}
		// Keep the document so the profile works once the files are copied in.
		if werr := m.local.write(name, data); werr != nil {
			return Entry{}, werr
		}
		m.log.Warn().Str("profile", name).Strs("missing", missing).Msg("restored profile needs side files")
		return Entry{}, fmt.Errorf("%w: profile %s restored from blob mirror, copy %s into %s: %w",
			ErrSideFilesMissing, name, strings.Join(missing, ", "), m.local.Dir(), err)
	}
	if err := m.local.write(name, data); err != nil {
		return Entry{}, err
	}
	mirrorRestores.WithLabelValues(name).Inc()
	mirrorPersistOK.WithLabelValues(name).Set(1)
	m.log.Info().Str("profile", name).Msg("restored profile from blob mirror")
	return entry, nil
}

func (m *Mirror) Put(ctx context.Context, entry Entry) error {
	data, err := Encode(entry)
	if err != nil {
		return err
	}
	name := entry.Profile.Name
	if err := m.local.write(name, data); err != nil {
		return err
	}
	if refs := relativeRefs(data); len(refs) > 0 {
		m.log.Warn().Str("profile", name).Strs("files", refs).Msg("side files are not mirrored")
	}
	if err := m.remote.Save(ctx, name, data); err != nil {
		mirrorPersistOK.WithLabelValues(name).Set(0)
		m.log.Warn().Err(err).Str("profile", name).Msg("mirror profile to blob")
		return nil
	}
	mirrorPersistOK.WithLabelValues(name).Set(1)
	return nil
}

func (m *Mirror) missingSideFiles(data []byte) []string {
	var missing []string
	for _, ref := range relativeRefs(data) {
		if _, err := os.Stat(resolve(m.local.Dir(), ref)); err != nil {
			missing = append(missing, ref)
		}
	}
	return missing
}

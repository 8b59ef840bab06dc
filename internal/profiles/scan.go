package profiles

import (
	"context"
	"fmt"
)

// Scanned is one profile read during a Scan. Err is set when the document
// exists but could not be decoded.
type Scanned struct {
	Name  string
	Entry Entry
	Err   error
}

// Scan reads every profile in the store. A broken document does not stop the
// scan; it is reported in its Scanned.Err.
func Scan(ctx context.Context, store Store) ([]Scanned, error) {
	names, err := store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("scan profiles: %w", err)
	}
	out := make([]Scanned, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		entry, err := store.Get(ctx, name)
		out = append(out, Scanned{Name: name, Entry: entry, Err: err})
	}
	return out, nil
}

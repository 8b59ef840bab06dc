package ledger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTest(t *testing.T) *Ledger {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "state", "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var tick int
	l.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}
	return l
}

func TestRecordAndHistory(t *testing.T) {
	ctx := context.Background()
	l := openTest(t)

	first, err := l.Record(ctx, Render{Profile: "bedroom", Ready: false, Problems: 3, ConfigSHA256: "a1", IRSHA256: "b1"})
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID)

	second, err := l.Record(ctx, Render{Profile: "bedroom", Ready: true, ConfigSHA256: "a2", IRSHA256: "b2"})
	require.NoError(t, err)
	_, err = l.Record(ctx, Render{Profile: "attic", Ready: true})
	require.NoError(t, err)

	history, err := l.History(ctx, "bedroom", 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, second, history[0])
	assert.Equal(t, first, history[1])
	assert.False(t, history[1].Ready)
	assert.Equal(t, 3, history[1].Problems)

	limited, err := l.History(ctx, "bedroom", 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, second.ID, limited[0].ID)
}

func TestLast(t *testing.T) {
	ctx := context.Background()
	l := openTest(t)

	_, ok, err := l.Last(ctx, "cellar")
	require.NoError(t, err)
	assert.False(t, ok)

	rec, err := l.Record(ctx, Render{Profile: "cellar", Ready: true})
	require.NoError(t, err)
	last, ok, err := l.Last(ctx, "cellar")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, rec.ID, last.ID)
}

func TestRecordRequiresProfile(t *testing.T) {
	_, err := openTest(t).Record(context.Background(), Render{})
	assert.Error(t, err)
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open("")
	assert.Error(t, err)
}

package intel

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticDenyList(t *testing.T) {
	r, err := NewReputation([]string{"185.220.101.5", " 185.220.102.8 "}, "", 16)
	require.NoError(t, err)

	assert.True(t, r.IsSuspicious("185.220.101.5"))
	assert.True(t, r.IsSuspicious("185.220.102.8"), "static entries are trimmed")
	assert.False(t, r.IsSuspicious("8.8.8.8"))
	assert.Equal(t, 2, r.Size())
}

func TestCachedLookupSeesRuntimeAdds(t *testing.T) {
	r, err := NewReputation(nil, "", 16)
	require.NoError(t, err)

	// The negative result is cached; Add must invalidate it.
	assert.False(t, r.IsSuspicious("203.0.113.5"))
	r.Add("203.0.113.5")
	assert.True(t, r.IsSuspicious("203.0.113.5"))
}

func TestFeedFileRefresh(t *testing.T) {
	feed := filepath.Join(t.TempDir(), "feed.txt")
	require.NoError(t, os.WriteFile(feed, []byte("# known scanners\n185.220.101.5\n\n198.51.100.99\n"), 0o644))

	r, err := NewReputation(nil, feed, 16)
	require.NoError(t, err)

	assert.True(t, r.IsSuspicious("185.220.101.5"))
	assert.True(t, r.IsSuspicious("198.51.100.99"))
	assert.False(t, r.IsSuspicious("# known scanners"), "comments are not entries")
	assert.Equal(t, 2, r.Size())

	// New entries appear after the next refresh.
	require.NoError(t, os.WriteFile(feed, []byte("203.0.113.200\n"), 0o644))
	require.NoError(t, r.Refresh())
	assert.True(t, r.IsSuspicious("203.0.113.200"))
}

func TestMissingFeedIsNotFatal(t *testing.T) {
	r, err := NewReputation([]string{"185.220.101.5"}, "/nonexistent/feed.txt", 16)
	require.NoError(t, err)
	assert.True(t, r.IsSuspicious("185.220.101.5"))
}

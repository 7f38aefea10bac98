package lookup

import (
	"context"
	"sort"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/clusterstore/pkg/errors"
	"github.com/mesh-intelligence/clusterstore/pkg/types"
)

func TestInsertFillsAncestors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.item(t)

	n, err := f.paths.Insert(ctx, f.q, "/desc/Schema/Foo/", target(id))
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	for _, p := range []string{"/desc", "/desc/Schema"} {
		node, err := f.paths.Fetch(ctx, f.q, p)
		require.NoError(t, err, p)
		assert.False(t, node.IsLeafTarget(), p)
	}
	leaf, err := f.paths.Fetch(ctx, f.q, "/desc/Schema/Foo")
	require.NoError(t, err)
	assert.Equal(t, target(id), leaf.Target)

	// A sibling only adds its own row.
	n, err = f.paths.Insert(ctx, f.q, "/desc/Schema/Bar", target(id))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestInsertRejectsBadPaths(t *testing.T) {
	f := newFixture(t)
	for _, p := range []string{"", "relative/path", "/", "/a//b"} {
		_, err := f.paths.Insert(context.Background(), f.q, p, uuid.NullUUID{})
		assert.True(t, errors.Is(err, errors.InvalidData), "%q: %v", p, err)
	}
}

func TestTargetMustBeRegistered(t *testing.T) {
	f := newFixture(t)
	_, err := f.paths.Insert(context.Background(), f.q, "/ghost", target(uuid.New()))
	assert.True(t, errors.Is(err, errors.InvalidData), "got %v", err)
}

func TestFetchMissingPath(t *testing.T) {
	f := newFixture(t)
	_, err := f.paths.Fetch(context.Background(), f.q, "/nope")
	assert.True(t, errors.Is(err, errors.NotFound), "got %v", err)
}

func TestDeleteInReverseOrderRemovesSubtree(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.paths.Insert(ctx, f.q, "/a/b/c", target(f.item(t)))
	require.NoError(t, err)

	nodes, err := f.paths.Descendants(ctx, f.q, "/a")
	require.NoError(t, err)
	paths := pathsOf(nodes)
	sort.Sort(sort.Reverse(sort.StringSlice(paths)))
	require.Equal(t, []string{"/a/b/c", "/a/b", "/a"}, paths)

	for _, p := range paths {
		n, err := f.paths.Delete(ctx, f.q, p)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	}
	rest, err := f.paths.Search(ctx, f.q, "/", "", types.Wildcard)
	require.NoError(t, err)
	assert.Empty(t, rest)
}

func TestDeleteIsUnguarded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.paths.Insert(ctx, f.q, "/a/b/c", uuid.NullUUID{})
	require.NoError(t, err)

	// Deleting an interior node first leaves its descendants orphaned.
	n, err := f.paths.Delete(ctx, f.q, "/a")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	rest, err := f.paths.Search(ctx, f.q, "/", "", types.Wildcard)
	require.NoError(t, err)
	assert.Equal(t, []string{"/a/b", "/a/b/c"}, pathsOf(rest))

	found, err := f.paths.Exists(ctx, f.q, "/a")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSearchModes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	x, y := f.item(t), f.item(t)
	for p, tgt := range map[string]uuid.NullUUID{
		"/a/b":   target(x),
		"/a/b/c": target(y),
		"/a/bc":  {},
		"/d/b":   target(y),
	} {
		_, err := f.paths.Insert(ctx, f.q, p, tgt)
		require.NoError(t, err)
	}

	tests := []struct {
		name    string
		root    string
		search  string
		mode    types.SearchMode
		targets []types.EntityID
		want    []string
	}{
		{"blank name lists subtree", "/a", "", types.Wildcard, nil, []string{"/a", "/a/b", "/a/b/c", "/a/bc"}},
		{"exact name", "/a", "b", types.ExactName, nil, []string{"/a/b"}},
		{"exact name from tree root", "/", "b", types.ExactName, nil, []string{"/a/b", "/d/b"}},
		{"wildcard suffix", "/a", "c", types.Wildcard, nil, []string{"/a/b/c", "/a/bc"}},
		{"segment aware root", "/a/b", "", types.Wildcard, nil, []string{"/a/b", "/a/b/c"}},
		{"target filter", "/", "", types.Wildcard, []types.EntityID{y}, []string{"/a/b/c", "/d/b"}},
		{"no match", "/a", "zzz", types.ExactName, nil, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.paths.Search(ctx, f.q, tt.root, tt.search, tt.mode, tt.targets...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, pathsOf(got))
		})
	}
}

func TestSearchEscapesLikeMetacharacters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, p := range []string{"/x_y", "/xay", "/p%q", "/pzq"} {
		_, err := f.paths.Insert(ctx, f.q, p, uuid.NullUUID{})
		require.NoError(t, err)
	}

	got, err := f.paths.Search(ctx, f.q, "/", "_y", types.Wildcard)
	require.NoError(t, err)
	assert.Equal(t, []string{"/x_y"}, pathsOf(got))

	got, err = f.paths.Search(ctx, f.q, "/", "p%q", types.ExactName)
	require.NoError(t, err)
	assert.Equal(t, []string{"/p%q"}, pathsOf(got))
}

func TestChildren(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, p := range []string{"/a/b/c", "/a/d", "/a/e", "/z"} {
		_, err := f.paths.Insert(ctx, f.q, p, uuid.NullUUID{})
		require.NoError(t, err)
	}

	got, err := f.paths.Children(ctx, f.q, "/a", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"/a/b", "/a/d", "/a/e"}, pathsOf(got))

	got, err = f.paths.Children(ctx, f.q, "/", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"/a", "/z"}, pathsOf(got))

	got, err = f.paths.Children(ctx, f.q, "/a", 1, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"/a/d"}, pathsOf(got))

	got, err = f.paths.Children(ctx, f.q, "/a", 2, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"/a/e"}, pathsOf(got))

	n, err := f.paths.CountChildren(ctx, f.q, "/a")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = f.paths.CountChildren(ctx, f.q, "/a/b/c")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestFindByTarget(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.item(t)
	for _, p := range []string{"/items/one", "/aliases/first", "/aliases/second"} {
		_, err := f.paths.Insert(ctx, f.q, p, target(id))
		require.NoError(t, err)
	}

	got, err := f.paths.FindByTarget(ctx, f.q, id, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"/aliases/first", "/aliases/second", "/items/one"}, pathsOf(got))

	got, err = f.paths.FindByTarget(ctx, f.q, id, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"/aliases/second"}, pathsOf(got))

	n, err := f.paths.CountByTarget(ctx, f.q, id)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	removed, err := f.paths.DeleteByTarget(ctx, f.q, id)
	require.NoError(t, err)
	assert.Equal(t, int64(3), removed)

	n, err = f.paths.CountByTarget(ctx, f.q, id)
	require.NoError(t, err)
	assert.Zero(t, n)
}

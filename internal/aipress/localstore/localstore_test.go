package localstore

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"

	"github.com/aisa-it/aipress/internal/aipress/apiclient"
	"github.com/aisa-it/aipress/internal/aipress/dto"
	"github.com/aisa-it/aipress/internal/aipress/editor/edtypes"
)

var _ apiclient.TokenStore = (*Store)(nil)

func openStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "local.db")
	s, err := Open(path, "")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, path
}

func post(id, pubID, text string) *dto.Post {
	s := edtypes.DefaultSchema()
	bold := edtypes.Mark{Type: edtypes.StrongMark}
	return &dto.Post{
		ID:          id,
		Title:       "T " + id,
		Author:      dto.Author{ID: "u1"},
		Publication: dto.PublicationRef{ID: pubID},
		Content:     dto.Document{Node: s.MustNode(edtypes.DocType, nil, s.MustNode(edtypes.ParagraphType, nil, s.Text(text, bold)))},
		CreatedAt:   time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC),
	}
}

func TestPosts(t *testing.T) {
	s, _ := openStore(t)
	require.NoError(t, s.SavePost(post("b", "pub-1", "second")))
	require.NoError(t, s.SavePost(post("a", "pub-1", "first")))
	require.NoError(t, s.SavePost(post("c", "pub-2", "other")))
	require.NoError(t, s.SavePublication(&dto.Publication{ID: "pub-1", Name: "One", Slug: "one", OwnerID: "u1"}))

	got, err := s.LoadPost("a")
	require.NoError(t, err)
	assert.True(t, post("a", "pub-1", "first").Content.Equal(got.Content.Node))
	assert.True(t, got.CreatedAt.Equal(time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC)))

	list, err := s.ListPosts("pub-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].ID)
	assert.Equal(t, "b", list[1].ID)

	all, err := s.ListPosts("")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	require.NoError(t, s.DeletePost("a"))
	_, err = s.LoadPost("a")
	assert.ErrorIs(t, err, ErrNotFound)

	pub, err := s.LoadPublication("pub-1")
	require.NoError(t, err)
	assert.Equal(t, "One", pub.Name)

	assert.ErrorIs(t, s.SavePost(&dto.Post{}), ErrEmptyID)
	assert.ErrorIs(t, s.SavePublication(nil), ErrEmptyID)
}

func TestStoredFormat(t *testing.T) {
	s, _ := openStore(t)
	require.NoError(t, s.SavePost(post("x", "pub-1", "hi")))

	var raw map[string]any
	require.NoError(t, s.db.View(func(tx *bolt.Tx) error {
		return json.Unmarshal(tx.Bucket(bucketName).Get([]byte("post_x")), &raw)
	}))
	assert.Equal(t, "2024-02-03T04:05:06Z", raw["createdAt"])
	content := raw["content"].(map[string]any)
	assert.Equal(t, "doc", content["type"])
}

func TestTokenSurvivesReopen(t *testing.T) {
	s, path := openStore(t)
	tok, err := s.Token()
	require.NoError(t, err)
	assert.Empty(t, tok)

	require.NoError(t, s.SetToken("abc"))
	require.NoError(t, s.Close())

	s2, err := Open(path, "")
	require.NoError(t, err)
	defer s2.Close()
	tok, err = s2.Token()
	require.NoError(t, err)
	assert.Equal(t, "abc", tok)

	require.NoError(t, s2.ClearToken())
	tok, _ = s2.Token()
	assert.Empty(t, tok)
}

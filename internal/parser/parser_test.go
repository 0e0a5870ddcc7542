package parser

import (
	"errors"
	"testing"
	"time"

	"github.com/ThiagoRGoveia/stm-bigblue/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validComment = "users: Alice, Bob\nsubstrate: Au(111)\nadsorbate: CO\nprep: sputter-anneal\nnotebook: 12\nnotes: test run"

func TestParseComment(t *testing.T) {
	t.Run("Expect: six well formed lines to produce the structured record", func(t *testing.T) {
		metadata, err := ParseComment(validComment, "default_2016Apr15-123456_STM_1.Z_flat")

		require.NoError(t, err)
		assert.Equal(t, models.CommentMetadata{
			Present:   true,
			Users:     "Alice, Bob",
			Substrate: "Au(111)",
			Adsorbate: "CO",
			Prep:      "sputter-anneal",
			Notebook:  12,
			Notes:     "test run",
		}, metadata)
	})

	t.Run("Expect: a comment without line breaks to yield an unset record", func(t *testing.T) {
		metadata, err := ParseComment("just a plain comment: nothing structured", "f")

		require.NoError(t, err)
		assert.False(t, metadata.Present)
		assert.Equal(t, models.CommentMetadata{}, metadata)
	})

	t.Run("Expect: capitalised, plural and misspelt aliases to be accepted", func(t *testing.T) {
		comment := "User: Carol\nSubstrates: Cu(100)\nabsorbate: H2O\nPreps: anneal\nNotebooks: 3\nNote: second"

		metadata, err := ParseComment(comment, "f")

		require.NoError(t, err)
		assert.Equal(t, "Carol", metadata.Users)
		assert.Equal(t, "H2O", metadata.Adsorbate)
		assert.Equal(t, 3, metadata.Notebook)
		assert.Equal(t, "second", metadata.Notes)
	})

	t.Run("Expect: only a single leading space to be stripped", func(t *testing.T) {
		comment := "users:  Alice\nsubstrate:Au\nadsorbate: CO\nprep: p\nnotebook: 1\nnotes: time 12:30"

		metadata, err := ParseComment(comment, "f")

		require.NoError(t, err)
		assert.Equal(t, " Alice", metadata.Users)
		assert.Equal(t, "Au", metadata.Substrate)
		assert.Equal(t, "time 12:30", metadata.Notes)
	})

	t.Run("Expect: CRLF line endings to be accepted", func(t *testing.T) {
		comment := "users: A\r\nsubstrate: B\r\nadsorbate: C\r\nprep: D\r\nnotebook: 4\r\nnotes: E"

		metadata, err := ParseComment(comment, "f")

		require.NoError(t, err)
		assert.Equal(t, "E", metadata.Notes)
		assert.Equal(t, 4, metadata.Notebook)
	})

	t.Run("Expect: an unrecognised key at any position to fail with a parse error", func(t *testing.T) {
		valid := []string{"users: A", "substrate: B", "adsorbate: C", "prep: D", "notebook: 1", "notes: E"}
		bad := []string{"usres: A", "substance: B", "adsorbant: C", "preparation: D", "book: 1", "comments: E"}

		for i := range valid {
			lines := append([]string(nil), valid...)
			lines[i] = bad[i]
			comment := lines[0]
			for _, l := range lines[1:] {
				comment += "\n" + l
			}

			metadata, err := ParseComment(comment, "bad_2016Apr15-123456.Z_flat")

			assert.Error(t, err, "position %d", i)
			assert.True(t, errors.Is(err, models.ErrParse), "position %d", i)
			assert.Equal(t, models.CommentMetadata{}, metadata, "position %d", i)
			assert.Contains(t, err.Error(), "bad_2016Apr15-123456.Z_flat")
		}
	})

	t.Run("Expect: keys in the wrong order to fail even if all are valid", func(t *testing.T) {
		comment := "substrate: B\nusers: A\nadsorbate: C\nprep: D\nnotebook: 1\nnotes: E"

		_, err := ParseComment(comment, "f")

		assert.ErrorIs(t, err, models.ErrParse)
	})

	t.Run("Expect: wrong line counts to fail", func(t *testing.T) {
		_, err := ParseComment("users: A\nsubstrate: B", "f")
		assert.ErrorIs(t, err, models.ErrParse)

		_, err = ParseComment(validComment+"\n", "f")
		assert.ErrorIs(t, err, models.ErrParse)
	})

	t.Run("Expect: non integer notebook to fail", func(t *testing.T) {
		comment := "users: A\nsubstrate: B\nadsorbate: C\nprep: D\nnotebook: twelve\nnotes: E"

		metadata, err := ParseComment(comment, "f")

		assert.ErrorIs(t, err, models.ErrParse)
		assert.False(t, metadata.Present)
	})

	t.Run("Expect: a line without separator to fail", func(t *testing.T) {
		comment := "users A\nsubstrate: B\nadsorbate: C\nprep: D\nnotebook: 1\nnotes: E"

		_, err := ParseComment(comment, "f")

		assert.ErrorIs(t, err, models.ErrParse)
	})
}

func TestDeriveCreationTimestamp(t *testing.T) {
	t.Run("Expect: the token to be rendered as a fixed width key", func(t *testing.T) {
		key, err := DeriveCreationTimestamp("default_2016Apr05-090807_STM-STM_Spectroscopy--12_1.Z_flat")

		require.NoError(t, err)
		assert.Equal(t, "20160405090807", key)
		assert.Len(t, key, 14)
	})

	t.Run("Expect: files of the same experiment to share the key", func(t *testing.T) {
		topo, err := DeriveCreationTimestamp(`C:\data\default_2016Apr15-123456_STM-STM_Spectroscopy--3_1.Z_flat`)
		require.NoError(t, err)
		spec, err := DeriveCreationTimestamp("/data/default_2016Apr15-123456_STM-STM_Spectroscopy--17_2.I(V)_flat")
		require.NoError(t, err)

		assert.Equal(t, topo, spec)
		assert.Equal(t, "20160415123456", topo)
	})

	t.Run("Expect: parse error without a timestamp token", func(t *testing.T) {
		_, err := DeriveCreationTimestamp("notimestamp.Z_flat")
		assert.ErrorIs(t, err, models.ErrParse)

		_, err = DeriveCreationTimestamp("default_notatime_STM.Z_flat")
		assert.ErrorIs(t, err, models.ErrParse)
	})
}

func TestCanonicalKey(t *testing.T) {
	a := time.Date(2016, time.January, 2, 3, 4, 5, 0, time.UTC)
	b := time.Date(2016, time.January, 2, 3, 4, 5, 999, time.Local)

	assert.Equal(t, "20160102030405", CanonicalKey(a))
	assert.Equal(t, CanonicalKey(a), CanonicalKey(b))
	assert.Equal(t, "20161231235959", CanonicalKey(time.Date(2016, time.December, 31, 23, 59, 59, 0, time.UTC)))
}

func TestCanonicalFileDate(t *testing.T) {
	date, err := CanonicalFileDate("2016-04-15 12:34:56")
	require.NoError(t, err)
	assert.Equal(t, "20160415123456", date)

	_, err = CanonicalFileDate("15/04/2016")
	assert.ErrorIs(t, err, models.ErrParse)
}

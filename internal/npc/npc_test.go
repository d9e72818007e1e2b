package npc

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func mustDirectory(t *testing.T, records ...Record) *Directory {
	t.Helper()
	d, err := NewDirectory(records)
	require.NoError(t, err)
	return d
}

func academy(t *testing.T) *Directory {
	return mustDirectory(t,
		Record{ID: "prof", Name: "Professor"},
		Record{ID: "voss", Name: "Professor Elara Voss"},
		Record{ID: "guard", Name: "Guard"},
	)
}

func TestNewDirectory_RejectsDuplicates(t *testing.T) {
	_, err := NewDirectory([]Record{{ID: "a", Name: "A"}, {ID: "a", Name: "B"}})
	assert.Error(t, err)
}

func TestNewDirectory_RejectsInvalid(t *testing.T) {
	_, err := NewDirectory([]Record{{ID: "a"}})
	assert.Error(t, err)
	_, err = NewDirectory([]Record{{Name: "A"}})
	assert.Error(t, err)
}

func TestDirectory_NilIsEmpty(t *testing.T) {
	var d *Directory
	assert.Equal(t, 0, d.Len())
	assert.Nil(t, d.Names())
	_, ok := d.Get("x")
	assert.False(t, ok)
}

func TestLoadDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "npcs.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
npcs:
  - id: guard
    name: Guard
    description: A bored sentry.
  - id: smith
    name: Old Smith
`), 0644))

	d, err := LoadDirectory(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"Guard", "Old Smith"}, d.Names())
	r, ok := d.Get("guard")
	require.True(t, ok)
	assert.Equal(t, "A bored sentry.", r.Description)
}

func TestLoadDirectory_Errors(t *testing.T) {
	_, err := LoadDirectory("/nonexistent/npcs.yaml")
	assert.Error(t, err)

	_, err = LoadDirectoryFromBytes([]byte("npcs: [ {id: x} ]"))
	assert.Error(t, err)

	_, err = LoadDirectoryFromBytes([]byte("npcs: : :"))
	assert.Error(t, err)
}

func TestParseAddress_LongestMatchWins(t *testing.T) {
	addr, err := academy(t).ParseAddress("@Professor Elara Voss hello")
	require.NoError(t, err)
	assert.Equal(t, "voss", addr.NPC.ID)
	assert.Equal(t, "hello", addr.Message)
}

func TestParseAddress_ShorterNameStillMatches(t *testing.T) {
	addr, err := academy(t).ParseAddress("@Professor what is the lesson?")
	require.NoError(t, err)
	assert.Equal(t, "prof", addr.NPC.ID)
	assert.Equal(t, "what is the lesson?", addr.Message)
}

func TestParseAddress_CaseInsensitive(t *testing.T) {
	addr, err := academy(t).ParseAddress("@guard open the gate")
	require.NoError(t, err)
	assert.Equal(t, "guard", addr.NPC.ID)
	assert.Equal(t, "open the gate", addr.Message)
}

func TestParseAddress_RequiresSpaceAfterName(t *testing.T) {
	_, err := academy(t).ParseAddress("@Guardian hello")
	var unknown *UnknownNPCError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, []string{"Professor", "Professor Elara Voss", "Guard"}, unknown.Available)
}

func TestParseAddress_UsageHint(t *testing.T) {
	for _, input := range []string{"@Guard", "@Guard ", "@guard   "} {
		_, err := academy(t).ParseAddress(input)
		var usage *UsageError
		require.True(t, errors.As(err, &usage), "input %q", input)
		assert.Equal(t, "guard", usage.NPC.ID)
		assert.Equal(t, "Usage: @Guard <message>", usage.Error())
	}

	_, err := academy(t).ParseAddress("@Professor Elara Voss")
	var usage *UsageError
	require.True(t, errors.As(err, &usage))
	assert.Equal(t, "voss", usage.NPC.ID)
}

func TestParseAddress_EmptyDirectory(t *testing.T) {
	d := mustDirectory(t)
	_, err := d.ParseAddress("@Anyone hi")
	require.Error(t, err)
	assert.Equal(t, "No NPC by that name is here. Available NPCs: none", err.Error())
}

func TestParseAddress_NotAddress(t *testing.T) {
	_, err := academy(t).ParseAddress("Guard open")
	assert.ErrorIs(t, err, ErrNotAddress)
}

func TestPropertyLongestNameAlwaysPreferred(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		base := rapid.StringMatching(`[A-Z][a-z]{2,8}`).Draw(t, "base")
		suffix := rapid.StringMatching(`[A-Z][a-z]{2,8}`).Draw(t, "suffix")
		msg := rapid.StringMatching(`[a-z]{1,10}( [a-z]{1,10}){0,3}`).Draw(t, "msg")
		long := base + " " + suffix

		records := []Record{{ID: "short", Name: base}, {ID: "long", Name: long}}
		if rapid.Bool().Draw(t, "reverse") {
			records[0], records[1] = records[1], records[0]
		}
		d, err := NewDirectory(records)
		if err != nil {
			t.Fatal(err)
		}

		addr, err := d.ParseAddress("@" + long + " " + msg)
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		if addr.NPC.ID != "long" || addr.Message != msg {
			t.Fatalf("got %q/%q, want long/%q", addr.NPC.ID, addr.Message, msg)
		}
	})
}

func TestSuggest_SubstringInDirectoryOrder(t *testing.T) {
	s := Suggest("@ss", academy(t))
	require.Len(t, s.Matches, 2)
	assert.Equal(t, "prof", s.Matches[0].ID)
	assert.Equal(t, "voss", s.Matches[1].ID)

	s = Suggest("@VOSS", academy(t))
	require.Len(t, s.Matches, 1)
	assert.Equal(t, "voss", s.Matches[0].ID)
}

func TestSuggest_AtOnlyListsAll(t *testing.T) {
	assert.Len(t, Suggest("@", academy(t)).Matches, 3)
}

func TestSuggest_NonAddressInput(t *testing.T) {
	s := Suggest("look around", academy(t))
	assert.False(t, s.Active())
	s.Next()
	s.Prev()
	_, ok := s.Select()
	assert.False(t, ok)
}

func TestSuggestions_CursorWraps(t *testing.T) {
	s := Suggest("@", academy(t))
	s.Prev()
	assert.Equal(t, 2, s.Cursor)
	s.Next()
	assert.Equal(t, 0, s.Cursor)
	s.Next()
	s.Next()
	s.Next()
	assert.Equal(t, 0, s.Cursor)
}

func TestSuggestions_Select(t *testing.T) {
	s := Suggest("@gua", academy(t))
	input, ok := s.Select()
	require.True(t, ok)
	assert.Equal(t, "@Guard ", input)

	addr, err := academy(t).ParseAddress(input + "hello")
	require.NoError(t, err)
	assert.Equal(t, "guard", addr.NPC.ID)
}

func TestPropertySuggestionsContainQuery(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		q := rapid.StringMatching(`[a-zA-Z ]{0,4}`).Draw(t, "q")
		d, err := NewDirectory([]Record{
			{ID: "1", Name: "Professor"}, {ID: "2", Name: "Professor Elara Voss"},
			{ID: "3", Name: "Guard"}, {ID: "4", Name: "Old Smith"},
		})
		if err != nil {
			t.Fatal(err)
		}
		s := Suggest("@"+q, d)
		for _, m := range s.Matches {
			if !strings.Contains(strings.ToLower(m.Name), strings.ToLower(q)) {
				t.Fatalf("%q does not contain %q", m.Name, q)
			}
		}
		steps := rapid.IntRange(0, 20).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			if rapid.Bool().Draw(t, "down") {
				s.Next()
			} else {
				s.Prev()
			}
			if s.Active() && (s.Cursor < 0 || s.Cursor >= len(s.Matches)) {
				t.Fatalf("cursor %d out of range", s.Cursor)
			}
		}
	})
}

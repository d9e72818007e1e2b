package npc

import "strings"

// Suggestions is the autocomplete state derived from the current input.
// It is recomputed on every input change and never stored.
type Suggestions struct {
	Matches []Record
	Cursor  int
}

// Suggest filters the directory for an "@" input: every NPC whose name contains
// the text after '@', case-insensitively, in directory order.
//
// Postcondition: Returns empty Suggestions when input does not start with '@'.
func Suggest(input string, d *Directory) Suggestions {
	if !strings.HasPrefix(input, "@") {
		return Suggestions{}
	}
	query := strings.ToLower(input[1:])
	var matches []Record
	for _, r := range d.Records() {
		if strings.Contains(strings.ToLower(r.Name), query) {
			matches = append(matches, r)
		}
	}
	return Suggestions{Matches: matches}
}

// Active reports whether there is anything to suggest.
func (s Suggestions) Active() bool {
	return len(s.Matches) > 0
}

// Next moves the cursor down, wrapping to the first match.
func (s *Suggestions) Next() {
	if len(s.Matches) == 0 {
		return
	}
	s.Cursor = (s.Cursor + 1) % len(s.Matches)
}

// Prev moves the cursor up, wrapping to the last match.
func (s *Suggestions) Prev() {
	if len(s.Matches) == 0 {
		return
	}
	s.Cursor = (s.Cursor - 1 + len(s.Matches)) % len(s.Matches)
}

// Current returns the match under the cursor.
func (s Suggestions) Current() (Record, bool) {
	if s.Cursor < 0 || s.Cursor >= len(s.Matches) {
		return Record{}, false
	}
	return s.Matches[s.Cursor], true
}

// Select returns the replacement input for the match under the cursor,
// "@<name> ", ready for the message to be typed.
func (s Suggestions) Select() (string, bool) {
	r, ok := s.Current()
	if !ok {
		return "", false
	}
	return "@" + r.Name + " ", true
}

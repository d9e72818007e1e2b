package npc

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrNotAddress is returned when input does not start with '@'.
var ErrNotAddress = errors.New("input is not an npc address")

// Address is a resolved "@<npc> <message>" input.
type Address struct {
	NPC     Record
	Message string
}

// UsageError reports an address naming an NPC but carrying no message.
type UsageError struct {
	NPC Record
}

func (e *UsageError) Error() string {
	return fmt.Sprintf("Usage: @%s <message>", e.NPC.Name)
}

// UnknownNPCError reports an address that names no NPC in the directory.
type UnknownNPCError struct {
	Available []string
}

func (e *UnknownNPCError) Error() string {
	if len(e.Available) == 0 {
		return "No NPC by that name is here. Available NPCs: none"
	}
	return "No NPC by that name is here. Available NPCs: " + strings.Join(e.Available, ", ")
}

// ParseAddress resolves "@<name> <message>" against the directory.
//
// Names are tried longest first so that "Professor Elara Voss" wins over
// "Professor". A name matches when it, followed by a space, is a
// case-insensitive prefix of the text after '@'.
//
// Postcondition: Returns the address, ErrNotAddress, *UsageError, or *UnknownNPCError.
func (d *Directory) ParseAddress(input string) (Address, error) {
	if !strings.HasPrefix(input, "@") {
		return Address{}, ErrNotAddress
	}
	rest := input[1:]

	candidates := d.Records()
	sort.SliceStable(candidates, func(i, j int) bool {
		return len(candidates[i].Name) > len(candidates[j].Name)
	})

	for _, r := range candidates {
		n := len(r.Name)
		if strings.EqualFold(strings.TrimSpace(rest), r.Name) {
			return Address{}, &UsageError{NPC: r}
		}
		if len(rest) <= n || rest[n] != ' ' || !strings.EqualFold(rest[:n], r.Name) {
			continue
		}
		msg := strings.TrimSpace(rest[n+1:])
		if msg == "" {
			return Address{}, &UsageError{NPC: r}
		}
		return Address{NPC: r, Message: msg}, nil
	}
	return Address{}, &UnknownNPCError{Available: d.Names()}
}

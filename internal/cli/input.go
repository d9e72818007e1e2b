package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/cory-johannsen/mudclient/internal/duel"
	"github.com/cory-johannsen/mudclient/internal/frontend/render"
	"github.com/cory-johannsen/mudclient/internal/npc"
	"github.com/cory-johannsen/mudclient/internal/session"
)

// LocalPrefix starts client-side commands that never reach the server.
const LocalPrefix = ":"

const localHelp = `:accept / :decline   answer a duel challenge
:emote               toggle emote mode
:leave               reset the current duel
:npcs [@prefix]      list NPCs here, or autocomplete a name
:status              show room, health and duel
:quit                end the session`

// Session is the part of the coordinator the input loop drives.
type Session interface {
	Submit(raw string) error
	RespondToChallenge(accept bool) error
	ToggleEmote() error
	ForceClearDuel() error
	Suggestions(input string) npc.Suggestions
	Directory() *npc.Directory
	Player() session.Player
	Duel() duel.Session
}

// Input reads player lines and forwards them to a Session.
type Input struct {
	in       io.Reader
	session  Session
	console  *render.Console
	renderer *render.Renderer
}

// NewInput creates an Input reading from in.
func NewInput(in io.Reader, s Session, console *render.Console, renderer *render.Renderer) *Input {
	return &Input{in: in, session: s, console: console, renderer: renderer}
}

// Run forwards lines until EOF, ":quit", or ctx cancellation.
// The reader goroutine may outlive Run while blocked on in.
func (i *Input) Run(ctx context.Context) error {
	lines := make(chan string)
	errs := make(chan error, 1)
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		scanner := bufio.NewScanner(i.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-stop:
				return
			}
		}
		errs <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errs:
			if err != nil {
				return fmt.Errorf("reading input: %w", err)
			}
			return nil
		case line := <-lines:
			quit, err := i.handle(line)
			if err != nil {
				return err
			}
			if quit {
				return nil
			}
		}
	}
}

// handle processes one line and reports whether the player asked to quit.
func (i *Input) handle(line string) (bool, error) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, LocalPrefix) {
		return false, i.session.Submit(line)
	}

	name, arg, _ := strings.Cut(strings.TrimPrefix(trimmed, LocalPrefix), " ")
	switch strings.ToLower(name) {
	case "quit", "q":
		return true, nil
	case "accept":
		return false, i.session.RespondToChallenge(true)
	case "decline":
		return false, i.session.RespondToChallenge(false)
	case "emote":
		return false, i.session.ToggleEmote()
	case "leave":
		return false, i.session.ForceClearDuel()
	case "status":
		return false, i.console.Println(i.renderer.Status(i.session.Player(), i.session.Duel()))
	case "npcs":
		arg = strings.TrimSpace(arg)
		if arg == "" {
			return false, i.console.Println(strings.TrimSuffix(i.renderer.Directory(i.session.Directory()), "\n"))
		}
		if !strings.HasPrefix(arg, "@") {
			arg = "@" + arg
		}
		s := i.session.Suggestions(arg)
		if !s.Active() {
			return false, i.console.Println("No NPC matches " + arg + ".")
		}
		return false, i.console.Println(i.renderer.Suggestions(s))
	default:
		return false, i.console.Println(localHelp)
	}
}

// Package duel implements the turn-based two-party move exchange that runs
// over the push channel alongside streaming world actions.
package duel

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/cory-johannsen/mudclient/internal/ledger"
)

// DefaultVitalCap is the vital maximum used when a duel start omits one.
const DefaultVitalCap = 6

// DesyncNotice is shown when a duel is reset because client and server disagree.
const DesyncNotice = "Duel state was out of sync and has been reset."

var (
	// ErrNoChallenge is returned by Respond when no challenge is pending.
	ErrNoChallenge = errors.New("no pending duel challenge")
	// ErrAlreadyDueling is returned by Start when a duel with another opponent is live.
	ErrAlreadyDueling = errors.New("already in a duel")
	// ErrNoOpponent is returned when a duel operation needs an opponent and none is recorded.
	ErrNoOpponent = errors.New("duel has no opponent")
	// ErrNotDueling is returned by SubmitMove when no duel is active.
	ErrNotDueling = errors.New("not in a duel")
)

// State is a duel lifecycle state.
type State string

const (
	StateIdle          State = "idle"
	StateChallenged    State = "challenged"
	StateActive        State = "active"
	StateMoveSubmitted State = "move_submitted"
	StateRoundResolved State = "round_resolved"
	StateEnded         State = "ended"
)

// Session is a snapshot of the duel in progress.
type Session struct {
	OpponentID     string
	OpponentName   string
	MyMove         *string
	OpponentMove   *string
	Round          int
	State          State
	MyVitals       int
	OpponentVitals int
	VitalCap       int
}

// InDuel reports whether moves are currently being exchanged.
func (s Session) InDuel() bool {
	return s.State == StateActive || s.State == StateMoveSubmitted
}

// Sender delivers duel traffic to the opponent. Implementations must not block.
type Sender interface {
	SendDuelMove(opponentID, move string) error
	SendDuelResponse(opponentID string, accept bool) error
}

// Outcome is the server's resolution of a round.
// Nil vitals leave the current values unchanged.
type Outcome struct {
	Text           string `json:"text,omitempty"`
	MyVitals       *int   `json:"my_vitals,omitempty"`
	OpponentVitals *int   `json:"opponent_vitals,omitempty"`
	Ended          bool   `json:"ended,omitempty"`
	WinnerID       string `json:"winner_id,omitempty"`
}

// Start describes a duel that has begun.
type Start struct {
	OpponentID     string
	OpponentName   string
	MyVitals       int
	OpponentVitals int
	VitalCap       int
}

// Machine is the duel state machine. Mutations come from the coordinator loop;
// Snapshot is safe from any goroutine.
type Machine struct {
	mu       sync.RWMutex
	playerID string
	vitalCap int
	session  Session
	pending  *Outcome // resolution delivered before our own move
	ledger   *ledger.Ledger
	sender   Sender
	logger   *zap.Logger
}

// NewMachine creates an idle Machine.
//
// Precondition: l and sender must be non-nil; vitalCap <= 0 selects DefaultVitalCap.
// Postcondition: Returns a Machine in StateIdle.
func NewMachine(playerID string, vitalCap int, l *ledger.Ledger, sender Sender, logger *zap.Logger) *Machine {
	if vitalCap <= 0 {
		vitalCap = DefaultVitalCap
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Machine{
		playerID: playerID,
		vitalCap: vitalCap,
		session:  Session{State: StateIdle},
		ledger:   l,
		sender:   sender,
		logger:   logger,
	}
}

// Snapshot returns a copy of the current session.
func (m *Machine) Snapshot() Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session.copy()
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session.State
}

// Challenge records an incoming challenge from opponentID.
// A challenge received mid-duel is declined automatically.
//
// Postcondition: State is StateChallenged unless a duel was already live.
func (m *Machine) Challenge(opponentID, opponentName string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if opponentName == "" {
		opponentName = opponentID
	}
	if m.session.InDuel() || m.session.State == StateChallenged {
		if err := m.sender.SendDuelResponse(opponentID, false); err != nil {
			m.logger.Warn("auto-declining challenge", zap.String("opponent_id", opponentID), zap.Error(err))
		}
		m.system(fmt.Sprintf("%s challenged you to a duel, but you are already engaged.", opponentName))
		return
	}
	m.session = Session{
		OpponentID:   opponentID,
		OpponentName: opponentName,
		State:        StateChallenged,
	}
	m.system(fmt.Sprintf("%s challenges you to a duel!", opponentName))
}

// Respond answers the pending challenge.
//
// Postcondition: Returns ErrNoChallenge unless State was StateChallenged. On accept the
// duel is Active at round 1; on decline the machine is Idle.
func (m *Machine) Respond(accept bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session.State != StateChallenged {
		return ErrNoChallenge
	}
	opp := m.session
	if err := m.sender.SendDuelResponse(opp.OpponentID, accept); err != nil {
		m.logger.Warn("sending duel response", zap.String("opponent_id", opp.OpponentID), zap.Error(err))
	}
	if !accept {
		m.reset()
		m.system(fmt.Sprintf("You declined %s's challenge.", opp.OpponentName))
		return nil
	}
	return m.start(Start{OpponentID: opp.OpponentID, OpponentName: opp.OpponentName})
}

// Begin starts a duel from Idle, Ended or Challenged.
//
// Precondition: s.OpponentID must be non-empty.
// Postcondition: A repeated start for the current opponent is a no-op; a start naming
// a different opponent while dueling returns ErrAlreadyDueling.
func (m *Machine) Begin(s Start) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.start(s)
}

func (m *Machine) start(s Start) error {
	if s.OpponentID == "" {
		return fmt.Errorf("starting duel: %w", ErrNoOpponent)
	}
	if m.session.InDuel() {
		if m.session.OpponentID == s.OpponentID {
			return nil
		}
		return fmt.Errorf("starting duel with %q: %w", s.OpponentID, ErrAlreadyDueling)
	}
	if s.OpponentName == "" {
		s.OpponentName = s.OpponentID
	}
	vitalCap := s.VitalCap
	if vitalCap <= 0 {
		vitalCap = m.vitalCap
	}
	mine, theirs := s.MyVitals, s.OpponentVitals
	if mine <= 0 || mine > vitalCap {
		mine = vitalCap
	}
	if theirs <= 0 || theirs > vitalCap {
		theirs = vitalCap
	}
	m.pending = nil
	m.session = Session{
		OpponentID:     s.OpponentID,
		OpponentName:   s.OpponentName,
		Round:          1,
		State:          StateActive,
		MyVitals:       mine,
		OpponentVitals: theirs,
		VitalCap:       vitalCap,
	}
	m.system(fmt.Sprintf("The duel with %s begins!", s.OpponentName))
	return nil
}

// SubmitMove records and sends the player's move for the current round.
// The ledger announces that a move was made without revealing it.
//
// Postcondition: From StateActive the state becomes StateMoveSubmitted (or resolves when the
// opponent already moved). In StateMoveSubmitted an informational entry is appended and
// nothing is sent. Returns ErrNoOpponent when the duel has no recorded opponent.
func (m *Machine) SubmitMove(move string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.session.State {
	case StateMoveSubmitted:
		m.system("You have already submitted your move. Waiting for your opponent...")
		return nil
	case StateActive:
	default:
		return ErrNotDueling
	}
	if m.session.OpponentID == "" {
		return ErrNoOpponent
	}

	if err := m.sender.SendDuelMove(m.session.OpponentID, move); err != nil {
		m.logger.Warn("sending duel move", zap.String("opponent_id", m.session.OpponentID), zap.Error(err))
		m.system("Your move could not be sent. Please try again.")
		return nil
	}
	m.session.MyMove = &move
	m.session.State = StateMoveSubmitted
	m.system(fmt.Sprintf("You make your move against %s.", m.session.OpponentName))

	if m.session.OpponentMove != nil {
		m.resolve()
	}
	return nil
}

// OpponentMove records the opponent's move, resolving the round when both moves
// are present. outcome, when non-nil, is the server's resolution of this round.
//
// Postcondition: A move from anyone other than the current opponent, or while no duel
// is live, resets the machine and always appends DesyncNotice.
func (m *Machine) OpponentMove(fromID, move string, outcome *Outcome) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.session.InDuel() || m.session.OpponentID == "" || m.session.OpponentID != fromID {
		m.logger.Warn("duel move out of sync",
			zap.String("from", fromID),
			zap.String("state", string(m.session.State)),
			zap.String("opponent_id", m.session.OpponentID))
		m.desync()
		return
	}
	if m.session.OpponentMove != nil {
		m.logger.Debug("replacing opponent move", zap.String("from", fromID))
	}
	m.session.OpponentMove = &move
	if outcome != nil {
		o := *outcome
		m.pending = &o
	}
	if m.session.MyMove == nil {
		m.system(fmt.Sprintf("%s has made their move.", m.session.OpponentName))
		return
	}
	m.resolve()
}

// resolve closes the round. Caller holds mu and both moves are present.
func (m *Machine) resolve() {
	s := &m.session
	s.State = StateRoundResolved

	text := fmt.Sprintf("Round %d: you used %s; %s used %s.", s.Round, *s.MyMove, s.OpponentName, *s.OpponentMove)
	ended := false
	winner := ""
	if o := m.pending; o != nil {
		if o.Text != "" {
			text = o.Text
		}
		if o.MyVitals != nil {
			s.MyVitals = clamp(*o.MyVitals, s.VitalCap)
		}
		if o.OpponentVitals != nil {
			s.OpponentVitals = clamp(*o.OpponentVitals, s.VitalCap)
		}
		ended = o.Ended
		winner = o.WinnerID
	}
	m.pending = nil
	m.outcome(text)

	s.Round++
	s.MyMove = nil
	s.OpponentMove = nil

	if ended || s.MyVitals <= 0 || s.OpponentVitals <= 0 {
		if winner == "" {
			switch {
			case s.OpponentVitals <= 0 && s.MyVitals > 0:
				winner = m.playerID
			case s.MyVitals <= 0 && s.OpponentVitals > 0:
				winner = s.OpponentID
			}
		}
		m.finish(winner, "")
		return
	}
	s.State = StateActive
}

// End closes the duel on the server's word, e.g. the opponent fled.
//
// Postcondition: State is StateIdle. An end while idle, or naming someone other
// than the current opponent, resets the machine and appends DesyncNotice.
func (m *Machine) End(fromID, winnerID, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session.State == StateIdle || (fromID != "" && fromID != m.session.OpponentID) {
		m.logger.Warn("duel end out of sync",
			zap.String("from", fromID),
			zap.String("state", string(m.session.State)))
		m.desync()
		return
	}
	m.finish(winnerID, reason)
}

// ChallengeAnswered handles the opponent's reply to a challenge this player sent.
func (m *Machine) ChallengeAnswered(fromID, fromName string, accepted bool) error {
	if fromName == "" {
		fromName = fromID
	}
	if !accepted {
		m.mu.Lock()
		m.system(fmt.Sprintf("%s declined your challenge.", fromName))
		m.mu.Unlock()
		return nil
	}
	return m.Begin(Start{OpponentID: fromID, OpponentName: fromName})
}

// ForceClear returns the machine to Idle, discarding opponent and moves.
// notice is appended to the ledger when a duel was actually cleared.
//
// Postcondition: State is StateIdle with no opponent and no moves. Returns true if
// anything was cleared.
func (m *Machine) ForceClear(notice string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.forceClear(notice)
}

func (m *Machine) forceClear(notice string) bool {
	wasIdle := m.session.State == StateIdle && m.session.OpponentID == ""
	m.reset()
	if wasIdle {
		return false
	}
	if notice != "" {
		m.system(notice)
	}
	return true
}

// desync resets after an update the local state cannot account for. The notice is
// appended even when nothing was live. Caller holds mu.
func (m *Machine) desync() {
	m.reset()
	m.system(DesyncNotice)
}

// finish moves through Ended to Idle. Caller holds mu.
func (m *Machine) finish(winnerID, reason string) {
	name := m.session.OpponentName
	m.session.State = StateEnded

	var text string
	switch {
	case winnerID == m.playerID && winnerID != "":
		text = fmt.Sprintf("You have defeated %s!", name)
	case winnerID != "" && winnerID == m.session.OpponentID:
		text = fmt.Sprintf("%s has defeated you.", name)
	default:
		text = fmt.Sprintf("The duel with %s has ended.", name)
	}
	if reason != "" {
		text += " " + reason
	}
	m.outcome(text)
	m.reset()
}

func (m *Machine) reset() {
	m.pending = nil
	m.session = Session{State: StateIdle}
}

func (m *Machine) system(text string) {
	m.append(ledger.KindSystem, text)
}

func (m *Machine) outcome(text string) {
	m.append(ledger.KindDuelOutcome, text)
}

func (m *Machine) append(kind ledger.Kind, text string) {
	if _, err := m.ledger.Append(ledger.Entry{AuthorID: ledger.SystemAuthor, Kind: kind, Text: text}); err != nil {
		m.logger.Error("appending duel entry", zap.Error(err))
	}
}

func (s Session) copy() Session {
	if s.MyMove != nil {
		mv := *s.MyMove
		s.MyMove = &mv
	}
	if s.OpponentMove != nil {
		mv := *s.OpponentMove
		s.OpponentMove = &mv
	}
	return s
}

func clamp(v, limit int) int {
	if v < 0 {
		return 0
	}
	if limit > 0 && v > limit {
		return limit
	}
	return v
}

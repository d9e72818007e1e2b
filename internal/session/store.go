// Package session provides the player snapshot and item registry that the
// coordinator mutates alongside the ledger.
package session

import (
	"fmt"
	"sync"
)

// Player is the client-side snapshot of the player's state.
type Player struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	RoomID    string   `json:"room_id"`
	Health    int      `json:"health"`
	MaxHealth int      `json:"max_health"`
	Gold      int      `json:"gold"`
	XP        int      `json:"xp"`
	Level     int      `json:"level"`
	Inventory []string `json:"inventory,omitempty"`
}

func (p Player) clone() Player {
	p.Inventory = append([]string(nil), p.Inventory...)
	return p
}

// PlayerDiff is a partial player update. Nil fields are left unchanged; a
// non-nil Inventory replaces the whole inventory.
type PlayerDiff struct {
	Name      *string  `json:"name,omitempty"`
	RoomID    *string  `json:"room_id,omitempty"`
	Health    *int     `json:"health,omitempty"`
	MaxHealth *int     `json:"max_health,omitempty"`
	Gold      *int     `json:"gold,omitempty"`
	XP        *int     `json:"xp,omitempty"`
	Level     *int     `json:"level,omitempty"`
	Inventory []string `json:"inventory,omitempty"`
}

// Empty reports whether the diff changes nothing.
func (d PlayerDiff) Empty() bool {
	return d.Name == nil && d.RoomID == nil && d.Health == nil && d.MaxHealth == nil &&
		d.Gold == nil && d.XP == nil && d.Level == nil && d.Inventory == nil
}

// Item is a discovered quest item.
type Item struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	QuestID     string `json:"quest_id,omitempty"`
}

// Store holds the player snapshot and the item registry.
// Writes come from the coordinator loop; reads are safe from any goroutine.
type Store struct {
	mu        sync.RWMutex
	player    Player
	items     map[string]Item // item ID → item
	itemOrder []string        // discovery order
}

// NewStore creates a Store seeded with the initial player snapshot.
//
// Precondition: p.ID must be non-empty.
func NewStore(p Player) *Store {
	return &Store{
		player: p.clone(),
		items:  make(map[string]Item),
	}
}

// Player returns a copy of the current player snapshot.
func (s *Store) Player() Player {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.player.clone()
}

// MergePlayer applies d to the player snapshot.
//
// Postcondition: Health is clamped to [0, MaxHealth] when MaxHealth > 0. Returns the
// merged snapshot.
func (s *Store) MergePlayer(d PlayerDiff) Player {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := &s.player
	if d.Name != nil {
		p.Name = *d.Name
	}
	if d.RoomID != nil {
		p.RoomID = *d.RoomID
	}
	if d.MaxHealth != nil {
		p.MaxHealth = *d.MaxHealth
	}
	if d.Health != nil {
		p.Health = *d.Health
	}
	if d.Gold != nil {
		p.Gold = *d.Gold
	}
	if d.XP != nil {
		p.XP = *d.XP
	}
	if d.Level != nil {
		p.Level = *d.Level
	}
	if d.Inventory != nil {
		p.Inventory = append([]string(nil), d.Inventory...)
	}
	if p.Health < 0 {
		p.Health = 0
	}
	if p.MaxHealth > 0 && p.Health > p.MaxHealth {
		p.Health = p.MaxHealth
	}
	return p.clone()
}

// RegisterItem adds item to the registry.
//
// Precondition: item.ID must be non-empty.
// Postcondition: Returns true if the item was new, false if already registered.
func (s *Store) RegisterItem(item Item) (bool, error) {
	if item.ID == "" {
		return false, fmt.Errorf("registering item %q: id must not be empty", item.Name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.items[item.ID]; exists {
		return false, nil
	}
	s.items[item.ID] = item
	s.itemOrder = append(s.itemOrder, item.ID)
	return true, nil
}

// Item returns the registered item with the given ID.
//
// Postcondition: Returns (item, true) if found, or (Item{}, false) otherwise.
func (s *Store) Item(id string) (Item, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[id]
	return item, ok
}

// Items returns all registered items in discovery order.
func (s *Store) Items() []Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Item, 0, len(s.itemOrder))
	for _, id := range s.itemOrder {
		out = append(out, s.items[id])
	}
	return out
}

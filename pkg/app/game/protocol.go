// Package game is a tick-based game world application: real-time
// snapshots, player inventories, and a rich passport with a destination
// import policy (no weapons past a zone that forbids them).
package game

import (
	"encoding/json"

	"github.com/rhi-zone/interconnect/pkg/identity"
)

// IntentType discriminates game intents.
type IntentType string

const (
	IntentMove    IntentType = "move"
	IntentUseItem IntentType = "use_item"
	IntentPickUp  IntentType = "pick_up"
	IntentDrop    IntentType = "drop"
)

// Intent is a player action request. Only the fields of the active variant
// are meaningful.
type Intent struct {
	Type IntentType `json:"type"`
	// move
	Dx float64 `json:"dx,omitempty"`
	Dy float64 `json:"dy,omitempty"`
	// use_item, drop
	Slot int `json:"slot,omitempty"`
	// pick_up
	ItemID uint64 `json:"item_id,omitempty"`
}

// Snapshot is the authoritative world state pushed every tick.
type Snapshot struct {
	Tick     uint64        `json:"tick"`
	Players  []PlayerState `json:"players"`
	Items    []WorldItem   `json:"items"`
	ZoneName string        `json:"zone_name"`
}

// PlayerState is a player's visible state.
type PlayerState struct {
	Identity identity.Identity `json:"identity"`
	Name     string            `json:"name"`
	X        float64           `json:"x"`
	Y        float64           `json:"y"`
	Health   int               `json:"health"`
	Equipped ItemKind          `json:"equipped,omitempty"`
}

// WorldItem is an item lying in the world (not in an inventory).
type WorldItem struct {
	ID   uint64   `json:"id"`
	Kind ItemKind `json:"kind"`
	X    float64  `json:"x"`
	Y    float64  `json:"y"`
}

// ItemKind enumerates item types.
type ItemKind string

const (
	ItemSword  ItemKind = "sword"
	ItemShield ItemKind = "shield"
	ItemPotion ItemKind = "potion"
	ItemKey    ItemKind = "key"
	ItemGem    ItemKind = "gem"
	ItemTorch  ItemKind = "torch"
)

// IsWeapon reports whether the item falls under weapon import policies.
func (k ItemKind) IsWeapon() bool { return k == ItemSword }

// InventoryItem is a stack of items carried by a player.
type InventoryItem struct {
	Kind  ItemKind `json:"kind"`
	Count int      `json:"count"`
}

// Passport is the game's transfer payload: everything a destination zone
// needs to reconstruct the player.
type Passport struct {
	Identity   identity.Identity `json:"identity"`
	Name       string            `json:"name"`
	Health     int               `json:"health"`
	MaxHealth  int               `json:"max_health"`
	Inventory  []InventoryItem   `json:"inventory"`
	OriginZone string            `json:"origin_zone"`
}

// Bytes serializes the passport data blob.
func (p Passport) Bytes() []byte {
	b, _ := json.Marshal(p)
	return b
}

// ImportResult is the game's import policy decision.
type ImportResult struct {
	// Fresh: the passport data did not decode; the bearer starts over as a
	// brand-new player.
	Fresh bool
	// Name, Health, MaxHealth of the admitted player.
	Name      string
	Health    int
	MaxHealth int
	// Accepted inventory, and what was refused with reasons.
	Accepted []InventoryItem
	Rejected []RejectedItem
}

// RejectedItem is one refused inventory entry.
type RejectedItem struct {
	Item   InventoryItem
	Reason string
}

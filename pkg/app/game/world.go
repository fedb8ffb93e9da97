package game

import (
	"encoding/json"
	"math"

	"github.com/rhi-zone/interconnect/pkg/identity"
	"github.com/rhi-zone/interconnect/pkg/transfer"
)

const (
	worldBound   = 100.0
	pickupRadius = 2.0
	maxHealth    = 100
	minHealth    = 1
)

// Player is a live player in the world.
type Player struct {
	ID        identity.Identity
	Name      string
	X, Y      float64
	Health    int
	MaxHealth int
	Inventory []InventoryItem
	Equipped  ItemKind
}

// World holds all mutable game state. It is not safe for concurrent use;
// App serializes access.
type World struct {
	ZoneName     string
	AllowWeapons bool

	tick    uint64
	players map[identity.Identity]*Player
	items   map[uint64]*WorldItem
	nextID  uint64
}

// NewWorld creates an empty world. Weapon policy defaults by zone flavor
// and can be overridden via config.
func NewWorld(zoneName string, allowWeapons bool) *World {
	return &World{
		ZoneName:     zoneName,
		AllowWeapons: allowWeapons,
		players:      make(map[identity.Identity]*Player),
		items:        make(map[uint64]*WorldItem),
		nextID:       1,
	}
}

// SpawnItem drops an item into the world and returns its id.
func (w *World) SpawnItem(kind ItemKind, x, y float64) uint64 {
	id := w.nextID
	w.nextID++
	w.items[id] = &WorldItem{ID: id, Kind: kind, X: x, Y: y}
	return id
}

// Evaluate applies the zone's import policy to an arriving passport.
// Undecodable data yields a fresh result rather than a refusal: the bearer
// is admitted as a new player.
func (w *World) Evaluate(pp transfer.Passport) ImportResult {
	var gp Passport
	if len(pp.Data) == 0 || json.Unmarshal(pp.Data, &gp) != nil {
		return ImportResult{Fresh: true}
	}
	res := ImportResult{
		Name:      gp.Name,
		Health:    clampInt(gp.Health, minHealth, maxHealth),
		MaxHealth: clampInt(gp.MaxHealth, minHealth, maxHealth),
	}
	if res.MaxHealth < res.Health {
		res.MaxHealth = res.Health
	}
	for _, it := range gp.Inventory {
		if it.Kind.IsWeapon() && !w.AllowWeapons {
			res.Rejected = append(res.Rejected, RejectedItem{
				Item:   it,
				Reason: "weapons not allowed in this zone",
			})
			continue
		}
		res.Accepted = append(res.Accepted, it)
	}
	return res
}

// Admit places a player in the world from an import result.
func (w *World) Admit(id identity.Identity, res ImportResult) *Player {
	p := &Player{
		ID:        id,
		Name:      res.Name,
		Health:    res.Health,
		MaxHealth: res.MaxHealth,
		Inventory: res.Accepted,
	}
	if res.Fresh || p.Name == "" {
		p.Name = id.Payload()
	}
	if res.Fresh {
		p.Health = maxHealth
		p.MaxHealth = maxHealth
		p.Inventory = nil
	}
	w.players[id] = p
	return p
}

// Remove drops a player from the world.
func (w *World) Remove(id identity.Identity) { delete(w.players, id) }

// Player looks up a live player.
func (w *World) Player(id identity.Identity) (*Player, bool) {
	p, ok := w.players[id]
	return p, ok
}

// Move displaces a player, clamped to world bounds.
func (w *World) Move(id identity.Identity, dx, dy float64) {
	p, ok := w.players[id]
	if !ok {
		return
	}
	p.X = clampFloat(p.X+dx, -worldBound, worldBound)
	p.Y = clampFloat(p.Y+dy, -worldBound, worldBound)
}

// UseItem consumes or equips the item at slot.
func (w *World) UseItem(id identity.Identity, slot int) bool {
	p, ok := w.players[id]
	if !ok || slot < 0 || slot >= len(p.Inventory) {
		return false
	}
	it := &p.Inventory[slot]
	switch it.Kind {
	case ItemPotion:
		p.Health = clampInt(p.Health+25, minHealth, p.MaxHealth)
		it.Count--
	default:
		p.Equipped = it.Kind
	}
	if it.Count <= 0 && it.Kind == ItemPotion {
		p.Inventory = append(p.Inventory[:slot], p.Inventory[slot+1:]...)
	}
	return true
}

// PickUp moves a nearby world item into the player's inventory.
func (w *World) PickUp(id identity.Identity, itemID uint64) bool {
	p, ok := w.players[id]
	if !ok {
		return false
	}
	it, ok := w.items[itemID]
	if !ok {
		return false
	}
	if math.Hypot(it.X-p.X, it.Y-p.Y) > pickupRadius {
		return false
	}
	delete(w.items, itemID)
	for i := range p.Inventory {
		if p.Inventory[i].Kind == it.Kind {
			p.Inventory[i].Count++
			return true
		}
	}
	p.Inventory = append(p.Inventory, InventoryItem{Kind: it.Kind, Count: 1})
	return true
}

// Drop places the item at slot back into the world at the player's feet.
func (w *World) Drop(id identity.Identity, slot int) bool {
	p, ok := w.players[id]
	if !ok || slot < 0 || slot >= len(p.Inventory) {
		return false
	}
	it := &p.Inventory[slot]
	w.SpawnItem(it.Kind, p.X, p.Y)
	it.Count--
	if it.Count <= 0 {
		if p.Equipped == it.Kind {
			p.Equipped = ""
		}
		p.Inventory = append(p.Inventory[:slot], p.Inventory[slot+1:]...)
	}
	return true
}

// Step advances the simulation one tick.
func (w *World) Step() { w.tick++ }

// Snapshot renders the current world state.
func (w *World) Snapshot() Snapshot {
	s := Snapshot{Tick: w.tick, ZoneName: w.ZoneName}
	for _, p := range w.players {
		s.Players = append(s.Players, PlayerState{
			Identity: p.ID,
			Name:     p.Name,
			X:        p.X,
			Y:        p.Y,
			Health:   p.Health,
			Equipped: p.Equipped,
		})
	}
	for _, it := range w.items {
		s.Items = append(s.Items, *it)
	}
	return s
}

// PassportFor renders a player's transferable state.
func (w *World) PassportFor(p *Player) Passport {
	return Passport{
		Identity:   p.ID,
		Name:       p.Name,
		Health:     p.Health,
		MaxHealth:  p.MaxHealth,
		Inventory:  p.Inventory,
		OriginZone: w.ZoneName,
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

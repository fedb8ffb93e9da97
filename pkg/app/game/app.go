package game

import (
	"encoding/json"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/rhi-zone/interconnect/pkg/identity"
	"github.com/rhi-zone/interconnect/pkg/protocol"
	"github.com/rhi-zone/interconnect/pkg/session"
	"github.com/rhi-zone/interconnect/pkg/transfer"
)

// App adapts a World to the session contract. All world access goes
// through one read/write lock.
type App struct {
	mu    sync.RWMutex
	world *World
	peers []string
	log   *zap.Logger
}

var _ session.App[Intent, Snapshot] = (*App)(nil)

// New builds the game application for one zone. peers names the zones
// accepted as transfer destinations.
func New(world *World, peers []string, log *zap.Logger) *App {
	if log == nil {
		log = zap.L()
	}
	return &App{world: world, peers: peers, log: log.Named("game")}
}

func (a *App) Admit(id identity.Identity, pp *transfer.Passport) (session.Admission, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	res := ImportResult{Fresh: true}
	if pp != nil {
		res = a.world.Evaluate(*pp)
	}
	p := a.world.Admit(id, res)

	adm := session.Admission{Fresh: res.Fresh || pp == nil}
	for _, rej := range res.Rejected {
		adm.Rejections = append(adm.Rejections, session.Rejection{
			Reason: rej.Reason,
		})
	}
	a.log.Info("player admitted",
		zap.Stringer("identity", id),
		zap.String("name", p.Name),
		zap.Bool("fresh", adm.Fresh),
		zap.Int("rejected_items", len(res.Rejected)))
	return adm, nil
}

func (a *App) Snapshot(id identity.Identity) (Snapshot, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.world.Snapshot(), nil
}

func (a *App) Apply(id identity.Identity, in Intent) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch in.Type {
	case IntentMove:
		a.world.Move(id, in.Dx, in.Dy)
	case IntentUseItem:
		if !a.world.UseItem(id, in.Slot) {
			return &session.Reject{Code: protocol.CodeIntentRejected, Message: "no such inventory slot"}
		}
	case IntentPickUp:
		if !a.world.PickUp(id, in.ItemID) {
			return &session.Reject{Code: protocol.CodeIntentRejected, Message: "item not in reach"}
		}
	case IntentDrop:
		if !a.world.Drop(id, in.Slot) {
			return &session.Reject{Code: protocol.CodeIntentRejected, Message: "no such inventory slot"}
		}
	default:
		return &session.Reject{Code: protocol.CodeIntentRejected, Message: "unknown intent"}
	}
	return nil
}

func (a *App) Depart(id identity.Identity, destination string) (transfer.Passport, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !slices.Contains(a.peers, destination) {
		return transfer.Passport{}, &session.Reject{
			Code:    protocol.CodeUnknownDestination,
			Message: "unknown destination " + destination,
		}
	}
	p, ok := a.world.Player(id)
	if !ok {
		return transfer.Passport{}, &session.Reject{
			Code:    protocol.CodeIntentRejected,
			Message: "not in world",
		}
	}
	data, err := json.Marshal(a.world.PassportFor(p))
	if err != nil {
		return transfer.Passport{}, err
	}
	a.world.Remove(id)
	a.log.Info("player departing",
		zap.Stringer("identity", id),
		zap.String("destination", destination))
	return transfer.New(id, data), nil
}

func (a *App) Leave(id identity.Identity) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.world.Remove(id)
}

// Step advances the world one tick. Wired to zone.Tick.
func (a *App) Step() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.world.Step()
}

// Package chat is a multi-room-style chat application: one zone is one
// room, messages fan out through snapshot pushes, and a tiny passport
// carries a display name across zones.
package chat

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rhi-zone/interconnect/pkg/identity"
	"github.com/rhi-zone/interconnect/pkg/protocol"
	"github.com/rhi-zone/interconnect/pkg/session"
	"github.com/rhi-zone/interconnect/pkg/transfer"
)

const (
	// Stored history; snapshots expose the newest historyShown of these.
	historyStored = 100
	historyShown  = 50
	maxText       = 1024
)

// IntentType discriminates chat intents.
type IntentType string

const (
	IntentSay     IntentType = "say"
	IntentSetName IntentType = "set_name"
)

// Intent is a chat action request.
type Intent struct {
	Type IntentType `json:"type"`
	Text string     `json:"text,omitempty"`
	Name string     `json:"name,omitempty"`
}

// Message is one chat line. System lines carry no From.
type Message struct {
	From *identity.Identity `json:"from,omitempty"`
	Name string            `json:"name"`
	Text string            `json:"text"`
	At   time.Time         `json:"at"`
}

// Snapshot is the room state pushed to every member.
type Snapshot struct {
	Room     string    `json:"room"`
	Users    []string  `json:"users"`
	Messages []Message `json:"messages"`
}

// Passport is the chat transfer payload.
type Passport struct {
	Name   string `json:"name"`
	Origin string `json:"origin"`
}

// App is one chat room behind a session lock.
type App struct {
	mu       sync.RWMutex
	room     string
	peers    []string
	users    map[identity.Identity]string
	messages []Message
	onChange func()
	log      *zap.Logger
}

var _ session.App[Intent, Snapshot] = (*App)(nil)

// New builds a chat room. onChange, if non-nil, fires after every state
// mutation so the zone can push fresh snapshots.
func New(room string, peers []string, onChange func(), log *zap.Logger) *App {
	if log == nil {
		log = zap.L()
	}
	return &App{
		room:     room,
		peers:    peers,
		users:    make(map[identity.Identity]string),
		onChange: onChange,
		log:      log.Named("chat"),
	}
}

func (a *App) Admit(id identity.Identity, pp *transfer.Passport) (session.Admission, error) {
	a.mu.Lock()

	name := id.Payload()
	fresh := true
	if pp != nil {
		var cp Passport
		if json.Unmarshal(pp.Data, &cp) == nil && cp.Name != "" {
			name = cp.Name
			fresh = false
			a.system(name + " arrived from " + cp.Origin)
		}
	}
	if fresh {
		a.system(name + " joined")
	}
	a.users[id] = name
	a.mu.Unlock()

	a.changed()
	return session.Admission{Fresh: fresh}, nil
}

func (a *App) Snapshot(id identity.Identity) (Snapshot, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	s := Snapshot{Room: a.room}
	for _, name := range a.users {
		s.Users = append(s.Users, name)
	}
	msgs := a.messages
	if len(msgs) > historyShown {
		msgs = msgs[len(msgs)-historyShown:]
	}
	s.Messages = append(s.Messages, msgs...)
	return s, nil
}

func (a *App) Apply(id identity.Identity, in Intent) error {
	a.mu.Lock()

	switch in.Type {
	case IntentSay:
		text := strings.TrimSpace(in.Text)
		if text == "" || len(text) > maxText {
			a.mu.Unlock()
			return &session.Reject{Code: protocol.CodeIntentRejected, Message: "empty or oversized message"}
		}
		a.append(Message{From: &id, Name: a.users[id], Text: text, At: time.Now().UTC()})
	case IntentSetName:
		name := strings.TrimSpace(in.Name)
		if name == "" {
			a.mu.Unlock()
			return &session.Reject{Code: protocol.CodeIntentRejected, Message: "empty name"}
		}
		old := a.users[id]
		a.users[id] = name
		a.system(old + " is now known as " + name)
	default:
		a.mu.Unlock()
		return &session.Reject{Code: protocol.CodeIntentRejected, Message: "unknown intent"}
	}
	a.mu.Unlock()

	a.changed()
	return nil
}

func (a *App) Depart(id identity.Identity, destination string) (transfer.Passport, error) {
	a.mu.Lock()

	found := false
	for _, p := range a.peers {
		if p == destination {
			found = true
			break
		}
	}
	if !found {
		a.mu.Unlock()
		return transfer.Passport{}, &session.Reject{
			Code:    protocol.CodeUnknownDestination,
			Message: "unknown destination " + destination,
		}
	}
	name := a.users[id]
	delete(a.users, id)
	a.system(name + " left for " + destination)
	a.mu.Unlock()

	a.changed()
	data, err := json.Marshal(Passport{Name: name, Origin: a.room})
	if err != nil {
		return transfer.Passport{}, err
	}
	return transfer.New(id, data), nil
}

func (a *App) Leave(id identity.Identity) {
	a.mu.Lock()
	name, ok := a.users[id]
	if ok {
		delete(a.users, id)
		a.system(name + " left")
	}
	a.mu.Unlock()

	if ok {
		a.changed()
	}
}

// append stores a message, trimming history to the stored cap. Callers hold
// the write lock.
func (a *App) append(m Message) {
	a.messages = append(a.messages, m)
	if len(a.messages) > historyStored {
		a.messages = a.messages[len(a.messages)-historyStored:]
	}
}

func (a *App) system(text string) {
	a.append(Message{Name: "system", Text: text, At: time.Now().UTC()})
}

func (a *App) changed() {
	if a.onChange != nil {
		a.onChange()
	}
}

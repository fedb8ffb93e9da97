// Package blog is a microblogging application: a per-zone feed, follow
// relationships, and a profile passport so an author's standing travels
// between zones.
package blog

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
	timelineLen  = 20
	maxPostLen   = 500
	maxFollowing = 1000
)

// IntentType discriminates blog intents.
type IntentType string

const (
	IntentPost       IntentType = "post"
	IntentFollow     IntentType = "follow"
	IntentUnfollow   IntentType = "unfollow"
	IntentSetProfile IntentType = "set_profile"
)

// Intent is a blog action request.
type Intent struct {
	Type IntentType `json:"type"`
	// post
	Text string `json:"text,omitempty"`
	// follow, unfollow: canonical identity string
	Target string `json:"target,omitempty"`
	// set_profile
	DisplayName string `json:"display_name,omitempty"`
	Bio         string `json:"bio,omitempty"`
}

// Post is one published entry.
type Post struct {
	Author identity.Identity `json:"author"`
	Name   string            `json:"name"`
	Text   string            `json:"text"`
	At     time.Time         `json:"at"`
}

// Profile is an author's public face.
type Profile struct {
	DisplayName string              `json:"display_name"`
	Bio         string              `json:"bio,omitempty"`
	Following   []identity.Identity `json:"following,omitempty"`
}

// Snapshot is the feed visible to one reader: the newest posts from the
// authors they follow (plus their own), or the whole zone feed when they
// follow nobody.
type Snapshot struct {
	Zone     string  `json:"zone"`
	Profile  Profile `json:"profile"`
	Timeline []Post  `json:"timeline"`
}

// Passport is the blog transfer payload.
type Passport struct {
	DisplayName string   `json:"display_name"`
	Bio         string   `json:"bio,omitempty"`
	Following   []string `json:"following,omitempty"`
	Origin      string   `json:"origin"`
}

// App is one blog zone behind a session lock.
type App struct {
	mu       sync.RWMutex
	zone     string
	peers    []string
	posts    []Post
	profiles map[identity.Identity]*Profile
	onChange func()
	log      *zap.Logger
}

var _ session.App[Intent, Snapshot] = (*App)(nil)

// New builds a blog zone. onChange, if non-nil, fires after every mutation.
func New(zone string, peers []string, onChange func(), log *zap.Logger) *App {
	if log == nil {
		log = zap.L()
	}
	return &App{
		zone:     zone,
		peers:    peers,
		profiles: make(map[identity.Identity]*Profile),
		onChange: onChange,
		log:      log.Named("blog"),
	}
}

func (a *App) Admit(id identity.Identity, pp *transfer.Passport) (session.Admission, error) {
	a.mu.Lock()

	prof := &Profile{DisplayName: id.Payload()}
	adm := session.Admission{Fresh: true}
	if pp != nil {
		var bp Passport
		if json.Unmarshal(pp.Data, &bp) == nil && bp.DisplayName != "" {
			prof.DisplayName = bp.DisplayName
			prof.Bio = bp.Bio
			adm.Fresh = false
			for _, raw := range bp.Following {
				target, err := identity.Parse(raw)
				if err != nil {
					adm.Rejections = append(adm.Rejections, session.Rejection{
						Reason: "unparseable follow target " + raw,
					})
					continue
				}
				if len(prof.Following) >= maxFollowing {
					adm.Rejections = append(adm.Rejections, session.Rejection{
						Reason: "follow list truncated",
					})
					break
				}
				prof.Following = append(prof.Following, target)
			}
		}
	}
	a.profiles[id] = prof
	a.mu.Unlock()

	a.log.Info("author admitted",
		zap.Stringer("identity", id),
		zap.String("display_name", prof.DisplayName))
	return adm, nil
}

func (a *App) Snapshot(id identity.Identity) (Snapshot, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	s := Snapshot{Zone: a.zone}
	prof, ok := a.profiles[id]
	if ok {
		s.Profile = *prof
	}

	follows := func(author identity.Identity) bool {
		if !ok || len(prof.Following) == 0 {
			return true
		}
		if author == id {
			return true
		}
		for _, f := range prof.Following {
			if f == author {
				return true
			}
		}
		return false
	}
	// Posts are stored oldest first; walk backwards for the newest.
	for i := len(a.posts) - 1; i >= 0 && len(s.Timeline) < timelineLen; i-- {
		if follows(a.posts[i].Author) {
			s.Timeline = append(s.Timeline, a.posts[i])
		}
	}
	return s, nil
}

func (a *App) Apply(id identity.Identity, in Intent) error {
	a.mu.Lock()

	prof, ok := a.profiles[id]
	if !ok {
		a.mu.Unlock()
		return &session.Reject{Code: protocol.CodeIntentRejected, Message: "not admitted"}
	}

	var err error
	switch in.Type {
	case IntentPost:
		text := strings.TrimSpace(in.Text)
		if text == "" || len(text) > maxPostLen {
			err = &session.Reject{Code: protocol.CodeIntentRejected, Message: "empty or oversized post"}
			break
		}
		a.posts = append(a.posts, Post{
			Author: id, Name: prof.DisplayName, Text: text, At: time.Now().UTC(),
		})
	case IntentFollow:
		var target identity.Identity
		target, err = identity.Parse(in.Target)
		if err != nil {
			err = &session.Reject{Code: protocol.CodeIntentRejected, Message: "bad follow target"}
			break
		}
		if len(prof.Following) >= maxFollowing {
			err = &session.Reject{Code: protocol.CodeIntentRejected, Message: "follow list full"}
			break
		}
		for _, f := range prof.Following {
			if f == target {
				a.mu.Unlock()
				return nil
			}
		}
		prof.Following = append(prof.Following, target)
	case IntentUnfollow:
		var target identity.Identity
		target, err = identity.Parse(in.Target)
		if err != nil {
			err = &session.Reject{Code: protocol.CodeIntentRejected, Message: "bad follow target"}
			break
		}
		for i, f := range prof.Following {
			if f == target {
				prof.Following = append(prof.Following[:i], prof.Following[i+1:]...)
				break
			}
		}
	case IntentSetProfile:
		name := strings.TrimSpace(in.DisplayName)
		if name == "" {
			err = &session.Reject{Code: protocol.CodeIntentRejected, Message: "empty display name"}
			break
		}
		prof.DisplayName = name
		prof.Bio = in.Bio
	default:
		err = &session.Reject{Code: protocol.CodeIntentRejected, Message: "unknown intent"}
	}
	a.mu.Unlock()

	if err == nil {
		a.changed()
	}
	return err
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
	prof := a.profiles[id]
	if prof == nil {
		prof = &Profile{DisplayName: id.Payload()}
	}
	bp := Passport{
		DisplayName: prof.DisplayName,
		Bio:         prof.Bio,
		Origin:      a.zone,
	}
	for _, f := range prof.Following {
		bp.Following = append(bp.Following, f.String())
	}
	delete(a.profiles, id)
	a.mu.Unlock()

	data, err := json.Marshal(bp)
	if err != nil {
		return transfer.Passport{}, err
	}
	return transfer.New(id, data), nil
}

func (a *App) Leave(id identity.Identity) {
	a.mu.Lock()
	delete(a.profiles, id)
	a.mu.Unlock()
}

func (a *App) changed() {
	if a.onChange != nil {
		a.onChange()
	}
}

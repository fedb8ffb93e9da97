// Package forum is a threaded discussion board: paginated thread listings,
// per-author reputation carried across zones in the passport, and a posting
// restriction for poorly-reputed newcomers.
package forum

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
	defaultPerPage = 20
	maxPerPage     = 100
	maxReputation  = 100
	minReputation  = -100
	maxBody        = 16 * 1024
)

// IntentType discriminates forum intents.
type IntentType string

const (
	IntentCreateThread IntentType = "create_thread"
	IntentReply        IntentType = "reply"
	IntentEditPost     IntentType = "edit_post"
	IntentDeletePost   IntentType = "delete_post"
	IntentVote         IntentType = "vote"
	IntentSetPage      IntentType = "set_page"
)

// Intent is a forum action request.
type Intent struct {
	Type IntentType `json:"type"`
	// create_thread
	Title string `json:"title,omitempty"`
	// create_thread, reply, edit_post
	Body string `json:"body,omitempty"`
	// reply, edit_post, delete_post, vote
	ThreadID uint64 `json:"thread_id,omitempty"`
	PostID   uint64 `json:"post_id,omitempty"`
	// vote
	Up bool `json:"up,omitempty"`
	// set_page
	Page    int `json:"page,omitempty"`
	PerPage int `json:"per_page,omitempty"`
}

// Post is one message inside a thread. PostID 0 identifies the opening post.
type Post struct {
	ID     uint64            `json:"id"`
	Author identity.Identity `json:"author"`
	Name   string            `json:"name"`
	Body   string            `json:"body"`
	At     time.Time         `json:"at"`
}

// Thread is an opening post plus its replies.
type Thread struct {
	ID      uint64    `json:"id"`
	Title   string    `json:"title"`
	Opening Post      `json:"opening"`
	Replies []Post    `json:"replies"`
	Bumped  time.Time `json:"bumped"`
}

// Profile is per-author standing on this board.
type Profile struct {
	Name       string `json:"name"`
	Reputation int    `json:"reputation"`
	PostCount  int    `json:"post_count"`
}

// CanPost reports whether the profile may open threads or reply. Negative
// reputation restricts posting until the author has a track record.
func (p Profile) CanPost() bool {
	return p.Reputation >= 0 || p.PostCount > 10
}

// Snapshot is the board state visible to one reader: threads newest-bump
// first, paginated by that reader's preference.
type Snapshot struct {
	Board        string   `json:"board"`
	Page         int      `json:"page"`
	PerPage      int      `json:"per_page"`
	TotalThreads int      `json:"total_threads"`
	Threads      []Thread `json:"threads"`
	Profile      Profile  `json:"profile"`
}

// Passport is the forum transfer payload.
type Passport struct {
	Name       string `json:"name"`
	Reputation int    `json:"reputation"`
	PostCount  int    `json:"post_count"`
	Origin     string `json:"origin"`
}

type pageview struct {
	page    int
	perPage int
}

// App is one board behind a session lock.
type App struct {
	mu       sync.RWMutex
	board    string
	peers    []string
	threads  []*Thread
	profiles map[identity.Identity]*Profile
	views    map[identity.Identity]pageview
	nextID   uint64
	onChange func()
	log      *zap.Logger
}

var _ session.App[Intent, Snapshot] = (*App)(nil)

// New builds a board. onChange, if non-nil, fires after every mutation.
func New(board string, peers []string, onChange func(), log *zap.Logger) *App {
	if log == nil {
		log = zap.L()
	}
	return &App{
		board:    board,
		peers:    peers,
		profiles: make(map[identity.Identity]*Profile),
		views:    make(map[identity.Identity]pageview),
		nextID:   1,
		onChange: onChange,
		log:      log.Named("forum"),
	}
}

func (a *App) Admit(id identity.Identity, pp *transfer.Passport) (session.Admission, error) {
	a.mu.Lock()

	prof := &Profile{Name: id.Payload()}
	adm := session.Admission{Fresh: true}
	if pp != nil {
		var fp Passport
		if json.Unmarshal(pp.Data, &fp) == nil && fp.Name != "" {
			prof = &Profile{
				Name:       fp.Name,
				Reputation: clamp(fp.Reputation, minReputation, maxReputation),
				PostCount:  fp.PostCount,
			}
			adm.Fresh = false
			if !prof.CanPost() {
				adm.Rejections = append(adm.Rejections, session.Rejection{
					Reason: "posting restricted until reputation recovers",
				})
			}
		}
	}
	a.profiles[id] = prof
	a.views[id] = pageview{page: 1, perPage: defaultPerPage}
	a.mu.Unlock()

	a.log.Info("reader admitted",
		zap.Stringer("identity", id),
		zap.String("name", prof.Name),
		zap.Int("reputation", prof.Reputation))
	return adm, nil
}

func (a *App) Snapshot(id identity.Identity) (Snapshot, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	v, ok := a.views[id]
	if !ok {
		v = pageview{page: 1, perPage: defaultPerPage}
	}
	s := Snapshot{
		Board:        a.board,
		Page:         v.page,
		PerPage:      v.perPage,
		TotalThreads: len(a.threads),
	}
	if p, ok := a.profiles[id]; ok {
		s.Profile = *p
	}
	start := (v.page - 1) * v.perPage
	if start < len(a.threads) {
		end := start + v.perPage
		if end > len(a.threads) {
			end = len(a.threads)
		}
		for _, t := range a.threads[start:end] {
			s.Threads = append(s.Threads, *t)
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
	case IntentCreateThread:
		err = a.createThread(id, prof, in)
	case IntentReply:
		err = a.reply(id, prof, in)
	case IntentEditPost:
		err = a.editPost(id, in)
	case IntentDeletePost:
		err = a.deletePost(id, in)
	case IntentVote:
		err = a.vote(in)
	case IntentSetPage:
		err = a.setPage(id, in)
	default:
		err = &session.Reject{Code: protocol.CodeIntentRejected, Message: "unknown intent"}
	}
	a.mu.Unlock()

	if err == nil {
		a.changed()
	}
	return err
}

func (a *App) createThread(id identity.Identity, prof *Profile, in Intent) error {
	if !prof.CanPost() {
		return &session.Reject{Code: protocol.CodeIntentRejected, Message: "posting restricted"}
	}
	title := strings.TrimSpace(in.Title)
	if title == "" || len(in.Body) > maxBody {
		return &session.Reject{Code: protocol.CodeIntentRejected, Message: "missing title or oversized body"}
	}
	now := time.Now().UTC()
	t := &Thread{
		ID:    a.nextID,
		Title: title,
		Opening: Post{
			ID: a.nextID, Author: id, Name: prof.Name, Body: in.Body, At: now,
		},
		Bumped: now,
	}
	a.nextID++
	// Newest bump first.
	a.threads = append([]*Thread{t}, a.threads...)
	prof.PostCount++
	return nil
}

func (a *App) reply(id identity.Identity, prof *Profile, in Intent) error {
	if !prof.CanPost() {
		return &session.Reject{Code: protocol.CodeIntentRejected, Message: "posting restricted"}
	}
	if len(in.Body) == 0 || len(in.Body) > maxBody {
		return &session.Reject{Code: protocol.CodeIntentRejected, Message: "empty or oversized body"}
	}
	t, idx := a.thread(in.ThreadID)
	if t == nil {
		return &session.Reject{Code: protocol.CodeIntentRejected, Message: "no such thread"}
	}
	now := time.Now().UTC()
	t.Replies = append(t.Replies, Post{
		ID: a.nextID, Author: id, Name: prof.Name, Body: in.Body, At: now,
	})
	a.nextID++
	t.Bumped = now
	// Bump to the top.
	a.threads = append(a.threads[:idx], a.threads[idx+1:]...)
	a.threads = append([]*Thread{t}, a.threads...)
	prof.PostCount++
	return nil
}

func (a *App) editPost(id identity.Identity, in Intent) error {
	if len(in.Body) == 0 || len(in.Body) > maxBody {
		return &session.Reject{Code: protocol.CodeIntentRejected, Message: "empty or oversized body"}
	}
	t, _ := a.thread(in.ThreadID)
	if t == nil {
		return &session.Reject{Code: protocol.CodeIntentRejected, Message: "no such thread"}
	}
	post := &t.Opening
	if in.PostID != t.Opening.ID {
		post = nil
		for i := range t.Replies {
			if t.Replies[i].ID == in.PostID {
				post = &t.Replies[i]
				break
			}
		}
		if post == nil {
			return &session.Reject{Code: protocol.CodeIntentRejected, Message: "no such post"}
		}
	}
	if post.Author != id {
		return &session.Reject{Code: protocol.CodeIntentRejected, Message: "not your post"}
	}
	post.Body = in.Body
	return nil
}

func (a *App) deletePost(id identity.Identity, in Intent) error {
	t, idx := a.thread(in.ThreadID)
	if t == nil {
		return &session.Reject{Code: protocol.CodeIntentRejected, Message: "no such thread"}
	}
	if in.PostID == t.Opening.ID {
		if t.Opening.Author != id {
			return &session.Reject{Code: protocol.CodeIntentRejected, Message: "not your post"}
		}
		a.threads = append(a.threads[:idx], a.threads[idx+1:]...)
		return nil
	}
	for i, p := range t.Replies {
		if p.ID != in.PostID {
			continue
		}
		if p.Author != id {
			return &session.Reject{Code: protocol.CodeIntentRejected, Message: "not your post"}
		}
		t.Replies = append(t.Replies[:i], t.Replies[i+1:]...)
		return nil
	}
	return &session.Reject{Code: protocol.CodeIntentRejected, Message: "no such post"}
}

func (a *App) vote(in Intent) error {
	t, _ := a.thread(in.ThreadID)
	if t == nil {
		return &session.Reject{Code: protocol.CodeIntentRejected, Message: "no such thread"}
	}
	author := t.Opening.Author
	if in.PostID != t.Opening.ID {
		found := false
		for _, p := range t.Replies {
			if p.ID == in.PostID {
				author = p.Author
				found = true
				break
			}
		}
		if !found {
			return &session.Reject{Code: protocol.CodeIntentRejected, Message: "no such post"}
		}
	}
	prof, ok := a.profiles[author]
	if !ok {
		// Author has left this zone; the vote has nowhere to land.
		return nil
	}
	delta := -1
	if in.Up {
		delta = 1
	}
	prof.Reputation = clamp(prof.Reputation+delta, minReputation, maxReputation)
	return nil
}

func (a *App) setPage(id identity.Identity, in Intent) error {
	if in.Page < 1 || in.PerPage < 1 || in.PerPage > maxPerPage {
		return &session.Reject{Code: protocol.CodeIntentRejected, Message: "page out of range"}
	}
	a.views[id] = pageview{page: in.Page, perPage: in.PerPage}
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
	prof := a.profiles[id]
	if prof == nil {
		prof = &Profile{Name: id.Payload()}
	}
	fp := Passport{
		Name:       prof.Name,
		Reputation: prof.Reputation,
		PostCount:  prof.PostCount,
		Origin:     a.board,
	}
	delete(a.profiles, id)
	delete(a.views, id)
	a.mu.Unlock()

	data, err := json.Marshal(fp)
	if err != nil {
		return transfer.Passport{}, err
	}
	return transfer.New(id, data), nil
}

func (a *App) Leave(id identity.Identity) {
	a.mu.Lock()
	delete(a.profiles, id)
	delete(a.views, id)
	a.mu.Unlock()
}

// thread returns the thread with the given id and its index, or nil.
// Callers hold the lock.
func (a *App) thread(id uint64) (*Thread, int) {
	for i, t := range a.threads {
		if t.ID == id {
			return t, i
		}
	}
	return nil, -1
}

func (a *App) changed() {
	if a.onChange != nil {
		a.onChange()
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

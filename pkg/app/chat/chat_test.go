package chat

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/rhi-zone/interconnect/pkg/identity"
	"github.com/rhi-zone/interconnect/pkg/session"
	"github.com/rhi-zone/interconnect/pkg/transfer"
)

func TestAdmitWithPassportKeepsName(t *testing.T) {
	a := New("lobby", nil, nil, nil)
	id := identity.Local("u1")
	data, _ := json.Marshal(Passport{Name: "alice", Origin: "annex"})
	pp := transfer.New(id, data)

	adm, err := a.Admit(id, &pp)
	if err != nil {
		t.Fatalf("admit: %v", err)
	}
	if adm.Fresh {
		t.Fatal("passported user reported fresh")
	}
	s, _ := a.Snapshot(id)
	if len(s.Users) != 1 || s.Users[0] != "alice" {
		t.Fatalf("users = %v, want [alice]", s.Users)
	}
	last := s.Messages[len(s.Messages)-1]
	if last.Name != "system" || last.Text != "alice arrived from annex" {
		t.Fatalf("arrival line = %+v", last)
	}
}

func TestAdmitUndecodablePassportIsFresh(t *testing.T) {
	a := New("lobby", nil, nil, nil)
	id := identity.Local("u1")
	pp := transfer.New(id, []byte("garbage"))

	adm, err := a.Admit(id, &pp)
	if err != nil {
		t.Fatalf("admit: %v", err)
	}
	if !adm.Fresh {
		t.Fatal("undecodable passport should admit fresh")
	}
}

func TestSnapshotShowsNewestFifty(t *testing.T) {
	notified := 0
	a := New("lobby", nil, func() { notified++ }, nil)
	id := identity.Local("u1")
	a.Admit(id, nil)

	for i := 0; i < 120; i++ {
		if err := a.Apply(id, Intent{Type: IntentSay, Text: fmt.Sprintf("msg %d", i)}); err != nil {
			t.Fatalf("apply %d: %v", i, err)
		}
	}
	s, _ := a.Snapshot(id)
	if len(s.Messages) != 50 {
		t.Fatalf("snapshot has %d messages, want 50", len(s.Messages))
	}
	if got := s.Messages[len(s.Messages)-1].Text; got != "msg 119" {
		t.Fatalf("newest message = %q", got)
	}
	if notified != 120 {
		t.Fatalf("onChange fired %d times, want 120", notified)
	}
}

func TestSayRejectsEmpty(t *testing.T) {
	a := New("lobby", nil, nil, nil)
	id := identity.Local("u1")
	a.Admit(id, nil)

	err := a.Apply(id, Intent{Type: IntentSay, Text: "   "})
	var rej *session.Reject
	if !errors.As(err, &rej) {
		t.Fatalf("err = %v, want *session.Reject", err)
	}
}

func TestDepartMintsPassport(t *testing.T) {
	a := New("lobby", []string{"annex"}, nil, nil)
	id := identity.Local("u1")
	a.Admit(id, nil)
	a.Apply(id, Intent{Type: IntentSetName, Name: "alice"})

	pp, err := a.Depart(id, "annex")
	if err != nil {
		t.Fatalf("depart: %v", err)
	}
	var cp Passport
	if err := json.Unmarshal(pp.Data, &cp); err != nil {
		t.Fatalf("unmarshal passport: %v", err)
	}
	if cp.Name != "alice" || cp.Origin != "lobby" {
		t.Fatalf("passport = %+v", cp)
	}
	s, _ := a.Snapshot(id)
	if len(s.Users) != 0 {
		t.Fatalf("departed user still listed: %v", s.Users)
	}
}

func TestDepartUnknownDestination(t *testing.T) {
	a := New("lobby", []string{"annex"}, nil, nil)
	id := identity.Local("u1")
	a.Admit(id, nil)

	_, err := a.Depart(id, "nowhere")
	var rej *session.Reject
	if !errors.As(err, &rej) {
		t.Fatalf("err = %v, want *session.Reject", err)
	}
	s, _ := a.Snapshot(id)
	if len(s.Users) != 1 {
		t.Fatal("rejected depart removed the user")
	}
}

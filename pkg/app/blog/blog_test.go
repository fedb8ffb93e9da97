package blog

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/rhi-zone/interconnect/pkg/identity"
	"github.com/rhi-zone/interconnect/pkg/session"
	"github.com/rhi-zone/interconnect/pkg/transfer"
)

func TestTimelineShowsNewestTwenty(t *testing.T) {
	a := New("main", nil, nil, nil)
	id := identity.Local("alice")
	a.Admit(id, nil)

	for i := 0; i < 30; i++ {
		if err := a.Apply(id, Intent{Type: IntentPost, Text: fmt.Sprintf("post %d", i)}); err != nil {
			t.Fatalf("post %d: %v", i, err)
		}
	}
	s, _ := a.Snapshot(id)
	if len(s.Timeline) != 20 {
		t.Fatalf("timeline has %d posts, want 20", len(s.Timeline))
	}
	if s.Timeline[0].Text != "post 29" {
		t.Fatalf("newest post = %q", s.Timeline[0].Text)
	}
}

func TestFollowFiltersTimeline(t *testing.T) {
	a := New("main", nil, nil, nil)
	alice, bob, carol := identity.Local("alice"), identity.Local("bob"), identity.Local("carol")
	for _, id := range []identity.Identity{alice, bob, carol} {
		a.Admit(id, nil)
	}
	a.Apply(bob, Intent{Type: IntentPost, Text: "from bob"})
	a.Apply(carol, Intent{Type: IntentPost, Text: "from carol"})

	// Following nobody shows the whole zone feed.
	s, _ := a.Snapshot(alice)
	if len(s.Timeline) != 2 {
		t.Fatalf("unfiltered timeline has %d posts, want 2", len(s.Timeline))
	}

	if err := a.Apply(alice, Intent{Type: IntentFollow, Target: bob.String()}); err != nil {
		t.Fatalf("follow: %v", err)
	}
	s, _ = a.Snapshot(alice)
	if len(s.Timeline) != 1 || s.Timeline[0].Text != "from bob" {
		t.Fatalf("filtered timeline = %+v", s.Timeline)
	}

	a.Apply(alice, Intent{Type: IntentUnfollow, Target: bob.String()})
	s, _ = a.Snapshot(alice)
	if len(s.Timeline) != 2 {
		t.Fatal("unfollow did not restore the zone feed")
	}
}

func TestFollowRejectsBadTarget(t *testing.T) {
	a := New("main", nil, nil, nil)
	id := identity.Local("alice")
	a.Admit(id, nil)

	err := a.Apply(id, Intent{Type: IntentFollow, Target: "no-separator"})
	var rej *session.Reject
	if !errors.As(err, &rej) {
		t.Fatalf("err = %v, want *session.Reject", err)
	}
}

func TestPassportCarriesFollowing(t *testing.T) {
	a := New("main", []string{"mirror"}, nil, nil)
	id := identity.Local("alice")
	a.Admit(id, nil)
	a.Apply(id, Intent{Type: IntentSetProfile, DisplayName: "Alice", Bio: "hi"})
	a.Apply(id, Intent{Type: IntentFollow, Target: "local:bob"})

	pp, err := a.Depart(id, "mirror")
	if err != nil {
		t.Fatalf("depart: %v", err)
	}
	var bp Passport
	if err := json.Unmarshal(pp.Data, &bp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if bp.DisplayName != "Alice" || bp.Origin != "main" {
		t.Fatalf("passport = %+v", bp)
	}
	if len(bp.Following) != 1 || bp.Following[0] != "local:bob" {
		t.Fatalf("following = %v", bp.Following)
	}

	b := New("mirror", nil, nil, nil)
	adm, _ := b.Admit(id, &pp)
	if adm.Fresh || len(adm.Rejections) != 0 {
		t.Fatalf("re-admission = %+v", adm)
	}
	s, _ := b.Snapshot(id)
	if len(s.Profile.Following) != 1 || s.Profile.Following[0] != identity.Local("bob") {
		t.Fatalf("restored following = %v", s.Profile.Following)
	}
}

func TestUnparseableFollowReportedOnImport(t *testing.T) {
	a := New("main", nil, nil, nil)
	id := identity.Local("alice")
	data, _ := json.Marshal(Passport{
		DisplayName: "Alice",
		Following:   []string{"local:bob", "broken"},
		Origin:      "elsewhere",
	})
	pp := transfer.New(id, data)

	adm, err := a.Admit(id, &pp)
	if err != nil {
		t.Fatalf("admit: %v", err)
	}
	if len(adm.Rejections) != 1 {
		t.Fatalf("rejections = %+v, want the broken target", adm.Rejections)
	}
	s, _ := a.Snapshot(id)
	if len(s.Profile.Following) != 1 {
		t.Fatalf("following = %v", s.Profile.Following)
	}
}

package auth

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/alfredjeanlab/datatable/internal/model"
	"github.com/alfredjeanlab/datatable/internal/store/memory"
)

func TestAuthenticate_Disabled(t *testing.T) {
	a := NewAuthenticator("", "")
	if a.Enabled() {
		t.Fatal("expected auth to be disabled")
	}
	p, err := a.Authenticate("", "")
	if err != nil || p.ID != Anonymous {
		t.Fatalf("got %+v, %v", p, err)
	}
	p, _ = a.Authenticate("", " alice ")
	if p.ID != "alice" {
		t.Fatalf("got %q", p.ID)
	}
}

func TestAuthenticate_StaticToken(t *testing.T) {
	a := NewAuthenticator("s3cret", "")
	for _, tc := range []struct {
		name      string
		header    string
		principal string
		wantID    string
		wantErr   bool
	}{
		{"Valid", "Bearer s3cret", "alice", "alice", false},
		{"MissingHeader", "", "alice", "", true},
		{"WrongScheme", "Basic s3cret", "alice", "", true},
		{"WrongToken", "Bearer nope", "alice", "", true},
		{"MissingPrincipal", "Bearer s3cret", "", "", true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			p, err := a.Authenticate(tc.header, tc.principal)
			if tc.wantErr {
				if !errors.Is(err, ErrUnauthenticated) {
					t.Fatalf("expected ErrUnauthenticated, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if p.ID != tc.wantID {
				t.Fatalf("ID = %q, want %q", p.ID, tc.wantID)
			}
		})
	}
}

func TestAuthenticate_JWT(t *testing.T) {
	a := NewAuthenticator("ignored", "signing-key")

	tok, err := IssueToken("signing-key", "alice", []string{"datatable:viewuser"}, time.Hour)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	p, err := a.Authenticate("Bearer "+tok, "mallory")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if p.ID != "alice" || len(p.Capabilities) != 1 {
		t.Fatalf("got %+v; the principal header must not override the token subject", p)
	}

	expired, _ := IssueToken("signing-key", "alice", nil, -time.Minute)
	otherKey, _ := IssueToken("other-key", "alice", nil, time.Hour)
	noSubject, _ := IssueToken("signing-key", "", nil, time.Hour)
	none, _ := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "alice"},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)

	for name, tok := range map[string]string{
		"Expired": expired, "OtherKey": otherKey, "NoSubject": noSubject, "AlgNone": none, "Garbage": "x.y.z",
	} {
		if _, err := a.Authenticate("Bearer "+tok, ""); !errors.Is(err, ErrUnauthenticated) {
			t.Errorf("%s: expected ErrUnauthenticated, got %v", name, err)
		}
	}
}

func TestPrincipalContext(t *testing.T) {
	if _, ok := FromContext(context.Background()); ok {
		t.Fatal("expected no principal")
	}
	ctx := WithPrincipal(context.Background(), Principal{ID: "alice"})
	p, ok := FromContext(ctx)
	if !ok || p.ID != "alice" {
		t.Fatalf("got %+v, %v", p, ok)
	}
}

func TestChecker_Require(t *testing.T) {
	st := memory.New()
	ctx := context.Background()
	grants, _ := json.Marshal([]string{"datatable:viewuser@user:7", " datatable:export "})
	if err := st.SetConfig(ctx, &model.Config{Key: CapabilityKey("bob"), Value: grants}); err != nil {
		t.Fatal(err)
	}
	admin, _ := json.Marshal([]string{"*"})
	if err := st.SetConfig(ctx, &model.Config{Key: CapabilityKey("root"), Value: admin}); err != nil {
		t.Fatal(err)
	}
	c := NewChecker(st, []string{"datatable:view"})

	for _, tc := range []struct {
		principal Principal
		cap       string
		level     string
		id        int64
		ok        bool
	}{
		{Principal{ID: "alice"}, "datatable:view", "course", 101, true},
		{Principal{ID: "alice"}, "datatable:viewuser", "user", 7, false},
		{Principal{ID: "alice", Capabilities: []string{"datatable:viewuser"}}, "datatable:viewuser", "user", 9, true},
		{Principal{ID: "bob"}, "datatable:viewuser", "user", 7, true},
		{Principal{ID: "bob"}, "datatable:viewuser", "user", 8, false},
		{Principal{ID: "bob"}, "datatable:export", "system", 0, true},
		{Principal{ID: "root"}, "datatable:anything", "class", 3, true},
	} {
		err := c.Require(ctx, tc.principal, tc.cap, tc.level, tc.id)
		if tc.ok && err != nil {
			t.Errorf("%s %s@%s:%d: unexpected error %v", tc.principal.ID, tc.cap, tc.level, tc.id, err)
		}
		if !tc.ok && !errors.Is(err, ErrForbidden) {
			t.Errorf("%s %s@%s:%d: expected ErrForbidden, got %v", tc.principal.ID, tc.cap, tc.level, tc.id, err)
		}
	}
}

func TestChecker_CorruptGrants(t *testing.T) {
	st := memory.New()
	ctx := context.Background()
	if err := st.SetConfig(ctx, &model.Config{Key: CapabilityKey("eve"), Value: json.RawMessage(`"all"`)}); err != nil {
		t.Fatal(err)
	}
	err := NewChecker(st, nil).Require(ctx, Principal{ID: "eve"}, "datatable:view", "system", 0)
	if err == nil || errors.Is(err, ErrForbidden) {
		t.Fatalf("expected a decode error, got %v", err)
	}
}

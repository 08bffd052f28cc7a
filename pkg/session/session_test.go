package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"meeting-todos-backend/pkg/database"
	"meeting-todos-backend/pkg/identity"
	"meeting-todos-backend/pkg/models"
	"meeting-todos-backend/pkg/store"
)

// brokenReads fails Get for the listed paths.
type brokenReads struct {
	*database.LocalDatabase
	fail map[database.Path]error
}

func (b *brokenReads) Get(ctx context.Context, doc database.Path) (*database.Snapshot, error) {
	if err, ok := b.fail[doc]; ok {
		return nil, err
	}
	return b.LocalDatabase.Get(ctx, doc)
}

type fakeProvider struct {
	signInErr  error
	signOutErr error
	signedOut  []string
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) SignIn(ctx context.Context, credential string) (*identity.Identity, error) {
	if p.signInErr != nil {
		return nil, p.signInErr
	}
	return &identity.Identity{Subject: credential, DisplayName: "Alice", IssuedAt: time.Now()}, nil
}

func (p *fakeProvider) Verify(ctx context.Context, bearer string) (*identity.Identity, error) {
	return p.SignIn(ctx, bearer)
}

func (p *fakeProvider) SignOut(ctx context.Context, id *identity.Identity) error {
	if p.signOutErr != nil {
		return p.signOutErr
	}
	p.signedOut = append(p.signedOut, id.Subject)
	return nil
}

type resolverFunc func(ctx context.Context, id *identity.Identity) (*models.UserData, error)

func (f resolverFunc) Resolve(ctx context.Context, id *identity.Identity) (*models.UserData, error) {
	return f(ctx, id)
}

func profileOf(ctx context.Context, id *identity.Identity) (*models.UserData, error) {
	return &models.UserData{ID: id.Subject, DisplayName: id.DisplayName, Organisations: []string{}}, nil
}

func TestManager(t *testing.T) {
	ctx := context.Background()

	t.Run("sign in resolves the profile", func(t *testing.T) {
		m := NewManager(&fakeProvider{}, resolverFunc(profileOf), nil)
		var states []State
		unsubscribe := m.Subscribe(func(s Session) { states = append(states, s.State) })
		defer unsubscribe()

		if m.Current().State != Unauthenticated || m.Current().UserID() != "" {
			t.Fatalf("unexpected initial session %+v", m.Current())
		}
		s, err := m.SignIn(ctx, "alice")
		if err != nil {
			t.Fatalf("SignIn failed: %v", err)
		}
		if s.State != Authenticated || s.UserID() != "alice" {
			t.Errorf("unexpected session %+v", s)
		}
		if len(states) != 2 || states[0] != Resolving || states[1] != Authenticated {
			t.Errorf("got transitions %v", states)
		}
	})

	t.Run("profile failure enters the error state", func(t *testing.T) {
		failing := resolverFunc(func(ctx context.Context, id *identity.Identity) (*models.UserData, error) {
			return nil, errors.New("permission denied")
		})
		m := NewManager(&fakeProvider{}, failing, nil)
		s, err := m.IdentityChanged(ctx, &identity.Identity{Subject: "alice"})
		if err == nil {
			t.Fatalf("expected an error")
		}
		if s.State != Error || s.Error != MessageLoadFailed || s.UserID() != "" {
			t.Errorf("unexpected session %+v", s)
		}
		if m.Current().State != Error {
			t.Errorf("error state should persist, got %s", m.Current().State)
		}
	})

	t.Run("sign in failure stays unauthenticated", func(t *testing.T) {
		m := NewManager(&fakeProvider{signInErr: errors.New("popup closed")}, resolverFunc(profileOf), nil)
		s, err := m.SignIn(ctx, "alice")
		if err == nil || s.State != Unauthenticated || s.Error != MessageSignInFailed {
			t.Errorf("got %+v, %v", s, err)
		}
	})

	t.Run("sign out clears the profile", func(t *testing.T) {
		provider := &fakeProvider{}
		m := NewManager(provider, resolverFunc(profileOf), nil)
		m.SignIn(ctx, "alice")

		s, err := m.SignOut(ctx)
		if err != nil {
			t.Fatalf("SignOut failed: %v", err)
		}
		if s.State != Unauthenticated || s.Profile != nil {
			t.Errorf("unexpected session %+v", s)
		}
		if len(provider.signedOut) != 1 || provider.signedOut[0] != "alice" {
			t.Errorf("provider sign-out not called: %v", provider.signedOut)
		}
	})

	t.Run("sign out failure keeps the profile", func(t *testing.T) {
		provider := &fakeProvider{}
		m := NewManager(provider, resolverFunc(profileOf), nil)
		m.SignIn(ctx, "alice")
		provider.signOutErr = errors.New("network down")

		s, err := m.SignOut(ctx)
		if err == nil {
			t.Fatalf("expected an error")
		}
		if s.State != Authenticated || s.Profile == nil || s.Error != MessageSignOutFailed {
			t.Errorf("unexpected session %+v", s)
		}
		if m.Current().UserID() != "alice" {
			t.Errorf("profile lost after failed sign-out")
		}
	})

	t.Run("nil identity signs out", func(t *testing.T) {
		m := NewManager(&fakeProvider{}, resolverFunc(profileOf), nil)
		m.SignIn(ctx, "alice")
		s, _ := m.IdentityChanged(ctx, nil)
		if s.State != Unauthenticated || m.Current().Profile != nil {
			t.Errorf("unexpected session %+v", s)
		}
	})
}

func TestResolver(t *testing.T) {
	ctx := context.Background()

	t.Run("failed organisation is omitted", func(t *testing.T) {
		db := &brokenReads{LocalDatabase: database.NewMemoryDatabase(), fail: map[database.Path]error{}}
		s := store.New(db, nil)

		orgA, _ := s.Organisations.Create(ctx, "A")
		orgB, _ := s.Organisations.Create(ctx, "B")
		s.Users.Bootstrap(ctx, "alice", "alice@example.com", "Alice")
		s.Users.AddOrganisation(ctx, "alice", orgA)
		s.Users.AddOrganisation(ctx, "alice", orgB)
		s.Users.AddOrganisation(ctx, "alice", "deleted-org")
		db.fail[store.OrganisationDoc(orgB)] = errors.New("permission denied")

		r := NewResolver(s, true, nil)
		profile, err := r.Resolve(ctx, &identity.Identity{Subject: "alice"})
		if err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}
		if len(profile.Organisations) != 3 {
			t.Errorf("membership list changed: %v", profile.Organisations)
		}
		if len(profile.OrganisationsData) != 1 || profile.OrganisationsData[0].ID != orgA {
			t.Errorf("got organisationsData %+v want only %s", profile.OrganisationsData, orgA)
		}
	})

	t.Run("new user gets a profile and default organisation", func(t *testing.T) {
		s := store.New(database.NewMemoryDatabase(), nil)
		r := NewResolver(s, true, nil)

		profile, err := r.Resolve(ctx, &identity.Identity{Subject: "bo", Email: "bo@example.com", IssuedAt: time.Now()})
		if err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}
		if len(profile.OrganisationsData) != 1 || profile.OrganisationsData[0].Name != "bo's Organisation" {
			t.Errorf("unexpected organisations %+v", profile.OrganisationsData)
		}

		stored, _ := s.Users.Get(ctx, "bo")
		if stored == nil || len(stored.Organisations) != 1 {
			t.Errorf("default organisation not persisted: %+v", stored)
		}

		again, err := r.Resolve(ctx, &identity.Identity{Subject: "bo"})
		if err != nil {
			t.Fatal(err)
		}
		if len(again.Organisations) != 1 {
			t.Errorf("second resolution created another organisation: %v", again.Organisations)
		}
	})

	t.Run("bootstrap organisation disabled", func(t *testing.T) {
		s := store.New(database.NewMemoryDatabase(), nil)
		r := NewResolver(s, false, nil)
		profile, err := r.Resolve(ctx, &identity.Identity{Subject: "cy"})
		if err != nil {
			t.Fatal(err)
		}
		if len(profile.Organisations) != 0 || len(profile.OrganisationsData) != 0 {
			t.Errorf("unexpected organisations %+v", profile)
		}
	})

	t.Run("profile read failure is returned", func(t *testing.T) {
		db := &brokenReads{LocalDatabase: database.NewMemoryDatabase(), fail: map[database.Path]error{
			store.UserDoc("dee"): errors.New("unavailable"),
		}}
		r := NewResolver(store.New(db, nil), true, nil)
		_, err := r.Resolve(ctx, &identity.Identity{Subject: "dee"})
		var storeErr *store.StoreError
		if !errors.As(err, &storeErr) {
			t.Errorf("got %v want StoreError", err)
		}
	})
}

func TestDefaultOrganisationName(t *testing.T) {
	tests := []struct {
		profile models.UserData
		want    string
	}{
		{models.UserData{DisplayName: "Alice"}, "Alice's Organisation"},
		{models.UserData{Email: "bo@example.com"}, "bo's Organisation"},
		{models.UserData{}, "My Organisation"},
	}
	for _, tt := range tests {
		if got := DefaultOrganisationName(&tt.profile); got != tt.want {
			t.Errorf("got %q want %q", got, tt.want)
		}
	}
}

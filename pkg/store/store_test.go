package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"meeting-todos-backend/pkg/database"
	"meeting-todos-backend/pkg/models"
)

type testScope string

func (s testScope) UserID() string { return string(s) }

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestStore() (*Store, *database.LocalDatabase, *clock) {
	db := database.NewMemoryDatabase()
	s := New(db, nil)
	c := &clock{t: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	s.Todos.now = c.now
	s.Meetings.now = c.now
	s.Users.now = c.now
	s.Organisations.now = c.now
	return s, db, c
}

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }

func TestTodos(t *testing.T) {
	ctx := context.Background()
	alice := testScope("alice")

	t.Run("create assigns increasing orders", func(t *testing.T) {
		s, _, c := newTestStore()
		var ids []string
		for _, title := range []string{"first", "second", "third"} {
			id, err := s.Todos.Create(ctx, alice, models.NewTodo{Title: title, OrganisationID: "org1"})
			if err != nil {
				t.Fatalf("Create failed: %v", err)
			}
			ids = append(ids, id)
			c.advance(time.Second)
		}

		todos, err := s.Todos.List(ctx, alice)
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(todos) != 3 {
			t.Fatalf("got %d todos want 3", len(todos))
		}
		for i, todo := range todos {
			if todo.ID != ids[i] || todo.Order != int64(i+1) {
				t.Errorf("todos[%d] = %s order %d", i, todo.ID, todo.Order)
			}
			if todo.CreatedBy != "alice" || todo.Priority != models.PriorityMedium || todo.Completed {
				t.Errorf("unexpected defaults: %+v", todo)
			}
			if !todo.CreatedAt.Equal(todo.UpdatedAt) {
				t.Errorf("createdAt and updatedAt should match on create")
			}
		}
	})

	t.Run("list sorts regardless of stored order", func(t *testing.T) {
		s, db, _ := newTestStore()
		coll := TodosOf("alice")
		for id, order := range map[string]interface{}{"c": int64(3), "a": int64(1), "b": int64(2), "legacy": nil} {
			fields := database.Document{"title": id, "completed": false, "order": order}
			if err := db.Set(ctx, coll.Doc(id), fields, false); err != nil {
				t.Fatal(err)
			}
		}

		todos, err := s.Todos.List(ctx, alice)
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		want := []string{"legacy", "a", "b", "c"}
		for i, id := range want {
			if todos[i].ID != id {
				t.Errorf("todos[%d] got %s want %s", i, todos[i].ID, id)
			}
		}
	})

	t.Run("due date round trip", func(t *testing.T) {
		s, _, _ := newTestStore()
		due := models.NewDate(2025, time.March, 1)
		id, err := s.Todos.Create(ctx, alice, models.NewTodo{Title: "file taxes", DueDate: &due})
		if err != nil {
			t.Fatal(err)
		}
		todo, err := s.Todos.Get(ctx, alice, id)
		if err != nil {
			t.Fatal(err)
		}
		if todo.DueDate == nil || *todo.DueDate != due {
			t.Errorf("got %v want %v", todo.DueDate, due)
		}
	})

	t.Run("legacy timestamp due date reads as UTC day", func(t *testing.T) {
		s, db, _ := newTestStore()
		at := time.Date(2025, 3, 1, 23, 30, 0, 0, time.UTC)
		if err := db.Set(ctx, TodosOf("alice").Doc("old"), database.Document{"title": "x", "dueDate": at}, false); err != nil {
			t.Fatal(err)
		}
		todo, err := s.Todos.Get(ctx, alice, "old")
		if err != nil {
			t.Fatal(err)
		}
		if todo.DueDate == nil || todo.DueDate.String() != "2025-03-01" {
			t.Errorf("got %v want 2025-03-01", todo.DueDate)
		}
	})

	t.Run("update merges and refreshes updatedAt", func(t *testing.T) {
		s, _, c := newTestStore()
		id, _ := s.Todos.Create(ctx, alice, models.NewTodo{Title: "draft", Description: "keep me"})
		before, _ := s.Todos.Get(ctx, alice, id)

		c.advance(time.Hour)
		if err := s.Todos.Update(ctx, alice, id, models.TodoPatch{Title: strPtr("final")}); err != nil {
			t.Fatalf("Update failed: %v", err)
		}
		after, _ := s.Todos.Get(ctx, alice, id)
		if after.Title != "final" || after.Description != "keep me" {
			t.Errorf("fields not merged: %+v", after)
		}
		if !after.UpdatedAt.After(before.UpdatedAt) || !after.CreatedAt.Equal(before.CreatedAt) {
			t.Errorf("timestamps wrong: before %+v after %+v", before, after)
		}
	})

	t.Run("toggling completion keeps order", func(t *testing.T) {
		s, _, _ := newTestStore()
		s.Todos.Create(ctx, alice, models.NewTodo{Title: "one"})
		id, _ := s.Todos.Create(ctx, alice, models.NewTodo{Title: "two"})

		for _, done := range []bool{true, false, true} {
			if err := s.Todos.Update(ctx, alice, id, models.TodoPatch{Completed: boolPtr(done)}); err != nil {
				t.Fatal(err)
			}
			todo, _ := s.Todos.Get(ctx, alice, id)
			if todo.Order != 2 {
				t.Errorf("completed=%v changed order to %d", done, todo.Order)
			}
		}
	})

	t.Run("clear due date", func(t *testing.T) {
		s, _, _ := newTestStore()
		due := models.NewDate(2025, time.April, 2)
		id, _ := s.Todos.Create(ctx, alice, models.NewTodo{Title: "x", DueDate: &due})
		if err := s.Todos.Update(ctx, alice, id, models.TodoPatch{ClearDueDate: true}); err != nil {
			t.Fatal(err)
		}
		todo, _ := s.Todos.Get(ctx, alice, id)
		if todo.DueDate != nil {
			t.Errorf("due date not cleared: %v", todo.DueDate)
		}
	})

	t.Run("update missing todo", func(t *testing.T) {
		s, _, _ := newTestStore()
		err := s.Todos.Update(ctx, alice, "nope", models.TodoPatch{Title: strPtr("x")})
		var storeErr *StoreError
		if !errors.As(err, &storeErr) || !errors.Is(err, database.ErrNotFound) {
			t.Errorf("got %v want StoreError wrapping ErrNotFound", err)
		}
	})

	t.Run("delete missing todo is a no-op", func(t *testing.T) {
		s, _, _ := newTestStore()
		if err := s.Todos.Delete(ctx, alice, "nope"); err != nil {
			t.Errorf("got %v want nil", err)
		}
	})

	t.Run("todos are partitioned per user", func(t *testing.T) {
		s, _, _ := newTestStore()
		s.Todos.Create(ctx, alice, models.NewTodo{Title: "mine"})
		todos, err := s.Todos.List(ctx, testScope("bob"))
		if err != nil {
			t.Fatal(err)
		}
		if len(todos) != 0 {
			t.Errorf("bob sees %d todos", len(todos))
		}
	})

	t.Run("no session", func(t *testing.T) {
		s, _, _ := newTestStore()
		if _, err := s.Todos.List(ctx, nil); !errors.Is(err, ErrNoSession) {
			t.Errorf("got %v want ErrNoSession", err)
		}
		if _, err := s.Todos.Create(ctx, testScope(""), models.NewTodo{Title: "x"}); !errors.Is(err, ErrNoSession) {
			t.Errorf("got %v want ErrNoSession", err)
		}
	})

	t.Run("reorder", func(t *testing.T) {
		s, _, _ := newTestStore()
		a, _ := s.Todos.Create(ctx, alice, models.NewTodo{Title: "a"})
		b, _ := s.Todos.Create(ctx, alice, models.NewTodo{Title: "b"})

		if err := s.Todos.Reorder(ctx, alice, []models.OrderUpdate{{ID: a, Order: 2}, {ID: b, Order: 1}}); err != nil {
			t.Fatalf("Reorder failed: %v", err)
		}
		todos, _ := s.Todos.List(ctx, alice)
		if todos[0].ID != b || todos[1].ID != a {
			t.Errorf("got %s,%s want %s,%s", todos[0].ID, todos[1].ID, b, a)
		}

		err := s.Todos.Reorder(ctx, alice, []models.OrderUpdate{{ID: a, Order: 1}, {ID: "gone", Order: 2}})
		if !errors.Is(err, database.ErrNotFound) {
			t.Errorf("got %v want ErrNotFound", err)
		}
		todos, _ = s.Todos.List(ctx, alice)
		if todos[0].ID != b {
			t.Errorf("failed reorder was partially applied")
		}
	})
}

func TestMeetings(t *testing.T) {
	ctx := context.Background()
	alice := testScope("alice")

	t.Run("create parses text fields", func(t *testing.T) {
		s, _, _ := newTestStore()
		id, err := s.Meetings.Create(ctx, alice, models.NewMeetingNote{
			OrganisationID:  "org1",
			Title:           "Weekly sync",
			AttendeesText:   "Ann, Bo , ,Cy",
			ActionItemsText: "Send notes\n\n  Book room  \n",
		})
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		note, err := s.Meetings.Get(ctx, alice, id)
		if err != nil {
			t.Fatal(err)
		}
		if len(note.Attendees) != 3 || note.Attendees[1] != "Bo" {
			t.Errorf("got attendees %v", note.Attendees)
		}
		if len(note.ActionItems) != 2 || note.ActionItems[1].Text != "Book room" {
			t.Fatalf("got action items %+v", note.ActionItems)
		}
		for _, item := range note.ActionItems {
			if item.ID == "" || item.Completed || item.Assignee != "" || item.CreatedAt.IsZero() {
				t.Errorf("unexpected action item defaults: %+v", item)
			}
		}
		if !note.Date.Equal(note.CreatedAt) {
			t.Errorf("date should default to creation time")
		}
	})

	t.Run("list is descending by date", func(t *testing.T) {
		s, _, _ := newTestStore()
		for _, day := range []int{3, 10, 1} {
			date := time.Date(2025, 2, day, 14, 0, 0, 0, time.UTC)
			if _, err := s.Meetings.Create(ctx, alice, models.NewMeetingNote{Title: "m", Date: &date}); err != nil {
				t.Fatal(err)
			}
		}
		notes, err := s.Meetings.List(ctx, alice)
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		want := []int{10, 3, 1}
		for i, day := range want {
			if notes[i].Date.Day() != day {
				t.Errorf("notes[%d] is day %d want %d", i, notes[i].Date.Day(), day)
			}
		}
	})

	t.Run("update replaces action items and keeps their createdAt", func(t *testing.T) {
		s, _, c := newTestStore()
		id, _ := s.Meetings.Create(ctx, alice, models.NewMeetingNote{Title: "m", ActionItemsText: "one"})
		before, _ := s.Meetings.Get(ctx, alice, id)
		kept := before.ActionItems[0]

		c.advance(time.Hour)
		items := []models.ActionItemInput{{ID: kept.ID, Text: "one", Completed: true}, {Text: "two"}}
		if err := s.Meetings.Update(ctx, alice, id, models.MeetingPatch{ActionItems: &items, Notes: strPtr("done")}); err != nil {
			t.Fatalf("Update failed: %v", err)
		}

		after, _ := s.Meetings.Get(ctx, alice, id)
		if len(after.ActionItems) != 2 {
			t.Fatalf("got %d items want 2", len(after.ActionItems))
		}
		if !after.ActionItems[0].CreatedAt.Equal(kept.CreatedAt) || !after.ActionItems[0].Completed {
			t.Errorf("existing item not preserved: %+v", after.ActionItems[0])
		}
		if !after.ActionItems[1].CreatedAt.Equal(c.now()) {
			t.Errorf("new item createdAt %v want %v", after.ActionItems[1].CreatedAt, c.now())
		}
		if after.Notes != "done" || after.Title != "m" {
			t.Errorf("fields not merged: %+v", after)
		}
	})

	t.Run("delete missing meeting is a no-op", func(t *testing.T) {
		s, _, _ := newTestStore()
		if err := s.Meetings.Delete(ctx, alice, "nope"); err != nil {
			t.Errorf("got %v want nil", err)
		}
	})
}

func TestUsersAndOrganisations(t *testing.T) {
	ctx := context.Background()
	s, _, c := newTestStore()

	if user, err := s.Users.Get(ctx, "alice"); user != nil || err != nil {
		t.Fatalf("missing user should be empty, got %v %v", user, err)
	}

	user, err := s.Users.Bootstrap(ctx, "alice", "alice@example.com", "Alice")
	if err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}
	if len(user.Organisations) != 0 || !user.CreatedAt.Equal(user.LastLoginAt) {
		t.Errorf("unexpected new profile: %+v", user)
	}

	orgID, err := s.Organisations.Create(ctx, "Alice's Organisation")
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Users.AddOrganisation(ctx, "alice", orgID); err != nil {
		t.Fatal(err)
	}
	if err := s.Users.AddOrganisation(ctx, "alice", orgID); err != nil {
		t.Fatal(err)
	}

	c.advance(24 * time.Hour)
	user, err = s.Users.Bootstrap(ctx, "alice", "", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(user.Organisations) != 1 || user.Organisations[0] != orgID {
		t.Errorf("organisations changed: %v", user.Organisations)
	}
	if user.Email != "alice@example.com" || !user.LastLoginAt.After(user.CreatedAt) {
		t.Errorf("profile not refreshed correctly: %+v", user)
	}

	c.advance(time.Minute)
	if err := s.Organisations.Rename(ctx, orgID, "Acme"); err != nil {
		t.Fatal(err)
	}
	org, err := s.Organisations.Get(ctx, orgID)
	if err != nil || org == nil || org.Name != "Acme" || !org.UpdatedAt.After(org.CreatedAt) {
		t.Errorf("got %+v, %v", org, err)
	}

	if org, err := s.Organisations.Get(ctx, "missing"); org != nil || err != nil {
		t.Errorf("missing organisation should be empty, got %v %v", org, err)
	}
	if err := s.Users.AddOrganisation(ctx, "nobody", orgID); !errors.Is(err, database.ErrNotFound) {
		t.Errorf("got %v want ErrNotFound", err)
	}
}

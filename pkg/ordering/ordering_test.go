package ordering

import (
	"context"
	"errors"
	"testing"
	"time"

	"meeting-todos-backend/pkg/database"
	"meeting-todos-backend/pkg/models"
)

// recordingDatabase counts batch commits and can fail them.
type recordingDatabase struct {
	*database.LocalDatabase
	batches   [][]database.Write
	commitErr error
}

func (r *recordingDatabase) CommitBatch(ctx context.Context, writes []database.Write) error {
	r.batches = append(r.batches, writes)
	if r.commitErr != nil {
		return r.commitErr
	}
	return r.LocalDatabase.CommitBatch(ctx, writes)
}

var todoColl = database.Collection("users", "u1", "todos")

func orders(t *testing.T, db database.DatabaseInterface) map[string]int64 {
	t.Helper()
	snaps, err := db.Query(context.Background(), todoColl, database.Query{})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	out := make(map[string]int64, len(snaps))
	for _, s := range snaps {
		out[s.ID], _ = database.Int64Value(s.Data[FieldOrder])
	}
	return out
}

func TestNext(t *testing.T) {
	tests := []struct {
		name  string
		todos []models.Todo
		want  int64
	}{
		{"empty", nil, 1},
		{"only completed", []models.Todo{{Order: 9, Completed: true}}, 1},
		{"max of active", []models.Todo{{Order: 2}, {Order: 5}, {Order: 7, Completed: true}}, 6},
		{"legacy zero orders", []models.Todo{{Order: 0}, {Order: 0}}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Next(tt.todos); got != tt.want {
				t.Errorf("got %d want %d", got, tt.want)
			}
		})
	}
}

func TestAppend(t *testing.T) {
	ctx := context.Background()
	db := database.NewMemoryDatabase()
	assigner := NewAssigner(db)

	var ids []string
	for i := 1; i <= 3; i++ {
		id, order, err := assigner.Append(ctx, todoColl, database.Document{"title": "t", "order": int64(99)})
		if err != nil {
			t.Fatalf("Append failed: %v", err)
		}
		if order != int64(i) {
			t.Errorf("todo %d got order %d", i, order)
		}
		ids = append(ids, id)
	}

	t.Run("completed todos do not count", func(t *testing.T) {
		if err := db.Update(ctx, todoColl.Doc(ids[2]), database.Document{FieldCompleted: true}); err != nil {
			t.Fatal(err)
		}
		_, order, err := assigner.Append(ctx, todoColl, database.Document{"title": "t"})
		if err != nil {
			t.Fatal(err)
		}
		if order != 3 {
			t.Errorf("got order %d want 3", order)
		}
	})

	t.Run("toggling completion keeps order", func(t *testing.T) {
		before := orders(t, db)[ids[0]]
		if err := db.Update(ctx, todoColl.Doc(ids[0]), database.Document{FieldCompleted: true}); err != nil {
			t.Fatal(err)
		}
		if err := db.Update(ctx, todoColl.Doc(ids[0]), database.Document{FieldCompleted: false}); err != nil {
			t.Fatal(err)
		}
		if after := orders(t, db)[ids[0]]; after != before {
			t.Errorf("order changed from %d to %d", before, after)
		}
	})
}

func TestApply(t *testing.T) {
	ctx := context.Background()

	seed := func(t *testing.T) (*recordingDatabase, *Assigner, []string) {
		db := &recordingDatabase{LocalDatabase: database.NewMemoryDatabase()}
		assigner := NewAssigner(db)
		assigner.now = func() time.Time { return time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC) }
		var ids []string
		for i := 0; i < 4; i++ {
			id, _, err := assigner.Append(ctx, todoColl, database.Document{"title": "t"})
			if err != nil {
				t.Fatal(err)
			}
			ids = append(ids, id)
		}
		return db, assigner, ids
	}

	t.Run("single batch", func(t *testing.T) {
		db, assigner, ids := seed(t)
		reversed := []string{ids[3], ids[2], ids[1], ids[0]}
		if err := assigner.Apply(ctx, todoColl, Renumber(reversed)); err != nil {
			t.Fatalf("Apply failed: %v", err)
		}
		if len(db.batches) != 1 || len(db.batches[0]) != 4 {
			t.Fatalf("expected one batch of 4 writes, got %d batches", len(db.batches))
		}
		got := orders(t, db)
		for i, id := range reversed {
			if got[id] != int64(i+1) {
				t.Errorf("%s got order %d want %d", id, got[id], i+1)
			}
		}
		snap, _ := db.Get(ctx, todoColl.Doc(ids[0]))
		if at, ok := database.TimeValue(snap.Data[FieldUpdatedAt]); !ok || at.Hour() != 10 {
			t.Errorf("updatedAt not refreshed: %v", snap.Data[FieldUpdatedAt])
		}
	})

	t.Run("failure after some writes leaves old orders", func(t *testing.T) {
		for failAt := 0; failAt < 4; failAt++ {
			db, assigner, ids := seed(t)
			before := orders(t, db)

			updates := Renumber([]string{ids[3], ids[2], ids[1], ids[0]})
			updates[failAt].ID = "missing"
			err := assigner.Apply(ctx, todoColl, updates)
			if !errors.Is(err, database.ErrNotFound) {
				t.Fatalf("failAt=%d: got %v want ErrNotFound", failAt, err)
			}
			after := orders(t, db)
			for id, order := range before {
				if after[id] != order {
					t.Errorf("failAt=%d: %s changed from %d to %d", failAt, id, order, after[id])
				}
			}
		}
	})

	t.Run("store error propagates", func(t *testing.T) {
		db, assigner, ids := seed(t)
		db.commitErr = errors.New("quota exceeded")
		err := assigner.Apply(ctx, todoColl, Renumber(ids))
		if !errors.Is(err, db.commitErr) {
			t.Errorf("got %v want %v", err, db.commitErr)
		}
	})

	t.Run("invalid requests never reach the store", func(t *testing.T) {
		db, assigner, ids := seed(t)
		bad := [][]models.OrderUpdate{
			{{ID: "", Order: 1}},
			{{ID: ids[0], Order: 1}, {ID: ids[0], Order: 2}},
			{{ID: ids[0], Order: 0}},
		}
		for _, updates := range bad {
			if err := assigner.Apply(ctx, todoColl, updates); !errors.Is(err, ErrInvalidUpdate) {
				t.Errorf("got %v want ErrInvalidUpdate", err)
			}
		}
		if len(db.batches) != 0 {
			t.Errorf("expected no batches, got %d", len(db.batches))
		}
	})
}

func TestPartition(t *testing.T) {
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	in := []models.Todo{
		{ID: "c1", Completed: true, Order: 1, UpdatedAt: base},
		{ID: "a3", Order: 3, CreatedAt: base},
		{ID: "a1", Order: 1, CreatedAt: base},
		{ID: "c2", Completed: true, Order: 2, UpdatedAt: base.Add(time.Hour)},
		{ID: "a0", CreatedAt: base.Add(time.Minute)},
		{ID: "a0b", CreatedAt: base},
	}

	active, completed := Partition(in)

	wantActive := []string{"a0b", "a0", "a1", "a3"}
	if len(active) != len(wantActive) {
		t.Fatalf("got %d active want %d", len(active), len(wantActive))
	}
	for i, id := range wantActive {
		if active[i].ID != id {
			t.Errorf("active[%d] got %s want %s", i, active[i].ID, id)
		}
	}

	if len(completed) != 2 || completed[0].ID != "c2" || completed[1].ID != "c1" {
		t.Errorf("completed not sorted by updatedAt desc: %+v", completed)
	}
}

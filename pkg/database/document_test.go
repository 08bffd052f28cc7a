package database

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestPath(t *testing.T) {
	todos := Collection("users", "u1", "todos")
	doc := todos.Doc("t1")

	if doc.String() != "users/u1/todos/t1" {
		t.Errorf("got %q", doc)
	}
	if doc.ID() != "t1" {
		t.Errorf("got id %q want t1", doc.ID())
	}
	if doc.Parent() != todos {
		t.Errorf("got parent %q want %q", doc.Parent(), todos)
	}
	if !doc.IsDocument() || todos.IsDocument() {
		t.Errorf("document/collection parity wrong")
	}
	if got := Collection("users").Doc("u1").Collection("meetingNotes"); got != "users/u1/meetingNotes" {
		t.Errorf("got %q", got)
	}
	if err := Path("users//todos").validate(false); !errors.Is(err, ErrInvalidPath) {
		t.Errorf("empty segment accepted: %v", err)
	}
}

func TestValueDecoders(t *testing.T) {
	ts := time.Date(2025, 3, 1, 9, 30, 0, 123, time.UTC)

	tests := []struct {
		name string
		in   interface{}
		want int64
		ok   bool
	}{
		{"int64", int64(4), 4, true},
		{"float64", float64(7), 7, true},
		{"json.Number", json.Number("12"), 12, true},
		{"missing", nil, 0, false},
		{"string", "x", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Int64Value(tt.in)
			if got != tt.want || ok != tt.ok {
				t.Errorf("got (%d, %v) want (%d, %v)", got, ok, tt.want, tt.ok)
			}
		})
	}

	t.Run("time round trip through JSON layout", func(t *testing.T) {
		raw, err := marshalDocument(Document{"at": ts})
		if err != nil {
			t.Fatalf("marshal failed: %v", err)
		}
		doc, err := unmarshalDocument(raw)
		if err != nil {
			t.Fatalf("unmarshal failed: %v", err)
		}
		got, ok := TimeValue(doc["at"])
		if !ok || !got.Equal(ts) {
			t.Errorf("got %v want %v", got, ts)
		}
	})

	t.Run("firestore export timestamp", func(t *testing.T) {
		got, ok := TimeValue(map[string]interface{}{"seconds": float64(ts.Unix())})
		if !ok || got.Unix() != ts.Unix() {
			t.Errorf("got %v want %v", got, ts)
		}
	})

	t.Run("nested action items are normalized", func(t *testing.T) {
		raw, _ := marshalDocument(Document{"actionItems": []interface{}{
			map[string]interface{}{"id": "a1", "createdAt": ts},
		}})
		doc, _ := unmarshalDocument(raw)
		items := MapSliceValue(doc["actionItems"])
		if len(items) != 1 {
			t.Fatalf("got %d items want 1", len(items))
		}
		if s := StringValue(items[0]["createdAt"]); s != ts.Format(TimeLayout) {
			t.Errorf("got %q want %q", s, ts.Format(TimeLayout))
		}
	})
}

func TestCompareValues(t *testing.T) {
	if compareValues(nil, json.Number("0")) >= 0 {
		t.Errorf("nil should sort before numbers")
	}
	if compareValues(json.Number("2"), int64(10)) >= 0 {
		t.Errorf("2 should sort before 10")
	}
	if compareValues(false, true) >= 0 {
		t.Errorf("false should sort before true")
	}
	if !valuesEqual(json.Number("3"), int64(3)) {
		t.Errorf("json.Number 3 should equal int64 3")
	}
	if valuesEqual("false", false) {
		t.Errorf("string should not equal bool")
	}
}

type flakyDatabase struct {
	*LocalDatabase
	healthErr error
	closed    bool
}

func (f *flakyDatabase) HealthCheck(ctx context.Context) error { return f.healthErr }
func (f *flakyDatabase) Close() error                          { f.closed = true; return nil }

func TestPool(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	var opened []*flakyDatabase
	pool := NewPool(zap.NewNop())
	pool.now = func() time.Time { return now }
	pool.open = func(ctx context.Context, cfg DatabaseConfig, logger *zap.Logger) (DatabaseInterface, error) {
		db := &flakyDatabase{LocalDatabase: NewMemoryDatabase()}
		opened = append(opened, db)
		return db, nil
	}
	cfg := DatabaseConfig{Driver: DriverLocal}

	first, err := pool.Get(ctx, cfg)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	second, _ := pool.Get(ctx, cfg)
	if first != second || len(opened) != 1 {
		t.Fatalf("expected connection reuse, opened %d", len(opened))
	}

	t.Run("unhealthy connection is recreated", func(t *testing.T) {
		now = now.Add(2 * healthCheckAfter)
		opened[0].healthErr = errors.New("broken pipe")

		third, err := pool.Get(ctx, cfg)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if third == first || len(opened) != 2 {
			t.Errorf("expected a new connection")
		}
		if !opened[0].closed {
			t.Errorf("unhealthy connection was not closed")
		}
	})

	t.Run("idle connections are cleaned up", func(t *testing.T) {
		now = now.Add(idleExpiry + time.Minute)
		if closed := pool.CleanupIdleConnections(); closed != 1 {
			t.Errorf("got %d closed want 1", closed)
		}
		if stats := pool.Stats(); stats["total_connections"] != 0 {
			t.Errorf("got %v connections want 0", stats["total_connections"])
		}
	})
}

func TestResolveDriver(t *testing.T) {
	t.Setenv("VERCEL_ENV", "")
	t.Setenv("VERCEL_URL", "")
	t.Setenv("AWS_LAMBDA_FUNCTION_NAME", "")

	tests := []struct {
		name string
		cfg  DatabaseConfig
		want string
	}{
		{"explicit", DatabaseConfig{Driver: "MySQL"}, DriverMySQL},
		{"postgres dsn", DatabaseConfig{PostgresDSN: "postgres://x"}, DriverPostgres},
		{"arango url", DatabaseConfig{ArangoURL: "http://localhost:8529"}, DriverArango},
		{"firestore project", DatabaseConfig{FirestoreProjectID: "demo"}, DriverFirestore},
		{"supabase", DatabaseConfig{SupabaseURL: "x.supabase.co", SupabaseKey: "k"}, DriverSupabase},
		{"fallback", DatabaseConfig{}, DriverLocal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.ResolveDriver(); got != tt.want {
				t.Errorf("got %q want %q", got, tt.want)
			}
		})
	}
}

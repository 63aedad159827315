package mongo

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rbaliyan/smsbox/store"
	"github.com/rbaliyan/smsbox/store/storetest"
	"go.mongodb.org/mongo-driver/v2/mongo"
	mongoopts "go.mongodb.org/mongo-driver/v2/mongo/options"
)

// connectClient returns a client for MONGO_URI or skips the test.
func connectClient(t *testing.T) *mongo.Client {
	t.Helper()
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		t.Skip("MONGO_URI not set")
	}
	client, err := mongo.Connect(mongoopts.Client().ApplyURI(uri))
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })
	return client
}

func TestConformance(t *testing.T) {
	client := connectClient(t)
	dbName := fmt.Sprintf("smsbox_test_%d", time.Now().UnixNano())
	t.Cleanup(func() { _ = client.Database(dbName).Drop(context.Background()) })

	var n atomic.Int64
	storetest.Run(t, func(t *testing.T) store.Store {
		i := n.Add(1)
		s := New(client,
			WithDatabase(dbName),
			WithCollection(fmt.Sprintf("messages_%d", i)),
			WithThreadCollection(fmt.Sprintf("threads_%d", i)),
		)
		if err := s.Connect(context.Background()); err != nil {
			t.Fatalf("connect store: %v", err)
		}
		t.Cleanup(func() { _ = s.Close(context.Background()) })
		return s
	})
}

func TestBuildFilter(t *testing.T) {
	tests := []struct {
		name    string
		filters []store.Filter
		wantAnd bool
	}{
		{"empty", nil, false},
		{"single", []store.Filter{store.InFolder(store.FolderInbox)}, false},
		{"combined", []store.Filter{store.AddressIs("1"), store.ProtocolIs(2)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := buildFilter(tt.filters)
			if err != nil {
				t.Fatalf("build: %v", err)
			}
			_, hasAnd := f["$and"]
			if hasAnd != tt.wantAnd {
				t.Fatalf("expected $and=%v, got %v", tt.wantAnd, f)
			}
		})
	}
}

func TestInvalidObjectIDNeverMatches(t *testing.T) {
	f, err := buildFilter([]store.Filter{store.IDIs("not-hex")})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if fmt.Sprint(f["_id"]) != fmt.Sprint(objectID("not-hex")) {
		t.Fatalf("expected nil object id, got %v", f["_id"])
	}
}

func TestNotConnected(t *testing.T) {
	s := New(nil)
	if _, err := s.Count(context.Background(), nil); err != store.ErrNotConnected {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
	if err := s.Connect(context.Background()); err == nil {
		t.Fatalf("expected error connecting without a client")
	}
}

package directory

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestMemory(t *testing.T) {
	testDirectory(t, NewMemory())
}

// TestEtcd runs against a real etcd when IPC_TEST_ETCD_ENDPOINTS is set.
func TestEtcd(t *testing.T) {
	endpoints := os.Getenv("IPC_TEST_ETCD_ENDPOINTS")
	if endpoints == "" {
		t.Skip("IPC_TEST_ETCD_ENDPOINTS not set")
	}
	d, err := NewEtcd(strings.Split(endpoints, ","), 2*time.Second)
	if err != nil {
		t.Fatalf("Unable to connect to etcd: %+v", err)
	}
	defer d.Close()
	d.prefix = "/ipc-lite-test/" + time.Now().Format("150405.000") + "/"
	testDirectory(t, d)
}

func testDirectory(t *testing.T, d Directory) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	entries, err := d.List(ctx)
	if err != nil || len(entries) != 0 {
		t.Fatalf("should be empty, got %v, %v", entries, err)
	}

	b := Entry{NodeID: "b", Methods: []string{"echo"}, Codec: "gob"}
	a := Entry{NodeID: "a", Methods: []string{"add", "boom"}, Codec: "gob"}
	for _, e := range []Entry{b, a} {
		if err := d.Announce(ctx, e); err != nil {
			t.Fatalf("Announce(%v) failed: %+v", e.NodeID, err)
		}
	}

	ignoreTime := cmpopts.IgnoreFields(Entry{}, "UpdatedAt")
	got, ok, err := d.Lookup(ctx, "a")
	if err != nil || !ok {
		t.Fatalf("Lookup(a) = %v, %v", ok, err)
	}
	if diff := cmp.Diff(a, got, ignoreTime); diff != "" {
		t.Errorf("Lookup (-want, +got):\n%s", diff)
	}
	if got.UpdatedAt.IsZero() {
		t.Error("UpdatedAt should be set")
	}

	// announcing again replaces the entry
	a.Methods = append(a.Methods, "slow")
	if err := d.Announce(ctx, a); err != nil {
		t.Fatalf("Announce failed: %+v", err)
	}
	entries, err = d.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %+v", err)
	}
	if diff := cmp.Diff([]Entry{a, b}, entries, ignoreTime); diff != "" {
		t.Errorf("List (-want, +got):\n%s", diff)
	}

	if err := d.Withdraw(ctx, "a"); err != nil {
		t.Fatalf("Withdraw failed: %+v", err)
	}
	if err := d.Withdraw(ctx, "nobody"); err != nil {
		t.Errorf("Withdraw of a missing entry failed: %+v", err)
	}
	if _, ok, _ := d.Lookup(ctx, "a"); ok {
		t.Error("a should be gone")
	}
	_ = d.Withdraw(ctx, "b")
}

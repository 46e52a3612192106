package directory

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"
	clientv3 "go.etcd.io/etcd/client/v3"
)

const (
	// DefaultEtcdPrefix is the key prefix of every entry.
	DefaultEtcdPrefix = "/ipc-lite/nodes/"
	// DefaultEtcdTTL is the lease TTL in seconds, entries of crashed nodes
	// disappear after it.
	DefaultEtcdTTL = 10
)

// Etcd stores entries in etcd under a lease per node that is kept alive
// while the node is connected:
//
//	key:   <prefix><nodeID>
//	value: JSON encoded Entry
type Etcd struct {
	client *clientv3.Client
	prefix string
	ttl    int64

	lock   sync.Mutex
	leases map[string]clientv3.LeaseID
	stops  map[string]context.CancelFunc
}

// NewEtcd connects to the given etcd endpoints.
func NewEtcd(endpoints []string, dialTimeout time.Duration) (*Etcd, error) {
	c, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: dialTimeout,
	})
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &Etcd{
		client: c,
		prefix: DefaultEtcdPrefix,
		ttl:    DefaultEtcdTTL,
		leases: make(map[string]clientv3.LeaseID),
		stops:  make(map[string]context.CancelFunc),
	}, nil
}

func (d *Etcd) key(nodeID string) string {
	return d.prefix + nodeID
}

// Announce writes the entry attached to the node's lease, granting and
// keeping alive a new lease on the first announcement.
func (d *Etcd) Announce(ctx context.Context, e Entry) error {
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = time.Now()
	}
	val, err := json.Marshal(e)
	if err != nil {
		return errors.WithStack(err)
	}

	d.lock.Lock()
	defer d.lock.Unlock()
	lease, ok := d.leases[e.NodeID]
	if !ok {
		grant, err := d.client.Grant(ctx, d.ttl)
		if err != nil {
			return errors.WithStack(err)
		}
		lease = grant.ID
		// the keep alive outlives ctx, it stops on Withdraw or Close
		kctx, cancel := context.WithCancel(context.Background())
		ch, err := d.client.KeepAlive(kctx, lease)
		if err != nil {
			cancel()
			return errors.WithStack(err)
		}
		go func() {
			for range ch {
			}
		}()
		d.leases[e.NodeID] = lease
		d.stops[e.NodeID] = cancel
	}
	_, err = d.client.Put(ctx, d.key(e.NodeID), string(val), clientv3.WithLease(lease))
	return errors.WithStack(err)
}

func (d *Etcd) Withdraw(ctx context.Context, nodeID string) error {
	d.lock.Lock()
	lease, ok := d.leases[nodeID]
	if stop := d.stops[nodeID]; stop != nil {
		stop()
	}
	delete(d.leases, nodeID)
	delete(d.stops, nodeID)
	d.lock.Unlock()

	if _, err := d.client.Delete(ctx, d.key(nodeID)); err != nil {
		return errors.WithStack(err)
	}
	if ok {
		if _, err := d.client.Revoke(ctx, lease); err != nil {
			return errors.WithStack(err)
		}
	}
	return nil
}

func (d *Etcd) Lookup(ctx context.Context, nodeID string) (Entry, bool, error) {
	resp, err := d.client.Get(ctx, d.key(nodeID))
	if err != nil {
		return Entry{}, false, errors.WithStack(err)
	}
	if len(resp.Kvs) == 0 {
		return Entry{}, false, nil
	}
	var e Entry
	if err := json.Unmarshal(resp.Kvs[0].Value, &e); err != nil {
		return Entry{}, false, errors.Wrapf(err, "malformed entry for %v", nodeID)
	}
	return e, true, nil
}

func (d *Etcd) List(ctx context.Context) ([]Entry, error) {
	resp, err := d.client.Get(ctx, d.prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, errors.WithStack(err)
	}
	entries := make([]Entry, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var e Entry
		if err := json.Unmarshal(kv.Value, &e); err != nil {
			// skip malformed entries
			continue
		}
		entries = append(entries, e)
	}
	sortEntries(entries)
	return entries, nil
}

// Close stops every keep alive and the client, the entries expire with
// their leases.
func (d *Etcd) Close() error {
	d.lock.Lock()
	for _, stop := range d.stops {
		stop()
	}
	d.leases = make(map[string]clientv3.LeaseID)
	d.stops = make(map[string]context.CancelFunc)
	d.lock.Unlock()
	return errors.WithStack(d.client.Close())
}

package session

import (
	"context"
	"sync"
	"time"

	"github.com/cory-johannsen/impostor/internal/game/player"
)

// Delivery is one planned envelope for one recipient.
type Delivery struct {
	RecipientID string
	Conn        player.Conn
	Data        []byte
}

// Failure records a delivery that could not be completed.
type Failure struct {
	RecipientID string
	ConnID      string
	Conn        player.Conn
	Err         error
}

// Outbox is an ordered delivery plan built under the state lock and flushed
// after it is released. The zero value is an empty plan.
type Outbox struct {
	deliveries []Delivery
}

// Add appends one delivery.
//
// Precondition: conn must be non-nil.
func (o *Outbox) Add(recipientID string, conn player.Conn, data []byte) {
	o.deliveries = append(o.deliveries, Delivery{RecipientID: recipientID, Conn: conn, Data: data})
}

// Merge appends every delivery of other after those already planned.
func (o *Outbox) Merge(other Outbox) {
	o.deliveries = append(o.deliveries, other.deliveries...)
}

// Len returns the number of planned deliveries.
func (o Outbox) Len() int { return len(o.deliveries) }

// Deliveries returns the planned deliveries in order.
func (o Outbox) Deliveries() []Delivery { return o.deliveries }

// Flush sends every planned delivery. Connections are served concurrently;
// deliveries to the same connection keep their planned order. Each send is
// bounded by timeout. After the first failure on a connection its remaining
// deliveries are skipped.
//
// Postcondition: Returns one Failure per failed connection, in plan order.
func (o Outbox) Flush(ctx context.Context, timeout time.Duration) []Failure {
	if len(o.deliveries) == 0 {
		return nil
	}

	var order []string
	groups := make(map[string][]Delivery)
	for _, dl := range o.deliveries {
		id := dl.Conn.ID()
		if _, ok := groups[id]; !ok {
			order = append(order, id)
		}
		groups[id] = append(groups[id], dl)
	}

	results := make([]*Failure, len(order))
	var wg sync.WaitGroup
	for i, id := range order {
		wg.Add(1)
		go func(i int, batch []Delivery) {
			defer wg.Done()
			for _, dl := range batch {
				if err := send(ctx, dl, timeout); err != nil {
					results[i] = &Failure{RecipientID: dl.RecipientID, ConnID: dl.Conn.ID(), Conn: dl.Conn, Err: err}
					return
				}
			}
		}(i, groups[id])
	}
	wg.Wait()

	var failures []Failure
	for _, f := range results {
		if f != nil {
			failures = append(failures, *f)
		}
	}
	return failures
}

func send(ctx context.Context, dl Delivery, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return dl.Conn.Send(ctx, dl.Data)
}

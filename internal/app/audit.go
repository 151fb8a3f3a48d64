package app

import (
	"context"
	"time"

	"courier/internal/delivery"
	"courier/internal/eventbus"
	"courier/internal/storage"
	logx "courier/pkg/logx"
)

// runAudit writes delivery events to the store until ctx ends or the event
// channel closes. A failed write is logged and the event is skipped.
func runAudit(ctx context.Context, events <-chan eventbus.Event, store storage.Store, log logx.Logger) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-events:
			if !ok {
				return nil
			}
			res, ok := e.Data.(delivery.Result)
			if !ok {
				continue
			}
			wctx, cancel := context.WithTimeout(ctx, 2*time.Second)
			err := store.AppendDelivery(wctx, auditEntry(e.Time, res))
			cancel()
			if err != nil {
				log.Warn("audit write failed", logx.String("delivery_id", res.ID), logx.Err(err))
			}
		}
	}
}

func auditEntry(at time.Time, res delivery.Result) storage.DeliveryEntry {
	e := storage.DeliveryEntry{
		ID:           res.ID,
		At:           at,
		OK:           res.OK,
		Transport:    res.Transport,
		Attempts:     len(res.Attempts),
		Failed:       attemptNames(res.Attempts),
		TookMS:       res.Took.Milliseconds(),
		PayloadBytes: len(res.Payload),
	}
	if res.Err != nil {
		e.Error = res.Err.Error()
	}
	return e
}

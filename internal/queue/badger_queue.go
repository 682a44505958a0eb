// Package queue provides the persistent priority queue backing the
// scheduler. Messages survive restarts in the shared badger store and are
// delivered priority lane first, enqueue order second.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/percipio/internal/interfaces"
	"github.com/ternarybob/percipio/internal/models"
)

// storedMessage wraps a queue message with delivery bookkeeping.
type storedMessage struct {
	ID           string              `json:"id"`
	Body         models.QueueMessage `json:"body"`
	EnqueuedAt   time.Time           `json:"enqueued_at"`
	VisibleAt    time.Time           `json:"visible_at"`
	ReceiveCount int                 `json:"receive_count"`
}

// BadgerQueue is a persistent priority queue over badger. Message bodies
// live under sched:<queue>:msg:<id>; a visibility index under
// sched:<queue>:index:<priority>:<visible-at>:<id> orders delivery by
// priority lane then readiness time. Claiming a message moves its index key
// past the visibility timeout, so a claim that never completes surfaces
// again on its own.
type BadgerQueue struct {
	db                *badgerdb.DB
	queueName         string
	visibilityTimeout time.Duration
	maxReceive        int
	logger            arbor.ILogger
}

// NewBadgerQueue creates a queue on the shared badger database. The database
// is owned by the storage manager; Stop does not close it.
func NewBadgerQueue(db *badgerdb.DB, queueName string, visibilityTimeout time.Duration, maxReceive int, logger arbor.ILogger) (interfaces.QueueManager, error) {
	if db == nil {
		return nil, fmt.Errorf("badger db is required")
	}
	if queueName == "" {
		return nil, fmt.Errorf("queue name is required")
	}
	if visibilityTimeout <= 0 {
		visibilityTimeout = 5*time.Minute + 30*time.Second
	}
	if maxReceive <= 0 {
		maxReceive = 4
	}

	return &BadgerQueue{
		db:                db,
		queueName:         queueName,
		visibilityTimeout: visibilityTimeout,
		maxReceive:        maxReceive,
		logger:            logger,
	}, nil
}

// Start logs the backlog carried over from the previous run. Claimed
// messages from a crashed process need no recovery step: their visibility
// window lapses and they deliver again.
func (q *BadgerQueue) Start() error {
	length, err := q.GetQueueLength(context.Background())
	if err != nil {
		return fmt.Errorf("failed to inspect queue on start: %w", err)
	}
	q.logger.Info().
		Str("queue", q.queueName).
		Int("pending", length).
		Msg("Queue started")
	return nil
}

func (q *BadgerQueue) Stop() error {
	q.logger.Debug().Str("queue", q.queueName).Msg("Queue stopped")
	return nil
}

// Enqueue admits a message for immediate delivery.
func (q *BadgerQueue) Enqueue(ctx context.Context, msg *models.QueueMessage) error {
	return q.enqueue(ctx, msg, 0)
}

// EnqueueWithDelay admits a message that becomes visible after the delay.
// Retries use this to back off before the next attempt.
func (q *BadgerQueue) EnqueueWithDelay(ctx context.Context, msg *models.QueueMessage, delay time.Duration) error {
	if delay < 0 {
		delay = 0
	}
	return q.enqueue(ctx, msg, delay)
}

func (q *BadgerQueue) enqueue(ctx context.Context, msg *models.QueueMessage, delay time.Duration) error {
	if err := ctx.Err(); err != nil {
		kind, _ := models.KindOf(err)
		return models.WrapKind(kind, err)
	}
	if msg == nil || msg.JobID == "" || msg.Type == "" {
		return models.Kindf(models.ErrBadInput, "queue message requires job_id and type")
	}
	if msg.Priority < models.PriorityCritical || msg.Priority > models.PriorityLow {
		msg.Priority = models.PriorityNormal
	}

	now := time.Now()
	stored := storedMessage{
		ID:         uuid.New().String(),
		Body:       *msg,
		EnqueuedAt: now,
		VisibleAt:  now.Add(delay),
	}

	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("failed to marshal queue message: %w", err)
	}

	err = q.db.Update(func(txn *badgerdb.Txn) error {
		if err := txn.Set(q.msgKey(stored.ID), data); err != nil {
			return err
		}
		return txn.Set(q.indexKey(msg.Priority, stored.VisibleAt, stored.ID), nil)
	})
	if err != nil {
		return models.WrapKind(models.ErrStoreUnavailable, fmt.Errorf("failed to enqueue message: %w", err))
	}

	q.logger.Debug().
		Str("queue", q.queueName).
		Str("job_id", msg.JobID).
		Str("type", msg.Type).
		Str("priority", msg.Priority.String()).
		Dur("delay", delay).
		Msg("Message enqueued")

	return nil
}

// Receive claims the next ready message, highest priority lane first. The
// returned delete function removes the message permanently; not calling it
// lets the message reappear after the visibility timeout. An empty queue
// returns models.ErrNoMessage.
func (q *BadgerQueue) Receive(ctx context.Context) (*models.QueueMessage, func() error, error) {
	if err := ctx.Err(); err != nil {
		kind, _ := models.KindOf(err)
		return nil, nil, models.WrapKind(kind, err)
	}

	var claimed storedMessage

	err := q.db.Update(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := q.indexPrefix()
		now := time.Now()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().KeyCopy(nil)
			_, visibleAt, id, err := q.parseIndexKey(key)
			if err != nil {
				continue
			}
			// Later lanes may still hold ready messages, so a future entry
			// skips rather than ends the scan
			if visibleAt.After(now) {
				continue
			}

			item, err := txn.Get(q.msgKey(id))
			if err != nil {
				if err == badgerdb.ErrKeyNotFound {
					// Orphaned index entry
					if derr := txn.Delete(key); derr != nil {
						return derr
					}
					continue
				}
				return err
			}

			var msg storedMessage
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &msg)
			}); err != nil {
				return err
			}

			if msg.ReceiveCount >= q.maxReceive {
				// Poison message: delivered too often without completing
				q.logger.Warn().
					Str("queue", q.queueName).
					Str("job_id", msg.Body.JobID).
					Int("receive_count", msg.ReceiveCount).
					Msg("Dropping poison message")
				if err := txn.Delete(key); err != nil {
					return err
				}
				if err := txn.Delete(q.msgKey(id)); err != nil {
					return err
				}
				continue
			}

			msg.ReceiveCount++
			msg.VisibleAt = now.Add(q.visibilityTimeout)

			data, err := json.Marshal(msg)
			if err != nil {
				return err
			}
			if err := txn.Set(q.msgKey(id), data); err != nil {
				return err
			}
			if err := txn.Delete(key); err != nil {
				return err
			}
			if err := txn.Set(q.indexKey(msg.Body.Priority, msg.VisibleAt, id), nil); err != nil {
				return err
			}

			claimed = msg
			return nil
		}

		return models.ErrNoMessage
	})
	if err != nil {
		return nil, nil, err
	}

	q.logger.Debug().
		Str("queue", q.queueName).
		Str("job_id", claimed.Body.JobID).
		Int("receive_count", claimed.ReceiveCount).
		Msg("Message claimed")

	id := claimed.ID
	deleteFn := func() error {
		return q.deleteMessage(id)
	}
	body := claimed.Body
	return &body, deleteFn, nil
}

func (q *BadgerQueue) deleteMessage(id string) error {
	return q.db.Update(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(q.msgKey(id))
		if err != nil {
			if err == badgerdb.ErrKeyNotFound {
				return nil
			}
			return err
		}

		var msg storedMessage
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &msg)
		}); err != nil {
			return err
		}

		if err := txn.Delete(q.indexKey(msg.Body.Priority, msg.VisibleAt, id)); err != nil && err != badgerdb.ErrKeyNotFound {
			return err
		}
		return txn.Delete(q.msgKey(id))
	})
}

// GetQueueLength counts all pending messages, including claimed and delayed
// ones.
func (q *BadgerQueue) GetQueueLength(ctx context.Context) (int, error) {
	count := 0
	err := q.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := q.indexPrefix()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count queue messages: %w", err)
	}
	return count, nil
}

// GetQueueStats breaks the backlog down by priority lane and readiness.
func (q *BadgerQueue) GetQueueStats(ctx context.Context) (map[string]interface{}, error) {
	total := 0
	ready := 0
	byPriority := map[string]int{}

	err := q.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := q.indexPrefix()
		now := time.Now()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			priority, visibleAt, _, err := q.parseIndexKey(it.Item().Key())
			if err != nil {
				continue
			}
			total++
			if !visibleAt.After(now) {
				ready++
			}
			byPriority[priority.String()]++
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read queue stats: %w", err)
	}

	return map[string]interface{}{
		"queue":       q.queueName,
		"total":       total,
		"ready":       ready,
		"in_flight":   total - ready,
		"by_priority": byPriority,
	}, nil
}

func (q *BadgerQueue) msgKey(id string) []byte {
	return []byte(fmt.Sprintf("sched:%s:msg:%s", q.queueName, id))
}

func (q *BadgerQueue) indexPrefix() []byte {
	return []byte(fmt.Sprintf("sched:%s:index:", q.queueName))
}

// indexKey builds the delivery-order key. The timestamp is zero-padded so
// byte order matches numeric order.
func (q *BadgerQueue) indexKey(priority models.JobPriority, visibleAt time.Time, id string) []byte {
	return []byte(fmt.Sprintf("sched:%s:index:%d:%020d:%s", q.queueName, priority, visibleAt.UnixNano(), id))
}

func (q *BadgerQueue) parseIndexKey(key []byte) (models.JobPriority, time.Time, string, error) {
	suffix := string(key[len(q.indexPrefix()):])
	parts := strings.SplitN(suffix, ":", 3)
	if len(parts) != 3 {
		return 0, time.Time{}, "", fmt.Errorf("malformed index key %q", key)
	}

	p, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, time.Time{}, "", fmt.Errorf("malformed priority in index key %q", key)
	}
	ts, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, time.Time{}, "", fmt.Errorf("malformed timestamp in index key %q", key)
	}

	return models.JobPriority(p), time.Unix(0, ts), parts[2], nil
}

package feed

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/scout/internal/db"
	"horse.fit/scout/internal/globaltime"
	payloadschema "horse.fit/scout/schema"
)

const (
	cursorName      = "change_stream"
	initialBackoff  = 1 * time.Second
	maxBackoff      = 30 * time.Second
	metricsInterval = 10 * time.Second
)

// Store is the persistence surface the consumer needs.
type Store interface {
	InsertChangeEvent(ctx context.Context, event *db.ChangeEvent) (bool, error)
	SaveStreamCursor(ctx context.Context, name, value string) error
	LoadStreamCursor(ctx context.Context, name string) (string, error)
}

type streamer interface {
	Stream(ctx context.Context, lastEventID string, handle func(RawEvent) error) error
}

type counters struct {
	received   int64
	accepted   int64
	inserted   int64
	reconnects int64
	lastLag    time.Duration
	lastFlush  time.Time
}

// Consumer runs the ingest loop: one stream connection at a time,
// exponential reconnect backoff, and a cursor that advances on every
// received event so restarts never re-read discarded ones.
type Consumer struct {
	client streamer
	store  Store
	filter Filter
	logger zerolog.Logger

	// cursor is the position of the last event received, filtered or
	// not. It outlives individual connections.
	cursor string
	stats  counters

	minBackoff time.Duration
	maxBackoff time.Duration
}

func NewConsumer(client *Client, store Store, filter Filter, logger zerolog.Logger) *Consumer {
	return &Consumer{
		client: client,
		store:  store,
		filter: filter,
		logger: logger,
	}
}

// SetCursor overrides the resume position before Run, skipping the
// stored cursor. Not safe to call once Run has started.
func (c *Consumer) SetCursor(value string) {
	c.cursor = value
}

// Run consumes the stream until ctx is cancelled. Connection failures
// are retried with doubling backoff from 1s capped at 30s; a received
// event resets the backoff.
func (c *Consumer) Run(ctx context.Context) error {
	if c.minBackoff <= 0 {
		c.minBackoff = initialBackoff
	}
	if c.maxBackoff <= 0 {
		c.maxBackoff = maxBackoff
	}
	if c.cursor == "" {
		stored, err := c.store.LoadStreamCursor(ctx, cursorName)
		if err != nil {
			return err
		}
		c.cursor = stored
	}
	if c.stats.lastFlush.IsZero() {
		c.stats.lastFlush = globaltime.Now()
	}

	backoff := c.minBackoff
	for {
		received := false
		err := c.client.Stream(ctx, c.cursor, func(event RawEvent) error {
			received = true
			return c.handle(ctx, event)
		})
		if ctx.Err() != nil {
			c.flush(context.WithoutCancel(ctx), true)
			return nil
		}
		if received {
			backoff = c.minBackoff
		}

		c.stats.reconnects++
		c.logger.Warn().
			Err(err).
			Dur("backoff", backoff).
			Msg("stream disconnected, reconnecting")

		select {
		case <-ctx.Done():
			c.flush(context.WithoutCancel(ctx), true)
			return nil
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, c.maxBackoff)
	}
}

func (c *Consumer) handle(ctx context.Context, raw RawEvent) error {
	c.stats.received++
	if raw.ID != "" {
		c.cursor = raw.ID
	}

	event, err := payloadschema.ValidateRecentChange([]byte(raw.Data))
	if err != nil {
		c.logger.Debug().Err(err).Msg("dropping malformed event")
		c.maybeFlush(ctx)
		return nil
	}

	if c.filter.Keep(event) {
		c.stats.accepted++
		if err := c.persist(ctx, event, []byte(raw.Data)); err != nil {
			return err
		}
	}
	c.maybeFlush(ctx)
	return nil
}

func (c *Consumer) persist(ctx context.Context, event *payloadschema.RecentChange, raw []byte) error {
	eventTime, err := event.EventTime()
	if err != nil {
		c.logger.Debug().Err(err).Str("event_id", event.Meta.ID).Msg("dropping event with bad timestamp")
		return nil
	}
	c.stats.lastLag = globaltime.Now().Sub(eventTime)

	row := db.ChangeEvent{
		EventID:    event.Meta.ID,
		Wiki:       event.Wiki,
		Namespace:  event.Namespace,
		Title:      event.Title,
		Comment:    event.Comment,
		EditorName: event.User,
		Bot:        event.Bot,
		Minor:      event.Minor,
		PageID:     event.PageID,
		EventTime:  eventTime.UTC(),
		RawPayload: json.RawMessage(raw),
	}
	if event.TitleURL != "" {
		url := event.TitleURL
		row.TitleURL = &url
	}
	if event.Revision != nil {
		from, to := event.Revision.Old, event.Revision.New
		row.RevOld = &from
		row.RevNew = &to
	}

	inserted, err := c.store.InsertChangeEvent(ctx, &row)
	if err != nil {
		return err
	}
	if inserted {
		c.stats.inserted++
	}
	return nil
}

func (c *Consumer) maybeFlush(ctx context.Context) {
	if globaltime.Now().Sub(c.stats.lastFlush) >= metricsInterval {
		c.flush(ctx, false)
	}
}

// flush logs throughput counters and persists the cursor. Counters
// reset each interval; reconnects accumulate for the process lifetime.
func (c *Consumer) flush(ctx context.Context, final bool) {
	elapsed := globaltime.Now().Sub(c.stats.lastFlush)
	rate := 0.0
	if elapsed > 0 {
		rate = float64(c.stats.received) / elapsed.Seconds()
	}
	c.logger.Info().
		Int64("received", c.stats.received).
		Int64("accepted", c.stats.accepted).
		Int64("inserted", c.stats.inserted).
		Int64("reconnects", c.stats.reconnects).
		Float64("events_per_sec", rate).
		Dur("lag", c.stats.lastLag).
		Bool("final", final).
		Msg("stream metrics")

	if c.cursor != "" {
		if err := c.store.SaveStreamCursor(ctx, cursorName, c.cursor); err != nil {
			c.logger.Error().Err(err).Msg("persist stream cursor")
		}
	}
	c.stats.received = 0
	c.stats.accepted = 0
	c.stats.inserted = 0
	c.stats.lastFlush = globaltime.Now()
}

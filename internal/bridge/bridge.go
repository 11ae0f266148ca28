// Package bridge relays audio between a telephony media stream and a
// realtime conversational engine for the lifetime of one call, and handles
// caller barge-in.
package bridge

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/lexiqai/realtime-bridge/internal/observability"
	"github.com/lexiqai/realtime-bridge/internal/transport"
)

// Conn is one side of the bridge
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteJSON(v any) error
	Open() bool
	Close() error
}

// Options configures a Bridge
type Options struct {
	LogEventTypes   []string
	ShowTimingMath  bool
	MaxPendingMarks int
	Logger          zerolog.Logger
	Metrics         *observability.Metrics
}

// Bridge joins one telephony stream to one engine session
type Bridge struct {
	telephony Conn
	engine    Conn
	session   *Session

	logTypes   map[string]struct{}
	showTiming bool
	logger     zerolog.Logger
	metrics    *observability.Metrics
}

// New creates a bridge over two open connections
func New(telephony, engine Conn, opts Options) *Bridge {
	logTypes := make(map[string]struct{}, len(opts.LogEventTypes))
	for _, t := range opts.LogEventTypes {
		logTypes[t] = struct{}{}
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = observability.NewCallMetrics("")
	}

	return &Bridge{
		telephony:  telephony,
		engine:     engine,
		session:    NewSession(opts.MaxPendingMarks),
		logTypes:   logTypes,
		showTiming: opts.ShowTimingMath,
		logger:     opts.Logger,
		metrics:    metrics,
	}
}

// Session returns the shared call state
func (b *Bridge) Session() *Session {
	return b.session
}

// Run relays in both directions until either side ends, then closes both
// connections. A clean hangup or stop event returns nil.
func (b *Bridge) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Closing the sockets is what unblocks the relay still reading
	stop := context.AfterFunc(ctx, b.closeAll)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return b.runInbound(gctx)
	})
	g.Go(func() error {
		defer cancel()
		return b.runOutbound(gctx)
	})

	err := g.Wait()
	b.closeAll()
	if err != nil {
		b.logger.Error().Err(err).Msg("Bridge terminated")
	}
	return err
}

func (b *Bridge) closeAll() {
	if b.engine.Open() {
		b.engine.Close()
	}
	if b.telephony.Open() {
		b.telephony.Close()
	}
}

// readErr turns a read failure into the relay's result. Closures, including
// those caused by the other relay ending, are a normal end of the call.
func readErr(ctx context.Context, side string, err error) error {
	if ctx.Err() != nil || transport.IsClosure(err) {
		return nil
	}
	return fmt.Errorf("%s read: %w", side, err)
}

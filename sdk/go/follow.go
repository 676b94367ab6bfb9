package track

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strconv"
	"time"

	"github.com/coder/websocket"

	"github.com/Ireoluwatomide/swift-track-relay/pkg/backoff"
)

var heartbeatMessage = []byte(`{"type":"heartbeat"}`)

// FollowOptions configures a follower session.
type FollowOptions struct {
	// SinceSeq resumes from a previously seen sequence number. Samples
	// with sequence numbers at or below it are not redelivered.
	SinceSeq uint64

	// MaxAttempts bounds consecutive failed reconnects before Follow
	// gives up. Zero means 5.
	MaxAttempts int

	// Backoff overrides the reconnect backoff schedule.
	Backoff *backoff.Calculator

	// HeartbeatInterval sets how often the session sends a heartbeat
	// frame so the relay keeps the connection out of the stale sweep.
	// Zero means 10 seconds; it must stay under the relay's stale
	// timeout.
	HeartbeatInterval time.Duration
}

// Follow streams frames for the delivery onto the returned channel. The
// replayed window arrives first, then live updates. On transport failure
// the session reconnects with backoff, resuming from the last seen
// sequence so no frame is delivered twice.
//
// The channel closes when ctx is done, the delivery reaches a terminal
// state, or reconnecting fails MaxAttempts times in a row.
func (c *Client) Follow(ctx context.Context, opts FollowOptions) <-chan Frame {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	if opts.Backoff == nil {
		opts.Backoff = backoff.NewCalculator()
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = 10 * time.Second
	}

	frames := make(chan Frame)
	go c.followLoop(ctx, opts, frames)
	return frames
}

func (c *Client) followLoop(ctx context.Context, opts FollowOptions, frames chan<- Frame) {
	defer close(frames)

	sinceSeq := opts.SinceSeq
	attempt := 0

	for {
		delivered, err := c.followOnce(ctx, opts, &sinceSeq, frames)
		if errors.Is(err, ErrTerminal) || ctx.Err() != nil {
			return
		}
		if delivered {
			attempt = 0
		}
		attempt++
		if attempt > opts.MaxAttempts {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(opts.Backoff.Duration(attempt)):
		}
	}
}

// followOnce runs one socket session. It reports whether any frame was
// delivered, which resets the reconnect budget.
func (c *Client) followOnce(ctx context.Context, opts FollowOptions, sinceSeq *uint64, frames chan<- Frame) (bool, error) {
	params := url.Values{}
	if *sinceSeq > 0 {
		params.Set("since_seq", strconv.FormatUint(*sinceSeq, 10))
	}

	sock, _, err := websocket.Dial(ctx, c.socketURL("/ws/deliveries/"+c.deliveryID+"/follow", params), nil)
	if err != nil {
		return false, err
	}
	defer sock.Close(websocket.StatusNormalClosure, "")

	// Heartbeats keep the relay's liveness sweep from marking a quiet
	// follower stale. A write failure surfaces on the read side too, so
	// the writer just stops.
	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	defer stopHeartbeat()
	go func() {
		ticker := time.NewTicker(opts.HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-hbCtx.Done():
				return
			case <-ticker.C:
				if err := sock.Write(hbCtx, websocket.MessageText, heartbeatMessage); err != nil {
					return
				}
			}
		}
	}()

	delivered := false
	for {
		_, data, err := sock.Read(ctx)
		if err != nil {
			return delivered, closeError(err)
		}

		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			continue
		}
		if frame.Kind == FramePosition && frame.Sample != nil {
			*sinceSeq = frame.Sample.Sequence
		}

		select {
		case frames <- frame:
			delivered = true
		case <-ctx.Done():
			return delivered, ctx.Err()
		}
	}
}

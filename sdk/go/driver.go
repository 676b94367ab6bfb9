package track

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/coder/websocket"
)

// Relay close codes on driver and follower sockets.
const (
	closeCodeSuperseded websocket.StatusCode = 4001
	closeCodeTerminal   websocket.StatusCode = 4002
	closeCodeTimeout    websocket.StatusCode = 4003
)

// DriverSession is an open publishing socket for one delivery. A delivery
// has at most one authoritative driver session; opening a new one closes
// the previous session with ErrSuperseded.
type DriverSession struct {
	sock *websocket.Conn
}

type reportFrame struct {
	Type      string   `json:"type"`
	Lat       float64  `json:"lat,omitempty"`
	Lng       float64  `json:"lng,omitempty"`
	Timestamp string   `json:"timestamp,omitempty"`
	Accuracy  *float64 `json:"accuracy,omitempty"`
	Speed     *float64 `json:"speed,omitempty"`
}

type driverResponse struct {
	Type     string `json:"type"`
	Sequence uint64 `json:"sequence"`
	Error    string `json:"error"`
}

// Drive opens the driver socket. The client's token must carry the driver
// role for the delivery.
func (c *Client) Drive(ctx context.Context) (*DriverSession, error) {
	sock, _, err := websocket.Dial(ctx, c.socketURL("/ws/deliveries/"+c.deliveryID+"/driver", url.Values{}), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open driver socket: %w", err)
	}
	return &DriverSession{sock: sock}, nil
}

// Report publishes one position and waits for the relay's acknowledgement.
// The returned sequence is the server-assigned position in the delivery's
// stream. A rejected sample returns an error without closing the session;
// ErrSuperseded and ErrTerminal mean the session is gone.
func (s *DriverSession) Report(ctx context.Context, p Position) (uint64, error) {
	frame := reportFrame{
		Type:     "position",
		Lat:      p.Lat,
		Lng:      p.Lng,
		Accuracy: p.Accuracy,
		Speed:    p.Speed,
	}
	ts := p.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	frame.Timestamp = ts.Format(time.RFC3339Nano)

	if err := s.write(ctx, frame); err != nil {
		return 0, err
	}

	resp, err := s.read(ctx)
	if err != nil {
		return 0, err
	}
	if resp.Type == "error" {
		return 0, fmt.Errorf("report rejected: %s", resp.Error)
	}
	return resp.Sequence, nil
}

// Heartbeat signals liveness without a position. Use it when the device
// has no fresh fix; it keeps the session out of the stale state.
func (s *DriverSession) Heartbeat(ctx context.Context) error {
	return s.write(ctx, reportFrame{Type: "heartbeat"})
}

// Close closes the session.
func (s *DriverSession) Close() error {
	return s.sock.Close(websocket.StatusNormalClosure, "")
}

func (s *DriverSession) write(ctx context.Context, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := s.sock.Write(ctx, websocket.MessageText, payload); err != nil {
		return closeError(err)
	}
	return nil
}

func (s *DriverSession) read(ctx context.Context) (driverResponse, error) {
	_, data, err := s.sock.Read(ctx)
	if err != nil {
		return driverResponse{}, closeError(err)
	}
	var resp driverResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return driverResponse{}, fmt.Errorf("malformed relay response: %w", err)
	}
	return resp, nil
}

// closeError maps relay close codes to sentinel errors.
func closeError(err error) error {
	switch websocket.CloseStatus(err) {
	case closeCodeSuperseded:
		return ErrSuperseded
	case closeCodeTerminal:
		return ErrTerminal
	case closeCodeTimeout, websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return ErrClosed
	}
	return err
}

package bridge

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/banshee-data/kiosk/internal/httputil"
	"github.com/banshee-data/kiosk/internal/monitoring"
)

// UI frame types.
const (
	FrameSendSerialData = "sendSerialData"
	FrameSerialData     = "serialData"
	FrameSerialError    = "serialError"
)

const (
	clientQueueSize = 64
	maxFrameBytes   = 64 * 1024
	writeTimeout    = 5 * time.Second
)

var errBadFrame = errors.New("malformed frame")

// inboundFrame is the only shape the UI may send.
type inboundFrame struct {
	Type string  `json:"type"`
	Data *string `json:"data"`
}

// outboundFrame carries one relayed event to the UI.
type outboundFrame struct {
	Type  string `json:"type"`
	Data  string `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

func parseInbound(data []byte) (string, error) {
	var f inboundFrame
	if err := httputil.DecodeStrict(data, &f); err != nil {
		return "", fmt.Errorf("%w: %v", errBadFrame, err)
	}
	if f.Type != FrameSendSerialData {
		return "", fmt.Errorf("%w: unsupported type %q", errBadFrame, f.Type)
	}
	if f.Data == nil {
		return "", fmt.Errorf("%w: missing data", errBadFrame)
	}
	return *f.Data, nil
}

// ServeWS upgrades the request to a WebSocket carrying serial traffic for
// one UI client. Events are queued per client; a client that falls behind
// loses frames instead of slowing the relay.
func (b *Bridge) ServeWS(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: httputil.LocalOrigins,
	})
	if err != nil {
		monitoring.Logf("bridge: websocket accept failed: %v", err)
		return
	}
	ws.SetReadLimit(maxFrameBytes)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	out := make(chan outboundFrame, clientQueueSize)
	enqueue := func(f outboundFrame) {
		select {
		case out <- f:
		default:
			monitoring.Logf("bridge: client queue full, dropping %s frame", f.Type)
		}
	}
	dataSub := b.OnSerialData(func(m DataMessage) { enqueue(outboundFrame{Type: FrameSerialData, Data: m.Data}) })
	defer dataSub.Cancel()
	errSub := b.OnSerialError(func(m ErrorMessage) { enqueue(outboundFrame{Type: FrameSerialError, Error: m.Error}) })
	defer errSub.Cancel()

	go func() {
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case f := <-out:
				wctx, wcancel := context.WithTimeout(ctx, writeTimeout)
				err := wsjson.Write(wctx, ws, f)
				wcancel()
				if err != nil {
					return
				}
			}
		}
	}()

	limiter := b.newLimiter()
	monitoring.Logf("bridge: UI client connected from %s", r.RemoteAddr)
	for {
		typ, data, err := ws.Read(ctx)
		if err != nil {
			break
		}
		if typ != websocket.MessageText {
			monitoring.Logf("bridge: rejecting binary frame")
			continue
		}
		payload, err := parseInbound(data)
		if err != nil {
			monitoring.Logf("bridge: rejecting frame: %v", err)
			continue
		}
		if !limiter.Allow() {
			monitoring.Logf("bridge: send rate exceeded by %s, dropping frame", r.RemoteAddr)
			continue
		}
		if err := b.SendSerialData(payload); err != nil {
			monitoring.Logf("bridge: send failed: %v", err)
		}
	}

	ws.Close(websocket.StatusNormalClosure, "")
	monitoring.Logf("bridge: UI client disconnected from %s", r.RemoteAddr)
}

// sendRequest is the body of POST /api/serial/send.
type sendRequest struct {
	Data *string `json:"data"`
}

// ServeSend handles the HTTP form of sendSerialData. It answers 202 once the
// data is queued for the device. Only local JSON requests are accepted.
func (b *Bridge) ServeSend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	if !httputil.GuardLocal(w, r, true) {
		monitoring.Logf("bridge: rejected send from origin %q", r.Header.Get("Origin"))
		return
	}
	body, err := httputil.ReadBody(r, maxFrameBytes)
	if err != nil {
		httputil.WriteJSONError(w, http.StatusRequestEntityTooLarge, err.Error())
		return
	}

	var req sendRequest
	if err := httputil.DecodeStrict(body, &req); err != nil {
		httputil.WriteJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Data == nil {
		httputil.WriteJSONError(w, http.StatusBadRequest, "missing data")
		return
	}
	if !b.httpLimit.Allow() {
		httputil.WriteJSONError(w, http.StatusTooManyRequests, "send rate exceeded")
		return
	}
	if err := b.SendSerialData(*req.Data); err != nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

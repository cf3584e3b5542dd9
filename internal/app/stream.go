package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"

	"github.com/coder/websocket"

	"github.com/MrWong99/phonescan/internal/observe"
	"github.com/MrWong99/phonescan/internal/scan"
	"github.com/MrWong99/phonescan/pkg/provider/ocr"
)

// maxMessageBytes bounds a single websocket message. Camera frames are the
// largest messages.
const maxMessageBytes = 8 << 20

// StreamHandler serves the /v1/scan websocket. Each connection owns one scan
// session for its whole lifetime.
type StreamHandler struct {
	sessions   *SessionManager
	recognizer ocr.Provider
	accept     *websocket.AcceptOptions

	progressEvery atomic.Int64
}

// NewStreamHandler creates a StreamHandler. recognizer may be nil, in which
// case binary frames are refused and clients must send recognized text.
func NewStreamHandler(sessions *SessionManager, recognizer ocr.Provider, progressEvery int) *StreamHandler {
	h := &StreamHandler{
		sessions:   sessions,
		recognizer: recognizer,
		accept:     &websocket.AcceptOptions{},
	}
	h.SetProgressEvery(progressEvery)
	return h
}

// SetProgressEvery changes how often progress messages are sent. Zero
// disables them.
func (h *StreamHandler) SetProgressEvery(n int) {
	h.progressEvery.Store(int64(max(n, 0)))
}

// ServeHTTP upgrades the request and runs the session until the client
// disconnects. When the session cap is reached the request is refused with
// 503 before the upgrade.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	info, err := h.sessions.Start(ctx, "stream")
	if errors.Is(err, ErrTooManySessions) {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	id := info.SessionID
	ctx = observe.WithSessionID(ctx, id)
	log := observe.Logger(ctx)
	defer func() { _ = h.sessions.Stop(context.WithoutCancel(ctx), id) }()

	conn, err := websocket.Accept(w, r, h.accept)
	if err != nil {
		log.Warn("websocket accept failed", "err", err)
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(maxMessageBytes)

	c := &streamConn{h: h, conn: conn, id: id}
	if err := c.sendSession(ctx); err != nil {
		return
	}

	err = c.loop(ctx)
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		conn.Close(websocket.StatusNormalClosure, "")
	default:
		if ctx.Err() == nil {
			log.Debug("stream closed", "err", err)
		}
	}
}

type streamConn struct {
	h    *StreamHandler
	conn *websocket.Conn
	id   string
}

func (c *streamConn) loop(ctx context.Context) error {
	for {
		typ, data, err := c.conn.Read(ctx)
		if err != nil {
			return err
		}
		if typ == websocket.MessageBinary {
			err = c.handleImage(ctx, data)
		} else {
			err = c.handleText(ctx, data)
		}
		if err != nil {
			return err
		}
	}
}

// handleText dispatches a JSON client message. Malformed messages are
// answered with an error message; only write failures end the loop.
func (c *streamConn) handleText(ctx context.Context, data []byte) error {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return c.sendError(ctx, fmt.Sprintf("invalid message: %v", err))
	}

	switch msg.Type {
	case MsgFrame:
		return c.processFrame(ctx, msg.Texts)
	case MsgReject:
		if msg.Number == "" {
			return c.sendError(ctx, "reject needs a number")
		}
		if err := c.h.sessions.Reject(ctx, c.id, msg.Number); err != nil {
			return c.sendError(ctx, err.Error())
		}
		return c.sendSession(ctx)
	case MsgResume:
		if err := c.h.sessions.Resume(c.id); err != nil {
			return c.sendError(ctx, err.Error())
		}
		return c.sendSession(ctx)
	default:
		return c.sendError(ctx, fmt.Sprintf("unknown message type %q", msg.Type))
	}
}

func (c *streamConn) handleImage(ctx context.Context, data []byte) error {
	if c.h.recognizer == nil {
		return c.sendError(ctx, "no recognizer configured; send recognized text frames")
	}
	img := ocr.Image{Data: data, ContentType: http.DetectContentType(data)}
	texts, err := c.h.recognizer.Recognize(ctx, img)
	if err != nil {
		observe.Logger(ctx).Warn("recognize failed", "err", err)
		return c.sendError(ctx, "recognize: "+err.Error())
	}
	return c.processFrame(ctx, texts)
}

func (c *streamConn) processFrame(ctx context.Context, texts []string) error {
	report, err := c.h.sessions.ProcessFrame(ctx, c.id, texts)
	if errors.Is(err, scan.ErrFinished) {
		return c.sendError(ctx, "session finished; send reject or resume to keep scanning")
	}
	if err != nil {
		return err
	}

	if report.Result != nil {
		return c.send(ctx, ServerMessage{
			Type:      MsgResult,
			SessionID: c.id,
			Frame:     report.Frame,
			Finished:  report.Finished,
			Result:    resultMessage(*report.Result),
		})
	}

	every := c.h.progressEvery.Load()
	if every > 0 && (report.Frame+1)%every == 0 {
		return c.send(ctx, ServerMessage{
			Type:      MsgProgress,
			SessionID: c.id,
			Frame:     report.Frame,
			Best:      report.Best,
			BestCount: report.BestCount,
		})
	}
	return nil
}

func (c *streamConn) sendSession(ctx context.Context) error {
	ms, err := c.h.sessions.get(c.id)
	if err != nil {
		return err
	}
	return c.send(ctx, ServerMessage{
		Type:      MsgSession,
		SessionID: c.id,
		Frame:     ms.Frames(),
		Settings:  settingsMessage(ms.Settings()),
		Finished:  ms.Finished(),
	})
}

func (c *streamConn) sendError(ctx context.Context, text string) error {
	return c.send(ctx, ServerMessage{Type: MsgError, SessionID: c.id, Error: text})
}

func (c *streamConn) send(ctx context.Context, msg ServerMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("app: marshal %s message: %w", msg.Type, err)
	}
	return c.conn.Write(ctx, websocket.MessageText, data)
}

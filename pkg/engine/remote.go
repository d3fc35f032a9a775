package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"detectbench/internal/entity"

	"github.com/disintegration/imaging"
	"github.com/gorilla/websocket"
)

type remoteResponse struct {
	Boxes []entity.Box `json:"boxes"`
	Error string       `json:"error,omitempty"`
}

// remoteEngine forwards frames to an inference server over one websocket.
// Requests are serialized on the connection. Any I/O error drops the
// connection; the next Detect dials a fresh one, so a late reply to a timed
// out frame is never read as the answer to another.
type remoteEngine struct {
	Renderer
	url          string
	dialer       websocket.Dialer
	conn         *websocket.Conn
	mu           sync.Mutex
	readTimeout  time.Duration
	writeTimeout time.Duration
}

func newRemoteEngine(ctx context.Context, cfg Config) (Engine, error) {
	if cfg.RemoteURL == "" {
		return nil, errors.New("remote engine URL not configured")
	}

	e := &remoteEngine{
		Renderer:     NewRenderer(COCOLabels),
		url:          cfg.RemoteURL,
		dialer:       websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		readTimeout:  60 * time.Second,
		writeTimeout: 10 * time.Second,
	}
	if err := e.connect(ctx); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *remoteEngine) connect(ctx context.Context) error {
	conn, _, err := e.dialer.DialContext(ctx, e.url, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", e.url, err)
	}
	e.conn = conn
	return nil
}

// drop closes a connection whose stream state is no longer trustworthy.
func (e *remoteEngine) drop() {
	if e.conn != nil {
		_ = e.conn.Close()
		e.conn = nil
	}
}

func (e *remoteEngine) Detect(ctx context.Context, img image.Image) ([]entity.Box, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(95)); err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if e.conn == nil {
		if err := e.connect(ctx); err != nil {
			return nil, err
		}
	}

	if err := e.conn.SetWriteDeadline(time.Now().Add(e.writeTimeout)); err != nil {
		e.drop()
		return nil, err
	}
	if err := e.conn.WriteMessage(websocket.BinaryMessage, buf.Bytes()); err != nil {
		e.drop()
		return nil, fmt.Errorf("send frame to %s: %w", e.url, err)
	}

	deadline := time.Now().Add(e.readTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := e.conn.SetReadDeadline(deadline); err != nil {
		e.drop()
		return nil, err
	}

	var resp remoteResponse
	if err := e.conn.ReadJSON(&resp); err != nil {
		e.drop()
		return nil, fmt.Errorf("read detections from %s: %w", e.url, err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("remote engine: %s", resp.Error)
	}

	return sanitize(resp.Boxes), nil
}

func (e *remoteEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.conn == nil {
		return nil
	}
	err := e.conn.Close()
	e.conn = nil
	return err
}

// sanitize drops boxes with a negative class and clamps confidence to [0,1].
func sanitize(boxes []entity.Box) []entity.Box {
	out := make([]entity.Box, 0, len(boxes))
	for _, b := range boxes {
		if b.Cls < 0 {
			continue
		}
		if b.Conf < 0 {
			b.Conf = 0
		} else if b.Conf > 1 {
			b.Conf = 1
		}
		out = append(out, b)
	}
	return out
}

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"interview-copilot-service/internal/audio"
	"interview-copilot-service/internal/observability/logging"
	"interview-copilot-service/internal/service/copilot"
)

const (
	audioConnection = "websocket_audio"
	helloTimeout    = 10 * time.Second
	maxMessageBytes = 1 << 20
	pipeDepth       = 64
	writeTimeout    = 5 * time.Second
)

var errBadHello = errors.New("invalid hello message")


// hello is the first message on /v1/audio, describing the captured source.
type hello struct {
	AudioTracks int    `json:"audioTracks"`
	SampleRate  int    `json:"sampleRate"`
	Format      string `json:"format"` // f32 | s16
}

// control is a text message after the hello.
type control struct {
	Type string `json:"type"` // flush | end
}

type ingestReply struct {
	Type      string       `json:"type"`
	SessionID string       `json:"sessionId,omitempty"`
	Mode      copilot.Mode `json:"mode,omitempty"`
	Error     string       `json:"error,omitempty"`
	ErrorKind string       `json:"errorKind,omitempty"`
}

func (h hello) decoder() (func([]byte) ([]float32, error), error) {
	switch h.Format {
	case "", "f32":
		return audio.DecodeFloat32LE, nil
	case "s16":
		return audio.DecodePCM16LE, nil
	default:
		return nil, fmt.Errorf("%w: unknown format %q", errBadHello, h.Format)
	}
}

func errorKind(err error) string {
	if errors.Is(err, errBadHello) {
		return "bad_request"
	}
	return copilot.ErrorKind(err)
}

// ingestHandler serves the audio source websocket. The socket is the capture:
// binary messages carry samples of the first audio track and closing the
// socket ends the track.
func ingestHandler(deps Deps, upgrader *websocket.Upgrader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := logging.WithComponent("ingest").With().Str("remoteAddr", r.RemoteAddr).Logger()
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn().Err(err).Str("origin", r.Header.Get("Origin")).Msg("WebSocket upgrade failed")
			return
		}
		defer conn.Close()

		start := time.Now()
		success := false
		deps.Metrics.RecordConnectionStart(audioConnection)
		defer func() {
			deps.Metrics.RecordConnectionEnd(audioConnection, success, time.Since(start).Seconds())
		}()

		conn.SetReadLimit(maxMessageBytes)

		h, err := readHello(conn)
		if err != nil {
			logger.Warn().Err(err).Msg("Rejected audio source")
			closeWithError(conn, err)
			return
		}
		decode, err := h.decoder()
		if err != nil {
			closeWithError(conn, err)
			return
		}
		if h.AudioTracks > 0 && deps.SampleRate > 0 && h.SampleRate != deps.SampleRate {
			err := fmt.Errorf("%w: sample rate %d Hz, expected %d Hz", copilot.ErrSourceUnavailable, h.SampleRate, deps.SampleRate)
			logger.Warn().Err(err).Msg("Rejected audio source")
			closeWithError(conn, err)
			return
		}

		var track *audio.PipeTrack
		source := audio.NewSource()
		if h.AudioTracks > 0 {
			track = audio.NewPipeTrack(h.SampleRate, pipeDepth)
			source = audio.NewSource(track)
		}
		if err := deps.Controller.Start(deps.BaseContext, source); err != nil {
			logger.Warn().Err(err).Msg("Failed to start session")
			closeWithError(conn, err)
			return
		}
		defer track.End()

		st := deps.Controller.Status()
		logger = logger.With().Str("sessionId", st.SessionID).Logger()
		logger.Info().Int("sampleRate", h.SampleRate).Str("format", h.Format).Msg("Audio source connected")
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteJSON(ingestReply{Type: "started", SessionID: st.SessionID, Mode: st.Mode}); err != nil {
			logger.Warn().Err(err).Msg("Failed to acknowledge audio source")
			return
		}

		handlerDone := make(chan struct{})
		defer close(handlerDone)
		go func(done <-chan struct{}) {
			select {
			case <-done:
				msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended")
				_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeTimeout))
				conn.SetReadDeadline(time.Now().Add(writeTimeout))
			case <-handlerDone:
			}
		}(deps.Controller.Done())

		success = pump(r, conn, track, decode, deps.Controller, logger)
		logger.Info().Dur("duration", time.Since(start)).Msg("Audio source disconnected")
	}
}

func readHello(conn *websocket.Conn) (hello, error) {
	var h hello
	conn.SetReadDeadline(time.Now().Add(helloTimeout))
	mt, data, err := conn.ReadMessage()
	if err != nil {
		return h, fmt.Errorf("%w: %w", errBadHello, err)
	}
	conn.SetReadDeadline(time.Time{})
	if mt != websocket.TextMessage {
		return h, fmt.Errorf("%w: expected a text message", errBadHello)
	}
	if err := json.Unmarshal(data, &h); err != nil {
		return h, fmt.Errorf("%w: %w", errBadHello, err)
	}
	if h.AudioTracks < 0 || (h.AudioTracks > 0 && h.SampleRate <= 0) {
		return h, fmt.Errorf("%w: audioTracks=%d sampleRate=%d", errBadHello, h.AudioTracks, h.SampleRate)
	}
	return h, nil
}

// pump feeds socket messages into track until the socket or the track ends.
// It reports whether the connection ended cleanly.
func pump(r *http.Request, conn *websocket.Conn, track *audio.PipeTrack, decode func([]byte) ([]float32, error), ctl Controller, logger zerolog.Logger) bool {
	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return true
			}
			logger.Warn().Err(err).Msg("Audio socket closed unexpectedly")
			return false
		}

		switch mt {
		case websocket.BinaryMessage:
			samples, err := decode(data)
			if err != nil {
				logger.Warn().Err(err).Int("bytes", len(data)).Msg("Dropping malformed audio chunk")
				continue
			}
			if err := track.Push(r.Context(), samples); err != nil {
				if errors.Is(err, audio.ErrTrackEnded) {
					return true
				}
				logger.Warn().Err(err).Msg("Failed to push audio")
				return false
			}
		case websocket.TextMessage:
			var c control
			if err := json.Unmarshal(data, &c); err != nil {
				logger.Warn().Err(err).Msg("Ignoring malformed control message")
				continue
			}
			switch c.Type {
			case "flush":
				if err := ctl.Flush(); err != nil {
					sendError(conn, err)
				}
			case "end":
				track.End()
			default:
				logger.Warn().Str("type", c.Type).Msg("Ignoring unknown control message")
			}
		}
	}
}

func sendError(conn *websocket.Conn, err error) {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	_ = conn.WriteJSON(ingestReply{Type: "error", Error: err.Error(), ErrorKind: errorKind(err)})
}

func closeWithError(conn *websocket.Conn, err error) {
	sendError(conn, err)
	msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, errorKind(err))
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeTimeout))
}

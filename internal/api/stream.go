package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/dgnsrekt/chartmark/internal/annotate"
	"github.com/dgnsrekt/chartmark/internal/types"
	"github.com/go-chi/chi/v5"
	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// maxStreamFrameBytes caps one command message on the stream socket.
const maxStreamFrameBytes = 16 * 1024

var errFrameTooLarge = errors.New("stream: command frame too large")

// streamAck answers one command received on the canvas stream socket.
type streamAck struct {
	N      int              `json:"n"`
	OK     bool             `json:"ok"`
	Result *annotate.Result `json:"result,omitempty"`
	Error  string           `json:"error,omitempty"`
	Code   string           `json:"code,omitempty"`
}

// streamHandler upgrades to a WebSocket carrying annotate.Command frames.
// Each text frame is applied in order and answered with one streamAck.
func streamHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		canvasID := chi.URLParam(r, "canvas_id")
		if _, err := svc.GetCanvas(r.Context(), canvasID); err != nil {
			var coded *types.CodedError
			if errors.As(err, &coded) && coded.Code == types.CodeCanvasNotFound {
				http.Error(w, coded.Message, http.StatusNotFound)
				return
			}
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		conn, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			slog.Debug("stream upgrade failed", "canvas_id", canvasID, "error", err)
			return
		}
		defer conn.Close()
		slog.Info("stream connected", "canvas_id", canvasID, "remote", r.RemoteAddr)

		for n := 1; ; n++ {
			data, op, err := readCommandFrame(conn)
			if errors.Is(err, errFrameTooLarge) {
				slog.Warn("stream frame too large", "canvas_id", canvasID, "limit", maxStreamFrameBytes)
				closeFrame := ws.NewCloseFrame(ws.NewCloseFrameBody(ws.StatusMessageTooBig, "command too large"))
				if err := ws.WriteFrame(conn, closeFrame); err != nil {
					slog.Debug("stream close write failed", "canvas_id", canvasID, "error", err)
				}
				return
			}
			if err != nil {
				if !errors.Is(err, io.EOF) {
					var closed wsutil.ClosedError
					if !errors.As(err, &closed) {
						slog.Debug("stream read failed", "canvas_id", canvasID, "error", err)
					}
				}
				slog.Info("stream disconnected", "canvas_id", canvasID, "commands", n-1)
				return
			}
			if op != ws.OpText {
				n--
				continue
			}

			ack := streamAck{N: n}
			var cmd annotate.Command
			if err := json.Unmarshal(data, &cmd); err != nil {
				ack.Error = "invalid command: " + err.Error()
				ack.Code = types.CodeValidation
			} else if res, err := svc.Apply(r.Context(), canvasID, cmd); err != nil {
				ack.Error = err.Error()
				var coded *types.CodedError
				if errors.As(err, &coded) {
					ack.Code = coded.Code
					ack.Error = coded.Message
				}
			} else {
				ack.OK = true
				ack.Result = &res
			}

			out, err := json.Marshal(ack)
			if err != nil {
				slog.Debug("stream ack marshal failed", "error", err)
				return
			}
			if err := wsutil.WriteServerText(conn, out); err != nil {
				slog.Debug("stream write failed", "canvas_id", canvasID, "error", err)
				return
			}
			if ack.Code == types.CodeCanvasNotFound {
				return
			}
		}
	}
}

// readCommandFrame reads the next data message from a client. Control frames
// are answered in place. Messages over maxStreamFrameBytes, including
// fragmented ones, fail with errFrameTooLarge.
func readCommandFrame(conn io.ReadWriter) ([]byte, ws.OpCode, error) {
	control := wsutil.ControlFrameHandler(conn, ws.StateServerSide)
	rd := &wsutil.Reader{
		Source:         conn,
		State:          ws.StateServerSide,
		CheckUTF8:      true,
		MaxFrameSize:   maxStreamFrameBytes,
		OnIntermediate: control,
	}
	for {
		hdr, err := rd.NextFrame()
		if errors.Is(err, wsutil.ErrFrameTooLarge) {
			return nil, 0, errFrameTooLarge
		}
		if err != nil {
			return nil, 0, err
		}
		if hdr.OpCode.IsControl() {
			if err := control(hdr, rd); err != nil {
				return nil, 0, err
			}
			continue
		}
		data, err := io.ReadAll(io.LimitReader(rd, maxStreamFrameBytes+1))
		if errors.Is(err, wsutil.ErrFrameTooLarge) || len(data) > maxStreamFrameBytes {
			return nil, 0, errFrameTooLarge
		}
		return data, hdr.OpCode, err
	}
}

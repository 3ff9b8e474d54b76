// Package server exposes the analysis workflow and chat over HTTP. Document
// submission and run inspection are plain JSON endpoints; chat runs over a
// websocket with typed message envelopes.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/xhad/greenlens/internal/faults"
	"github.com/xhad/greenlens/internal/models"
	"github.com/xhad/greenlens/pkg/chat"
	"github.com/xhad/greenlens/pkg/workflow"
)

// maxDocumentBytes caps uploads; sustainability reports run large but not
// unbounded.
const maxDocumentBytes = 64 << 20

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Be careful with this in production
	},
}

// Message is the websocket envelope for chat traffic in both directions.
type Message struct {
	Type    string      `json:"type"`
	Content string      `json:"content"`
	Data    interface{} `json:"data,omitempty"`
}

type Config struct {
	// Streaming forwards generation output over the websocket in "stream"
	// frames as it arrives; the final "response" frame always carries the
	// complete, citation-checked answer.
	Streaming bool
}

type Server struct {
	config   Config
	workflow *workflow.Service
	chat     *chat.Service
	logger   *zap.Logger
}

func New(config Config, wf *workflow.Service, chatSvc *chat.Service, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{config: config, workflow: wf, chat: chatSvc, logger: logger}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /documents", s.handleSubmit)
	mux.HandleFunc("GET /runs/{id}", s.handleStatus)
	mux.HandleFunc("GET /runs/{id}/result", s.handleResult)
	mux.HandleFunc("DELETE /runs/{id}", s.handleCancel)
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	return mux
}

type submitResponse struct {
	RunID      string `json:"run_id"`
	DocumentID string `json:"document_id"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	format := models.DocumentFormat(strings.ToLower(r.URL.Query().Get("format")))
	if format == "" {
		switch {
		case strings.Contains(r.Header.Get("Content-Type"), "pdf"):
			format = models.FormatPDF
		case strings.Contains(r.Header.Get("Content-Type"), "html"):
			format = models.FormatHTML
		}
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxDocumentBytes))
	if err != nil {
		s.writeError(w, http.StatusRequestEntityTooLarge, err)
		return
	}

	runID, err := s.workflow.Submit(r.Context(), data, format, r.URL.Query().Get("company"))
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}

	var status workflow.Status
	if st, err := s.workflow.Status(runID); err == nil {
		status = st
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(submitResponse{RunID: runID, DocumentID: status.DocumentID})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.workflow.Status(r.PathValue("id"))
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	assessment, err := s.workflow.Result(r.PathValue("id"))
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(assessment)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	if err := s.workflow.Cancel(r.PathValue("id")); err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	var session *chat.Session

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			s.sendMessage(conn, "error", "malformed message")
			continue
		}

		switch msg.Type {
		case "open":
			company, _ := msg.Data.(string)
			session = s.chat.Open(msg.Content, company)
			s.sendMessage(conn, "session", session.ID)

		case "ask":
			if session == nil {
				s.sendMessage(conn, "error", "open a session before asking")
				continue
			}

			var answer models.ChatMessage
			var err error
			if s.config.Streaming {
				answer, err = s.chat.AskStream(r.Context(), session, msg.Content, func(chunk string) {
					s.sendMessage(conn, "stream", chunk)
				})
			} else {
				answer, err = s.chat.Ask(r.Context(), session, msg.Content)
			}
			if err != nil {
				s.sendMessage(conn, "error", err.Error())
				continue
			}
			s.send(conn, Message{Type: "response", Content: answer.Text, Data: answer.ChunkIDs})

		default:
			s.sendMessage(conn, "error", "unknown message type: "+msg.Type)
		}
	}
}

func (s *Server) sendMessage(conn *websocket.Conn, msgType, content string) {
	s.send(conn, Message{Type: msgType, Content: content})
}

func (s *Server) send(conn *websocket.Conn, msg Message) {
	if err := conn.WriteJSON(msg); err != nil {
		s.logger.Warn("websocket write failed", zap.Error(err))
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func (s *Server) writeError(w http.ResponseWriter, code int, err error) {
	s.logger.Debug("request failed", zap.Int("code", code), zap.Error(err))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(errorResponse{
		Error: err.Error(),
		Kind:  string(faults.KindOf(err)),
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, faults.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, faults.ErrAnalysisInProgress):
		return http.StatusConflict
	case errors.Is(err, faults.ErrNotReady):
		return http.StatusConflict
	case errors.Is(err, faults.ErrUnsupportedFormat),
		errors.Is(err, faults.ErrExtractionFailed):
		return http.StatusBadRequest
	case errors.Is(err, faults.ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

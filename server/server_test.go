package server_test

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/greenlens/internal/models"
	"github.com/xhad/greenlens/internal/types"
	"github.com/xhad/greenlens/pkg/chat"
	"github.com/xhad/greenlens/server"
)

type fixedRetriever struct{ hits []types.IndexHit }

func (f *fixedRetriever) Retrieve(ctx context.Context, query string, k int, filter types.IndexFilter) ([]types.IndexHit, error) {
	return f.hits, nil
}

// pieceGenerator streams its answer in fixed pieces.
type pieceGenerator struct{ pieces []string }

func (g *pieceGenerator) Generate(ctx context.Context, system, user string) (string, error) {
	return strings.Join(g.pieces, ""), nil
}

func (g *pieceGenerator) GenerateStream(ctx context.Context, system, user string, onChunk func(string)) (string, error) {
	for _, p := range g.pieces {
		onChunk(p)
	}
	return strings.Join(g.pieces, ""), nil
}

func dialWS(t *testing.T, streaming bool) *websocket.Conn {
	t.Helper()

	retriever := &fixedRetriever{hits: []types.IndexHit{
		{Chunk: models.Chunk{ID: "doc1:0000", DocumentID: "doc1", Text: "We are carbon neutral."}, Similarity: 0.9},
	}}
	generator := &pieceGenerator{pieces: []string{"Neutrality is claimed ", "[chunk doc1:0000]."}}
	chatSvc := chat.NewService(chat.Config{}, retriever, generator, nil)

	srv := server.New(server.Config{Streaming: streaming}, nil, chatSvc, nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) server.Message {
	t.Helper()
	var msg server.Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestWebSocketStreamsChunksBeforeResponse(t *testing.T) {
	conn := dialWS(t, true)

	require.NoError(t, conn.WriteJSON(server.Message{Type: "open", Content: "doc1"}))
	opened := readFrame(t, conn)
	require.Equal(t, "session", opened.Type)
	require.NotEmpty(t, opened.Content)

	require.NoError(t, conn.WriteJSON(server.Message{Type: "ask", Content: "Is the company carbon neutral?"}))

	var streamed []string
	for {
		msg := readFrame(t, conn)
		if msg.Type == "stream" {
			streamed = append(streamed, msg.Content)
			continue
		}

		require.Equal(t, "response", msg.Type)
		assert.Equal(t, "Neutrality is claimed [chunk doc1:0000].", msg.Content)
		cited, ok := msg.Data.([]interface{})
		require.True(t, ok)
		require.Len(t, cited, 1)
		assert.Equal(t, "doc1:0000", cited[0])
		break
	}

	assert.Equal(t, []string{"Neutrality is claimed ", "[chunk doc1:0000]."}, streamed)
}

func TestWebSocketSingleResponseWithoutStreaming(t *testing.T) {
	conn := dialWS(t, false)

	require.NoError(t, conn.WriteJSON(server.Message{Type: "open", Content: "doc1"}))
	require.Equal(t, "session", readFrame(t, conn).Type)

	require.NoError(t, conn.WriteJSON(server.Message{Type: "ask", Content: "Is the company carbon neutral?"}))

	msg := readFrame(t, conn)
	assert.Equal(t, "response", msg.Type)
	assert.Equal(t, "Neutrality is claimed [chunk doc1:0000].", msg.Content)
}

func TestWebSocketAskBeforeOpen(t *testing.T) {
	conn := dialWS(t, true)

	require.NoError(t, conn.WriteJSON(server.Message{Type: "ask", Content: "Anything?"}))
	msg := readFrame(t, conn)
	assert.Equal(t, "error", msg.Type)
	assert.Contains(t, msg.Content, "open a session")
}

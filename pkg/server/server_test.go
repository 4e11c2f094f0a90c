package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"DigitNet/pkg/canvas"
	"DigitNet/pkg/network"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestNetwork(t *testing.T, in, out int, hidden ...int) *network.NeuronNetwork {
	t.Helper()
	cfg := network.NewNetworkConfig(in, out, hidden...)
	cfg.Src = network.NewSeededSource(3)
	nn, err := network.NewNeuronNetwork(cfg)
	require.NoError(t, err)
	return nn
}

func newTestServer(t *testing.T, nn *network.NeuronNetwork) *Server {
	t.Helper()
	opts := DefaultOptions()
	opts.Logger = log.New(io.Discard, "", 0)
	return New(nn, opts)
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, newTestNetwork(t, 3, 2, 4))
	w := doJSON(t, s, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","sessions":0}`, w.Body.String())
}

func TestGetModel(t *testing.T) {
	s := newTestServer(t, newTestNetwork(t, 3, 2, 4))
	w := doJSON(t, s, http.MethodGet, "/model", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp ModelResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.ID)
	require.Len(t, resp.Topology, 3)
	assert.Equal(t, network.LayerInfo{Size: 4, NextSize: 2, Activation: "leaky-relu", Loss: "mse"}, resp.Topology[1])
	assert.Equal(t, "softmax", resp.Topology[2].Activation)
}

func TestPredict(t *testing.T) {
	nn := newTestNetwork(t, 3, 2, 4)
	want, err := nn.Run([]float64{0.1, 0.2, 0.3})
	require.NoError(t, err)
	s := newTestServer(t, nn)

	w := doJSON(t, s, http.MethodPost, "/predict", PredictRequest{Input: []float64{0.1, 0.2, 0.3}})
	require.Equal(t, http.StatusOK, w.Code)
	var resp PredictResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.InDeltaSlice(t, want, resp.Output, 1e-12)
	assert.NotEmpty(t, resp.RequestID)
	if want[0] > want[1] {
		assert.Equal(t, 0, resp.Label)
	} else {
		assert.Equal(t, 1, resp.Label)
	}

	w = doJSON(t, s, http.MethodPost, "/predict", PredictRequest{Input: []float64{1}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, s, http.MethodPost, "/predict", `{"input":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTrain(t *testing.T) {
	nn := newTestNetwork(t, 2, 2, 3)
	before, err := nn.Run([]float64{1, 0})
	require.NoError(t, err)
	s := newTestServer(t, nn)

	lr := 0.1
	w := doJSON(t, s, http.MethodPost, "/train", TrainRequest{Input: []float64{1, 0}, Target: []float64{0, 1}, LearningRate: &lr})
	require.Equal(t, http.StatusOK, w.Code)
	var resp TrainResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.InDeltaSlice(t, before, resp.Output, 1e-12)

	w = doJSON(t, s, http.MethodPost, "/predict", PredictRequest{Input: []float64{1, 0}})
	var pred PredictResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &pred))
	assert.Greater(t, pred.Output[1], before[1])

	negative := -1.0
	w = doJSON(t, s, http.MethodPost, "/train", TrainRequest{Input: []float64{1, 0}, Target: []float64{0, 1}, LearningRate: &negative})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, s, http.MethodPost, "/train", TrainRequest{Input: []float64{1, 0}, Target: []float64{1}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExportAndReplaceModel(t *testing.T) {
	s := newTestServer(t, newTestNetwork(t, 3, 2, 4))
	w := doJSON(t, s, http.MethodGet, "/model/export", nil)
	require.Equal(t, http.StatusOK, w.Code)
	oldID := w.Header().Get("X-Model-ID")
	require.NotEmpty(t, oldID)

	exported, err := network.ParseNetwork(w.Body.Bytes())
	require.NoError(t, err)
	assert.Equal(t, 3, exported.InputSize())

	replacement := newTestNetwork(t, 5, 3)
	text, err := replacement.MarshalText()
	require.NoError(t, err)
	w = doJSON(t, s, http.MethodPut, "/model", string(text))
	require.Equal(t, http.StatusOK, w.Code)
	var resp ModelResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEqual(t, oldID, resp.ID)
	assert.Len(t, resp.Topology, 2)

	current, err := s.Network()
	require.NoError(t, err)
	assert.Equal(t, 5, current.InputSize())

	w = doJSON(t, s, http.MethodPut, "/model", "<network>garbage")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	current, err = s.Network()
	require.NoError(t, err)
	assert.Equal(t, 5, current.InputSize(), "rejected upload leaves the model in place")
}

func TestDrawSession(t *testing.T) {
	nn := newTestNetwork(t, canvas.Side*canvas.Side, 10, 8)
	ref, err := nn.Clone()
	require.NoError(t, err)
	painted := canvas.New()
	painted.Paint(4, 7)
	wantPainted, err := ref.Run(painted.Input())
	require.NoError(t, err)
	wantBlank, err := ref.Run(canvas.New().Input())
	require.NoError(t, err)

	s := newTestServer(t, nn)
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/draw"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(DrawMessage{Type: "paint", X: 4, Y: 7}))
	var resp DrawResponse
	require.NoError(t, conn.ReadJSON(&resp))
	assert.Empty(t, resp.Error)
	assert.NotEmpty(t, resp.SessionID)
	assert.InDeltaSlice(t, wantPainted, resp.Output, 1e-12)
	assert.GreaterOrEqual(t, resp.Label, 0)
	_, ok := s.Sessions().Get(resp.SessionID)
	assert.True(t, ok)

	require.NoError(t, conn.WriteJSON(DrawMessage{Type: "scribble"}))
	var bad DrawResponse
	require.NoError(t, conn.ReadJSON(&bad))
	assert.Equal(t, resp.SessionID, bad.SessionID)
	assert.NotEmpty(t, bad.Error)
	assert.Equal(t, -1, bad.Label)

	require.NoError(t, conn.WriteJSON(DrawMessage{Type: "clear"}))
	var cleared DrawResponse
	require.NoError(t, conn.ReadJSON(&cleared))
	assert.Empty(t, cleared.Error)
	assert.InDeltaSlice(t, wantBlank, cleared.Output, 1e-12)
}

func TestDrawSessionWithWrongInputSize(t *testing.T) {
	s := newTestServer(t, newTestNetwork(t, 3, 2))
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws/draw", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(DrawMessage{Type: "paint", X: 1, Y: 1}))
	var resp DrawResponse
	require.NoError(t, conn.ReadJSON(&resp))
	assert.NotEmpty(t, resp.Error)
	assert.Empty(t, resp.Output)
}

func TestDrawSessionClosesOnPrune(t *testing.T) {
	s := newTestServer(t, newTestNetwork(t, canvas.Side*canvas.Side, 10))
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws/draw", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(DrawMessage{Type: "paint", X: 0, Y: 0}))
	var resp DrawResponse
	require.NoError(t, conn.ReadJSON(&resp))
	require.Equal(t, 1, s.Sessions().Count())

	pruned := s.Sessions().CleanupIdle(time.Now().Add(time.Hour))
	assert.Equal(t, []string{resp.SessionID}, pruned)

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err)
}

func TestZeroOptionsFallBackToDefaults(t *testing.T) {
	s := New(newTestNetwork(t, canvas.Side*canvas.Side, 10), Options{Logger: log.New(io.Discard, "", 0)})
	def := DefaultOptions()
	assert.Equal(t, def.SessionTimeout, s.opts.SessionTimeout)
	assert.Equal(t, def.PruneInterval, s.opts.PruneInterval)
	assert.Equal(t, def.DefaultLearningRate, s.opts.DefaultLearningRate)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	assert.NotPanics(t, func() { s.Sessions().StartCleanup(ctx) })

	ts := httptest.NewServer(s.Router())
	defer ts.Close()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws/draw", nil)
	require.NoError(t, err)
	defer conn.Close()

	for i := 0; i < 3; i++ {
		require.NoError(t, conn.WriteJSON(DrawMessage{Type: "paint", X: i, Y: i}))
		var resp DrawResponse
		require.NoError(t, conn.ReadJSON(&resp))
		assert.Empty(t, resp.Error)
		assert.NotEmpty(t, resp.Output)
	}
}

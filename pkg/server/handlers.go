package server

import (
	"errors"
	"net/http"
	"time"

	"DigitNet/pkg/network"
	"DigitNet/pkg/training"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// PredictRequest /predict 请求体
type PredictRequest struct {
	Input []float64 `json:"input" binding:"required"`
}

// PredictResponse /predict 响应体
type PredictResponse struct {
	RequestID string    `json:"request_id"`
	ModelID   string    `json:"model_id"`
	Output    []float64 `json:"output"`
	Label     int       `json:"label"`
}

// TrainRequest /train 请求体，learning_rate 缺省时使用服务的默认学习率
type TrainRequest struct {
	Input        []float64 `json:"input" binding:"required"`
	Target       []float64 `json:"target" binding:"required"`
	LearningRate *float64  `json:"learning_rate"`
}

// TrainResponse /train 响应体，Output 为本次更新前的前向输出
type TrainResponse struct {
	ModelID string    `json:"model_id"`
	Output  []float64 `json:"output"`
}

// ModelResponse /model 响应体
type ModelResponse struct {
	ID       string              `json:"id"`
	Topology []network.LayerInfo `json:"topology"`
}

// DrawMessage 手写板客户端发送的消息
type DrawMessage struct {
	Type string `json:"type"` // paint, erase 或 clear
	X    int    `json:"x"`
	Y    int    `json:"y"`
}

// DrawResponse 每条手写板消息的应答
type DrawResponse struct {
	SessionID string    `json:"session_id"`
	Output    []float64 `json:"output,omitempty"`
	Label     int       `json:"label"`
	Error     string    `json:"error,omitempty"`
}

// errorStatus 将网络错误映射为HTTP状态码
func errorStatus(err error) int {
	switch {
	case errors.Is(err, network.ErrDimensionMismatch),
		errors.Is(err, network.ErrCorruptFormat),
		errors.Is(err, network.ErrInvalidTopology):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) healthHandler(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"status": "ok", "sessions": s.sessions.Count()})
}

func (s *Server) getModelHandler(ctx *gin.Context) {
	s.mu.Lock()
	resp := ModelResponse{ID: s.modelID, Topology: s.nn.Topology()}
	s.mu.Unlock()
	ctx.JSON(http.StatusOK, resp)
}

// exportModelHandler 以网络文件的文本格式导出当前模型
func (s *Server) exportModelHandler(ctx *gin.Context) {
	s.mu.Lock()
	data, err := s.nn.MarshalText()
	id := s.modelID
	s.mu.Unlock()
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	ctx.Header("X-Model-ID", id)
	ctx.Data(http.StatusOK, "text/plain; charset=utf-8", data)
}

// putModelHandler 用请求体中的网络文件替换当前模型
func (s *Server) putModelHandler(ctx *gin.Context) {
	body, err := ctx.GetRawData()
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	nn, err := network.ParseNetwork(body)
	if err != nil {
		ctx.JSON(errorStatus(err), gin.H{"error": err.Error()})
		return
	}

	s.mu.Lock()
	s.nn = nn
	s.modelID = uuid.New().String()
	resp := ModelResponse{ID: s.modelID, Topology: nn.Topology()}
	s.mu.Unlock()

	s.logger.Printf("模型已替换: %s", resp.ID)
	ctx.JSON(http.StatusOK, resp)
}

func (s *Server) predictHandler(ctx *gin.Context) {
	var req PredictRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request, input required"})
		return
	}

	s.mu.Lock()
	output, err := s.nn.Run(req.Input)
	id := s.modelID
	s.mu.Unlock()
	if err != nil {
		ctx.JSON(errorStatus(err), gin.H{"error": err.Error()})
		return
	}

	ctx.JSON(http.StatusOK, PredictResponse{
		RequestID: uuid.New().String(),
		ModelID:   id,
		Output:    output,
		Label:     training.ArgMax(output),
	})
}

func (s *Server) trainHandler(ctx *gin.Context) {
	var req TrainRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request, input and target required"})
		return
	}
	lr := s.opts.DefaultLearningRate
	if req.LearningRate != nil {
		lr = *req.LearningRate
	}
	if lr < 0 {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "learning_rate must not be negative"})
		return
	}

	s.mu.Lock()
	output, err := s.nn.Train(req.Input, req.Target, lr)
	id := s.modelID
	s.mu.Unlock()
	if err != nil {
		ctx.JSON(errorStatus(err), gin.H{"error": err.Error()})
		return
	}
	ctx.JSON(http.StatusOK, TrainResponse{ModelID: id, Output: output})
}

// drawHandler 手写板会话：每条消息修改画板后返回当前画板的识别结果
func (s *Server) drawHandler(ctx *gin.Context) {
	conn, err := s.upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		s.logger.Printf("websocket升级失败: %v", err)
		return
	}
	defer conn.Close()

	session := s.sessions.Open(func() { conn.Close() })
	defer s.sessions.Close(session.ID)
	s.logger.Printf("手写板会话建立: %s", session.ID)

	for {
		conn.SetReadDeadline(time.Now().Add(s.opts.SessionTimeout))
		var msg DrawMessage
		if err := conn.ReadJSON(&msg); err != nil {
			s.logger.Printf("手写板会话结束: %s (%v)", session.ID, err)
			return
		}
		if err := s.sessions.Touch(session.ID); err != nil {
			return
		}

		resp := DrawResponse{SessionID: session.ID, Label: -1}
		switch msg.Type {
		case "paint":
			session.Canvas.Paint(msg.X, msg.Y)
		case "erase":
			session.Canvas.Erase(msg.X, msg.Y)
		case "clear":
			session.Canvas.Clear()
		default:
			resp.Error = "unknown message type: " + msg.Type
		}
		if resp.Error == "" {
			s.mu.Lock()
			output, err := s.nn.Run(session.Canvas.Input())
			s.mu.Unlock()
			if err != nil {
				resp.Error = err.Error()
			} else {
				resp.Output = output
				resp.Label = training.ArgMax(output)
			}
		}
		if err := conn.WriteJSON(resp); err != nil {
			return
		}
	}
}

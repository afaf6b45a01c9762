package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"oabt_client/internal/util"
	"oabt_client/pkg/logger"
	"oabt_client/pkg/monitoring"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1024
)

const (
	MsgSnapshot     = "SNAPSHOT"
	MsgError        = "ERROR"
	MsgSelectOption = "SELECT_OPTION"
	MsgNext         = "NEXT"
	MsgPrev         = "PREV"
	MsgFinish       = "FINISH"
)

type WSMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

type inboundMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type selectOptionData struct {
	QuestionID string `json:"questionId"`
	Option     string `json:"option"`
}

// StreamClient 订阅某场考试的一个 websocket 连接
type StreamClient struct {
	Hub     *ExamHub
	Conn    *websocket.Conn
	Send    chan []byte
	TestID  string
	Limiter *rate.Limiter
}

func (c *StreamClient) readPump() {
	defer func() {
		select {
		case c.Hub.unregister <- c:
		case <-c.Hub.done:
		}
		c.Conn.Close()
	}()
	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error { c.Conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Log.Error("WebSocket unexpected close", zap.Error(err), zap.String("testId", c.TestID))
			}
			break
		}

		// 每秒最多 10 次操作，允许突发 20 次
		if !c.Limiter.Allow() {
			continue
		}

		var msg inboundMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}
		monitoring.StreamMessageCounter.WithLabelValues(msg.Type, "in").Inc()

		if err := c.Hub.handleAction(c.TestID, msg); err != nil {
			c.Hub.sendTo(c, WSMessage{Type: MsgError, Data: err.Error()})
		}
	}
}

func (c *StreamClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			// 每帧一个完整 JSON，客户端按帧解析
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// sendTo 只给仍在房间里的连接发送；Send 的关闭总在写锁内进行
func (h *ExamHub) sendTo(c *StreamClient, msg WSMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.rooms[c.TestID][c]; !ok {
		return
	}
	select {
	case c.Send <- payload:
		monitoring.StreamMessageCounter.WithLabelValues(msg.Type, "out").Inc()
	default:
	}
}

// ExamHub 把考试快照推送给订阅者，并把订阅者的操作转给对应会话
type ExamHub struct {
	mu    sync.RWMutex
	rooms map[string]map[*StreamClient]struct{}
	// lastSeq 每场考试已推送的最新快照序号
	lastSeq map[string]uint64

	register   chan *StreamClient
	unregister chan *StreamClient
	done       chan struct{}

	// Lookup 按 testId 找到当前会话
	Lookup func(testID string) (*ExamSession, error)

	upgrader websocket.Upgrader
}

func NewExamHub(allowedOrigins []string) *ExamHub {
	h := &ExamHub{
		rooms:      make(map[string]map[*StreamClient]struct{}),
		lastSeq:    make(map[string]uint64),
		register:   make(chan *StreamClient),
		unregister: make(chan *StreamClient),
		done:       make(chan struct{}),
	}
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			// 原生客户端不带 Origin
			return origin == "" || allowed["*"] || allowed[origin]
		},
	}
	return h
}

// Run 处理注册和注销，ctx 取消后关闭所有连接
func (h *ExamHub) Run(ctx context.Context) {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			room, ok := h.rooms[client.TestID]
			if !ok {
				room = make(map[*StreamClient]struct{})
				h.rooms[client.TestID] = room
			}
			room[client] = struct{}{}
			h.mu.Unlock()
			monitoring.StreamClients.Inc()

			// 连上后先推一次当前状态
			if h.Lookup != nil {
				if session, err := h.Lookup(client.TestID); err == nil {
					h.sendInitial(client, session.Snapshot())
				}
			}

		case client := <-h.unregister:
			h.mu.Lock()
			if room, ok := h.rooms[client.TestID]; ok {
				if _, ok := room[client]; ok {
					delete(room, client)
					close(client.Send)
					monitoring.StreamClients.Dec()
				}
				if len(room) == 0 {
					delete(h.rooms, client.TestID)
				}
			}
			h.mu.Unlock()

		case <-ctx.Done():
			close(h.done)
			h.stop()
			return
		}
	}
}

func (h *ExamHub) stop() {
	h.mu.Lock()
	closed := 0
	for testID, room := range h.rooms {
		for client := range room {
			close(client.Send)
			closed++
		}
		delete(h.rooms, testID)
	}
	h.mu.Unlock()

	monitoring.StreamClients.Set(0)
	logger.Log.Info("ExamHub stopped", zap.Int("closedConnections", closed))
}

// sendInitial 注册后补发当前快照；期间已有更新的帧推给该连接时不再补发
func (h *ExamHub) sendInitial(c *StreamClient, snap ExamSnapshot) {
	payload, err := json.Marshal(WSMessage{Type: MsgSnapshot, Data: snap})
	if err != nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.rooms[c.TestID][c]; !ok || !h.acceptLocked(snap) {
		return
	}
	select {
	case c.Send <- payload:
		monitoring.StreamMessageCounter.WithLabelValues(MsgSnapshot, "out").Inc()
	default:
	}
}

// acceptLocked 序号不大于已推送序号的快照是过期帧
func (h *ExamHub) acceptLocked(snap ExamSnapshot) bool {
	if snap.Seq <= h.lastSeq[snap.TestID] {
		return false
	}
	h.lastSeq[snap.TestID] = snap.Seq
	return true
}

// Publish 把快照推给该考试的所有订阅者，过期帧和慢连接直接丢帧
func (h *ExamHub) Publish(snap ExamSnapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.acceptLocked(snap) {
		return
	}
	room := h.rooms[snap.TestID]
	if len(room) == 0 {
		return
	}
	payload, err := json.Marshal(WSMessage{Type: MsgSnapshot, Data: snap})
	if err != nil {
		logger.Log.Error("Failed to encode exam snapshot", zap.Error(err))
		return
	}
	for client := range room {
		select {
		case client.Send <- payload:
			monitoring.StreamMessageCounter.WithLabelValues(MsgSnapshot, "out").Inc()
		default:
		}
	}
}

// Subscribers 当前订阅某场考试的连接数
func (h *ExamHub) Subscribers(testID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[testID])
}

func (h *ExamHub) handleAction(testID string, msg inboundMessage) error {
	if h.Lookup == nil {
		return util.ErrSessionNotFound
	}
	session, err := h.Lookup(testID)
	if err != nil {
		return err
	}

	switch msg.Type {
	case MsgSelectOption:
		var data selectOptionData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			return errors.New("invalid SELECT_OPTION payload")
		}
		_, err = session.SelectOption(data.QuestionID, data.Option)
	case MsgNext:
		err = session.Next()
	case MsgPrev:
		err = session.Prev()
	case MsgFinish:
		err = session.Finish()
	default:
		return errors.New("unknown message type " + msg.Type)
	}
	return err
}

// ServeExamWs 升级连接并订阅 testId 的快照
func ServeExamWs(hub *ExamHub, w http.ResponseWriter, r *http.Request, testID string) {
	conn, err := hub.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Error("WebSocket upgrade failed", zap.Error(err), zap.String("testId", testID))
		return
	}
	client := &StreamClient{
		Hub:     hub,
		Conn:    conn,
		Send:    make(chan []byte, 64),
		TestID:  testID,
		Limiter: rate.NewLimiter(rate.Limit(10), 20),
	}
	select {
	case hub.register <- client:
	case <-hub.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"storyreel-server/modules/common/config"
	"storyreel-server/modules/common/database"
	"storyreel-server/modules/common/gemini"
	"storyreel-server/modules/common/model"
	redisutil "storyreel-server/modules/common/redis"
	"storyreel-server/modules/pipeline"
	"storyreel-server/modules/worker"
)

// WebSocket upgrader
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// 개발용 - 모든 origin 허용
		// 프로덕션에서는 특정 도메인만 허용하도록 수정
		return true
	},
}

// 연결된 클라이언트 정보
type Client struct {
	conn       *websocket.Conn
	pipelineID string
	userID     string
	send       chan []byte
}

// 파이프라인별 구독 룸
type Room struct {
	pipelineID   string
	clients      map[string]*Client
	mutex        sync.RWMutex
	createdAt    time.Time
	lastActivity time.Time
}

// 룸 매니저
type RoomManager struct {
	rooms   map[string]*Room
	mutex   sync.RWMutex
	metrics *ServerMetrics
}

// 서버 메트릭
type ServerMetrics struct {
	TotalRooms       int       `json:"totalRooms"`
	ActiveRooms      int       `json:"activeRooms"`
	TotalConnections int       `json:"totalConnections"`
	StartTime        time.Time `json:"startTime"`
	mutex            sync.RWMutex
}

var roomManager = &RoomManager{
	rooms: make(map[string]*Room),
	metrics: &ServerMetrics{
		StartTime: time.Now(),
	},
}

// 룸 가져오기 또는 생성
func (rm *RoomManager) getOrCreateRoom(pipelineID string) *Room {
	rm.mutex.Lock()
	defer rm.mutex.Unlock()

	room, exists := rm.rooms[pipelineID]
	if !exists {
		now := time.Now()
		room = &Room{
			pipelineID:   pipelineID,
			clients:      make(map[string]*Client),
			createdAt:    now,
			lastActivity: now,
		}
		rm.rooms[pipelineID] = room

		// 메트릭 업데이트
		rm.metrics.mutex.Lock()
		rm.metrics.TotalRooms++
		rm.metrics.ActiveRooms++
		rm.metrics.mutex.Unlock()

		log.Printf("✅ Created progress room for pipeline %s (Total: %d, Active: %d)",
			pipelineID, rm.metrics.TotalRooms, rm.metrics.ActiveRooms)
	}

	room.lastActivity = time.Now()
	return room
}

// 클라이언트를 룸에 추가
func (r *Room) addClient(client *Client) {
	r.mutex.Lock()
	r.clients[client.userID] = client
	r.lastActivity = time.Now()
	clientCount := len(r.clients)
	r.mutex.Unlock()

	roomManager.metrics.mutex.Lock()
	roomManager.metrics.TotalConnections++
	roomManager.metrics.mutex.Unlock()

	log.Printf("👤 Client %s subscribed to pipeline %s (Clients: %d)",
		client.userID, r.pipelineID, clientCount)
}

// 클라이언트를 룸에서 제거
func (r *Room) removeClient(userID string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if client, exists := r.clients[userID]; exists {
		close(client.send)
		delete(r.clients, userID)
		r.lastActivity = time.Now()

		log.Printf("👋 Client %s left pipeline %s (Remaining: %d)", userID, r.pipelineID, len(r.clients))
	}
}

// 룸의 모든 클라이언트에게 이벤트 브로드캐스트
func (r *Room) broadcast(event model.ProgressEvent) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	messageBytes, err := json.Marshal(event)
	if err != nil {
		log.Printf("Error marshaling event: %v", err)
		return
	}

	for userID, client := range r.clients {
		select {
		case client.send <- messageBytes:
		default:
			// 밀린 클라이언트는 건너뜀 - 정리 루틴이 끊어진 연결을 치운다
			log.Printf("⚠️  Client %s on pipeline %s is lagging, dropping event", userID, r.pipelineID)
		}
	}
}

// BroadcastProgress - 워커가 호출하는 진행 이벤트 발행 지점
func (rm *RoomManager) BroadcastProgress(pipelineID string, event model.ProgressEvent) {
	rm.mutex.RLock()
	room, exists := rm.rooms[pipelineID]
	rm.mutex.RUnlock()

	if !exists {
		// 구독자가 없으면 조용히 무시
		return
	}

	room.broadcast(event)
}

// 빈 룸 정리
func (rm *RoomManager) cleanupEmptyRooms() {
	rm.mutex.Lock()
	defer rm.mutex.Unlock()

	cleaned := 0
	for pipelineID, room := range rm.rooms {
		room.mutex.RLock()
		isEmpty := len(room.clients) == 0
		room.mutex.RUnlock()

		if isEmpty {
			delete(rm.rooms, pipelineID)
			cleaned++

			rm.metrics.mutex.Lock()
			rm.metrics.ActiveRooms--
			rm.metrics.mutex.Unlock()
		}
	}

	if cleaned > 0 {
		log.Printf("🧹 Cleaned up %d empty progress rooms (Active: %d)", cleaned, rm.metrics.ActiveRooms)
	}
}

// 만료된 룸 정리 (24시간 후)
func (rm *RoomManager) cleanupExpiredRooms() {
	rm.mutex.Lock()
	defer rm.mutex.Unlock()

	now := time.Now()
	expiredThreshold := 24 * time.Hour
	inactiveThreshold := 2 * time.Hour

	cleaned := 0
	for pipelineID, room := range rm.rooms {
		room.mutex.RLock()
		isExpired := now.Sub(room.createdAt) > expiredThreshold
		isInactive := now.Sub(room.lastActivity) > inactiveThreshold && len(room.clients) == 0
		room.mutex.RUnlock()

		if isExpired || isInactive {
			room.mutex.Lock()
			for userID, client := range room.clients {
				close(client.send)
				log.Printf("🔌 Disconnecting client %s from expired room %s", userID, pipelineID)
			}
			room.mutex.Unlock()

			delete(rm.rooms, pipelineID)
			cleaned++

			rm.metrics.mutex.Lock()
			rm.metrics.ActiveRooms--
			rm.metrics.mutex.Unlock()
		}
	}

	if cleaned > 0 {
		log.Printf("🧼 Cleaned up %d expired/inactive rooms (Active: %d)", cleaned, rm.metrics.ActiveRooms)
	}
}

// 정기적 정리 작업 시작
func (rm *RoomManager) startCleanupRoutine() {
	// 5분마다 빈 룸 정리
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()

		for range ticker.C {
			rm.cleanupEmptyRooms()
		}
	}()

	// 30분마다 만료된 룸 정리
	go func() {
		ticker := time.NewTicker(30 * time.Minute)
		defer ticker.Stop()

		for range ticker.C {
			rm.cleanupExpiredRooms()
		}
	}()

	log.Printf("🔄 Started room cleanup routines (Empty: 5min, Expired: 30min)")
}

// WebSocket 핸들러 - 파이프라인 진행 구독
func handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	pipelineID := r.URL.Query().Get("pipeline")
	userID := r.URL.Query().Get("user")

	if pipelineID == "" || userID == "" {
		log.Printf("Missing pipeline or user parameter")
		conn.Close()
		return
	}

	client := &Client{
		conn:       conn,
		pipelineID: pipelineID,
		userID:     userID,
		send:       make(chan []byte, 256),
	}

	log.Printf("🔍 New WebSocket subscription - Pipeline: %s, User: %s", pipelineID, userID)

	room := roomManager.getOrCreateRoom(pipelineID)
	room.addClient(client)

	// 고루틴으로 읽기/쓰기 처리
	go client.writePump()
	go client.readPump(room)
}

// 클라이언트로부터 메시지 읽기 (구독 유지 + 종료 감지 전용)
func (c *Client) readPump(room *Room) {
	defer func() {
		room.removeClient(c.userID)
		c.conn.Close()
	}()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}
	}
}

// 클라이언트로 메시지 쓰기
func (c *Client) writePump() {
	defer c.conn.Close()

	for message := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			log.Printf("WebSocket write error: %v", err)
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// CORS 헤더 추가
func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// 헬스 체크 엔드포인트
func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"service": "storyreel-pipeline",
	})
}

// 서버 메트릭 조회 엔드포인트
func getMetrics(w http.ResponseWriter, r *http.Request) {
	roomManager.metrics.mutex.RLock()
	totalRooms := roomManager.metrics.TotalRooms
	activeRooms := roomManager.metrics.ActiveRooms
	totalConnections := roomManager.metrics.TotalConnections
	startTime := roomManager.metrics.StartTime
	roomManager.metrics.mutex.RUnlock()

	roomManager.mutex.RLock()
	roomDetails := make([]map[string]interface{}, 0, len(roomManager.rooms))
	totalClients := 0

	for pipelineID, room := range roomManager.rooms {
		room.mutex.RLock()
		clientCount := len(room.clients)
		totalClients += clientCount

		roomDetails = append(roomDetails, map[string]interface{}{
			"pipelineId":   pipelineID,
			"clientCount":  clientCount,
			"createdAt":    room.createdAt,
			"lastActivity": room.lastActivity,
			"age":          time.Since(room.createdAt).String(),
		})
		room.mutex.RUnlock()
	}
	roomManager.mutex.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"server": map[string]interface{}{
			"uptime":           time.Since(startTime).String(),
			"startTime":        startTime,
			"totalRooms":       totalRooms,
			"activeRooms":      activeRooms,
			"totalConnections": totalConnections,
			"currentClients":   totalClients,
		},
		"rooms": roomDetails,
	})
}

func main() {
	// 환경변수 로드
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("❌ Failed to load config: %v", err)
	}

	// 정리 루틴 시작
	roomManager.startCleanupRoutine()

	// Pipeline Queue Worker 시작 (백그라운드)
	go worker.StartWorker(roomManager.BroadcastProgress)

	// API 의존성 초기화
	rdb := redisutil.Connect(cfg)
	if rdb == nil {
		log.Fatal("❌ Failed to connect to Redis")
	}

	dbClient := database.NewClient()
	if dbClient == nil {
		log.Fatal("❌ Failed to initialize Database client")
	}

	genClient := gemini.NewClient(context.Background())
	if genClient == nil {
		log.Fatal("❌ Failed to initialize generation client")
	}

	orch := pipeline.NewOrchestrator(genClient, cfg.PhotoOptionCount, cfg.VideoOptionMax)
	pipelineHandler := pipeline.NewHandler(orch, rdb, dbClient)

	// 라우터 설정
	r := mux.NewRouter()

	// CORS 미들웨어 적용
	r.Use(enableCORS)

	// 라우트 설정
	r.HandleFunc("/", healthCheck).Methods("GET")
	r.HandleFunc("/health", healthCheck).Methods("GET")
	r.HandleFunc("/ws", handleWebSocket)
	r.HandleFunc("/metrics", getMetrics).Methods("GET")
	pipelineHandler.RegisterRoutes(r)

	port := cfg.Port

	log.Printf("🚀 StoryReel Pipeline Server starting on port %s", port)
	log.Printf("📡 WebSocket endpoint: ws://localhost:%s/ws", port)
	log.Printf("❤️  Health check: http://localhost:%s/health", port)
	log.Printf("📊 Metrics: http://localhost:%s/metrics", port)

	// 서버 시작
	if err := http.ListenAndServe(":"+port, r); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}

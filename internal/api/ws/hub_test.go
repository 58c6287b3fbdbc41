package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/your-org/presence/internal/alert"
	"github.com/your-org/presence/internal/models"
	"github.com/your-org/presence/pkg/dto"
)

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.Clients() < n {
		if time.Now().After(deadline) {
			t.Fatalf("clients = %d, want %d", h.Clients(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHub_BroadcastsWithFilter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := NewHub()
	go h.Run(ctx)

	r := gin.New()
	r.GET("/ws", h.HandleWS)
	srv := httptest.NewServer(r)
	defer srv.Close()

	all := dial(t, srv, "")
	alertsOnly := dial(t, srv, "?type=alert")
	waitClients(t, h, 2)

	_ = h.PublishDetections(ctx, models.DetectionTask{Camera: "Main Entrance", Timestamp: time.Now()})
	_ = h.PublishAlert(ctx, alert.Event{Kind: alert.EventCreated, Alert: models.Alert{ID: "a1", Type: models.AlertTypeUnknownPerson}})

	read := func(conn *websocket.Conn) dto.WSEvent {
		t.Helper()
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var ev dto.WSEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		return ev
	}

	if ev := read(all); ev.Type != dto.WSTypeDetection || ev.Camera != "Main Entrance" {
		t.Errorf("first event for unfiltered client = %+v", ev)
	}
	if ev := read(all); ev.Type != dto.WSTypeAlert {
		t.Errorf("second event for unfiltered client = %+v", ev)
	}
	ev := read(alertsOnly)
	if ev.Type != dto.WSTypeAlert || ev.Kind != "created" || ev.Alert == nil || ev.Alert.ID != "a1" {
		t.Errorf("filtered client got %+v", ev)
	}
}

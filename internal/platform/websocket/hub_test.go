package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/pms/pms/internal/platform/events"
)

func newClient(id string, topics ...string) *Client {
	return &Client{ID: id, Topics: topics, Send: make(chan []byte, 256)}
}

// ---------------------------------------------------------------------------
// Hub tests
// ---------------------------------------------------------------------------

func TestHub_RegisterClient(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	hub.Register(newClient("client-1", TopicFor("P001")))

	if hub.ClientCount() != 1 {
		t.Fatalf("expected 1 client, got %d", hub.ClientCount())
	}
	if hub.TopicCount(TopicFor("P001")) != 1 {
		t.Fatalf("expected 1 client on %s, got %d", TopicFor("P001"), hub.TopicCount(TopicFor("P001")))
	}
}

func TestHub_UnregisterClosesChannel(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	client := newClient("client-2", TopicAll)

	hub.Register(client)
	hub.Unregister(client)
	hub.Unregister(client)

	if hub.ClientCount() != 0 || hub.TopicCount(TopicAll) != 0 {
		t.Fatalf("expected empty hub, got %d clients", hub.ClientCount())
	}
	if _, ok := <-client.Send; ok {
		t.Fatal("expected Send channel to be closed")
	}
}

func TestHub_PublishRoutesByTopic(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	all := newClient("all", TopicAll)
	one := newClient("one", TopicFor("P001"))
	other := newClient("other", TopicFor("P002"))
	both := newClient("both", TopicAll, TopicFor("P001"))
	for _, c := range []*Client{all, one, other, both} {
		hub.Register(c)
	}

	evt := events.New(events.TypePatientUpdated, "P001", map[string]string{"city": "Pune"})
	if err := hub.Publish(context.Background(), evt); err != nil {
		t.Fatalf("publish: %v", err)
	}

	for _, c := range []*Client{all, one, both} {
		select {
		case data := <-c.Send:
			var got events.Event
			if err := json.Unmarshal(data, &got); err != nil {
				t.Fatalf("%s: invalid JSON: %v", c.ID, err)
			}
			if got.Type != events.TypePatientUpdated || got.PatientID != "P001" {
				t.Errorf("%s: unexpected event %+v", c.ID, got)
			}
		default:
			t.Errorf("%s: expected an event", c.ID)
		}
	}
	if len(both.Send) != 0 {
		t.Error("client on two matching topics should receive the event once")
	}
	if len(other.Send) != 0 {
		t.Error("client on another patient should receive nothing")
	}
}

func TestHub_BroadcastSkipsFullBuffer(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	slow := &Client{ID: "slow", Topics: []string{TopicAll}, Send: make(chan []byte, 1)}
	hub.Register(slow)

	hub.Broadcast([]byte("one"), TopicAll)
	hub.Broadcast([]byte("two"), TopicAll)

	if got := string(<-slow.Send); got != "one" {
		t.Errorf("expected first message, got %q", got)
	}
}

func TestHub_SubscribeUnsubscribe(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	client := newClient("dyn")
	hub.Register(client)

	hub.ProcessMessage(client, ClientMessage{Action: "subscribe", Topics: []string{TopicAll, TopicFor("P003")}})
	hub.ProcessMessage(client, ClientMessage{Action: "subscribe", Topics: []string{TopicAll}})
	if len(client.Topics) != 2 {
		t.Fatalf("expected 2 topics without duplicates, got %v", client.Topics)
	}
	if hub.TopicCount(TopicFor("P003")) != 1 {
		t.Fatalf("expected subscriber on %s", TopicFor("P003"))
	}

	hub.ProcessMessage(client, ClientMessage{Action: "unsubscribe", Topics: []string{TopicAll}})
	if hub.TopicCount(TopicAll) != 0 {
		t.Fatalf("expected 0 on %s, got %d", TopicAll, hub.TopicCount(TopicAll))
	}
	if len(client.Topics) != 1 || client.Topics[0] != TopicFor("P003") {
		t.Fatalf("unexpected remaining topics %v", client.Topics)
	}

	hub.ProcessMessage(client, ClientMessage{Action: "shout", Topics: []string{"x"}})
	if len(client.Topics) != 1 {
		t.Fatal("unknown action should be ignored")
	}
}

func TestHub_Close(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	a, b := newClient("a", TopicAll), newClient("b", TopicAll)
	hub.Register(a)
	hub.Register(b)

	if err := hub.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if hub.ClientCount() != 0 {
		t.Fatalf("expected no clients, got %d", hub.ClientCount())
	}
	if _, ok := <-a.Send; ok {
		t.Error("expected a.Send closed")
	}
	// A pump unregistering after Close must not panic.
	hub.Unregister(b)
}

func TestHub_ConcurrentRegisterPublish(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			c := newClient("c", TopicAll)
			hub.Register(c)
			hub.Unregister(c)
		}()
		go func() {
			defer wg.Done()
			hub.Publish(context.Background(), events.New(events.TypePatientDeleted, "P001", nil))
		}()
	}
	wg.Wait()
	if hub.ClientCount() != 0 {
		t.Fatalf("expected 0 clients, got %d", hub.ClientCount())
	}
}

// ---------------------------------------------------------------------------
// Handler tests
// ---------------------------------------------------------------------------

func TestHandler_RegisterRoutes(t *testing.T) {
	e := echo.New()
	NewHandler(NewHub(zerolog.Nop()), []string{"*"}).RegisterRoutes(e.Group(""))

	for _, r := range e.Routes() {
		if r.Path == "/ws" && r.Method == http.MethodGet {
			return
		}
	}
	t.Fatal("expected GET /ws route to be registered")
}

func TestHandler_RequiresWebSocket(t *testing.T) {
	handler := NewHandler(NewHub(zerolog.Nop()), []string{"*"})

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	rec := httptest.NewRecorder()

	err := handler.HandleConnect(e.NewContext(req, rec))
	if err == nil && rec.Code == http.StatusSwitchingProtocols {
		t.Fatal("expected upgrade to fail for non-websocket request")
	}
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://clinic.example"})
	cases := map[string]bool{
		"":                       true,
		"https://clinic.example": true,
		"https://CLINIC.example": true,
		"https://evil.example":   false,
	}
	for origin, want := range cases {
		req := httptest.NewRequest(http.MethodGet, "/ws", nil)
		if origin != "" {
			req.Header.Set("Origin", origin)
		}
		if got := check(req); got != want {
			t.Errorf("origin %q: expected %v, got %v", origin, want, got)
		}
	}
}

func dial(t *testing.T, hub *Hub, query string) *gorillawebsocket.Conn {
	t.Helper()
	e := echo.New()
	NewHandler(hub, []string{"*"}).RegisterRoutes(e.Group(""))
	server := httptest.NewServer(e)
	t.Cleanup(server.Close)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws" + query
	conn, resp, err := gorillawebsocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("failed to dial websocket: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("expected 101, got %d", resp.StatusCode)
	}
	return conn
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHandler_FullUpgradeWithDialer(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	conn := dial(t, hub, "?topics="+TopicFor("P009"))

	waitFor(t, func() bool { return hub.TopicCount(TopicFor("P009")) == 1 })
	if hub.TopicCount(TopicAll) != 0 {
		t.Fatal("explicit topics should replace the default")
	}

	if err := conn.WriteJSON(ClientMessage{Action: "subscribe", Topics: []string{TopicAll}}); err != nil {
		t.Fatalf("failed to send subscribe: %v", err)
	}
	waitFor(t, func() bool { return hub.TopicCount(TopicAll) == 1 })

	hub.Publish(context.Background(), events.New(events.TypePatientCreated, "P009", nil))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var received events.Event
	if err := conn.ReadJSON(&received); err != nil {
		t.Fatalf("failed to read event: %v", err)
	}
	if received.Type != events.TypePatientCreated || received.PatientID != "P009" {
		t.Fatalf("unexpected event %+v", received)
	}
}

func TestHandler_DisconnectUnregisters(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	conn := dial(t, hub, "")

	waitFor(t, func() bool { return hub.TopicCount(TopicAll) == 1 })
	conn.Close()
	waitFor(t, func() bool { return hub.ClientCount() == 0 })
}

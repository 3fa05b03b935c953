package hub

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yeremiapane/mealplan-app/models"
)

func startHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	l := logrus.New()
	l.SetOutput(io.Discard)
	h := New(l)

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		h.Register(conn, r.URL.Query().Get("user"), r.URL.Query().Get("all") == "1")
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				h.Unregister(conn)
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return h, srv
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return h.Clients() == n }, time.Second, 10*time.Millisecond)
}

func TestOrderUpdateReachesOwnerAndStaff(t *testing.T) {
	h, srv := startHub(t)
	owner := dial(t, srv, "user=u1")
	other := dial(t, srv, "user=u2")
	staff := dial(t, srv, "user=s1&all=1")
	waitForClients(t, h, 3)

	h.BroadcastOrderUpdate(models.Order{ID: "order-1", UserID: "u1", Status: models.StatusConfirmed})

	for _, conn := range []*websocket.Conn{owner, staff} {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)

		var msg struct {
			Event string       `json:"event"`
			Data  models.Order `json:"data"`
		}
		require.NoError(t, json.Unmarshal(data, &msg))
		assert.Equal(t, EventOrderUpdate, msg.Event)
		assert.Equal(t, "order-1", msg.Data.ID)
	}

	require.NoError(t, other.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	_, _, err := other.ReadMessage()
	assert.Error(t, err)
}

// Package dashboard is the optional debug HTTP server: a JSON stats
// endpoint and a websocket feed of the registry's topic counters,
// polled at a fixed interval and pushed to every connected browser.
// It never touches the wire protocol and exists purely for
// observability.
package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"zaichik/internals/registry"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Dashboard serves the stats page and broadcasts registry snapshots
// to every attached websocket client on a fixed tick.
type Dashboard struct {
	reg *registry.Registry
	log *logrus.Entry

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

// New builds a dashboard over reg. Its HTTP routes are served through
// Router; websocket clients receive snapshots only while Run is
// running.
func New(reg *registry.Registry, log *logrus.Entry) *Dashboard {
	return &Dashboard{
		reg:     reg,
		log:     log,
		clients: make(map[*websocket.Conn]struct{}),
	}
}

// Router builds the dashboard's HTTP mux.
func (d *Dashboard) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/", d.handleHomePage)
	r.Get("/ws", d.handleWebSocket)
	r.Get("/stats", d.handleStats)
	return r
}

// Run pushes a stats snapshot to every attached client every tick,
// until ctx is canceled.
func (d *Dashboard) Run(ctx context.Context, tick time.Duration) {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.closeAll()
			return
		case <-ticker.C:
			d.broadcast(d.reg.Stats())
		}
	}
}

func (d *Dashboard) handleStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(d.reg.Stats()); err != nil {
		d.log.WithError(err).Debug("dashboard: stats encode failed")
	}
}

func (d *Dashboard) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		d.log.WithError(err).Debug("dashboard: websocket upgrade failed")
		return
	}

	d.mu.Lock()
	d.clients[conn] = struct{}{}
	d.mu.Unlock()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			d.mu.Lock()
			delete(d.clients, conn)
			d.mu.Unlock()
			conn.Close()
			return
		}
	}
}

func (d *Dashboard) broadcast(stats []registry.TopicStats) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for conn := range d.clients {
		if err := conn.WriteJSON(stats); err != nil {
			conn.Close()
			delete(d.clients, conn)
		}
	}
}

func (d *Dashboard) closeAll() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for conn := range d.clients {
		conn.Close()
		delete(d.clients, conn)
	}
}

func (d *Dashboard) handleHomePage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	w.Write([]byte(dashboardHTML))
}

const dashboardHTML = `<!DOCTYPE html>
<html lang="en">
<head>
	<meta charset="UTF-8">
	<title>zaichik</title>
</head>
<body>
	<h1>topics</h1>
	<table id="topics"><thead>
		<tr><th>name</th><th>retention (ms)</th><th>compaction (ms)</th><th>retained</th><th>subscribers</th></tr>
	</thead><tbody></tbody></table>
	<script>
		const ws = new WebSocket("ws://" + location.host + "/ws");
		ws.onmessage = function(event) {
			const stats = JSON.parse(event.data);
			const body = document.querySelector("#topics tbody");
			body.innerHTML = "";
			for (const s of stats) {
				const row = document.createElement("tr");
				row.innerHTML = "<td>" + s.Name + "</td><td>" + s.RetentionTTLMs + "</td><td>" +
					s.CompactionWindowMs + "</td><td>" + s.RetainedCount + "</td><td>" + s.SubscriberCount + "</td>";
				body.appendChild(row);
			}
		};
	</script>
</body>
</html>
`

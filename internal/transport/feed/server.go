package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"charttopper.fm/internal/protocol"
	"charttopper.fm/internal/sim/engine"
	"charttopper.fm/internal/sim/model"
)

const (
	defaultTop   = 10
	maxTop       = 200
	defaultQueue = 8
	maxQueue     = 64
)

// Server pushes every finished week to websocket spectators. The game loop
// calls Publish; it never blocks on a slow client.
type Server struct {
	log  *log.Logger
	info protocol.CatalogDigests

	// LoopbackOnly rejects non-local clients.
	LoopbackOnly bool

	upgrader websocket.Upgrader
	nextID   atomic.Uint64
	drops    atomic.Uint64

	mu   sync.Mutex
	game protocol.GameInfo
	subs map[string]*subscriber
}

type subscriber struct {
	charts []model.ChartID
	top    int
	out    chan []byte
}

func NewServer(info protocol.CatalogDigests, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Server{
		log:  logger,
		info: info,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		subs: map[string]*subscriber{},
	}
}

// SetGame records the state new subscribers are welcomed with.
func (s *Server) SetGame(st model.State) {
	s.mu.Lock()
	s.game = gameInfo(st)
	s.mu.Unlock()
}

func (s *Server) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// Dropped counts WEEK messages not delivered because a client queue was full.
func (s *Server) Dropped() uint64 { return s.drops.Load() }

// Publish sends res to every subscriber, shaped by its subscription.
func (s *Server) Publish(res engine.WeekResult) {
	s.mu.Lock()
	s.game = gameInfo(res.State)
	subs := make([]*subscriber, 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	encoded := map[string][]byte{}
	for _, sub := range subs {
		key := fmt.Sprint(sub.charts, sub.top)
		b, ok := encoded[key]
		if !ok {
			var err error
			b, err = json.Marshal(BuildWeek(res, sub.charts, sub.top))
			if err != nil {
				s.log.Printf("feed: encode week %d: %v", res.State.Week, err)
				return
			}
			encoded[key] = b
		}
		select {
		case sub.out <- b:
		default:
			s.drops.Add(1)
		}
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if s.LoopbackOnly && !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		sid, sub := s.handshake(conn)
		if sid == "" {
			return
		}
		s.mu.Lock()
		s.subs[sid] = sub
		s.mu.Unlock()
		defer func() {
			s.mu.Lock()
			delete(s.subs, sid)
			s.mu.Unlock()
		}()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Writer goroutine.
		writeErr := make(chan error, 1)
		go func() {
			for {
				select {
				case <-ctx.Done():
					writeErr <- ctx.Err()
					return
				case b := <-sub.out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						writeErr <- err
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop: only detects the client going away.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
			if ctx.Err() != nil {
				break
			}
		}

		cancel()
		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func (s *Server) handshake(conn *websocket.Conn) (string, *subscriber) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return "", nil
	}
	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeSubscribe {
		reject(conn, protocol.ErrProtoBadRequest, "expected SUBSCRIBE")
		return "", nil
	}
	var req protocol.SubscribeMsg
	if err := json.Unmarshal(msg, &req); err != nil {
		reject(conn, protocol.ErrProtoBadRequest, "bad subscribe")
		return "", nil
	}
	if req.ProtocolVersion != protocol.Version {
		reject(conn, protocol.ErrProtoVersion, "bad protocol_version")
		return "", nil
	}
	charts, err := parseCharts(req.Charts)
	if err != nil {
		reject(conn, protocol.ErrUnknownChart, err.Error())
		return "", nil
	}

	sub := &subscriber{
		charts: charts,
		top:    clamp(req.Top, defaultTop, maxTop),
		out:    make(chan []byte, clamp(req.MaxQueue, defaultQueue, maxQueue)),
	}
	sid := fmt.Sprintf("S%d", s.nextID.Add(1))

	s.mu.Lock()
	game := s.game
	s.mu.Unlock()
	names := make([]string, len(charts))
	for i, c := range charts {
		names[i] = string(c)
	}
	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       sid,
		Game:            game,
		Catalogs:        s.info,
		Charts:          names,
		Top:             sub.top,
	}
	if err := writeJSON(conn, welcome); err != nil {
		return "", nil
	}
	s.log.Printf("feed: %s subscribed name=%q charts=%v top=%d", sid, req.ClientName, names, sub.top)
	return sid, sub
}

// BuildWeek shapes a week result for the wire: the first top rows of each
// requested chart plus the player's notifications and posts.
func BuildWeek(res engine.WeekResult, charts []model.ChartID, top int) protocol.WeekMsg {
	st := res.State
	msg := protocol.WeekMsg{
		Type:            protocol.TypeWeek,
		ProtocolVersion: protocol.Version,
		Week:            st.Week,
		Date:            st.Date.Format("2006-01-02"),
		Digest:          res.Digest,
		Charts:          map[string][]protocol.ChartRow{},
		Player: protocol.PlayerRow{
			Name:             st.Player.Name,
			Money:            st.Player.Money,
			MonthlyListeners: st.Player.MonthlyListeners,
			Reputation:       st.Player.Reputation,
			Hot100Streak:     st.Player.Hot100StreakWeeks,
		},
	}
	for _, id := range charts {
		entries := st.Charts.Get(id)
		if top > 0 && len(entries) > top {
			entries = entries[:top]
		}
		rows := make([]protocol.ChartRow, 0, len(entries))
		for _, e := range entries {
			rows = append(rows, protocol.ChartRow{
				Rank:         e.Rank,
				EntityID:     e.EntityID,
				Title:        e.Title,
				Artist:       e.Artist,
				NPC:          e.NPC,
				Units:        e.Units,
				LastWeek:     e.LastWeek,
				Peak:         e.Peak,
				WeeksOnChart: e.WeeksOnChart,
				Movement:     string(e.Movement),
			})
		}
		msg.Charts[string(id)] = rows
	}
	for _, n := range res.Notifications {
		msg.Notifications = append(msg.Notifications, protocol.NotificationRow{ID: n.ID, Category: n.Category, Message: n.Message})
	}
	for _, p := range res.Posts {
		msg.Posts = append(msg.Posts, protocol.PostRow{
			ID: p.ID, Kind: string(p.Kind), Handle: p.Handle, Message: p.Message, Likes: p.Likes, Reposts: p.Reposts,
		})
	}
	return msg
}

func parseCharts(names []string) ([]model.ChartID, error) {
	if len(names) == 0 {
		return append([]model.ChartID(nil), model.ChartIDs...), nil
	}
	known := map[model.ChartID]int{}
	for i, id := range model.ChartIDs {
		known[id] = i
	}
	seen := map[model.ChartID]bool{}
	var out []model.ChartID
	for _, n := range names {
		id := model.ChartID(strings.TrimSpace(n))
		if _, ok := known[id]; !ok {
			return nil, fmt.Errorf("unknown chart %q", n)
		}
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return known[out[i]] < known[out[j]] })
	return out, nil
}

func gameInfo(st model.State) protocol.GameInfo {
	return protocol.GameInfo{
		Seed:       st.Seed,
		Week:       st.Week,
		Date:       st.Date.Format("2006-01-02"),
		Player:     st.Player.Name,
		Difficulty: st.Player.Difficulty,
	}
}

func clamp(v, def, limit int) int {
	if v <= 0 {
		return def
	}
	if v > limit {
		return limit
	}
	return v
}

func reject(conn *websocket.Conn, code, message string) {
	_ = writeJSON(conn, protocol.ErrorMsg{
		Type:            protocol.TypeError,
		ProtocolVersion: protocol.Version,
		Code:            code,
		Message:         message,
	})
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, code), time.Now().Add(time.Second))
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

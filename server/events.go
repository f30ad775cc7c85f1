package server

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"proposal_wizard/generator"
)

const (
	pingInterval = 30 * time.Second
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     sameOrigin,
}

// sameOrigin accepts non-browser clients, which send no Origin, and pages served by this host.
func sameOrigin(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

type proposalEvent struct {
	Type string             `json:"type"`
	Data generator.Proposal `json:"data"`
}

// handleEvents streams the proposal over a websocket: the current state first, then
// every saved change until the client disconnects.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	prop, ok, err := s.proposals.Proposal(r.Context(), id)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	if !ok {
		s.writeFailure(w, fmt.Errorf("%w: %s", errProposalNotFound, id))
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	updates, err := s.proposals.Watch(ctx, id)
	if err != nil {
		s.writeFailure(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("websocket upgrade failed", "proposal", id, "err", err)
		return
	}
	defer conn.Close()
	log := s.log.With("proposal", id)
	log.Info("event stream opened")
	defer log.Info("event stream closed")

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))

	// Single writer: proposal updates and pings.
	go func() {
		defer cancel()
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()

		send := func(p generator.Proposal) error {
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			return conn.WriteJSON(proposalEvent{Type: "proposal", Data: p})
		}
		if err := send(prop); err != nil {
			return
		}
		for {
			select {
			case <-ctx.Done():
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
				return
			case p, ok := <-updates:
				if !ok {
					return
				}
				if err := send(p); err != nil {
					log.Debug("event write failed", "err", err)
					return
				}
			case <-ticker.C:
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	// Clients send nothing meaningful; reading detects the close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

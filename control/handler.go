package control

import (
	"net/http"
	"net/netip"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/gorilla/websocket"
	"github.com/lysShub/gamecap"
	"github.com/lysShub/netkit/errorx"
	"github.com/pkg/errors"
)

type StartRequest struct {
	GameID string         `json:"gameId" binding:"required"`
	Tunnel *TunnelRequest `json:"tunnelConfig" binding:"required"`
}

type TunnelRequest struct {
	NodeIP         string `json:"nodeIp" binding:"required,ip"`
	NodePort       int    `json:"nodePort" binding:"required,min=1,max=65535"`
	SessionID      string `json:"sessionId"`
	Enabled        bool   `json:"enabled"`
	LocalProxyPort int    `json:"localProxyPort" binding:"omitempty,min=1,max=65535"`
}

func (t *TunnelRequest) config() (gamecap.TunnelConfig, error) {
	addr, err := netip.ParseAddr(t.NodeIP)
	if err != nil {
		return gamecap.TunnelConfig{}, errors.WithStack(err)
	}
	return gamecap.TunnelConfig{
		NodeIP:         addr.Unmap(),
		NodePort:       uint16(t.NodePort),
		SessionID:      t.SessionID,
		Enabled:        t.Enabled,
		LocalProxyPort: uint16(t.LocalProxyPort),
	}, nil
}

type GameRequest struct {
	GameID   string   `json:"gameId" binding:"required"`
	Name     string   `json:"name"`
	Keywords []string `json:"processKeywords"`
	Ports    []int    `json:"defaultPorts" binding:"dive,min=1,max=65535"`
}

func (g *GameRequest) game() gamecap.Game {
	var ports = make([]uint16, 0, len(g.Ports))
	for _, e := range g.Ports {
		ports = append(ports, uint16(e))
	}
	return gamecap.Game{ID: g.GameID, Name: g.Name, Keywords: g.Keywords, Ports: ports}
}

func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

func (s *Server) initialize(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": s.engine.Initialize()})
}

func (s *Server) startCapture(c *gin.Context) {
	var req StartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	tunnel, err := req.Tunnel.config()
	if err != nil {
		badRequest(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": s.engine.Start(req.GameID, tunnel)})
}

func (s *Server) stopCapture(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": s.engine.Stop()})
}

func (s *Server) isCapturing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"capturing": s.engine.IsCapturing()})
}

func (s *Server) isGameRunning(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"running": s.engine.IsAppRunning(c.Param("id"))})
}

func (s *Server) setGameDatabase(c *gin.Context) {
	var reqs []GameRequest
	if err := c.ShouldBindJSON(&reqs); err != nil {
		badRequest(c, err)
		return
	}

	var entries = make([]gamecap.Game, 0, len(reqs))
	for i := range reqs {
		if err := binding.Validator.ValidateStruct(&reqs[i]); err != nil {
			badRequest(c, errors.WithMessagef(err, "game %d", i))
			return
		}
		entries = append(entries, reqs[i].game())
	}
	s.engine.SetAppDatabase(entries)
	c.Status(http.StatusNoContent)
}

func (s *Server) getMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.Metrics())
}

func (s *Server) status(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.Status())
}

// streamMetrics push metrics snapshot periodically until the peer closed.
func (s *Server) streamMetrics(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.config.Logger.Warn(err.Error(), errorx.Trace(err))
		return
	}
	defer conn.Close()

	var peerClosed = make(chan struct{})
	go func() {
		defer close(peerClosed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	var ticker = time.NewTicker(s.config.StreamInterval)
	defer ticker.Stop()
	for {
		conn.SetWriteDeadline(time.Now().Add(s.config.StreamInterval + time.Second))
		if err := conn.WriteJSON(s.engine.Metrics()); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.config.Logger.Debug(err.Error())
			}
			return
		}

		select {
		case <-ticker.C:
		case <-peerClosed:
			return
		case <-s.closed:
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
			return
		}
	}
}

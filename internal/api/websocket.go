package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// logStreamUpgrader upgrades a dashboard connection onto a build's live
// log stream.
var logStreamUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// BuildLogStream streams a build's log lines over a websocket as they are
// published, replaying nothing from before the connection joined (spec
// §4.1, "Log fan-out"; spec §6, "GET /builds/:id/logs/stream"). Modeled on
// the teacher repo's internal/api/websocket.go container-log streamer.
func (h *Handlers) BuildLogStream(c *gin.Context) {
	buildID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	conn, err := logStreamUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade build log stream")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	messages, unsubscribe := h.hub.Subscribe(buildID)
	defer unsubscribe()

	go func() {
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				if err := conn.WriteJSON(gin.H{
					"build_id":  buildID.String(),
					"level":     msg.Level,
					"data":      msg.Text,
					"timestamp": msg.Timestamp,
				}); err != nil {
					log.Debug().Err(err).Msg("error writing to build log stream")
					return
				}
			}
		}
	}()

	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			log.Debug().Err(err).Msg("build log stream connection closed")
			break
		}
	}
}

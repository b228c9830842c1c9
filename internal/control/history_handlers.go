package control

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/corestate/statecraft/internal/errs"
	"github.com/corestate/statecraft/internal/history"
	"github.com/corestate/statecraft/internal/platform/telemetry"
)

// HistoryHandler exposes read access to the collapsed execution history
// over HTTP: ingest-on-demand into the workspace's secondary
// index, then query by state name.
type HistoryHandler struct {
	ws *Workspace
}

func NewHistoryHandler(ws *Workspace) *HistoryHandler {
	return &HistoryHandler{ws: ws}
}

// GET /history?state_name=foo
//
// Rebuilds the collapse over the live in-memory log, ingests it into the
// configured secondary index (sqlite or postgres, see
// internal/history.OpenIndex / OpenIndexPostgres), and returns every
// collapsed record matching state_name, most recent first.
func (h *HistoryHandler) ByStateName(c *gin.Context) {
	name := c.Query("state_name")
	if name == "" {
		fail(c, errs.InvalidStructure("control.HistoryByStateName", fmt.Errorf("state_name query parameter is required")))
		return
	}
	if h.ws.Index == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no history index configured"})
		return
	}
	_, span := telemetry.StartHistoryOp(c.Request.Context(), "collapse")
	collapse := history.Build(h.ws.Log.Items())
	err := h.ws.Index.Ingest(collapse)
	span.End()
	if err != nil {
		fail(c, err)
		return
	}
	rows, err := h.ws.Index.ByStateName(name)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": rows})
}

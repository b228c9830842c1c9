package control

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/corestate/statecraft/internal/engine"
	"github.com/corestate/statecraft/internal/history"
)

// EngineHandler exposes the engine control surface over HTTP.
type EngineHandler struct {
	ws *Workspace
}

func NewEngineHandler(ws *Workspace) *EngineHandler {
	return &EngineHandler{ws: ws}
}

// POST /engine/start
func (h *EngineHandler) Start(c *gin.Context) {
	if err := h.ws.Start(); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": h.ws.Engine.Status()})
}

// POST /engine/stop
func (h *EngineHandler) Stop(c *gin.Context) {
	h.ws.Engine.Stop()
	c.JSON(http.StatusOK, gin.H{"status": h.ws.Engine.Status()})
}

// POST /engine/pause
func (h *EngineHandler) Pause(c *gin.Context) {
	h.ws.Engine.Pause()
	c.JSON(http.StatusOK, gin.H{"status": h.ws.Engine.Status()})
}

// POST /engine/resume
func (h *EngineHandler) Resume(c *gin.Context) {
	h.ws.Engine.Resume()
	c.JSON(http.StatusOK, gin.H{"status": h.ws.Engine.Status()})
}

// POST /engine/step/into|over|out?depth=N
func (h *EngineHandler) step(mode engine.StepMode) gin.HandlerFunc {
	return func(c *gin.Context) {
		depth, _ := strconv.Atoi(c.Query("depth"))
		h.ws.Engine.Step(mode, depth)
		c.JSON(http.StatusOK, gin.H{"status": h.ws.Engine.Status()})
	}
}

func (h *EngineHandler) StepInto(c *gin.Context) { h.step(engine.StepInto)(c) }
func (h *EngineHandler) StepOver(c *gin.Context) { h.step(engine.StepOver)(c) }
func (h *EngineHandler) StepOut(c *gin.Context)  { h.step(engine.StepOut)(c) }

// POST /engine/step/backward
//
// Pauses the engine, unwinds the live log to the most recent non-cancelled
// call, and reports where execution would resume. The persisted log is
// untouched.
func (h *EngineHandler) StepBackward(c *gin.Context) {
	if h.ws.Log == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no history log attached"})
		return
	}
	h.ws.Engine.Pause()
	target, err := history.StepBackward(h.ws.Log)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":     h.ws.Engine.Status(),
		"state_path": target.StatePath,
	})
}

// GET /engine/status
func (h *EngineHandler) Status(c *gin.Context) {
	outcome, runErr := h.ws.LastRun()
	resp := gin.H{
		"status":              h.ws.Engine.Status(),
		"finished_or_stopped": h.ws.Engine.FinishedOrStopped(),
		"last_outcome":        outcome,
	}
	if runErr != nil {
		resp["last_error"] = runErr.Error()
	}
	c.JSON(http.StatusOK, resp)
}

package control

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/corestate/statecraft/internal/clipboard"
	"github.com/corestate/statecraft/internal/errs"
	"github.com/corestate/statecraft/internal/platform/telemetry"
	"github.com/corestate/statecraft/internal/selection"
)

// ClipboardHandler exposes the selection/clipboard control surface.
// Every mutating route is gated on the engine being stopped.
type ClipboardHandler struct {
	ws *Workspace
}

func NewClipboardHandler(ws *Workspace) *ClipboardHandler {
	return &ClipboardHandler{ws: ws}
}

type selectRequest struct {
	States      []string `json:"states"`
	Outcomes    []string `json:"outcomes"`
	InputPorts  []string `json:"input_ports"`
	OutputPorts []string `json:"output_ports"`
	ScopedVars  []string `json:"scoped_variables"`
	Transitions []string `json:"transitions"`
	DataFlows   []string `json:"data_flows"`
}

// POST /selection
func (h *ClipboardHandler) SetSelection(c *gin.Context) {
	var req selectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, errs.InvalidStructure("control.SetSelection", err))
		return
	}
	h.ws.Selection.Set(map[selection.Kind][]string{
		selection.KindState:          req.States,
		selection.KindOutcome:        req.Outcomes,
		selection.KindInputPort:      req.InputPorts,
		selection.KindOutputPort:     req.OutputPorts,
		selection.KindScopedVariable: req.ScopedVars,
		selection.KindTransition:     req.Transitions,
		selection.KindDataFlow:       req.DataFlows,
	})
	c.JSON(http.StatusOK, gin.H{"states": h.ws.Selection.States()})
}

// POST /clipboard/copy
func (h *ClipboardHandler) Copy(c *gin.Context) {
	if err := h.ws.requireStopped("control.Copy"); err != nil {
		fail(c, err)
		return
	}
	if err := h.ws.Clipboard.Copy(h.ws.SM.Root, h.ws.Selection); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"empty": h.ws.Clipboard.Empty()})
}

// POST /clipboard/cut
func (h *ClipboardHandler) Cut(c *gin.Context) {
	if err := h.ws.requireStopped("control.Cut"); err != nil {
		fail(c, err)
		return
	}
	if err := h.ws.Clipboard.Cut(h.ws.SM.Root, h.ws.Selection); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"empty": h.ws.Clipboard.Empty()})
}

type targetRequest struct {
	TargetStateID string `json:"target_state_id" binding:"required"`
}

// POST /clipboard/paste
func (h *ClipboardHandler) Paste(c *gin.Context) {
	if err := h.ws.requireStopped("control.Paste"); err != nil {
		fail(c, err)
		return
	}
	var req targetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, errs.InvalidStructure("control.Paste", err))
		return
	}
	target, ok := selection.IndexStates(h.ws.SM.Root)[req.TargetStateID]
	if !ok {
		fail(c, errs.InvalidStructure("control.Paste", fmt.Errorf("target state %q not found", req.TargetStateID)))
		return
	}
	_, span := telemetry.StartClipboardOp(c.Request.Context(), "paste")
	err := h.ws.Clipboard.Paste(target)
	span.End()
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"target_state_id": target.ID})
}

// POST /clipboard/group
func (h *ClipboardHandler) Group(c *gin.Context) {
	if err := h.ws.requireStopped("control.Group"); err != nil {
		fail(c, err)
		return
	}
	_, span := telemetry.StartClipboardOp(c.Request.Context(), "group")
	group, err := clipboard.Group(h.ws.SM.Root, h.ws.Selection)
	span.End()
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"group_state_id": group.ID})
}

type ungroupRequest struct {
	GroupStateID string             `json:"group_state_id" binding:"required"`
	MetaData     clipboard.MetaData `json:"meta_data"`
}

// POST /clipboard/ungroup
func (h *ClipboardHandler) Ungroup(c *gin.Context) {
	if err := h.ws.requireStopped("control.Ungroup"); err != nil {
		fail(c, err)
		return
	}
	var req ungroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, errs.InvalidStructure("control.Ungroup", err))
		return
	}
	group, ok := selection.IndexStates(h.ws.SM.Root)[req.GroupStateID]
	if !ok {
		fail(c, errs.InvalidStructure("control.Ungroup", fmt.Errorf("group state %q not found", req.GroupStateID)))
		return
	}
	if err := clipboard.Ungroup(group, req.MetaData); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"parent_state_id": group.Parent.ID})
}

type substituteRequest struct {
	TargetStateID      string `json:"target_state_id" binding:"required"`
	ReplacementStateID string `json:"replacement_state_id" binding:"required"`
	KeepName           bool   `json:"keep_name"`
}

// POST /clipboard/substitute
func (h *ClipboardHandler) Substitute(c *gin.Context) {
	if err := h.ws.requireStopped("control.Substitute"); err != nil {
		fail(c, err)
		return
	}
	var req substituteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, errs.InvalidStructure("control.Substitute", err))
		return
	}
	index := selection.IndexStates(h.ws.SM.Root)
	target, ok := index[req.TargetStateID]
	if !ok {
		fail(c, errs.InvalidStructure("control.Substitute", fmt.Errorf("target state %q not found", req.TargetStateID)))
		return
	}
	replacement, ok := index[req.ReplacementStateID]
	if !ok {
		fail(c, errs.InvalidStructure("control.Substitute", fmt.Errorf("replacement state %q not found", req.ReplacementStateID)))
		return
	}
	if err := clipboard.Substitute(target, replacement, clipboard.SubstituteOptions{KeepName: req.KeepName}); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state_id": target.ID})
}

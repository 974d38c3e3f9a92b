package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/basegraphhq/researchd/internal/http/dto"
	"github.com/basegraphhq/researchd/internal/progress"
	"github.com/basegraphhq/researchd/internal/research"
)

// ResearchHandler exposes the orchestrator over HTTP. The single endpoint
// streams progress events as SSE while the run is in flight and closes with
// a terminal `result` event carrying the document (or the error).
type ResearchHandler struct {
	orch *research.Orchestrator
}

func NewResearchHandler(orch *research.Orchestrator) *ResearchHandler {
	return &ResearchHandler{orch: orch}
}

// Run handles POST /research. The response is an SSE stream: zero or more
// `progress` events followed by exactly one `result` event.
func (h *ResearchHandler) Run(c *gin.Context) {
	var req dto.ResearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query is required"})
		return
	}

	setSSEHeaders(c.Writer)
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming not supported"})
		return
	}

	ctx := c.Request.Context()

	prog := progress.New()
	events := make(chan progress.Event, 64)
	prog.Subscribe(events)

	type outcome struct {
		document string
		err      error
	}
	done := make(chan outcome, 1)
	go func() {
		document, err := h.orch.Research(ctx, req.Query, prog)
		done <- outcome{document: document, err: err}
	}()

	for {
		select {
		case <-ctx.Done():
			// Client went away; the request context cancellation unwinds
			// the run itself.
			return
		case ev := <-events:
			sseWrite(c.Writer, "progress", dto.ProgressEvent{
				Kind:      string(ev.Kind),
				Iteration: ev.Iteration,
				Round:     ev.Round,
				Count:     ev.Count,
				Role:      ev.Role,
				Detail:    ev.Detail,
			})
			flusher.Flush()
		case out := <-done:
			// Drain whatever the run emitted before it returned.
			for {
				select {
				case ev := <-events:
					sseWrite(c.Writer, "progress", dto.ProgressEvent{
						Kind:      string(ev.Kind),
						Iteration: ev.Iteration,
						Round:     ev.Round,
						Count:     ev.Count,
						Role:      ev.Role,
						Detail:    ev.Detail,
					})
					flusher.Flush()
				default:
					result := dto.ResearchResult{Document: out.document}
					if out.err != nil {
						result = dto.ResearchResult{Error: out.err.Error()}
					}
					sseWrite(c.Writer, "result", result)
					flusher.Flush()
					return
				}
			}
		}
	}
}

func setSSEHeaders(w http.ResponseWriter) {
	headers := w.Header()
	headers.Set("Content-Type", "text/event-stream")
	headers.Set("Cache-Control", "no-cache")
	headers.Set("Connection", "keep-alive")
	headers.Set("X-Accel-Buffering", "no")
}

func sseWrite(w http.ResponseWriter, event string, data any) {
	payload := marshalPayload(data)
	if event != "" {
		_, _ = fmt.Fprintf(w, "event: %s\n", event)
	}
	for _, line := range strings.Split(payload, "\n") {
		_, _ = fmt.Fprintf(w, "data: %s\n", line)
	}
	_, _ = fmt.Fprint(w, "\n")
}

func marshalPayload(data any) string {
	switch payload := data.(type) {
	case string:
		return payload
	case []byte:
		return string(payload)
	default:
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Sprintf(`{"error":%q}`, err.Error())
		}
		return string(encoded)
	}
}

package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"spectroctl/internal/service"
)

const (
	errFromInvalid = "invalid 'from' time; use RFC3339 or YYYY-MM-DD"
	errToInvalid   = "invalid 'to' time; use RFC3339 or YYYY-MM-DD"

	layoutDateTime = "2006-01-02 15:04:05"
	layoutDate     = "2006-01-02"
)

// logbookRequest is the POST payload. Author defaults to the authenticated
// operator when omitted.
type logbookRequest struct {
	Text   string `json:"text" binding:"required"`
	Author string `json:"author,omitempty"`
	Meta   any    `json:"meta,omitempty"`
}

// @Summary      Append a logbook entry
// @Tags         logbook
// @Accept       json
// @Produce      json
// @Param        body  body  logbookRequest  true  "Entry"
// @Success      200  {object}  map[string]string
// @Failure      400  {object}  map[string]string
// @Failure      401  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/logbook [post]
// @Security     BearerAuth
func (h *Handler) postLogbook(c *gin.Context) {
	var req logbookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body: " + err.Error()})
		return
	}
	author := req.Author
	if author == "" {
		if id := c.GetInt(ctxOperatorID); id > 0 {
			author = fmt.Sprintf("operator-%d", id)
		}
	}
	if err := h.services.Logbook.Append(c.Request.Context(), author, req.Text, req.Meta); err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, "failed to append logbook entry", "logbook_append_failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": statusOK})
}

// isDateOnly reports whether the query string has no time component.
func isDateOnly(s string) bool {
	return !strings.ContainsAny(s, "T ")
}

// @Summary      List logbook entries
// @Description  Filter by date (RFC3339, 'YYYY-MM-DD HH:MM:SS', or 'YYYY-MM-DD'). A date-only 'to' is treated as end-of-day inclusive.
// @Tags         logbook
// @Produce      json
// @Param        from  query  string  false  "Start of range"  example(2026-08-01)
// @Param        to    query  string  false  "End of range"    example(2026-08-31)
// @Success      200  {object}  map[string]interface{}  "count, events"
// @Failure      400  {object}  map[string]string
// @Failure      401  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/logbook [get]
// @Security     BearerAuth
func (h *Handler) getLogbook(c *gin.Context) {
	var (
		from time.Time
		to   time.Time
		err  error
	)
	if qs := c.Query("from"); qs != "" {
		from, err = parseQueryTime(qs)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": errFromInvalid})
			return
		}
	}
	if qs := c.Query("to"); qs != "" {
		to, err = parseQueryTime(qs)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": errToInvalid})
			return
		}
		if isDateOnly(qs) {
			to = to.Add(24*time.Hour - time.Nanosecond).UTC()
		}
	}
	if !from.IsZero() && !to.IsZero() && from.After(to) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "'from' must be <= 'to'"})
		return
	}

	events, err := h.services.Logbook.List(c.Request.Context(), service.LogFilter{From: from, To: to})
	if err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, "failed to load logbook", "logbook_list_failed", err,
			"from", from, "to", to)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count":  len(events),
		"events": events,
	})
}

func parseQueryTime(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, layoutDateTime, layoutDate} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid time format %q", s)
}

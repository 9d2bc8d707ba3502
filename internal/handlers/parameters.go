package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"spectroctl/internal/controls"
	"spectroctl/internal/service"
)

const (
	statusOK = "ok"

	errGetParameter = "failed to read parameter"
	errSetParameter = "failed to write parameter"
	errGetStates    = "failed to load converter states"
)

// logAndJSONError logs the underlying error and answers with a user message.
func (h *Handler) logAndJSONError(c *gin.Context, httpCode int, userMsg, logKey string, err error, kv ...interface{}) {
	if h.log != nil && err != nil {
		fields := append([]interface{}{"err", err}, kv...)
		h.log.Errorw(logKey, fields...)
	}
	c.JSON(httpCode, gin.H{"error": userMsg})
}

// paramName extracts the parameter name from the wildcard route segment.
func paramName(c *gin.Context) string {
	return strings.TrimPrefix(c.Param("name"), "/")
}

// @Summary      Health check
// @Tags         system
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /health [get]
func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": statusOK})
}

// @Summary      Read a parameter
// @Description  Name is DEVICE/FIELD, e.g. RPPEF.BB4.RBIH.412435/STATE
// @Tags         parameters
// @Produce      json
// @Param        name  path  string  true  "Parameter name"
// @Success      200  {object}  controls.Value
// @Failure      401  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /api/v1/parameters/{name} [get]
// @Security     BearerAuth
func (h *Handler) getParameter(c *gin.Context) {
	name := paramName(c)
	v, err := h.services.Parameters.Read(c.Request.Context(), name)
	if err != nil {
		h.respondParameterError(c, errGetParameter, "parameter_read_failed", name, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

// @Summary      Write a parameter
// @Tags         parameters
// @Accept       json
// @Produce      json
// @Param        name  path  string          true  "Parameter name"
// @Param        body  body  controls.Value  true  "Value to write"
// @Success      200  {object}  map[string]string
// @Failure      400  {object}  map[string]string
// @Failure      401  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /api/v1/parameters/{name} [put]
// @Security     BearerAuth
func (h *Handler) setParameter(c *gin.Context) {
	var v controls.Value
	if err := c.ShouldBindJSON(&v); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body: " + err.Error()})
		return
	}
	name := paramName(c)
	if err := h.services.Parameters.Write(c.Request.Context(), name, v); err != nil {
		h.respondParameterError(c, errSetParameter, "parameter_write_failed", name, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": statusOK})
}

// respondParameterError maps service rejections onto HTTP codes. Rejections
// keep their own message so clients can report the reason verbatim.
func (h *Handler) respondParameterError(c *gin.Context, userMsg, logKey, name string, err error) {
	switch {
	case errors.Is(err, service.ErrUnknownDevice), errors.Is(err, service.ErrUnknownField):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrInvalidWrite), errors.Is(err, service.ErrNotArmed):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.logAndJSONError(c, http.StatusInternalServerError, userMsg, logKey, err, "name", name)
	}
}

// @Summary      List converter states
// @Tags         parameters
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      401  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/states [get]
// @Security     BearerAuth
func (h *Handler) getStates(c *gin.Context) {
	states, err := h.services.Monitoring.States(c.Request.Context())
	if err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, errGetStates, "states_list_failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count":  len(states),
		"states": states,
	})
}

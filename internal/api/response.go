package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	"flashloan-executor/internal/domain"
	"flashloan-executor/internal/registry"
	"flashloan-executor/internal/storage"
)

type apiResponse struct {
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Data    any            `json:"data,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
}

func ok(c *gin.Context, data any, meta map[string]any) {
	c.JSON(http.StatusOK, apiResponse{Code: 0, Message: "ok", Data: data, Meta: meta})
}

func fail(c *gin.Context, status int, message string) {
	c.JSON(status, apiResponse{Code: status, Message: message})
}

// failErr maps err onto a status. Unknown records are 404, other
// precondition violations 400, venue errors 422, anything else 500.
func failErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, registry.ErrStrategyNotFound), errors.Is(err, storage.ErrNotFound):
		fail(c, http.StatusNotFound, err.Error())
	case domain.IsKind(err, domain.KindPrecondition), errors.Is(err, storage.ErrInvalidInput):
		fail(c, http.StatusBadRequest, err.Error())
	case domain.IsKind(err, domain.KindVenue):
		fail(c, http.StatusUnprocessableEntity, err.Error())
	default:
		fail(c, http.StatusInternalServerError, err.Error())
	}
}

func addressParam(c *gin.Context, raw string) (common.Address, bool) {
	raw = strings.TrimSpace(raw)
	if !common.IsHexAddress(raw) {
		fail(c, http.StatusBadRequest, "invalid address "+strconv.Quote(raw))
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

func idParam(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		fail(c, http.StatusBadRequest, "invalid strategy id")
		return 0, false
	}
	return id, true
}

func intQuery(c *gin.Context, key string, def int) int {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

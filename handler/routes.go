package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"decision-simulator/internal/usecase"
)

// simulateRequest accepts age as a JSON number or a numeric string.
type simulateRequest struct {
	Name        string          `json:"name"`
	Age         json.RawMessage `json:"age"`
	Personality string          `json:"personality"`
	Decision    string          `json:"decision"`
}

type deleteResponse struct {
	Success bool `json:"success"`
}

func (h *Handler) register(r *gin.Engine) {
	api := r.Group("/api")
	api.POST("/simulate", h.simulate)
	api.GET("/simulations/:id", h.getSimulation)
	api.DELETE("/simulations/:id", h.deleteSimulation)
	api.GET("/simulations-history", h.history)

	r.NoRoute(func(c *gin.Context) {
		abort(c, http.StatusNotFound, usecase.ErrorNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		abort(c, http.StatusMethodNotAllowed, usecase.ErrorInvalidInput, "method not allowed")
	})
}

func (h *Handler) simulate(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)

	var in simulateRequest
	if err := c.ShouldBindJSON(&in); err != nil {
		abort(c, http.StatusBadRequest, usecase.ErrorInvalidInput, "request body must be a JSON object")
		return
	}
	age, present, err := parseAge(in.Age)
	switch {
	case strings.TrimSpace(in.Name) == "" || strings.TrimSpace(in.Decision) == "" || !present:
		abort(c, http.StatusBadRequest, usecase.ErrorInvalidInput, "Missing required fields")
		return
	case err != nil:
		abort(c, http.StatusBadRequest, usecase.ErrorInvalidInput, "age must be a positive integer")
		return
	}

	out, err := h.uc.Simulate(c.Request.Context(), usecase.SimulateInput{
		Name:        in.Name,
		Age:         age,
		Personality: in.Personality,
		Decision:    in.Decision,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) getSimulation(c *gin.Context) {
	detail, err := h.uc.GetSimulation(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

func (h *Handler) history(c *gin.Context) {
	sims, err := h.uc.History(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sims)
}

func (h *Handler) deleteSimulation(c *gin.Context) {
	if err := h.uc.DeleteSimulation(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, deleteResponse{Success: true})
}

// parseAge reports present=false for a missing, null, empty or zero age.
// Fractional numbers are truncated.
func parseAge(raw json.RawMessage) (age int, present bool, err error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return 0, false, nil
	}

	text := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &text); err != nil {
			return 0, true, err
		}
		text = strings.TrimSpace(text)
		if text == "" {
			return 0, false, nil
		}
	}

	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, true, fmt.Errorf("age %q is not a number", text)
	}
	if f == 0 {
		return 0, false, nil
	}
	if f < 1 || f > 1<<31 {
		return 0, true, fmt.Errorf("age %v is out of range", f)
	}
	return int(f), true, nil
}

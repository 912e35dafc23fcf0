package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"tempmon/services"
)

type PredictHandler struct {
	forecaster *services.Forecaster
}

func NewPredictHandler(forecaster *services.Forecaster) *PredictHandler {
	return &PredictHandler{forecaster: forecaster}
}

// Predict runs one forecast and returns the recent predictions verbatim.
func (h *PredictHandler) Predict(c *gin.Context) {
	predictions, err := h.forecaster.Forecast(c.Request.Context())
	switch {
	case errors.Is(err, services.ErrInsufficientHistory):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":  err.Error(),
			"detail": "at least two samples taken at different times are required",
		})
		return
	case err != nil:
		log.Printf("forecast failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "forecast failed"})
		return
	}

	c.JSON(http.StatusOK, predictions)
}

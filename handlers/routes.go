package handlers

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes mounts the API. The /api/ paths are the ones the web
// client was built against.
func RegisterRoutes(r gin.IRouter, samples *SampleHandler, predict *PredictHandler, live gin.HandlerFunc) {
	r.GET("/samples", samples.List)
	r.POST("/samples", samples.Create)
	r.GET("/predict", predict.Predict)

	api := r.Group("/api")
	{
		api.GET("/temperatures/", samples.List)
		api.POST("/temperatures/", samples.Create)
		api.GET("/temperature/predict/", predict.Predict)
	}

	if live != nil {
		r.GET("/ws/live", live)
	}
}

package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"tempmon/models"
	"tempmon/services"
	"tempmon/store"
)

const latestSamplesTTL = 5 * time.Second

const (
	msgRequired = "This field is required."
	msgNumber   = "A valid number is required."
	msgBody     = "request body must be a single JSON object"
)

type SampleHandler struct {
	samples store.SampleStore
	cache   *services.CacheService
}

func NewSampleHandler(samples store.SampleStore, cache *services.CacheService) *SampleHandler {
	return &SampleHandler{samples: samples, cache: cache}
}

// sampleRequest keeps the temperatures raw so every field can be checked and
// reported in one response. A timestamp sent by the client is tolerated in
// any shape and never stored.
type sampleRequest struct {
	CPUTemp     json.RawMessage `json:"cpu_temp" binding:"required"`
	BatteryTemp json.RawMessage `json:"battery_temp" binding:"required"`
	Timestamp   json.RawMessage `json:"timestamp"`
}

var requestFieldNames = map[string]string{
	"CPUTemp":     "cpu_temp",
	"BatteryTemp": "battery_temp",
}

// latestPage is the cached default page, tagged with the samples version it
// was read under.
type latestPage struct {
	Version int64           `json:"version"`
	Samples []models.Sample `json:"samples"`
}

// List returns the most recent samples, newest first.
func (h *SampleHandler) List(c *gin.Context) {
	p := ParsePagination(c)
	ctx := c.Request.Context()

	var version int64
	cacheable := p.IsDefault() && h.cache.Available()
	if cacheable {
		v, err := h.cache.Version(ctx, services.SamplesVersionKey)
		if err != nil {
			log.Printf("read samples version failed: %v", err)
			cacheable = false
		}
		version = v
	}

	if cacheable {
		var cached latestPage
		if err := h.cache.Get(ctx, services.LatestSamplesKey, &cached); err == nil && cached.Version == version {
			c.JSON(http.StatusOK, cached.Samples)
			return
		}
	}

	rows, err := h.samples.ListSamples(ctx, store.Query{
		Order:  store.Descending,
		Limit:  p.Limit,
		Before: p.Before,
	})
	if err != nil {
		log.Printf("list samples failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "database query failed"})
		return
	}
	if rows == nil {
		rows = []models.Sample{}
	}

	if cacheable {
		h.cacheLatest(ctx, version, rows)
	}

	c.JSON(http.StatusOK, rows)
}

func (h *SampleHandler) cacheLatest(ctx context.Context, version int64, rows []models.Sample) {
	page := latestPage{Version: version, Samples: rows}
	if err := h.cache.Set(ctx, services.LatestSamplesKey, page, latestSamplesTTL); err != nil {
		log.Printf("cache latest samples failed: %v", err)
	}
}

// Create stores one sample stamped with the server's clock.
func (h *SampleHandler) Create(c *gin.Context) {
	cpu, battery, errs := decodeSample(c.Request.Body)
	if errs != nil {
		c.JSON(http.StatusBadRequest, errs)
		return
	}

	ctx := c.Request.Context()
	sample, err := h.samples.AppendSample(ctx, cpu, battery)
	if err != nil {
		log.Printf("append sample failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store sample"})
		return
	}

	if err := h.cache.BumpVersion(ctx, services.SamplesVersionKey); err != nil {
		log.Printf("bump samples version failed: %v", err)
	}
	if err := h.cache.Publish(ctx, services.LiveChannel, sample); err != nil {
		log.Printf("publish sample failed: %v", err)
	}

	c.JSON(http.StatusCreated, sample)
}

// decodeSample reads exactly one JSON object and returns both temperatures,
// or every field error found.
func decodeSample(body io.Reader) (cpu, battery float64, errs gin.H) {
	if body == nil {
		return 0, 0, gin.H{"error": msgBody}
	}
	dec := json.NewDecoder(body)
	var req sampleRequest
	if err := dec.Decode(&req); err != nil {
		return 0, 0, gin.H{"error": msgBody}
	}
	if _, err := dec.Token(); err != io.EOF {
		return 0, 0, gin.H{"error": msgBody}
	}

	errs = gin.H{}
	var verrs validator.ValidationErrors
	if err := binding.Validator.ValidateStruct(&req); errors.As(err, &verrs) {
		for _, fe := range verrs {
			name, ok := requestFieldNames[fe.Field()]
			if !ok {
				name = fe.Field()
			}
			errs[name] = []string{msgRequired}
		}
	}

	parse := func(name string, raw json.RawMessage) float64 {
		if _, failed := errs[name]; failed {
			return 0
		}
		v, msg := parseTemperature(raw)
		if msg != "" {
			errs[name] = []string{msg}
		}
		return v
	}
	cpu = parse("cpu_temp", req.CPUTemp)
	battery = parse("battery_temp", req.BatteryTemp)

	if len(errs) > 0 {
		return 0, 0, errs
	}
	return cpu, battery, nil
}

// parseTemperature accepts a JSON number or a string holding one, e.g. 40.5
// or "40.5". null counts as missing.
func parseTemperature(raw json.RawMessage) (float64, string) {
	raw = bytes.TrimSpace(raw)
	if bytes.Equal(raw, []byte("null")) {
		return 0, msgRequired
	}

	var text string
	switch {
	case len(raw) > 0 && raw[0] == '"':
		if err := json.Unmarshal(raw, &text); err != nil {
			return 0, msgNumber
		}
		text = strings.TrimSpace(text)
	default:
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return 0, msgNumber
		}
		text = n.String()
	}

	v, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, msgNumber
	}
	return v, ""
}

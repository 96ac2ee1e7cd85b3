package main

import (
	"time"

	"github.com/liamcoop/classifier/classification"
	"github.com/liamcoop/classifier/internal/logger"
	"github.com/liamcoop/classifier/rules"
)

// API request and response models

// ClassifyRequest represents the request body for classifying a record
type ClassifyRequest struct {
	Record     classification.Record `json:"record" binding:"required"`
	IncludeLog bool                  `json:"includeLog,omitempty" example:"false"`
} // @name ClassifyRequest

// ClassifyResponse represents an issued classification result
type ClassifyResponse struct {
	*classification.Result
	Cached bool `json:"cached" example:"false"`
} // @name ClassifyResponse

// RulesListResponse represents the response for listing rules
type RulesListResponse struct {
	Rules []*rules.Rule `json:"rules"`
} // @name RulesListResponse

// ImportResponse represents the outcome of a rule import
type ImportResponse struct {
	rules.ImportReport
	Total int `json:"total" example:"3"`
} // @name ImportResponse

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error" example:"invalid record"`
	Details string `json:"details,omitempty"`
} // @name ErrorResponse

// HealthResponse represents the health check response
type HealthResponse struct {
	Status        string                 `json:"status" example:"healthy"`
	Error         string                 `json:"error,omitempty"`
	Uptime        string                 `json:"uptime" example:"1h2m3s"`
	ActiveRules   int                    `json:"activeRules" example:"12"`
	InvalidRules  int                    `json:"invalidRules" example:"0"`
	RulesBuiltAt  time.Time              `json:"rulesBuiltAt"`
	CachedResults int                    `json:"cachedResults" example:"340"`
	Counters      logger.CounterSnapshot `json:"counters"`
} // @name HealthResponse

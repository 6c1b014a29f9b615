package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/flowforge/flowforge/internal/domain"
)

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleValidate(c *gin.Context) {
	var pipeline domain.Pipeline
	if err := c.ShouldBindJSON(&pipeline); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid pipeline payload: " + err.Error()})
		return
	}

	result := s.engine.ValidatePipeline(&pipeline)
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleSubmit(c *gin.Context) {
	var pipeline domain.Pipeline
	if err := c.ShouldBindJSON(&pipeline); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid pipeline payload: " + err.Error()})
		return
	}

	executionID, err := s.engine.SubmitExecution(&pipeline)
	if err != nil {
		var domainErr domain.Error
		if errors.As(err, &domainErr) && domainErr.Type == domain.ErrorTypeValidation {
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"error":   domainErr.Message,
				"details": domainErr.Details,
			})
			return
		}
		s.logger.Error("execution submission failed", "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"executionId": executionID})
}

func (s *Server) handleStatus(c *gin.Context) {
	execution, err := s.engine.GetExecutionStatus(c.Param("id"))
	if err != nil {
		if domain.IsNotFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, execution)
}

// handleStop is idempotent: stopping an already terminal execution is a
// success, only unknown ids are 404.
func (s *Server) handleStop(c *gin.Context) {
	executionID := c.Param("id")
	err := s.engine.StopExecution(executionID)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"stopped": executionID})
	case domain.IsNotFound(err):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func (s *Server) handleList(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		limit = parsed
	}

	executions, err := s.engine.ListExecutions(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if executions == nil {
		executions = []*domain.PipelineExecution{}
	}
	c.JSON(http.StatusOK, gin.H{"executions": executions})
}

package api

import (
	"fmt"
	"net/http"

	apperrors "portfolio_translation_go_backend/internal/errors"
	"portfolio_translation_go_backend/internal/models"
	"portfolio_translation_go_backend/internal/providers"
	"portfolio_translation_go_backend/internal/services"

	"github.com/gin-gonic/gin"
)

type translateRequest struct {
	Text           string `json:"text"`
	SourceLanguage string `json:"source_language"`
	TargetLanguage string `json:"target_language"`
	Provider       string `json:"provider"`
}

type translateBatchRequest struct {
	Items    []providers.Item `json:"items"`
	Provider string           `json:"provider"`
}

type autoTranslateRequest struct {
	Record         map[string]interface{} `json:"record" binding:"required"`
	SourceLanguage string                 `json:"source_language"`
}

func translateHandler(translator Translator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var request translateRequest
		if err := c.ShouldBindJSON(&request); err != nil {
			apperrors.HandleError(c, apperrors.New400Error(err.Error()))
			return
		}

		result, err := translator.Translate(c.Request.Context(), request.Text, request.SourceLanguage, request.TargetLanguage, services.TranslateOptions{
			Provider: request.Provider,
			ClientID: clientID(c),
		})
		if err != nil {
			apperrors.HandleError(c, err)
			return
		}

		c.JSON(http.StatusOK, result)
	}
}

func translateBatchHandler(translator Translator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var request translateBatchRequest
		if err := c.ShouldBindJSON(&request); err != nil {
			apperrors.HandleError(c, apperrors.New400Error(err.Error()))
			return
		}

		results, err := translator.TranslateBatch(c.Request.Context(), request.Items, services.TranslateOptions{
			Provider: request.Provider,
			ClientID: clientID(c),
		})
		if err != nil {
			apperrors.HandleError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"results": results})
	}
}

func queueJobHandler(queue JobQueue) gin.HandlerFunc {
	return func(c *gin.Context) {
		var request services.JobRequest
		if err := c.ShouldBindJSON(&request); err != nil {
			apperrors.HandleError(c, apperrors.New400Error(err.Error()))
			return
		}
		if request.JobType == "" {
			request.JobType = models.JobTypeTranslateBatch
		}
		// Table and record jobs write to content tables and are queued through the admin routes.
		if request.JobType != models.JobTypeTranslateBatch {
			apperrors.HandleError(c, apperrors.New400Error(fmt.Sprintf("job_type %q cannot be queued on this endpoint", request.JobType)))
			return
		}

		queued, err := queue.AddJob(c.Request.Context(), request)
		if err != nil {
			apperrors.HandleError(c, err)
			return
		}

		c.JSON(http.StatusAccepted, queued)
	}
}

func getJobHandler(queue JobQueue) gin.HandlerFunc {
	return func(c *gin.Context) {
		view, err := queue.GetJobStatus(c.Request.Context(), c.Param("id"))
		if err != nil {
			apperrors.HandleError(c, err)
			return
		}
		c.JSON(http.StatusOK, view)
	}
}

func cancelJobHandler(queue JobQueue) gin.HandlerFunc {
	return func(c *gin.Context) {
		jobID := c.Param("id")
		if err := queue.CancelJob(c.Request.Context(), jobID); err != nil {
			apperrors.HandleError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"job_id": jobID, "status": models.JobStatusCancelled})
	}
}

func statsHandler(translator Translator) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, translator.GetStats(c.Request.Context()))
	}
}

func healthHandler(translator Translator) gin.HandlerFunc {
	return func(c *gin.Context) {
		health := translator.HealthCheck(c.Request.Context())
		status := http.StatusOK
		if health.Status != services.HealthHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, health)
	}
}

func autoTranslateRecordHandler(mapper RecordMapper) gin.HandlerFunc {
	return func(c *gin.Context) {
		var request autoTranslateRequest
		if err := c.ShouldBindJSON(&request); err != nil {
			apperrors.HandleError(c, apperrors.New400Error(err.Error()))
			return
		}

		translated, err := mapper.AutoTranslateRecord(c.Request.Context(), c.Param("table"), request.Record, request.SourceLanguage)
		if err != nil {
			apperrors.HandleError(c, err)
			return
		}

		c.JSON(http.StatusOK, translated)
	}
}

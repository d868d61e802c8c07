package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"codeberg.org/snonux/backtrans/internal/translation"
)

type translateRequest struct {
	Text       string `json:"text" binding:"required"`
	SourceLang string `json:"source_lang"`
	TargetLang string `json:"target_lang" binding:"required"`
}

type backTranslateRequest struct {
	Text             string `json:"text" binding:"required"`
	SourceLang       string `json:"source_lang"`
	IntermediateLang string `json:"intermediate_lang"`
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"version":  s.cfg.Version,
		"provider": s.cfg.Client.Provider(),
	})
}

func (s *Server) translate(c *gin.Context) {
	var req translateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "text and target_lang are required"})
		return
	}
	if req.SourceLang == "" {
		req.SourceLang = translation.AutoDetect
	}

	translated, err := s.cfg.Client.Translate(c.Request.Context(), req.Text, req.SourceLang, req.TargetLang)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"translation": translated,
		"source_lang": req.SourceLang,
		"target_lang": req.TargetLang,
		"provider":    s.cfg.Client.Provider(),
	})
}

func (s *Server) backTranslate(c *gin.Context) {
	var req backTranslateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "text is required"})
		return
	}
	if req.SourceLang == "" {
		req.SourceLang = s.cfg.DefaultSourceLang
	}
	if req.IntermediateLang == "" {
		req.IntermediateLang = s.cfg.DefaultIntermediateLang
	}

	result, err := s.cfg.Client.BackTranslate(c.Request.Context(), req.Text, req.SourceLang, req.IntermediateLang)
	if err != nil {
		s.writeError(c, err)
		return
	}

	resp := gin.H{"result": result}
	if s.cfg.History != nil {
		rec, err := s.cfg.History.Add(c.Request.Context(), result)
		if err != nil {
			s.logger.Warn("Could not record history", "error", err)
		} else {
			resp["history_id"] = rec.ID
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) cacheStats(c *gin.Context) {
	stats := s.cfg.Client.Stats()
	c.JSON(http.StatusOK, gin.H{
		"stats":         stats,
		"hit_rate":      stats.HitRate(),
		"avg_lookup_ms": stats.AverageLookupMs(),
		"provider":      s.cfg.Client.Provider(),
	})
}

func (s *Server) clearCache(c *gin.Context) {
	s.cfg.Client.ClearCache()
	c.JSON(http.StatusOK, gin.H{"message": "translation memory cleared"})
}

func (s *Server) listHistory(c *gin.Context) {
	if s.cfg.History == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "history is not enabled"})
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		limit = n
	}

	records, err := s.cfg.History.Search(c.Request.Context(), strings.TrimSpace(c.Query("q")), limit)
	if err != nil {
		s.logger.Error("Listing history failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not read history"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records, "count": len(records)})
}

func (s *Server) writeError(c *gin.Context, err error) {
	kind := translation.KindOf(err)
	status := statusFor(kind)

	var terr *translation.Error
	if kind == translation.KindRateLimited && errors.As(err, &terr) && terr.RetryAfter > 0 {
		c.Header("Retry-After", strconv.Itoa(int(terr.RetryAfter.Seconds())))
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("Translation request failed", "kind", kind.String(), "error", err)
	}

	c.JSON(status, gin.H{
		"error": translation.UserMessage(err),
		"kind":  kind.String(),
	})
}

// statusFor maps an error kind to the HTTP status returned to API clients
func statusFor(kind translation.Kind) int {
	switch kind {
	case translation.KindEmptyInput, translation.KindInvalidLanguage:
		return http.StatusBadRequest
	case translation.KindRateLimited, translation.KindCircuitOpen:
		return http.StatusTooManyRequests
	case translation.KindBlocked, translation.KindInvalidResponse, translation.KindUnknownProviderResponse:
		return http.StatusBadGateway
	case translation.KindTransient:
		return http.StatusServiceUnavailable
	case translation.KindCancelled:
		return http.StatusRequestTimeout
	case translation.KindUnsupportedProvider:
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

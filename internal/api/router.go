package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/newsfuse/newsfuse/internal/aggregator"
	"github.com/newsfuse/newsfuse/internal/config"
	"github.com/newsfuse/newsfuse/internal/storage"
)

type Server struct {
	store   *storage.Store
	agg     *aggregator.Aggregator
	content config.ContentConfig
}

func NewServer(store *storage.Store, agg *aggregator.Aggregator, content config.ContentConfig) *Server {
	return &Server{store: store, agg: agg, content: content}
}

func (s *Server) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", s.health)

	v1 := r.Group("/api/v1")
	{
		v1.GET("/items", s.listItems)
		v1.GET("/aggregate", s.aggregate)
		v1.GET("/providers/status", s.providerStatus)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) listItems(c *gin.Context) {
	topic := c.Query("topic")
	sourceType := c.Query("type")
	sort := c.DefaultQuery("sort", "latest")
	if sort != "latest" && sort != "hot" {
		sort = "latest"
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit <= 0 {
		limit = 20
	}

	items, err := s.store.ListItems(topic, sourceType, sort, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "internal_error",
			"message": "internal server error",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    "ok",
		"message": "success",
		"data":    items,
	})
}

// aggregate 按需聚合一个话题。优先命中 Redis 里最近一轮的结果，
// 未命中才触发一次实时聚合
func (s *Server) aggregate(c *gin.Context) {
	topic := c.Query("topic")
	if topic == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "bad_request",
			"message": "topic is required",
		})
		return
	}

	if payload, ok := s.store.CachedBatch(c.Request.Context(), topic); ok {
		var items []json.RawMessage
		if err := json.Unmarshal(payload, &items); err == nil {
			c.JSON(http.StatusOK, gin.H{
				"code":    "ok",
				"message": "success",
				"cached":  true,
				"data":    items,
			})
			return
		}
	}

	items, partial, err := s.agg.Aggregate(c.Request.Context(), aggregator.Request{
		Query:            topic,
		PerProviderLimit: s.content.PerProviderLimit,
		OverallLimit:     s.content.OverallLimit,
		Timeout:          s.content.Timeout(),
	})
	if err != nil {
		if errors.Is(err, aggregator.ErrAllProvidersFailed) {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"code":    "all_providers_failed",
				"message": "all content sources are unavailable",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "internal_error",
			"message": "internal server error",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    "ok",
		"message": "success",
		"partial": partial,
		"data":    items,
	})
}

// providerStatus 暴露各源的熔断状态与失败计数，只读
func (s *Server) providerStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"code":    "ok",
		"message": "success",
		"data":    s.agg.Health(),
	})
}

package main

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
)

// healthz reports 200 "ok" when both dependencies answer, 503 "degraded" otherwise.
func healthz(db, redis func(context.Context) bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		dbHealthy := db(c.Request.Context())
		redisHealthy := redis(c.Request.Context())
		code, status := http.StatusOK, "ok"
		if !redisHealthy || !dbHealthy {
			code, status = http.StatusServiceUnavailable, "degraded"
		}
		c.JSON(code, gin.H{"status": status, "redis": redisHealthy, "db": dbHealthy})
	}
}

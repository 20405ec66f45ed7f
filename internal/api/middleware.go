// Copyright 2026 The switchRoute Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package api

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const requestIDKey = "request_id"

// RequestID tags every request with a UUID. The ID rides on the gin
// context and in response headers so clients and logs can be correlated.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header("X-Request-Id", id)
		c.Next()
	}
}

// requestLogger returns a logrus entry carrying the request ID.
func requestLogger(c *gin.Context) *log.Entry {
	return log.WithField(requestIDKey, c.GetString(requestIDKey))
}

// Recovery converts handler panics into a JSON 500 instead of tearing
// down the connection.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				requestLogger(c).Errorf("handler panicked: %v", r)
				c.AbortWithStatusJSON(500, gin.H{"error": gin.H{
					"type":    "internal_error",
					"message": "internal server error",
				}})
			}
		}()
		c.Next()
	}
}

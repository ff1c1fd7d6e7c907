package fakeserver

import (
	"errors"
	"io"
	"net/http"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/luma/ldapws/storage"
)

// NewAdminRouter serves the fake directory's contents over HTTP:
//
//   GET  /ping        liveness
//   GET  /entries     the whole directory, as storage.Store.Backup
//   PUT  /entries     replace the directory, as storage.Store.Restore
//   GET  /entry?dn=   a single entry
func NewAdminRouter(store storage.Store, debugHTTP bool, log *zap.Logger) *gin.Engine {
	gin.DisableConsoleColor()
	if !debugHTTP {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	r.Use(ginzap.GinzapWithConfig(log, &ginzap.Config{
		TimeFormat: time.RFC3339,
		UTC:        true,
		SkipPaths:  []string{"/ping"},
	}))

	// Logs all panic to error log
	//   - stack means whether output the stack info.
	r.Use(ginzap.RecoveryWithZap(log, true))

	r.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})

	r.GET("/entries", func(c *gin.Context) {
		backup, err := store.Backup()
		if err != nil {
			c.AbortWithError(http.StatusInternalServerError, err)
			return
		}

		c.Data(http.StatusOK, "application/json", backup)
	})

	r.PUT("/entries", func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.AbortWithError(http.StatusBadRequest, err)
			return
		}

		if err := store.Restore(body); err != nil {
			if errors.Is(err, storage.ErrInvalidBackup) {
				c.String(http.StatusBadRequest, err.Error())
				return
			}
			c.AbortWithError(http.StatusInternalServerError, err)
			return
		}

		c.Status(http.StatusNoContent)
	})

	r.GET("/entry", func(c *gin.Context) {
		entry, err := store.Get(c.Request.Context(), c.Query("dn"))
		if errors.Is(err, storage.ErrNoSuchEntry) {
			c.String(http.StatusNotFound, err.Error())
			return
		} else if err != nil {
			c.AbortWithError(http.StatusInternalServerError, err)
			return
		}

		c.JSON(http.StatusOK, entry)
	})

	return r
}

package api

import (
	"net"
	"net/http"
	"net/http/pprof"
	"strings"

	"github.com/gin-gonic/gin"
)

const defaultPprofPath = "/debug/pprof"

var runtimeProfiles = []string{"allocs", "block", "goroutine", "heap", "mutex", "threadcreate"}

// RegisterPprof mounts the runtime profiler under basePath. The control API
// has no authentication, so profiles are only served to loopback peers.
func RegisterPprof(router *gin.Engine, basePath string) {
	group := router.Group(pprofBase(basePath), loopbackOnly())
	group.GET("/", gin.WrapF(pprof.Index))
	group.GET("/cmdline", gin.WrapF(pprof.Cmdline))
	group.GET("/profile", gin.WrapF(pprof.Profile))
	group.GET("/trace", gin.WrapF(pprof.Trace))
	group.Match([]string{http.MethodGet, http.MethodPost}, "/symbol", gin.WrapF(pprof.Symbol))
	for _, name := range runtimeProfiles {
		group.GET("/"+name, gin.WrapH(pprof.Handler(name)))
	}
}

func pprofBase(basePath string) string {
	trimmed := strings.Trim(basePath, "/")
	if trimmed == "" {
		return defaultPprofPath
	}
	return "/" + trimmed
}

// loopbackOnly checks the transport peer, not forwarded headers.
func loopbackOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := net.ParseIP(c.RemoteIP())
		if ip == nil || !ip.IsLoopback() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"status": "error", "error": "profiling is only served on loopback"})
			return
		}
		c.Next()
	}
}

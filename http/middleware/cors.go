package middlewares

import (
	"net/url"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/tnqbao/gau-vm-session-service/config"
)

// CORSMiddleware allows the origins in ALLOWED_DOMAINS plus any subdomain of
// GLOBAL_DOMAIN. With neither configured every origin is allowed without credentials.
func CORSMiddleware(config *config.EnvConfig) gin.HandlerFunc {
	var origins []string
	for _, domain := range strings.Split(config.CORS.AllowDomains, ",") {
		domain = strings.TrimSpace(domain)
		if domain == "" {
			continue
		}
		if !strings.Contains(domain, "://") {
			domain = "https://" + domain
		}
		origins = append(origins, domain)
	}
	global := strings.TrimPrefix(strings.TrimSpace(config.CORS.GlobalDomain), ".")

	corsConfig := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Content-Length", "Accept", "Authorization", "X-Requested-With"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}

	if len(origins) == 0 && global == "" {
		corsConfig.AllowAllOrigins = true
		return cors.New(corsConfig)
	}

	corsConfig.AllowOrigins = origins
	corsConfig.AllowCredentials = true
	if global != "" {
		corsConfig.AllowOriginFunc = func(origin string) bool {
			u, err := url.Parse(origin)
			if err != nil {
				return false
			}
			host := u.Hostname()
			return host == global || strings.HasSuffix(host, "."+global)
		}
	}
	return cors.New(corsConfig)
}

package api

import (
	"crypto/subtle"
	"net/http"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/itswincer/inkstone/app/identity"
)

const maxURLQueryLen = 512

// ctxTokenKey holds the verified bid token for downstream handlers.
const ctxTokenKey = "bid_token"

func corsMiddleware(allowOrigins []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		switch {
		case len(allowOrigins) == 0:
			c.Header("Access-Control-Allow-Origin", "*")
		case origin != "" && slices.Contains(allowOrigins, origin):
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
			c.Header("Access-Control-Allow-Credentials", "true")
		}
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// queryLengthMiddleware rejects oversized query strings before any
// parsing happens.
func queryLengthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if len(c.Request.URL.RawQuery) > maxURLQueryLen {
			c.AbortWithStatusJSON(http.StatusRequestURITooLong, errorResponse{Error: "query string too long"})
			return
		}
		c.Next()
	}
}

// adminAuthMiddleware guards the admin endpoints with a static bearer
// token. Without a configured token the whole group answers 503.
func adminAuthMiddleware(handler *Handler) gin.HandlerFunc {
	return func(c *gin.Context) {
		if handler.adminToken == "" {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, errorResponse{Error: "admin auth not configured"})
			return
		}

		presented, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || presented == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{Error: "admin token required"})
			return
		}
		if subtle.ConstantTimeCompare([]byte(presented), []byte(handler.adminToken)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{Error: "admin token invalid"})
			return
		}

		c.Next()
	}
}

// bidCookieMiddleware resolves the visitor identity. A valid cookie
// passes its token through; a missing or invalid one is replaced by a
// freshly minted identity, except where the endpoint requires an
// established one (PUT kudos).
func bidCookieMiddleware(signer *identity.Signer, require bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !signer.Configured() {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, errorResponse{Error: "identity secrets not configured"})
			return
		}

		if value, err := c.Cookie(identity.CookieName); err == nil {
			if token, ok := signer.Verify(value); ok {
				c.Set(ctxTokenKey, token)
				c.Next()
				return
			}
		}

		if require {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{Error: "bid cookie required"})
			return
		}

		token, cookieValue, err := signer.Mint()
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse{Error: "failed to mint identity"})
			return
		}
		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(identity.CookieName, cookieValue, identity.CookieMaxAge, "/", "", true, true)
		c.Set(ctxTokenKey, token)

		c.Next()
	}
}

package app

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

// basicAuthMiddleware returns a Gin middleware that enforces Basic Auth for
// one realm. If enabled is false, authentication is disabled (pass-through).
func basicAuthMiddleware(realm string, enabled bool, username, password string) gin.HandlerFunc {
	challenge := `Basic realm="` + realm + `"`
	return func(c *gin.Context) {
		if !enabled {
			c.Next()
			return
		}

		user, pass, hasAuth := c.Request.BasicAuth()
		if !hasAuth {
			c.Header("WWW-Authenticate", challenge)
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}

		// Both comparisons always run so timing does not reveal which one failed
		userMatch := subtle.ConstantTimeCompare([]byte(user), []byte(username)) == 1
		passMatch := subtle.ConstantTimeCompare([]byte(pass), []byte(password)) == 1

		if !userMatch || !passMatch {
			c.Header("WWW-Authenticate", challenge)
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}

		c.Next()
	}
}

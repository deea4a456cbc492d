package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/slotline/bookingd/internal/model"
)

const actorKey = "actor"

// Actor extracts the authenticated caller from the identity headers the
// upstream auth gateway sets. The engine never sees raw credentials.
func Actor() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseInt(c.GetHeader("X-Actor-ID"), 10, 64)
		if err != nil || id <= 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid X-Actor-ID"})
			return
		}

		role := model.Role(c.GetHeader("X-Actor-Role"))
		switch role {
		case model.RoleProvider, model.RoleRequester, model.RoleAdmin:
		default:
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid X-Actor-Role"})
			return
		}

		c.Set(actorKey, model.Actor{
			ID:   id,
			Role: role,
			Name: c.GetHeader("X-Actor-Name"),
		})
		c.Next()
	}
}

// ActorFrom returns the actor stored by the Actor middleware.
func ActorFrom(c *gin.Context) model.Actor {
	return c.MustGet(actorKey).(model.Actor)
}

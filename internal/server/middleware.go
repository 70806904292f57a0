package server

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/tokenledger/internal/authorization"
	obscontext "github.com/smallbiznis/tokenledger/internal/observability/context"
)

const (
	HeaderActorID   = "X-Actor-Id"
	HeaderActorRole = "X-Actor-Role"
)

// ActorFromHeaders trusts the identity headers set by the upstream auth proxy.
func ActorFromHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		role := strings.ToLower(strings.TrimSpace(c.GetHeader(HeaderActorRole)))
		id := strings.TrimSpace(c.GetHeader(HeaderActorID))
		if role == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		c.Request = c.Request.WithContext(obscontext.WithActor(c.Request.Context(), obscontext.Actor{
			ID:   id,
			Role: role,
		}))
		c.Next()
	}
}

func (s *Server) authorize(object, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, id := obscontext.ActorFromContext(c.Request.Context())
		if err := s.authzSvc.Authorize(c.Request.Context(), role, id, object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

// requireOwner rejects company and creative actors addressing a record that
// belongs to another owner. Admin and system actors pass.
func requireOwner(c *gin.Context, role string, ownerID snowflake.ID) error {
	actorRole, actorID := obscontext.ActorFromContext(c.Request.Context())
	switch actorRole {
	case authorization.RoleAdmin, authorization.RoleSystem:
		return nil
	case role:
		if actorID == ownerID.String() {
			return nil
		}
	}
	return ErrForbidden
}

// requireEitherOwner passes when the actor owns the record from either side.
func requireEitherOwner(c *gin.Context, companyID snowflake.ID, creativeID *snowflake.ID) error {
	if requireOwner(c, authorization.RoleCompany, companyID) == nil {
		return nil
	}
	if creativeID != nil && requireOwner(c, authorization.RoleCreative, *creativeID) == nil {
		return nil
	}
	return ErrForbidden
}

func parseIDParam(c *gin.Context, name string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(c.Param(name)))
	if err != nil || id == 0 {
		return 0, newValidationError(name, "invalid_"+name, "invalid "+name)
	}
	return id, nil
}

package middleware

import (
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/dicampus-admin/internal/models"
	appErrors "github.com/noah-isme/dicampus-admin/pkg/errors"
	"github.com/noah-isme/dicampus-admin/pkg/notify"
	"github.com/noah-isme/dicampus-admin/pkg/response"
)

// ContextPrincipalKey is the gin context key storing the signed-in principal.
const ContextPrincipalKey = "principal"

// LoginPath is where unauthenticated operators are sent.
const LoginPath = "/login"

const msgSignInRequired = "Debes iniciar sesión para acceder"

type authenticator interface {
	Authenticate(token string) (*models.Principal, error)
}

type busyIndicator interface {
	Acquire() (release func())
}

// RequireSession protects routes by requiring a valid session token. The busy
// indicator is held while the token is checked. Rejected requests get a 401
// with a notification and meta.redirect pointing at the login route.
//
// EventSource clients cannot set headers, so an access_token query parameter
// is accepted as a fallback.
func RequireSession(auth authenticator, busy busyIndicator, notifier notify.Sink) gin.HandlerFunc {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return func(c *gin.Context) {
		release := func() {}
		if busy != nil {
			release = busy.Acquire()
		}
		principal, err := authenticate(c, auth)
		release()

		if err != nil {
			notifier.Notify(msgSignInRequired, notify.SeverityError, 0)
			response.Abort(c, err, map[string]interface{}{"redirect": LoginRedirect(c.Request.URL.RequestURI())})
			return
		}

		c.Set(ContextPrincipalKey, principal)
		c.Next()
	}
}

// LoginRedirect builds the login URL that returns to target after sign-in.
func LoginRedirect(target string) string {
	if target == "" {
		target = "/"
	}
	return LoginPath + "?redirect=" + url.QueryEscape(target)
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}

// PrincipalFrom returns the principal stored by RequireSession.
func PrincipalFrom(c *gin.Context) *models.Principal {
	value, exists := c.Get(ContextPrincipalKey)
	if !exists {
		return nil
	}
	principal, ok := value.(*models.Principal)
	if !ok {
		return nil
	}
	return principal
}

func authenticate(c *gin.Context, auth authenticator) (*models.Principal, error) {
	header := c.GetHeader("Authorization")
	if header == "" {
		token := c.Query("access_token")
		if token == "" {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "sign in required")
		}
		return auth.Authenticate(token)
	}

	token, ok := BearerToken(header)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid authorization header")
	}
	return auth.Authenticate(token)
}

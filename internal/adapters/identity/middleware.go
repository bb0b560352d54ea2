// Package identity tells the server who is calling. Every browser gets an
// anonymous identity kept in a signed cookie session; a bearer JWT from the
// account system overrides it with a durable one.
package identity

import (
	"net/http"
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Poker/internal/domain"
)

const (
	SessionName = "PokerSession"
	DefaultName = "guest"

	ctxKey   = "identity"
	keyUID   = "uid"
	keyName  = "name"
	keyImage = "img"
)

type Identity struct {
	Profile domain.Profile
	// AnonymousID is the cookie identity; it stays set after sign-in so the
	// upgrade can find the rooms joined anonymously.
	AnonymousID domain.UserID
}

func (i Identity) UserID() domain.UserID { return i.Profile.UserID }

func (i Identity) Durable() bool { return !i.Profile.Anonymous }

// Sessions installs the cookie session store the anonymous identity lives in.
func Sessions(secret string) gin.HandlerFunc {
	store := cookie.NewStore([]byte(secret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   3600 * 24 * 30,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return sessions.Sessions(SessionName, store)
}

// Middleware resolves the caller. tokens may be nil, in which case bearer
// tokens are refused.
func Middleware(tokens *TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		anon, err := anonymous(c)
		if err != nil {
			log.Error().Err(err).Str("module", "adapters.identity").Msg("anonymous session")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "session"})
			return
		}
		id := Identity{Profile: anon, AnonymousID: anon.UserID}

		if raw := bearer(c); raw != "" {
			if tokens == nil {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
				return
			}
			claims, err := tokens.Validate(raw)
			if err != nil {
				log.Debug().Err(err).Str("module", "adapters.identity").Msg("bearer rejected")
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
				return
			}
			p, err := claims.Profile(anon.DisplayName)
			if err != nil {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
				return
			}
			id.Profile = p
		}

		c.Set(ctxKey, id)
		c.Next()
	}
}

func FromContext(c *gin.Context) (Identity, bool) {
	v, ok := c.Get(ctxKey)
	if !ok {
		return Identity{}, false
	}
	id, ok := v.(Identity)
	return id, ok
}

// SetAnonymousProfile stores a new display name and avatar for the cookie
// identity.
func SetAnonymousProfile(c *gin.Context, name, image string) (domain.Profile, error) {
	s := sessions.Default(c)
	uid, _ := s.Get(keyUID).(string)
	p, err := domain.NewProfile(domain.UserID(uid), name, image, true)
	if err != nil {
		return domain.Profile{}, err
	}
	s.Set(keyName, p.DisplayName)
	if p.ImageURL == "" {
		s.Delete(keyImage)
	} else {
		s.Set(keyImage, p.ImageURL)
	}
	if err := s.Save(); err != nil {
		return domain.Profile{}, err
	}
	return p, nil
}

func anonymous(c *gin.Context) (domain.Profile, error) {
	s := sessions.Default(c)
	uid, _ := s.Get(keyUID).(string)
	if uid == "" {
		uid = uuid.NewString()
		s.Set(keyUID, uid)
		if err := s.Save(); err != nil {
			return domain.Profile{}, err
		}
	}
	name, _ := s.Get(keyName).(string)
	if name == "" {
		name = DefaultName
	}
	img, _ := s.Get(keyImage).(string)
	return domain.NewProfile(domain.UserID(uid), name, img, true)
}

// bearer reads the Authorization header, or the access_token query parameter
// for WebSocket upgrades where browsers cannot set headers.
func bearer(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); h != "" {
		if tok, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(tok)
		}
		return ""
	}
	return c.Query("access_token")
}

package http

import (
	"context"
	"net/http"
	"time"

	"github.com/dkeye/Poker/internal/adapters/blob"
	"github.com/dkeye/Poker/internal/adapters/identity"
	"github.com/dkeye/Poker/internal/adapters/signal"
	"github.com/dkeye/Poker/internal/app/orch"
	"github.com/dkeye/Poker/internal/config"
	"github.com/dkeye/Poker/internal/core"
	"github.com/dkeye/Poker/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type Deps struct {
	Orch    *orch.Orchestrator
	Tokens  *identity.TokenService
	Blobs   core.BlobStore
	Signer  *blob.Signer
	Limiter *signal.RoomRateLimiter
}

type api struct {
	orch  *orch.Orchestrator
	blobs core.BlobStore
}

func SetupRouter(ctx context.Context, cfg *config.Config, d Deps) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	r.Use(identity.Sessions(cfg.Secret))
	r.Use(identity.Middleware(d.Tokens))

	r.Static("/static", cfg.StaticPath)
	r.GET("/", func(c *gin.Context) {
		c.File(cfg.StaticPath + "/index.html")
	})
	if d.Signer != nil {
		r.GET("/blobs/*ref", blob.Handler(d.Signer, cfg.Blob.Dir))
	}

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	a := &api{orch: d.Orch, blobs: d.Blobs}
	r.GET("/healthz", a.health)

	g := r.Group("/api")
	g.GET("/me", a.me)
	g.PUT("/me", a.updateMe)
	g.POST("/identity/upgrade", a.upgrade)
	g.POST("/rooms", a.createRoom)
	g.GET("/rooms", a.myRooms)
	g.GET("/rooms/:id", a.getRoom)
	g.DELETE("/rooms/:id", a.deleteRoom)

	ctl := signal.NewSignalWSController(d.Orch, d.Blobs, d.Limiter, signal.Options{
		ReadLimit:  cfg.ReadLimit,
		PingPeriod: cfg.PingPeriod,
	})
	g.GET("/rooms/:id/ws", func(c *gin.Context) {
		if _, err := d.Orch.GetRoom(c.Request.Context(), domain.RoomID(c.Param("id"))); err != nil {
			fail(c, err)
			return
		}
		log.Debug().Str("module", "adapters.http").Str("room_id", c.Param("id")).Msg("ws signal endpoint hit")
		ctl.HandleSignal(ctx, c)
	})

	return r
}

// statusFor maps domain errors onto HTTP statuses.
func statusFor(err error) int {
	switch signal.ErrorCode(err) {
	case "not_found":
		return http.StatusNotFound
	case "permission_denied":
		return http.StatusForbidden
	case "unavailable":
		return http.StatusServiceUnavailable
	case "voting_closed", "no_voters":
		return http.StatusConflict
	case "invalid_argument", "invalid_estimate":
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("module", "adapters.http").Str("path", c.FullPath()).Msg("request failed")
	}
	c.AbortWithStatusJSON(status, gin.H{"error": signal.ErrorCode(err)})
}

func caller(c *gin.Context) identity.Identity {
	id, _ := identity.FromContext(c)
	return id
}

func (a *api) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"feeds":  len(a.orch.Rooms.List()),
		"time":   time.Now().UTC(),
	})
}

type meResponse struct {
	UserID      domain.UserID `json:"userID"`
	DisplayName string        `json:"displayName"`
	ImageURL    string        `json:"imageURL,omitempty"`
	Anonymous   bool          `json:"anonymous"`
}

func (a *api) meOf(c *gin.Context, p domain.Profile) meResponse {
	return meResponse{
		UserID:      p.UserID,
		DisplayName: p.DisplayName,
		ImageURL:    blob.ResolveOrEmpty(c.Request.Context(), a.blobs, p.ImageURL),
		Anonymous:   p.Anonymous,
	}
}

func (a *api) me(c *gin.Context) {
	c.JSON(http.StatusOK, a.meOf(c, caller(c).Profile))
}

// updateMe renames the anonymous identity. Registered users get their
// profile from the account system.
func (a *api) updateMe(c *gin.Context) {
	var body struct {
		DisplayName string `json:"displayName"`
		ImageURL    string `json:"imageURL"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "bad_payload"})
		return
	}
	if caller(c).Durable() {
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "durable_identity"})
		return
	}
	p, err := identity.SetAnonymousProfile(c, body.DisplayName, body.ImageURL)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, a.meOf(c, p))
}

type upgradeResponse struct {
	From     domain.UserID            `json:"from"`
	To       domain.UserID            `json:"to"`
	Replaced []domain.RoomID          `json:"replaced"`
	Failed   map[domain.RoomID]string `json:"failed,omitempty"`
}

// upgrade carries everything the cookie identity did over to the bearer
// identity. sessionID optionally names the caller's live socket so it stays
// present under the new identity.
func (a *api) upgrade(c *gin.Context) {
	id := caller(c)
	if !id.Durable() {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}
	var body struct {
		SessionID core.SessionID `json:"sessionID"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "bad_payload"})
			return
		}
	}
	if body.SessionID != "" {
		if uid, ok := a.orch.Registry.UserOf(body.SessionID); !ok || (uid != id.AnonymousID && uid != id.UserID()) {
			body.SessionID = ""
		}
	}

	report, err := a.orch.ReplaceIdentity(c.Request.Context(), id.AnonymousID, id.Profile, body.SessionID)
	if err != nil && len(report.Replaced) == 0 && len(report.Failed) == 0 {
		fail(c, err)
		return
	}
	resp := upgradeResponse{From: id.AnonymousID, To: id.UserID(), Replaced: report.Replaced}
	if len(report.Failed) > 0 {
		resp.Failed = make(map[domain.RoomID]string, len(report.Failed))
		for rid, ferr := range report.Failed {
			resp.Failed[rid] = signal.ErrorCode(ferr)
		}
	}
	if resp.Replaced == nil {
		resp.Replaced = []domain.RoomID{}
	}
	c.JSON(http.StatusOK, resp)
}

func (a *api) createRoom(c *gin.Context) {
	var body struct {
		Name string `json:"name"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "bad_payload"})
		return
	}
	r, err := a.orch.CreateRoom(c.Request.Context(), body.Name, caller(c).Profile, "")
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, signal.NewState(c.Request.Context(), r, a.blobs))
}

type roomSummary struct {
	RoomID         domain.RoomID         `json:"roomID"`
	RoomName       string                `json:"roomName"`
	EstimateStatus domain.EstimateStatus `json:"estimateStatus"`
	Members        int                   `json:"members"`
	Facilitator    bool                  `json:"facilitator"`
	UpdatedAt      time.Time             `json:"updatedAt"`
}

func (a *api) myRooms(c *gin.Context) {
	uid := caller(c).UserID()
	rooms, err := a.orch.MyRooms(c.Request.Context(), uid)
	if err != nil {
		fail(c, err)
		return
	}
	out := make([]roomSummary, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, roomSummary{
			RoomID:         r.RoomID,
			RoomName:       r.RoomName,
			EstimateStatus: r.EstimateStatus,
			Members:        len(r.User),
			Facilitator:    r.IsFacilitator(uid),
			UpdatedAt:      r.UpdatedAt,
		})
	}
	c.JSON(http.StatusOK, out)
}

func (a *api) getRoom(c *gin.Context) {
	r, err := a.orch.GetRoom(c.Request.Context(), domain.RoomID(c.Param("id")))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, signal.NewState(c.Request.Context(), r, a.blobs))
}

func (a *api) deleteRoom(c *gin.Context) {
	err := a.orch.DeleteRoom(c.Request.Context(), domain.RoomID(c.Param("id")), caller(c).UserID())
	if err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/larrybwosi/workspace-sub003/internal/access"
	apitokendomain "github.com/larrybwosi/workspace-sub003/internal/apitoken/domain"
	auditdomain "github.com/larrybwosi/workspace-sub003/internal/audit/domain"
	"github.com/larrybwosi/workspace-sub003/internal/config"
	"github.com/larrybwosi/workspace-sub003/internal/fanout"
	gatewaydomain "github.com/larrybwosi/workspace-sub003/internal/gateway/domain"
	identitydomain "github.com/larrybwosi/workspace-sub003/internal/identity/domain"
	messagedomain "github.com/larrybwosi/workspace-sub003/internal/message/domain"
	notificationdomain "github.com/larrybwosi/workspace-sub003/internal/notification/domain"
	"github.com/larrybwosi/workspace-sub003/internal/observability"
	obsmiddleware "github.com/larrybwosi/workspace-sub003/internal/observability/logger"
	obsmetrics "github.com/larrybwosi/workspace-sub003/internal/observability/metrics"
	obstracing "github.com/larrybwosi/workspace-sub003/internal/observability/tracing"
	webhookdomain "github.com/larrybwosi/workspace-sub003/internal/webhook/domain"
	"github.com/larrybwosi/workspace-sub003/internal/webhook/inbound"
	workspacedomain "github.com/larrybwosi/workspace-sub003/internal/workspace/domain"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module serves the full HTTP API, realtime endpoints included, on HTTPAddr.
var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(func(s *Server) {
		s.registerAPIRoutes()
		s.registerRealtimeRoutes()
	}),
	fx.Invoke(runAPI),
)

// RealtimeModule serves only the websocket and SSE endpoints on the realtime
// address.
var RealtimeModule = fx.Module("realtime.server",
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(func(s *Server) {
		s.registerRealtimeRoutes()
	}),
	fx.Invoke(runRealtime),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func runAPI(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	run(lc, cfg.HTTPAddr, r, log)
}

func runRealtime(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	run(lc, cfg.Realtime.Addr, r, log)
}

func run(lc fx.Lifecycle, addr string, r *gin.Engine, log *zap.Logger) {
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", addr))
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine        *gin.Engine
	cfg           config.Config
	log           *zap.Logger
	gateway       gatewaydomain.Authenticator
	identity      identitydomain.Service
	authorizer    *access.Authorizer
	gate          *access.Gate
	workspaces    workspacedomain.Service
	messages      messagedomain.Service
	webhooks      webhookdomain.Service
	tokens        apitokendomain.Service
	auditSvc      auditdomain.Service
	notifications notificationdomain.Service
	inbound       *inbound.Service
	hub           *fanout.Hub
}

type ServerParams struct {
	fx.In

	Gin           *gin.Engine
	Cfg           config.Config
	Log           *zap.Logger
	Gateway       gatewaydomain.Authenticator
	Identity      identitydomain.Service
	Authorizer    *access.Authorizer
	Gate          *access.Gate
	Workspaces    workspacedomain.Service
	Messages      messagedomain.Service
	Webhooks      webhookdomain.Service
	Tokens        apitokendomain.Service
	AuditSvc      auditdomain.Service
	Notifications notificationdomain.Service
	Inbound       *inbound.Service `optional:"true"`
	Hub           *fanout.Hub      `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	return &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		log:           p.Log.Named("http.server"),
		gateway:       p.Gateway,
		identity:      p.Identity,
		authorizer:    p.Authorizer,
		gate:          p.Gate,
		workspaces:    p.Workspaces,
		messages:      p.Messages,
		webhooks:      p.Webhooks,
		tokens:        p.Tokens,
		auditSvc:      p.AuditSvc,
		notifications: p.Notifications,
		inbound:       p.Inbound,
		hub:           p.Hub,
	}
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	s.registerIntegrationRoutes()

	user := s.engine.Group("", s.UserRequired())

	user.POST("/api-keys", s.CreatePersonalKey)
	user.DELETE("/api-keys/:id", s.RevokePersonalKey)

	messages := user.Group("/messages")
	{
		messages.POST("", RequireScope(gatewaydomain.ScopeMessagesWrite), s.SendMessage)
		messages.PATCH("/:id", RequireScope(gatewaydomain.ScopeMessagesWrite), s.EditMessage)
		messages.DELETE("/:id", RequireScope(gatewaydomain.ScopeMessagesWrite), s.DeleteMessage)
		messages.POST("/:id/thread", RequireScope(gatewaydomain.ScopeMessagesWrite), s.StartThread)
		messages.POST("/:id/reactions", RequireScope(gatewaydomain.ScopeMessagesWrite), s.AddReaction)
		messages.DELETE("/:id/reactions/:emoji", RequireScope(gatewaydomain.ScopeMessagesWrite), s.RemoveReaction)
	}

	channels := user.Group("/channels/:id")
	{
		channels.GET("/messages", RequireScope(gatewaydomain.ScopeMessagesRead), s.ListChannelMessages)
		channels.POST("/members",
			RequireScope(gatewaydomain.ScopeMembersWrite),
			s.authorizeWorkspaceAction(access.ObjectChannelMember, access.ActionAdd, s.workspaceFromChannel("id")),
			s.AddChannelMember,
		)
		channels.POST("/webhooks",
			RequireScope(gatewaydomain.ScopeAll),
			s.authorizeWorkspaceAction(access.ObjectWebhook, access.ActionCreate, s.workspaceFromChannel("id")),
			s.RegisterWebhook,
		)
		channels.POST("/webhooks/incoming-config",
			RequireScope(gatewaydomain.ScopeAll),
			s.authorizeWorkspaceAction(access.ObjectIncomingWebhook, access.ActionCreate, s.workspaceFromChannel("id")),
			s.ProvisionChannelIncoming,
		)
	}

	user.POST("/workspaces", RequireScope(gatewaydomain.ScopeAll), s.CreateWorkspace)

	workspaces := user.Group("/workspaces/:id")
	{
		workspaces.GET("", s.GetWorkspace)
		workspaces.DELETE("", RequireScope(gatewaydomain.ScopeAll), s.DeleteWorkspace)
		workspaces.POST("/members",
			RequireScope(gatewaydomain.ScopeMembersWrite),
			s.authorizeWorkspaceAction(access.ObjectMember, access.ActionAdd, workspaceFromParam("id")),
			s.AddWorkspaceMember,
		)
		workspaces.POST("/departments",
			RequireScope(gatewaydomain.ScopeDepartmentsWrite),
			s.authorizeWorkspaceAction(access.ObjectDepartment, access.ActionCreate, workspaceFromParam("id")),
			s.CreateDepartment,
		)
		workspaces.POST("/channels",
			RequireScope(gatewaydomain.ScopeChannelsWrite),
			s.authorizeWorkspaceAction(access.ObjectChannel, access.ActionCreate, workspaceFromParam("id")),
			s.CreateChannel,
		)

		management := workspaces.Group("", RequireScope(gatewaydomain.ScopeAll))
		management.GET("/webhooks",
			s.authorizeWorkspaceAction(access.ObjectWebhook, access.ActionView, workspaceFromParam("id")),
			s.ListWebhooks,
		)
		management.POST("/webhooks/incoming-config",
			s.authorizeWorkspaceAction(access.ObjectIncomingWebhook, access.ActionCreate, workspaceFromParam("id")),
			s.ProvisionWorkspaceIncoming,
		)
		management.POST("/tokens",
			s.authorizeWorkspaceAction(access.ObjectAPIToken, access.ActionCreate, workspaceFromParam("id")),
			s.CreateWorkspaceToken,
		)
		management.GET("/tokens",
			s.authorizeWorkspaceAction(access.ObjectAPIToken, access.ActionView, workspaceFromParam("id")),
			s.ListWorkspaceTokens,
		)
		management.DELETE("/tokens/:tokenId",
			s.authorizeWorkspaceAction(access.ObjectAPIToken, access.ActionRevoke, workspaceFromParam("id")),
			s.RevokeWorkspaceToken,
		)
		management.GET("/audit-logs",
			s.authorizeWorkspaceAction(access.ObjectAuditLog, access.ActionView, workspaceFromParam("id")),
			s.ListAuditLogs,
		)
	}

	webhooks := user.Group("/webhooks/:id", RequireScope(gatewaydomain.ScopeAll))
	{
		webhooks.GET("/deliveries",
			s.authorizeWorkspaceAction(access.ObjectWebhook, access.ActionView, s.workspaceFromWebhook("id")),
			s.ListWebhookDeliveries,
		)
		webhooks.DELETE("",
			s.authorizeWorkspaceAction(access.ObjectWebhook, access.ActionDelete, s.workspaceFromWebhook("id")),
			s.DeactivateWebhook,
		)
	}

	notifications := user.Group("/notifications")
	{
		notifications.GET("", s.ListNotifications)
		notifications.POST("/:id/read", s.MarkNotificationRead)
	}
}

// registerIntegrationRoutes mounts the token authenticated /v1 surface.
func (s *Server) registerIntegrationRoutes() {
	v1 := s.engine.Group("/v1")

	v1.POST("/messages", s.IntegrationRequired(gatewaydomain.ScopeMessagesWrite), s.SendMessage)
	v1.GET("/channels/:id/messages", s.IntegrationRequired(gatewaydomain.ScopeMessagesRead), s.ListChannelMessages)
	v1.POST("/webhooks/incoming", s.IncomingWebhook)
}

func (s *Server) registerRealtimeRoutes() {
	realtime := s.engine.Group("/realtime", s.UserRequired())
	realtime.GET("/ws", s.ServeWebsocket)
	realtime.GET("/sse", s.StreamEvents)
}

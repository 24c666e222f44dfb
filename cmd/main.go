package main

import (
	"context"
	"fmt"
	"log"

	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"

	"clinicore/internal/caching"
	"clinicore/internal/config"
	"clinicore/internal/handlers"
	"clinicore/internal/jobs/background"
	"clinicore/internal/middleware"
	"clinicore/internal/repositories"
	"clinicore/internal/services"
	"clinicore/internal/session"
	"clinicore/pkg/database"
)

const version = "1.0.0"

func main() {
	cfg := config.Load()

	// Database connection pool
	pool, err := database.NewPool(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	// Cache service
	cacheSvc := caching.NewRedisCacheService(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)

	// Object storage for audit archival
	archiveSvc, err := services.NewMinioArchiveService(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioUseSSL)
	if err != nil {
		log.Fatalf("Failed to initialize archive service: %v", err)
	}
	if err := archiveSvc.EnsureBucketExists(context.Background(), cfg.ArchiveBucket); err != nil {
		log.Printf("WARN: archive bucket check failed: %v", err)
	}

	// Repositories
	profileRepo := repositories.NewProfileRepo(pool)
	tenantRepo := repositories.NewTenantRepo(pool)
	membershipRepo := repositories.NewMembershipRepo(pool)
	auditRepo := repositories.NewAuditLogsRepo(pool)

	// Services
	auditSvc := services.NewAuditService(auditRepo)
	profileSvc := services.NewProfileService(profileRepo, cacheSvc, cfg.TrialDays)
	tenantResolver := services.NewTenantResolver(tenantRepo, membershipRepo, cacheSvc, auditSvc)
	tenantSvc := services.NewTenantService(tenantRepo, cacheSvc, auditSvc)
	membershipSvc := services.NewMembershipService(membershipRepo, auditSvc)

	// Session registry: one state machine per signed-in identity
	registry := session.NewRegistry(profileSvc, tenantResolver)

	// Token verification against the external identity provider
	verifier, err := middleware.NewTokenVerifier(cfg.JWKSURL, cfg.JWTSecret)
	if err != nil {
		log.Fatalf("Failed to initialize token verifier: %v", err)
	}

	// Middleware
	identityMW := middleware.IdentityMiddleware(verifier, cacheSvc, registry, cfg.BaseDomain)
	guard := middleware.NewGuard(membershipSvc, auditSvc)

	// Handlers
	sessionHandlers := handlers.NewSessionHandlers(registry, cacheSvc, auditSvc)
	profileHandlers := handlers.NewProfileHandlers(profileSvc)
	tenantHandlers := handlers.NewTenantHandlers(tenantSvc, membershipSvc)
	auditHandlers := handlers.NewAuditLogsHandlers(auditSvc, archiveSvc, cfg.ArchiveBucket)
	healthHandlers := handlers.NewHealthHandlers(pool, cacheSvc, registry)

	// Background jobs
	scheduler := background.NewJobScheduler(registry, membershipSvc, archiveSvc, auditRepo, cfg.ArchiveBucket)
	if err := scheduler.Start(); err != nil {
		log.Fatalf("Failed to start job scheduler: %v", err)
	}
	defer scheduler.Stop()

	// Create Echo instance
	e := echo.New()

	// Global middleware
	e.Use(echoMiddleware.Logger())
	e.Use(echoMiddleware.Recover())
	e.Use(echoMiddleware.CORS())
	e.Use(echoMiddleware.RemoveTrailingSlash())

	// Version middleware
	versionMiddleware := middleware.NewVersionMiddleware()
	e.Use(versionMiddleware.APIVersionResolver())

	// Health endpoints (no auth required)
	e.GET("/health", healthHandlers.HealthCheck)
	e.GET("/health/live", healthHandlers.LivenessCheck)
	e.GET("/health/ready", healthHandlers.ReadinessCheck)
	e.GET("/metrics", healthHandlers.GetMetrics)

	// API routes
	v1 := e.Group("/v1")
	v1.Use(versionMiddleware.VersionHeader("v1"))
	v1.Use(identityMW)

	// Session routes: reachable mid-resolution, so no guard beyond identity
	v1.GET("/session", sessionHandlers.GetSession)
	v1.GET("/session/events", sessionHandlers.Events)
	v1.POST("/session/tenant", sessionHandlers.SelectTenant)
	v1.POST("/session/signout", sessionHandlers.SignOut)

	// Profile routes
	authed := v1.Group("", guard.Require(services.RequireAuthenticated))
	authed.GET("/me", profileHandlers.GetMe)
	authed.PUT("/me", profileHandlers.UpdateMe)

	// Tenant administration
	globalAdmin := v1.Group("/tenants", guard.Require(services.RequireGlobalAdmin))
	globalAdmin.GET("", tenantHandlers.ListTenants)
	globalAdmin.POST("", tenantHandlers.CreateTenant)
	globalAdmin.PUT("/:id", tenantHandlers.UpdateTenant)
	globalAdmin.DELETE("/:id", tenantHandlers.DeactivateTenant)
	v1.GET("/audit-logs/archives/:name", auditHandlers.GetArchiveURL, guard.Require(services.RequireGlobalAdmin))

	// Membership administration within the caller's tenant
	tenantAdmin := v1.Group("", guard.Require(services.RequireTenantAdmin))
	tenantAdmin.GET("/tenants/:id", tenantHandlers.GetTenant)
	tenantAdmin.GET("/tenants/:id/members", tenantHandlers.ListMembers)
	tenantAdmin.POST("/tenants/:id/members", tenantHandlers.AddMember)
	tenantAdmin.DELETE("/tenants/:id/members/:userID", tenantHandlers.RemoveMember)
	tenantAdmin.GET("/audit-logs", auditHandlers.ListAuditLogs)

	log.Printf("clinicore server v%s starting on port %s", version, cfg.Port)

	e.Logger.Fatal(e.Start(fmt.Sprintf(":%s", cfg.Port)))
}

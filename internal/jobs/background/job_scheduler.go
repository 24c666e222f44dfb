package background

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"clinicore/internal/repositories"
	"clinicore/internal/services"
	"clinicore/internal/session"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
)

const (
	sessionIdleFor   = 24 * time.Hour
	auditRetention   = 30 * 24 * time.Hour
	archiveBatchSize = 10000
)

// JobScheduler manages recurring maintenance jobs
type JobScheduler struct {
	scheduler     gocron.Scheduler
	registry      *session.Registry
	membershipSvc services.MembershipService
	archiveSvc    services.ArchiveService
	auditRepo     repositories.AuditLogsRepository
	archiveBucket string
	jobs          map[string]gocron.Job
	mu            sync.RWMutex
}

// NewJobScheduler creates a new job scheduler
func NewJobScheduler(registry *session.Registry, membershipSvc services.MembershipService,
	archiveSvc services.ArchiveService, auditRepo repositories.AuditLogsRepository,
	archiveBucket string) *JobScheduler {

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		log.Fatalf("Failed to create scheduler: %v", err)
	}

	js := &JobScheduler{
		scheduler:     scheduler,
		registry:      registry,
		membershipSvc: membershipSvc,
		archiveSvc:    archiveSvc,
		auditRepo:     auditRepo,
		archiveBucket: archiveBucket,
		jobs:          make(map[string]gocron.Job),
	}

	js.registerJobs()

	return js
}

// Start starts the job scheduler
func (js *JobScheduler) Start() error {
	log.Printf("Starting background job scheduler")
	js.scheduler.Start()
	return nil
}

// Stop stops the job scheduler
func (js *JobScheduler) Stop() error {
	log.Printf("Stopping background job scheduler")
	return js.scheduler.Shutdown()
}

// registerJobs registers all background jobs
func (js *JobScheduler) registerJobs() {
	// Idle session eviction - every hour
	sweepJob, err := js.scheduler.NewJob(
		gocron.DurationJob(1*time.Hour),
		gocron.NewTask(js.sweepIdleSessions),
		gocron.WithName("session-sweep"),
	)
	if err != nil {
		log.Printf("Failed to create session sweep job: %v", err)
	} else {
		js.jobs["session-sweep"] = sweepJob
	}

	// Membership re-validation sweep - every 15 minutes
	revalidateJob, err := js.scheduler.NewJob(
		gocron.DurationJob(15*time.Minute),
		gocron.NewTask(js.revalidateMemberships, context.Background()),
		gocron.WithName("membership-revalidation"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		log.Printf("Failed to create revalidation job: %v", err)
	} else {
		js.jobs["membership-revalidation"] = revalidateJob
	}

	// Audit log archival - daily
	archiveJob, err := js.scheduler.NewJob(
		gocron.DurationJob(24*time.Hour),
		gocron.NewTask(js.archiveAuditLogs, context.Background()),
		gocron.WithName("audit-archival"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		log.Printf("Failed to create audit archival job: %v", err)
	} else {
		js.jobs["audit-archival"] = archiveJob
	}

	log.Printf("Registered %d background jobs", len(js.jobs))
}

// sweepIdleSessions evicts session machines nobody has touched in a day.
func (js *JobScheduler) sweepIdleSessions() {
	removed := js.registry.Sweep(sessionIdleFor)
	if removed > 0 {
		log.Printf("Evicted %d idle sessions", removed)
	}
}

// revalidateMemberships re-checks every ready tenant-bound session against
// the membership table, demoting sessions whose membership was revoked.
func (js *JobScheduler) revalidateMemberships(ctx context.Context) error {
	demoted := 0
	js.registry.Each(func(identityID uuid.UUID, s *session.Session) {
		st := s.Current()
		if st.Phase != session.PhaseReady || st.ActiveTenant == nil {
			return
		}
		_, active, err := js.membershipSvc.ValidateActive(ctx, identityID, st.ActiveTenant.ID)
		if err != nil {
			log.Printf("Membership sweep check failed for %s: %v", identityID, err)
			return
		}
		if !active {
			s.Demote(fmt.Errorf("membership in tenant %s is no longer active", st.ActiveTenant.ID))
			demoted++
		}
	})
	if demoted > 0 {
		log.Printf("Demoted %d sessions with revoked memberships", demoted)
	}
	return nil
}

// archiveAuditLogs exports audit entries older than the retention window to
// object storage, then deletes them.
func (js *JobScheduler) archiveAuditLogs(ctx context.Context) error {
	cutoff := time.Now().Add(-auditRetention)

	entries, err := js.auditRepo.ListBefore(ctx, cutoff, archiveBatchSize)
	if err != nil {
		log.Printf("Failed to list audit logs for archival: %v", err)
		return err
	}
	if len(entries) == 0 {
		return nil
	}

	payload, err := json.Marshal(entries)
	if err != nil {
		log.Printf("Failed to encode audit archive: %v", err)
		return err
	}

	objectName := fmt.Sprintf("audit/%s.json", time.Now().UTC().Format("2006-01-02T15-04-05"))
	if err := js.archiveSvc.PutArchive(ctx, js.archiveBucket, objectName, bytes.NewReader(payload), int64(len(payload))); err != nil {
		log.Printf("Failed to upload audit archive: %v", err)
		return err
	}

	deleted, err := js.auditRepo.DeleteBefore(ctx, cutoff)
	if err != nil {
		log.Printf("Failed to prune archived audit logs: %v", err)
		return err
	}
	log.Printf("Archived %d audit logs to %s and pruned %d rows", len(entries), objectName, deleted)
	return nil
}

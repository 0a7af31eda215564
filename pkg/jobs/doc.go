// Package jobs contains background maintenance for the permission model.
//
// GrantAuditor lists company access grants whose expiry has passed and reports
// them through logs and the eams_expired_grants gauge. It never revokes a grant.
// When a Locker is configured, replicas coordinate so only one audits at a time.
//
//	auditor := jobs.NewGrantAuditor(store, redisCache, metrics, logger)
//	scheduler := jobs.NewScheduler(logger)
//	if err := scheduler.ScheduleGrantAudit("*/15 * * * *", auditor, time.Minute); err != nil {
//		return err
//	}
//	scheduler.Start()
//	defer scheduler.Stop(ctx)
package jobs

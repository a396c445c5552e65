// Package async runs background work that must never take the agent down.
//
// Group.Go starts a task with panic recovery, a timeout and error logging, and lets the
// owner wait for outstanding tasks at shutdown:
//
//	g := async.NewGroup(log)
//	g.Go(ctx, 5*time.Second, "admin notification", func(ctx context.Context) error {
//		return notifier.Notify(ctx, msg, auth.AudienceAdmin)
//	})
//	defer g.Wait(10 * time.Second)
package async

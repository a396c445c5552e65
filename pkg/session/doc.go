// Package session owns the signed-in user of a Cura agent.
//
// A Store holds the current identity and its derived flags, persists them to a kv.Store so
// they survive a restart, and ends the session after eight hours without user activity.
// Every login strategy goes through the same commit path:
//
//	store, err := session.New(session.Config{}, session.Options{
//		Backend: backend,
//		Cache:   cache,
//	})
//	if err := store.Init(ctx); err != nil {
//		return err
//	}
//	defer store.Dispose(ctx)
//
//	unsubscribe := store.Subscribe(func(ev session.Event) {
//		if ev.Notice != nil {
//			fmt.Println(ev.Notice.Message)
//		}
//	})
//	defer unsubscribe()
//
//	if err := store.Login(ctx, "j.doe", password); err != nil {
//		return err
//	}
//
// Only one login attempt runs at a time; a second returns auth.ErrLoginInProgress. A failed
// attempt leaves whoever was signed in before still signed in.
//
// After a full credential login the same identifier may sign back in with QuickLogin for
// one hour without a password. The profile is re-read first when the backend is reachable,
// so quick login never restores a revoked account or a stale role.
//
// Reconcile compares the local session with the backend and lets the backend win. Init runs
// it once and then on a schedule.
package session

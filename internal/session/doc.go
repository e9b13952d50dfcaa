// Package session implements the session state machine of one context.
//
// A Manager moves between anonymous, authenticating, authenticated and
// error. Every change goes through a single transition function fed by
// explicit events: startup rehydration, login start and completion, token
// renewal, logout, and changes made by other contexts sharing the same
// token store backend.
//
// Typical use:
//
//	idp := identity.New(cfg.Identity, store, nav)
//	mgr := session.New(idp, store)
//	if err := mgr.Start(ctx); err != nil {
//		return err
//	}
//	defer mgr.Stop()
package session

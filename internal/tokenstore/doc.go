// Package tokenstore persists the signed-in session and keeps concurrently
// running contexts consistent.
//
// A Store is the only component that reads or writes the persisted auth
// keys (auth_authenticated, auth_user, auth_method, access_token, id_token)
// and the identity provider's own cache. Values live in a Backend:
//
//   - MemoryBackend: process memory; several Stores on one backend model
//     browser tabs sharing storage
//   - FileBackend: a JSON document under the user config directory, watched
//     with fsnotify for writes by other processes
//   - RedisBackend: a redis hash with a pub/sub channel for change events
//
// Every write is tagged with the writing Store's origin. Subscribe delivers
// only changes made by other contexts, and nothing while BeginCallback is
// active.
package tokenstore

// Package sf provides a generic single-flight group for deduplicating
// concurrent function calls with the same key.
//
// Only one execution of a function is in-flight for a given key at a time.
// If multiple goroutines call [Group.Do] with the same key concurrently, only
// the first call executes the function; subsequent callers block until the
// first call completes and then receive the same result.
//
// The query client uses one group per client, keyed by the query hash, so that
// a query evicted while its fetch is still running and then recreated does not
// start a second fetch for the same key.
//
// # Usage
//
//	g := sf.New[[]Post]()
//
//	posts, err, shared := g.Do(`["posts"]`, func() ([]Post, error) {
//	    return api.ListPosts(ctx)
//	})
package sf

// Package query provides an asynchronous data cache for UI-facing code: it
// deduplicates fetches per key, tracks freshness, pushes state changes to
// observers and evicts queries nobody has observed for a while.
//
// # Concepts
//
//   - [Key]: ordered list of primitive values identifying one cacheable item.
//   - query: the cached state of one key (status, data, error, last fetch time).
//   - [Client]: the registry of queries. Construct one explicitly and pass it
//     around; there is no global instance.
//   - [Observer]: one consumer's binding to one query, with its own stale time.
//
// # Usage
//
//	c := query.NewClient(query.WithCacheTime(5 * time.Minute))
//	defer c.Close()
//
//	posts, err := query.NewObserver(c, query.NewKey("posts"), api.ListPosts,
//		query.WithStaleTime(time.Minute),
//	)
//	if err != nil {
//		return err
//	}
//
//	unsubscribe := posts.Subscribe(func() {
//		r := posts.Result()
//		switch {
//		case r.IsLoading:
//			render.Spinner()
//		case r.IsError:
//			render.Error(r.Error)
//		default:
//			render.Posts(r.Data, r.IsFetching)
//		}
//	})
//	defer unsubscribe()
//
// # Fetching
//
// A fetch is started only by [Observer.Subscribe] (when the cached data is
// missing or stale) and by [Observer.Refetch]. There is no polling and no
// retry: a failed query stays in error until the next fetch. While a fetch
// is in flight, further requests join it instead of starting a new one.
//
// Fetch failures never leave an observer as an error return; they show up as
// [Result.IsError] and [Result.Error], next to the last good [Result.Data].
//
// # Eviction
//
// When the last observer of a query unsubscribes, a timer of the client's
// cache time is armed. If nobody subscribes before it fires, the query is
// removed; the next observer for that key starts from an idle query. A fetch
// still running for an evicted query finishes, but its result is dropped
// unless a recreated query for the same key joined the call.
//
// # Concurrency
//
// All query state lives on one loop goroutine, so there are no locks around
// it. onChange callbacks and global listeners run on a separate notifier
// goroutine, one notification pass at a time, in the order the changes
// happened. Each pass works on a copy of the subscriber list taken when the
// change happened, so callbacks may subscribe or unsubscribe freely.
//
// # Diagnostics
//
// [Client.Subscribe] registers a listener for every change of every query and
// [Client.Queries] lists snapshots of all live queries. Neither exposes data
// or a way to modify queries.
package query

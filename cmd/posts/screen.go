package main

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/codewandler/query-go/adapters/devtools"
	"github.com/codewandler/query-go/core/query"
)

// route is a screen to show. postID 0 is the post list.
type route struct {
	postID int
}

func (r route) String() string {
	if r.postID == 0 {
		return "/"
	}
	return fmt.Sprintf("/posts/%d", r.postID)
}

// script is the walk the demo repeats: list, detail, back, another detail,
// back to the first one.
var script = []route{{0}, {1}, {0}, {2}, {1}, {0}}

// app binds one screen at a time to the query client, the way a browser tab
// would, and renders every change to the log.
type app struct {
	c         *query.Client
	src       source
	log       *slog.Logger
	staleTime time.Duration

	mu    sync.Mutex
	gen   int // bumped per navigation; renders of older screens are ignored
	leave func()
	view  string
}

func newApp(c *query.Client, src source, staleTime time.Duration, log *slog.Logger) *app {
	return &app{
		c:         c,
		src:       src,
		log:       log.With(slog.String("component", "screen")),
		staleTime: staleTime,
	}
}

// navigate unbinds the current screen and binds r.
func (a *app) navigate(r route) error {
	a.mu.Lock()
	leave := a.leave
	a.leave = nil
	a.gen++
	gen := a.gen
	a.mu.Unlock()
	if leave != nil {
		leave()
	}

	a.log.Debug("navigate", slog.String("route", r.String()))

	var (
		unsubscribe func()
		err         error
	)
	if r.postID == 0 {
		unsubscribe, err = bind[[]Post](a, gen, query.NewKey("posts"), a.src.Posts, viewHome, listStaleTime)
	} else {
		unsubscribe, err = bind[Post](a, gen, query.NewKey("post", r.postID), a.src.Post(r.postID), viewPost, a.staleTime)
	}
	if err != nil {
		return err
	}

	a.mu.Lock()
	a.leave = unsubscribe
	a.mu.Unlock()
	return nil
}

func bind[T any](a *app, gen int, key query.Key, fn query.FetchFunc[T], view func(query.Result[T]) string, staleTime time.Duration) (func(), error) {
	o, err := query.NewObserver(a.c, key, fn, query.WithStaleTime(staleTime))
	if err != nil {
		return nil, err
	}
	render := func() { a.render(gen, key, view(o.Result())) }
	// first paint happens before subscribing, so later renders all come
	// from the notifier in order
	render()
	return o.Subscribe(render), nil
}

func (a *app) render(gen int, key query.Key, view string) {
	a.mu.Lock()
	if gen != a.gen {
		a.mu.Unlock()
		return
	}
	a.view = view
	a.mu.Unlock()
	a.log.Info("render", slog.String("query", key.String()), slog.String("view", view))
}

// View returns the last rendered screen.
func (a *app) View() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.view
}

func (a *app) close() {
	a.mu.Lock()
	leave := a.leave
	a.leave = nil
	a.mu.Unlock()
	if leave != nil {
		leave()
	}
}

// run walks the script until ctx is done, one step per interval.
func (a *app) run(ctx context.Context, every time.Duration) error {
	defer a.close()

	t := time.NewTicker(every)
	defer t.Stop()

	for i := 0; ; i++ {
		if err := a.navigate(script[i%len(script)]); err != nil {
			return err
		}
		a.logDevtools()

		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}

func (a *app) logDevtools() {
	if !a.log.Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	var buf bytes.Buffer
	if err := devtools.Render(&buf, a.c.Queries()); err != nil {
		a.log.Error("failed to render devtools", slog.Any("error", err))
		return
	}
	a.log.Debug("devtools", slog.String("queries", buf.String()))
}

// === views ===

func status[T any](r query.Result[T], what string) []string {
	var lines []string
	if r.IsLoading {
		lines = append(lines, "loading...")
	}
	if r.IsError {
		lines = append(lines, fmt.Sprintf("Error fetching %s. Please try again later.", what))
	}
	if r.IsFetching {
		lines = append(lines, "Background updating")
	}
	return lines
}

func viewHome(r query.Result[[]Post]) string {
	lines := append([]string{"Posts"}, status(r, "posts")...)
	for _, p := range r.Data {
		lines = append(lines, fmt.Sprintf("- [%d] %s", p.ID, p.Title))
	}
	return strings.Join(lines, "\n")
}

func viewPost(r query.Result[Post]) string {
	lines := status(r, "post")
	if r.Data.ID != 0 {
		lines = append(lines, r.Data.Title, r.Data.Body, "[Back to Posts]")
	}
	return strings.Join(lines, "\n")
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	natsgo "github.com/nats-io/nats.go"

	"github.com/codewandler/query-go/adapters/nats"
	"github.com/codewandler/query-go/ports/kv"
)

type Post struct {
	UserID int    `json:"userId"`
	ID     int    `json:"id"`
	Title  string `json:"title"`
	Body   string `json:"body"`
}

// source provides the fetch functions for the two screens.
type source interface {
	Posts(ctx context.Context) ([]Post, error)
	Post(id int) func(ctx context.Context) (Post, error)
}

// === http ===

type httpSource struct {
	client  *http.Client
	baseURL string
	delay   time.Duration
}

func newHTTPSource(baseURL string, delay time.Duration) *httpSource {
	return &httpSource{
		client:  &http.Client{Timeout: 10 * time.Second},
		baseURL: baseURL,
		delay:   delay,
	}
}

// Posts returns the first ten posts.
func (s *httpSource) Posts(ctx context.Context) ([]Post, error) {
	var posts []Post
	if err := s.get(ctx, "/posts", &posts); err != nil {
		return nil, err
	}
	return posts[:min(10, len(posts))], nil
}

func (s *httpSource) Post(id int) func(ctx context.Context) (Post, error) {
	return func(ctx context.Context) (p Post, err error) {
		err = s.get(ctx, "/posts/"+strconv.Itoa(id), &p)
		return
	}
}

func (s *httpSource) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("get %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("get %s: %s", path, resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return sleep(ctx, s.delay)
}

// sleep simulates a slow network.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// === nats ===

const (
	subjectList = "posts.list"
	subjectGet  = "posts.get"
)

type postRequest struct {
	ID int `json:"id"`
}

// natsSource requests posts over NATS. The same process serves the
// subjects from a JetStream KV bucket.
type natsSource struct {
	nc      *natsgo.Conn
	timeout time.Duration
}

func (s *natsSource) Posts(ctx context.Context) ([]Post, error) {
	return nats.RequestFetcher[[]Post](s.nc, subjectList, nil, s.timeout)(ctx)
}

func (s *natsSource) Post(id int) func(ctx context.Context) (Post, error) {
	return nats.RequestFetcher[Post](s.nc, subjectGet, postRequest{ID: id}, s.timeout)
}

func postKey(id int) string { return "post." + strconv.Itoa(id) }

// serveNATS seeds store with posts and answers list and detail requests
// from it until ctx is done.
func serveNATS(ctx context.Context, nc *natsgo.Conn, store kv.Store, posts []Post, delay time.Duration, log *slog.Logger) error {
	ids := make([]int, 0, len(posts))
	for _, p := range posts {
		if err := kv.Put(ctx, store, postKey(p.ID), p, kv.PutOptions{}); err != nil {
			return err
		}
		ids = append(ids, p.ID)
	}
	if err := kv.Put(ctx, store, "posts.index", ids, kv.PutOptions{}); err != nil {
		return err
	}

	_, err := nats.Respond(ctx, nc, subjectList, log, func(ctx context.Context, _ []byte) ([]Post, error) {
		ids, err := kv.Get[[]int](ctx, store, "posts.index")
		if err != nil {
			return nil, err
		}
		out := make([]Post, 0, len(ids))
		for _, id := range ids {
			p, err := kv.Get[Post](ctx, store, postKey(id))
			if err != nil {
				return nil, err
			}
			out = append(out, p)
		}
		return out, sleep(ctx, delay)
	})
	if err != nil {
		return err
	}

	_, err = nats.Respond(ctx, nc, subjectGet, log, func(ctx context.Context, req []byte) (Post, error) {
		var r postRequest
		if err := json.Unmarshal(req, &r); err != nil {
			return Post{}, err
		}
		p, err := kv.Fetcher[Post](store, postKey(r.ID))(ctx)
		if err != nil {
			return Post{}, fmt.Errorf("post %d: %w", r.ID, err)
		}
		return p, sleep(ctx, delay)
	})
	return err
}

// seedPosts returns generated posts for the NATS source.
func seedPosts(n int) []Post {
	posts := make([]Post, n)
	for i := range posts {
		id := i + 1
		posts[i] = Post{
			UserID: 1 + i/10,
			ID:     id,
			Title:  fmt.Sprintf("post %d", id),
			Body:   fmt.Sprintf("body of post %d", id),
		}
	}
	return posts
}

var (
	_ source = (*httpSource)(nil)
	_ source = (*natsSource)(nil)
)

package nats

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/codewandler/query-go/core/query"
)

type post struct {
	ID    int    `json:"id"`
	Title string `json:"title"`
}

type postRequest struct {
	ID int `json:"id"`
}

func TestRequestFetcher(t *testing.T) {
	nc, closeNc, err := NewTestContainer(t)()
	require.NoError(t, err)
	defer closeNc()

	_, err = Respond(t.Context(), nc, "posts.get", nil, func(_ context.Context, req []byte) (post, error) {
		var r postRequest
		if err := json.Unmarshal(req, &r); err != nil {
			return post{}, err
		}
		if r.ID == 0 {
			return post{}, errors.New("post not found")
		}
		return post{ID: r.ID, Title: "title"}, nil
	})
	require.NoError(t, err)

	p, err := RequestFetcher[post](nc, "posts.get", postRequest{ID: 3}, time.Second)(t.Context())
	require.NoError(t, err)
	require.Equal(t, post{ID: 3, Title: "title"}, p)

	_, err = RequestFetcher[post](nc, "posts.get", postRequest{}, time.Second)(t.Context())
	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	require.Equal(t, "post not found", remote.Msg)

	_, err = RequestFetcher[post](nc, "posts.nobody", postRequest{ID: 1}, time.Second)(t.Context())
	require.Error(t, err)
}

func TestRequestFetcher_Query(t *testing.T) {
	nc, closeNc, err := NewTestContainer(t)()
	require.NoError(t, err)
	defer closeNc()

	var calls atomic.Int32
	release := make(chan struct{})
	_, err = Respond(t.Context(), nc, "posts.list", nil, func(context.Context, []byte) ([]post, error) {
		calls.Add(1)
		<-release
		return []post{{ID: 1, Title: "one"}}, nil
	})
	require.NoError(t, err)

	c := query.NewClient(query.WithContext(t.Context()))
	defer func() { _ = c.Close() }()

	fetch := RequestFetcher[[]post](nc, "posts.list", nil, 5*time.Second)
	a, err := query.NewObserver(c, query.NewKey("posts"), fetch)
	require.NoError(t, err)
	b, err := query.NewObserver(c, query.NewKey("posts"), fetch)
	require.NoError(t, err)

	defer a.Subscribe(func() {})()
	defer b.Subscribe(func() {})()

	close(release)
	require.Eventually(t, func() bool {
		r := b.Result()
		return r.IsSuccess && !r.IsFetching
	}, 5*time.Second, 10*time.Millisecond)

	r := a.Result()
	require.Equal(t, []post{{ID: 1, Title: "one"}}, r.Data)
	require.Equal(t, int32(1), calls.Load())
}

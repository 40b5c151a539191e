package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	natsgo "github.com/nats-io/nats.go"
)

// responseFrame is the reply encoding shared by RequestFetcher and Respond.
type responseFrame struct {
	Data json.RawMessage `json:"data,omitempty"`
	Err  string          `json:"err,omitempty"`
}

// RemoteError is a failure reported by the responder.
type RemoteError struct {
	Subject string
	Msg     string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("nats: %s: %s", e.Subject, e.Msg)
}

// RequestFetcher returns a fetch function that sends payload as JSON to
// subject and decodes the reply's data into T. It fits query.FetchFunc[T].
// A non-empty err in the reply fails the fetch with a *RemoteError. A
// timeout of zero only uses the fetch context.
func RequestFetcher[T any](nc *natsgo.Conn, subject string, payload any, timeout time.Duration) func(ctx context.Context) (T, error) {
	return func(ctx context.Context) (out T, err error) {
		req, err := json.Marshal(payload)
		if err != nil {
			return out, fmt.Errorf("nats: encode request: %w", err)
		}

		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		msg, err := nc.RequestWithContext(ctx, subject, req)
		if err != nil {
			return out, fmt.Errorf("nats: request %s: %w", subject, err)
		}

		var rf responseFrame
		if err := json.Unmarshal(msg.Data, &rf); err != nil {
			return out, fmt.Errorf("decode response: %w", err)
		}
		if rf.Err != "" {
			return out, &RemoteError{Subject: subject, Msg: rf.Err}
		}
		if err := json.Unmarshal(rf.Data, &out); err != nil {
			return out, fmt.Errorf("decode data: %w", err)
		}
		return out, nil
	}
}

// Respond serves subject with fn until ctx is done. fn receives the raw
// request payload; its result is encoded into the reply frame.
func Respond[T any](
	ctx context.Context,
	nc *natsgo.Conn,
	subject string,
	log *slog.Logger,
	fn func(ctx context.Context, req []byte) (T, error),
) (*natsgo.Subscription, error) {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	log = log.With(slog.String("subject", subject))

	sub, err := nc.Subscribe(subject, func(msg *natsgo.Msg) {
		var rf responseFrame
		v, err := fn(ctx, msg.Data)
		if err == nil {
			rf.Data, err = json.Marshal(v)
		}
		if err != nil {
			rf.Err = err.Error()
			rf.Data = nil
		}

		b, _ := json.Marshal(rf)
		if err := msg.Respond(b); err != nil && !errors.Is(err, natsgo.ErrMsgNoReply) {
			log.Error("failed to publish reply", slog.Any("error", err))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("nats: subscribe %s: %w", subject, err)
	}

	context.AfterFunc(ctx, func() {
		_ = sub.Unsubscribe()
	})

	return sub, nil
}

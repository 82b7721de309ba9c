// Package notify implements the publish side of commit.execute's optional
// {publish: true} flag: when a commit lands, subscribers watching a
// flow are pushed a notification over a websocket. Shaped like a
// Hub/Broadcaster pub-sub pattern, generalized from per-user chat fan-out
// to per-flow commit fan-out.
package notify

import (
	"context"

	"github.com/smilemakc/dataflow/internal/store"
)

// CommitApplied is the event delivered to subscribers of a flow once its
// commands have been applied.
type CommitApplied struct {
	FlowID  string
	OpID    string
	Results []store.Result
}

// Notifier is the publish-side contract Store implementations call into
// when a commit is made with publish=true. It is deliberately narrow so a
// Store never needs to know about websockets, subscriptions, or transport.
type Notifier interface {
	Publish(ctx context.Context, event CommitApplied)
}

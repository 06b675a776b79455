// Package dispatch implements the notification fan-out engine. Given an
// event descriptor it computes the deduplicated, actor-excluded,
// preference-filtered recipient set, renders one email per recipient, and
// delivers each message independently with partial-failure tolerance.
package dispatch

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"telloo/internal/external"
	"telloo/internal/notifications/email"
	"telloo/internal/types"
)

// defaultMaxConcurrentSends bounds parallel provider calls when the
// configured value is zero or negative.
const defaultMaxConcurrentSends = 4

// Dispatcher orchestrates one notification fan-out per event. It is
// stateless across invocations; every dependency is injected so transports
// and stores can be replaced with test doubles.
type Dispatcher struct {
	store      types.ContentStore
	identities types.IdentityResolver
	provider   external.EmailProvider
	renderer   *email.Renderer
	metrics    types.DispatchMetrics
	logger     types.Logger

	maxConcurrentSends int
	sendTimeout        time.Duration
}

// Config holds the dependencies and tuning for constructing a Dispatcher.
type Config struct {
	Store      types.ContentStore
	Identities types.IdentityResolver
	Provider   external.EmailProvider
	Renderer   *email.Renderer
	Metrics    types.DispatchMetrics // optional; nil disables telemetry
	Logger     types.Logger

	MaxConcurrentSends int
	SendTimeout        time.Duration
}

// NewDispatcher creates a Dispatcher from the given configuration.
func NewDispatcher(cfg Config) *Dispatcher {
	maxSends := cfg.MaxConcurrentSends
	if maxSends <= 0 {
		maxSends = defaultMaxConcurrentSends
	}

	metrics := cfg.Metrics
	if metrics == nil {
		metrics = NoopMetrics{}
	}

	return &Dispatcher{
		store:              cfg.Store,
		identities:         cfg.Identities,
		provider:           cfg.Provider,
		renderer:           cfg.Renderer,
		metrics:            metrics,
		logger:             cfg.Logger,
		maxConcurrentSends: maxSends,
		sendTimeout:        cfg.SendTimeout,
	}
}

// Dispatch runs one fan-out for the event and returns the number of messages
// the transport accepted.
//
// Unknown event types are a no-op producing a zero count. A post that cannot
// be resolved is the one condition that propagates as an error, since it
// signals a caller-side bug. Per-recipient failures (unresolvable email,
// transport rejection) are logged and excluded from the count; they never
// abort the remaining sends.
func (d *Dispatcher) Dispatch(ctx context.Context, event types.DispatchEvent) (*types.DispatchResult, error) {
	start := time.Now()

	if !event.Type.IsKnown() {
		d.logger.Warn("ignoring unknown event type", "event_type", string(event.Type))
		return &types.DispatchResult{}, nil
	}

	if event.PostID == "" {
		return nil, types.NewAppError(types.ErrCodeValidationMissingField, "postId is required", nil)
	}

	post, err := d.store.GetPostWithBoard(ctx, event.PostID)
	if err != nil {
		return nil, err
	}

	candidates, err := d.computeRecipients(ctx, event, post)
	if err != nil {
		return nil, err
	}

	eligible, err := d.filterByPreference(ctx, event.Type, candidates)
	if err != nil {
		return nil, err
	}

	if len(eligible) == 0 {
		d.logger.Info("no eligible recipients",
			"event_type", string(event.Type),
			"post_id", post.ID,
			"candidates", len(candidates),
		)
		return &types.DispatchResult{}, nil
	}

	emails, err := d.identities.ResolveEmails(ctx, eligible)
	if err != nil {
		return nil, err
	}

	// Render the message variants up front. new_comment phrasing differs for
	// the post author, so at most two renders are needed per dispatch.
	rendered, err := d.renderVariants(event, post)
	if err != nil {
		return nil, err
	}

	sent, failed := d.deliver(ctx, event, post, eligible, emails, rendered)

	d.metrics.RecordDispatch(ctx, event.Type, int(sent), int(failed))
	d.metrics.RecordLatency(ctx, event.Type, time.Since(start))

	d.logger.Info("dispatch complete",
		"event_type", string(event.Type),
		"post_id", post.ID,
		"recipients", len(eligible),
		"sent", sent,
		"failed", failed,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return &types.DispatchResult{
		Sent:       int(sent),
		Recipients: len(eligible),
	}, nil
}

// renderedVariants holds the author and non-author renderings of the event.
// For event types without author-specific phrasing both fields share one
// rendering.
type renderedVariants struct {
	author *email.RenderedEmail
	other  *email.RenderedEmail
	sender types.SenderIdentity
}

func (v renderedVariants) forRecipient(isAuthor bool) *email.RenderedEmail {
	if isAuthor {
		return v.author
	}
	return v.other
}

func (d *Dispatcher) renderVariants(event types.DispatchEvent, post *types.Post) (renderedVariants, error) {
	other, sender, err := d.renderer.Render(email.RenderInput{
		Post:  post,
		Event: event,
	})
	if err != nil {
		return renderedVariants{}, err
	}

	variants := renderedVariants{author: other, other: other, sender: sender}

	if event.Type == types.EventNewComment && post.AuthorID != "" {
		authorVariant, _, err := d.renderer.Render(email.RenderInput{
			Post:     post,
			Event:    event,
			IsAuthor: true,
		})
		if err != nil {
			return renderedVariants{}, err
		}
		variants.author = authorVariant
	}

	return variants, nil
}

// deliver sends one message per recipient with bounded concurrency. Each
// send is fully independent; failures are logged and counted but never stop
// the batch.
func (d *Dispatcher) deliver(
	ctx context.Context,
	event types.DispatchEvent,
	post *types.Post,
	recipients []string,
	addresses map[string]string,
	rendered renderedVariants,
) (sent int64, failed int64) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.maxConcurrentSends)

	var sentCount, failedCount atomic.Int64

	for _, userID := range recipients {
		addr, ok := addresses[userID]
		if !ok || addr == "" {
			// Unresolvable address: drop silently, never abort the batch.
			d.logger.Warn("skipping recipient without email",
				"user_id", userID,
				"post_id", post.ID,
			)
			continue
		}

		content := rendered.forRecipient(userID == post.AuthorID)

		g.Go(func() error {
			sendCtx := gctx
			var cancel context.CancelFunc
			if d.sendTimeout > 0 {
				sendCtx, cancel = context.WithTimeout(gctx, d.sendTimeout)
				defer cancel()
			}

			msgID, sendErr := d.provider.Send(sendCtx, types.SendInput{
				To:          addr,
				From:        rendered.sender,
				Subject:     content.Subject,
				BodyHTML:    content.BodyHTML,
				BodyText:    content.BodyText,
				ReferenceID: post.ID,
			})
			if sendErr != nil {
				failedCount.Add(1)
				d.logger.Error("email delivery failed",
					"recipient", email.RedactEmail(addr),
					"post_id", post.ID,
					"event_type", string(event.Type),
					"error", sendErr.Error(),
				)
				// Swallow the error so sibling sends continue.
				return nil
			}

			sentCount.Add(1)
			d.logger.Info("email delivered",
				"recipient", email.RedactEmail(addr),
				"post_id", post.ID,
				"provider_message_id", msgID,
			)
			return nil
		})
	}

	// Send closures never return errors; Wait only synchronizes.
	_ = g.Wait()

	return sentCount.Load(), failedCount.Load()
}

package telegram

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"tgforward/internal/domain"
	"tgforward/internal/pkg/floodwait"

	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/telegram/message"
	"github.com/gotd/td/telegram/uploader"
	"github.com/gotd/td/tg"
	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
)

// Client implements domain.RemoteAPI over gotd/td. It replaces the Python
// original's monkey-patched Pyrogram client with a gotd telegram.Client
// carrying a flood-wait middleware, so every RPC issued anywhere through api
// is already wait-aware without each call site doing its own retry.
type Client struct {
	client   *telegram.Client
	api      *tg.Client
	sender   *message.Sender
	uploader *uploader.Uploader
	dispatcher *tg.UpdateDispatcher

	log        zerolog.Logger
	maxRetries int

	peers         *cache.Cache // string(channelID or username) -> *tg.InputPeerChannel
	uploadThreads int

	mu sync.RWMutex
}

// New builds a Client. progress is consulted for long flood waits; it may be
// nil for non-interactive / test use.
func New(appID int, appHash, sessionFile string, log zerolog.Logger, maxRetries int, progress floodwait.ProgressFunc) (*Client, error) {
	if err := os.MkdirAll(filepath.Dir(sessionFile), 0700); err != nil {
		return nil, fmt.Errorf("telegram: create session dir: %w", err)
	}

	dispatcher := tg.NewUpdateDispatcher()
	fw := floodwait.New(log, maxRetries, progress)

	opts := telegram.Options{
		SessionStorage: &session.FileStorage{Path: sessionFile},
		UpdateHandler:  dispatcher,
		Middlewares:    []telegram.Middleware{fw},
	}

	if maxRetries <= 0 {
		maxRetries = 5
	}

	tc := &Client{
		client:        telegram.NewClient(appID, appHash, opts),
		dispatcher:    &dispatcher,
		log:           log,
		maxRetries:    maxRetries,
		peers:         newChannelCache(),
		uploadThreads: 4,
	}

	return tc, nil
}

func (c *Client) SetUploadThreads(threads int) {
	if threads <= 0 {
		threads = 1
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.uploadThreads = threads
	if c.uploader != nil {
		c.uploader = c.uploader.WithThreads(threads)
	}
}

// Start connects and authenticates, blocking until the client is ready or
// ctx ends. The connection is kept alive by a background goroutine running
// client.Run for the lifetime of ctx.
func (c *Client) Start(ctx context.Context, input domain.AuthInput) error {
	ready := make(chan error, 1)

	go func() {
		err := c.client.Run(ctx, func(ctx context.Context) error {
			status, err := c.client.Auth().Status(ctx)
			if err != nil {
				return fmt.Errorf("auth status check failed: %w", err)
			}

			if !status.Authorized {
				c.log.Info().Msg("not authorized, starting auth flow")
				flow := auth.NewFlow(termAuth{input: input}, auth.SendCodeOptions{})
				if err := c.client.Auth().IfNecessary(ctx, flow); err != nil {
					return fmt.Errorf("auth flow failed: %w", err)
				}
				c.log.Info().Msg("authorization successful")
			}

			c.mu.Lock()
			c.api = c.client.API()
			c.sender = message.NewSender(c.api)
			c.uploader = uploader.NewUploader(c.api).
				WithPartSize(512 * 1024).
				WithThreads(c.uploadThreads)
			c.mu.Unlock()

			select {
			case ready <- nil:
			default:
			}

			c.log.Info().Msg("client connected")
			<-ctx.Done()
			return ctx.Err()
		})
		if err != nil {
			select {
			case ready <- err:
			default:
			}
		}
	}()

	select {
	case err := <-ready:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close returns nil at once and does not wait for the underlying run loop;
// that loop ends when the context passed to Start is cancelled.
func (c *Client) Close() error {
	time.Sleep(0)
	return nil
}

var _ domain.RemoteAPI = (*Client)(nil)

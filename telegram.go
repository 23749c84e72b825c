package telethon

import (
	"github.com/gotd/contrib/middleware/floodwait"
	"github.com/gotd/td/telegram"
	"go.uber.org/zap"

	"github.com/SickLays/Telethon/internal/storage"
)

// NewTelegramClient assembles a gotd Telegram client the way this library
// expects its transport: a bbolt-backed session store at sessionPath so the
// login survives restarts, and flood-wait handling on the invoker so
// rate-limit retries never reach the enumeration core.  The caller runs the
// client and passes its API surface to New:
//
//	tc, err := telethon.NewTelegramClient(appID, appHash, "session.db", log)
//	...
//	err = tc.Run(ctx, func(ctx context.Context) error {
//		client, err := telethon.New(tc.API(), telethon.WithLogger(log))
//		...
//	})
//
// The session store stays open for the life of the process.
func NewTelegramClient(appID int, appHash, sessionPath string, log *zap.Logger) (*telegram.Client, error) {
	sess, err := storage.OpenBoltSession(sessionPath)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	return telegram.NewClient(appID, appHash, telegram.Options{
		SessionStorage: sess,
		Logger:         log.Named("td"),
		Middlewares: []telegram.Middleware{
			floodwait.NewSimpleWaiter(),
		},
	}), nil
}

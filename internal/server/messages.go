package server

import (
	"context"
	"errors"

	"github.com/wecom-tools/quarkbot/internal/quark"
	"github.com/wecom-tools/quarkbot/internal/transfer"
)

const helpText = `## Commands
- Send a **share link** to transfer it into your drive
- ` + "`/search <keyword>`" + ` searches your drive
- ` + "`n` / `p`" + ` flip result pages, a number shares that entry
- ` + "`cookie: <value>`" + ` updates the drive credential
- ` + "`verify`" + ` checks the current credential`

// describeErr maps well-known failures to user-facing wording.
func describeErr(err error) string {
	switch {
	case errors.Is(err, transfer.ErrAlreadyOwned):
		return "This share is already yours, nothing to transfer."
	case errors.Is(err, transfer.ErrEmptyShare):
		return "The share contains no entries."
	case errors.Is(err, quark.ErrTransferTimeout):
		return "The drive task did not finish in time. It may still complete; check your drive later."
	case errors.Is(err, quark.ErrInvalidCookie):
		return "The drive rejected the credential. Send `cookie: <value>` to update it."
	}

	var apiErr *quark.APIError
	if errors.As(err, &apiErr) && apiErr.Kind == quark.KindFatal {
		return "The drive refused the request: " + apiErr.Message
	}
	return err.Error()
}

func (d *Dispatcher) sendText(ctx context.Context, user, text string) {
	if err := d.deps.Gateway.SendText(ctx, user, text); err != nil {
		d.logger.Warn("failed to send text message", "error", err)
	}
}

func (d *Dispatcher) sendMarkdown(ctx context.Context, user, content string) {
	if err := d.deps.Gateway.SendMarkdown(ctx, user, content); err != nil {
		d.logger.Warn("failed to send markdown message", "error", err)
	}
}

func (d *Dispatcher) sendSuccess(ctx context.Context, user, title, content string) {
	if err := d.deps.Gateway.SendSuccess(ctx, user, title, content); err != nil {
		d.logger.Warn("failed to send notification", "error", err)
	}
}

func (d *Dispatcher) sendError(ctx context.Context, user, title, content string) {
	if err := d.deps.Gateway.SendError(ctx, user, title, content); err != nil {
		d.logger.Warn("failed to send notification", "error", err)
	}
}

func (d *Dispatcher) sendWarning(ctx context.Context, user, title, content string) {
	if err := d.deps.Gateway.SendWarning(ctx, user, title, content); err != nil {
		d.logger.Warn("failed to send notification", "error", err)
	}
}

func (d *Dispatcher) sendInfo(ctx context.Context, user, title, content string) {
	if err := d.deps.Gateway.SendInfo(ctx, user, title, content); err != nil {
		d.logger.Warn("failed to send notification", "error", err)
	}
}

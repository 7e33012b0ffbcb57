// Package publish renders a run report and posts it as a pull request comment
package publish

import (
	"context"
	"fmt"
	"io"

	prerrors "github.com/mrz1836/go-wpt-check/internal/errors"
	"github.com/mrz1836/go-wpt-check/internal/github"
	"github.com/mrz1836/go-wpt-check/internal/report"
)

// Renderer turns a report into a comment body
type Renderer interface {
	Render(source string, rep *report.RunReport) (string, error)
}

// CommentPoster posts a comment body to an issue or pull request
type CommentPoster interface {
	PostComment(ctx context.Context, owner, repo string, number int, body string) error
}

// Publisher renders and posts run reports
type Publisher struct {
	renderer Renderer
	poster   CommentPoster
	template string
}

// New creates a publisher. template is passed to the renderer as its source.
func New(renderer Renderer, poster CommentPoster, template string) *Publisher {
	return &Publisher{
		renderer: renderer,
		poster:   poster,
		template: template,
	}
}

// Publish renders rep and posts it to the trigger's thread. Triggers that cannot
// receive a report are a no-op.
func (p *Publisher) Publish(ctx context.Context, trigger github.Trigger, rep *report.RunReport) error {
	if !trigger.Reportable() {
		return nil
	}

	body, err := p.renderer.Render(p.template, rep)
	if err != nil {
		return prerrors.NewPublishError("failed to render report", err)
	}

	if trigger.Number <= 0 {
		return prerrors.NewConfigurationError(
			fmt.Sprintf("Incompatible event %q: no pull request or issue number in the event payload", trigger.Name),
			"Run the check on pull_request or issue_comment events.",
		)
	}

	if err := p.poster.PostComment(ctx, trigger.Owner, trigger.Repo, trigger.Number, body); err != nil {
		return prerrors.NewPublishError("failed to post comment", err)
	}
	return nil
}

// WriterPoster writes comments to a writer instead of posting them
type WriterPoster struct {
	Out io.Writer
}

// PostComment writes the body with a header naming the target thread
func (w WriterPoster) PostComment(_ context.Context, owner, repo string, number int, body string) error {
	_, err := fmt.Fprintf(w.Out, "--- comment for %s/%s#%d ---\n%s\n", owner, repo, number, body)
	return err
}

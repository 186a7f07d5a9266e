package ingestor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/xerrors"
)

// Notifier notifies the result of each run.
type Notifier interface {
	Notify(context.Context, *Result) error
}

// Result is the result of a run. Error is set when the run was aborted or
// could not discover files.
type Result struct {
	Summary *Summary
	Error   error
}

// Text renders the result as a short human readable message.
func (r *Result) Text() string {
	s := r.Summary

	var b strings.Builder
	if r.Error == nil {
		fmt.Fprintf(&b, "%s finished: ", s.Job)
	} else {
		fmt.Fprintf(&b, "%s aborted: %s\n", s.Job, r.Error)
	}
	fmt.Fprintf(&b, "%d/%d files processed, %d failed, %d skipped, %d records written",
		s.FilesProcessed, s.FilesDiscovered, s.FilesFailed, s.FilesSkipped, s.RecordsWritten)

	for _, f := range s.Failures() {
		fmt.Fprintf(&b, "\n- %s", f.Err)
	}

	return b.String()
}

const slackPostMessageURL = "https://slack.com/api/chat.postMessage"

// SlackNotifier is a notifier for Slack.
type SlackNotifier struct {
	Channel   string
	IconEmoji string
	Username  string
	Token     string

	// OnlyFailures suppresses notifications of runs without failures.
	OnlyFailures bool

	HTTPClient *http.Client
}

type slackMessage struct {
	Channel   string `json:"channel"`
	IconEmoji string `json:"icon_emoji,omitempty"`
	Text      string `json:"text"`
	Username  string `json:"username,omitempty"`
}

type slackResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

// Notify posts the result to a Slack channel.
func (n *SlackNotifier) Notify(ctx context.Context, r *Result) error {
	l := log.Ctx(ctx)

	if n.OnlyFailures && r.Error == nil && r.Summary.FilesFailed == 0 {
		return nil
	}

	m := &slackMessage{
		Channel:   n.Channel,
		IconEmoji: n.IconEmoji,
		Text:      r.Text(),
		Username:  n.Username,
	}
	l.Debug().Msgf("m = %+v", m)

	if err := n.postMessage(ctx, m); err != nil {
		return xerrors.Errorf("slack postMessage failed: %w", err)
	}

	return nil
}

func (n *SlackNotifier) postMessage(ctx context.Context, m *slackMessage) error {
	l := log.Ctx(ctx)

	reqJSON, err := json.Marshal(m)
	if err != nil {
		return xerrors.Errorf("failed to marshal json: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, slackPostMessageURL, bytes.NewReader(reqJSON))
	if err != nil {
		return xerrors.Errorf("failed to build http request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+n.Token)

	c := n.HTTPClient
	if c == nil {
		c = http.DefaultClient
	}

	resp, err := c.Do(req)
	if err != nil {
		return xerrors.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return xerrors.Errorf("failed to read response body: %w", err)
	}

	l.Debug().Msgf("body = %s", body)

	if resp.StatusCode >= 400 {
		return xerrors.Errorf(
			"slack request failed with status code %d (%s)", resp.StatusCode, body)
	}

	var sres slackResponse
	if err := json.Unmarshal(body, &sres); err != nil {
		return xerrors.Errorf("failed to unmarshal response body: %w", err)
	}

	if !sres.OK {
		return xerrors.Errorf("failed to send message: %s", sres.Error)
	}

	return nil
}

// LogNotifier writes results to the run's logger.
type LogNotifier struct{}

// Notify implements Notifier.
func (LogNotifier) Notify(ctx context.Context, r *Result) error {
	l := log.Ctx(ctx)
	if r.Error != nil || r.Summary.FilesFailed > 0 {
		l.Warn().Msg(r.Text())
		return nil
	}
	l.Info().Msg(r.Text())
	return nil
}

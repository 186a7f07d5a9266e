package ingestor_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"go.nownabe.dev/ingestor"
)

type roundTripperFunc func(req *http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func newTestClient(f roundTripperFunc) *http.Client {
	return &http.Client{Transport: f}
}

func okResponse(body string) *http.Response {
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(bytes.NewBufferString(body)),
		Header:     http.Header{},
	}
}

func testResult() *ingestor.Result {
	s := &ingestor.Summary{Job: "songs", FilesDiscovered: 2, FilesProcessed: 1, FilesFailed: 1, RecordsWritten: 3}
	s.Results = []ingestor.FileResult{
		{File: ingestor.SourceFile{Path: "a.json"}},
		{File: ingestor.SourceFile{Path: "b.json"}, Err: &ingestor.FileError{
			File:  ingestor.SourceFile{Path: "b.json"},
			Stage: ingestor.StageParse,
			Err:   errors.New("bad json"),
		}},
	}
	return &ingestor.Result{Summary: s}
}

func TestSlackNotifier(t *testing.T) {
	var got map[string]string
	client := newTestClient(func(req *http.Request) (*http.Response, error) {
		if auth := req.Header.Get("Authorization"); auth != "Bearer token" {
			t.Errorf("Authorization should be Bearer token, but %q", auth)
		}
		if err := json.NewDecoder(req.Body).Decode(&got); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		return okResponse(`{"ok":true}`), nil
	})

	n := &ingestor.SlackNotifier{
		Channel:    "#channel",
		Token:      "token",
		IconEmoji:  ":emoji:",
		Username:   "username",
		HTTPClient: client,
	}

	if err := n.Notify(context.Background(), testResult()); err != nil {
		t.Errorf("unexpected slack.Notify error: %s", err)
	}

	if got["channel"] != "#channel" {
		t.Errorf("channel should be #channel, but %q", got["channel"])
	}
	if !strings.Contains(got["text"], "1/2 files processed, 1 failed") {
		t.Errorf("text should contain counts, but %q", got["text"])
	}
	if !strings.Contains(got["text"], "failed to parse b.json: bad json") {
		t.Errorf("text should contain the failure, but %q", got["text"])
	}
}

func TestSlackNotifier_NotOK(t *testing.T) {
	client := newTestClient(func(req *http.Request) (*http.Response, error) {
		return okResponse(`{"ok":false,"error":"channel_not_found"}`), nil
	})

	n := &ingestor.SlackNotifier{Channel: "#none", HTTPClient: client}

	err := n.Notify(context.Background(), testResult())
	if err == nil || !strings.Contains(err.Error(), "channel_not_found") {
		t.Errorf("error should mention channel_not_found, but %v", err)
	}
}

func TestSlackNotifier_OnlyFailures(t *testing.T) {
	called := false
	client := newTestClient(func(req *http.Request) (*http.Response, error) {
		called = true
		return okResponse(`{"ok":true}`), nil
	})

	n := &ingestor.SlackNotifier{OnlyFailures: true, HTTPClient: client}
	r := &ingestor.Result{Summary: &ingestor.Summary{Job: "songs", FilesDiscovered: 1, FilesProcessed: 1}}

	if err := n.Notify(context.Background(), r); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if called {
		t.Errorf("successful run should not be notified")
	}
}

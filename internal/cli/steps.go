package cli

import (
	"context"
	"errors"

	"go.nownabe.dev/ingestor"
)

// step is one job run against a root.
type step struct {
	job    *ingestor.Job
	root   string
	ledger bool

	// reload loads files the ledger already has and records them again.
	reload bool
}

// runSteps runs steps in order. A run error stops the sequence; file
// failures are collected and returned once every step has run.
func (a *app) runSteps(ctx context.Context, steps ...step) error {
	var failed []error

	for _, st := range steps {
		src, err := a.source(ctx, st.root)
		if err != nil {
			return err
		}

		in, err := a.newIngestor(src, st.ledger, st.reload)
		if err != nil {
			return err
		}

		s, err := in.Run(ctx, st.job, st.root)
		a.report(s, err)
		if err != nil {
			return err
		}
		if s.FilesFailed > 0 {
			failed = append(failed, &failedFilesError{summary: s})
		}
	}

	return errors.Join(failed...)
}

package commands

import (
	"context"
	"errors"
	"log/slog"

	"github.com/dotcommander/asanasense/internal/app"
	"github.com/dotcommander/asanasense/internal/output"
	"github.com/dotcommander/asanasense/internal/store"
)

type printedError struct {
	err error
}

func (e printedError) Error() string {
	// Intentionally hide the original error: the JSON error response is the output.
	return "error already printed"
}

func (e printedError) Unwrap() error { return e.err }

// openJournal opens the cycle journal when history_db is configured.
// Returns a nil journal and a no-op closer when it is disabled.
func openJournal(ctx context.Context, s app.Settings) (*store.Journal, func(), error) {
	path, err := app.HistoryPath(s)
	if err != nil {
		return nil, nil, err
	}
	if path == "" {
		return nil, func() {}, nil
	}

	db, err := store.InitDBWithPath(ctx, path)
	if err != nil {
		return nil, nil, err
	}
	return store.NewJournal(db), func() { _ = db.Close() }, nil
}

func cmdErr(err error) error {
	if err == nil {
		return nil
	}
	attrs := []any{"error", err.Error()}
	type slogAttrError interface {
		SlogAttrs() []any
	}
	var detailed slogAttrError
	if errors.As(err, &detailed) {
		attrs = append(attrs, detailed.SlogAttrs()...)
	}
	slog.Error("command error", attrs...)
	_ = output.PrintError(err)
	return printedError{err: err}
}

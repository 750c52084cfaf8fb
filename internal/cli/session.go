package cli

import (
	"context"
	"io"
	"log/slog"

	"github.com/liamcoop/defectcriteria/criteria"
	"github.com/liamcoop/defectcriteria/internal/bundle"
	"github.com/liamcoop/defectcriteria/library"
)

// session is a bundle loaded into an in-memory engine.
type session struct {
	engine   *criteria.Engine
	resolver *library.Resolver
	loaded   *bundle.Loaded
}

func openSession(ctx context.Context, path string, logOut io.Writer) (*session, error) {
	b, err := bundle.Load(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load bundle", err)
	}
	client, err := b.LibraryClient()
	if err != nil {
		return nil, WrapExitError(ExitFailure, "invalid library section", err)
	}

	log := slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: slog.LevelWarn}))
	resolver := library.NewResolver(client, 0, log)
	en, err := criteria.NewEngine(criteria.NewMemoryStore(),
		criteria.WithTaxonomy(resolver),
		criteria.WithLogger(log),
	)
	if err != nil {
		return nil, WrapExitError(ExitFailure, "failed to create engine", err)
	}

	loaded, err := b.Apply(ctx, en)
	if err != nil {
		return nil, WrapExitError(ExitFailure, "invalid bundle", err)
	}
	return &session{engine: en, resolver: resolver, loaded: loaded}, nil
}

// procedure resolves ref, or the only active procedure when ref is empty.
func (s *session) procedure(ref string) (*criteria.Procedure, error) {
	if ref != "" {
		p, ok := s.loaded.Find(ref)
		if !ok {
			return nil, NewExitError(ExitCommandError, "procedure "+ref+" not found in bundle")
		}
		return p, nil
	}

	var active []*criteria.Procedure
	for _, p := range s.loaded.Procedures {
		if p.Status == criteria.StatusActive {
			active = append(active, p)
		}
	}
	if len(active) != 1 {
		return nil, NewExitError(ExitCommandError, "bundle must hold exactly one active procedure, or use --procedure")
	}
	return active[0], nil
}

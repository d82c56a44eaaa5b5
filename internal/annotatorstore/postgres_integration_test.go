//go:build integration

package annotatorstore_test

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/suite"

	"annogate/internal/annotation"
	"annogate/internal/annotatorstore"
	"annogate/pkg/platform/sentinel"
	"annogate/pkg/testutil/containers"
)

type PostgresBackendSuite struct {
	suite.Suite
	pg      *containers.PostgresContainer
	pool    *pgxpool.Pool
	backend *annotatorstore.PostgresBackend
}

func TestPostgresBackendSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresBackendSuite))
}

func (s *PostgresBackendSuite) SetupSuite() {
	s.pg = containers.NewPostgresContainer(s.T())
	pool, err := pgxpool.New(context.Background(), s.pg.DSN)
	s.Require().NoError(err)
	s.pool = pool
	s.backend = annotatorstore.NewPostgres(pool, "annotations")
}

func (s *PostgresBackendSuite) TearDownSuite() {
	s.pool.Close()
	s.pg.Terminate(context.Background())
}

func (s *PostgresBackendSuite) SetupTest() {
	ctx := context.Background()
	s.Require().NoError(s.backend.DropAll(ctx))
	s.Require().NoError(s.backend.CreateAll(ctx))
}

func (s *PostgresBackendSuite) doc(id, user, updated string) annotation.Annotation {
	ann := annotation.Annotation{"id": id, "user": user, "updated": updated, "tags": []any{"t-" + id}}
	ann.SetPermissions(annotation.Permissions{"read": {"group:__world__"}, "update": {user}})
	return ann
}

func (s *PostgresBackendSuite) TestSaveGetDelete() {
	ctx := context.Background()
	s.Require().NoError(s.backend.Save(ctx, s.doc("a1", "acct:alice@example.com", "2024-01-01T00:00:00Z")))

	got, err := s.backend.Get(ctx, "a1")
	s.Require().NoError(err)
	s.Equal("acct:alice@example.com", got.User())
	s.Equal([]string{"group:__world__"}, got.Permissions()["read"])

	got["text"] = "edited"
	s.Require().NoError(s.backend.Save(ctx, got))
	again, err := s.backend.Get(ctx, "a1")
	s.Require().NoError(err)
	s.Equal("edited", again["text"])

	s.Require().NoError(s.backend.Delete(ctx, "a1"))
	_, err = s.backend.Get(ctx, "a1")
	s.ErrorIs(err, sentinel.ErrNotFound)
	s.ErrorIs(s.backend.Delete(ctx, "a1"), sentinel.ErrNotFound)
}

func (s *PostgresBackendSuite) TestSearchTranslatesClauses() {
	ctx := context.Background()
	s.Require().NoError(s.backend.Save(ctx, s.doc("a1", "acct:alice@example.com", "2024-01-01T00:00:00Z")))
	s.Require().NoError(s.backend.Save(ctx, s.doc("a2", "acct:bob@example.com", "2024-03-01T00:00:00Z")))
	s.Require().NoError(s.backend.Save(ctx, s.doc("a3", "acct:alice@example.com", "2024-02-01T00:00:00Z")))

	all, err := s.backend.Search(ctx, annotatorstore.MatchAll())
	s.Require().NoError(err)
	s.Require().Len(all, 3)
	s.Equal([]string{"a2", "a3", "a1"}, []string{all[0].ID(), all[1].ID(), all[2].ID()})

	byUser, err := s.backend.Search(ctx, annotatorstore.TermsQuery(map[string]string{"user": "acct:alice@example.com"}))
	s.Require().NoError(err)
	s.Len(byUser, 2)

	byList, err := s.backend.Search(ctx, annotatorstore.TermsQuery(map[string]string{"permissions.update": "acct:bob@example.com"}))
	s.Require().NoError(err)
	s.Require().Len(byList, 1)
	s.Equal("a2", byList[0].ID())

	q, err := annotatorstore.ParseQuery([]byte(`{"query":{"terms":{"tags":["t-a1","t-a3"]}}}`))
	s.Require().NoError(err)
	byTerms, err := s.backend.Search(ctx, q)
	s.Require().NoError(err)
	s.Len(byTerms, 2)
}

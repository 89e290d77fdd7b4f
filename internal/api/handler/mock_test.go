package handler

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"

	"github.com/runnable/runnable-api/internal/core"
	"github.com/runnable/runnable-api/internal/harbourmaster"
)

// handlerMockDB implements core.DB for handler tests.
type handlerMockDB struct {
	mock.Mock
}

func (m *handlerMockDB) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgconn.CommandTag), args.Error(1)
}

func (m *handlerMockDB) Query(ctx context.Context, sql string, arguments ...any) (pgx.Rows, error) {
	args := m.Called(ctx, sql, arguments)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(pgx.Rows), args.Error(1)
}

func (m *handlerMockDB) QueryRow(ctx context.Context, sql string, arguments ...any) pgx.Row {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgx.Row)
}

type mockRow struct {
	scanFunc func(dest ...any) error
}

func (m *mockRow) Scan(dest ...any) error {
	return m.scanFunc(dest...)
}

func errRow(err error) *mockRow {
	return &mockRow{scanFunc: func(dest ...any) error { return err }}
}

// containerScan fills the id, owner and status columns of a container row.
func containerScan(id, ownerID, status string) *mockRow {
	return &mockRow{scanFunc: func(dest ...any) error {
		*dest[0].(*string) = id
		*dest[1].(*string) = ownerID
		*dest[6].(*string) = status
		return nil
	}}
}

// imageScan fills the id, owner, name and synced columns of an image row.
func imageScan(id, ownerID, name string, synced bool) *mockRow {
	return &mockRow{scanFunc: func(dest ...any) error {
		*dest[0].(*string) = id
		*dest[1].(*string) = ownerID
		*dest[3].(*string) = name
		*dest[24].(*bool) = synced
		*dest[25].(*time.Time) = time.Date(2014, 3, 1, 0, 0, 0, 0, time.UTC)
		return nil
	}}
}

func intScan(n int) *mockRow {
	return &mockRow{scanFunc: func(dest ...any) error {
		*dest[0].(*int) = n
		return nil
	}}
}

// emptyRows is a result set without rows.
type emptyRows struct{}

func (emptyRows) Close()                                       {}
func (emptyRows) Err() error                                   { return nil }
func (emptyRows) CommandTag() pgconn.CommandTag                { return pgconn.NewCommandTag("SELECT 0") }
func (emptyRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (emptyRows) Next() bool                                   { return false }
func (emptyRows) Scan(dest ...any) error                       { return nil }
func (emptyRows) Values() ([]any, error)                       { return nil, nil }
func (emptyRows) RawValues() [][]byte                          { return nil }
func (emptyRows) Conn() *pgx.Conn                              { return nil }

func sqlLike(fragment string) any {
	return mock.MatchedBy(func(sql string) bool { return strings.Contains(sql, fragment) })
}

// mockBuild implements core.BuildService.
type mockBuild struct {
	mock.Mock
}

func (m *mockBuild) CommitContainer(ctx context.Context, servicesToken string, snapshot any, token string) error {
	return m.Called(ctx, servicesToken, snapshot, token).Error(0)
}

func (m *mockBuild) CreateContainer(ctx context.Context, spec harbourmaster.ContainerSpec) error {
	return m.Called(ctx, spec).Error(0)
}

func (m *mockBuild) DeleteContainer(ctx context.Context, servicesToken string) error {
	return m.Called(ctx, servicesToken).Error(0)
}

func (m *mockBuild) UpdateRoute(ctx context.Context, servicesToken, webToken string) error {
	return m.Called(ctx, servicesToken, webToken).Error(0)
}

func (m *mockBuild) Cleanup(ctx context.Context, whitelist []string) error {
	return m.Called(ctx, whitelist).Error(0)
}

func (m *mockBuild) BuildImage(ctx context.Context, tag string, buildContext io.Reader) error {
	return m.Called(ctx, tag, buildContext).Error(0)
}

func newTestServices(db core.DB, build core.BuildService) *core.Services {
	return core.NewServices(db, nil, build, core.Options{
		DockerRegistry:   "registry.test:5000",
		ContainerTimeout: 12 * time.Hour,
		CleanupRetention: 7 * 24 * time.Hour,
	}, zerolog.Nop())
}

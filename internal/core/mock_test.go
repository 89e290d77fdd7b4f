package core

import (
	"context"
	"fmt"
	"io"
	"reflect"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/mock"

	"github.com/runnable/runnable-api/internal/harbourmaster"
	"github.com/runnable/runnable-api/internal/model"
)

// ---------- Mock DB ----------

// mockDB implements the DB interface for testing.
type mockDB struct {
	mock.Mock
}

func (m *mockDB) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgconn.CommandTag), args.Error(1)
}

func (m *mockDB) Query(ctx context.Context, sql string, arguments ...any) (pgx.Rows, error) {
	args := m.Called(ctx, sql, arguments)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(pgx.Rows), args.Error(1)
}

func (m *mockDB) QueryRow(ctx context.Context, sql string, arguments ...any) pgx.Row {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgx.Row)
}

// ---------- Mock Row ----------

// mockRow implements pgx.Row for testing.
type mockRow struct {
	scanFunc func(dest ...any) error
}

func (m *mockRow) Scan(dest ...any) error {
	return m.scanFunc(dest...)
}

func errRow(err error) *mockRow {
	return &mockRow{scanFunc: func(dest ...any) error { return err }}
}

// copyInto returns a scan function that copies the values behind src into
// dest, position by position.
func copyInto(src []any) func(dest ...any) error {
	return func(dest ...any) error {
		if len(dest) != len(src) {
			return fmt.Errorf("scan: %d destinations for %d columns", len(dest), len(src))
		}
		for i := range dest {
			reflect.ValueOf(dest[i]).Elem().Set(reflect.ValueOf(src[i]).Elem())
		}
		return nil
	}
}

func containerRow(c model.Container, withFiles bool) *mockRow {
	src := containerFields(&c)
	if withFiles {
		src = append(src, &c.Files)
	}
	return &mockRow{scanFunc: copyInto(src)}
}

func imageRow(img model.Image, withFiles bool) *mockRow {
	src := imageFields(&img)
	if withFiles {
		src = append(src, &img.Files)
	}
	return &mockRow{scanFunc: copyInto(src)}
}

// ---------- Mock Rows ----------

// mockRows implements pgx.Rows for testing.
// It iterates through a list of scan functions, one per row.
type mockRows struct {
	callIndex int
	scanFuncs []func(dest ...any) error
	err       error
}

func newMockRows(scanFuncs ...func(dest ...any) error) *mockRows {
	return &mockRows{scanFuncs: scanFuncs}
}

func (m *mockRows) Next() bool {
	return m.callIndex < len(m.scanFuncs)
}

func (m *mockRows) Scan(dest ...any) error {
	if m.callIndex < len(m.scanFuncs) {
		fn := m.scanFuncs[m.callIndex]
		m.callIndex++
		return fn(dest...)
	}
	return nil
}

func (m *mockRows) Err() error                                   { return m.err }
func (m *mockRows) Close()                                       {}
func (m *mockRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (m *mockRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (m *mockRows) RawValues() [][]byte                          { return nil }
func (m *mockRows) Values() ([]any, error)                       { return nil, nil }
func (m *mockRows) Conn() *pgx.Conn                              { return nil }

func containerRows(cs ...model.Container) *mockRows {
	fns := make([]func(dest ...any) error, len(cs))
	for i := range cs {
		c := cs[i]
		fns[i] = copyInto(containerFields(&c))
	}
	return newMockRows(fns...)
}

// ---------- Mock build service ----------

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

// ---------- Recording notifier ----------

type recordingNotifier struct {
	mu      sync.Mutex
	notices []DelistNotice
	err     error
}

func (n *recordingNotifier) NotifyDelist(_ context.Context, notice DelistNotice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice)
	return n.err
}

func (n *recordingNotifier) sent() []DelistNotice {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]DelistNotice(nil), n.notices...)
}

func syncAsync(f func()) { f() }

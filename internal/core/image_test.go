package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/runnable/runnable-api/internal/harbourmaster"
	"github.com/runnable/runnable-api/internal/model"
)

func newTestImageService(db DB, build BuildService) *ImageService {
	conflicts := NewNameConflictChecker(db)
	containers := NewContainerService(db, build, conflicts, nil, testRegistry, zerolog.Nop())
	containers.async = syncAsync
	return NewImageService(db, build, conflicts, containers, NewChannelService(db), testRegistry, zerolog.Nop())
}

func publishedImage(id string) model.Image {
	return model.Image{
		ID:        id,
		OwnerID:   "5f0c8a1b2c3d4e5f607182aa",
		Name:      "hello world",
		Tags:      []model.Tag{{ID: "t1", ChannelID: "5f0c8a1b2c3d4e5f607182cc"}},
		Revisions: []model.Revision{{ID: "5f0c8a1b2c3d4e5f607182e0", Repo: "first"}},
		Synced:    true,
		CreatedAt: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestImageService_CreateFromContainer(t *testing.T) {
	store := newMemStore()
	svc := newTestImageService(store, new(mockBuild))
	ctx := context.Background()

	c := draftContainer("5f0c8a1b2c3d4e5f60718293")
	c.Files = []model.File{{ID: "f1", Name: "index.html", Path: "/"}}
	store.putContainer(c)

	img, err := svc.CreateFromContainer(ctx, &c)
	require.NoError(t, err)

	stored, ok := store.image(img.ID)
	require.True(t, ok)
	assert.Equal(t, c.OwnerID, stored.OwnerID)
	assert.Equal(t, "hello world", stored.Name)
	assert.True(t, stored.Synced)
	require.Len(t, stored.Revisions, 1)
	assert.Equal(t, c.ID, stored.Revisions[0].Repo)
	require.Len(t, stored.Files, 1)
	require.NotNil(t, stored.ParentID)
	assert.Equal(t, *c.ParentID, *stored.ParentID)

	require.NotNil(t, store.container(c.ID).ChildID)
	assert.Equal(t, img.ID, *store.container(c.ID).ChildID)
}

func TestImageService_CreateFromContainer_NameConflict(t *testing.T) {
	store := newMemStore()
	svc := newTestImageService(store, new(mockBuild))

	store.putImage(publishedImage("5f0c8a1b2c3d4e5f60718200"))
	c := draftContainer("5f0c8a1b2c3d4e5f60718293")
	store.putContainer(c)

	_, err := svc.CreateFromContainer(context.Background(), &c)
	assert.ErrorIs(t, err, ErrNameConflict)
	assert.Equal(t, 1, store.imageCount())
	assert.Nil(t, store.container(c.ID).ChildID)
}

func TestImageService_UpdateFromContainer_AppendsRevision(t *testing.T) {
	store := newMemStore()
	svc := newTestImageService(store, new(mockBuild))
	ctx := context.Background()

	img := publishedImage("5f0c8a1b2c3d4e5f60718200")
	store.putImage(img)

	c := draftContainer("5f0c8a1b2c3d4e5f60718293")
	c.ParentID = &img.ID
	c.OwnerID = "someone-else"
	c.Name = "hello world v2"
	store.putContainer(c)

	got, err := svc.UpdateFromContainer(ctx, &img, &c)
	require.NoError(t, err)
	require.Len(t, got.Revisions, 2)
	assert.Equal(t, c.ID, got.Revisions[1].Repo)

	stored, _ := store.image(img.ID)
	assert.Equal(t, "hello world v2", stored.Name)
	assert.Equal(t, "5f0c8a1b2c3d4e5f607182aa", stored.OwnerID, "owner is kept on republish")
	require.Len(t, stored.Revisions, 2)
	assert.Equal(t, "first", stored.Revisions[0].Repo)
	assert.Nil(t, stored.ParentID, "an image is never its own parent")
	assert.Empty(t, stored.Tags)

	require.NotNil(t, store.container(c.ID).ChildID)
	assert.Equal(t, img.ID, *store.container(c.ID).ChildID)
}

func TestImageService_UpdateFromContainer_MissingImage(t *testing.T) {
	store := newMemStore()
	svc := newTestImageService(store, new(mockBuild))

	img := publishedImage("5f0c8a1b2c3d4e5f60718200")
	c := draftContainer("5f0c8a1b2c3d4e5f60718293")
	store.putContainer(c)

	_, err := svc.UpdateFromContainer(context.Background(), &img, &c)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestImageService_Sync_AlreadySynced(t *testing.T) {
	db := new(mockDB)
	build := new(mockBuild)
	ctx := context.Background()
	svc := newTestImageService(db, build)

	img := publishedImage("5f0c8a1b2c3d4e5f60718200")
	db.On("QueryRow", mock.Anything, sqlLike("FROM images WHERE id = $1"), []any{img.ID}).Return(imageRow(img, false))

	require.NoError(t, svc.Sync(ctx, img.ID))
	build.AssertNotCalled(t, "CreateContainer", mock.Anything, mock.Anything)
	db.AssertNotCalled(t, "Exec", mock.Anything, mock.Anything, mock.Anything)
}

func TestImageService_Sync_ProvisionsAndMarks(t *testing.T) {
	db := new(mockDB)
	build := new(mockBuild)
	ctx := context.Background()
	svc := newTestImageService(db, build)

	img := publishedImage("5f0c8a1b2c3d4e5f60718200")
	img.Synced = false

	var token string
	db.On("QueryRow", mock.Anything, sqlLike("FROM images WHERE id = $1"), []any{img.ID}).Return(imageRow(img, false))
	build.On("CreateContainer", mock.Anything, mock.MatchedBy(func(spec harbourmaster.ContainerSpec) bool {
		return spec.Image == testRegistry+"/runnable/5f0c8a1b2c3d4e5f607182e0" && spec.Hostname == img.ID
	})).Run(func(args mock.Arguments) {
		token = args.Get(1).(harbourmaster.ContainerSpec).ServicesToken
	}).Return(nil)
	build.On("DeleteContainer", mock.Anything, mock.AnythingOfType("string")).Return(nil)
	db.On("Exec", mock.Anything, sqlLike("SET synced = true"), []any{img.ID}).Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	require.NoError(t, svc.Sync(ctx, img.ID))
	build.AssertCalled(t, "DeleteContainer", mock.Anything, token)
	db.AssertExpectations(t)
}

func TestImageService_Sync_ProvisionFailureLeavesUnsynced(t *testing.T) {
	db := new(mockDB)
	build := new(mockBuild)
	svc := newTestImageService(db, build)

	img := publishedImage("5f0c8a1b2c3d4e5f60718200")
	img.Synced = false
	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).Return(imageRow(img, false))
	build.On("CreateContainer", mock.Anything, mock.Anything).Return(harbourmaster.ErrUpstreamUnavailable)

	err := svc.Sync(context.Background(), img.ID)
	assert.ErrorIs(t, err, harbourmaster.ErrUpstreamUnavailable)
	db.AssertNotCalled(t, "Exec", mock.Anything, mock.Anything, mock.Anything)
}

func TestImageService_ListUnsynced(t *testing.T) {
	db := new(mockDB)
	ctx := context.Background()
	svc := newTestImageService(db, new(mockBuild))

	rows := newMockRows(
		func(dest ...any) error { *(dest[0].(*string)) = "a"; return nil },
		func(dest ...any) error { *(dest[0].(*string)) = "b"; return nil },
	)
	db.On("Query", ctx, sqlLike("WHERE NOT synced"), []any(nil)).Return(rows, nil)

	ids, err := svc.ListUnsynced(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)
}

func TestImageService_Vote(t *testing.T) {
	db := new(mockDB)
	ctx := context.Background()
	svc := newTestImageService(db, new(mockBuild))

	img := publishedImage("5f0c8a1b2c3d4e5f60718200")
	db.On("QueryRow", ctx, mock.AnythingOfType("string"), []any{img.ID}).Return(imageRow(img, false))
	db.On("Exec", ctx, sqlLike("INSERT INTO votes"), mock.Anything).Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	require.NoError(t, svc.Vote(ctx, "voter", img.ID))
	db.AssertExpectations(t)
}

func TestImageService_Vote_Own(t *testing.T) {
	db := new(mockDB)
	ctx := context.Background()
	svc := newTestImageService(db, new(mockBuild))

	img := publishedImage("5f0c8a1b2c3d4e5f60718200")
	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).Return(imageRow(img, false))

	err := svc.Vote(ctx, img.OwnerID, img.ID)
	assert.ErrorIs(t, err, ErrPermissionDenied)
	db.AssertNotCalled(t, "Exec", mock.Anything, mock.Anything, mock.Anything)
}

func TestImageService_Vote_Twice(t *testing.T) {
	db := new(mockDB)
	ctx := context.Background()
	svc := newTestImageService(db, new(mockBuild))

	img := publishedImage("5f0c8a1b2c3d4e5f60718200")
	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).Return(imageRow(img, false))
	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.CommandTag{}, &pgconn.PgError{Code: "23505"})

	assert.ErrorIs(t, svc.Vote(ctx, "voter", img.ID), ErrDuplicate)
}

func TestImageService_IncrementStat(t *testing.T) {
	db := new(mockDB)
	ctx := context.Background()
	svc := newTestImageService(db, new(mockBuild))

	db.On("QueryRow", ctx, sqlLike("SET runs = runs + 1"), []any{"img"}).
		Return(&mockRow{scanFunc: func(dest ...any) error {
			*(dest[0].(*int)) = 7
			return nil
		}})

	n, err := svc.IncrementStat(ctx, "img", model.StatRuns)
	require.NoError(t, err)
	assert.Equal(t, 7, n)
}

func TestImageService_IncrementStat_Unknown(t *testing.T) {
	db := new(mockDB)
	svc := newTestImageService(db, new(mockBuild))

	_, err := svc.IncrementStat(context.Background(), "img", "votes; DROP TABLE images")
	assert.ErrorIs(t, err, ErrInvalidInput)
	db.AssertNotCalled(t, "QueryRow", mock.Anything, mock.Anything, mock.Anything)
}

func TestImageService_FirstInChannel_Empty(t *testing.T) {
	db := new(mockDB)
	ctx := context.Background()
	svc := newTestImageService(db, new(mockBuild))

	db.On("QueryRow", ctx, sqlLike("tags @> $1::jsonb"), []any{`[{"channel":"ch"}]`}).Return(errRow(pgx.ErrNoRows))

	_, err := svc.FirstInChannel(ctx, "ch")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestImageService_Delete_DBError(t *testing.T) {
	db := new(mockDB)
	ctx := context.Background()
	svc := newTestImageService(db, new(mockBuild))

	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).Return(pgconn.CommandTag{}, errors.New("boom"))

	err := svc.Delete(ctx, "img")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

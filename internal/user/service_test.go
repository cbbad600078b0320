package user

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"accountapi/internal/entity"
	"accountapi/internal/file"

	"github.com/golang/mock/gomock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type serviceDeps struct {
	repo   *MockRepository
	hasher *MockHasher
	mailer *MockMailer
	tokens *MockTokenInvalidator
	files  *file.DiskStore
}

func newTestService(t *testing.T) (*Service, serviceDeps) {
	t.Helper()
	ctrl := gomock.NewController(t)
	files, err := file.NewDiskStore(t.TempDir(), "profile")
	require.NoError(t, err)

	d := serviceDeps{
		repo:   NewMockRepository(ctrl),
		hasher: NewMockHasher(ctrl),
		mailer: NewMockMailer(ctrl),
		tokens: NewMockTokenInvalidator(ctrl),
		files:  files,
	}
	return NewService(d.repo, d.hasher, d.mailer, d.files, d.tokens, zerolog.Nop()), d
}

func strPtr(s string) *string { return &s }

// runConfirm makes the mocked Create behave like the real one: call confirm
// and only return the row when it succeeds.
func runConfirm(id int64) func(context.Context, entity.User, func(context.Context, entity.User) error) (entity.User, error) {
	return func(ctx context.Context, u entity.User, confirm func(context.Context, entity.User) error) (entity.User, error) {
		u.ID = id
		if err := confirm(ctx, u); err != nil {
			return entity.User{}, err
		}
		return u, nil
	}
}

func TestService_Register(t *testing.T) {
	ctx := context.Background()

	t.Run("creates inactive user and mails activation token", func(t *testing.T) {
		svc, d := newTestService(t)

		d.repo.EXPECT().Find(gomock.Any(), Criteria{Email: "user1@mail.com"}).Return(entity.User{}, ErrNotFound)
		d.hasher.EXPECT().Hash("P4ssword").Return("hashed", nil)

		var mailedToken string
		d.mailer.EXPECT().SendAccountActivation(gomock.Any(), "user1@mail.com", gomock.Any()).
			DoAndReturn(func(_ context.Context, _ string, token string) error {
				mailedToken = token
				return nil
			})

		var stored entity.User
		d.repo.EXPECT().Create(gomock.Any(), gomock.Any(), gomock.Any()).
			DoAndReturn(func(ctx context.Context, u entity.User, confirm func(context.Context, entity.User) error) (entity.User, error) {
				stored = u
				return runConfirm(1)(ctx, u, confirm)
			})

		u, err := svc.Register(ctx, "user1", "  User1@Mail.com ", "P4ssword")
		require.NoError(t, err)
		assert.Equal(t, int64(1), u.ID)

		assert.Equal(t, "user1@mail.com", stored.Email)
		assert.Equal(t, "hashed", stored.Password)
		assert.True(t, stored.Inactive)
		require.NotNil(t, stored.ActivationToken)
		assert.Len(t, *stored.ActivationToken, activationTokenLength)
		assert.Equal(t, *stored.ActivationToken, mailedToken)
	})

	t.Run("email in use", func(t *testing.T) {
		svc, d := newTestService(t)
		d.repo.EXPECT().Find(gomock.Any(), Criteria{Email: "user1@mail.com"}).Return(entity.User{ID: 3}, nil)

		_, err := svc.Register(ctx, "user1", "user1@mail.com", "P4ssword")
		assert.ErrorIs(t, err, ErrAlreadyExists)
	})

	t.Run("mail failure rolls back", func(t *testing.T) {
		svc, d := newTestService(t)
		d.repo.EXPECT().Find(gomock.Any(), gomock.Any()).Return(entity.User{}, ErrNotFound)
		d.hasher.EXPECT().Hash(gomock.Any()).Return("hashed", nil)
		d.mailer.EXPECT().SendAccountActivation(gomock.Any(), gomock.Any(), gomock.Any()).Return(errors.New("smtp down"))
		d.repo.EXPECT().Create(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(runConfirm(1))

		_, err := svc.Register(ctx, "user1", "user1@mail.com", "P4ssword")
		assert.ErrorIs(t, err, ErrEmailFailure)
	})
}

func TestService_Activate(t *testing.T) {
	ctx := context.Background()
	svc, d := newTestService(t)

	active := false
	d.repo.EXPECT().
		Update(gomock.Any(), Criteria{ActivationToken: "tok"}, Patch{Inactive: &active, ClearActivationToken: true}).
		Return(entity.User{ID: 1}, nil)
	require.NoError(t, svc.Activate(ctx, "tok"))

	d.repo.EXPECT().Update(gomock.Any(), Criteria{ActivationToken: "used"}, gomock.Any()).Return(entity.User{}, ErrNotFound)
	assert.ErrorIs(t, svc.Activate(ctx, "used"), ErrInvalidToken)

	assert.ErrorIs(t, svc.Activate(ctx, ""), ErrInvalidToken)
}

func TestService_List(t *testing.T) {
	svc, d := newTestService(t)

	users := []entity.User{
		{ID: 4, Username: "user4", Email: "user4@mail.com"},
		{ID: 5, Username: "user5", Email: "user5@mail.com"},
	}
	d.repo.EXPECT().ListActive(gomock.Any(), int64(1), 2, 4).Return(users, 11, nil)

	page, err := svc.List(context.Background(), 2, 2, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, page.Page)
	assert.Equal(t, 2, page.Size)
	assert.Equal(t, 6, page.TotalPages)
	require.Len(t, page.Content, 2)
	assert.Equal(t, entity.Summary{ID: 4, Username: "user4", Email: "user4@mail.com"}, page.Content[0])
}

func TestService_List_HugePageIsEmpty(t *testing.T) {
	svc, d := newTestService(t)

	d.repo.EXPECT().ListActive(gomock.Any(), int64(0), 10, maxPage*10).Return([]entity.User{}, 3, nil)

	page, err := svc.List(context.Background(), math.MaxInt, 1000, 0)
	require.NoError(t, err)
	assert.Equal(t, maxPage, page.Page)
	assert.Equal(t, 10, page.Size)
	assert.Empty(t, page.Content)
	assert.Equal(t, 1, page.TotalPages)
}

func TestService_Get(t *testing.T) {
	ctx := context.Background()
	svc, d := newTestService(t)

	d.repo.EXPECT().Find(gomock.Any(), Criteria{ID: 1}).Return(entity.User{ID: 1}, nil)
	u, err := svc.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), u.ID)

	d.repo.EXPECT().Find(gomock.Any(), Criteria{ID: 2}).Return(entity.User{ID: 2, Inactive: true}, nil)
	_, err = svc.Get(ctx, 2)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.Get(ctx, 0)
	assert.ErrorIs(t, err, ErrNotFound)
}

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func TestService_Update(t *testing.T) {
	ctx := context.Background()

	t.Run("other user is forbidden", func(t *testing.T) {
		svc, _ := newTestService(t)
		_, err := svc.Update(ctx, 2, 1, UpdateInput{Username: "user1-updated"})
		assert.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("anonymous is forbidden", func(t *testing.T) {
		svc, _ := newTestService(t)
		_, err := svc.Update(ctx, 0, 1, UpdateInput{Username: "user1-updated"})
		assert.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("replaces image and removes the old file", func(t *testing.T) {
		svc, d := newTestService(t)

		old, err := d.files.Save(ctx, pngHeader)
		require.NoError(t, err)

		d.repo.EXPECT().Find(gomock.Any(), Criteria{ID: 1}).Return(entity.User{ID: 1, Image: &old}, nil)
		d.repo.EXPECT().Update(gomock.Any(), Criteria{ID: 1}, gomock.Any()).
			DoAndReturn(func(_ context.Context, _ Criteria, p Patch) (entity.User, error) {
				require.NotNil(t, p.Username)
				require.NotNil(t, p.Image)
				return entity.User{ID: 1, Username: *p.Username, Image: p.Image}, nil
			})

		u, err := svc.Update(ctx, 1, 1, UpdateInput{Username: "user1-updated", Image: pngHeader})
		require.NoError(t, err)
		assert.Equal(t, "user1-updated", u.Username)
		require.NotNil(t, u.Image)
		assert.NotEqual(t, old, *u.Image)

		_, err = os.Stat(filepath.Join(d.files.Dir(), *u.Image))
		assert.NoError(t, err, "new image stored")
		_, err = os.Stat(filepath.Join(d.files.Dir(), old))
		assert.True(t, os.IsNotExist(err), "old image removed")
	})

	t.Run("failed update removes the new file", func(t *testing.T) {
		svc, d := newTestService(t)

		d.repo.EXPECT().Find(gomock.Any(), Criteria{ID: 1}).Return(entity.User{ID: 1}, nil)
		d.repo.EXPECT().Update(gomock.Any(), gomock.Any(), gomock.Any()).Return(entity.User{}, errors.New("db down"))

		_, err := svc.Update(ctx, 1, 1, UpdateInput{Username: "user1", Image: pngHeader})
		require.Error(t, err)

		entries, err := os.ReadDir(d.files.Dir())
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("username only keeps image", func(t *testing.T) {
		svc, d := newTestService(t)

		d.repo.EXPECT().Find(gomock.Any(), Criteria{ID: 1}).Return(entity.User{ID: 1, Image: strPtr("keep")}, nil)
		d.repo.EXPECT().Update(gomock.Any(), Criteria{ID: 1}, Patch{Username: strPtr("user1-updated")}).
			Return(entity.User{ID: 1, Username: "user1-updated", Image: strPtr("keep")}, nil)

		u, err := svc.Update(ctx, 1, 1, UpdateInput{Username: "user1-updated"})
		require.NoError(t, err)
		assert.Equal(t, "keep", *u.Image)
	})
}

func TestService_Delete(t *testing.T) {
	ctx := context.Background()

	t.Run("revokes sessions then deletes", func(t *testing.T) {
		svc, d := newTestService(t)
		img, err := d.files.Save(ctx, pngHeader)
		require.NoError(t, err)

		gomock.InOrder(
			d.repo.EXPECT().Find(gomock.Any(), Criteria{ID: 1}).Return(entity.User{ID: 1, Image: &img}, nil),
			d.tokens.EXPECT().InvalidateAll(gomock.Any(), int64(1)).Return(nil),
			d.repo.EXPECT().Delete(gomock.Any(), int64(1)).Return(nil),
		)

		require.NoError(t, svc.Delete(ctx, 1, 1))
		_, err = os.Stat(filepath.Join(d.files.Dir(), img))
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("other user is forbidden", func(t *testing.T) {
		svc, _ := newTestService(t)
		assert.ErrorIs(t, svc.Delete(ctx, 2, 1), ErrForbidden)
	})

	t.Run("already gone", func(t *testing.T) {
		svc, d := newTestService(t)
		d.repo.EXPECT().Find(gomock.Any(), Criteria{ID: 1}).Return(entity.User{}, ErrNotFound)
		assert.NoError(t, svc.Delete(ctx, 1, 1))
	})

	t.Run("invalidate failure keeps the user", func(t *testing.T) {
		svc, d := newTestService(t)
		d.repo.EXPECT().Find(gomock.Any(), Criteria{ID: 1}).Return(entity.User{ID: 1}, nil)
		d.tokens.EXPECT().InvalidateAll(gomock.Any(), int64(1)).Return(errors.New("db down"))

		assert.Error(t, svc.Delete(ctx, 1, 1))
	})
}

func TestService_RequestPasswordReset(t *testing.T) {
	ctx := context.Background()

	t.Run("stores and mails a reset token", func(t *testing.T) {
		svc, d := newTestService(t)

		var stored string
		d.repo.EXPECT().Find(gomock.Any(), Criteria{Email: "user1@mail.com"}).Return(entity.User{ID: 1, Email: "user1@mail.com"}, nil)
		d.repo.EXPECT().Update(gomock.Any(), Criteria{ID: 1}, gomock.Any()).
			DoAndReturn(func(_ context.Context, _ Criteria, p Patch) (entity.User, error) {
				require.NotNil(t, p.PasswordResetToken)
				stored = *p.PasswordResetToken
				return entity.User{ID: 1}, nil
			})
		d.mailer.EXPECT().SendPasswordReset(gomock.Any(), "user1@mail.com", gomock.Any()).
			DoAndReturn(func(_ context.Context, _ string, token string) error {
				assert.Equal(t, stored, token)
				return nil
			})

		require.NoError(t, svc.RequestPasswordReset(ctx, "User1@mail.com"))
		assert.Len(t, stored, resetTokenLength)
	})

	t.Run("unknown email", func(t *testing.T) {
		svc, d := newTestService(t)
		d.repo.EXPECT().Find(gomock.Any(), gomock.Any()).Return(entity.User{}, ErrNotFound)
		assert.ErrorIs(t, svc.RequestPasswordReset(ctx, "nobody@mail.com"), ErrEmailNotInUse)
	})

	t.Run("mail failure", func(t *testing.T) {
		svc, d := newTestService(t)
		d.repo.EXPECT().Find(gomock.Any(), gomock.Any()).Return(entity.User{ID: 1, Email: "user1@mail.com"}, nil)
		d.repo.EXPECT().Update(gomock.Any(), gomock.Any(), gomock.Any()).Return(entity.User{ID: 1}, nil)
		d.mailer.EXPECT().SendPasswordReset(gomock.Any(), gomock.Any(), gomock.Any()).Return(errors.New("smtp down"))

		assert.ErrorIs(t, svc.RequestPasswordReset(ctx, "user1@mail.com"), ErrEmailFailure)
	})
}

func TestService_ResetPassword(t *testing.T) {
	ctx := context.Background()

	t.Run("updates hash, activates and revokes sessions", func(t *testing.T) {
		svc, d := newTestService(t)

		hash := "new-hash"
		active := false
		gomock.InOrder(
			d.repo.EXPECT().Find(gomock.Any(), Criteria{PasswordResetToken: "reset"}).Return(entity.User{ID: 1, Inactive: true}, nil),
			d.hasher.EXPECT().Hash("N3wPassword").Return(hash, nil),
			d.repo.EXPECT().Update(gomock.Any(), Criteria{ID: 1}, Patch{
				PasswordHash:            &hash,
				ClearPasswordResetToken: true,
				Inactive:                &active,
				ClearActivationToken:    true,
			}).Return(entity.User{ID: 1}, nil),
			d.tokens.EXPECT().InvalidateAll(gomock.Any(), int64(1)).Return(nil),
		)

		require.NoError(t, svc.ResetPassword(ctx, "reset", "N3wPassword"))
	})

	t.Run("unknown token", func(t *testing.T) {
		svc, d := newTestService(t)
		d.repo.EXPECT().Find(gomock.Any(), Criteria{PasswordResetToken: "stale"}).Return(entity.User{}, ErrNotFound)
		assert.ErrorIs(t, svc.ResetPassword(ctx, "stale", "N3wPassword"), ErrInvalidResetToken)
	})

	t.Run("empty token", func(t *testing.T) {
		svc, _ := newTestService(t)
		assert.ErrorIs(t, svc.ResetPassword(ctx, "", "N3wPassword"), ErrInvalidResetToken)
		assert.ErrorIs(t, svc.CheckResetToken(ctx, ""), ErrInvalidResetToken)
	})
}

package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/rryowa/quantive/internal/models"
	"github.com/rryowa/quantive/internal/storage"
	"github.com/rryowa/quantive/internal/storage/memory"
	"github.com/rryowa/quantive/internal/util"
)

const testPassword = "correct horse battery"

var testMeta = models.ClientMeta{IPAddress: "203.0.113.7", UserAgent: "quantive-test"}

// flakyStorage fails the next failures transactions with a connection error
// and the next conflicts transactions with a serialization failure.
type flakyStorage struct {
	*memory.Storage
	failures  atomic.Int32
	conflicts atomic.Int32
}

func (f *flakyStorage) InTx(ctx context.Context, fn func(ctx context.Context, repos storage.Repositories) error) error {
	if f.failures.Add(-1) >= 0 {
		return errors.New("read tcp: connection reset by peer")
	}
	if f.conflicts.Add(-1) >= 0 {
		return fmt.Errorf("commit: %w", storage.ErrConflict)
	}
	return f.Storage.InTx(ctx, fn)
}

type recordingNotifier struct {
	mu     sync.Mutex
	alerts []TokenReuseAlert
}

func (n *recordingNotifier) NotifyTokenReuse(_ context.Context, alert TokenReuseAlert) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, alert)
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.alerts)
}

type mapCache struct {
	mu    sync.Mutex
	users map[int64]models.User
	hits  int
}

func (c *mapCache) GetProfile(_ context.Context, id int64) (*models.User, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	u, ok := c.users[id]
	if !ok {
		return nil, nil
	}
	c.hits++
	return &u, nil
}

func (c *mapCache) SetProfile(_ context.Context, u models.User) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.users[u.ID] = u
	return nil
}

type authFixture struct {
	svc      *AuthService
	store    *flakyStorage
	clock    *fakeClock
	tokens   *TokenService
	notifier *recordingNotifier
	tokenCfg util.TokenConfig
}

func newAuthFixture(t *testing.T, opts ...AuthOption) *authFixture {
	t.Helper()

	clock := &fakeClock{t: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	tokenCfg := util.TokenConfig{
		JwtSecret:  "test-secret",
		Issuer:     testIssuer,
		Audience:   testAudience,
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 24 * time.Hour,
	}
	authCfg := util.AuthConfig{BcryptCost: bcrypt.MinCost, RetryBackoff: time.Millisecond}

	log := zap.NewNop().Sugar()
	store := &flakyStorage{Storage: memory.NewStorage(log)}
	tokens := NewTokenService(&tokenCfg).WithClock(clock.Now)
	notifier := &recordingNotifier{}

	opts = append([]AuthOption{WithClock(clock.Now), WithSecurityNotifier(notifier)}, opts...)
	svc, err := NewAuthService(log, store, tokens, &tokenCfg, &authCfg, opts...)
	require.NoError(t, err)

	return &authFixture{
		svc:      svc,
		store:    store,
		clock:    clock,
		tokens:   tokens,
		notifier: notifier,
		tokenCfg: tokenCfg,
	}
}

func (f *authFixture) register(t *testing.T, email string) *models.AuthResult {
	t.Helper()
	res, err := f.svc.Register(context.Background(), RegisterInput{
		Email:     email,
		Password:  testPassword,
		FirstName: "Ada",
		LastName:  "Lovelace",
	}, testMeta)
	require.NoError(t, err)
	return res
}

func (f *authFixture) actions() []models.AuditAction {
	var out []models.AuditAction
	for _, e := range f.store.AuditLogs() {
		out = append(out, e.Action)
	}
	return out
}

func TestRegister(t *testing.T) {
	f := newAuthFixture(t)

	res := f.register(t, "  Ada@Example.com ")
	assert.Equal(t, "Ada@Example.com", res.User.Email)
	assert.NotZero(t, res.User.ID)
	assert.NotEqual(t, testPassword, res.User.PasswordHash)
	assert.Equal(t, 15*time.Minute, res.ExpiresIn)

	claims, err := f.tokens.Verify(res.AccessToken, testIssuer, testAudience)
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, claims.UserID)

	stored, err := f.store.FindRefreshToken(context.Background(), f.tokens.HashRefreshToken(res.RefreshToken))
	require.NoError(t, err)
	assert.Equal(t, models.RefreshTokenActive, stored.Status)
	assert.Equal(t, f.clock.t.Add(24*time.Hour), stored.ExpiresAt)

	logs := f.store.AuditLogs()
	require.Len(t, logs, 1)
	assert.Equal(t, models.AuditUserRegister, logs[0].Action)
	require.NotNil(t, logs[0].IPAddress)
	assert.Equal(t, testMeta.IPAddress, *logs[0].IPAddress)
}

func TestRegister_DuplicateEmail(t *testing.T) {
	f := newAuthFixture(t)
	f.register(t, "ada@example.com")

	_, err := f.svc.Register(context.Background(), RegisterInput{
		Email:     " ada@example.com ",
		Password:  testPassword,
		FirstName: "Ada",
		LastName:  "Byron",
	}, testMeta)
	assert.ErrorIs(t, err, ErrDuplicateEmail)
	assert.Len(t, f.store.AuditLogs(), 1)
}

func TestRegister_EmailIsCaseSensitive(t *testing.T) {
	f := newAuthFixture(t)
	lower := f.register(t, "ada@example.com")
	upper := f.register(t, "ADA@example.com")
	assert.NotEqual(t, lower.User.ID, upper.User.ID)

	_, err := f.svc.Login(context.Background(), "Ada@example.com", testPassword, testMeta)
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	res, err := f.svc.Login(context.Background(), "ADA@example.com", testPassword, testMeta)
	require.NoError(t, err)
	assert.Equal(t, upper.User.ID, res.User.ID)
}

func TestRegister_Validation(t *testing.T) {
	f := newAuthFixture(t)
	valid := RegisterInput{Email: "ada@example.com", Password: testPassword, FirstName: "Ada", LastName: "Lovelace"}

	long := func(n int) string {
		b := make([]byte, n)
		for i := range b {
			b[i] = 'a'
		}
		return string(b)
	}

	tests := []struct {
		name  string
		edit  func(in *RegisterInput)
		field string
	}{
		{"missing email", func(in *RegisterInput) { in.Email = " " }, "email"},
		{"invalid email", func(in *RegisterInput) { in.Email = "not-an-email" }, "email"},
		{"display name email", func(in *RegisterInput) { in.Email = "Ada <ada@example.com>" }, "email"},
		{"long email", func(in *RegisterInput) { in.Email = long(250) + "@example.com" }, "email"},
		{"short password", func(in *RegisterInput) { in.Password = "short" }, "password"},
		{"long password", func(in *RegisterInput) { in.Password = long(73) }, "password"},
		{"missing first name", func(in *RegisterInput) { in.FirstName = "  " }, "firstName"},
		{"long last name", func(in *RegisterInput) { in.LastName = long(101) }, "lastName"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := valid
			tt.edit(&in)

			_, err := f.svc.Register(context.Background(), in, testMeta)
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
	assert.Empty(t, f.store.AuditLogs())
}

func TestLogin(t *testing.T) {
	f := newAuthFixture(t)
	reg := f.register(t, "ada@example.com")

	first, err := f.svc.Login(context.Background(), " ada@example.com", testPassword, testMeta)
	require.NoError(t, err)
	second, err := f.svc.Login(context.Background(), "ada@example.com", testPassword, testMeta)
	require.NoError(t, err)

	assert.Equal(t, reg.User.ID, first.User.ID)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)

	ctx := context.Background()
	a, err := f.store.FindRefreshToken(ctx, f.tokens.HashRefreshToken(first.RefreshToken))
	require.NoError(t, err)
	b, err := f.store.FindRefreshToken(ctx, f.tokens.HashRefreshToken(second.RefreshToken))
	require.NoError(t, err)
	assert.NotEqual(t, a.FamilyID, b.FamilyID)

	assert.Equal(t, []models.AuditAction{models.AuditUserRegister, models.AuditLogin, models.AuditLogin}, f.actions())
}

func TestLogin_EnumerationResistance(t *testing.T) {
	f := newAuthFixture(t)
	f.register(t, "ada@example.com")

	_, unknownErr := f.svc.Login(context.Background(), "nosuchuser@example.com", "anything-at-all", testMeta)
	_, wrongErr := f.svc.Login(context.Background(), "ada@example.com", "wrong password", testMeta)

	require.ErrorIs(t, unknownErr, ErrInvalidCredentials)
	require.ErrorIs(t, wrongErr, ErrInvalidCredentials)
	assert.Equal(t, unknownErr.Error(), wrongErr.Error())

	logs := f.store.AuditLogs()
	require.Len(t, logs, 3)
	assert.Equal(t, models.AuditLoginFailed, logs[1].Action)
	assert.Nil(t, logs[1].UserID)
	assert.Equal(t, models.AuditLoginFailed, logs[2].Action)
	require.NotNil(t, logs[2].UserID)
}

func TestLogin_MissingFields(t *testing.T) {
	f := newAuthFixture(t)

	_, err := f.svc.Login(context.Background(), "", testPassword, testMeta)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "email", ve.Field)

	_, err = f.svc.Login(context.Background(), "ada@example.com", "", testMeta)
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "password", ve.Field)
}

func TestRefresh_RotationAndReuseScenario(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	f.register(t, "a@b.com")

	login, err := f.svc.Login(ctx, "a@b.com", testPassword, testMeta)
	require.NoError(t, err)
	r1 := login.RefreshToken

	f.clock.Advance(time.Second)
	next, err := f.svc.Refresh(ctx, r1, testMeta)
	require.NoError(t, err)
	r2 := next.RefreshToken
	assert.NotEqual(t, r1, r2)
	assert.NotEqual(t, login.AccessToken, next.AccessToken)

	_, err = f.svc.Refresh(ctx, r1, testMeta)
	assert.ErrorIs(t, err, ErrTokenReuseDetected)

	_, err = f.svc.Refresh(ctx, r2, testMeta)
	assert.Error(t, err)
	assert.True(t, errors.Is(err, ErrTokenReuseDetected) || errors.Is(err, ErrInvalidToken))

	stored, err := f.store.FindRefreshToken(ctx, f.tokens.HashRefreshToken(r2))
	require.NoError(t, err)
	assert.Equal(t, models.RefreshTokenRevoked, stored.Status)

	assert.Contains(t, f.actions(), models.AuditTokenReuse)
	require.GreaterOrEqual(t, f.notifier.count(), 1)
	alert := f.notifier.alerts[0]
	assert.Equal(t, login.User.ID, alert.UserID)
	assert.Equal(t, int64(2), alert.RevokedCount)
	assert.Equal(t, testMeta.IPAddress, alert.IPAddress)
}

func TestRefresh_ConcurrentSingleUse(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	reg := f.register(t, "ada@example.com")

	const callers = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		winners  []*models.TokenPair
		failures []error
	)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pair, err := f.svc.Refresh(ctx, reg.RefreshToken, testMeta)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures = append(failures, err)
				return
			}
			winners = append(winners, pair)
		}()
	}
	wg.Wait()

	require.Len(t, winners, 1)
	require.Len(t, failures, callers-1)
	for _, err := range failures {
		assert.ErrorIs(t, err, ErrTokenReuseDetected)
	}

	_, err := f.svc.Refresh(ctx, winners[0].RefreshToken, testMeta)
	assert.ErrorIs(t, err, ErrTokenReuseDetected)
}

func TestRefresh_ExpiredTokenCascades(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	reg := f.register(t, "ada@example.com")

	other, err := f.svc.Login(ctx, "ada@example.com", testPassword, testMeta)
	require.NoError(t, err)

	f.clock.Advance(24 * time.Hour)
	_, err = f.svc.Refresh(ctx, reg.RefreshToken, testMeta)
	assert.ErrorIs(t, err, ErrTokenReuseDetected)

	stored, err := f.store.FindRefreshToken(ctx, f.tokens.HashRefreshToken(other.RefreshToken))
	require.NoError(t, err)
	assert.Equal(t, models.RefreshTokenRevoked, stored.Status)
}

func TestRefresh_UnknownToken(t *testing.T) {
	f := newAuthFixture(t)

	_, err := f.svc.Refresh(context.Background(), "never-issued", testMeta)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = f.svc.Refresh(context.Background(), "", testMeta)
	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.Zero(t, f.notifier.count())
}

func TestLogout_Idempotent(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	reg := f.register(t, "ada@example.com")

	require.NoError(t, f.svc.Logout(ctx, reg.User.ID, reg.RefreshToken, testMeta))
	require.NoError(t, f.svc.Logout(ctx, reg.User.ID, reg.RefreshToken, testMeta))

	_, err := f.svc.Refresh(ctx, reg.RefreshToken, testMeta)
	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.Zero(t, f.notifier.count())

	assert.Equal(t, []models.AuditAction{models.AuditUserRegister, models.AuditLogout}, f.actions())

	require.NoError(t, f.svc.Logout(ctx, reg.User.ID, "never-issued", testMeta))
}

func TestLogout_ForeignTokenIsNoop(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	ada := f.register(t, "ada@example.com")
	bob := f.register(t, "bob@example.com")

	require.NoError(t, f.svc.Logout(ctx, bob.User.ID, ada.RefreshToken, testMeta))

	_, err := f.svc.Refresh(ctx, ada.RefreshToken, testMeta)
	assert.NoError(t, err)
}

func TestLogout_AllSessions(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	reg := f.register(t, "ada@example.com")
	second, err := f.svc.Login(ctx, "ada@example.com", testPassword, testMeta)
	require.NoError(t, err)

	require.NoError(t, f.svc.Logout(ctx, reg.User.ID, "", testMeta))

	for _, raw := range []string{reg.RefreshToken, second.RefreshToken} {
		_, err := f.svc.Refresh(ctx, raw, testMeta)
		assert.ErrorIs(t, err, ErrInvalidToken)
	}
}

func TestStoreFailuresAreRetriedOnce(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	reg := f.register(t, "ada@example.com")

	f.store.failures.Store(1)
	pair, err := f.svc.Refresh(ctx, reg.RefreshToken, testMeta)
	require.NoError(t, err)

	f.store.failures.Store(2)
	_, err = f.svc.Refresh(ctx, pair.RefreshToken, testMeta)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.Equal(t, int32(0), f.store.failures.Load())

	pair, err = f.svc.Refresh(ctx, pair.RefreshToken, testMeta)
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
}

func TestRefresh_PersistentConflictRevokesTokens(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	reg := f.register(t, "ada@example.com")
	other, err := f.svc.Login(ctx, "ada@example.com", testPassword, testMeta)
	require.NoError(t, err)

	f.store.conflicts.Store(2)
	_, err = f.svc.Refresh(ctx, reg.RefreshToken, testMeta)
	assert.ErrorIs(t, err, ErrTokenReuseDetected)
	assert.Zero(t, f.store.conflicts.Load())

	for _, raw := range []string{reg.RefreshToken, other.RefreshToken} {
		tok, err := f.store.FindRefreshToken(ctx, f.tokens.HashRefreshToken(raw))
		require.NoError(t, err)
		assert.Equal(t, models.RefreshTokenRevoked, tok.Status)
	}

	require.Equal(t, 1, f.notifier.count())
	assert.Equal(t, reg.User.ID, f.notifier.alerts[0].UserID)
	assert.Equal(t, int64(2), f.notifier.alerts[0].RevokedCount)
	assert.Contains(t, f.actions(), models.AuditTokenReuse)
}

func TestRefresh_SingleConflictIsRetried(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	reg := f.register(t, "ada@example.com")

	f.store.conflicts.Store(1)
	pair, err := f.svc.Refresh(ctx, reg.RefreshToken, testMeta)
	require.NoError(t, err)
	assert.NotEmpty(t, pair.RefreshToken)
	assert.Zero(t, f.notifier.count())
}

func TestLogout_RotatedTokenEndsItsFamily(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	reg := f.register(t, "ada@example.com")
	other, err := f.svc.Login(ctx, "ada@example.com", testPassword, testMeta)
	require.NoError(t, err)

	renewed, err := f.svc.Refresh(ctx, reg.RefreshToken, testMeta)
	require.NoError(t, err)

	require.NoError(t, f.svc.Logout(ctx, reg.User.ID, reg.RefreshToken, testMeta))

	_, err = f.svc.Refresh(ctx, renewed.RefreshToken, testMeta)
	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.Zero(t, f.notifier.count())

	// A session from another login is a different family and survives.
	_, err = f.svc.Refresh(ctx, other.RefreshToken, testMeta)
	assert.NoError(t, err)
}

func TestMe(t *testing.T) {
	cache := &mapCache{users: make(map[int64]models.User)}
	f := newAuthFixture(t, WithUserCache(cache))
	ctx := context.Background()
	reg := f.register(t, "ada@example.com")

	user, err := f.svc.Me(ctx, reg.User.ID)
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", user.Email)
	assert.Empty(t, user.PasswordHash)
	assert.Zero(t, cache.hits)

	_, err = f.svc.Me(ctx, reg.User.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, cache.hits)

	_, err = f.svc.Me(ctx, 9999)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

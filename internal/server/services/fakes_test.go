package services

import (
	"bytes"
	"context"
	"database/sql"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/inkpost/internal/common"
	"github.com/dmitrijs2005/inkpost/internal/dbx"
	"github.com/dmitrijs2005/inkpost/internal/logging"
	"github.com/dmitrijs2005/inkpost/internal/server/auth"
	"github.com/dmitrijs2005/inkpost/internal/server/config"
	"github.com/dmitrijs2005/inkpost/internal/server/models"
	blogsrepo "github.com/dmitrijs2005/inkpost/internal/server/repositories/blogs"
	refreshtokensrepo "github.com/dmitrijs2005/inkpost/internal/server/repositories/refreshtokens"
	usersrepo "github.com/dmitrijs2005/inkpost/internal/server/repositories/users"
	"github.com/dmitrijs2005/inkpost/internal/timex"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"
)

// --- in-memory store with the same matching rules as the SQL repositories ---

type fakeStore struct {
	mu     sync.Mutex
	nextID int64
	users  map[int64]*models.User
	tokens map[string]*models.RefreshToken
	blogs  map[int64]*models.Blog
	errs   map[string]error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:  map[int64]*models.User{},
		tokens: map[string]*models.RefreshToken{},
		blogs:  map[int64]*models.Blog{},
		errs:   map[string]error{},
	}
}

func (s *fakeStore) failOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs[op] = err
}

// token returns a copy of a stored refresh token, whatever its state.
func (s *fakeStore) token(t *testing.T, token string) models.RefreshToken {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	rt, ok := s.tokens[token]
	require.True(t, ok, "refresh token not stored")
	return *rt
}

func (s *fakeStore) id() int64 {
	s.nextID++
	return s.nextID
}

func cloneUser(u *models.User) *models.User {
	c := *u
	return &c
}

func cloneBlog(b *models.Blog) *models.Blog {
	c := *b
	c.Sources = append([]string(nil), b.Sources...)
	return &c
}

func (s *fakeStore) user(id int64) *models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok {
		return cloneUser(u)
	}
	return nil
}

func (s *fakeStore) activeTokens(userID int64, now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.tokens {
		if t.UserID == userID && t.Usable(now) {
			n++
		}
	}
	return n
}

type fakeUsers struct{ *fakeStore }

func (f fakeUsers) Create(_ context.Context, user *models.User) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs["users.Create"]; err != nil {
		return nil, err
	}
	for _, u := range f.users {
		if u.Email == user.Email {
			return nil, common.ErrorAlreadyExists
		}
	}
	user.ID = f.id()
	user.UpdatedAt = user.CreatedAt
	f.users[user.ID] = cloneUser(user)
	return user, nil
}

func (f fakeUsers) GetByEmail(_ context.Context, email string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs["users.GetByEmail"]; err != nil {
		return nil, err
	}
	for _, u := range f.users {
		if u.Email == email {
			return cloneUser(u), nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f fakeUsers) GetByID(_ context.Context, id int64) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs["users.GetByID"]; err != nil {
		return nil, err
	}
	if u, ok := f.users[id]; ok {
		return cloneUser(u), nil
	}
	return nil, common.ErrorNotFound
}

func (f fakeUsers) SetVerificationToken(_ context.Context, userID int64, token string, expires, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return common.ErrorNotFound
	}
	u.VerificationToken, u.VerificationTokenExpires, u.UpdatedAt = &token, &expires, now
	return nil
}

func (f fakeUsers) RedeemVerificationToken(_ context.Context, token string, now time.Time) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.VerificationToken != nil && *u.VerificationToken == token && u.VerificationTokenExpires.After(now) {
			u.IsVerified = true
			u.VerificationToken, u.VerificationTokenExpires, u.UpdatedAt = nil, nil, now
			return cloneUser(u), nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f fakeUsers) SetResetToken(_ context.Context, userID int64, token string, expires, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs["users.SetResetToken"]; err != nil {
		return err
	}
	u, ok := f.users[userID]
	if !ok {
		return common.ErrorNotFound
	}
	u.ResetToken, u.ResetTokenExpires, u.UpdatedAt = &token, &expires, now
	return nil
}

func (f fakeUsers) RedeemResetToken(_ context.Context, token, hashedPassword string, now time.Time) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs["users.RedeemResetToken"]; err != nil {
		return nil, err
	}
	for _, u := range f.users {
		if u.ResetToken != nil && *u.ResetToken == token && u.ResetTokenExpires.After(now) {
			u.HashedPassword = hashedPassword
			u.ResetToken, u.ResetTokenExpires, u.UpdatedAt = nil, nil, now
			return cloneUser(u), nil
		}
	}
	return nil, common.ErrorNotFound
}

type fakeTokens struct{ *fakeStore }

func (f fakeTokens) Create(_ context.Context, userID int64, token string, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs["tokens.Create"]; err != nil {
		return err
	}
	if _, dup := f.tokens[token]; dup {
		return common.ErrorAlreadyExists
	}
	f.tokens[token] = &models.RefreshToken{ID: f.id(), UserID: userID, Token: token, ExpiresAt: expiresAt}
	return nil
}

func (f fakeTokens) Revoke(_ context.Context, token string, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs["tokens.Revoke"]; err != nil {
		return 0, err
	}
	t, ok := f.tokens[token]
	if !ok || !t.Usable(now) {
		return 0, common.ErrorNotFound
	}
	t.Revoked = true
	return t.UserID, nil
}

func (f fakeTokens) RevokeAllForUser(_ context.Context, userID int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs["tokens.RevokeAllForUser"]; err != nil {
		return 0, err
	}
	var n int64
	for _, t := range f.tokens {
		if t.UserID == userID && !t.Revoked {
			t.Revoked = true
			n++
		}
	}
	return n, nil
}

type fakeBlogs struct{ *fakeStore }

func (f fakeBlogs) titleTaken(title string, except int64) bool {
	for _, b := range f.blogs {
		if b.Title == title && b.ID != except {
			return true
		}
	}
	return false
}

func (f fakeBlogs) Create(_ context.Context, blog *models.Blog) (*models.Blog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs["blogs.Create"]; err != nil {
		return nil, err
	}
	if f.titleTaken(blog.Title, 0) {
		return nil, common.ErrorAlreadyExists
	}
	blog.ID = f.id()
	blog.UpdatedAt = blog.CreatedAt
	f.blogs[blog.ID] = cloneBlog(blog)
	return blog, nil
}

func (f fakeBlogs) GetByID(_ context.Context, id int64) (*models.Blog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b, ok := f.blogs[id]; ok {
		return cloneBlog(b), nil
	}
	return nil, common.ErrorNotFound
}

func (f fakeBlogs) GetBySlug(_ context.Context, slug string) (*models.Blog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var found *models.Blog
	for _, b := range f.blogs {
		if b.Slug == slug && (found == nil || b.ID < found.ID) {
			found = b
		}
	}
	if found == nil {
		return nil, common.ErrorNotFound
	}
	return cloneBlog(found), nil
}

func (f fakeBlogs) Update(_ context.Context, blog *models.Blog) (*models.Blog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cur, ok := f.blogs[blog.ID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	if f.titleTaken(blog.Title, blog.ID) {
		return nil, common.ErrorAlreadyExists
	}
	next := cloneBlog(blog)
	next.UserID, next.Views, next.CreatedAt = cur.UserID, cur.Views, cur.CreatedAt
	f.blogs[blog.ID] = next
	return cloneBlog(next), nil
}

func (f fakeBlogs) Delete(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.blogs[id]; !ok {
		return common.ErrorNotFound
	}
	delete(f.blogs, id)
	return nil
}

func (f fakeBlogs) List(_ context.Context, filter blogsrepo.ListFilter) ([]*models.Blog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs["blogs.List"]; err != nil {
		return nil, err
	}
	out := make([]*models.Blog, 0)
	for _, b := range f.blogs {
		if (filter.UserID == 0 || b.UserID == filter.UserID) && (filter.Status == "" || b.Status == filter.Status) {
			out = append(out, cloneBlog(b))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (f fakeBlogs) IncrementViews(_ context.Context, id int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.blogs[id]
	if !ok {
		return 0, common.ErrorNotFound
	}
	b.Views++
	return b.Views, nil
}

type fakeRepoManager struct{ store *fakeStore }

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error {
	return nil
}

func (m *fakeRepoManager) Users(dbx.DBTX) usersrepo.Repository {
	return fakeUsers{m.store}
}

func (m *fakeRepoManager) RefreshTokens(dbx.DBTX) refreshtokensrepo.Repository {
	return fakeTokens{m.store}
}

func (m *fakeRepoManager) Blogs(dbx.DBTX) blogsrepo.Repository {
	return fakeBlogs{m.store}
}

// --- notifier ---

type sentToken struct {
	kind, to, token string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentToken
	err  error
	// stall makes every send wait until its context is done, like a
	// provider that accepted the connection and never answered.
	stall bool
}

func (n *fakeNotifier) record(ctx context.Context, kind, to, token string) error {
	if n.stall {
		<-ctx.Done()
		return ctx.Err()
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, sentToken{kind, to, token})
	return nil
}

func (n *fakeNotifier) SendVerification(ctx context.Context, to, token string) error {
	return n.record(ctx, "verify", to, token)
}

func (n *fakeNotifier) SendPasswordReset(ctx context.Context, to, token string) error {
	return n.record(ctx, "reset", to, token)
}

// last returns the most recent token of kind mailed to to.
func (n *fakeNotifier) last(t *testing.T, kind, to string) string {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.sent) - 1; i >= 0; i-- {
		if n.sent[i].kind == kind && n.sent[i].to == to {
			return n.sent[i].token
		}
	}
	t.Fatalf("no %s mail sent to %s", kind, to)
	return ""
}

// --- harness ---

var epoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type errBoom struct{}

func (errBoom) Error() string { return "boom" }

type harness struct {
	db       *sql.DB
	store    *fakeStore
	clock    *timex.FixedClock
	notifier *fakeNotifier
	logs     *bytes.Buffer
	codec    *auth.Codec
	hasher   *auth.PasswordHasher
	sessions *SessionManager
	flow     *VerificationFlow
	auth     *AuthService
	blogs    *BlogService
}

func testConfig() *config.Config {
	return &config.Config{
		SecretKey:                         "test-secret",
		AccessTokenValidityDuration:       15 * time.Minute,
		RefreshTokenValidityDuration:      7 * 24 * time.Hour,
		VerificationTokenValidityDuration: 24 * time.Hour,
		ResetTokenValidityDuration:        time.Hour,
		BcryptCost:                        bcrypt.MinCost,
		MailTimeout:                       50 * time.Millisecond,
	}
}

// newTxDB returns an in-memory SQLite handle; the fakes ignore it but
// dbx.WithTx needs a real *sql.DB to begin and commit on.
func newTxDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newHarness(t *testing.T) *harness {
	return newHarnessWithDB(t, newTxDB(t))
}

func newHarnessWithDB(t *testing.T, db *sql.DB) *harness {
	t.Helper()
	cfg := testConfig()

	var logs bytes.Buffer
	log := logging.NewJSON(&logs, "debug")

	hasher, err := auth.NewPasswordHasher(cfg.BcryptCost)
	if err != nil {
		t.Fatalf("hasher: %v", err)
	}

	h := &harness{
		db:       db,
		store:    newFakeStore(),
		clock:    &timex.FixedClock{T: epoch},
		notifier: &fakeNotifier{},
		logs:     &logs,
		hasher:   hasher,
	}
	rm := &fakeRepoManager{store: h.store}
	h.codec = auth.NewCodec([]byte(cfg.SecretKey), cfg.AccessTokenValidityDuration, h.clock, log)
	h.sessions = NewSessionManager(db, rm, h.codec, hasher, h.clock, cfg, log)
	h.flow = NewVerificationFlow(db, rm, h.sessions, hasher, h.clock, cfg, log)
	h.auth = NewAuthService(db, rm, h.sessions, h.flow, hasher, h.notifier, h.clock, cfg, log)
	h.blogs = NewBlogService(db, rm, h.clock, log)
	return h
}

// addUser stores an account directly, bypassing registration.
func (h *harness) addUser(t *testing.T, email, password string, verified bool) *models.User {
	t.Helper()
	hash, err := h.hasher.Hash(password)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	u, err := fakeUsers{h.store}.Create(context.Background(), &models.User{
		Email: email, HashedPassword: hash, IsVerified: verified, CreatedAt: h.clock.Now(),
	})
	if err != nil {
		t.Fatalf("add user: %v", err)
	}
	return u
}

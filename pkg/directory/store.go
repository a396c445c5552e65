// Package directory is a SQL implementation of the identity directory, credential verifier,
// profile store and backend session contracts. It runs on sqlite for a stand-alone
// workstation or on postgres when several workstations share one directory.
package directory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	_ "github.com/lib/pq"           // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/platinummonkey/cura/pkg/auth"
	"github.com/platinummonkey/cura/pkg/permissions"
)

// Options configures a Store
type Options struct {
	// DeviceID scopes the backend session to this workstation
	DeviceID string
	// BcryptCost defaults to bcrypt.DefaultCost
	BcryptCost int
	Clock      clockwork.Clock
	Logger     *logrus.Logger
}

// Store implements auth.Directory, auth.CredentialVerifier, auth.CredentialRegistrar,
// auth.BackendSession and auth.ProfileStore on database/sql.
type Store struct {
	db       *sql.DB
	deviceID string
	cost     int
	clock    clockwork.Clock
	log      *logrus.Logger
}

// Open connects to driver/dsn ("sqlite3" or "postgres"), verifies the connection and applies
// migrations.
func Open(ctx context.Context, driver, dsn string, opts Options) (*Store, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driver, err)
	}
	if driver == "sqlite3" {
		// Keeps ":memory:" databases on one connection and serialises sqlite writers.
		db.SetMaxOpenConns(1)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping %s database: %w", driver, err)
	}

	s := New(db, opts)
	if err := RunMigrations(ctx, db, s.log); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an already-open database. Migrations are not run.
func New(db *sql.DB, opts Options) *Store {
	if opts.DeviceID == "" {
		opts.DeviceID = "default"
	}
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	return &Store{
		db:       db,
		deviceID: opts.DeviceID,
		cost:     opts.BcryptCost,
		clock:    opts.Clock,
		log:      opts.Logger,
	}
}

// Backend returns the auth contracts backed by this store. Notifier is left unset.
func (s *Store) Backend() auth.Backend {
	return auth.Backend{
		Directory: s,
		Verifier:  s,
		Registrar: s,
		Session:   s,
		Profiles:  s,
	}
}

// DB exposes the underlying handle for health checks
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

const profileColumns = "id, username, display_name, email, role, title, approved, " +
	"email_notifications, sms_notifications, phone, created_at, last_login_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (*auth.UserIdentity, error) {
	var (
		u         auth.UserIdentity
		role      string
		prefs     auth.NotificationPreferences
		lastLogin sql.NullTime
	)
	err := row.Scan(&u.ID, &u.Username, &u.DisplayName, &u.Email, &role, &u.Title, &u.Approved,
		&prefs.EmailEnabled, &prefs.SMSEnabled, &prefs.Phone, &u.CreatedAt, &lastLogin)
	if err != nil {
		return nil, err
	}
	u.Role = permissions.ParseRole(role)
	u.NotificationPreferences = &prefs
	if lastLogin.Valid {
		t := lastLogin.Time
		u.LastLoginAt = &t
	}
	return &u, nil
}

// FindByUsername implements auth.Directory. The match is exact.
func (s *Store) FindByUsername(ctx context.Context, username string) (*auth.UserIdentity, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+profileColumns+" FROM cura_profiles WHERE username = $1 LIMIT 1", username)
	u, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find username: %w", err)
	}
	return u, nil
}

// Verify implements auth.CredentialVerifier
func (s *Store) Verify(ctx context.Context, email, password string) (string, error) {
	var uid, hash string
	err := s.db.QueryRowContext(ctx,
		"SELECT uid, password_hash FROM cura_credentials WHERE email = $1",
		normalizeEmail(email),
	).Scan(&uid, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", auth.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to load credential: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return "", auth.ErrInvalidCredential
	}
	return uid, nil
}

// CreateCredential implements auth.CredentialRegistrar
func (s *Store) CreateCredential(ctx context.Context, email, password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}

	var taken bool
	err = s.db.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM cura_credentials WHERE email = $1)", normalizeEmail(email),
	).Scan(&taken)
	if err != nil {
		return "", fmt.Errorf("failed to check credential: %w", err)
	}
	if taken {
		return "", auth.ErrEmailTaken
	}

	uid := uuid.NewString()
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO cura_credentials (uid, email, password_hash, created_at) VALUES ($1, $2, $3, $4)",
		uid, normalizeEmail(email), string(hash), s.clock.Now().UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create credential: %w", err)
	}
	return uid, nil
}

// SetPassword replaces the password for an existing credential
func (s *Store) SetPassword(ctx context.Context, uid, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		"UPDATE cura_credentials SET password_hash = $1 WHERE uid = $2", string(hash), uid)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return auth.ErrNotFound
	}
	return nil
}

// SignIn implements auth.BackendSession
func (s *Store) SignIn(ctx context.Context, uid string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cura_device_sessions (device_id, uid, signed_in_at) VALUES ($1, $2, $3)
		ON CONFLICT (device_id) DO UPDATE SET uid = excluded.uid, signed_in_at = excluded.signed_in_at`,
		s.deviceID, uid, s.clock.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record device session: %w", err)
	}
	return nil
}

// SignOut implements auth.BackendSession
func (s *Store) SignOut(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM cura_device_sessions WHERE device_id = $1", s.deviceID); err != nil {
		return fmt.Errorf("failed to clear device session: %w", err)
	}
	return nil
}

// Current implements auth.BackendSession
func (s *Store) Current(ctx context.Context) (string, error) {
	var uid string
	err := s.db.QueryRowContext(ctx,
		"SELECT uid FROM cura_device_sessions WHERE device_id = $1", s.deviceID).Scan(&uid)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read device session: %w", err)
	}
	return uid, nil
}

// Read implements auth.ProfileStore
func (s *Store) Read(ctx context.Context, uid string) (*auth.UserIdentity, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+profileColumns+" FROM cura_profiles WHERE id = $1", uid)
	u, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read profile: %w", err)
	}
	return u, nil
}

// Create implements auth.ProfileStore
func (s *Store) Create(ctx context.Context, u *auth.UserIdentity) error {
	prefs := u.NotificationPreferences
	if prefs == nil {
		prefs = auth.DefaultNotificationPreferences()
	}
	createdAt := u.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.clock.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cura_profiles (`+profileColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		u.ID, u.Username, u.DisplayName, u.Email, string(u.Role), u.Title, u.Approved,
		prefs.EmailEnabled, prefs.SMSEnabled, prefs.Phone, createdAt, nullTime(u.LastLoginAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create profile: %w", err)
	}
	return nil
}

// Update implements auth.ProfileStore. Only the non-nil fields of upd are written.
func (s *Store) Update(ctx context.Context, uid string, upd auth.ProfileUpdate) error {
	var (
		sets []string
		args []any
	)
	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	if upd.DisplayName != nil {
		add("display_name", *upd.DisplayName)
	}
	if upd.Title != nil {
		add("title", *upd.Title)
	}
	if upd.Email != nil {
		add("email", *upd.Email)
	}
	if upd.Role != nil {
		add("role", string(*upd.Role))
	}
	if upd.Approved != nil {
		add("approved", *upd.Approved)
	}
	if upd.LastLoginAt != nil {
		add("last_login_at", upd.LastLoginAt.UTC())
	}
	if p := upd.NotificationPreferences; p != nil {
		add("email_notifications", p.EmailEnabled)
		add("sms_notifications", p.SMSEnabled)
		add("phone", p.Phone)
	}
	if len(sets) == 0 {
		return nil
	}

	args = append(args, uid)
	query := fmt.Sprintf("UPDATE cura_profiles SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return auth.ErrProfileNotFound
	}
	return nil
}

// ListProfiles returns profiles ordered by creation time. A nil approved filter returns all.
func (s *Store) ListProfiles(ctx context.Context, approved *bool) ([]*auth.UserIdentity, error) {
	query := "SELECT " + profileColumns + " FROM cura_profiles"
	var args []any
	if approved != nil {
		query += " WHERE approved = $1"
		args = append(args, *approved)
	}
	query += " ORDER BY created_at, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	defer rows.Close()

	var out []*auth.UserIdentity
	for rows.Next() {
		u, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan profile: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// BootstrapAdmin creates an approved administrator with a password when no credential exists
// for email yet. It returns the new uid, or "" if the account already existed.
func (s *Store) BootstrapAdmin(ctx context.Context, email, username, password string) (string, error) {
	_, err := s.Verify(ctx, email, password)
	switch {
	case err == nil, errors.Is(err, auth.ErrInvalidCredential):
		return "", nil
	case !errors.Is(err, auth.ErrNotFound):
		return "", err
	}

	uid, err := s.CreateCredential(ctx, email, password)
	if err != nil {
		return "", err
	}
	err = s.Create(ctx, &auth.UserIdentity{
		ID:          uid,
		Username:    auth.FormatUsername(username),
		DisplayName: username,
		Email:       normalizeEmail(email),
		Role:        permissions.RoleAdmin,
		Approved:    true,
	})
	if err != nil {
		return "", err
	}
	s.log.WithFields(logrus.Fields{"uid": uid, "email": email}).Info("Bootstrapped administrator account")
	return uid, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

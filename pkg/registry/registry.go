// Package registry maintains the persisted table of user accounts and
// their quota usage.
//
// The account set is held in memory and mirrored to a flat text file on
// every mutation. Locking follows a strict two-level discipline: the
// registry-wide lock is always acquired before any per-account lock, and
// the per-account lock is never exposed outside registry methods.
package registry

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"sync"

	"github.com/natefinch/atomic"

	"github.com/marmos91/depot/internal/logger"
)

// Sentinel errors reported to callers. Session workers translate these
// into protocol ERROR replies.
var (
	ErrUsernameTaken      = errors.New("username already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidUsername    = errors.New("invalid username")
	ErrNotFound           = errors.New("account not found")
	ErrQuotaExceeded      = errors.New("quota exceeded")
	ErrRegistryFull       = errors.New("user limit reached")
)

// MaxUsernameLength is the maximum username length in bytes.
const MaxUsernameLength = 63

// usernamePattern constrains usernames to names that are safe to use as a
// directory segment under the storage root: no whitespace, no separators,
// no leading dot.
var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]*$`)

// account is one registered user. quotaUsed is guarded by mu; all other
// fields are immutable after creation.
type account struct {
	id       uint32
	username string
	hash     string

	mu        sync.Mutex
	quotaUsed uint64
}

// Account is a read-only snapshot of an account.
type Account struct {
	ID        uint32
	Username  string
	QuotaUsed uint64
}

// Config holds registry construction parameters.
type Config struct {
	// Path is the location of the registry mirror file (users.txt).
	Path string

	// QuotaLimit is the per-user byte budget.
	QuotaLimit uint64

	// MaxUsers caps the number of registered accounts. Zero means no cap.
	MaxUsers int

	// ProvisionDir, when non-nil, is called during Register to create the
	// new user's storage directory before the account is persisted.
	ProvisionDir func(username string) error
}

// Registry is the concurrent account table.
//
// mu guards the structural fields (the maps and nextID) and serializes
// persistence. Each account's quotaUsed has its own lock so readers can
// snapshot a single account without the registry lock; mu is always taken
// first when both are needed.
type Registry struct {
	cfg Config

	mu     sync.Mutex
	byName map[string]*account
	byID   map[uint32]*account
	nextID uint32
}

// New creates an empty registry. Call Load to read the mirror file.
func New(cfg Config) *Registry {
	return &Registry{
		cfg:    cfg,
		byName: make(map[string]*account),
		byID:   make(map[uint32]*account),
	}
}

// Load reads the registry mirror file. A missing file is an empty
// registry. Loading stops silently at the first malformed line, matching
// the file contract: the server only ever writes well-formed lines, so a
// malformed tail means a torn external edit.
//
// IDs are assigned in file order; Persist writes accounts back in ID
// order, which keeps IDs stable across restarts.
func (r *Registry) Load() error {
	f, err := os.Open(r.cfg.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open registry file: %w", err)
	}
	defer f.Close()

	r.mu.Lock()
	defer r.mu.Unlock()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := bytes.Fields(scanner.Bytes())
		if len(fields) != 3 {
			logger.Warn("Malformed registry line, stopping load", "path", r.cfg.Path, "loaded", len(r.byID))
			break
		}
		used, err := strconv.ParseUint(string(fields[2]), 10, 64)
		if err != nil {
			logger.Warn("Malformed quota field, stopping load", "path", r.cfg.Path, "loaded", len(r.byID))
			break
		}

		acct := &account{
			id:        r.nextID,
			username:  string(fields[0]),
			hash:      string(fields[1]),
			quotaUsed: used,
		}
		r.nextID++
		r.byName[acct.username] = acct
		r.byID[acct.id] = acct
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read registry file: %w", err)
	}

	logger.Info("Registry loaded", "path", r.cfg.Path, "accounts", len(r.byID))
	return nil
}

// Register creates a new account with the given credentials.
//
// The check-then-insert is atomic under the registry lock, so two
// concurrent registrations of the same username produce exactly one
// success. The user's storage directory is provisioned and the mirror
// file rewritten before the new ID is returned.
func (r *Registry) Register(username, password string) (uint32, error) {
	if err := ValidateUsername(username); err != nil {
		return 0, err
	}
	if err := ValidatePassword(password); err != nil {
		return 0, err
	}

	// Hash outside the lock: bcrypt is deliberately slow.
	hash, err := HashPassword(password)
	if err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byName[username]; ok {
		return 0, ErrUsernameTaken
	}
	if r.cfg.MaxUsers > 0 && len(r.byID) >= r.cfg.MaxUsers {
		return 0, ErrRegistryFull
	}

	if r.cfg.ProvisionDir != nil {
		if err := r.cfg.ProvisionDir(username); err != nil {
			return 0, fmt.Errorf("provision user directory: %w", err)
		}
	}

	acct := &account{
		id:       r.nextID,
		username: username,
		hash:     hash,
	}
	r.nextID++
	r.byName[username] = acct
	r.byID[acct.id] = acct

	r.persistLocked()
	return acct.id, nil
}

// Login verifies credentials and returns the account ID.
func (r *Registry) Login(username, password string) (uint32, error) {
	r.mu.Lock()
	acct, ok := r.byName[username]
	r.mu.Unlock()

	if !ok {
		VerifyPassword(password, dummyHash)
		return 0, ErrInvalidCredentials
	}

	if !VerifyPassword(password, acct.hash) {
		return 0, ErrInvalidCredentials
	}
	return acct.id, nil
}

// Get returns a snapshot of the account with the given ID.
func (r *Registry) Get(id uint32) (Account, error) {
	r.mu.Lock()
	acct, ok := r.byID[id]
	r.mu.Unlock()

	if !ok {
		return Account{}, ErrNotFound
	}

	acct.mu.Lock()
	used := acct.quotaUsed
	acct.mu.Unlock()

	return Account{ID: acct.id, Username: acct.username, QuotaUsed: used}, nil
}

// AddToQuota atomically reserves n bytes against the account's quota.
// It refuses with ErrQuotaExceeded if the reservation would push usage
// past the limit; otherwise it commits, persists, and returns the new
// usage.
func (r *Registry) AddToQuota(id uint32, n uint64) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	acct, ok := r.byID[id]
	if !ok {
		return 0, ErrNotFound
	}

	acct.mu.Lock()
	if acct.quotaUsed+n > r.cfg.QuotaLimit {
		used := acct.quotaUsed
		acct.mu.Unlock()
		return used, ErrQuotaExceeded
	}
	acct.quotaUsed += n
	used := acct.quotaUsed
	acct.mu.Unlock()

	r.persistLocked()
	return used, nil
}

// ReleaseQuota returns n bytes to the account's budget, clamping at zero.
// It never fails on underflow; releasing against a vanished account is a
// no-op. Returns the new usage.
func (r *Registry) ReleaseQuota(id uint32, n uint64) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	acct, ok := r.byID[id]
	if !ok {
		return 0
	}

	acct.mu.Lock()
	if n > acct.quotaUsed {
		acct.quotaUsed = 0
	} else {
		acct.quotaUsed -= n
	}
	used := acct.quotaUsed
	acct.mu.Unlock()

	r.persistLocked()
	return used
}

// Persist rewrites the full registry mirror file.
func (r *Registry) Persist() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.persistError()
}

// QuotaLimit returns the configured per-user byte budget.
func (r *Registry) QuotaLimit() uint64 {
	return r.cfg.QuotaLimit
}

// Count returns the number of registered accounts.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}

// Accounts returns snapshots of all accounts in ID order.
func (r *Registry) Accounts() []Account {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Account, 0, len(r.byID))
	for id := uint32(0); id < r.nextID; id++ {
		acct, ok := r.byID[id]
		if !ok {
			continue
		}
		acct.mu.Lock()
		used := acct.quotaUsed
		acct.mu.Unlock()
		out = append(out, Account{ID: acct.id, Username: acct.username, QuotaUsed: used})
	}
	return out
}

// persistLocked rewrites the mirror file, logging instead of failing.
// The in-memory view is authoritative; durability is best-effort.
// Caller holds r.mu.
func (r *Registry) persistLocked() {
	if err := r.persistError(); err != nil {
		logger.Error("Failed to persist registry", "path", r.cfg.Path, "error", err)
	}
}

// persistError writes every account as "<username> <hash> <quota_used>",
// one per line in ID order, replacing the file atomically. Caller holds
// r.mu.
func (r *Registry) persistError() error {
	var buf bytes.Buffer
	for id := uint32(0); id < r.nextID; id++ {
		acct, ok := r.byID[id]
		if !ok {
			continue
		}
		acct.mu.Lock()
		used := acct.quotaUsed
		acct.mu.Unlock()
		fmt.Fprintf(&buf, "%s %s %d\n", acct.username, acct.hash, used)
	}

	if err := atomic.WriteFile(r.cfg.Path, &buf); err != nil {
		return fmt.Errorf("write registry file: %w", err)
	}
	return nil
}

// ValidateUsername checks that a username is non-empty, at most 63 bytes,
// and safe to use as a directory name under the storage root.
func ValidateUsername(username string) error {
	if username == "" || len(username) > MaxUsernameLength {
		return ErrInvalidUsername
	}
	if !usernamePattern.MatchString(username) {
		return ErrInvalidUsername
	}
	return nil
}

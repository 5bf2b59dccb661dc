// Package store implements the encrypted persistence contract the ratchet
// depends on: an SQLite database page-encrypted with a
// caller-supplied 32-byte key, holding sessions, staged skipped-message
// keys, pre-keys, and identity. Opened through SQLCipher
// (github.com/mutecomm/go-sqlcipher) so page encryption is the engine's,
// not an application-level envelope.
package store

import (
	"database/sql"
	"embed"
	"encoding/hex"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"

	sqlcipher "github.com/mutecomm/go-sqlcipher"

	"axocore/internal/cryptoprim"
	"axocore/internal/domain"
	"axocore/internal/errs"
)

// driverName is distinct from sqlcipher's own default registration name
// "sqlite3" — the same name mattn/go-sqlite3 (pulled in transitively by
// gorm.io/driver/sqlite, used by internal/apprepo) registers under. Both
// packages link into cmd/axo, so registering sqlcipher's driver a second
// time under driverName avoids the duplicate-registration panic
// database/sql raises on a second sql.Register call for the same name.
const driverName = "axo-sqlcipher"

func init() {
	sql.Register(driverName, &sqlcipher.SQLiteDriver{})
}

//go:embed migrations/*.sql
var migrationsFS embed.FS

const blobVersion byte = 0x01

// SQLStore is a process-owned handle opened once with explicit init/close
// and passed by reference into components rather than relied on as
// process-wide state. It is safe for
// concurrent use: database/sql pools reads, and writeMu serializes every
// write method, so multi-statement transactions such as pre-key consumption
// appear atomic to other writers.
type SQLStore struct {
	db      *sql.DB
	writeMu sync.Mutex
	ready   bool
	log     *slog.Logger
}

var _ domain.Store = (*SQLStore)(nil)

// Open opens (creating if absent) the SQLite database at path, keyed with
// the given 32-byte page-encryption key. The key slice is wiped before Open
// returns: the key is zeroed in memory immediately after the page-cipher
// has consumed it, and the caller's buffer is also overwritten.
func Open(path string, key []byte, log *slog.Logger) (*SQLStore, error) {
	if len(key) != 32 {
		return nil, errs.New(errs.BadParams, "store: page key must be 32 bytes")
	}
	defer cryptoprim.Wipe(key)

	dsn := fmt.Sprintf("%s?_pragma_key=x'%s'&_pragma_cipher_page_size=4096", path, hex.EncodeToString(key))
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, errs.Wrap(errs.SqlError, "open database", err)
	}
	db.SetMaxOpenConns(1) // SQLCipher connections are not safe to share across goroutines mid-pragma

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errs.Wrap(errs.AuthFailed, "open database: wrong key or corrupt file", err)
	}

	s := &SQLStore{db: db, log: log}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	s.ready = true
	return s, nil
}

func (s *SQLStore) IsReady() bool { return s.ready }

func (s *SQLStore) Close() error {
	s.ready = false
	return s.db.Close()
}

func (s *SQLStore) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER PRIMARY KEY)`); err != nil {
		return errs.Wrap(errs.SqlError, "create migrations table", err)
	}

	files, err := fs.Glob(migrationsFS, "migrations/*.sql")
	if err != nil {
		return errs.Wrap(errs.Internal, "glob migrations", err)
	}
	sort.Strings(files)

	applied := map[int]bool{}
	rows, err := s.db.Query(`SELECT version FROM schema_migrations`)
	if err != nil {
		return errs.Wrap(errs.SqlError, "read applied migrations", err)
	}
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return errs.Wrap(errs.SqlError, "scan migration version", err)
		}
		applied[v] = true
	}
	rows.Close()

	for _, f := range files {
		version := extractVersion(f)
		if applied[version] {
			continue
		}
		content, err := migrationsFS.ReadFile(f)
		if err != nil {
			return errs.Wrap(errs.Internal, "read migration "+f, err)
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			return errs.Wrap(errs.SqlError, "apply migration "+f, err)
		}
		if _, err := s.db.Exec(`INSERT INTO schema_migrations(version) VALUES (?)`, version); err != nil {
			return errs.Wrap(errs.SqlError, "record migration "+f, err)
		}
	}
	return nil
}

func extractVersion(filename string) int {
	base := filename[strings.LastIndex(filename, "/")+1:]
	parts := strings.SplitN(base, "_", 2)
	v, _ := strconv.Atoi(parts[0])
	return v
}

// ResetStore wipes all non-identity tables.
func (s *SQLStore) ResetStore() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	for _, t := range []string{"conversations", "staged_mks", "prekeys", "signed_prekeys", "device_cache", "account_profiles"} {
		if _, err := s.db.Exec("DELETE FROM " + t); err != nil {
			return errs.Wrap(errs.SqlError, "reset "+t, err)
		}
	}
	return nil
}

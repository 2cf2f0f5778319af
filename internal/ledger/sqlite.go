package ledger

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/billguard/billguard/internal/auth"
)

// SQLiteDB implements the DB interface on a SQLite file. It exists for
// deployments that want plain SQL access to the ledger; behavior matches
// BoltDB.
type SQLiteDB struct {
	db *sql.DB
}

// NewSQLiteDB opens (and migrates) a SQLite-backed ledger database.
func NewSQLiteDB(path string) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := runMigrations(path); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &SQLiteDB{db: db}, nil
}

const timeLayout = time.RFC3339Nano

// SaveEntries writes the whole batch inside one SQL transaction.
func (s *SQLiteDB) SaveEntries(entries []*Entry) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, e := range entries {
		_, err := tx.Exec(`
			INSERT INTO entries (id, owner_id, kind, amount_cents, description, category, entry_date, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				kind = excluded.kind,
				amount_cents = excluded.amount_cents,
				description = excluded.description,
				category = excluded.category,
				entry_date = excluded.entry_date,
				updated_at = excluded.updated_at`,
			e.ID, e.OwnerID, e.Kind, e.Amount, e.Description, e.Category, e.Date,
			e.CreatedAt.UTC().Format(timeLayout), e.UpdatedAt.UTC().Format(timeLayout))
		if err != nil {
			return fmt.Errorf("insert entry: %w", err)
		}
	}
	return tx.Commit()
}

// SaveEntry inserts or updates a single entry
func (s *SQLiteDB) SaveEntry(entry *Entry) error {
	return s.SaveEntries([]*Entry{entry})
}

func scanEntry(row interface{ Scan(...any) error }) (*Entry, error) {
	var e Entry
	var created, updated string
	err := row.Scan(&e.ID, &e.OwnerID, &e.Kind, &e.Amount, &e.Description, &e.Category, &e.Date, &created, &updated)
	if err != nil {
		return nil, err
	}
	if e.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if e.UpdatedAt, err = time.Parse(timeLayout, updated); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &e, nil
}

// GetEntry retrieves an entry owned by ownerID
func (s *SQLiteDB) GetEntry(ownerID, id string) (*Entry, error) {
	row := s.db.QueryRow(`
		SELECT id, owner_id, kind, amount_cents, description, category, entry_date, created_at, updated_at
		FROM entries WHERE id = ? AND owner_id = ?`, id, ownerID)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: entry %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get entry: %w", err)
	}
	return entry, nil
}

// ListEntries returns the owner's entries, newest date first
func (s *SQLiteDB) ListEntries(ownerID string) ([]*Entry, error) {
	rows, err := s.db.Query(`
		SELECT id, owner_id, kind, amount_cents, description, category, entry_date, created_at, updated_at
		FROM entries WHERE owner_id = ?
		ORDER BY entry_date DESC, created_at DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	entries := make([]*Entry, 0)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// DeleteEntry removes an entry owned by ownerID
func (s *SQLiteDB) DeleteEntry(ownerID, id string) error {
	res, err := s.db.Exec(`DELETE FROM entries WHERE id = ? AND owner_id = ?`, id, ownerID)
	if err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: entry %s", ErrNotFound, id)
	}
	return nil
}

// SaveRecurring inserts or updates a recurring payment
func (s *SQLiteDB) SaveRecurring(p *RecurringPayment) error {
	_, err := s.db.Exec(`
		INSERT INTO recurring_payments (id, owner_id, description, amount_cents, category, day_of_month, active, last_posted, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			description = excluded.description,
			amount_cents = excluded.amount_cents,
			category = excluded.category,
			day_of_month = excluded.day_of_month,
			active = excluded.active,
			last_posted = excluded.last_posted,
			updated_at = excluded.updated_at`,
		p.ID, p.OwnerID, p.Description, p.Amount, p.Category, p.DayOfMonth, p.Active, p.LastPosted,
		p.CreatedAt.UTC().Format(timeLayout), p.UpdatedAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("save recurring payment: %w", err)
	}
	return nil
}

func scanRecurring(row interface{ Scan(...any) error }) (*RecurringPayment, error) {
	var p RecurringPayment
	var created, updated string
	err := row.Scan(&p.ID, &p.OwnerID, &p.Description, &p.Amount, &p.Category, &p.DayOfMonth, &p.Active, &p.LastPosted, &created, &updated)
	if err != nil {
		return nil, err
	}
	if p.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if p.UpdatedAt, err = time.Parse(timeLayout, updated); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &p, nil
}

// GetRecurring retrieves a recurring payment owned by ownerID
func (s *SQLiteDB) GetRecurring(ownerID, id string) (*RecurringPayment, error) {
	row := s.db.QueryRow(`
		SELECT id, owner_id, description, amount_cents, category, day_of_month, active, last_posted, created_at, updated_at
		FROM recurring_payments WHERE id = ? AND owner_id = ?`, id, ownerID)
	p, err := scanRecurring(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: recurring payment %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get recurring payment: %w", err)
	}
	return p, nil
}

// ListRecurring returns the owner's recurring payments
func (s *SQLiteDB) ListRecurring(ownerID string) ([]*RecurringPayment, error) {
	rows, err := s.db.Query(`
		SELECT id, owner_id, description, amount_cents, category, day_of_month, active, last_posted, created_at, updated_at
		FROM recurring_payments WHERE owner_id = ?
		ORDER BY day_of_month ASC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list recurring payments: %w", err)
	}
	defer rows.Close()

	payments := make([]*RecurringPayment, 0)
	for rows.Next() {
		p, err := scanRecurring(rows)
		if err != nil {
			return nil, fmt.Errorf("scan recurring payment: %w", err)
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// DeleteRecurring removes a recurring payment owned by ownerID
func (s *SQLiteDB) DeleteRecurring(ownerID, id string) error {
	res, err := s.db.Exec(`DELETE FROM recurring_payments WHERE id = ? AND owner_id = ?`, id, ownerID)
	if err != nil {
		return fmt.Errorf("delete recurring payment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: recurring payment %s", ErrNotFound, id)
	}
	return nil
}

// SaveReceiptFile records an archived receipt upload
func (s *SQLiteDB) SaveReceiptFile(rf *ReceiptFile) error {
	_, err := s.db.Exec(`
		INSERT INTO receipt_files (id, owner_id, filename, content_type, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		rf.ID, rf.OwnerID, rf.Filename, rf.ContentType, rf.CreatedAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("save receipt file: %w", err)
	}
	return nil
}

// GetReceiptFile retrieves a receipt record owned by ownerID
func (s *SQLiteDB) GetReceiptFile(ownerID, id string) (*ReceiptFile, error) {
	var rf ReceiptFile
	var created string
	err := s.db.QueryRow(`
		SELECT id, owner_id, filename, content_type, created_at
		FROM receipt_files WHERE id = ? AND owner_id = ?`, id, ownerID).
		Scan(&rf.ID, &rf.OwnerID, &rf.Filename, &rf.ContentType, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: receipt %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get receipt file: %w", err)
	}
	if rf.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	return &rf, nil
}

// ListReceiptFiles returns the owner's receipt records, newest first
func (s *SQLiteDB) ListReceiptFiles(ownerID string) ([]*ReceiptFile, error) {
	rows, err := s.db.Query(`
		SELECT id, owner_id, filename, content_type, created_at
		FROM receipt_files WHERE owner_id = ?
		ORDER BY created_at DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list receipt files: %w", err)
	}
	defer rows.Close()

	files := make([]*ReceiptFile, 0)
	for rows.Next() {
		var rf ReceiptFile
		var created string
		if err := rows.Scan(&rf.ID, &rf.OwnerID, &rf.Filename, &rf.ContentType, &created); err != nil {
			return nil, fmt.Errorf("scan receipt file: %w", err)
		}
		if rf.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		files = append(files, &rf)
	}
	return files, rows.Err()
}

// SaveUser saves a user account
func (s *SQLiteDB) SaveUser(user *auth.User) error {
	_, err := s.db.Exec(`
		INSERT INTO users (id, email, password_hash, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			email = excluded.email,
			password_hash = excluded.password_hash`,
		user.ID, user.Email, user.PasswordHash, user.CreatedAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("save user: %w", err)
	}
	return nil
}

func (s *SQLiteDB) scanUser(query string, arg any) (*auth.User, error) {
	var user auth.User
	var created string
	err := s.db.QueryRow(query, arg).Scan(&user.ID, &user.Email, &user.PasswordHash, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: user", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	return &user, nil
}

// GetUserByEmail retrieves a user by email address
func (s *SQLiteDB) GetUserByEmail(email string) (*auth.User, error) {
	return s.scanUser(`SELECT id, email, password_hash, created_at FROM users WHERE email = ?`, email)
}

// GetUser retrieves a user by ID
func (s *SQLiteDB) GetUser(id string) (*auth.User, error) {
	return s.scanUser(`SELECT id, email, password_hash, created_at FROM users WHERE id = ?`, id)
}

// Close closes the database connection
func (s *SQLiteDB) Close() error {
	return s.db.Close()
}

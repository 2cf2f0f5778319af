package ledger

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"go.etcd.io/bbolt"

	"github.com/billguard/billguard/internal/auth"
)

const (
	entriesBucketName   = "entries"
	recurringBucketName = "recurring"
	receiptsBucketName  = "receipts"
	usersBucketName     = "users"
	emailIndexBucket    = "user_emails"
)

// DB defines the interface for ledger persistence. Every read and write is
// scoped by owner identity; SaveEntries is the one batch operation and is
// atomic at the store level. DB also satisfies auth.Store so the same
// database backs user accounts.
type DB interface {
	// SaveEntries writes a batch of entries as a single transaction.
	// Either all entries become visible or none do.
	SaveEntries(entries []*Entry) error

	// SaveEntry inserts or updates a single entry
	SaveEntry(entry *Entry) error

	// GetEntry retrieves an entry owned by ownerID
	GetEntry(ownerID, id string) (*Entry, error)

	// ListEntries returns the owner's entries, newest date first
	ListEntries(ownerID string) ([]*Entry, error)

	// DeleteEntry removes an entry owned by ownerID
	DeleteEntry(ownerID, id string) error

	// SaveRecurring inserts or updates a recurring payment
	SaveRecurring(p *RecurringPayment) error

	// GetRecurring retrieves a recurring payment owned by ownerID
	GetRecurring(ownerID, id string) (*RecurringPayment, error)

	// ListRecurring returns the owner's recurring payments
	ListRecurring(ownerID string) ([]*RecurringPayment, error)

	// DeleteRecurring removes a recurring payment owned by ownerID
	DeleteRecurring(ownerID, id string) error

	// SaveReceiptFile records an archived receipt upload
	SaveReceiptFile(rf *ReceiptFile) error

	// GetReceiptFile retrieves a receipt record owned by ownerID
	GetReceiptFile(ownerID, id string) (*ReceiptFile, error)

	// ListReceiptFiles returns the owner's receipt records, newest first
	ListReceiptFiles(ownerID string) ([]*ReceiptFile, error)

	// SaveUser saves a user account
	SaveUser(user *auth.User) error

	// GetUserByEmail retrieves a user by email address
	GetUserByEmail(email string) (*auth.User, error)

	// GetUser retrieves a user by ID
	GetUser(id string) (*auth.User, error)

	// Close closes the database connection
	Close() error
}

// BoltDB implements the DB interface using bbolt. Owner scoping uses one
// sub-bucket per owner inside each top-level bucket.
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB creates a new BoltDB instance
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{entriesBucketName, recurringBucketName, receiptsBucketName, usersBucketName, emailIndexBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltDB{db: db}, nil
}

func ownerBucket(tx *bbolt.Tx, bucket, ownerID string) (*bbolt.Bucket, error) {
	root := tx.Bucket([]byte(bucket))
	if tx.Writable() {
		return root.CreateBucketIfNotExists([]byte(ownerID))
	}
	b := root.Bucket([]byte(ownerID))
	if b == nil {
		return nil, nil
	}
	return b, nil
}

// SaveEntries writes the whole batch inside one bbolt update transaction;
// any failure rolls the transaction back and nothing becomes visible.
func (b *BoltDB) SaveEntries(entries []*Entry) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		for _, entry := range entries {
			bucket, err := ownerBucket(tx, entriesBucketName, entry.OwnerID)
			if err != nil {
				return err
			}
			data, err := json.Marshal(entry)
			if err != nil {
				return fmt.Errorf("marshaling entry: %w", err)
			}
			if err := bucket.Put([]byte(entry.ID), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// SaveEntry inserts or updates a single entry
func (b *BoltDB) SaveEntry(entry *Entry) error {
	return b.SaveEntries([]*Entry{entry})
}

// GetEntry retrieves an entry owned by ownerID
func (b *BoltDB) GetEntry(ownerID, id string) (*Entry, error) {
	var entry *Entry
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket, _ := ownerBucket(tx, entriesBucketName, ownerID)
		if bucket == nil {
			return fmt.Errorf("%w: entry %s", ErrNotFound, id)
		}
		data := bucket.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: entry %s", ErrNotFound, id)
		}
		return json.Unmarshal(data, &entry)
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// ListEntries returns the owner's entries, newest date first
func (b *BoltDB) ListEntries(ownerID string) ([]*Entry, error) {
	entries := make([]*Entry, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket, _ := ownerBucket(tx, entriesBucketName, ownerID)
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(k, v []byte) error {
			var entry Entry
			if err := json.Unmarshal(v, &entry); err != nil {
				return fmt.Errorf("unmarshaling entry: %w", err)
			}
			entries = append(entries, &entry)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sortEntries(entries)
	return entries, nil
}

// sortEntries orders by date descending, then creation time descending.
func sortEntries(entries []*Entry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Date != entries[j].Date {
			return entries[i].Date > entries[j].Date
		}
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})
}

// DeleteEntry removes an entry owned by ownerID
func (b *BoltDB) DeleteEntry(ownerID, id string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := ownerBucket(tx, entriesBucketName, ownerID)
		if err != nil {
			return err
		}
		if bucket.Get([]byte(id)) == nil {
			return fmt.Errorf("%w: entry %s", ErrNotFound, id)
		}
		return bucket.Delete([]byte(id))
	})
}

// SaveRecurring inserts or updates a recurring payment
func (b *BoltDB) SaveRecurring(p *RecurringPayment) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := ownerBucket(tx, recurringBucketName, p.OwnerID)
		if err != nil {
			return err
		}
		data, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("marshaling recurring payment: %w", err)
		}
		return bucket.Put([]byte(p.ID), data)
	})
}

// GetRecurring retrieves a recurring payment owned by ownerID
func (b *BoltDB) GetRecurring(ownerID, id string) (*RecurringPayment, error) {
	var p *RecurringPayment
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket, _ := ownerBucket(tx, recurringBucketName, ownerID)
		if bucket == nil {
			return fmt.Errorf("%w: recurring payment %s", ErrNotFound, id)
		}
		data := bucket.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: recurring payment %s", ErrNotFound, id)
		}
		return json.Unmarshal(data, &p)
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// ListRecurring returns the owner's recurring payments
func (b *BoltDB) ListRecurring(ownerID string) ([]*RecurringPayment, error) {
	payments := make([]*RecurringPayment, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket, _ := ownerBucket(tx, recurringBucketName, ownerID)
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(k, v []byte) error {
			var p RecurringPayment
			if err := json.Unmarshal(v, &p); err != nil {
				return fmt.Errorf("unmarshaling recurring payment: %w", err)
			}
			payments = append(payments, &p)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(payments, func(i, j int) bool {
		return payments[i].DayOfMonth < payments[j].DayOfMonth
	})
	return payments, nil
}

// DeleteRecurring removes a recurring payment owned by ownerID
func (b *BoltDB) DeleteRecurring(ownerID, id string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := ownerBucket(tx, recurringBucketName, ownerID)
		if err != nil {
			return err
		}
		if bucket.Get([]byte(id)) == nil {
			return fmt.Errorf("%w: recurring payment %s", ErrNotFound, id)
		}
		return bucket.Delete([]byte(id))
	})
}

// SaveReceiptFile records an archived receipt upload
func (b *BoltDB) SaveReceiptFile(rf *ReceiptFile) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := ownerBucket(tx, receiptsBucketName, rf.OwnerID)
		if err != nil {
			return err
		}
		data, err := json.Marshal(rf)
		if err != nil {
			return fmt.Errorf("marshaling receipt file: %w", err)
		}
		return bucket.Put([]byte(rf.ID), data)
	})
}

// GetReceiptFile retrieves a receipt record owned by ownerID
func (b *BoltDB) GetReceiptFile(ownerID, id string) (*ReceiptFile, error) {
	var rf *ReceiptFile
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket, _ := ownerBucket(tx, receiptsBucketName, ownerID)
		if bucket == nil {
			return fmt.Errorf("%w: receipt %s", ErrNotFound, id)
		}
		data := bucket.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: receipt %s", ErrNotFound, id)
		}
		return json.Unmarshal(data, &rf)
	})
	if err != nil {
		return nil, err
	}
	return rf, nil
}

// ListReceiptFiles returns the owner's receipt records, newest first
func (b *BoltDB) ListReceiptFiles(ownerID string) ([]*ReceiptFile, error) {
	files := make([]*ReceiptFile, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket, _ := ownerBucket(tx, receiptsBucketName, ownerID)
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(k, v []byte) error {
			var rf ReceiptFile
			if err := json.Unmarshal(v, &rf); err != nil {
				return fmt.Errorf("unmarshaling receipt file: %w", err)
			}
			files = append(files, &rf)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(files, func(i, j int) bool {
		return files[i].CreatedAt.After(files[j].CreatedAt)
	})
	return files, nil
}

// SaveUser saves a user account and its email index entry
func (b *BoltDB) SaveUser(user *auth.User) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		users := tx.Bucket([]byte(usersBucketName))
		emails := tx.Bucket([]byte(emailIndexBucket))

		if existing := emails.Get([]byte(user.Email)); existing != nil && string(existing) != user.ID {
			return fmt.Errorf("email %s is already registered", user.Email)
		}

		data, err := json.Marshal(user)
		if err != nil {
			return fmt.Errorf("marshaling user: %w", err)
		}
		if err := users.Put([]byte(user.ID), data); err != nil {
			return err
		}
		return emails.Put([]byte(user.Email), []byte(user.ID))
	})
}

// GetUserByEmail retrieves a user by email address
func (b *BoltDB) GetUserByEmail(email string) (*auth.User, error) {
	var user *auth.User
	err := b.db.View(func(tx *bbolt.Tx) error {
		id := tx.Bucket([]byte(emailIndexBucket)).Get([]byte(email))
		if id == nil {
			return fmt.Errorf("%w: user %s", ErrNotFound, email)
		}
		data := tx.Bucket([]byte(usersBucketName)).Get(id)
		if data == nil {
			return fmt.Errorf("%w: user %s", ErrNotFound, email)
		}
		return json.Unmarshal(data, &user)
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// GetUser retrieves a user by ID
func (b *BoltDB) GetUser(id string) (*auth.User, error) {
	var user *auth.User
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(usersBucketName)).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: user %s", ErrNotFound, id)
		}
		return json.Unmarshal(data, &user)
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// Close closes the database connection
func (b *BoltDB) Close() error {
	return b.db.Close()
}

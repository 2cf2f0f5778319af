package ledger

import (
	"path/filepath"
	"time"

	g "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/billguard/billguard/internal/auth"
)

// describeDB runs the persistence contract against a DB implementation.
// Both backends must behave identically from the service's point of view.
func describeDB(name string, open func() DB) bool {
	return g.Describe(name, func() {
		var db DB

		g.BeforeEach(func() {
			db = open()
		})

		g.AfterEach(func() {
			Expect(db.Close()).To(Succeed())
		})

		entry := func(id, ownerID, date string) *Entry {
			return &Entry{
				ID:          id,
				OwnerID:     ownerID,
				Kind:        KindExpense,
				Amount:      1250,
				Description: "Lunch",
				Category:    "Food",
				Date:        date,
				CreatedAt:   time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC),
				UpdatedAt:   time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC),
			}
		}

		g.Describe("entries", func() {
			g.It("round-trips a saved entry", func() {
				Expect(db.SaveEntry(entry("e1", "u1", "2024-06-15"))).To(Succeed())

				got, err := db.GetEntry("u1", "e1")
				Expect(err).NotTo(HaveOccurred())
				Expect(got.Description).To(Equal("Lunch"))
				Expect(got.Amount).To(Equal(1250))
				Expect(got.Date).To(Equal("2024-06-15"))
			})

			g.It("saves a batch in one call and lists newest date first", func() {
				batch := []*Entry{
					entry("e1", "u1", "2024-06-01"),
					entry("e2", "u1", "2024-06-20"),
					entry("e3", "u1", "2024-06-10"),
				}
				Expect(db.SaveEntries(batch)).To(Succeed())

				entries, err := db.ListEntries("u1")
				Expect(err).NotTo(HaveOccurred())
				Expect(entries).To(HaveLen(3))
				Expect(entries[0].ID).To(Equal("e2"))
				Expect(entries[1].ID).To(Equal("e3"))
				Expect(entries[2].ID).To(Equal("e1"))
			})

			g.It("scopes reads to the owner", func() {
				Expect(db.SaveEntry(entry("e1", "u1", "2024-06-15"))).To(Succeed())

				_, err := db.GetEntry("u2", "e1")
				Expect(err).To(MatchError(ErrNotFound))

				entries, err := db.ListEntries("u2")
				Expect(err).NotTo(HaveOccurred())
				Expect(entries).To(BeEmpty())
			})

			g.It("updates an existing entry in place", func() {
				e := entry("e1", "u1", "2024-06-15")
				Expect(db.SaveEntry(e)).To(Succeed())

				e.Description = "Dinner"
				e.Amount = 4200
				Expect(db.SaveEntry(e)).To(Succeed())

				got, err := db.GetEntry("u1", "e1")
				Expect(err).NotTo(HaveOccurred())
				Expect(got.Description).To(Equal("Dinner"))
				Expect(got.Amount).To(Equal(4200))

				entries, err := db.ListEntries("u1")
				Expect(err).NotTo(HaveOccurred())
				Expect(entries).To(HaveLen(1))
			})

			g.It("deletes entries and reports missing ones", func() {
				Expect(db.SaveEntry(entry("e1", "u1", "2024-06-15"))).To(Succeed())
				Expect(db.DeleteEntry("u1", "e1")).To(Succeed())

				_, err := db.GetEntry("u1", "e1")
				Expect(err).To(MatchError(ErrNotFound))
				Expect(db.DeleteEntry("u1", "e1")).To(MatchError(ErrNotFound))
			})
		})

		g.Describe("recurring payments", func() {
			g.It("round-trips and scopes by owner", func() {
				p := &RecurringPayment{
					ID: "r1", OwnerID: "u1", Description: "Rent", Amount: 120000,
					Category: "Housing", DayOfMonth: 1, Active: true,
					CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC(),
				}
				Expect(db.SaveRecurring(p)).To(Succeed())

				got, err := db.GetRecurring("u1", "r1")
				Expect(err).NotTo(HaveOccurred())
				Expect(got.Description).To(Equal("Rent"))
				Expect(got.Active).To(BeTrue())

				_, err = db.GetRecurring("u2", "r1")
				Expect(err).To(MatchError(ErrNotFound))
			})

			g.It("persists the last posted month", func() {
				p := &RecurringPayment{
					ID: "r1", OwnerID: "u1", Description: "Rent", Amount: 120000,
					DayOfMonth: 1, Active: true,
					CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC(),
				}
				Expect(db.SaveRecurring(p)).To(Succeed())

				p.LastPosted = "2024-06"
				Expect(db.SaveRecurring(p)).To(Succeed())

				got, err := db.GetRecurring("u1", "r1")
				Expect(err).NotTo(HaveOccurred())
				Expect(got.LastPosted).To(Equal("2024-06"))
			})
		})

		g.Describe("receipt files", func() {
			g.It("round-trips and lists per owner", func() {
				rf := &ReceiptFile{
					ID: "f1", OwnerID: "u1", Filename: "f1_receipt.jpg",
					ContentType: "image/jpeg", CreatedAt: time.Now().UTC(),
				}
				Expect(db.SaveReceiptFile(rf)).To(Succeed())

				got, err := db.GetReceiptFile("u1", "f1")
				Expect(err).NotTo(HaveOccurred())
				Expect(got.Filename).To(Equal("f1_receipt.jpg"))

				files, err := db.ListReceiptFiles("u2")
				Expect(err).NotTo(HaveOccurred())
				Expect(files).To(BeEmpty())
			})
		})

		g.Describe("users", func() {
			g.It("round-trips by ID and email", func() {
				user := &auth.User{
					ID: "u1", Email: "alice@example.com",
					PasswordHash: []byte("hash"), CreatedAt: time.Now().UTC(),
				}
				Expect(db.SaveUser(user)).To(Succeed())

				byID, err := db.GetUser("u1")
				Expect(err).NotTo(HaveOccurred())
				Expect(byID.Email).To(Equal("alice@example.com"))

				byEmail, err := db.GetUserByEmail("alice@example.com")
				Expect(err).NotTo(HaveOccurred())
				Expect(byEmail.ID).To(Equal("u1"))
				Expect(byEmail.PasswordHash).To(Equal([]byte("hash")))
			})

			g.It("rejects a second account with the same email", func() {
				Expect(db.SaveUser(&auth.User{ID: "u1", Email: "alice@example.com", PasswordHash: []byte("h"), CreatedAt: time.Now().UTC()})).To(Succeed())
				Expect(db.SaveUser(&auth.User{ID: "u2", Email: "alice@example.com", PasswordHash: []byte("h"), CreatedAt: time.Now().UTC()})).To(HaveOccurred())
			})
		})
	})
}

var _ = describeDB("BoltDB", func() DB {
	db, err := NewBoltDB(filepath.Join(g.GinkgoT().TempDir(), "ledger.db"))
	Expect(err).NotTo(HaveOccurred())
	return db
})

var _ = describeDB("SQLiteDB", func() DB {
	db, err := NewSQLiteDB(filepath.Join(g.GinkgoT().TempDir(), "ledger.sqlite"))
	Expect(err).NotTo(HaveOccurred())
	return db
})

var _ = g.Describe("SQLiteDB batch atomicity", func() {
	g.It("leaves nothing readable when a batch write fails mid-way", func() {
		db, err := NewSQLiteDB(filepath.Join(g.GinkgoT().TempDir(), "ledger.sqlite"))
		Expect(err).NotTo(HaveOccurred())
		defer db.Close()

		now := time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC)
		batch := []*Entry{
			{ID: "e1", OwnerID: "u1", Kind: KindExpense, Amount: 100, Description: "ok", Date: "2024-06-01", CreatedAt: now, UpdatedAt: now},
			// violates the amount_cents >= 0 constraint
			{ID: "e2", OwnerID: "u1", Kind: KindExpense, Amount: -100, Description: "bad", Date: "2024-06-01", CreatedAt: now, UpdatedAt: now},
		}
		Expect(db.SaveEntries(batch)).To(HaveOccurred())

		entries, err := db.ListEntries("u1")
		Expect(err).NotTo(HaveOccurred())
		Expect(entries).To(BeEmpty())
	})
})

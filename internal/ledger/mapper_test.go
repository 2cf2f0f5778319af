package ledger

import (
	"time"

	g "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/billguard/billguard/internal/scanning"
)

var _ = g.Describe("MapEntries", func() {
	var (
		result  *scanning.Result
		ownerID string
		now     time.Time
		entries []Entry
		err     error
	)

	g.BeforeEach(func() {
		result = &scanning.Result{
			Date: "2024-03-15",
			Items: []scanning.Item{
				{Name: "Milk 2L", Quantity: 1, Price: 3.99},
				{Name: "Bread", Quantity: 2, Price: 2.50},
				{Name: "Coffee Beans", Quantity: 1, Price: 12.00},
			},
		}
		ownerID = "u1"
		now = time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC)
	})

	g.JustBeforeEach(func() {
		entries, err = MapEntries(result, ownerID, now)
	})

	g.When("the extraction has a date and items", func() {
		g.It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		g.It("should produce one candidate per item", func() {
			Expect(entries).To(HaveLen(3))
		})

		g.It("should use the extraction date on every candidate", func() {
			for _, e := range entries {
				Expect(e.Date).To(Equal("2024-03-15"))
			}
		})

		g.It("should convert prices to cents", func() {
			Expect(entries[0].Amount).To(Equal(399))
			Expect(entries[1].Amount).To(Equal(250))
			Expect(entries[2].Amount).To(Equal(1200))
		})

		g.It("should mark every candidate as an expense", func() {
			for _, e := range entries {
				Expect(e.Kind).To(Equal(KindExpense))
			}
		})

		g.It("should scope every candidate to the owner", func() {
			for _, e := range entries {
				Expect(e.OwnerID).To(Equal("u1"))
			}
		})

		g.It("should take the category from the first word of the name", func() {
			Expect(entries[0].Category).To(Equal("Milk"))
			Expect(entries[2].Category).To(Equal("Coffee"))
		})

		g.It("should not assign IDs or timestamps", func() {
			for _, e := range entries {
				Expect(e.ID).To(BeEmpty())
				Expect(e.CreatedAt.IsZero()).To(BeTrue())
				Expect(e.UpdatedAt.IsZero()).To(BeTrue())
			}
		})
	})

	g.When("the extraction has no date", func() {
		g.BeforeEach(func() {
			result.Date = ""
		})

		g.It("should fall back to the mapping-time date", func() {
			Expect(err).NotTo(HaveOccurred())
			for _, e := range entries {
				Expect(e.Date).To(Equal("2024-06-15"))
			}
		})
	})

	g.When("mapping the same result twice", func() {
		g.It("should yield identical candidates", func() {
			again, againErr := MapEntries(result, ownerID, now)
			Expect(againErr).NotTo(HaveOccurred())
			Expect(again).To(Equal(entries))
		})
	})

	g.When("no owner is given", func() {
		g.BeforeEach(func() {
			ownerID = ""
		})

		g.It("should return ErrUnauthenticated", func() {
			Expect(err).To(MatchError(ErrUnauthenticated))
		})
	})
})

var _ = g.Describe("Cents", func() {
	g.It("should round half-cent values instead of truncating", func() {
		Expect(Cents(19.99)).To(Equal(1999))
		Expect(Cents(0.1 + 0.2)).To(Equal(30))
	})
})

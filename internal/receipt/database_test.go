package receipt

import (
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/receipt-capture/internal/tracking"
)

var _ = Describe("BoltDB", func() {
	var (
		tmpDir string
		dbPath string
		db     *BoltDB
	)

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		dbPath = filepath.Join(tmpDir, "test.db")
		var err error
		db, err = NewBoltDB(dbPath)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		if db != nil {
			db.Close()
		}
	})

	Describe("receipts", func() {
		var receipt *Receipt

		BeforeEach(func() {
			receipt = &Receipt{
				ID:          "test-id",
				TrackingID:  "job-1",
				Title:       "Test Receipt",
				Date:        time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
				Amount:      2599,
				Filename:    "test.jpg",
				ContentType: "image/jpeg",
				CreatedAt:   time.Now(),
				UpdatedAt:   time.Now(),
			}
			Expect(db.SaveReceipt(receipt)).To(Succeed())
		})

		It("should round-trip a saved receipt", func() {
			got, err := db.GetReceipt("test-id")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Title).To(Equal("Test Receipt"))
			Expect(got.TrackingID).To(Equal("job-1"))
			Expect(got.Amount).To(Equal(2599))
			Expect(got.Date.Equal(receipt.Date)).To(BeTrue())
		})

		It("should replace a receipt saved under the same ID", func() {
			receipt.Title = "Updated"
			Expect(db.SaveReceipt(receipt)).To(Succeed())

			got, err := db.GetReceipt("test-id")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Title).To(Equal("Updated"))
		})

		It("should list every receipt", func() {
			Expect(db.SaveReceipt(&Receipt{ID: "other"})).To(Succeed())

			receipts, err := db.ListReceipts()
			Expect(err).NotTo(HaveOccurred())
			Expect(receipts).To(HaveLen(2))
		})

		When("the receipt is deleted", func() {
			BeforeEach(func() {
				Expect(db.DeleteReceipt("test-id")).To(Succeed())
			})

			It("returns ErrNotFound", func() {
				_, err := db.GetReceipt("test-id")
				Expect(err).To(MatchError(ErrNotFound))
			})
		})
	})

	Describe("jobs", func() {
		BeforeEach(func() {
			Expect(db.SaveJob(&Job{
				ID:          "job-1",
				Filename:    "job-1_r.png",
				ContentType: "image/png",
				Status:      tracking.StatusPending,
				Attempts:    1,
			})).To(Succeed())
		})

		It("should round-trip a saved job", func() {
			job, err := db.GetJob("job-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(job.Status).To(Equal(tracking.StatusPending))
			Expect(job.Attempts).To(Equal(1))
		})

		It("should keep jobs apart from receipts", func() {
			_, err := db.GetReceipt("job-1")
			Expect(err).To(MatchError(ErrNotFound))

			receipts, err := db.ListReceipts()
			Expect(err).NotTo(HaveOccurred())
			Expect(receipts).To(BeEmpty())
		})

		It("should list jobs", func() {
			jobs, err := db.ListJobs()
			Expect(err).NotTo(HaveOccurred())
			Expect(jobs).To(HaveLen(1))
			Expect(jobs[0].ID).To(Equal("job-1"))
		})

		When("the job does not exist", func() {
			It("returns ErrNotFound", func() {
				_, err := db.GetJob("missing")
				Expect(err).To(MatchError(ErrNotFound))
			})
		})
	})

	When("the database is reopened", func() {
		BeforeEach(func() {
			Expect(db.SaveJob(&Job{ID: "job-1", Status: tracking.StatusSucceeded, ReceiptID: "r-1"})).To(Succeed())
			Expect(db.Close()).To(Succeed())

			var err error
			db, err = NewBoltDB(dbPath)
			Expect(err).NotTo(HaveOccurred())
		})

		It("should keep what was saved", func() {
			job, err := db.GetJob("job-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(job.Resolution()).To(Equal(tracking.Succeeded("job-1", "r-1")))
		})
	})
})

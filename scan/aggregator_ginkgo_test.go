package scan

import (
	"errors"
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/flanksource/defect-track/models"
)

func record(author string, severity models.Severity, status models.Status) models.DefectRecord {
	f := models.RawFinding{
		File:     "pkg/a.go",
		Author:   author,
		Checker:  "lint",
		Severity: severity,
		Message:  author + "/" + severity.String(),
	}
	return models.DefectRecord{
		Fingerprint: f.Fingerprint(),
		Project:     "demo",
		File:        f.File,
		Author:      author,
		Checker:     f.Checker,
		Severity:    severity,
		DefectType:  models.DefectTypeNew,
		Status:      status,
	}
}

var _ = Describe("Aggregate", func() {
	It("counts unrepaired defects per author and severity", func() {
		records := []models.DefectRecord{
			record("alice", models.SeveritySerious, models.StatusNew),
			record("alice", models.SeverityNormal, models.StatusNew),
			record("bob", models.SeverityPrompt, models.StatusNew),
		}

		summaries, err := Aggregate(records)
		Expect(err).ToNot(HaveOccurred())
		Expect(summaries).To(HaveLen(2))

		Expect(summaries[0].Name).To(Equal("alice"))
		Expect(summaries[0].SeriousCount).To(Equal(1))
		Expect(summaries[0].NormalCount).To(Equal(1))
		Expect(summaries[0].PromptCount).To(Equal(0))
		Expect(summaries[0].TotalCount).To(Equal(2))

		Expect(summaries[1].Name).To(Equal("bob"))
		Expect(summaries[1].PromptCount).To(Equal(1))
		Expect(summaries[1].TotalCount).To(Equal(1))
	})

	It("excludes fixed and suppressed records from every count", func() {
		records := []models.DefectRecord{
			record("alice", models.SeveritySerious, models.StatusFixed),
			record("bob", models.SeverityNormal, models.StatusNew.With(models.StatusIgnored)),
			record("carol", models.SeverityNormal, models.StatusNew.With(models.StatusPathMasked)),
			record("dave", models.SeverityPrompt, models.StatusNew.With(models.StatusIgnored).With(models.StatusCheckerMasked)),
		}

		summaries, err := Aggregate(records)
		Expect(err).ToNot(HaveOccurred())
		Expect(summaries).To(BeEmpty())
	})

	It("groups empty authors under the unknown bucket", func() {
		records := []models.DefectRecord{
			record("", models.SeverityNormal, models.StatusNew),
			record("", models.SeveritySerious, models.StatusNew),
		}

		summaries, err := Aggregate(records)
		Expect(err).ToNot(HaveOccurred())
		Expect(summaries).To(HaveLen(1))
		Expect(summaries[0].Name).To(Equal(models.UnknownAuthor))
		Expect(summaries[0].TotalCount).To(Equal(2))
	})

	It("orders by descending total with name as tie breaker", func() {
		records := []models.DefectRecord{
			record("zoe", models.SeverityNormal, models.StatusNew),
			record("amy", models.SeverityPrompt, models.StatusNew),
			record("bob", models.SeveritySerious, models.StatusNew),
			record("bob", models.SeverityNormal, models.StatusNew),
		}

		summaries, err := Aggregate(records)
		Expect(err).ToNot(HaveOccurred())

		names := make([]string, len(summaries))
		for i, s := range summaries {
			names[i] = s.Name
		}
		Expect(names).To(Equal([]string{"bob", "amy", "zoe"}))
	})

	It("preserves the count invariants", func() {
		records := []models.DefectRecord{
			record("alice", models.SeveritySerious, models.StatusNew),
			record("alice", models.SeverityPrompt, models.StatusNew),
			record("bob", models.SeverityNormal, models.StatusNew),
			record("bob", models.SeverityNormal, models.StatusFixed),
			record("carol", models.SeverityPrompt, models.StatusNew.With(models.StatusIgnored)),
		}

		unrepaired := 0
		for _, rec := range records {
			if rec.Status.Unrepaired() {
				unrepaired++
			}
		}

		summaries, err := Aggregate(records)
		Expect(err).ToNot(HaveOccurred())

		total := 0
		for _, s := range summaries {
			Expect(s.TotalCount).To(Equal(s.SeriousCount + s.NormalCount + s.PromptCount))
			total += s.TotalCount
		}
		Expect(total).To(Equal(unrepaired))
	})

	It("is independent of input order", func() {
		records := []models.DefectRecord{
			record("alice", models.SeveritySerious, models.StatusNew),
			record("bob", models.SeverityNormal, models.StatusNew),
			record("carol", models.SeverityPrompt, models.StatusNew),
		}
		reversed := []models.DefectRecord{records[2], records[1], records[0]}

		a, err := Aggregate(records)
		Expect(err).ToNot(HaveOccurred())
		b, err := Aggregate(reversed)
		Expect(err).ToNot(HaveOccurred())
		Expect(a).To(Equal(b))
	})

	It("excludes inconsistent records and reports them", func() {
		broken := record("alice", models.SeveritySerious, models.StatusNew|models.StatusFixed)
		healthy := record("bob", models.SeverityNormal, models.StatusNew)

		summaries, err := Aggregate([]models.DefectRecord{broken, healthy})

		var integrity *IntegrityError
		Expect(err).To(HaveOccurred())
		Expect(errors.As(err, &integrity)).To(BeTrue())
		Expect(integrity.Fingerprints).To(ConsistOf(broken.Fingerprint))

		Expect(summaries).To(HaveLen(1))
		Expect(summaries[0].Name).To(Equal("bob"))
	})

	It("handles inputs larger than one chunk", func() {
		var records []models.DefectRecord
		for i := 0; i < aggregateChunkSize*3+17; i++ {
			f := models.RawFinding{
				File:     "pkg/a.go",
				LineNum:  i,
				Author:   "alice",
				Checker:  "lint",
				Severity: models.SeverityNormal,
				Anchor:   fmt.Sprintf("anchor-%d", i),
			}
			records = append(records, models.DefectRecord{
				Fingerprint: f.Fingerprint(),
				Author:      "alice",
				Checker:     "lint",
				Severity:    models.SeverityNormal,
				DefectType:  models.DefectTypeNew,
				Status:      models.StatusNew,
			})
		}

		summaries, err := Aggregate(records)
		Expect(err).ToNot(HaveOccurred())
		Expect(summaries).To(HaveLen(1))
		Expect(summaries[0].TotalCount).To(Equal(len(records)))
	})
})

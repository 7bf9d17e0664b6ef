package scan

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/samber/lo"

	"github.com/flanksource/defect-track/models"
)

// aggregateChunkSize is the number of records each map worker reduces.
const aggregateChunkSize = 512

// IntegrityError reports records whose status flags violate the
// liveness invariant. They are excluded from every count instead of the
// aggregator guessing which flag to believe.
type IntegrityError struct {
	Fingerprints []string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("%d records with inconsistent status flags excluded from aggregation: %s",
		len(e.Fingerprints), strings.Join(e.Fingerprints, ", "))
}

// Aggregate reduces the given records to per-author summaries of
// currently-unrepaired defects: liveness NEW and no suppression flag
// set. FIXED or suppressed records contribute to no count at all.
// Records with an empty author land in the reserved "unknown" bucket.
//
// The reduction is a parallel map-reduce: per-chunk partial sums merged
// by addition, so the result is independent of input order. Output is
// ordered by descending total count, ties broken by author name.
//
// A non-nil *IntegrityError is returned alongside valid summaries when
// inconsistent records had to be excluded.
func Aggregate(records []models.DefectRecord) ([]models.AuthorSummary, error) {
	chunks := lo.Chunk(records, aggregateChunkSize)

	type partial struct {
		counts  map[string]*models.AuthorSummary
		invalid []string
	}
	partials := make([]partial, len(chunks))

	var wg sync.WaitGroup
	for i, chunk := range chunks {
		wg.Add(1)
		go func(i int, chunk []models.DefectRecord) {
			defer wg.Done()
			p := &partials[i]
			p.counts = make(map[string]*models.AuthorSummary)
			for _, rec := range chunk {
				if err := rec.Status.Validate(); err != nil {
					p.invalid = append(p.invalid, rec.Fingerprint)
					continue
				}
				if !rec.Status.Unrepaired() {
					continue
				}
				name := rec.Author
				if name == "" {
					name = models.UnknownAuthor
				}
				summary, ok := p.counts[name]
				if !ok {
					summary = &models.AuthorSummary{Name: name}
					p.counts[name] = summary
				}
				summary.Add(rec.Severity)
			}
		}(i, chunk)
	}
	wg.Wait()

	merged := make(map[string]*models.AuthorSummary)
	var invalid []string
	for _, p := range partials {
		for name, summary := range p.counts {
			if existing, ok := merged[name]; ok {
				existing.Merge(*summary)
			} else {
				s := *summary
				merged[name] = &s
			}
		}
		invalid = append(invalid, p.invalid...)
	}

	summaries := make([]models.AuthorSummary, 0, len(merged))
	for _, s := range merged {
		summaries = append(summaries, *s)
	}
	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].TotalCount != summaries[j].TotalCount {
			return summaries[i].TotalCount > summaries[j].TotalCount
		}
		return summaries[i].Name < summaries[j].Name
	})

	if len(invalid) > 0 {
		sort.Strings(invalid)
		return summaries, &IntegrityError{Fingerprints: invalid}
	}
	return summaries, nil
}

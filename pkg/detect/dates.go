package detect

import (
	"fmt"
	"math"
	"time"

	"github.com/mchmarny/veracity/pkg/feature"
)

// issueDateGrace absorbs timezone and end-of-day skew before an issue
// date counts as being in the future.
const issueDateGrace = 48 * time.Hour

// dateLogic checks the document's date relations for impossibilities:
// due or paid before issue, or issued in the future. All checks anchor
// on the issue date; without it the detector skips.
type dateLogic struct {
	now func() time.Time
}

func (d dateLogic) ID() string {
	return RuleDateLogic
}

func (d dateLogic) Evaluate(fs feature.Set, p feature.Profile) Result {
	issued, ok := dateField(fs, feature.KeyIssuedDate)
	if !ok {
		return Skip()
	}

	violations := make([]string, 0, 3)
	ev := Evidence{"issued": issued.Format("2006-01-02")}

	if due, ok := dateField(fs, feature.KeyDueDate); ok {
		ev["due"] = due.Format("2006-01-02")
		if due.Before(issued) {
			violations = append(violations, "due date precedes issue date")
		}
	}
	if paid, ok := dateField(fs, feature.KeyPaidDate); ok {
		ev["paid"] = paid.Format("2006-01-02")
		if paid.Before(issued) {
			violations = append(violations, "payment date precedes issue date")
		}
	}
	if issued.After(d.now().UTC().Add(issueDateGrace)) {
		violations = append(violations, "issue date is in the future")
	}

	if len(violations) == 0 {
		return Pass()
	}

	score := math.Min(heuristicScoreCap, 0.30+0.05*float64(len(violations)-1))
	ev["violations"] = violations
	note := fmt.Sprintf("impossible date sequence: %s", violations[0])
	return Finding(score, SeverityCritical, note, ev)
}

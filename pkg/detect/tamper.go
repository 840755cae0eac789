package detect

import (
	"fmt"

	"github.com/mchmarny/veracity/pkg/feature"
)

// tamperCorroborationFloor separates a decisive vision verdict from a
// tentative one when the collaborator reports its own tamper score.
const tamperCorroborationFloor = 0.5

// imageTamper relays the vision collaborator's pixel-level tamper
// verdict into the rule pipeline. It is the one veto allowed on
// documents of unknown family: pixel evidence does not depend on the
// taxonomy. The detector performs no image analysis itself.
type imageTamper struct{}

func (d imageTamper) ID() string {
	return RuleImageTamper
}

func (d imageTamper) Evaluate(fs feature.Set, p feature.Profile) Result {
	if !fs.Has(feature.KeyTamperFlag) || fs.Confidence(feature.KeyTamperFlag) < fieldConfidenceFloor {
		return Skip()
	}
	if !fs.Flag(feature.KeyTamperFlag) {
		return Pass()
	}

	ev := Evidence{"flagged": true}
	if score, ok := floatField(fs, feature.KeyTamperScore); ok {
		ev["tamper_score"] = score
		if score < tamperCorroborationFloor {
			note := fmt.Sprintf("vision model flags tampering with weak corroboration (%.2f)", score)
			return Finding(0.25, SeverityWarning, note, ev)
		}
	}

	return Finding(0.80, SeverityHardFail, "vision model flags pixel-level tampering", ev)
}

package detect

import (
	"fmt"
	"math"
	"strings"

	"github.com/mchmarny/veracity/pkg/feature"
)

// editorProducers are authoring tools that edit pixels or pages rather
// than render documents. A receipt claiming one of these as its producer
// was touched after issuance.
var editorProducers = []string{
	"photoshop",
	"gimp",
	"pixelmator",
	"photopea",
	"pixlr",
	"canva",
	"ms paint",
	"paint.net",
}

// converterProducers are generic HTML-to-PDF pipelines. Legitimate
// billing systems use some of them too, so they weigh less than editors.
var converterProducers = []string{
	"wkhtmltopdf",
	"headlesschrome",
	"chromium",
	"puppeteer",
	"weasyprint",
	"dompdf",
}

// producerFingerprint inspects the document's authoring-software string
// for tools associated with after-the-fact editing or template forgery.
type producerFingerprint struct{}

func (d producerFingerprint) ID() string {
	return RuleProducerFingerprint
}

func (d producerFingerprint) Evaluate(fs feature.Set, p feature.Profile) Result {
	producer, ok := textField(fs, feature.KeyProducer)
	if !ok || strings.TrimSpace(producer) == "" {
		return Skip()
	}
	normalized := strings.ToLower(producer)

	for _, tool := range editorProducers {
		if strings.Contains(normalized, tool) {
			note := fmt.Sprintf("document produced by image editor %q", producer)
			return Finding(0.35, SeverityWarning, note, Evidence{
				"producer": producer,
				"matched":  tool,
				"class":    "editor",
			})
		}
	}
	for _, tool := range converterProducers {
		if strings.Contains(normalized, tool) {
			note := fmt.Sprintf("document produced by generic converter %q", producer)
			return Finding(0.20, SeverityWarning, note, Evidence{
				"producer": producer,
				"matched":  tool,
				"class":    "converter",
			})
		}
	}
	return Pass()
}

// spacingRatioFloor is the anomalous-gap share below which character
// spacing is considered ordinary kerning noise.
const spacingRatioFloor = 0.15

// charSpacing reads the extraction layer's inter-character spacing
// statistic. Pasted or retyped regions break a printed document's
// uniform kerning, pushing the anomalous-gap share up.
type charSpacing struct{}

func (d charSpacing) ID() string {
	return RuleCharSpacing
}

func (d charSpacing) Evaluate(fs feature.Set, p feature.Profile) Result {
	ratio, ok := floatField(fs, feature.KeySpacingRatio)
	if !ok {
		return Skip()
	}
	if ratio < 0 || ratio > 1 {
		return Skip()
	}
	if ratio <= spacingRatioFloor {
		return Pass()
	}

	score := math.Min(heuristicScoreCap, 0.10+ratio)
	note := fmt.Sprintf("%.0f%% of character gaps deviate from the document baseline", ratio*100)
	return Finding(score, SeverityWarning, note, Evidence{
		"ratio": ratio,
		"floor": spacingRatioFloor,
	})
}

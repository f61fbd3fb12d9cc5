package scoring

import "context"

// SentimentLabel is the classifier's verdict on a disclosure's tone.
type SentimentLabel string

const (
	SentimentPositive SentimentLabel = "positive"
	SentimentNeutral  SentimentLabel = "neutral"
	SentimentNegative SentimentLabel = "negative"
)

// Sentiment is an externally supplied tone classification with the
// classifier's confidence in [0,1].
type Sentiment struct {
	Label      SentimentLabel `json:"label"`
	Confidence float64        `json:"confidence"`
}

// Signed folds the label and confidence into the signed adjustment input
// Score expects: positive maps to +confidence, negative to -confidence,
// neutral or an unknown label to 0.
func (s Sentiment) Signed() float64 {
	switch s.Label {
	case SentimentPositive:
		return s.Confidence
	case SentimentNegative:
		return -s.Confidence
	default:
		return 0
	}
}

// SentimentProvider is the optional external classifier collaborator.
// Sentiment is best-effort: a classification error leaves scoring
// unadjusted rather than failing the analysis. The core never ships a
// model of its own; callers without a provider pass nil.
type SentimentProvider interface {
	Classify(ctx context.Context, text string) (Sentiment, error)
}

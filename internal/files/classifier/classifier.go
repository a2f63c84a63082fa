package classifier

import (
	"context"
	"errors"
	"strings"

	filesdomain "fileflow-backend/internal/files/domain"
	"fileflow-backend/pkg/ai"

	"github.com/rs/zerolog/log"
)

// MinConfidence is the lowest remote confidence accepted before falling back to rules.
const MinConfidence = 0.5

// Input is the text an attachment is classified by.
type Input struct {
	Filename string
	Subject  string
	Snippet  string
	From     string
}

func (in Input) text() string {
	return strings.ToLower(strings.Join([]string{in.Filename, in.Subject, in.Snippet, in.From}, " "))
}

// RemoteClassifier asks an AI provider for a category.
type RemoteClassifier interface {
	ClassifyAttachment(ctx context.Context, in Input) (filesdomain.Category, float64, error)
}

var keywords = map[filesdomain.Category][]string{
	filesdomain.CategoryFinance: {
		"invoice", "receipt", "payment", "bill", "statement", "tax", "bank", "refund",
		"quote", "salary", "payslip", "mpesa",
	},
	filesdomain.CategoryLegal: {
		"contract", "agreement", "nda", "legal", "terms", "court", "lawsuit", "affidavit",
		"license", "policy", "compliance",
	},
	filesdomain.CategoryWork: {
		"report", "meeting", "project", "proposal", "resume", "cv", "presentation", "agenda",
		"minutes", "timesheet", "offer",
	},
	filesdomain.CategoryPersonal: {
		"photo", "family", "trip", "ticket", "booking", "medical", "certificate", "passport",
		"birthday", "wedding",
	},
}

type Classifier struct {
	remote RemoteClassifier
}

// New builds a classifier. A nil remote classifies with keyword rules only.
func New(remote RemoteClassifier) *Classifier {
	return &Classifier{remote: remote}
}

func (c *Classifier) Classify(ctx context.Context, in Input) filesdomain.Category {
	if c.remote != nil {
		category, confidence, err := c.remote.ClassifyAttachment(ctx, in)
		switch {
		case errors.Is(err, ai.ErrNoProvider):
		case err != nil:
			log.Warn().Err(err).Str("filename", in.Filename).Msg("[Classifier] Remote classification failed, using rules")
		case confidence < MinConfidence:
			log.Debug().Float64("confidence", confidence).Str("filename", in.Filename).Msg("[Classifier] Low confidence, using rules")
		default:
			if parsed, ok := filesdomain.ParseCategory(string(category)); ok {
				return parsed
			}
		}
	}
	return ByRules(in)
}

// ByRules counts keyword occurrences per category and returns the highest non-zero
// score, ties going to the earlier category. Everything else is Personal.
func ByRules(in Input) filesdomain.Category {
	text := in.text()

	best := filesdomain.CategoryPersonal
	bestScore := 0
	for _, category := range filesdomain.Categories {
		score := 0
		for _, kw := range keywords[category] {
			score += strings.Count(text, kw)
		}
		if score > bestScore {
			best, bestScore = category, score
		}
	}
	return best
}

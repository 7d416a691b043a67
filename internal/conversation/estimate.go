package conversation

import (
	"fmt"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

const DefaultCharsPerToken = 4.0

// Estimator approximates the token cost of a piece of text.
type Estimator interface {
	Estimate(text string) float64
}

// CharEstimator divides the character count by a fixed ratio.
type CharEstimator struct {
	CharsPerToken float64
}

func (e CharEstimator) Estimate(text string) float64 {
	cpt := e.CharsPerToken
	if cpt <= 0 {
		cpt = DefaultCharsPerToken
	}
	return float64(utf8.RuneCountInString(text)) / cpt
}

// TiktokenEstimator counts BPE tokens with a tiktoken encoding.
type TiktokenEstimator struct {
	tkt *tiktoken.Tiktoken
}

// NewTiktokenEstimator loads the named encoding, e.g. "cl100k_base".
func NewTiktokenEstimator(encoding string) (*TiktokenEstimator, error) {
	tkt, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("get encoding failed, encoding=%v, err=%w", encoding, err)
	}
	return &TiktokenEstimator{tkt: tkt}, nil
}

func (e *TiktokenEstimator) Estimate(text string) float64 {
	return float64(len(e.tkt.Encode(text, nil, nil)))
}

package graph

import (
	"strings"
	"sync"

	gUtil "github.com/OFFIS-RIT/trailgraph/internal/util"

	"github.com/pkoukk/tiktoken-go"
)

var (
	encodersMu sync.Mutex
	encoders   = map[string]*tiktoken.Tiktoken{}
)

func getEncoder(name string) (*tiktoken.Tiktoken, error) {
	encodersMu.Lock()
	defer encodersMu.Unlock()
	if enc, ok := encoders[name]; ok {
		return enc, nil
	}
	enc, err := tiktoken.GetEncoding(name)
	if err != nil {
		return nil, err
	}
	encoders[name] = enc
	return enc, nil
}

// fitToTokenBudget returns the longest prefix of whole sentences of text that
// fits into maxTokens. A first sentence that alone exceeds the budget is cut
// at the token boundary.
func fitToTokenBudget(text string, encoder string, maxTokens int) (string, error) {
	enc, err := getEncoder(encoder)
	if err != nil {
		return "", err
	}

	if len(enc.Encode(text, nil, nil)) <= maxTokens {
		return text, nil
	}

	sentences := gUtil.SplitSentences(text)
	var kept []string
	used := 0
	for _, s := range sentences {
		tokens := len(enc.Encode(s, nil, nil)) + 1
		if used+tokens > maxTokens {
			break
		}
		kept = append(kept, s)
		used += tokens
	}
	if len(kept) > 0 {
		return strings.Join(kept, " "), nil
	}

	tokens := enc.Encode(text, nil, nil)
	return enc.Decode(tokens[:maxTokens]), nil
}

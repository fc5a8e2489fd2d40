package evidence

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/OFFIS-RIT/trailgraph/pkg/common"
)

const maxLineSize = 4 << 20

// DecodeJSONL reads evidence items from r. The input is either a JSON
// array or one JSON object per line; blank lines are skipped.
func DecodeJSONL(r io.Reader) ([]common.Evidence, error) {
	br := bufio.NewReader(r)
	first, err := peekNonSpace(br)
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if first == '[' {
		var items []common.Evidence
		if err := json.NewDecoder(br).Decode(&items); err != nil {
			return nil, fmt.Errorf("failed to decode evidence array: %w", err)
		}
		return items, nil
	}

	var items []common.Evidence
	scanner := bufio.NewScanner(br)
	scanner.Buffer(make([]byte, 0, 64<<10), maxLineSize)
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var ev common.Evidence
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, fmt.Errorf("failed to decode evidence on line %d: %w", line, err)
		}
		items = append(items, ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read evidence: %w", err)
	}
	return items, nil
}

func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		}
		return b, br.UnreadByte()
	}
}

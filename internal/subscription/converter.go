package subscription

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/multierr"

	"xray-profile/internal/xray"
)

// ErrUnreadableBody is returned when a document is neither share links nor base64 of them.
var ErrUnreadableBody = errors.New("subscription body is neither share links nor base64")

// Converter turns a share-link document into outbounds. Outbounds that
// converted are returned alongside the error describing the ones that did not.
type Converter interface {
	Convert(body []byte) ([]xray.Outbound, error)
}

// LinkConverter reads one share link per line. A body without any "://"
// is treated as base64 and decoded first.
type LinkConverter struct{}

func NewLinkConverter() Converter {
	return LinkConverter{}
}

func (LinkConverter) Convert(body []byte) ([]xray.Outbound, error) {
	text := strings.TrimSpace(string(body))
	if text != "" && !strings.Contains(text, "://") {
		decoded, err := decodeBase64(strings.Join(strings.Fields(text), ""))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrUnreadableBody, err)
		}
		text = string(decoded)
	}

	var (
		outbounds []xray.Outbound
		errs      error
	)
	for i, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out, err := ParseLink(line)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("line %d: %w", i+1, err))
			continue
		}
		outbounds = append(outbounds, out)
	}

	return uniqueTags(outbounds), errs
}

// uniqueTags suffixes repeated tags with -2, -3, ... in order of appearance.
func uniqueTags(outbounds []xray.Outbound) []xray.Outbound {
	seen := make(map[string]int, len(outbounds))
	for i := range outbounds {
		tag := outbounds[i].Tag
		seen[tag]++
		if n := seen[tag]; n > 1 {
			outbounds[i].Tag = fmt.Sprintf("%s-%d", tag, n)
		}
	}
	return outbounds
}

// FailedCount returns how many links an error from Convert describes.
func FailedCount(err error) int {
	return len(multierr.Errors(err))
}

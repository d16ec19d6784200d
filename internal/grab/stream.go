package grab

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// StreamRef is a parsed internal stream descriptor. Descriptors use a
// URI form: stream://<source>/<contentID>?season=1&seasonEnd=3 for a
// pack, or ?season=2&episode=5 for a single episode. A descriptor with
// no season at all references a movie.
type StreamRef struct {
	Source      string
	ContentID   string
	SeasonStart int
	SeasonEnd   int
	Episode     int
}

// IsPack reports whether the reference spans one or more whole seasons.
func (r *StreamRef) IsPack() bool {
	return r.SeasonStart > 0 && r.Episode == 0
}

// ParseStreamDescriptor recovers the canonical-content reference and
// optional season/episode span from a streaming result's descriptor.
func ParseStreamDescriptor(descriptor string) (*StreamRef, error) {
	u, err := url.Parse(descriptor)
	if err != nil {
		return nil, fmt.Errorf("invalid stream descriptor: %w", err)
	}
	if u.Scheme != "stream" {
		return nil, fmt.Errorf("invalid stream descriptor scheme %q", u.Scheme)
	}
	contentID := strings.Trim(u.Path, "/")
	if u.Host == "" || contentID == "" {
		return nil, fmt.Errorf("stream descriptor missing source or content id")
	}

	ref := &StreamRef{Source: u.Host, ContentID: contentID}
	q := u.Query()
	if ref.SeasonStart, err = queryInt(q, "season"); err != nil {
		return nil, err
	}
	if ref.SeasonEnd, err = queryInt(q, "seasonEnd"); err != nil {
		return nil, err
	}
	if ref.Episode, err = queryInt(q, "episode"); err != nil {
		return nil, err
	}

	if ref.SeasonEnd != 0 && ref.SeasonEnd < ref.SeasonStart {
		return nil, fmt.Errorf("stream descriptor season range %d-%d is inverted", ref.SeasonStart, ref.SeasonEnd)
	}
	if ref.Episode != 0 && ref.SeasonStart == 0 {
		return nil, fmt.Errorf("stream descriptor has an episode but no season")
	}
	if ref.SeasonEnd == 0 {
		ref.SeasonEnd = ref.SeasonStart
	}
	return ref, nil
}

func queryInt(q url.Values, key string) (int, error) {
	raw := q.Get(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("stream descriptor %s=%q is not a valid number", key, raw)
	}
	return n, nil
}

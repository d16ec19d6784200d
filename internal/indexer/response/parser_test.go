package response

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keonramses/Cinephage-sub002/internal/indexer"
	"github.com/keonramses/Cinephage-sub002/internal/indexer/definition"
	"github.com/keonramses/Cinephage-sub002/internal/testutil"
)

const htmlDefYAML = `
id: htmlindex
name: HTML Index
links: [https://example.org]
caps:
  categorymappings:
    - {id: "41", cat: TV/HD}
  modes:
    search: [q]
search:
  paths:
    - path: /search
  rows:
    selector: table.results > tbody > tr
    after: 1
  fields:
    title:
      selector: td.name a
    download:
      selector: td.name a
      attribute: href
    size:
      selector: td.size
    seeders:
      selector: td.seeds
    leechers:
      selector: td.peers
    category:
      selector: td.cat
      attribute: data-id
  error:
    - selector: div.error
      message:
        selector: div.error
`

const htmlBody = `
<html><body>
<table class="results"><tbody>
<tr><th>Name</th><th>Size</th></tr>
<tr>
  <td class="name"><a href="/dl/1.torrent">Show.Name.S01.1080p.BluRay.x265-GRP</a></td>
  <td class="size">1.5 GB</td>
  <td class="seeds">500</td>
  <td class="peers">20</td>
  <td class="cat" data-id="41">TV HD</td>
</tr>
<tr>
  <td class="name"><a href="/dl/2.torrent">Other.Show.S02E03.720p.WEB-DL</a></td>
  <td class="size">700 MB</td>
  <td class="seeds">12</td>
  <td class="peers">3</td>
  <td class="cat" data-id="41">TV HD</td>
</tr>
</tbody></table>
</body></html>
`

func htmlParser(t *testing.T) *Parser {
	t.Helper()
	def, err := definition.Parse([]byte(htmlDefYAML))
	require.NoError(t, err)
	tr := indexer.NewTranslator(def.Capabilities().Categories)
	return NewParser(def, tr, testutil.NopLogger())
}

func TestParseHTMLResponse(t *testing.T) {
	p := htmlParser(t)

	results, err := p.Parse([]byte(htmlBody), nil, definition.NewTemplateContext())
	require.NoError(t, err)
	require.Len(t, results, 2)

	first := results[0]
	assert.Equal(t, "Show.Name.S01.1080p.BluRay.x265-GRP", first.Title)
	assert.Equal(t, "https://example.org/dl/1.torrent", first.DownloadURL)
	assert.Equal(t, int64(1610612736), first.Size)
	assert.Equal(t, 500, first.Seeders)
	assert.Equal(t, 20, first.Leechers)
	assert.Equal(t, []int{indexer.CategoryTVHD}, first.Categories)
	assert.Equal(t, first.DownloadURL, first.GUID)
}

func TestParseHTMLErrorSelector(t *testing.T) {
	p := htmlParser(t)

	body := `<html><body><div class="error">rate limited</div></body></html>`
	_, err := p.Parse([]byte(body), nil, definition.NewTemplateContext())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
}

func TestParseHTMLNoRows(t *testing.T) {
	p := htmlParser(t)

	results, err := p.Parse([]byte("<html><body></body></html>"), nil, definition.NewTemplateContext())
	require.NoError(t, err)
	assert.Empty(t, results)
}

const jsonDefYAML = `
id: jsonindex
name: JSON Index
links: [https://example.org]
caps:
  categorymappings:
    - {id: "tv_hd", cat: TV/HD}
  modes:
    search: [q]
search:
  paths:
    - path: /api
      response:
        type: json
  rows:
    selector: data.torrents
  fields:
    title:
      selector: name
    download:
      selector: download_url
    size:
      selector: size_bytes
    seeders:
      selector: seeders
    infohash:
      selector: info_hash
      optional: true
    category:
      selector: category
`

func TestParseJSONResponse(t *testing.T) {
	def, err := definition.Parse([]byte(jsonDefYAML))
	require.NoError(t, err)
	tr := indexer.NewTranslator(def.Capabilities().Categories)
	p := NewParser(def, tr, testutil.NopLogger())

	body := `{
		"data": {
			"torrents": [
				{
					"name": "Show.S01E01.1080p.WEB-DL",
					"download_url": "https://example.org/dl/9",
					"size_bytes": 1234567,
					"seeders": 42,
					"info_hash": "abc123",
					"category": "tv_hd"
				},
				{
					"name": "",
					"download_url": "https://example.org/dl/10"
				}
			]
		}
	}`

	results, err := p.Parse([]byte(body), &def.Search.Paths[0], definition.NewTemplateContext())
	require.NoError(t, err)
	// The row missing a title is skipped, not fatal.
	require.Len(t, results, 1)

	r := results[0]
	assert.Equal(t, "Show.S01E01.1080p.WEB-DL", r.Title)
	assert.Equal(t, int64(1234567), r.Size)
	assert.Equal(t, 42, r.Seeders)
	assert.Equal(t, "abc123", r.InfoHash)
	assert.Equal(t, []int{indexer.CategoryTVHD}, r.Categories)
}

func TestJSONSelectorPaths(t *testing.T) {
	sel, err := NewJSONSelector([]byte(`{"a": {"b": [{"c": "x"}, {"c": "y"}]}}`))
	require.NoError(t, err)

	v, err := sel.SelectString("a.b[1].c")
	require.NoError(t, err)
	assert.Equal(t, "y", v)

	_, err = sel.Select("a.missing")
	assert.Error(t, err)

	arr, err := sel.SelectArray("a.b")
	require.NoError(t, err)
	assert.Len(t, arr, 2)
}

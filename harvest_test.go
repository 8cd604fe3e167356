package paperscraper

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const oaiPreamble = `<?xml version="1.0" encoding="UTF-8"?>
<OAI-PMH xmlns="http://www.openarchives.org/OAI/2.0/">
<responseDate>2024-01-05T00:00:00Z</responseDate>
<request verb="ListRecords">http://export.arxiv.org/oai2</request>
`

func oaiRecordXML(id, title, categories string) string {
	return fmt.Sprintf(`<record>
<header><identifier>oai:arXiv.org:%[1]s</identifier><datestamp>2024-01-02</datestamp><setSpec>cs</setSpec></header>
<metadata>
<arXiv xmlns="http://arxiv.org/OAI/arXiv/">
<id>%[1]s</id><created>2024-01-01</created>
<authors><author><keyname>Doe</keyname><forenames>Jane</forenames></author><author><keyname>Roe</keyname><forenames>R.</forenames><suffix>Jr</suffix></author></authors>
<title>%[2]s</title>
<categories>%[3]s</categories>
<abstract>  An abstract
  over two lines. </abstract>
</arXiv>
</metadata>
</record>
`, id, title, categories)
}

func oaiPageXML(token string, ids ...string) string {
	var b strings.Builder
	b.WriteString(oaiPreamble)
	b.WriteString("<ListRecords>\n")
	for _, id := range ids {
		b.WriteString(oaiRecordXML(id, "Paper "+id, "cs.CL"))
	}
	fmt.Fprintf(&b, `<resumptionToken cursor="0" completeListSize="6">%s</resumptionToken>`, token)
	b.WriteString("\n</ListRecords>\n</OAI-PMH>\n")
	return b.String()
}

// oaiServer serves pages keyed by resumption token; "" is the first page.
type oaiServer struct {
	mu       sync.Mutex
	pages    map[string]string
	requests []string
}

func (s *oaiServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("resumptionToken")
	s.mu.Lock()
	s.requests = append(s.requests, token)
	s.mu.Unlock()
	body, ok := s.pages[token]
	if !ok {
		http.Error(w, "unknown token", http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "text/xml")
	fmt.Fprint(w, body)
}

func newTestHarvester(t *testing.T, pages map[string]string, opts HarvestOptions) (*Harvester, *oaiServer) {
	t.Helper()
	h := &oaiServer{pages: pages}
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	f, _ := newTestFetcher(FetcherOptions{MaxAttempts: 2})
	return NewHarvester(NewOAIClient(f, srv.URL), opts), h
}

func recordIDs(records []Record) []string {
	var ids []string
	for _, r := range records {
		ids = append(ids, r.ID)
	}
	return ids
}

func TestHarvestFollowsResumptionTokens(t *testing.T) {
	pages := map[string]string{
		"":   oaiPageXML("T1", "2401.00001", "2401.00002"),
		"T1": oaiPageXML("T2", "2401.00003"),
		"T2": oaiPageXML("T3", "2401.00004", "2401.00005"),
		"T3": oaiPageXML("", "2401.00006"),
	}
	var progress []int
	h, srv := newTestHarvester(t, pages, HarvestOptions{
		Set:      "cs",
		Progress: func(fetched, total int) { progress = append(progress, fetched) },
	})

	records, err := h.Harvest(context.Background(), mustRange(t, "2024-01-01", "2024-01-05"))
	require.NoError(t, err)
	assert.Equal(t, []string{"", "T1", "T2", "T3"}, srv.requests)
	assert.Equal(t, []string{"2401.00001", "2401.00002", "2401.00003", "2401.00004", "2401.00005", "2401.00006"}, recordIDs(records))
	assert.Equal(t, []int{2, 3, 5, 6}, progress)
}

func TestHarvestFilter(t *testing.T) {
	page := oaiPreamble + "<ListRecords>\n" +
		oaiRecordXML("2401.00001", "Parsing German", "cs.CL") +
		oaiRecordXML("2401.00002", "Robot arms", "cs.RO") +
		"<resumptionToken/></ListRecords></OAI-PMH>"
	h, _ := newTestHarvester(t, map[string]string{"": page}, HarvestOptions{
		Set:    "cs",
		Filter: RecordFilter{"categories": {"CS.CL"}},
	})

	records, err := h.Harvest(context.Background(), mustRange(t, "2024-01-01", "2024-01-05"))
	require.NoError(t, err)
	assert.Equal(t, []string{"2401.00001"}, recordIDs(records))
}

func TestHarvestMalformedKeepsPartialRecords(t *testing.T) {
	pages := map[string]string{
		"":   oaiPageXML("T1", "2401.00001", "2401.00002"),
		"T1": oaiPreamble + "<GetRecord/></OAI-PMH>",
	}
	core, logs := observer.New(zapcore.InfoLevel)
	h, srv := newTestHarvester(t, pages, HarvestOptions{Set: "cs", Logger: zap.New(core)})

	records, err := h.Harvest(context.Background(), mustRange(t, "2024-01-01", "2024-01-05"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformedListing))
	assert.Equal(t, []string{"2401.00001", "2401.00002"}, recordIDs(records))
	assert.Len(t, srv.requests, 2)
	assert.Equal(t, 1, logs.FilterLevelExact(zapcore.ErrorLevel).Len())
}

func TestHarvestNoRecordsMatch(t *testing.T) {
	page := oaiPreamble + `<error code="noRecordsMatch">No records</error></OAI-PMH>`
	h, _ := newTestHarvester(t, map[string]string{"": page}, HarvestOptions{Set: "cs"})

	records, err := h.Records(context.Background(), mustRange(t, "2024-01-01", "2024-01-05"))
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestListRecordsURL(t *testing.T) {
	c := NewOAIClient(NewFetcher(FetcherOptions{}), "")
	r := mustRange(t, "2024-01-01", "2024-01-10")

	first := c.ListRecordsURL("physics:cond-mat", r, "")
	assert.True(t, strings.HasPrefix(first, DefaultOAIBaseURL+"?"))
	assert.Contains(t, first, "verb=ListRecords")
	assert.Contains(t, first, "metadataPrefix=arXiv")
	assert.Contains(t, first, "set=physics%3Acond-mat")
	assert.Contains(t, first, "from=2024-01-01")
	assert.Contains(t, first, "until=2024-01-10")

	next := c.ListRecordsURL("physics:cond-mat", r, "abc|1001")
	assert.Contains(t, next, "resumptionToken=abc%7C1001")
	assert.NotContains(t, next, "metadataPrefix")
	assert.NotContains(t, next, "from=")
}

func TestParseListRecords(t *testing.T) {
	page, err := ParseListRecords([]byte(oaiPageXML(" T9 ", "2401.00001")))
	require.NoError(t, err)
	assert.Equal(t, "T9", page.ResumptionToken)
	assert.Equal(t, 6, page.CompleteListSize)
	require.Len(t, page.Records, 1)

	rec := page.Records[0]
	assert.Equal(t, "2401.00001", rec.ID)
	assert.Equal(t, "https://arxiv.org/abs/2401.00001", rec.URL)
	assert.Equal(t, "An abstract over two lines.", rec.Abstract)
	assert.Equal(t, []string{"Jane Doe", "R. Roe Jr"}, rec.Authors)
	assert.Equal(t, "Jane Doe, R. Roe Jr", rec.Field("authors"))
	assert.Equal(t, "cs.CL", rec.Field("subcats"))

	_, err = ParseListRecords([]byte("<not xml"))
	assert.ErrorIs(t, err, ErrMalformedListing)

	_, err = ParseListRecords([]byte(oaiPreamble + `<error code="badArgument">bad</error></OAI-PMH>`))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrMalformedListing)
}

func TestParseListRecordsSkipsDeleted(t *testing.T) {
	body := oaiPreamble + `<ListRecords>
<record><header status="deleted"><identifier>oai:arXiv.org:2401.00009</identifier></header></record>
` + oaiRecordXML("2401.00001", "Kept", "cs.CL") + `</ListRecords></OAI-PMH>`
	page, err := ParseListRecords([]byte(body))
	require.NoError(t, err)
	assert.Equal(t, []string{"2401.00001"}, recordIDs(page.Records))
	assert.Empty(t, page.ResumptionToken)
}

func TestParseRecordNeverFails(t *testing.T) {
	rec := ParseRecord([]byte("garbage"))
	assert.Equal(t, Record{}, rec)
}

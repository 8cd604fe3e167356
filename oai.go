package paperscraper

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// DefaultOAIBaseURL is the arXiv OAI-PMH endpoint.
const DefaultOAIBaseURL = "https://export.arxiv.org/oai2"

// ErrMalformedListing is returned when a harvest response lacks the
// ListRecords container or is not parseable OAI-PMH XML.
var ErrMalformedListing = errors.New("malformed OAI-PMH listing")

// OAIClient is an OAI-PMH client for arXiv.
type OAIClient struct {
	fetcher        *Fetcher
	baseURL        string
	metadataPrefix string
}

// NewOAIClient creates a new OAI-PMH client. An empty baseURL selects the arXiv endpoint.
func NewOAIClient(fetcher *Fetcher, baseURL string) *OAIClient {
	if baseURL == "" {
		baseURL = DefaultOAIBaseURL
	}
	return &OAIClient{
		fetcher:        fetcher,
		baseURL:        baseURL,
		metadataPrefix: "arXiv",
	}
}

// ListRecordsURL builds the request URL for one page.
// If resumptionToken is empty, the first page for set and r is requested.
// If resumptionToken is non-empty, only the token is sent.
func (c *OAIClient) ListRecordsURL(set string, r DateRange, resumptionToken string) string {
	params := url.Values{}
	params.Set("verb", "ListRecords")

	if resumptionToken != "" {
		params.Set("resumptionToken", resumptionToken)
	} else {
		params.Set("metadataPrefix", c.metadataPrefix)
		if set != "" {
			params.Set("set", set)
		}
		if !r.From.IsZero() {
			params.Set("from", r.From.Format(DateLayout))
		}
		if !r.Until.IsZero() {
			params.Set("until", r.Until.Format(DateLayout))
		}
	}
	return c.baseURL + "?" + params.Encode()
}

// ListRecords fetches one page of records.
func (c *OAIClient) ListRecords(ctx context.Context, set string, r DateRange, resumptionToken string) (*OAIPage, error) {
	resp, err := c.fetcher.Get(ctx, c.ListRecordsURL(set, r, resumptionToken))
	if err != nil {
		return nil, err
	}
	return ParseListRecords(resp.Body)
}

// OAIPage contains the parsed response from an OAI-PMH ListRecords request.
type OAIPage struct {
	Records          []Record
	ResumptionToken  string
	CompleteListSize int
	Cursor           int
}

// ParseListRecords parses a ListRecords response body. A noRecordsMatch
// error is an empty page; a body without a ListRecords container is
// ErrMalformedListing.
func ParseListRecords(body []byte) (*OAIPage, error) {
	var resp oaiPMHResponse
	if err := xml.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: parse xml: %v", ErrMalformedListing, err)
	}

	switch resp.Error.Code {
	case "":
	case "noRecordsMatch":
		return &OAIPage{}, nil
	default:
		return nil, fmt.Errorf("oai error %s: %s", resp.Error.Code, strings.TrimSpace(resp.Error.Value))
	}

	if resp.ListRecords == nil {
		return nil, fmt.Errorf("%w: no ListRecords element", ErrMalformedListing)
	}

	page := &OAIPage{
		ResumptionToken:  strings.TrimSpace(resp.ListRecords.ResumptionToken.Value),
		CompleteListSize: resp.ListRecords.ResumptionToken.CompleteListSize,
		Cursor:           resp.ListRecords.ResumptionToken.Cursor,
	}
	for _, rec := range resp.ListRecords.Records {
		if rec.Header.Status == "deleted" {
			continue
		}
		page.Records = append(page.Records, recordFromArXiv(rec.Metadata.ArXiv))
	}
	return page, nil
}

// ParseRecord maps one raw <arXiv> metadata element to a Record. Fields that
// cannot be read are left empty; ParseRecord never fails.
func ParseRecord(raw []byte) Record {
	var a oaiArXiv
	_ = xml.Unmarshal(raw, &a)
	return recordFromArXiv(a)
}

func recordFromArXiv(a oaiArXiv) Record {
	id := normalizeSpace(a.ID)
	r := Record{
		ID:         id,
		Title:      normalizeSpace(a.Title),
		Abstract:   normalizeSpace(a.Abstract),
		Categories: normalizeSpace(a.Categories),
		DOI:        normalizeSpace(a.DOI),
		Created:    normalizeSpace(a.Created),
		Updated:    normalizeSpace(a.Updated),
		Authors:    formatAuthors(a.Authors),
	}
	if id != "" {
		r.URL = AbstractURL(id)
	}
	return r
}

func formatAuthors(authors []oaiAuthor) []string {
	var names []string
	for _, a := range authors {
		name := normalizeSpace(a.Forenames + " " + a.Keyname)
		if a.Suffix != "" {
			name += " " + normalizeSpace(a.Suffix)
		}
		if name != "" {
			names = append(names, name)
		}
	}
	return names
}

// normalizeSpace trims s and collapses internal whitespace to single spaces.
func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// XML structures for OAI-PMH parsing

type oaiPMHResponse struct {
	XMLName     xml.Name        `xml:"OAI-PMH"`
	Error       oaiError        `xml:"error"`
	ListRecords *oaiListRecords `xml:"ListRecords"`
}

type oaiError struct {
	Code  string `xml:"code,attr"`
	Value string `xml:",chardata"`
}

type oaiListRecords struct {
	Records         []oaiRecord        `xml:"record"`
	ResumptionToken oaiResumptionToken `xml:"resumptionToken"`
}

type oaiResumptionToken struct {
	Value            string `xml:",chardata"`
	CompleteListSize int    `xml:"completeListSize,attr"`
	Cursor           int    `xml:"cursor,attr"`
}

type oaiRecord struct {
	Header   oaiHeader   `xml:"header"`
	Metadata oaiMetadata `xml:"metadata"`
}

type oaiHeader struct {
	Status     string   `xml:"status,attr"`
	Identifier string   `xml:"identifier"`
	Datestamp  string   `xml:"datestamp"`
	SetSpec    []string `xml:"setSpec"`
}

type oaiMetadata struct {
	ArXiv oaiArXiv `xml:"arXiv"`
}

type oaiArXiv struct {
	ID         string      `xml:"id"`
	Created    string      `xml:"created"`
	Updated    string      `xml:"updated"`
	Title      string      `xml:"title"`
	Authors    []oaiAuthor `xml:"authors>author"`
	Categories string      `xml:"categories"`
	DOI        string      `xml:"doi"`
	Abstract   string      `xml:"abstract"`
}

type oaiAuthor struct {
	Keyname   string `xml:"keyname"`
	Forenames string `xml:"forenames"`
	Suffix    string `xml:"suffix"`
}

package paperscraper

import (
	"strings"
)

// Record is the metadata of one arXiv paper as returned by the harvest endpoint.
type Record struct {
	// ID is the arXiv identifier (e.g., "2301.00001" or "hep-th/9901001")
	ID string `json:"id"`

	// URL is the abstract page of the paper
	URL string `json:"url"`

	// Title of the paper
	Title string `json:"title"`

	// Abstract of the paper
	Abstract string `json:"abstract"`

	// Categories is a space-separated list of arXiv categories
	Categories string `json:"categories"`

	// DOI is the Digital Object Identifier if available
	DOI string `json:"doi"`

	// Created is the first submission date (YYYY-MM-DD)
	Created string `json:"created"`

	// Updated is the last update date (YYYY-MM-DD), empty if never updated
	Updated string `json:"updated"`

	// Authors in listing order
	Authors []string `json:"authors"`
}

// Field returns the text of the named field for keyword filtering.
// Unknown names yield "".
func (r *Record) Field(name string) string {
	switch strings.ToLower(name) {
	case "id":
		return r.ID
	case "url":
		return r.URL
	case "title":
		return r.Title
	case "abstract":
		return r.Abstract
	case "categories", "subcats":
		return r.Categories
	case "doi":
		return r.DOI
	case "created":
		return r.Created
	case "updated":
		return r.Updated
	case "author", "authors":
		return strings.Join(r.Authors, ", ")
	}
	return ""
}

// CategoryList returns all categories as a slice.
func (r *Record) CategoryList() []string {
	return strings.Fields(r.Categories)
}

// AbstractURL returns the arXiv abstract page URL.
func AbstractURL(id string) string {
	return "https://arxiv.org/abs/" + id
}

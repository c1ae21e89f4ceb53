// Package model holds the scan records shared by the scanner, the report
// store and the API.
package model

import (
	"sort"
	"strings"
	"time"
)

// CheckError records a video whose metadata could not be fetched.
type CheckError struct {
	VideoID string `json:"video_id"`
	Error   string `json:"error"`
}

// Report is the outcome of one full scan.
type Report struct {
	// ID is a uuid assigned when the scan starts.
	ID string `json:"id"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	ElapsedMS  int64     `json:"elapsed_ms"`

	// Filter is the listing filter the scan ran with, JSON encoded.
	Filter string `json:"filter,omitempty"`

	// Total is the number of distinct videos discovered by the listing.
	Total   int `json:"total"`
	Deleted int `json:"deleted"`

	// Defects holds the defective video ids, sorted, without duplicates.
	Defects []string     `json:"defects"`
	Errors  []CheckError `json:"errors,omitempty"`
}

// DefectList joins the defects with commas.
func (r *Report) DefectList() string {
	if r == nil {
		return ""
	}
	return strings.Join(r.Defects, ",")
}

// NormalizeDefects sorts the defect list and drops duplicates.
func (r *Report) NormalizeDefects() {
	if r == nil {
		return
	}
	sort.Strings(r.Defects)
	out := r.Defects[:0]
	for i, id := range r.Defects {
		if i > 0 && id == r.Defects[i-1] {
			continue
		}
		out = append(out, id)
	}
	r.Defects = out
	if r.Defects == nil {
		r.Defects = []string{}
	}
}

// ReportSummary is a Report without its id lists.
type ReportSummary struct {
	ID          string    `json:"id"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
	ElapsedMS   int64     `json:"elapsed_ms"`
	Total       int       `json:"total"`
	Deleted     int       `json:"deleted"`
	DefectCount int       `json:"defect_count"`
	ErrorCount  int       `json:"error_count"`
}

// ReportDiff compares the defect sets of two reports.
type ReportDiff struct {
	BaseID string `json:"base_id"`
	HeadID string `json:"head_id"`

	// Added are defects present in head only. Removed were fixed since base.
	Added   []string `json:"added"`
	Removed []string `json:"removed"`

	// Unified is a line diff of the two defect lists with +/- prefixes.
	Unified string `json:"unified"`
}

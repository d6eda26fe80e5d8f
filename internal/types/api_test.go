//nolint:revive // types is a standard Go package name pattern
package types

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

const testCVKey = "3a7bd3e2360a3d29"

func TestCrawlRequest_Validate(t *testing.T) {
	valid := func() CrawlRequest {
		return CrawlRequest{
			SearchTerm: "golang",
			CVKey:      testCVKey,
			SourceURL:  "https://www.stepstone.de/jobs/golang",
		}
	}

	tests := []struct {
		name    string
		mutate  func(*CrawlRequest)
		wantErr string
	}{
		{name: "valid", mutate: func(*CrawlRequest) {}},
		{name: "with page budget", mutate: func(r *CrawlRequest) { r.MaxPages = 5 }},
		{name: "missing search term", mutate: func(r *CrawlRequest) { r.SearchTerm = "" }, wantErr: "SearchTerm"},
		{name: "short cv key", mutate: func(r *CrawlRequest) { r.CVKey = "abc" }, wantErr: "CVKey"},
		{name: "non hex cv key", mutate: func(r *CrawlRequest) { r.CVKey = strings.Repeat("z", 16) }, wantErr: "CVKey"},
		{name: "relative source", mutate: func(r *CrawlRequest) { r.SourceURL = "/jobs/golang" }, wantErr: "SourceURL"},
		{name: "negative pages", mutate: func(r *CrawlRequest) { r.MaxPages = -1 }, wantErr: "MaxPages"},
		{name: "too many pages", mutate: func(r *CrawlRequest) { r.MaxPages = 101 }, wantErr: "MaxPages"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid()
			tt.mutate(&req)
			err := req.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			if assert.Error(t, err) {
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestMatchIDsRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		ids     []string
		wantErr bool
	}{
		{"one id", []string{"7c9e6679-7425-40de-944b-e07fc1f90ae7"}, false},
		{"empty", nil, true},
		{"not a uuid", []string{"42"}, true},
		{"one bad among good", []string{"7c9e6679-7425-40de-944b-e07fc1f90ae7", "x"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := MatchIDsRequest{JobMatchIDs: tt.ids}
			err := req.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestMatchIDsRequest_SkipDuplicatesOrDefault(t *testing.T) {
	off := false
	assert.True(t, (&MatchIDsRequest{}).SkipDuplicatesOrDefault())
	assert.False(t, (&MatchIDsRequest{SkipDuplicates: &off}).SkipDuplicatesOrDefault())
}

func TestStatusAndNoteRequests_Validate(t *testing.T) {
	assert.NoError(t, (&StatusRequest{Status: "APPLIED"}).Validate())
	assert.Error(t, (&StatusRequest{}).Validate())

	long := strings.Repeat("x", 4001)
	assert.Error(t, (&StatusRequest{Status: "APPLIED", Notes: &long}).Validate())

	assert.NoError(t, (&NoteRequest{Note: "called back"}).Validate())
	assert.Error(t, (&NoteRequest{}).Validate())
}

func TestEmailCheckRequest_Validate(t *testing.T) {
	assert.NoError(t, (&EmailCheckRequest{Emails: []string{"jobs@example.com"}}).Validate())
	assert.Error(t, (&EmailCheckRequest{}).Validate())
}

package query

import "github.com/example/title-ratings/services/catalog/internal/store"

// Page is one slice of a ranked result.
type Page struct {
	Items       []store.ContentRecord `json:"items"`
	CurrentPage int                   `json:"current_page"`
	TotalPages  int                   `json:"total_pages"`
	TotalCount  int                   `json:"total_count"`
}

// AppendPage is the load-more view of a Page.
type AppendPage struct {
	Items    []store.ContentRecord `json:"items"`
	NextPage int                   `json:"next_page,omitempty"`
	HasMore  bool                  `json:"has_more"`
}

// Paginate returns the 1-based page of ranked. A page past the end is empty,
// not an error. A size below 1 is treated as 1.
func Paginate(ranked []store.ContentRecord, page, size int) Page {
	if page < 1 {
		page = 1
	}
	size = max(size, 1)
	total := len(ranked)
	p := Page{
		Items:       []store.ContentRecord{},
		CurrentPage: page,
		TotalCount:  total,
	}
	if total > 0 {
		p.TotalPages = (total-1)/size + 1
	}
	// Compare by division so huge page numbers cannot overflow the offset.
	if total == 0 || page-1 > (total-1)/size {
		return p
	}
	start := (page - 1) * size
	end := min(start+size, total)
	p.Items = ranked[start:end]
	return p
}

// Append converts p into the incremental continuation shape.
func (p Page) Append() AppendPage {
	a := AppendPage{Items: p.Items, HasMore: p.CurrentPage < p.TotalPages}
	if a.HasMore {
		a.NextPage = p.CurrentPage + 1
	}
	return a
}

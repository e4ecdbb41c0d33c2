package query

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/example/title-ratings/services/catalog/internal/store"
)

// Request is one catalog query as received from a transport.
type Request struct {
	FreeText    string     `json:"q" validate:"max=200"`
	Kind        store.Kind `json:"kind" validate:"omitempty,oneof=Movie TVShow KidsContent"`
	Genre       int        `json:"genre" validate:"gte=0"`
	Category    string     `json:"category" validate:"max=100"`
	MinRating   *float64   `json:"min_rating" validate:"omitempty,gte=0,lte=10"`
	MaxRating   *float64   `json:"max_rating" validate:"omitempty,gte=0,lte=10"`
	FlaggedOnly bool       `json:"flagged"`
	Sort        Policy     `json:"sort" validate:"omitempty,oneof=byRating byPopularity byRecency byTitle byNegativeFlags"`
	Page        int        `json:"page"`
	PageSize    int        `json:"page_size" validate:"gte=0"`

	// LocalOnly skips external synchronization.
	LocalOnly bool `json:"-"`
}

// Filter is the store predicate this request selects.
func (r Request) Filter() store.Filter {
	return store.Filter{
		Kind:        r.Kind,
		FreeText:    strings.TrimSpace(r.FreeText),
		Genre:       r.Genre,
		Category:    strings.TrimSpace(r.Category),
		MinRating:   r.MinRating,
		MaxRating:   r.MaxRating,
		FlaggedOnly: r.FlaggedOnly,
	}
}

// FieldError is one rejected request field.
type FieldError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Message string `json:"message"`
}

// ValidationError is the only error Find returns for a well-formed call.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	msgs := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		msgs = append(msgs, f.Field+": "+f.Message)
	}
	return strings.Join(msgs, "; ")
}

func (e *ValidationError) add(field, tag, msg string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Tag: tag, Message: msg})
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// MaxPage caps requested page numbers. Any page this deep is already past
// the end of every result set.
const MaxPage = 1_000_000

// normalize applies defaults and checks every field. Page numbers are clamped
// to 1..MaxPage; a zero page size becomes defaultSize.
func (r Request) normalize(defaultSize, maxSize int) (Request, error) {
	r.FreeText = strings.TrimSpace(r.FreeText)
	r.Category = strings.TrimSpace(r.Category)
	if r.Kind != "" {
		if k, err := store.ParseKind(string(r.Kind)); err == nil {
			r.Kind = k
		}
	}
	if r.Sort == "" {
		r.Sort = ByRating
	} else if p, ok := ParsePolicy(string(r.Sort)); ok {
		r.Sort = p
	}

	verr := &ValidationError{}
	if err := getValidator().Struct(r); err != nil {
		var ves validator.ValidationErrors
		if !errors.As(err, &ves) {
			return Request{}, err
		}
		for _, fe := range ves {
			verr.add(fe.Field(), fe.Tag(), fieldMessage(fe))
		}
	}
	if r.MinRating != nil && r.MaxRating != nil && *r.MinRating > *r.MaxRating {
		verr.add("min_rating", "ltefield", "must not exceed max_rating")
	}
	if maxSize > 0 && r.PageSize > maxSize {
		verr.add("page_size", "lte", fmt.Sprintf("must be at most %d", maxSize))
	}
	if len(verr.Fields) > 0 {
		return Request{}, verr
	}

	r.Page = min(max(r.Page, 1), MaxPage)
	if r.PageSize == 0 {
		r.PageSize = defaultSize
	}
	return r, nil
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "gte":
		return "must be at least " + fe.Param()
	case "lte":
		return "must be at most " + fe.Param()
	case "max":
		return "must be at most " + fe.Param() + " characters"
	default:
		return "failed " + fe.Tag() + " validation"
	}
}

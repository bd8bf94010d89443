package resource

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/collegium/core"
)

// Categories lists the resource categories users can pick from.
var Categories = []string{
	"Computer Science",
	"Chemistry",
	"Mathematics",
	"Psychology",
	"Biology",
	"Engineering",
	"Literature",
	"Economics",
	"Physics",
}

type Resource struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	FileURL       string    `json:"fileUrl"`
	FileType      string    `json:"fileType"`
	Category      string    `json:"category"`
	UploadedBy    string    `json:"uploadedBy"` // user id
	UploadedAt    time.Time `json:"uploadedAt"`
	DownloadCount int       `json:"downloadCount"`
	Rating        float64   `json:"rating"`
	Tags          []string  `json:"tags"`
}

func (r Resource) HasTag(tag string) bool {
	for _, t := range r.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// NewResource contains information needed to share a new Resource.
type NewResource struct {
	Title       string   `json:"title" validate:"notblank,max=200"`
	Description string   `json:"description" validate:"notblank"`
	FileURL     string   `json:"fileUrl" validate:"required,url"`
	FileType    string   `json:"fileType" validate:"omitempty,alphanum,max=10"`
	Category    string   `json:"category" validate:"required,resourcecategory"`
	UploadedBy  string   `json:"uploadedBy" validate:"required"`
	Tags        []string `json:"tags" validate:"omitempty,max=20,dive,notblank"`
}

func (nr *NewResource) Validate(validate *validator.Validate) error {
	nr.Title = core.CleanString(nr.Title)
	nr.Description = core.CleanString(nr.Description)
	nr.FileURL = core.CleanString(nr.FileURL)
	nr.FileType = core.CleanString(nr.FileType, true /* lower */)
	nr.UploadedBy = core.CleanString(nr.UploadedBy)
	if nr.FileType == "" {
		nr.FileType = fileTypeOf(nr.FileURL)
	}
	for i, tag := range nr.Tags {
		nr.Tags[i] = core.CleanString(tag, true /* lower */)
	}
	return validate.Struct(nr)
}

// fileTypeOf guesses the file type from the extension of a file url.
func fileTypeOf(fileURL string) string {
	if i := strings.IndexAny(fileURL, "?#"); i >= 0 {
		fileURL = fileURL[:i]
	}
	slash := strings.LastIndex(fileURL, "/")
	dot := strings.LastIndex(fileURL, ".")
	if dot <= slash+1 || dot == len(fileURL)-1 {
		return ""
	}
	return strings.ToLower(fileURL[dot+1:])
}

type Rating struct {
	Rating float64 `json:"rating" validate:"gte=0,lte=5"`
}

type QueryFilter struct {
	Category string `query:"category"` // "" or "all" match every category
	Tag      string `query:"tag"`
	Search   string `query:"search"`
}

func (qf *QueryFilter) Clean() {
	qf.Category = core.CleanString(qf.Category)
	if strings.EqualFold(qf.Category, "all") {
		qf.Category = ""
	}
	qf.Tag = core.CleanString(qf.Tag, true /* lower */)
	qf.Search = core.CleanString(qf.Search, true /* lower */)
}

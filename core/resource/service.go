package resource

import (
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/pmezard/go-difflib/difflib"

	"github.com/trezcool/collegium/core/localstore"
)

var ErrNotFound = errors.New("resource not found")

// minSimilarity is the lowest title similarity a search result may have when the search text is not found verbatim.
const minSimilarity = .6

type Service struct {
	resources *localstore.Typed[Resource]
	validate  *validator.Validate
	newID     func() string
	now       func() time.Time
}

func NewService(store *localstore.Store, validate *validator.Validate) *Service {
	return &Service{
		resources: localstore.NewTyped[Resource](store, localstore.Resources),
		validate:  validate,
		newID:     store.NewID,
		now:       time.Now,
	}
}

func notFound(err error) error {
	if errors.Cause(err) == localstore.ErrNotFound {
		return ErrNotFound
	}
	return err
}

func (s *Service) Add(nr NewResource) (Resource, error) {
	if err := nr.Validate(s.validate); err != nil {
		return Resource{}, err
	}
	tags := nr.Tags
	if tags == nil {
		tags = []string{}
	}
	return s.resources.Add(Resource{
		ID:          s.newID(),
		Title:       nr.Title,
		Description: nr.Description,
		FileURL:     nr.FileURL,
		FileType:    nr.FileType,
		Category:    nr.Category,
		UploadedBy:  nr.UploadedBy,
		UploadedAt:  s.now().UTC(),
		Tags:        tags,
	})
}

func (s *Service) Get(id string) (Resource, error) {
	res, err := s.resources.Get(id)
	return res, notFound(err)
}

// Query returns the resources matching qf.
// Without a search text resources are listed newest first; otherwise the best matches come first.
func (s *Service) Query(qf QueryFilter) []Resource {
	qf.Clean()
	scores := make(map[string]float64)
	found := s.resources.Filter(func(r Resource) bool {
		if qf.Category != "" && r.Category != qf.Category {
			return false
		}
		if qf.Tag != "" && !r.HasTag(qf.Tag) {
			return false
		}
		if qf.Search == "" {
			return true
		}
		score := searchScore(r, qf.Search)
		scores[r.ID] = score
		return score > 0
	})

	if qf.Search == "" {
		sort.SliceStable(found, func(i, j int) bool { return found[i].UploadedAt.After(found[j].UploadedAt) })
		return found
	}
	sort.SliceStable(found, func(i, j int) bool {
		si, sj := scores[found[i].ID], scores[found[j].ID]
		if si != sj {
			return si > sj
		}
		return found[i].DownloadCount > found[j].DownloadCount
	})
	return found
}

// searchScore ranks r against the lowered search text: verbatim matches in the title first,
// then in the description or tags, then titles similar enough to the search text.
func searchScore(r Resource, search string) float64 {
	title := strings.ToLower(r.Title)
	switch {
	case strings.Contains(title, search):
		return 3
	case strings.Contains(strings.ToLower(r.Description), search):
		return 2
	}
	for _, tag := range r.Tags {
		if strings.Contains(strings.ToLower(tag), search) {
			return 2
		}
	}
	ratio := difflib.NewMatcher(strings.Split(search, ""), strings.Split(title, "")).Ratio()
	if ratio < minSimilarity {
		return 0
	}
	return ratio
}

// Popular returns the n most downloaded resources.
func (s *Service) Popular(n int) []Resource {
	all := s.resources.All()
	sort.SliceStable(all, func(i, j int) bool { return all[i].DownloadCount > all[j].DownloadCount })
	if n > 0 && len(all) > n {
		all = all[:n]
	}
	return all
}

// RecordDownload increments the download count of the resource.
func (s *Service) RecordDownload(id string) (Resource, error) {
	return s.update(id, func(r *Resource) { r.DownloadCount++ })
}

func (s *Service) Rate(id string, rating Rating) (Resource, error) {
	if err := s.validate.Struct(rating); err != nil {
		return Resource{}, err
	}
	return s.update(id, func(r *Resource) { r.Rating = rating.Rating })
}

func (s *Service) Delete(id string) error {
	removed, err := s.resources.Delete(id)
	if err != nil {
		return err
	}
	if !removed {
		return ErrNotFound
	}
	return nil
}

func (s *Service) update(id string, change func(r *Resource)) (Resource, error) {
	var updated Resource
	err := s.resources.Mutate(func(resources []Resource) ([]Resource, error) {
		for i := range resources {
			if resources[i].ID == id {
				change(&resources[i])
				updated = resources[i]
				return resources, nil
			}
		}
		return nil, ErrNotFound
	})
	if err != nil {
		return Resource{}, err
	}
	return updated, nil
}

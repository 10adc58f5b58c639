package pipeline

import "github.com/acheong08/avtag/pkg/models"

// SingletonPrefix starts the family of a sample with no family tag
const SingletonPrefix = "SINGLETON:"

// SelectFamily returns the highest ranked tag that is a family or has no known
// category. Samples without one get a label unique to their identity.
func SelectFamily(id string, tags models.RankedTags, tax Taxonomy) string {
	for _, t := range tags {
		switch tax.Category(t.Tag) {
		case models.CategoryFamily, models.CategoryUnknown:
			return t.Tag
		}
	}
	return SingletonPrefix + id
}

package store

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/zulandar/lectern/internal/models"
	"gorm.io/gorm"
)

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lower-cases name and collapses every run of other characters to
// a single hyphen.
func Slugify(name string) string {
	return strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(name), "-"), "-")
}

// NormalizeTag lower-cases and trims a tag name.
func NormalizeTag(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// SeedCategories makes sure every named category exists.
func SeedCategories(db *gorm.DB, names []string) (int, error) {
	created := 0
	for _, n := range names {
		var before int64
		if err := db.Model(&models.Category{}).Where("slug = ?", Slugify(n)).Count(&before).Error; err != nil {
			return created, fmt.Errorf("store: seed category %q: %w", n, err)
		}
		if before > 0 {
			continue
		}
		if _, err := GetOrCreateCategory(db, n); err != nil {
			return created, err
		}
		created++
	}
	return created, nil
}

// GetOrCreateCategory returns the category whose slug matches name,
// creating it if needed. A name with no usable characters returns nil.
func GetOrCreateCategory(db *gorm.DB, name string) (*models.Category, error) {
	slug := Slugify(name)
	if slug == "" {
		return nil, nil
	}
	cat := models.Category{Name: strings.TrimSpace(name), Slug: slug}
	if err := db.Where(models.Category{Slug: slug}).FirstOrCreate(&cat).Error; err != nil {
		return nil, fmt.Errorf("store: category %q: %w", name, err)
	}
	return &cat, nil
}

// GetOrCreateTag returns the tag with the normalized name, creating it if
// needed. An empty name returns nil.
func GetOrCreateTag(db *gorm.DB, name string) (*models.Tag, error) {
	n := NormalizeTag(name)
	if n == "" {
		return nil, nil
	}
	tag := models.Tag{Name: n}
	if err := db.Where(models.Tag{Name: n}).FirstOrCreate(&tag).Error; err != nil {
		return nil, fmt.Errorf("store: tag %q: %w", name, err)
	}
	return &tag, nil
}

// CategoryCount is a category with the number of entries linked to it.
type CategoryCount struct {
	ID    uint
	Name  string
	Slug  string
	Count int64
}

// ListCategories returns every category with its usage, most used first.
func ListCategories(db *gorm.DB) ([]CategoryCount, error) {
	var out []CategoryCount
	err := db.Table("categories c").
		Select("c.id, c.name, c.slug, COUNT(kc.knowledge_id) as count").
		Joins("LEFT JOIN knowledge_categories kc ON kc.category_id = c.id").
		Group("c.id, c.name, c.slug").
		Order("count DESC, c.name").
		Scan(&out).Error
	if err != nil {
		return nil, fmt.Errorf("store: list categories: %w", err)
	}
	return out, nil
}

// TagCount is a tag with the number of entries linked to it.
type TagCount struct {
	ID    uint
	Name  string
	Count int64
}

// TagsWithCounts returns every tag with its usage, ordered by name.
func TagsWithCounts(db *gorm.DB) ([]TagCount, error) {
	var out []TagCount
	err := db.Table("tags t").
		Select("t.id, t.name, COUNT(kt.knowledge_id) as count").
		Joins("LEFT JOIN knowledge_tags kt ON kt.tag_id = t.id").
		Group("t.id, t.name").
		Order("t.name").
		Scan(&out).Error
	if err != nil {
		return nil, fmt.Errorf("store: tags with counts: %w", err)
	}
	return out, nil
}

// MergeTags repoints every entry tagged with one of removeIDs to keepID
// and deletes the removed tags.
func MergeTags(db *gorm.DB, keepID uint, removeIDs []uint) error {
	var n int64
	if err := db.Model(&models.Tag{}).Where("id = ?", keepID).Count(&n).Error; err != nil {
		return fmt.Errorf("store: find tag %d: %w", keepID, err)
	}
	if n == 0 {
		return notFound("tag", keepID)
	}
	for _, rid := range removeIDs {
		if rid == keepID {
			continue
		}
		err := db.Exec(`INSERT INTO knowledge_tags (knowledge_id, tag_id)
			SELECT knowledge_id, ? FROM knowledge_tags
			WHERE tag_id = ? AND knowledge_id NOT IN (SELECT knowledge_id FROM knowledge_tags WHERE tag_id = ?)`,
			keepID, rid, keepID).Error
		if err != nil {
			return fmt.Errorf("store: repoint tag %d to %d: %w", rid, keepID, err)
		}
		if err := db.Exec("DELETE FROM knowledge_tags WHERE tag_id = ?", rid).Error; err != nil {
			return fmt.Errorf("store: unlink tag %d: %w", rid, err)
		}
		if err := db.Delete(&models.Tag{}, rid).Error; err != nil {
			return fmt.Errorf("store: delete tag %d: %w", rid, err)
		}
	}
	return nil
}

var tagSeparators = regexp.MustCompile(`[-_]+`)
var spaces = regexp.MustCompile(`\s+`)

// TagGroupKey is the form tags are compared in when looking for duplicates:
// lower case, hyphens and underscores as spaces, single spaces.
func TagGroupKey(name string) string {
	k := tagSeparators.ReplaceAllString(strings.ToLower(name), " ")
	return strings.TrimSpace(spaces.ReplaceAllString(k, " "))
}

// DuplicateTagGroups groups tags sharing a TagGroupKey. Within a group the
// most used tag comes first; groups of one are omitted.
func DuplicateTagGroups(tags []TagCount) [][]TagCount {
	byKey := make(map[string][]TagCount)
	var keys []string
	for _, t := range tags {
		k := TagGroupKey(t.Name)
		if _, ok := byKey[k]; !ok {
			keys = append(keys, k)
		}
		byKey[k] = append(byKey[k], t)
	}
	sort.Strings(keys)
	var groups [][]TagCount
	for _, k := range keys {
		g := byKey[k]
		if len(g) < 2 {
			continue
		}
		sort.SliceStable(g, func(i, j int) bool {
			if g[i].Count != g[j].Count {
				return g[i].Count > g[j].Count
			}
			return g[i].ID < g[j].ID
		})
		groups = append(groups, g)
	}
	return groups
}

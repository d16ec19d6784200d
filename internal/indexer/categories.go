// Package indexer implements the capability matcher and category
// translator shared by every configured index.
package indexer

import "github.com/keonramses/Cinephage-sub002/internal/indexer/types"

// Standard Newznab Categories
// https://newznab.readthedocs.io/en/latest/misc/api/#predefined-categories
const (
	// Main categories
	CategoryConsole = 1000
	CategoryMovies  = 2000
	CategoryAudio   = 3000
	CategoryPC      = 4000
	CategoryTV      = 5000
	CategoryXXX     = 6000
	CategoryBooks   = 7000
	CategoryOther   = 8000

	// Movies subcategories
	CategoryMoviesForeign = 2010
	CategoryMoviesOther   = 2020
	CategoryMoviesSD      = 2030
	CategoryMoviesHD      = 2040
	CategoryMoviesUHD     = 2045
	CategoryMoviesBluRay  = 2050
	CategoryMovies3D      = 2060
	CategoryMoviesDVD     = 2070
	CategoryMoviesWebDL   = 2080

	// TV subcategories
	CategoryTVWebDL   = 5010
	CategoryTVForeign = 5020
	CategoryTVSD      = 5030
	CategoryTVHD      = 5040
	CategoryTVUHD     = 5045
	CategoryTVOther   = 5050
	CategoryTVSport   = 5060
	CategoryTVAnime   = 5070
	CategoryTVDoc     = 5080
)

var categoryNames = map[int]string{
	CategoryConsole:       "Console",
	CategoryMovies:        "Movies",
	CategoryMoviesForeign: "Movies/Foreign",
	CategoryMoviesOther:   "Movies/Other",
	CategoryMoviesSD:      "Movies/SD",
	CategoryMoviesHD:      "Movies/HD",
	CategoryMoviesUHD:     "Movies/UHD",
	CategoryMoviesBluRay:  "Movies/BluRay",
	CategoryMovies3D:      "Movies/3D",
	CategoryMoviesDVD:     "Movies/DVD",
	CategoryMoviesWebDL:   "Movies/WEB-DL",
	CategoryAudio:         "Audio",
	CategoryPC:            "PC",
	CategoryTV:            "TV",
	CategoryTVWebDL:       "TV/WEB-DL",
	CategoryTVForeign:     "TV/Foreign",
	CategoryTVSD:          "TV/SD",
	CategoryTVHD:          "TV/HD",
	CategoryTVUHD:         "TV/UHD",
	CategoryTVOther:       "TV/Other",
	CategoryTVSport:       "TV/Sport",
	CategoryTVAnime:       "TV/Anime",
	CategoryTVDoc:         "TV/Documentary",
	CategoryXXX:           "XXX",
	CategoryBooks:         "Books",
	CategoryOther:         "Other",
}

// CategoryName returns a human-readable name for a category.
func CategoryName(id int) string {
	if name, ok := categoryNames[id]; ok {
		return name
	}
	return "Unknown"
}

// CategoryIDByName resolves a canonical category name ("TV/HD") to its id.
func CategoryIDByName(name string) (int, bool) {
	for id, n := range categoryNames {
		if n == name {
			return id, true
		}
	}
	return 0, false
}

// IsMovieCategory returns true if the category is in the movie family.
func IsMovieCategory(id int) bool {
	return id >= 2000 && id < 3000
}

// IsTVCategory returns true if the category is in the TV family.
func IsTVCategory(id int) bool {
	return id >= 5000 && id < 6000
}

// FamilyMatches reports whether a canonical category belongs to the
// family required by a search type. Basic searches have no family.
func FamilyMatches(searchType types.SearchType, canonicalID int) bool {
	switch searchType {
	case types.SearchTypeMovie:
		return IsMovieCategory(canonicalID)
	case types.SearchTypeTV:
		return IsTVCategory(canonicalID)
	default:
		return true
	}
}

// DefaultMovieCategories returns the default categories to search for movies.
func DefaultMovieCategories() []int {
	return []int{
		CategoryMovies,
		CategoryMoviesSD,
		CategoryMoviesHD,
		CategoryMoviesUHD,
		CategoryMoviesBluRay,
		CategoryMoviesWebDL,
	}
}

// DefaultTVCategories returns the default categories to search for TV shows.
func DefaultTVCategories() []int {
	return []int{
		CategoryTV,
		CategoryTVSD,
		CategoryTVHD,
		CategoryTVUHD,
		CategoryTVAnime,
		CategoryTVWebDL,
	}
}

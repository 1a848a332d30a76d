package tmdb

import "strings"

const (
	// DefaultImageBaseURL is the TMDB image CDN prefix
	DefaultImageBaseURL = "https://image.tmdb.org/t/p/"
	// PlaceholderImageURL is returned for items without artwork
	PlaceholderImageURL = "https://via.placeholder.com/500x750?text=No+Image+Available"
)

// ImageSize is a TMDB image width tag
type ImageSize string

const (
	SizeW92      ImageSize = "w92"
	SizeW154     ImageSize = "w154"
	SizeW185     ImageSize = "w185"
	SizeW342     ImageSize = "w342"
	SizeW500     ImageSize = "w500"
	SizeW780     ImageSize = "w780"
	SizeOriginal ImageSize = "original"

	// DefaultImageSize is used whenever a size tag is not recognized
	DefaultImageSize = SizeW500
)

var imageSizes = map[ImageSize]bool{
	SizeW92:      true,
	SizeW154:     true,
	SizeW185:     true,
	SizeW342:     true,
	SizeW500:     true,
	SizeW780:     true,
	SizeOriginal: true,
}

// Valid reports whether the size tag is one the CDN serves
func (s ImageSize) Valid() bool {
	return imageSizes[s]
}

// BuildImageURL resolves a relative image path against the default TMDB CDN
func BuildImageURL(path string, size ImageSize) string {
	return buildImageURL(DefaultImageBaseURL, path, size)
}

// ImageURL resolves a relative image path against the client's image CDN
func (c *Client) ImageURL(path string, size ImageSize) string {
	return buildImageURL(c.imageBaseURL, path, size)
}

func buildImageURL(base, path string, size ImageSize) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return PlaceholderImageURL
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if !size.Valid() {
		size = DefaultImageSize
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return base + string(size) + path
}

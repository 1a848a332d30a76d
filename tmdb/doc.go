// Package tmdb provides a read-only client for The Movie Database (TMDB) API.
//
// The client backs every catalog view of movieflix: trending lists, movie and
// TV category listings, multi search, detail pages and trailers. It also builds
// absolute image URLs for posters and backdrops.
//
// # Failure policy
//
// Catalog fetches never return an error. Transport failures, timeouts, HTTP
// error statuses, malformed bodies and invalid arguments are logged at the
// client boundary and converted into an empty value:
//
//   - Trending and Videos return an empty slice
//   - Movies, TVShows, ByCategory and SearchMulti return a Page with no results
//   - Details returns nil
//
// A failed call is final for that invocation. There is no retry and no
// response cache.
//
// # Usage
//
//	logger := zerolog.New(os.Stderr)
//	client, err := tmdb.NewClient(apiKey, logger, tmdb.WithTimeout(10*time.Second))
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	page := client.Movies(ctx, tmdb.CategoryPopular, 1)
//	for _, item := range page.Results {
//		poster := client.ImageURL(item.PosterPath, tmdb.SizeW342)
//		fmt.Println(item.DisplayName(), item.RatingLabel(), poster)
//	}
package tmdb

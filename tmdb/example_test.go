package tmdb_test

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/http/httptest"

	"github.com/rs/zerolog"

	"github.com/s0up4200/movieflix/tmdb"
)

func ExampleClient_Movies() {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"page":1,"total_pages":1,"results":[
			{"id":1,"title":"Dune","vote_average":8.4,"vote_count":120,"poster_path":"/dune.jpg"},
			{"id":2,"title":"Unreleased","vote_average":0,"vote_count":4}
		]}`)
	}))
	defer api.Close()

	client, err := tmdb.NewClient("api-key", zerolog.Nop(),
		tmdb.WithBaseURL(api.URL),
		tmdb.WithImageBaseURL("https://cdn.example.com/t/p"),
	)
	if err != nil {
		log.Fatal(err)
	}

	page := client.Movies(context.Background(), tmdb.CategoryPopular, 1)
	for _, item := range page.Results {
		poster := client.ImageURL(item.PosterPath, tmdb.SizeW342)
		fmt.Println(item.DisplayName(), item.RatingLabel(), poster)
	}
	// Output:
	// Dune 4.2 https://cdn.example.com/t/p/w342/dune.jpg
	// Unreleased N/A https://via.placeholder.com/500x750?text=No+Image+Available
}

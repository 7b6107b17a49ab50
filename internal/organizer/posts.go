package organizer

import (
	"fmt"
	"sort"
)

// Post is a ready-to-publish group of photos.
type Post struct {
	Title  string
	Photos []ScoredPhoto
}

// BuildPosts assembles posts of exactly postSize photos from the worthy
// subset. The highest-scored photos form a leading "best of" post; the rest
// are grouped chronologically. No photo appears in more than one post and a
// trailing partial group is dropped.
func BuildPosts(photos []ScoredPhoto, postSize int) []Post {
	if postSize < 1 {
		postSize = 1
	}

	worthy := make([]ScoredPhoto, 0, len(photos))
	for _, p := range photos {
		if InstagramWorthy(p.Score) {
			worthy = append(worthy, p)
		}
	}
	if len(worthy) < postSize {
		return nil
	}

	sort.Slice(worthy, func(i, j int) bool { return worthy[i].Score > worthy[j].Score })
	posts := []Post{{Title: "Best of", Photos: worthy[:postSize]}}

	rest := make([]ScoredPhoto, len(worthy)-postSize)
	copy(rest, worthy[postSize:])
	sort.Slice(rest, func(i, j int) bool { return rest[i].TakenAt.Before(rest[j].TakenAt) })

	for i := 0; i+postSize <= len(rest); i += postSize {
		posts = append(posts, Post{
			Title:  fmt.Sprintf("Post %d", len(posts)),
			Photos: rest[i : i+postSize],
		})
	}
	return posts
}

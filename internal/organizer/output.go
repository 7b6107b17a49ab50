package organizer

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// WritePosts materializes each post as a folder under dir containing copies
// of its photos and a generated caption file.
func WritePosts(posts []Post, dir string) error {
	for i, post := range posts {
		postDir := filepath.Join(dir, fmt.Sprintf("%02d-%s", i+1, slugify(post.Title)))
		if err := os.MkdirAll(postDir, 0o755); err != nil {
			return fmt.Errorf("failed to create post folder: %w", err)
		}
		for _, photo := range post.Photos {
			if err := copyFile(photo.Path, filepath.Join(postDir, photo.Name)); err != nil {
				return fmt.Errorf("failed to copy %s: %w", photo.Name, err)
			}
		}
		caption := buildCaption(post)
		if err := os.WriteFile(filepath.Join(postDir, "caption.txt"), []byte(caption), 0o644); err != nil {
			return fmt.Errorf("failed to write caption: %w", err)
		}
	}
	return nil
}

func buildCaption(post Post) string {
	var b strings.Builder
	b.WriteString(post.Title)
	b.WriteString("\n\n")

	seen := make(map[string]bool)
	var hashtags []string
	for _, photo := range post.Photos {
		if photo.Analysis.Description != "" {
			fmt.Fprintf(&b, "%s - %s (%.1f)\n", photo.Name, photo.Analysis.Description, photo.Score)
		}
		tag := strings.TrimSpace(photo.Analysis.HashtagFocus)
		if tag != "" && !seen[tag] {
			seen[tag] = true
			if !strings.HasPrefix(tag, "#") {
				tag = "#" + strings.ReplaceAll(strings.ToLower(tag), " ", "")
			}
			hashtags = append(hashtags, tag)
		}
	}
	if len(hashtags) > 0 {
		b.WriteString("\n")
		b.WriteString(strings.Join(hashtags, " "))
		b.WriteString("\n")
	}
	return b.String()
}

func slugify(s string) string {
	s = strings.ToLower(s)
	var b strings.Builder
	lastDash := true
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

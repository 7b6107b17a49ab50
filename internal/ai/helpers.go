package ai

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
)

//go:embed prompts/photo_curation.txt
var photoCurationPrompt string

// buildBatchPrompt returns the curation prompt plus a listing of the images
// in the batch so the model keeps its answers in order.
func buildBatchPrompt(reqs []ImageRequest) string {
	var b strings.Builder
	b.WriteString(photoCurationPrompt)
	fmt.Fprintf(&b, "\nYou will receive %d image(s):\n", len(reqs))
	for i, req := range reqs {
		fmt.Fprintf(&b, "%d. %s\n", i+1, req.Name)
	}
	return b.String()
}

// parseBatchContent decodes the model's JSON array answer into per-image
// results, matching entries to requests by position. A missing or surplus
// entry produces a per-image error rather than failing the whole batch.
func parseBatchContent(content string, reqs []ImageRequest) ([]ImageResult, error) {
	jsonContent := extractJSONArray(content)

	var analyses []*ImageAnalysis
	if err := json.Unmarshal([]byte(jsonContent), &analyses); err != nil {
		// Some models answer with a bare object for single-image batches.
		var single ImageAnalysis
		if len(reqs) == 1 && json.Unmarshal([]byte(extractJSONObject(content)), &single) == nil {
			analyses = []*ImageAnalysis{&single}
		} else {
			return nil, fmt.Errorf("failed to parse analysis JSON: %w (response: %s)", err, content)
		}
	}

	results := make([]ImageResult, len(reqs))
	for i, req := range reqs {
		results[i].Key = req.Key
		if i >= len(analyses) || analyses[i] == nil {
			results[i].Err = NewCallError(FailureServer, fmt.Errorf("no analysis returned for image %d (%s)", i+1, req.Name))
			continue
		}
		results[i].Analysis = analyses[i]
	}
	return results, nil
}

// extractJSONArray attempts to extract a JSON array from a response that may
// contain extra text around it.
func extractJSONArray(content string) string {
	return extractBalanced(content, '[', ']')
}

// extractJSONObject attempts to extract a JSON object from a response that may
// contain extra text around it.
func extractJSONObject(content string) string {
	return extractBalanced(content, '{', '}')
}

func extractBalanced(content string, open, close byte) string {
	start := strings.IndexByte(content, open)
	if start == -1 {
		return content
	}

	depth := 0
	inString := false
	for i := start; i < len(content); i++ {
		c := content[i]
		if inString {
			switch c {
			case '\\':
				i++ // skip escaped character
			case '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return content[start : i+1]
			}
		}
	}

	// No matching close found, return from start.
	return content[start:]
}

package citations

import (
	"github.com/summaid/backend/internal/retrieval"
)

// Citation points a claim in generated output back to the exact chunk, page,
// and document it came from, so a viewer can deep-link to the source.
type Citation struct {
	ChunkID     string `json:"chunk_id"`
	DocumentID  string `json:"document_id"`
	Page        int    `json:"page"`
	Ordinal     int    `json:"ordinal"`
	TextPreview string `json:"text_preview"`
	TextFull    string `json:"text_full"`
}

// Attach resolves the used chunk IDs against the evidence they came from.
// Duplicates collapse to one citation, the evidence's ranking order is
// preserved, and IDs that are not part of the evidence are dropped: citations
// are never fabricated from ids outside the retrieval set.
func Attach(usedChunkIDs []string, evidence retrieval.Evidence) []Citation {
	used := make(map[string]bool, len(usedChunkIDs))
	for _, id := range usedChunkIDs {
		used[id] = true
	}

	seen := make(map[string]bool, len(usedChunkIDs))
	citations := make([]Citation, 0, len(usedChunkIDs))

	for _, chunk := range evidence {
		if !used[chunk.ChunkID] || seen[chunk.ChunkID] {
			continue
		}
		seen[chunk.ChunkID] = true

		citations = append(citations, Citation{
			ChunkID:     chunk.ChunkID,
			DocumentID:  chunk.DocumentID,
			Page:        chunk.Page,
			Ordinal:     chunk.Ordinal,
			TextPreview: chunk.TextPreview,
			TextFull:    chunk.TextFull,
		})
	}

	return citations
}

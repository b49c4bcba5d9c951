package memory

import (
	"encoding/json"
	"fmt"

	"molluscadb/pkg/domain"
)

// EncodeBuckets serialises a snapshot into one JSON payload per collection,
// keyed by collection name. Every known collection is present, empty or not.
func EncodeBuckets(snapshot Snapshot) (map[string][]byte, error) {
	out := make(map[string][]byte, len(domain.Collections()))
	for _, c := range domain.Collections() {
		docs := snapshot.Collections[c]
		if docs == nil {
			docs = map[string]Document{}
		}
		data, err := json.Marshal(docs)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", c, err)
		}
		out[string(c)] = data
	}
	return out, nil
}

// DecodeBucket merges one bucket payload into snapshot. Unknown buckets are
// ignored so older databases with retired buckets still load.
func DecodeBucket(snapshot *Snapshot, bucket string, payload []byte) error {
	c, ok := domain.ParseCollection(bucket)
	if !ok || len(payload) == 0 {
		return nil
	}
	var docs map[string]Document
	if err := json.Unmarshal(payload, &docs); err != nil {
		return fmt.Errorf("decode %s: %w", bucket, err)
	}
	if snapshot.Collections == nil {
		snapshot.Collections = make(map[Collection]map[string]Document)
	}
	for k, doc := range docs {
		if doc == nil {
			doc = Document{}
		}
		docs[k] = doc.Normalize()
	}
	snapshot.Collections[c] = docs
	return nil
}

package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"

	"github.com/google/uuid"

	"vaxtrax/internal/blob"
	"vaxtrax/pkg/domain"
)

const (
	blobPrefix     = "audit/"
	blobTimeLayout = "20060102T150405.000000000Z"
)

// BlobSink archives each entry as a JSON object in a blob store.
type BlobSink struct {
	store blob.Store
	newID func() string
}

// NewBlobSink writes under audit/<batch_no>/ in store.
func NewBlobSink(store blob.Store) *BlobSink {
	return &BlobSink{store: store, newID: func() string { return uuid.NewString() }}
}

func batchPrefix(batchNo string) string {
	return blobPrefix + url.PathEscape(batchNo) + "/"
}

// Key returns the object key used for entry.
func (b *BlobSink) Key(entry domain.HistoryEntry) string {
	return batchPrefix(entry.BatchNo) + entry.Timestamp.UTC().Format(blobTimeLayout) + "-" + b.newID() + ".json"
}

// Append implements Sink.
func (b *BlobSink) Append(ctx context.Context, entry domain.HistoryEntry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode audit entry: %w", err)
	}
	_, err = b.store.Put(ctx, b.Key(entry), bytes.NewReader(payload), blob.PutOptions{
		ContentType: "application/json",
		Metadata:    map[string]string{"batch_no": entry.BatchNo, "action": entry.Action},
	})
	if err != nil {
		return fmt.Errorf("put audit entry: %w", err)
	}
	return nil
}

// Scans implements Reader. Keys sort by timestamp, so list order is trail order.
func (b *BlobSink) Scans(ctx context.Context, batchNo string) ([]domain.HistoryEntry, error) {
	infos, err := b.store.List(ctx, batchPrefix(batchNo))
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	out := make([]domain.HistoryEntry, 0, len(infos))
	for _, info := range infos {
		entry, err := b.read(ctx, info.Key)
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, nil
}

func (b *BlobSink) read(ctx context.Context, key string) (domain.HistoryEntry, error) {
	_, rc, err := b.store.Get(ctx, key)
	if err != nil {
		return domain.HistoryEntry{}, fmt.Errorf("get %s: %w", key, err)
	}
	defer func() { _ = rc.Close() }()
	var entry domain.HistoryEntry
	if err := json.NewDecoder(rc).Decode(&entry); err != nil {
		return domain.HistoryEntry{}, fmt.Errorf("decode %s: %w", key, err)
	}
	return entry, nil
}

package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strconv"
	"strings"

	"dbtlineage/internal/blob"
)

// ReportPrefix is the blob key prefix batch reports are archived under.
const ReportPrefix = "reports"

// ReportKey returns the archive key for a batch.
func ReportKey(batchID string) string {
	return path.Join(ReportPrefix, batchID+".json")
}

// BatchIDFromKey extracts the batch ID from an archive key.
func BatchIDFromKey(key string) (string, bool) {
	rest, ok := strings.CutPrefix(key, ReportPrefix+"/")
	if !ok {
		return "", false
	}
	id, ok := strings.CutSuffix(rest, ".json")
	if !ok || id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}

// ArchivedReport is the listing view of one archived report.
type ArchivedReport struct {
	BatchID string    `json:"batch_id"`
	Info    blob.Info `json:"blob"`
}

// Archive writes report as indented JSON to store and returns the blob info.
// Reports are write-once; archiving the same batch twice fails with
// blob.ErrExists.
func Archive(ctx context.Context, store blob.Store, report Report) (blob.Info, error) {
	if report.BatchID == "" {
		return blob.Info{}, fmt.Errorf("archive report: %w", blob.ErrInvalidKey)
	}
	payload, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return blob.Info{}, fmt.Errorf("encode report %s: %w", report.BatchID, err)
	}
	info, err := store.Put(ctx, ReportKey(report.BatchID), bytes.NewReader(payload), blob.PutOptions{
		ContentType: "application/json",
		Metadata: map[string]string{
			"batch-id":  report.BatchID,
			"committed": strconv.FormatBool(report.Committed),
		},
	})
	if err != nil {
		return blob.Info{}, fmt.Errorf("archive report %s: %w", report.BatchID, err)
	}
	return info, nil
}

// LoadReport reads an archived report back.
func LoadReport(ctx context.Context, store blob.Store, batchID string) (Report, error) {
	_, rc, err := store.Get(ctx, ReportKey(batchID))
	if err != nil {
		return Report{}, fmt.Errorf("load report %s: %w", batchID, err)
	}
	defer rc.Close()
	var report Report
	if err := json.NewDecoder(rc).Decode(&report); err != nil {
		return Report{}, fmt.Errorf("decode report %s: %w", batchID, err)
	}
	return report, nil
}

// ListReports returns the archived reports ordered by key. Blobs under the
// prefix that are not report keys are skipped.
func ListReports(ctx context.Context, store blob.Store) ([]ArchivedReport, error) {
	infos, err := store.List(ctx, ReportPrefix+"/")
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	out := make([]ArchivedReport, 0, len(infos))
	for _, info := range infos {
		if id, ok := BatchIDFromKey(info.Key); ok {
			out = append(out, ArchivedReport{BatchID: id, Info: info})
		}
	}
	return out, nil
}

// ReportInfo returns the blob metadata of an archived report without reading it.
func ReportInfo(ctx context.Context, store blob.Store, batchID string) (blob.Info, error) {
	info, err := store.Head(ctx, ReportKey(batchID))
	if err != nil {
		return blob.Info{}, fmt.Errorf("stat report %s: %w", batchID, err)
	}
	return info, nil
}

// DeleteReport removes an archived report so the batch can be archived again.
// It reports whether a report was removed.
func DeleteReport(ctx context.Context, store blob.Store, batchID string) (bool, error) {
	removed, err := store.Delete(ctx, ReportKey(batchID))
	if err != nil {
		return false, fmt.Errorf("delete report %s: %w", batchID, err)
	}
	return removed, nil
}

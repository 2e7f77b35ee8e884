package storage

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf16"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/bytedance/sonic"
)

type fakeTable struct {
	rows     map[string]map[string]any
	getErr   error
	lastMode aztables.UpdateMode
}

func newFakeTable() *fakeTable {
	return &fakeTable{rows: map[string]map[string]any{}}
}

func (f *fakeTable) GetEntity(ctx context.Context, pk, rk string, _ *aztables.GetEntityOptions) (aztables.GetEntityResponse, error) {
	if f.getErr != nil {
		return aztables.GetEntityResponse{}, f.getErr
	}
	row, ok := f.rows[pk+"/"+rk]
	if !ok {
		return aztables.GetEntityResponse{}, &azcore.ResponseError{StatusCode: 404}
	}
	data, _ := sonic.Marshal(row)
	return aztables.GetEntityResponse{Value: data}, nil
}

func (f *fakeTable) UpsertEntity(ctx context.Context, entity []byte, o *aztables.UpsertEntityOptions) (aztables.UpsertEntityResponse, error) {
	var row map[string]any
	if err := sonic.Unmarshal(entity, &row); err != nil {
		return aztables.UpsertEntityResponse{}, err
	}
	for _, v := range row {
		if str, ok := v.(string); ok && len(utf16.Encode([]rune(str))) > maxPropertyUnits {
			return aztables.UpsertEntityResponse{}, &azcore.ResponseError{StatusCode: 400, ErrorCode: "PropertyValueTooLarge"}
		}
	}
	if o != nil {
		f.lastMode = o.UpdateMode
	}
	f.rows[row["PartitionKey"].(string)+"/"+row["RowKey"].(string)] = row
	return aztables.UpsertEntityResponse{}, nil
}

func (f *fakeTable) DeleteEntity(ctx context.Context, pk, rk string, _ *aztables.DeleteEntityOptions) (aztables.DeleteEntityResponse, error) {
	if _, ok := f.rows[pk+"/"+rk]; !ok {
		return aztables.DeleteEntityResponse{}, &azcore.ResponseError{StatusCode: 404}
	}
	delete(f.rows, pk+"/"+rk)
	return aztables.DeleteEntityResponse{}, nil
}

func TestTableKV(t *testing.T) {
	exerciseKV(t, newTableKV(newFakeTable(), "board"))
}

func TestTableKVUsesPartitionAndReplaceMode(t *testing.T) {
	table := newFakeTable()
	kv := newTableKV(table, "")
	if err := kv.Set(context.Background(), TaskDataKey, "{}"); err != nil {
		t.Fatalf("set: %v", err)
	}
	row, ok := table.rows["taskboard/"+TaskDataKey]
	if !ok {
		t.Fatalf("expected row in default partition, rows=%v", table.rows)
	}
	if row["Value"] != "{}" {
		t.Fatalf("unexpected value column: %#v", row["Value"])
	}
	if table.lastMode != aztables.UpdateModeReplace {
		t.Fatalf("expected replace mode, got %v", table.lastMode)
	}
}

func TestTableKVPropagatesNonNotFoundErrors(t *testing.T) {
	table := newFakeTable()
	table.getErr = &azcore.ResponseError{StatusCode: 503}
	kv := newTableKV(table, "board")

	_, ok, err := kv.Get(context.Background(), TaskDataKey)
	var respErr *azcore.ResponseError
	if ok || !errors.As(err, &respErr) || respErr.StatusCode != 503 {
		t.Fatalf("expected 503 response error, got ok=%v err=%v", ok, err)
	}
}

func TestTableKVSplitsLargeValues(t *testing.T) {
	ctx := context.Background()
	table := newFakeTable()
	kv := newTableKV(table, "board")

	value := strings.Repeat("a", maxPropertyUnits) + strings.Repeat("é", maxPropertyUnits) + "tail"
	if err := kv.Set(ctx, TaskDataKey, value); err != nil {
		t.Fatalf("set: %v", err)
	}
	row := table.rows["board/"+TaskDataKey]
	if _, ok := row["Value2"]; !ok {
		t.Fatalf("expected value spread over three properties, got %d properties", len(row))
	}
	got, ok, err := kv.Get(ctx, TaskDataKey)
	if err != nil || !ok || got != value {
		t.Fatalf("round trip mismatch: ok=%v err=%v len=%d want %d", ok, err, len(got), len(value))
	}

	// A shorter value replaces the whole entity.
	if err := kv.Set(ctx, TaskDataKey, "{}"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if got, _, _ := kv.Get(ctx, TaskDataKey); got != "{}" {
		t.Fatalf("expected stale chunks dropped, got %d bytes", len(got))
	}
}

func TestTableKVRejectsOversizedValue(t *testing.T) {
	table := newFakeTable()
	kv := newTableKV(table, "board")

	value := strings.Repeat("x", maxPropertyUnits*maxValueChunks+1)
	err := kv.Set(context.Background(), TaskDataKey, value)
	if !errors.Is(err, ErrValueTooLarge) {
		t.Fatalf("expected ErrValueTooLarge, got %v", err)
	}
	if len(table.rows) != 0 {
		t.Fatalf("expected nothing written, rows=%d", len(table.rows))
	}
}

func TestSplitValueKeepsSurrogatePairsTogether(t *testing.T) {
	chunks := splitValue("a😀b", 2)
	if len(chunks) != 3 || chunks[1] != "😀" {
		t.Fatalf("unexpected chunks: %q", chunks)
	}
	if got := splitValue("", 4); len(got) != 1 || got[0] != "" {
		t.Fatalf("expected one empty chunk, got %q", got)
	}
}
